// Точка входа AnchorVault — сервис регистрации отпечатков документов.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// создаёт сервисный слой и API handlers, запускает мониторинг зависимостей
// и HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/anchorvault/internal/api/handlers"
	"github.com/bigkaa/anchorvault/internal/api/middleware"
	"github.com/bigkaa/anchorvault/internal/api/openapi"
	"github.com/bigkaa/anchorvault/internal/config"
	"github.com/bigkaa/anchorvault/internal/database"
	"github.com/bigkaa/anchorvault/internal/domain/validate"
	"github.com/bigkaa/anchorvault/internal/repository"
	"github.com/bigkaa/anchorvault/internal/server"
	"github.com/bigkaa/anchorvault/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("AnchorVault запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("AN_DEPHEALTH_GROUP") == "" {
		logger.Warn("AN_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// Адаптер pgxpool → *sql.DB: проверки topologymetrics идут через общий пул
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Repositories
	anchorRepo := repository.NewAnchorRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)

	// 6. Services
	validator := validate.New()
	verifyCache := service.NewVerificationCache(cfg.VerifyCacheSize, cfg.VerifyCacheTTL)

	anchorSvc := service.NewAnchorService(anchorRepo, auditRepo, validator, verifyCache, logger)
	batchSvc := service.NewBatchService(
		anchorRepo, anchorSvc, auditRepo, validator,
		cfg.BatchMaxRows, cfg.BatchTimeout,
		logger,
	)
	verifySvc := service.NewVerificationService(anchorSvc, verifyCache, logger)
	registrySvc := service.NewRegistryService(anchorRepo, logger)
	attestationSvc := service.NewAttestationService(anchorRepo, auditRepo, verifyCache, logger)

	// 7. Readiness checkers (PostgreSQL + JWKS IdP)
	pgChecker := database.NewReadinessChecker(pool)
	idpChecker, err := middleware.NewJWKSReadinessChecker(cfg.JWTJWKSURL, cfg.CACertPath, cfg.JWKSClientTimeout)
	if err != nil {
		logger.Error("Ошибка создания IdP readiness checker", slog.String("error", err.Error()))
		os.Exit(1)
	}
	healthHandler := handlers.NewHealthHandler(pgChecker, idpChecker)

	// 8. API handler
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		anchorSvc,
		batchSvc,
		verifySvc,
		registrySvc,
		attestationSvc,
		logger,
	)

	// 9. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(middleware.JWTAuthConfig{
		JWKSURL:         cfg.JWTJWKSURL,
		CACertPath:      cfg.CACertPath,
		Issuer:          cfg.JWTIssuer,
		TenantClaim:     cfg.JWTTenantClaim,
		OrgAdminGroups:  cfg.RoleOrgAdminGroups,
		ClientTimeout:   cfg.JWKSClientTimeout,
		RefreshInterval: cfg.JWKSRefreshInterval,
		Leeway:          cfg.JWTLeeway,
	}, logger)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
		slog.String("tenant_claim", cfg.JWTTenantClaim),
	)

	// 10. Валидация запросов по OpenAPI контракту
	var contractValidator *openapi.Validator
	if cfg.OpenAPIValidation {
		doc, err := openapi.Load(ctx)
		if err != nil {
			logger.Error("Ошибка загрузки OpenAPI контракта", slog.String("error", err.Error()))
			os.Exit(1)
		}
		contractValidator, err = openapi.NewValidator(doc, logger)
		if err != nil {
			logger.Error("Ошибка создания OpenAPI валидатора", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("Валидация запросов по OpenAPI контракту включена")
	}

	// 11. topologymetrics — мониторинг зависимостей (PostgreSQL + JWKS)
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:     "anchor-module",
		Group:         cfg.DephealthGroup,
		DB:            pgDB,
		PgConnURL:     cfg.DatabaseURL(),
		JWKSURL:       cfg.JWTJWKSURL,
		CheckInterval: cfg.DephealthCheckInterval,
		InsecureTLS:   cfg.CACertPath != "",
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics",
			slog.String("error", startErr.Error()),
		)
		dephealthSvc = nil
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 12. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, jwtAuth, contractValidator)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	logger.Info("AnchorVault остановлен")
}
