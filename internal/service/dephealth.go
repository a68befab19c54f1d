// dephealth.go — мониторинг зависимостей через topologymetrics SDK.
//
// Сервис якорей зависит от двух критичных компонентов:
//   - PostgreSQL — SQL checker через существующий pgxpool (connection pool mode)
//   - IdP — HTTP checker к JWKS endpoint, без него не проверяются токены
//
// Метрики публикуются на /metrics вместе с остальными:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
//   - app_dependency_status — категория статуса
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // HTTP checker для JWKS
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// Имена зависимостей в метриках.
const (
	DepPostgres = "postgresql"
	DepJWKS     = "idp-jwks"
)

// DephealthConfig — параметры мониторинга зависимостей.
type DephealthConfig struct {
	// ServiceID — имя вершины графа (anchor-module)
	ServiceID string
	// Group — группа в метриках (AN_DEPHEALTH_GROUP)
	Group string
	// DB — *sql.DB, полученный из pgxpool через stdlib.OpenDBFromPool()
	DB *sql.DB
	// PgConnURL — URL PostgreSQL без пароля, только для лейблов
	PgConnURL string
	// JWKSURL — JWKS endpoint IdP
	JWKSURL string
	// CheckInterval — интервал проверок (AN_DEPHEALTH_CHECK_INTERVAL)
	CheckInterval time.Duration
	// InsecureTLS — не проверять сертификат IdP (задан собственный CA, которого нет у checker)
	InsecureTLS bool
}

// DephealthService — мониторинг зависимостей.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// Метрики регистрируются в глобальном Prometheus registry.
func NewDephealthService(cfg DephealthConfig, logger *slog.Logger) (*DephealthService, error) {
	return newDephealthService(cfg, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(cfg DephealthConfig, logger *slog.Logger, registerer prometheus.Registerer) (*DephealthService, error) {
	return newDephealthService(cfg, logger, dephealth.WithRegisterer(registerer))
}

func newDephealthService(cfg DephealthConfig, logger *slog.Logger, extraOpts ...dephealth.Option) (*DephealthService, error) {
	opts := []dephealth.Option{
		dephealth.WithLogger(logger),
		// pgcheck напрямую, без contrib/sqldb и его транзитивной зависимости на MySQL
		dephealth.AddDependency(DepPostgres, dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(cfg.DB)),
			dephealth.FromURL(cfg.PgConnURL),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(true),
		),
		dephealth.HTTP(DepJWKS,
			dephealth.FromURL(cfg.JWKSURL),
			dephealth.WithHTTPHealthPath(JWKSHealthPath(cfg.JWKSURL)),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(true),
			dephealth.WithHTTPTLSSkipVerify(cfg.InsecureTLS),
		),
	}
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(cfg.ServiceID, cfg.Group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// JWKSHealthPath возвращает path проверки IdP.
// У большинства IdP /health доступен только на management-порту,
// поэтому проверяется сам JWKS endpoint.
func JWKSHealthPath(jwksURL string) string {
	if parsed, err := url.Parse(jwksURL); err == nil && parsed.Path != "" {
		return parsed.Path
	}
	return "/health"
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен (PostgreSQL + IdP)")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — имя зависимости, значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
