// Пакет database — пул соединений PostgreSQL (pgxpool), встроенные миграции
// схемы якорей (golang-migrate + iofs) и readiness-проверка для /health/ready.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/anchorvault/internal/config"
)

// applicationName — имя клиента в pg_stat_activity.
const applicationName = "anchor-module"

// pingTimeout — таймаут readiness-проверки.
const pingTimeout = 3 * time.Second

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Connect создаёт пул соединений и проверяет доступность PostgreSQL.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("разбор DSN PostgreSQL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConns)
	poolCfg.ConnConfig.RuntimeParams["application_name"] = applicationName

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("создание пула соединений: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("PostgreSQL недоступен: %w", err)
	}

	logger.Info("Пул соединений PostgreSQL создан",
		slog.String("host", cfg.DBHost),
		slog.Int("port", cfg.DBPort),
		slog.String("database", cfg.DBName),
		slog.Int("max_conns", int(poolCfg.MaxConns)),
	)
	return pool, nil
}

// Migrate приводит схему якорей и журнала аудита к последней версии.
// Грязная версия после сбоя предыдущей миграции — ошибка: нужна ручная починка.
func Migrate(cfg *config.Config, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("источник миграций: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, cfg.MigrateURL())
	if err != nil {
		return fmt.Errorf("инициализация миграций: %w", err)
	}
	defer m.Close()

	if _, dirty, verr := m.Version(); verr == nil && dirty {
		return errors.New("схема в состоянии dirty: предыдущая миграция не завершена")
	}

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Info("Схема БД актуальна, миграции не требуются")
		return nil
	case err != nil:
		return fmt.Errorf("применение миграций: %w", err)
	}

	version, _, _ := m.Version()
	logger.Info("Миграции применены", slog.Uint64("version", uint64(version)))
	return nil
}

// ReadinessChecker — проверка готовности PostgreSQL для /health/ready.
type ReadinessChecker struct {
	pool *pgxpool.Pool
}

// NewReadinessChecker создаёт проверку готовности PostgreSQL.
func NewReadinessChecker(pool *pgxpool.Pool) *ReadinessChecker {
	return &ReadinessChecker{pool: pool}
}

// CheckReady выполняет ping и оценивает загрузку пула.
// Исчерпанный пул — degraded: запросы обслуживаются, но ждут соединения.
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := c.pool.Ping(ctx); err != nil {
		return "fail", fmt.Sprintf("PostgreSQL недоступен: %v", err)
	}
	stat := c.pool.Stat()
	return poolStatus(stat.AcquiredConns(), stat.MaxConns())
}

// poolStatus классифицирует загрузку пула соединений.
func poolStatus(acquired, maxConns int32) (string, string) {
	if maxConns > 0 && acquired >= maxConns {
		return "degraded", fmt.Sprintf("пул соединений исчерпан (%d/%d)", acquired, maxConns)
	}
	return "ok", fmt.Sprintf("соединений занято %d/%d", acquired, maxConns)
}
