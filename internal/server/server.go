// Пакет server — HTTP-сервер AnchorVault с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bigkaa/anchorvault/internal/api/handlers"
	"github.com/bigkaa/anchorvault/internal/api/middleware"
	"github.com/bigkaa/anchorvault/internal/api/openapi"
	"github.com/bigkaa/anchorvault/internal/config"
	"github.com/bigkaa/anchorvault/internal/domain/rbac"
	"github.com/bigkaa/anchorvault/internal/service"
)

// Публичные префиксы: доступны без JWT.
var publicPrefixes = []string{"/health/", "/metrics", "/api/v1/verify/"}

// Server — HTTP-сервер AnchorVault.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными маршрутами и middleware.
// jwtAuth — JWT middleware (nil для тестов без auth).
// validator — валидация по OpenAPI контракту (nil — отключена).
func New(
	cfg *config.Config,
	logger *slog.Logger,
	h *handlers.APIHandler,
	jwtAuth *middleware.JWTAuth,
	validator *openapi.Validator,
) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(logger, h, jwtAuth, validator),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает маршруты API.
func NewRouter(
	logger *slog.Logger,
	h *handlers.APIHandler,
	jwtAuth *middleware.JWTAuth,
	validator *openapi.Validator,
) http.Handler {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(chimw.RequestID)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))
	router.Use(chimw.Recoverer)

	// Health и metrics проверяются Kubernetes напрямую, верификация публична
	if jwtAuth != nil {
		router.Use(jwtAuthWithExclusions(jwtAuth, publicPrefixes...))
	}
	if validator != nil {
		router.Use(validator.Middleware())
	}

	router.Get("/health/live", h.HealthLive)
	router.Get("/health/ready", h.HealthReady)
	router.Get("/metrics", h.GetMetrics)

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/verify/{public_id}", h.VerifyAnchor)

		r.Post("/anchors", h.CreateAnchor)
		r.Get("/anchors", h.ListAnchors)
		r.Get("/anchors/{id}", h.GetAnchor)
		r.With(middleware.RequireRole(rbac.RoleOrgAdmin)).
			Post("/anchors/{id}/revoke", h.RevokeAnchor)
		r.With(middleware.RequireScope(service.ScopeAttestationsWrite)).
			Post("/anchors/{id}/attestation", h.RecordAttestation)

		// Предусловия пакета проверяет сервис: ответ в формате результата пакета
		r.Post("/batches", h.RunBatch)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(rbac.RoleOrgAdmin))
			r.Get("/registry", h.ListRegistry)
			r.Get("/registry/export", h.ExportRegistry)
		})
	})

	return router
}

// jwtAuthWithExclusions оборачивает JWTAuth.Middleware(), пропуская указанные пути.
// Запросы к путям, начинающимся с любого из excludePrefixes, проходят без JWT.
func jwtAuthWithExclusions(jwtAuth *middleware.JWTAuth, excludePrefixes ...string) func(http.Handler) http.Handler {
	jwtMiddleware := jwtAuth.Middleware()

	return func(next http.Handler) http.Handler {
		protected := jwtMiddleware(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range excludePrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}
			protected.ServeHTTP(w, r)
		})
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
