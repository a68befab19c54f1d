// handler.go — основной обработчик API, объединяющий доменные обработчики.
// Делегирует запросы в сервисный слой и отображает ошибки сервисов в HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/anchorvault/internal/api/errors"
	"github.com/bigkaa/anchorvault/internal/domain/model"
	"github.com/bigkaa/anchorvault/internal/service"
)

// maxBodyBytes — предельный размер тела JSON-запроса.
const maxBodyBytes = 8 << 20

// AnchorManager — операции жизненного цикла якоря (service.AnchorService).
type AnchorManager interface {
	CreateAnchor(ctx context.Context, actor *model.Actor, in service.CreateAnchorInput) (*model.Anchor, error)
	ReviseStatus(ctx context.Context, actor *model.Actor, anchorID string, target model.AnchorStatus) (*model.Anchor, error)
	GetAnchor(ctx context.Context, actor *model.Actor, anchorID string) (*model.Anchor, error)
	ListOwned(ctx context.Context, actor *model.Actor, limit, offset int) ([]*model.Anchor, int, error)
}

// BatchRunner — пакетная регистрация (service.BatchService).
type BatchRunner interface {
	RunBatch(ctx context.Context, actor *model.Actor, batchID string, rows []model.BatchRow) (*model.BatchResult, error)
}

// Resolver — публичная верификация (service.VerificationService).
type Resolver interface {
	Resolve(ctx context.Context, publicID string) (*model.VerificationView, error)
}

// RegistryReader — реестр организации (service.RegistryService).
type RegistryReader interface {
	List(ctx context.Context, actor *model.Actor, q service.RegistryQuery) (*service.RegistryPage, error)
	ExportCSV(ctx context.Context, actor *model.Actor, q service.RegistryQuery, w io.Writer) (int, error)
}

// Attestor — запись внешних аттестаций (service.AttestationService).
type Attestor interface {
	Record(ctx context.Context, actor *model.Actor, anchorID string, att model.Attestation) (*model.Anchor, error)
}

// APIHandler — основной обработчик API AnchorVault.
type APIHandler struct {
	health      *HealthHandler
	anchors     AnchorManager
	batches     BatchRunner
	verifier    Resolver
	registry    RegistryReader
	attestation Attestor
	logger      *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	anchors AnchorManager,
	batches BatchRunner,
	verifier Resolver,
	registry RegistryReader,
	attestation Attestor,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:      health,
		anchors:     anchors,
		batches:     batches,
		verifier:    verifier,
		registry:    registry,
		attestation: attestation,
		logger:      logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON читает тело запроса в dst с ограничением размера.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

// paginationDefaults нормализует параметры пагинации.
func paginationDefaults(limit *int, offset *int) (int, int) {
	l := service.DefaultRegistryLimit
	o := 0

	if limit != nil {
		l = *limit
		if l < 1 {
			l = 1
		}
		if l > service.MaxRegistryLimit {
			l = service.MaxRegistryLimit
		}
	}

	if offset != nil {
		o = *offset
		if o < 0 {
			o = 0
		}
	}

	return l, o
}

// writeServiceError отображает ошибку сервисного слоя в ответ API.
// Неожиданные ошибки логируются, клиенту уходит только описание операции.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrUnauthenticated):
		apierrors.Unauthorized(w, err.Error())
	case errors.Is(err, service.ErrForbidden), errors.Is(err, service.ErrNoTenant):
		apierrors.Forbidden(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "Якорь не найден")
	case errors.Is(err, service.ErrAlreadyTerminal):
		apierrors.AlreadyTerminal(w, err.Error())
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	default:
		h.logger.Error(op, slog.String("error", err.Error()))
		apierrors.InternalError(w, op)
	}
}
