// batch.go — идемпотентный движок пакетной регистрации якорей.
//
// Строки обрабатываются последовательно, порядок результатов совпадает
// с порядком входа. Отпечаток строки = SHA-256("<batchID>:<ключ>"), поиск
// существующего якоря ограничен организацией актора. Нарушение уникальности
// при вставке трактуется как "skipped". После цикла записывается ровно одно
// событие аудита BULK_VERIFICATION_RUN, даже если все строки завершились ошибкой.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/anchorvault/internal/domain/model"
	"github.com/bigkaa/anchorvault/internal/domain/rbac"
	"github.com/bigkaa/anchorvault/internal/domain/validate"
	"github.com/bigkaa/anchorvault/internal/fingerprint"
	"github.com/bigkaa/anchorvault/internal/repository"
)

// Ограничения идентификатора пакета.
const (
	MinBatchIDLength = 4
	MaxBatchIDLength = 128
)

// Сообщения об ошибках строк пакета.
const (
	rowErrEmailRequired = "email обязателен"
	rowErrEmailInvalid  = "некорректный email"
	rowErrStore         = "ошибка хранилища, строку можно повторить"
	rowErrNotAttempted  = "не обработана: истёк срок выполнения пакета"
)

// Prometheus-метрики пакетной регистрации.
var (
	batchRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "an_batch_runs_total",
		Help: "Общее количество выполненных пакетов.",
	})
	batchRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "an_batch_rows_total",
		Help: "Количество строк пакетов по исходу обработки.",
	}, []string{"status"})
	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "an_batch_duration_seconds",
		Help:    "Длительность выполнения пакета.",
		Buckets: prometheus.DefBuckets,
	})
	batchAuditFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "an_batch_audit_failures_total",
		Help: "Количество пакетов, для которых не удалось записать аудит.",
	})
)

// SecuredCreator — создание якоря в статусе SECURED (AnchorService).
type SecuredCreator interface {
	CreateSecured(ctx context.Context, actor *model.Actor, fp, label string) (*model.Anchor, error)
}

// BatchService — движок пакетной регистрации.
type BatchService struct {
	anchors   repository.AnchorRepository
	creator   SecuredCreator
	audit     AuditSink
	validator *validate.Validator
	maxRows   int
	timeout   time.Duration
	logger    *slog.Logger
}

// NewBatchService создаёт движок пакетной регистрации.
// timeout = 0 — пакет выполняется без дедлайна.
func NewBatchService(
	anchors repository.AnchorRepository,
	creator SecuredCreator,
	audit AuditSink,
	validator *validate.Validator,
	maxRows int,
	timeout time.Duration,
	logger *slog.Logger,
) *BatchService {
	return &BatchService{
		anchors:   anchors,
		creator:   creator,
		audit:     audit,
		validator: validator,
		maxRows:   maxRows,
		timeout:   timeout,
		logger:    logger.With(slog.String("component", "batch_service")),
	}
}

// RunBatch регистрирует строки пакета как якоря организации актора.
//
// Ошибки предусловий (без побочных эффектов и без аудита):
//   - ErrUnauthenticated — актор не аутентифицирован
//   - ErrForbidden — роль не позволяет пакетную регистрацию
//   - ErrNoTenant — актор не привязан к организации
//   - ErrValidation — некорректный batchID или слишком много строк
//
// После начала обработки ошибки строк изолированы и отражаются в результате.
// Ошибка записи аудита возвращается в BatchResult.AuditError.
func (s *BatchService) RunBatch(ctx context.Context, actor *model.Actor, batchID string, rows []model.BatchRow) (*model.BatchResult, error) {
	if actor == nil || actor.ID == "" {
		return nil, ErrUnauthenticated
	}
	if !rbac.CanSubmitBatch(actor.Role) {
		return nil, fmt.Errorf("%w: требуется роль %s", ErrForbidden, rbac.RoleOrgAdmin)
	}
	if !actor.HasTenant() {
		return nil, ErrNoTenant
	}
	if err := validateBatchID(batchID); err != nil {
		return nil, err
	}
	if s.maxRows > 0 && len(rows) > s.maxRows {
		return nil, fmt.Errorf("%w: пакет содержит %d строк, максимум %d", ErrValidation, len(rows), s.maxRows)
	}

	start := time.Now()
	batchRunsTotal.Inc()
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	tenant := actor.Tenant()
	label := BatchLabel(batchID)
	result := &model.BatchResult{
		BatchID: batchID,
		Success: true,
		Rows:    make([]model.BatchRowResult, 0, len(rows)),
	}

	for i, row := range rows {
		if runCtx.Err() != nil {
			// Оставшиеся строки не запускаются, но попадают в результат
			for _, rest := range rows[i:] {
				result.Rows = append(result.Rows, model.BatchRowResult{
					Email:  fingerprint.Normalize(rest.Email),
					Status: model.RowError,
					Error:  rowErrNotAttempted,
				})
			}
			result.Truncated = true
			break
		}
		result.Rows = append(result.Rows, s.processRow(runCtx, actor, tenant, batchID, label, row))
	}

	for _, r := range result.Rows {
		switch r.Status {
		case model.RowProcessed:
			result.Processed++
		case model.RowSkipped:
			result.Skipped++
		case model.RowError:
			result.Errors++
		}
		batchRowsTotal.WithLabelValues(string(r.Status)).Inc()
	}

	// Ровно одно событие аудита на пакет, независимо от исходов строк
	event := &model.AuditEvent{
		ActorID:     actor.ID,
		ActorRole:   actor.Role,
		Action:      model.ActionBulkVerificationRun,
		TargetTable: model.TargetAnchors,
		TargetID:    nil,
		TenantID:    &tenant,
		Details: map[string]any{
			"batch_id":  batchID,
			"rows":      len(rows),
			"processed": result.Processed,
			"skipped":   result.Skipped,
			"errors":    result.Errors,
			"truncated": result.Truncated,
		},
	}
	if err := emitAudit(ctx, s.audit, event); err != nil {
		batchAuditFailuresTotal.Inc()
		result.AuditError = err.Error()
		s.logger.Error("Не удалось записать аудит пакета",
			slog.String("batch_id", batchID),
			slog.String("tenant_id", tenant),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("Пакет обработан",
		slog.String("batch_id", batchID),
		slog.String("tenant_id", tenant),
		slog.String("actor_id", actor.ID),
		slog.Int("rows", len(rows)),
		slog.Int("processed", result.Processed),
		slog.Int("skipped", result.Skipped),
		slog.Int("errors", result.Errors),
		slog.Bool("truncated", result.Truncated),
		slog.Duration("duration", time.Since(start)),
	)

	return result, nil
}

// processRow обрабатывает одну строку: проверка ключа, поиск по отпечатку
// в организации, создание якоря. Любая ошибка изолирована в строке.
func (s *BatchService) processRow(ctx context.Context, actor *model.Actor, tenant, batchID, label string, row model.BatchRow) model.BatchRowResult {
	email := fingerprint.Normalize(row.Email)
	res := model.BatchRowResult{Email: email}

	if email == "" {
		res.Status = model.RowError
		res.Error = rowErrEmailRequired
		return res
	}
	if err := s.validator.Email(email); err != nil {
		res.Status = model.RowError
		res.Error = rowErrEmailInvalid
		return res
	}

	fp := fingerprint.IdempotencyKey(batchID, email)

	existing, err := s.anchors.FindByFingerprint(ctx, tenant, fp)
	switch {
	case err == nil:
		return skipped(res, existing.ID)
	case !errors.Is(err, repository.ErrNotFound):
		return s.storeFailure(res, batchID, err)
	}

	created, err := s.creator.CreateSecured(ctx, actor, fp, label)
	if err != nil {
		if !errors.Is(err, ErrConflict) {
			return s.storeFailure(res, batchID, err)
		}
		// Конкурентная вставка того же отпечатка: якорь уже есть
		existing, lookupErr := s.anchors.FindByFingerprint(ctx, tenant, fp)
		if lookupErr != nil {
			return s.storeFailure(res, batchID, lookupErr)
		}
		return skipped(res, existing.ID)
	}

	id := created.ID
	res.Status = model.RowProcessed
	res.AnchorID = &id
	return res
}

func (s *BatchService) storeFailure(res model.BatchRowResult, batchID string, err error) model.BatchRowResult {
	s.logger.Warn("Ошибка обработки строки пакета",
		slog.String("batch_id", batchID),
		slog.String("error", err.Error()),
	)
	res.Status = model.RowError
	res.Error = rowErrStore
	return res
}

func skipped(res model.BatchRowResult, anchorID string) model.BatchRowResult {
	res.Status = model.RowSkipped
	res.AnchorID = &anchorID
	return res
}

// BatchLabel формирует отображаемое имя якоря пакета только из batchID.
func BatchLabel(batchID string) string {
	prefix := batchID
	if utf8.RuneCountInString(prefix) > 8 {
		prefix = string([]rune(prefix)[:8])
	}
	return "bulk-" + prefix + "-entry"
}

// validateBatchID проверяет форму идентификатора пакета.
// batchID — только пространство имён идемпотентности, не секрет.
// Значение не нормализуется: отпечаток строится от batchID как есть.
func validateBatchID(batchID string) error {
	n := utf8.RuneCountInString(batchID)
	if n < MinBatchIDLength || n > MaxBatchIDLength {
		return fmt.Errorf("%w: batch_id должен содержать от %d до %d символов",
			ErrValidation, MinBatchIDLength, MaxBatchIDLength)
	}
	if strings.TrimSpace(batchID) == "" {
		return fmt.Errorf("%w: batch_id не может состоять из пробелов", ErrValidation)
	}
	for _, r := range batchID {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: batch_id содержит управляющие символы", ErrValidation)
		}
	}
	// batchID попадает в отображаемое имя якоря
	if validate.ContainsPII(batchID) || validate.ContainsPII(BatchLabel(batchID)) {
		return fmt.Errorf("%w: batch_id не должен содержать персональные данные", ErrValidation)
	}
	return nil
}
