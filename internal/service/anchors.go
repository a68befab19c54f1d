// anchors.go — менеджер жизненного цикла якоря.
// Создание, отзыв, чтение с учётом видимости и публичная проекция.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/bigkaa/anchorvault/internal/domain/lifecycle"
	"github.com/bigkaa/anchorvault/internal/domain/model"
	"github.com/bigkaa/anchorvault/internal/domain/rbac"
	"github.com/bigkaa/anchorvault/internal/domain/validate"
	"github.com/bigkaa/anchorvault/internal/repository"
)

var publicIDRe = regexp.MustCompile(`^[0-9a-f]{32}$`)

// CreateAnchorInput — данные для создания одного якоря.
type CreateAnchorInput struct {
	Fingerprint     string  `json:"fingerprint" validate:"required,sha256hex"`
	DisplayName     string  `json:"display_name" validate:"required,min=1,max=255,nopii"`
	SizeBytes       int64   `json:"size_bytes" validate:"gt=0,lte=5368709120"`
	MediaType       string  `json:"media_type" validate:"required,max=127,mediatype"`
	Jurisdiction    *string `json:"jurisdiction" validate:"omitempty,jurisdiction"`
	RetentionPolicy string  `json:"retention_policy" validate:"max=64"`
}

// AnchorService — менеджер жизненного цикла якоря.
type AnchorService struct {
	anchors   repository.AnchorRepository
	audit     AuditSink
	validator *validate.Validator
	cache     *VerificationCache
	logger    *slog.Logger
}

// NewAnchorService создаёт менеджер жизненного цикла.
// cache может быть nil — тогда инвалидация не выполняется.
func NewAnchorService(
	anchors repository.AnchorRepository,
	audit AuditSink,
	validator *validate.Validator,
	cache *VerificationCache,
	logger *slog.Logger,
) *AnchorService {
	return &AnchorService{
		anchors:   anchors,
		audit:     audit,
		validator: validator,
		cache:     cache,
		logger:    logger.With(slog.String("component", "anchor_service")),
	}
}

// CreateAnchor создаёт якорь в статусе PENDING от имени актора.
// Организация якоря — организация актора (если есть).
func (s *AnchorService) CreateAnchor(ctx context.Context, actor *model.Actor, in CreateAnchorInput) (*model.Anchor, error) {
	if actor == nil || actor.ID == "" {
		return nil, ErrUnauthenticated
	}

	in.Fingerprint = strings.ToLower(strings.TrimSpace(in.Fingerprint))
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	in.MediaType = strings.TrimSpace(in.MediaType)
	in.RetentionPolicy = strings.TrimSpace(in.RetentionPolicy)
	if in.RetentionPolicy == "" {
		in.RetentionPolicy = model.DefaultRetentionPolicy
	}

	if err := s.validator.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}

	a := &model.Anchor{
		ID:              uuid.NewString(),
		PublicID:        newPublicID(),
		OwnerID:         actor.ID,
		TenantID:        tenantOf(actor),
		Fingerprint:     in.Fingerprint,
		DisplayName:     in.DisplayName,
		SizeBytes:       in.SizeBytes,
		MediaType:       in.MediaType,
		Status:          lifecycle.InitialStatus(lifecycle.OriginSingle),
		Jurisdiction:    in.Jurisdiction,
		RetentionPolicy: in.RetentionPolicy,
	}

	if err := s.anchors.Insert(ctx, a); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: документ с таким отпечатком уже зарегистрирован", ErrConflict)
		}
		return nil, fmt.Errorf("создание якоря: %w", err)
	}

	s.logger.Info("Якорь создан",
		slog.String("anchor_id", a.ID),
		slog.String("owner_id", a.OwnerID),
		slog.String("status", string(a.Status)),
	)
	return a, nil
}

// CreateSecured создаёт якорь организации актора сразу в статусе SECURED.
// Путь пакетной регистрации: метка формируется движком и не содержит
// исходного ключа строки. Конфликт уникальности → ErrConflict.
func (s *AnchorService) CreateSecured(ctx context.Context, actor *model.Actor, fp, label string) (*model.Anchor, error) {
	if !actor.HasTenant() {
		return nil, ErrNoTenant
	}
	if !validate.IsSHA256Hex(fp) {
		return nil, fmt.Errorf("%w: некорректный отпечаток", ErrValidation)
	}

	a := &model.Anchor{
		ID:              uuid.NewString(),
		PublicID:        newPublicID(),
		OwnerID:         actor.ID,
		TenantID:        tenantOf(actor),
		Fingerprint:     fp,
		DisplayName:     label,
		SizeBytes:       1,
		MediaType:       "application/octet-stream",
		Status:          lifecycle.InitialStatus(lifecycle.OriginBatch),
		RetentionPolicy: model.DefaultRetentionPolicy,
	}

	if err := s.anchors.Insert(ctx, a); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("создание якоря: %w", err)
	}
	return a, nil
}

// ReviseStatus меняет статус якоря организации актора.
// Допустим только переход PENDING|SECURED → REVOKED. При успехе записывает
// одно событие ANCHOR_REVOKED; ошибка аудита возвращается как ErrAuditEmission
// вместе с обновлённым якорем, изменение статуса не откатывается.
func (s *AnchorService) ReviseStatus(ctx context.Context, actor *model.Actor, anchorID string, target model.AnchorStatus) (*model.Anchor, error) {
	if actor == nil || actor.ID == "" {
		return nil, ErrUnauthenticated
	}
	if !rbac.CanRevoke(actor.Role) {
		return nil, fmt.Errorf("%w: требуется роль %s", ErrForbidden, rbac.RoleOrgAdmin)
	}
	if !actor.HasTenant() {
		return nil, ErrNoTenant
	}
	if target != model.StatusRevoked {
		return nil, fmt.Errorf("%w: допускается только переход в %s", ErrValidation, model.StatusRevoked)
	}
	if _, err := uuid.Parse(anchorID); err != nil {
		return nil, ErrNotFound
	}

	current, err := s.anchors.GetByID(ctx, anchorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение якоря: %w", err)
	}
	tenant := actor.Tenant()
	if !current.InTenant(tenant) {
		return nil, fmt.Errorf("%w: якорь принадлежит другой организации", ErrForbidden)
	}
	if err := lifecycle.Check(current.Status, target); err != nil {
		var te *lifecycle.TransitionError
		if errors.As(err, &te) && te.Code == lifecycle.CodeAlreadyTerminal {
			return nil, ErrAlreadyTerminal
		}
		return nil, fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}

	updated, err := s.anchors.UpdateStatus(ctx, anchorID, tenant, target, actor.ID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrTerminal):
			return nil, ErrAlreadyTerminal
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrNotFound
		case errors.Is(err, repository.ErrConflict):
			return nil, fmt.Errorf("%w: %s", ErrConflict, err.Error())
		}
		return nil, fmt.Errorf("обновление статуса якоря: %w", err)
	}

	s.cache.Invalidate(updated.PublicID)

	s.logger.Info("Якорь отозван",
		slog.String("anchor_id", anchorID),
		slog.String("tenant_id", tenant),
		slog.String("actor_id", actor.ID),
		slog.String("from", string(current.Status)),
	)

	targetID := anchorID
	event := &model.AuditEvent{
		ActorID:     actor.ID,
		ActorRole:   actor.Role,
		Action:      model.ActionAnchorRevoked,
		TargetTable: model.TargetAnchors,
		TargetID:    &targetID,
		TenantID:    &tenant,
		Details: map[string]any{
			"from": string(current.Status),
			"to":   string(target),
		},
	}
	if err := emitAudit(ctx, s.audit, event); err != nil {
		s.logger.Error("Не удалось записать аудит отзыва якоря",
			slog.String("anchor_id", anchorID),
			slog.String("error", err.Error()),
		)
		return updated, fmt.Errorf("%w: %v", ErrAuditEmission, err)
	}

	return updated, nil
}

// GetAnchor возвращает якорь, если он виден актору: владельцу или
// администратору организации якоря. Иначе — ErrNotFound.
func (s *AnchorService) GetAnchor(ctx context.Context, actor *model.Actor, anchorID string) (*model.Anchor, error) {
	if actor == nil || actor.ID == "" {
		return nil, ErrUnauthenticated
	}
	if _, err := uuid.Parse(anchorID); err != nil {
		return nil, ErrNotFound
	}

	a, err := s.anchors.GetByID(ctx, anchorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение якоря: %w", err)
	}
	if !canView(actor, a) {
		return nil, ErrNotFound
	}
	return a, nil
}

// ListOwned возвращает якоря, созданные актором, и их общее количество.
func (s *AnchorService) ListOwned(ctx context.Context, actor *model.Actor, limit, offset int) ([]*model.Anchor, int, error) {
	if actor == nil || actor.ID == "" {
		return nil, 0, ErrUnauthenticated
	}

	owner := actor.ID
	filter := repository.RegistryFilter{OwnerID: &owner, Limit: limit, Offset: offset}

	items, err := s.anchors.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("получение списка якорей: %w", err)
	}
	total, err := s.anchors.Count(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("подсчёт якорей: %w", err)
	}
	return items, total, nil
}

// ReadForVerification возвращает публичную проекцию якоря без аутентификации.
// Некорректный, неизвестный или удалённый идентификатор даёт Found=false,
// а не ошибку. Ошибка возвращается только при сбое хранилища.
func (s *AnchorService) ReadForVerification(ctx context.Context, publicID string) (*model.VerificationView, error) {
	publicID = NormalizePublicID(publicID)
	if !publicIDRe.MatchString(publicID) {
		return &model.VerificationView{Found: false}, nil
	}

	a, err := s.anchors.GetByPublicID(ctx, publicID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &model.VerificationView{Found: false}, nil
		}
		return nil, fmt.Errorf("получение якоря для верификации: %w", err)
	}

	events, err := s.anchors.ListEvents(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("получение хронологии якоря: %w", err)
	}

	timeline := make([]model.TimelineEntry, 0, len(events))
	for _, e := range events {
		timeline = append(timeline, model.TimelineEntry{EventType: e.EventType, OccurredAt: e.OccurredAt})
	}

	return &model.VerificationView{
		Found:        true,
		PublicID:     a.PublicID,
		Headline:     lifecycle.Headline(a.Status),
		Status:       a.Status,
		Fingerprint:  a.Fingerprint,
		DisplayName:  a.DisplayName,
		CreatedAt:    a.CreatedAt,
		Jurisdiction: a.Jurisdiction,
		Attestation:  a.Attestation,
		Timeline:     timeline,
	}, nil
}

// NormalizePublicID приводит публичный идентификатор к канонической форме.
func NormalizePublicID(publicID string) string {
	return strings.ToLower(strings.TrimSpace(publicID))
}

// canView — правило видимости якоря: владелец или ORG_ADMIN его организации.
func canView(actor *model.Actor, a *model.Anchor) bool {
	if a.OwnerID == actor.ID {
		return true
	}
	return actor.Role == rbac.RoleOrgAdmin && actor.HasTenant() && a.InTenant(actor.Tenant())
}

// tenantOf возвращает копию идентификатора организации актора.
func tenantOf(actor *model.Actor) *string {
	if !actor.HasTenant() {
		return nil
	}
	t := actor.Tenant()
	return &t
}

// newPublicID генерирует неугадываемый публичный идентификатор (32 hex).
func newPublicID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
