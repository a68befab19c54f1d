// attestation.go — приём внешних аттестаций якорей.
// Аттестацию записывает сервисный аккаунт внешнего наблюдателя;
// для статуса SECURED она не обязательна.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/bigkaa/anchorvault/internal/domain/model"
	"github.com/bigkaa/anchorvault/internal/repository"
)

// ScopeAttestationsWrite — scope сервисного аккаунта для записи аттестаций.
const ScopeAttestationsWrite = "attestations:write"

// AttestationService — приём внешних аттестаций.
type AttestationService struct {
	anchors repository.AnchorRepository
	audit   AuditSink
	cache   *VerificationCache
	logger  *slog.Logger
}

// NewAttestationService создаёт сервис аттестаций.
func NewAttestationService(
	anchors repository.AnchorRepository,
	audit AuditSink,
	cache *VerificationCache,
	logger *slog.Logger,
) *AttestationService {
	return &AttestationService{
		anchors: anchors,
		audit:   audit,
		cache:   cache,
		logger:  logger.With(slog.String("component", "attestation_service")),
	}
}

// Record записывает аттестацию якоря и переводит PENDING → SECURED.
// Повторная запись той же квитанции — no-op, другая квитанция → ErrConflict,
// отозванный якорь → ErrAlreadyTerminal.
func (s *AttestationService) Record(ctx context.Context, actor *model.Actor, anchorID string, att model.Attestation) (*model.Anchor, error) {
	if actor == nil || actor.ID == "" {
		return nil, ErrUnauthenticated
	}
	if !actor.ServiceAccount || !actor.HasScope(ScopeAttestationsWrite) {
		return nil, fmt.Errorf("%w: требуется scope %s", ErrForbidden, ScopeAttestationsWrite)
	}

	att.ReceiptID = strings.TrimSpace(att.ReceiptID)
	att.Network = strings.TrimSpace(att.Network)
	switch {
	case att.ReceiptID == "":
		return nil, fmt.Errorf("%w: receipt_id обязателен", ErrValidation)
	case len(att.ReceiptID) > 255:
		return nil, fmt.Errorf("%w: receipt_id длиннее 255 символов", ErrValidation)
	case att.Network == "":
		return nil, fmt.Errorf("%w: network обязателен", ErrValidation)
	case att.Ordinal < 0:
		return nil, fmt.Errorf("%w: ordinal не может быть отрицательным", ErrValidation)
	case att.ObservedAt.IsZero():
		return nil, fmt.Errorf("%w: observed_at обязателен", ErrValidation)
	}
	att.ObservedAt = att.ObservedAt.UTC()

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

	if current.Status == model.StatusRevoked {
		return nil, ErrAlreadyTerminal
	}
	if current.Attestation != nil {
		if current.Attestation.ReceiptID == att.ReceiptID {
			return current, nil
		}
		return nil, fmt.Errorf("%w: якорь уже аттестован другой квитанцией", ErrConflict)
	}

	updated, err := s.anchors.ApplyAttestation(ctx, anchorID, att, actor.ID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrNotFound
		case errors.Is(err, repository.ErrConflict):
			return nil, fmt.Errorf("%w: аттестация изменена конкурентно", ErrConflict)
		}
		return nil, fmt.Errorf("запись аттестации: %w", err)
	}

	s.cache.Invalidate(updated.PublicID)

	s.logger.Info("Аттестация записана",
		slog.String("anchor_id", anchorID),
		slog.String("receipt_id", att.ReceiptID),
		slog.String("network", att.Network),
		slog.Int64("ordinal", att.Ordinal),
	)

	targetID := anchorID
	event := &model.AuditEvent{
		ActorID:     actor.ID,
		ActorRole:   "SERVICE_ACCOUNT",
		Action:      model.ActionAnchorAttested,
		TargetTable: model.TargetAnchors,
		TargetID:    &targetID,
		TenantID:    updated.TenantID,
		Details: map[string]any{
			"receipt_id": att.ReceiptID,
			"network":    att.Network,
			"ordinal":    att.Ordinal,
		},
	}
	if err := emitAudit(ctx, s.audit, event); err != nil {
		s.logger.Error("Не удалось записать аудит аттестации",
			slog.String("anchor_id", anchorID),
			slog.String("error", err.Error()),
		)
		return updated, fmt.Errorf("%w: %v", ErrAuditEmission, err)
	}
	return updated, nil
}
