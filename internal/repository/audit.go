package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/anchorvault/internal/domain/model"
)

// AuditRepository — журнал аудита, только добавление.
// Путей изменения и удаления записей нет; таблица дополнительно
// защищена триггером.
type AuditRepository interface {
	// Append добавляет событие аудита. ID и OccurredAt заполняются из БД.
	Append(ctx context.Context, e *model.AuditEvent) error
}

// auditRepo — реализация AuditRepository через pgx.
type auditRepo struct {
	db DBTX
}

// NewAuditRepository создаёт репозиторий журнала аудита.
func NewAuditRepository(db DBTX) AuditRepository {
	return &auditRepo{db: db}
}

func (r *auditRepo) Append(ctx context.Context, e *model.AuditEvent) error {
	query := `
		INSERT INTO audit_events (actor_id, actor_role, action, target_table, target_id, tenant_id, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, occurred_at`

	var details any
	if len(e.Details) > 0 {
		details = e.Details
	}

	err := r.db.QueryRow(ctx, query,
		e.ActorID, e.ActorRole, e.Action, e.TargetTable, e.TargetID, e.TenantID, details,
	).Scan(&e.ID, &e.OccurredAt)
	if err != nil {
		return fmt.Errorf("ошибка записи события аудита: %w", err)
	}
	return nil
}
