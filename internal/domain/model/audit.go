package model

import "time"

// Коды действий журнала аудита.
const (
	ActionAnchorRevoked       = "ANCHOR_REVOKED"
	ActionBulkVerificationRun = "BULK_VERIFICATION_RUN"
	ActionAnchorAttested      = "ANCHOR_ATTESTED"
)

// TargetAnchors — имя таблицы-цели для событий над якорями.
const TargetAnchors = "anchors"

// AuditEvent — неизменяемая запись журнала аудита.
// Хранится в таблице audit_events (только INSERT).
type AuditEvent struct {
	// ID — порядковый номер (задаётся БД)
	ID int64
	// ActorID — кто выполнил действие
	ActorID string
	// ActorRole — роль актора на момент действия
	ActorRole string
	// Action — код действия (ANCHOR_REVOKED, BULK_VERIFICATION_RUN, ...)
	Action string
	// TargetTable — таблица, над которой выполнено действие
	TargetTable string
	// TargetID — идентификатор цели (nil для пакетных событий)
	TargetID *string
	// TenantID — организация
	TenantID *string
	// Details — дополнительные сведения (сериализуются в JSONB)
	Details map[string]any
	// OccurredAt — время события (задаётся БД)
	OccurredAt time.Time
}
