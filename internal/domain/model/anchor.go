package model

import "time"

// AnchorStatus — статус якоря в жизненном цикле.
type AnchorStatus string

const (
	// StatusPending — якорь создан пользователем и ожидает подтверждения
	StatusPending AnchorStatus = "PENDING"
	// StatusSecured — якорь подтверждён (пакетная регистрация или аттестация)
	StatusSecured AnchorStatus = "SECURED"
	// StatusRevoked — якорь отозван, терминальный статус
	StatusRevoked AnchorStatus = "REVOKED"
)

// DefaultRetentionPolicy — политика хранения по умолчанию.
const DefaultRetentionPolicy = "STANDARD"

// MaxSizeBytes — максимальный размер документа (5 GiB).
const MaxSizeBytes int64 = 5 * 1024 * 1024 * 1024

// Anchor — зарегистрированный отпечаток документа или идентичности.
// Хранится в таблице anchors.
type Anchor struct {
	// ID — UUID записи
	ID string
	// PublicID — неугадываемый идентификатор для публичной верификации (32 hex)
	PublicID string
	// OwnerID — идентификатор создателя (sub из JWT)
	OwnerID string
	// TenantID — организация-владелец (nil для личных якорей)
	TenantID *string
	// Fingerprint — SHA-256 отпечаток в нижнем регистре (64 hex)
	Fingerprint string
	// DisplayName — отображаемое имя, без персональных данных
	DisplayName string
	// SizeBytes — размер документа в байтах
	SizeBytes int64
	// MediaType — MIME-тип (type/subtype)
	MediaType string
	// Status — текущий статус
	Status AnchorStatus
	// Jurisdiction — код региона (опционально, например US-CA)
	Jurisdiction *string
	// RetentionPolicy — политика хранения
	RetentionPolicy string
	// RetainUntil — срок хранения (опционально)
	RetainUntil *time.Time
	// LegalHold — запрет удаления по юридическим причинам
	LegalHold bool
	// DeletedAt — время мягкого удаления
	DeletedAt *time.Time
	// Attestation — внешняя аттестация в распределённом реестре (опционально)
	Attestation *Attestation
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// Attestation — подтверждение записи якоря во внешнем реестре.
type Attestation struct {
	// ReceiptID — идентификатор транзакции/квитанции
	ReceiptID string
	// ObservedAt — время наблюдения записи в реестре
	ObservedAt time.Time
	// Ordinal — порядковая позиция (высота блока)
	Ordinal int64
	// Network — имя сети
	Network string
}

// InTenant проверяет принадлежность якоря организации.
func (a *Anchor) InTenant(tenantID string) bool {
	return a.TenantID != nil && *a.TenantID == tenantID
}

// AnchorEventType — тип события жизненного цикла якоря.
type AnchorEventType string

const (
	EventCreated  AnchorEventType = "CREATED"
	EventSecured  AnchorEventType = "SECURED"
	EventAttested AnchorEventType = "ATTESTED"
	EventRevoked  AnchorEventType = "REVOKED"
)

// AnchorEvent — запись хронологии жизненного цикла якоря.
// Хранится в таблице anchor_events.
type AnchorEvent struct {
	ID         int64
	AnchorID   string
	EventType  AnchorEventType
	ActorID    *string
	OccurredAt time.Time
}
