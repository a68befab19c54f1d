package model

import "time"

// Заголовки публичной верификации.
const (
	HeadlineVerified = "verified"
	HeadlinePending  = "pending"
	HeadlineRevoked  = "revoked"
)

// VerificationView — редуцированная публичная проекция якоря.
// Не содержит идентификаторов владельца и организации.
type VerificationView struct {
	// Found — false для неизвестных, некорректных и удалённых идентификаторов
	Found        bool
	PublicID     string
	Headline     string
	Status       AnchorStatus
	Fingerprint  string
	DisplayName  string
	CreatedAt    time.Time
	Jurisdiction *string
	Attestation  *Attestation
	Timeline     []TimelineEntry
}

// TimelineEntry — событие хронологии без идентификатора актора.
type TimelineEntry struct {
	EventType  AnchorEventType
	OccurredAt time.Time
}
