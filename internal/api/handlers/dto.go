// dto.go — JSON-представления ответов API.
package handlers

import (
	"time"

	"github.com/bigkaa/anchorvault/internal/domain/model"
)

type attestationDTO struct {
	ReceiptID  string    `json:"receipt_id"`
	ObservedAt time.Time `json:"observed_at"`
	Ordinal    int64     `json:"ordinal"`
	Network    string    `json:"network"`
}

type anchorDTO struct {
	ID              string          `json:"id"`
	PublicID        string          `json:"public_id"`
	Fingerprint     string          `json:"fingerprint"`
	DisplayName     string          `json:"display_name"`
	SizeBytes       int64           `json:"size_bytes"`
	MediaType       string          `json:"media_type"`
	Status          string          `json:"status"`
	TenantID        *string         `json:"tenant_id"`
	Jurisdiction    *string         `json:"jurisdiction"`
	RetentionPolicy string          `json:"retention_policy"`
	Attestation     *attestationDTO `json:"attestation,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	// AuditError — событие аудита не записано, изменение при этом сохранено
	AuditError string `json:"audit_error,omitempty"`
}

type anchorListDTO struct {
	Items   []anchorDTO `json:"items"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
}

type timelineDTO struct {
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
}

type verificationDTO struct {
	Found        bool            `json:"found"`
	PublicID     string          `json:"public_id,omitempty"`
	Headline     string          `json:"headline,omitempty"`
	Status       string          `json:"status,omitempty"`
	Fingerprint  string          `json:"fingerprint,omitempty"`
	DisplayName  string          `json:"display_name,omitempty"`
	CreatedAt    *time.Time      `json:"created_at,omitempty"`
	Jurisdiction *string         `json:"jurisdiction,omitempty"`
	Attestation  *attestationDTO `json:"attestation,omitempty"`
	Timeline     []timelineDTO   `json:"timeline,omitempty"`
}

type batchRowDTO struct {
	Email    string  `json:"email"`
	Status   string  `json:"status"`
	AnchorID *string `json:"anchor_id,omitempty"`
	Error    string  `json:"error,omitempty"`
}

type batchResultDTO struct {
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
	BatchID    string        `json:"batch_id,omitempty"`
	Processed  int           `json:"processed"`
	Skipped    int           `json:"skipped"`
	Errors     int           `json:"errors"`
	Truncated  bool          `json:"truncated,omitempty"`
	AuditError string        `json:"audit_error,omitempty"`
	Rows       []batchRowDTO `json:"rows"`
}

func toAttestationDTO(a *model.Attestation) *attestationDTO {
	if a == nil {
		return nil
	}
	return &attestationDTO{
		ReceiptID:  a.ReceiptID,
		ObservedAt: a.ObservedAt.UTC(),
		Ordinal:    a.Ordinal,
		Network:    a.Network,
	}
}

func toAnchorDTO(a *model.Anchor) anchorDTO {
	return anchorDTO{
		ID:              a.ID,
		PublicID:        a.PublicID,
		Fingerprint:     a.Fingerprint,
		DisplayName:     a.DisplayName,
		SizeBytes:       a.SizeBytes,
		MediaType:       a.MediaType,
		Status:          string(a.Status),
		TenantID:        a.TenantID,
		Jurisdiction:    a.Jurisdiction,
		RetentionPolicy: a.RetentionPolicy,
		Attestation:     toAttestationDTO(a.Attestation),
		CreatedAt:       a.CreatedAt.UTC(),
		UpdatedAt:       a.UpdatedAt.UTC(),
	}
}

func toAnchorListDTO(items []*model.Anchor, total, limit, offset int) anchorListDTO {
	out := anchorListDTO{
		Items:   make([]anchorDTO, 0, len(items)),
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+len(items) < total,
	}
	for _, a := range items {
		out.Items = append(out.Items, toAnchorDTO(a))
	}
	return out
}

// toVerificationDTO строит публичный ответ. Идентификаторы владельца
// и организации в проекцию не попадают.
func toVerificationDTO(v *model.VerificationView) verificationDTO {
	if v == nil || !v.Found {
		return verificationDTO{Found: false}
	}
	created := v.CreatedAt.UTC()
	out := verificationDTO{
		Found:        true,
		PublicID:     v.PublicID,
		Headline:     v.Headline,
		Status:       string(v.Status),
		Fingerprint:  v.Fingerprint,
		DisplayName:  v.DisplayName,
		CreatedAt:    &created,
		Jurisdiction: v.Jurisdiction,
		Attestation:  toAttestationDTO(v.Attestation),
		Timeline:     make([]timelineDTO, 0, len(v.Timeline)),
	}
	for _, e := range v.Timeline {
		out.Timeline = append(out.Timeline, timelineDTO{
			EventType:  string(e.EventType),
			OccurredAt: e.OccurredAt.UTC(),
		})
	}
	return out
}

func toBatchResultDTO(res *model.BatchResult) batchResultDTO {
	out := batchResultDTO{
		Success:    res.Success,
		BatchID:    res.BatchID,
		Processed:  res.Processed,
		Skipped:    res.Skipped,
		Errors:     res.Errors,
		Truncated:  res.Truncated,
		AuditError: res.AuditError,
		Rows:       make([]batchRowDTO, 0, len(res.Rows)),
	}
	for _, row := range res.Rows {
		out.Rows = append(out.Rows, batchRowDTO{
			Email:    row.Email,
			Status:   string(row.Status),
			AnchorID: row.AnchorID,
			Error:    row.Error,
		})
	}
	return out
}

// batchFailure — ответ пакета, отклонённого до обработки строк.
func batchFailure(msg string) batchResultDTO {
	return batchResultDTO{Success: false, Error: msg, Rows: []batchRowDTO{}}
}
