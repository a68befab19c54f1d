// attestation.go — обработчик POST /api/v1/anchors/{id}/attestation.
// Запись внешней аттестации сервисным аккаунтом.
package handlers

import (
	"errors"
	"net/http"
	"time"

	apierrors "github.com/bigkaa/anchorvault/internal/api/errors"
	"github.com/bigkaa/anchorvault/internal/api/middleware"
	"github.com/bigkaa/anchorvault/internal/domain/model"
	"github.com/bigkaa/anchorvault/internal/service"
)

type attestationRequest struct {
	ReceiptID  string    `json:"receipt_id"`
	ObservedAt time.Time `json:"observed_at"`
	Ordinal    int64     `json:"ordinal"`
	Network    string    `json:"network"`
}

// RecordAttestation — POST /api/v1/anchors/{id}/attestation.
// Доступ: SA с scope attestations:write.
func (h *APIHandler) RecordAttestation(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	if actor == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims")
		return
	}
	id, ok := anchorIDParam(w, r)
	if !ok {
		return
	}

	var req attestationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	a, err := h.attestation.Record(r.Context(), actor, id, model.Attestation{
		ReceiptID:  req.ReceiptID,
		ObservedAt: req.ObservedAt,
		Ordinal:    req.Ordinal,
		Network:    req.Network,
	})
	if err != nil {
		if errors.Is(err, service.ErrAuditEmission) && a != nil {
			resp := toAnchorDTO(a)
			resp.AuditError = err.Error()
			writeJSON(w, http.StatusOK, resp)
			return
		}
		h.writeServiceError(w, "Ошибка записи аттестации", err)
		return
	}
	writeJSON(w, http.StatusOK, toAnchorDTO(a))
}
