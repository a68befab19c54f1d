// batches.go — обработчик POST /api/v1/batches.
// Пакетная идемпотентная регистрация для администратора организации.
// Ошибки предусловий отдаются в формате результата пакета, а не в общем формате ошибок.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/bigkaa/anchorvault/internal/api/middleware"
	"github.com/bigkaa/anchorvault/internal/domain/model"
	"github.com/bigkaa/anchorvault/internal/service"
)

type batchRequest struct {
	BatchID string `json:"batch_id"`
	Rows    []struct {
		Email string `json:"email"`
	} `json:"rows"`
}

// RunBatch — POST /api/v1/batches.
func (h *APIHandler) RunBatch(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	if actor == nil {
		writeJSON(w, http.StatusUnauthorized, batchFailure(service.ErrUnauthenticated.Error()))
		return
	}

	var req batchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, batchFailure("некорректный JSON: "+err.Error()))
		return
	}

	rows := make([]model.BatchRow, 0, len(req.Rows))
	for _, row := range req.Rows {
		rows = append(rows, model.BatchRow{Email: row.Email})
	}

	res, err := h.batches.RunBatch(r.Context(), actor, req.BatchID, rows)
	if err != nil {
		status := http.StatusInternalServerError
		msg := "ошибка выполнения пакета"
		switch {
		case errors.Is(err, service.ErrUnauthenticated):
			status, msg = http.StatusUnauthorized, err.Error()
		case errors.Is(err, service.ErrForbidden), errors.Is(err, service.ErrNoTenant):
			status, msg = http.StatusForbidden, err.Error()
		case errors.Is(err, service.ErrValidation):
			status, msg = http.StatusBadRequest, err.Error()
		default:
			h.logger.Error("Ошибка выполнения пакета", slog.String("error", err.Error()))
		}
		writeJSON(w, status, batchFailure(msg))
		return
	}

	writeJSON(w, http.StatusOK, toBatchResultDTO(res))
}
