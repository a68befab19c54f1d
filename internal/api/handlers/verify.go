// verify.go — публичная верификация GET /api/v1/verify/{public_id}.
// Без аутентификации. Отдаёт редуцированную проекцию якоря.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/anchorvault/internal/api/errors"
)

// cacheControlVerified — публичные ответы можно кэшировать недолго.
const cacheControlVerified = "public, max-age=30"

// VerifyAnchor — GET /api/v1/verify/{public_id}.
// Неизвестный идентификатор → 404 с телом {"found": false}.
func (h *APIHandler) VerifyAnchor(w http.ResponseWriter, r *http.Request) {
	var publicID string
	err := runtime.BindStyledParameterWithOptions("simple", "public_id", chi.URLParam(r, "public_id"), &publicID,
		runtime.BindStyledParameterOptions{
			ParamLocation: runtime.ParamLocationPath,
			Explode:       false,
			Required:      true,
		})
	if err != nil {
		apierrors.ValidationError(w, "Некорректный параметр public_id")
		return
	}

	view, err := h.verifier.Resolve(r.Context(), publicID)
	if err != nil {
		h.writeServiceError(w, "Ошибка верификации", err)
		return
	}

	if !view.Found {
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusNotFound, toVerificationDTO(view))
		return
	}
	w.Header().Set("Cache-Control", cacheControlVerified)
	writeJSON(w, http.StatusOK, toVerificationDTO(view))
}
