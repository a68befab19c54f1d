// anchors.go — обработчики /api/v1/anchors endpoints.
// Создание, список собственных, получение и отзыв якорей.
package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/anchorvault/internal/api/errors"
	"github.com/bigkaa/anchorvault/internal/api/middleware"
	"github.com/bigkaa/anchorvault/internal/domain/model"
	"github.com/bigkaa/anchorvault/internal/service"
)

// CreateAnchor — POST /api/v1/anchors.
// Доступ: любой аутентифицированный пользователь.
func (h *APIHandler) CreateAnchor(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	if actor == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims")
		return
	}

	var in service.CreateAnchorInput
	if err := decodeJSON(w, r, &in); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	a, err := h.anchors.CreateAnchor(r.Context(), actor, in)
	if err != nil {
		h.writeServiceError(w, "Ошибка создания якоря", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAnchorDTO(a))
}

// ListAnchors — GET /api/v1/anchors.
// Якоря, созданные вызывающим.
func (h *APIHandler) ListAnchors(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	if actor == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims")
		return
	}

	var limitParam, offsetParam *int
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limitParam); err != nil {
		apierrors.ValidationError(w, "Некорректный параметр limit")
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "offset", r.URL.Query(), &offsetParam); err != nil {
		apierrors.ValidationError(w, "Некорректный параметр offset")
		return
	}
	limit, offset := paginationDefaults(limitParam, offsetParam)

	items, total, err := h.anchors.ListOwned(r.Context(), actor, limit, offset)
	if err != nil {
		h.writeServiceError(w, "Ошибка получения списка якорей", err)
		return
	}
	writeJSON(w, http.StatusOK, toAnchorListDTO(items, total, limit, offset))
}

// GetAnchor — GET /api/v1/anchors/{id}.
// Видимость: владелец или администратор организации якоря; иначе 404.
func (h *APIHandler) GetAnchor(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	if actor == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims")
		return
	}
	id, ok := anchorIDParam(w, r)
	if !ok {
		return
	}

	a, err := h.anchors.GetAnchor(r.Context(), actor, id)
	if err != nil {
		h.writeServiceError(w, "Ошибка получения якоря", err)
		return
	}
	writeJSON(w, http.StatusOK, toAnchorDTO(a))
}

// RevokeAnchor — POST /api/v1/anchors/{id}/revoke.
// Доступ: ORG_ADMIN организации якоря.
func (h *APIHandler) RevokeAnchor(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	if actor == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims")
		return
	}
	id, ok := anchorIDParam(w, r)
	if !ok {
		return
	}

	a, err := h.anchors.ReviseStatus(r.Context(), actor, id, model.StatusRevoked)
	if err != nil {
		if errors.Is(err, service.ErrAuditEmission) && a != nil {
			// Статус уже изменён: отвечаем успехом с предупреждением
			resp := toAnchorDTO(a)
			resp.AuditError = err.Error()
			writeJSON(w, http.StatusOK, resp)
			return
		}
		h.writeServiceError(w, "Ошибка отзыва якоря", err)
		return
	}
	writeJSON(w, http.StatusOK, toAnchorDTO(a))
}

// anchorIDParam извлекает идентификатор якоря из пути.
// Формат не проверяется: некорректный идентификатор даёт 404 в сервисе.
func anchorIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	var id string
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{
			ParamLocation: runtime.ParamLocationPath,
			Explode:       false,
			Required:      true,
		})
	if err != nil {
		apierrors.ValidationError(w, "Некорректный параметр id")
		return "", false
	}
	return id, true
}
