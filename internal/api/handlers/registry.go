// registry.go — обработчики /api/v1/registry endpoints.
// Реестр якорей организации и его выгрузка в CSV.
package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/anchorvault/internal/api/errors"
	"github.com/bigkaa/anchorvault/internal/api/middleware"
	"github.com/bigkaa/anchorvault/internal/service"
)

// ListRegistry — GET /api/v1/registry.
// Доступ: ORG_ADMIN, только якоря своей организации.
func (h *APIHandler) ListRegistry(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	if actor == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims")
		return
	}

	q, ok := registryQueryParams(w, r)
	if !ok {
		return
	}

	page, err := h.registry.List(r.Context(), actor, q)
	if err != nil {
		h.writeServiceError(w, "Ошибка получения реестра", err)
		return
	}
	writeJSON(w, http.StatusOK, toAnchorListDTO(page.Items, page.Total, page.Limit, page.Offset))
}

// ExportRegistry — GET /api/v1/registry/export.
// Выгрузка в CSV потоком; заголовки ответа отправляются с первой записью,
// поэтому ошибки прав и фильтров ещё отдаются в формате JSON.
func (h *APIHandler) ExportRegistry(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	if actor == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims")
		return
	}

	q, ok := registryQueryParams(w, r)
	if !ok {
		return
	}

	filename := fmt.Sprintf("registry-%s.csv", time.Now().UTC().Format("20060102"))
	cw := &csvResponseWriter{w: w, filename: filename}

	rows, err := h.registry.ExportCSV(r.Context(), actor, q, cw)
	if err != nil {
		if !cw.started {
			h.writeServiceError(w, "Ошибка выгрузки реестра", err)
			return
		}
		// Часть ответа уже отправлена, статус изменить нельзя
		h.logger.Error("Выгрузка реестра прервана",
			slog.Int("rows", rows),
			slog.String("error", err.Error()),
		)
		return
	}
	if !cw.started {
		cw.writeHeader()
	}
}

// registryQueryParams читает фильтры реестра из query string.
func registryQueryParams(w http.ResponseWriter, r *http.Request) (service.RegistryQuery, bool) {
	var (
		q                 service.RegistryQuery
		limit, offset     *int
		status, search    *string
		sortBy, sortOrder *string
	)
	params := []struct {
		name string
		dest any
	}{
		{"status", &status},
		{"search", &search},
		{"sort_by", &sortBy},
		{"sort_order", &sortOrder},
		{"limit", &limit},
		{"offset", &offset},
	}
	for _, p := range params {
		if err := runtime.BindQueryParameter("form", true, false, p.name, r.URL.Query(), p.dest); err != nil {
			apierrors.ValidationError(w, "Некорректный параметр "+p.name)
			return q, false
		}
	}

	q.Limit, q.Offset = paginationDefaults(limit, offset)
	if status != nil {
		q.Status = *status
	}
	if search != nil {
		q.Search = *search
	}
	if sortBy != nil {
		q.SortBy = *sortBy
	}
	if sortOrder != nil {
		q.SortOrder = *sortOrder
	}
	return q, true
}

// csvResponseWriter откладывает отправку заголовков до первой записи.
type csvResponseWriter struct {
	w        http.ResponseWriter
	filename string
	started  bool
}

func (c *csvResponseWriter) writeHeader() {
	c.started = true
	c.w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	c.w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", c.filename))
	c.w.WriteHeader(http.StatusOK)
}

func (c *csvResponseWriter) Write(p []byte) (int, error) {
	if !c.started {
		c.writeHeader()
	}
	return c.w.Write(p)
}
