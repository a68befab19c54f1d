package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	apierrors "github.com/bigkaa/anchorvault/internal/api/errors"
	"github.com/bigkaa/anchorvault/internal/domain/model"
	"github.com/bigkaa/anchorvault/internal/service"
)

func TestListRegistry_PassesFilters(t *testing.T) {
	var got service.RegistryQuery
	registry := &mockRegistry{
		listFn: func(_ context.Context, actor *model.Actor, q service.RegistryQuery) (*service.RegistryPage, error) {
			if actor.Tenant() != "org-1" {
				t.Errorf("tenant = %q, ожидалась org-1", actor.Tenant())
			}
			got = q
			return &service.RegistryPage{Items: []*model.Anchor{sampleAnchor()}, Total: 1, Limit: q.Limit, Offset: q.Offset}, nil
		},
	}
	router := newTestRouter(testDeps{registry: registry})
	rec := doRequest(t, router, http.MethodGet,
		"/api/v1/registry?status=secured&search=%D0%B4%D0%BE%D0%B3&sort_by=display_name&sort_order=asc&limit=5&offset=10",
		"", orgAdminClaims("org-1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200 (%s)", rec.Code, rec.Body.String())
	}
	want := service.RegistryQuery{Status: "secured", Search: "дог", SortBy: "display_name", SortOrder: "asc", Limit: 5, Offset: 10}
	if got != want {
		t.Errorf("запрос = %+v, ожидался %+v", got, want)
	}

	var resp anchorListDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("разбор ответа: %v", err)
	}
	if resp.Total != 1 || resp.HasMore {
		t.Errorf("ответ = %+v", resp)
	}
}

func TestListRegistry_EmptyItemsArray(t *testing.T) {
	registry := &mockRegistry{
		listFn: func(context.Context, *model.Actor, service.RegistryQuery) (*service.RegistryPage, error) {
			return &service.RegistryPage{Items: []*model.Anchor{}, Limit: 50}, nil
		},
	}
	router := newTestRouter(testDeps{registry: registry})
	rec := doRequest(t, router, http.MethodGet, "/api/v1/registry", "", orgAdminClaims("org-1"))

	if !strings.Contains(rec.Body.String(), `"items":[]`) {
		t.Errorf("тело = %s, ожидался пустой массив items", rec.Body.String())
	}
}

func TestExportRegistry_StreamsCSV(t *testing.T) {
	registry := &mockRegistry{
		exportFn: func(_ context.Context, _ *model.Actor, _ service.RegistryQuery, w io.Writer) (int, error) {
			_, _ = io.WriteString(w, "anchor_id,display_name,fingerprint,status,created_at_utc\r\n")
			_, _ = io.WriteString(w, testAnchorID+",Договор,ab,PENDING,2026-03-01T12:00:00.000Z\r\n")
			return 1, nil
		},
	}
	router := newTestRouter(testDeps{registry: registry})
	rec := doRequest(t, router, http.MethodGet, "/api/v1/registry/export", "", orgAdminClaims("org-1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	cd := rec.Header().Get("Content-Disposition")
	if !strings.HasPrefix(cd, `attachment; filename="registry-`) || !strings.HasSuffix(cd, `.csv"`) {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !strings.HasPrefix(rec.Body.String(), "anchor_id,display_name") {
		t.Errorf("тело = %q", rec.Body.String())
	}
}

func TestExportRegistry_ForbiddenIsJSON(t *testing.T) {
	registry := &mockRegistry{
		exportFn: func(context.Context, *model.Actor, service.RegistryQuery, io.Writer) (int, error) {
			return 0, fmt.Errorf("%w: требуется роль ORG_ADMIN", service.ErrForbidden)
		},
	}
	router := newTestRouter(testDeps{registry: registry})
	rec := doRequest(t, router, http.MethodGet, "/api/v1/registry/export", "", individualClaims("user-1"))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("статус = %d, ожидался 403", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, ожидался application/json", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != "" {
		t.Errorf("Content-Disposition = %q, ожидался пустой", cd)
	}
	if code, _ := decodeError(t, rec.Body.Bytes()); code != apierrors.CodeForbidden {
		t.Errorf("code = %q, ожидался FORBIDDEN", code)
	}
}

func TestExportRegistry_EmptyExportStillCSV(t *testing.T) {
	registry := &mockRegistry{
		exportFn: func(context.Context, *model.Actor, service.RegistryQuery, io.Writer) (int, error) {
			return 0, nil
		},
	}
	router := newTestRouter(testDeps{registry: registry})
	rec := doRequest(t, router, http.MethodGet, "/api/v1/registry/export", "", orgAdminClaims("org-1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestRegistry_BadQueryParam(t *testing.T) {
	router := newTestRouter(testDeps{})
	rec := doRequest(t, router, http.MethodGet, "/api/v1/registry?offset=x", "", orgAdminClaims("org-1"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("статус = %d, ожидался 400", rec.Code)
	}
}
