package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/anchorvault/internal/api/middleware"
	"github.com/bigkaa/anchorvault/internal/domain/model"
	"github.com/bigkaa/anchorvault/internal/domain/rbac"
	"github.com/bigkaa/anchorvault/internal/service"
)

// --- Моки сервисов ---

type mockAnchors struct {
	createFn func(ctx context.Context, actor *model.Actor, in service.CreateAnchorInput) (*model.Anchor, error)
	reviseFn func(ctx context.Context, actor *model.Actor, id string, target model.AnchorStatus) (*model.Anchor, error)
	getFn    func(ctx context.Context, actor *model.Actor, id string) (*model.Anchor, error)
	listFn   func(ctx context.Context, actor *model.Actor, limit, offset int) ([]*model.Anchor, int, error)
}

func (m *mockAnchors) CreateAnchor(ctx context.Context, actor *model.Actor, in service.CreateAnchorInput) (*model.Anchor, error) {
	return m.createFn(ctx, actor, in)
}

func (m *mockAnchors) ReviseStatus(ctx context.Context, actor *model.Actor, id string, target model.AnchorStatus) (*model.Anchor, error) {
	return m.reviseFn(ctx, actor, id, target)
}

func (m *mockAnchors) GetAnchor(ctx context.Context, actor *model.Actor, id string) (*model.Anchor, error) {
	return m.getFn(ctx, actor, id)
}

func (m *mockAnchors) ListOwned(ctx context.Context, actor *model.Actor, limit, offset int) ([]*model.Anchor, int, error) {
	return m.listFn(ctx, actor, limit, offset)
}

type mockBatches struct {
	runFn func(ctx context.Context, actor *model.Actor, batchID string, rows []model.BatchRow) (*model.BatchResult, error)
}

func (m *mockBatches) RunBatch(ctx context.Context, actor *model.Actor, batchID string, rows []model.BatchRow) (*model.BatchResult, error) {
	return m.runFn(ctx, actor, batchID, rows)
}

type mockResolver struct {
	resolveFn func(ctx context.Context, publicID string) (*model.VerificationView, error)
}

func (m *mockResolver) Resolve(ctx context.Context, publicID string) (*model.VerificationView, error) {
	return m.resolveFn(ctx, publicID)
}

type mockRegistry struct {
	listFn   func(ctx context.Context, actor *model.Actor, q service.RegistryQuery) (*service.RegistryPage, error)
	exportFn func(ctx context.Context, actor *model.Actor, q service.RegistryQuery, w io.Writer) (int, error)
}

func (m *mockRegistry) List(ctx context.Context, actor *model.Actor, q service.RegistryQuery) (*service.RegistryPage, error) {
	return m.listFn(ctx, actor, q)
}

func (m *mockRegistry) ExportCSV(ctx context.Context, actor *model.Actor, q service.RegistryQuery, w io.Writer) (int, error) {
	return m.exportFn(ctx, actor, q, w)
}

type mockAttestor struct {
	recordFn func(ctx context.Context, actor *model.Actor, id string, att model.Attestation) (*model.Anchor, error)
}

func (m *mockAttestor) Record(ctx context.Context, actor *model.Actor, id string, att model.Attestation) (*model.Anchor, error) {
	return m.recordFn(ctx, actor, id, att)
}

type mockChecker struct {
	status, message string
}

func (c mockChecker) CheckReady() (string, string) {
	return c.status, c.message
}

// --- Вспомогательные функции ---

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// testDeps — моки сервисов; nil-поля заменяются пустыми моками.
type testDeps struct {
	anchors  *mockAnchors
	batches  *mockBatches
	resolver *mockResolver
	registry *mockRegistry
	attestor *mockAttestor
}

func newTestRouter(d testDeps) http.Handler {
	if d.anchors == nil {
		d.anchors = &mockAnchors{}
	}
	if d.batches == nil {
		d.batches = &mockBatches{}
	}
	if d.resolver == nil {
		d.resolver = &mockResolver{}
	}
	if d.registry == nil {
		d.registry = &mockRegistry{}
	}
	if d.attestor == nil {
		d.attestor = &mockAttestor{}
	}
	h := NewAPIHandler(
		NewHealthHandler(mockChecker{status: "ok"}, mockChecker{status: "ok"}),
		d.anchors, d.batches, d.resolver, d.registry, d.attestor,
		testLogger(),
	)

	r := chi.NewRouter()
	r.Get("/api/v1/verify/{public_id}", h.VerifyAnchor)
	r.Post("/api/v1/anchors", h.CreateAnchor)
	r.Get("/api/v1/anchors", h.ListAnchors)
	r.Get("/api/v1/anchors/{id}", h.GetAnchor)
	r.Post("/api/v1/anchors/{id}/revoke", h.RevokeAnchor)
	r.Post("/api/v1/anchors/{id}/attestation", h.RecordAttestation)
	r.Post("/api/v1/batches", h.RunBatch)
	r.Get("/api/v1/registry", h.ListRegistry)
	r.Get("/api/v1/registry/export", h.ExportRegistry)
	return r
}

func orgAdminClaims(tenant string) *middleware.AuthClaims {
	return &middleware.AuthClaims{
		Subject:       "admin-1",
		SubjectType:   middleware.SubjectTypeUser,
		TenantID:      tenant,
		EffectiveRole: rbac.RoleOrgAdmin,
	}
}

func individualClaims(sub string) *middleware.AuthClaims {
	return &middleware.AuthClaims{
		Subject:       sub,
		SubjectType:   middleware.SubjectTypeUser,
		EffectiveRole: rbac.RoleIndividual,
	}
}

// doRequest выполняет запрос через роутер; claims == nil — анонимный запрос.
func doRequest(t *testing.T, h http.Handler, method, target, body string, claims *middleware.AuthClaims) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if claims != nil {
		req = req.WithContext(middleware.WithClaims(req.Context(), claims))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}
