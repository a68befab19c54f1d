package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bigkaa/anchorvault/internal/domain/model"
	"github.com/bigkaa/anchorvault/internal/domain/rbac"
	"github.com/bigkaa/anchorvault/internal/repository"
)

// --- In-memory хранилище якорей ---

// memAnchorRepo — AnchorRepository в памяти с хуками для внедрения сбоев.
// Повторяет ограничения уникальности схемы: (tenant_id, fingerprint)
// для якорей организации и (owner_id, fingerprint) для личных.
type memAnchorRepo struct {
	mu      sync.Mutex
	anchors map[string]*model.Anchor
	events  map[string][]model.AnchorEvent
	seq     int64
	clock   time.Time

	// findFn — если задан и вернул не nil, FindByFingerprint возвращает эту ошибку
	findFn func(tenantID, fp string) error
	// beforeInsertFn — вызывается перед проверкой уникальности (без блокировки)
	beforeInsertFn func(a *model.Anchor) error
	// listFn — если задан и вернул не nil, List возвращает эту ошибку
	listFn func(filter repository.RegistryFilter) error
}

func newMemAnchorRepo() *memAnchorRepo {
	return &memAnchorRepo{
		anchors: make(map[string]*model.Anchor),
		events:  make(map[string][]model.AnchorEvent),
		clock:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

// tick возвращает монотонно растущее время для стабильной сортировки.
func (m *memAnchorRepo) tick() time.Time {
	m.clock = m.clock.Add(time.Millisecond)
	return m.clock
}

func (m *memAnchorRepo) appendEvent(anchorID string, t model.AnchorEventType, actorID string) {
	m.seq++
	actor := actorID
	m.events[anchorID] = append(m.events[anchorID], model.AnchorEvent{
		ID:         m.seq,
		AnchorID:   anchorID,
		EventType:  t,
		ActorID:    &actor,
		OccurredAt: m.tick(),
	})
}

func (m *memAnchorRepo) Insert(_ context.Context, a *model.Anchor) error {
	if m.beforeInsertFn != nil {
		if err := m.beforeInsertFn(a); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.anchors {
		if existing.Fingerprint != a.Fingerprint {
			continue
		}
		if a.TenantID != nil && existing.TenantID != nil && *existing.TenantID == *a.TenantID {
			return repository.ErrConflict
		}
		if a.TenantID == nil && existing.TenantID == nil && existing.OwnerID == a.OwnerID {
			return repository.ErrConflict
		}
	}

	now := m.tick()
	a.CreatedAt = now
	a.UpdatedAt = now
	stored := *a
	m.anchors[a.ID] = &stored

	m.appendEvent(a.ID, model.EventCreated, a.OwnerID)
	if a.Status == model.StatusSecured {
		m.appendEvent(a.ID, model.EventSecured, a.OwnerID)
	}
	return nil
}

func (m *memAnchorRepo) FindByFingerprint(_ context.Context, tenantID, fp string) (*model.Anchor, error) {
	if m.findFn != nil {
		if err := m.findFn(tenantID, fp); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.anchors {
		if a.Fingerprint == fp && a.InTenant(tenantID) {
			c := *a
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memAnchorRepo) GetByID(_ context.Context, id string) (*model.Anchor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.anchors[id]
	if !ok || a.DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	c := *a
	return &c, nil
}

func (m *memAnchorRepo) GetByPublicID(_ context.Context, publicID string) (*model.Anchor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.anchors {
		if a.PublicID == publicID && a.DeletedAt == nil {
			c := *a
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memAnchorRepo) UpdateStatus(_ context.Context, id, tenantID string, status model.AnchorStatus, actorID string) (*model.Anchor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.anchors[id]
	if !ok || a.DeletedAt != nil || !a.InTenant(tenantID) {
		return nil, repository.ErrNotFound
	}
	if a.Status == model.StatusRevoked {
		return nil, repository.ErrTerminal
	}
	a.Status = status
	a.UpdatedAt = m.tick()
	if status == model.StatusRevoked {
		m.appendEvent(id, model.EventRevoked, actorID)
	}
	c := *a
	return &c, nil
}

func (m *memAnchorRepo) ApplyAttestation(_ context.Context, id string, att model.Attestation, actorID string) (*model.Anchor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.anchors[id]
	if !ok || a.DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	if a.Attestation != nil || a.Status == model.StatusRevoked {
		return nil, repository.ErrConflict
	}
	prev := a.Status
	stored := att
	a.Attestation = &stored
	a.Status = model.StatusSecured
	a.UpdatedAt = m.tick()
	m.appendEvent(id, model.EventAttested, actorID)
	if prev == model.StatusPending {
		m.appendEvent(id, model.EventSecured, actorID)
	}
	c := *a
	return &c, nil
}

func (m *memAnchorRepo) ListEvents(_ context.Context, anchorID string) ([]model.AnchorEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]model.AnchorEvent(nil), m.events[anchorID]...), nil
}

func (m *memAnchorRepo) filtered(filter repository.RegistryFilter) []*model.Anchor {
	var out []*model.Anchor
	for _, a := range m.anchors {
		if a.DeletedAt != nil {
			continue
		}
		if filter.TenantID != nil && !a.InTenant(*filter.TenantID) {
			continue
		}
		if filter.OwnerID != nil && a.OwnerID != *filter.OwnerID {
			continue
		}
		if filter.Status != nil && a.Status != *filter.Status {
			continue
		}
		c := *a
		out = append(out, &c)
	}
	// Новые первыми, id вторым ключом
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (m *memAnchorRepo) List(_ context.Context, filter repository.RegistryFilter) ([]*model.Anchor, error) {
	if m.listFn != nil {
		if err := m.listFn(filter); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.filtered(filter)
	if filter.Offset >= len(all) {
		return nil, nil
	}
	end := len(all)
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	return all[filter.Offset:end], nil
}

func (m *memAnchorRepo) Count(_ context.Context, filter repository.RegistryFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.filtered(filter)), nil
}

// count возвращает общее количество сохранённых якорей.
func (m *memAnchorRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.anchors)
}

// --- Mock журнала аудита ---

// mockAuditSink — AuditSink, запоминающий события.
type mockAuditSink struct {
	mu       sync.Mutex
	events   []*model.AuditEvent
	appendFn func(ctx context.Context, e *model.AuditEvent) error
}

func (m *mockAuditSink) Append(ctx context.Context, e *model.AuditEvent) error {
	if m.appendFn != nil {
		if err := m.appendFn(ctx, e); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *mockAuditSink) recorded() []*model.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.AuditEvent(nil), m.events...)
}

var errStoreDown = errors.New("хранилище недоступно")

// --- Акторы ---

func orgAdmin(id, tenant string) *model.Actor {
	return &model.Actor{ID: id, Role: rbac.RoleOrgAdmin, TenantID: &tenant}
}

func individual(id string) *model.Actor {
	return &model.Actor{ID: id, Role: rbac.RoleIndividual}
}

func attestor(scopes ...string) *model.Actor {
	return &model.Actor{ID: "sa-observer", Role: rbac.RoleIndividual, ServiceAccount: true, Scopes: scopes}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
