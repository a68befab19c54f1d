package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/anchorvault/internal/domain/model"
	"github.com/bigkaa/anchorvault/internal/domain/validate"
)

const testDigest = "da70b8d4f32100ec2e37995a43cf49ab3ff78f63a88760ba04eea99217b748b1"

func newAnchorFixture() (*AnchorService, *memAnchorRepo, *mockAuditSink, *VerificationCache) {
	repo := newMemAnchorRepo()
	audit := &mockAuditSink{}
	cache := NewVerificationCache(100, time.Minute)
	return NewAnchorService(repo, audit, validate.New(), cache, discardLogger()), repo, audit, cache
}

func validInput() CreateAnchorInput {
	return CreateAnchorInput{
		Fingerprint: testDigest,
		DisplayName: "Договор поставки 2026",
		SizeBytes:   2048,
		MediaType:   "application/pdf",
	}
}

// --- CreateAnchor ---

func TestCreateAnchor_Success(t *testing.T) {
	svc, _, _, _ := newAnchorFixture()

	in := validInput()
	in.Fingerprint = strings.ToUpper(testDigest)
	a, err := svc.CreateAnchor(context.Background(), orgAdmin("user-1", "tenant-a"), in)
	if err != nil {
		t.Fatalf("CreateAnchor ошибка: %v", err)
	}
	if a.Status != model.StatusPending {
		t.Errorf("Status = %s, ожидался PENDING", a.Status)
	}
	if a.Fingerprint != testDigest {
		t.Errorf("Fingerprint = %s, ожидался в нижнем регистре", a.Fingerprint)
	}
	if a.TenantID == nil || *a.TenantID != "tenant-a" {
		t.Error("TenantID должен совпадать с организацией актора")
	}
	if a.OwnerID != "user-1" {
		t.Errorf("OwnerID = %s, ожидался user-1", a.OwnerID)
	}
	if !publicIDRe.MatchString(a.PublicID) {
		t.Errorf("PublicID = %q, ожидалось 32 hex", a.PublicID)
	}
	if a.RetentionPolicy != model.DefaultRetentionPolicy {
		t.Errorf("RetentionPolicy = %q, ожидался %q", a.RetentionPolicy, model.DefaultRetentionPolicy)
	}
}

func TestCreateAnchor_PersonalWithoutTenant(t *testing.T) {
	svc, _, _, _ := newAnchorFixture()

	a, err := svc.CreateAnchor(context.Background(), individual("user-1"), validInput())
	if err != nil {
		t.Fatalf("CreateAnchor ошибка: %v", err)
	}
	if a.TenantID != nil {
		t.Errorf("TenantID = %v, ожидался nil", *a.TenantID)
	}
}

func TestCreateAnchor_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *CreateAnchorInput)
	}{
		{"email в имени", func(in *CreateAnchorInput) { in.DisplayName = "jane@corp.example" }},
		{"email среди слов", func(in *CreateAnchorInput) { in.DisplayName = "паспорт jane@corp.example" }},
		{"номер документа", func(in *CreateAnchorInput) { in.DisplayName = "123-45-6789" }},
		{"пустое имя", func(in *CreateAnchorInput) { in.DisplayName = "   " }},
		{"длинное имя", func(in *CreateAnchorInput) { in.DisplayName = strings.Repeat("я", 256) }},
		{"короткий отпечаток", func(in *CreateAnchorInput) { in.Fingerprint = "abc" }},
		{"отпечаток не hex", func(in *CreateAnchorInput) { in.Fingerprint = strings.Repeat("z", 64) }},
		{"нулевой размер", func(in *CreateAnchorInput) { in.SizeBytes = 0 }},
		{"больше 5 GiB", func(in *CreateAnchorInput) { in.SizeBytes = model.MaxSizeBytes + 1 }},
		{"некорректный MIME", func(in *CreateAnchorInput) { in.MediaType = "pdf" }},
		{"некорректная юрисдикция", func(in *CreateAnchorInput) {
			j := "russia"
			in.Jurisdiction = &j
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _, _ := newAnchorFixture()
			in := validInput()
			tt.mutate(&in)

			_, err := svc.CreateAnchor(context.Background(), individual("user-1"), in)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("ошибка = %v, ожидалась ErrValidation", err)
			}
			if repo.count() != 0 {
				t.Error("при ошибке валидации якорь не должен создаваться")
			}
		})
	}
}

func TestCreateAnchor_Duplicate(t *testing.T) {
	svc, _, _, _ := newAnchorFixture()
	actor := orgAdmin("user-1", "tenant-a")

	if _, err := svc.CreateAnchor(context.Background(), actor, validInput()); err != nil {
		t.Fatalf("первый CreateAnchor ошибка: %v", err)
	}
	_, err := svc.CreateAnchor(context.Background(), orgAdmin("user-2", "tenant-a"), validInput())
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("ошибка = %v, ожидалась ErrConflict", err)
	}

	// Другая организация может зарегистрировать тот же отпечаток
	if _, err := svc.CreateAnchor(context.Background(), orgAdmin("user-3", "tenant-b"), validInput()); err != nil {
		t.Fatalf("CreateAnchor в другой организации ошибка: %v", err)
	}
}

func TestCreateAnchor_Unauthenticated(t *testing.T) {
	svc, _, _, _ := newAnchorFixture()
	if _, err := svc.CreateAnchor(context.Background(), nil, validInput()); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("ошибка = %v, ожидалась ErrUnauthenticated", err)
	}
}

// --- ReviseStatus ---

// seedAnchor создаёт якорь организации напрямую в хранилище.
func seedAnchor(t *testing.T, svc *AnchorService, tenant string) *model.Anchor {
	t.Helper()
	a, err := svc.CreateAnchor(context.Background(), orgAdmin("owner-1", tenant), validInput())
	if err != nil {
		t.Fatalf("seedAnchor: %v", err)
	}
	return a
}

func TestReviseStatus_Revoke(t *testing.T) {
	svc, repo, audit, cache := newAnchorFixture()
	a := seedAnchor(t, svc, "tenant-a")
	cache.Set(a.PublicID, &model.VerificationView{Found: true, Status: model.StatusPending})

	updated, err := svc.ReviseStatus(context.Background(), orgAdmin("admin-1", "tenant-a"), a.ID, model.StatusRevoked)
	if err != nil {
		t.Fatalf("ReviseStatus ошибка: %v", err)
	}
	if updated.Status != model.StatusRevoked {
		t.Errorf("Status = %s, ожидался REVOKED", updated.Status)
	}
	if _, ok := cache.Get(a.PublicID); ok {
		t.Error("публичная проекция должна быть удалена из кэша")
	}

	events := audit.recorded()
	if len(events) != 1 {
		t.Fatalf("событий аудита = %d, ожидалось 1", len(events))
	}
	e := events[0]
	if e.Action != model.ActionAnchorRevoked || e.TargetID == nil || *e.TargetID != a.ID {
		t.Errorf("некорректное событие аудита: %+v", e)
	}
	if e.ActorID != "admin-1" || e.TenantID == nil || *e.TenantID != "tenant-a" {
		t.Errorf("некорректный актор/организация в аудите: %+v", e)
	}

	timeline, _ := repo.ListEvents(context.Background(), a.ID)
	if last := timeline[len(timeline)-1]; last.EventType != model.EventRevoked {
		t.Errorf("последнее событие = %s, ожидалось REVOKED", last.EventType)
	}
}

func TestReviseStatus_AlreadyRevoked(t *testing.T) {
	svc, repo, audit, _ := newAnchorFixture()
	a := seedAnchor(t, svc, "tenant-a")
	admin := orgAdmin("admin-1", "tenant-a")

	if _, err := svc.ReviseStatus(context.Background(), admin, a.ID, model.StatusRevoked); err != nil {
		t.Fatalf("первый ReviseStatus ошибка: %v", err)
	}
	_, err := svc.ReviseStatus(context.Background(), admin, a.ID, model.StatusRevoked)
	if !errors.Is(err, ErrAlreadyTerminal) {
		t.Fatalf("ошибка = %v, ожидалась ErrAlreadyTerminal", err)
	}
	stored, _ := repo.GetByID(context.Background(), a.ID)
	if stored.Status != model.StatusRevoked {
		t.Errorf("Status = %s, ожидался REVOKED", stored.Status)
	}
	if n := len(audit.recorded()); n != 1 {
		t.Errorf("событий аудита = %d, ожидалось 1", n)
	}
}

func TestReviseStatus_Denied(t *testing.T) {
	tests := []struct {
		name    string
		actor   *model.Actor
		id      func(a *model.Anchor) string
		target  model.AnchorStatus
		wantErr error
	}{
		{"не аутентифицирован", nil, anchorID, model.StatusRevoked, ErrUnauthenticated},
		{"роль INDIVIDUAL", individual("owner-1"), anchorID, model.StatusRevoked, ErrForbidden},
		{"нет организации", &model.Actor{ID: "admin-1", Role: "ORG_ADMIN"}, anchorID, model.StatusRevoked, ErrNoTenant},
		{"чужая организация", orgAdmin("admin-b", "tenant-b"), anchorID, model.StatusRevoked, ErrForbidden},
		{"переход в SECURED", orgAdmin("admin-1", "tenant-a"), anchorID, model.StatusSecured, ErrValidation},
		{"не UUID", orgAdmin("admin-1", "tenant-a"), func(*model.Anchor) string { return "not-a-uuid" }, model.StatusRevoked, ErrNotFound},
		{"неизвестный якорь", orgAdmin("admin-1", "tenant-a"), func(*model.Anchor) string {
			return "00000000-0000-4000-8000-000000000000"
		}, model.StatusRevoked, ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, audit, _ := newAnchorFixture()
			a := seedAnchor(t, svc, "tenant-a")

			_, err := svc.ReviseStatus(context.Background(), tt.actor, tt.id(a), tt.target)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ошибка = %v, ожидалась %v", err, tt.wantErr)
			}
			stored, _ := repo.GetByID(context.Background(), a.ID)
			if stored.Status != model.StatusPending {
				t.Errorf("Status = %s, статус не должен меняться", stored.Status)
			}
			if n := len(audit.recorded()); n != 0 {
				t.Errorf("событий аудита = %d, ожидалось 0", n)
			}
		})
	}
}

func anchorID(a *model.Anchor) string { return a.ID }

func TestReviseStatus_AuditFailure(t *testing.T) {
	svc, repo, audit, _ := newAnchorFixture()
	a := seedAnchor(t, svc, "tenant-a")
	audit.appendFn = func(_ context.Context, _ *model.AuditEvent) error {
		return errors.New("журнал недоступен")
	}

	updated, err := svc.ReviseStatus(context.Background(), orgAdmin("admin-1", "tenant-a"), a.ID, model.StatusRevoked)
	if !errors.Is(err, ErrAuditEmission) {
		t.Fatalf("ошибка = %v, ожидалась ErrAuditEmission", err)
	}
	if updated == nil || updated.Status != model.StatusRevoked {
		t.Error("обновлённый якорь должен возвращаться вместе с ошибкой аудита")
	}
	stored, _ := repo.GetByID(context.Background(), a.ID)
	if stored.Status != model.StatusRevoked {
		t.Error("изменение статуса не должно откатываться")
	}
}

// TestReviseStatus_AuditOutlivesRequest проверяет запись аудита после отмены запроса.
func TestReviseStatus_AuditOutlivesRequest(t *testing.T) {
	svc, _, audit, _ := newAnchorFixture()
	a := seedAnchor(t, svc, "tenant-a")

	ctx, cancel := context.WithCancel(context.Background())
	audit.appendFn = func(auditCtx context.Context, _ *model.AuditEvent) error {
		cancel()
		return auditCtx.Err()
	}

	if _, err := svc.ReviseStatus(ctx, orgAdmin("admin-1", "tenant-a"), a.ID, model.StatusRevoked); err != nil {
		t.Fatalf("ReviseStatus ошибка: %v", err)
	}
	if n := len(audit.recorded()); n != 1 {
		t.Errorf("событий аудита = %d, ожидалось 1", n)
	}
}

// --- GetAnchor / ListOwned ---

func TestGetAnchor_Visibility(t *testing.T) {
	svc, _, _, _ := newAnchorFixture()
	a := seedAnchor(t, svc, "tenant-a")

	tests := []struct {
		name    string
		actor   *model.Actor
		visible bool
	}{
		{"владелец", individual("owner-1"), true},
		{"администратор организации", orgAdmin("admin-1", "tenant-a"), true},
		{"администратор другой организации", orgAdmin("admin-b", "tenant-b"), false},
		{"посторонний пользователь", individual("user-9"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.GetAnchor(context.Background(), tt.actor, a.ID)
			if tt.visible {
				if err != nil || got.ID != a.ID {
					t.Fatalf("GetAnchor = %v, %v, ожидался якорь", got, err)
				}
				return
			}
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("ошибка = %v, ожидалась ErrNotFound", err)
			}
		})
	}
}

func TestListOwned(t *testing.T) {
	svc, _, _, _ := newAnchorFixture()
	owner := individual("user-1")

	for i := 0; i < 3; i++ {
		in := validInput()
		in.Fingerprint = strings.Repeat(string("abc"[i]), 64)
		if _, err := svc.CreateAnchor(context.Background(), owner, in); err != nil {
			t.Fatalf("CreateAnchor ошибка: %v", err)
		}
	}
	if _, err := svc.CreateAnchor(context.Background(), individual("user-2"), validInput()); err != nil {
		t.Fatalf("CreateAnchor ошибка: %v", err)
	}

	items, total, err := svc.ListOwned(context.Background(), owner, 2, 0)
	if err != nil {
		t.Fatalf("ListOwned ошибка: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, ожидалось 3", total)
	}
	if len(items) != 2 {
		t.Errorf("items = %d, ожидалось 2", len(items))
	}
	for _, a := range items {
		if a.OwnerID != "user-1" {
			t.Errorf("чужой якорь в списке: %s", a.OwnerID)
		}
	}
}

// --- ReadForVerification ---

func TestReadForVerification(t *testing.T) {
	svc, _, _, _ := newAnchorFixture()
	a := seedAnchor(t, svc, "tenant-a")

	view, err := svc.ReadForVerification(context.Background(), "  "+strings.ToUpper(a.PublicID)+" ")
	if err != nil {
		t.Fatalf("ReadForVerification ошибка: %v", err)
	}
	if !view.Found {
		t.Fatal("Found = false, ожидался true")
	}
	if view.Headline != model.HeadlinePending {
		t.Errorf("Headline = %s, ожидался pending", view.Headline)
	}
	if view.Fingerprint != testDigest || view.DisplayName != a.DisplayName {
		t.Errorf("некорректная проекция: %+v", view)
	}
	if len(view.Timeline) != 1 || view.Timeline[0].EventType != model.EventCreated {
		t.Errorf("Timeline = %+v, ожидалось одно событие CREATED", view.Timeline)
	}

	if _, err := svc.ReviseStatus(context.Background(), orgAdmin("admin-1", "tenant-a"), a.ID, model.StatusRevoked); err != nil {
		t.Fatalf("ReviseStatus ошибка: %v", err)
	}
	view, _ = svc.ReadForVerification(context.Background(), a.PublicID)
	if view.Headline != model.HeadlineRevoked || len(view.Timeline) != 2 {
		t.Errorf("после отзыва: Headline = %s, Timeline = %d", view.Headline, len(view.Timeline))
	}
}

func TestReadForVerification_NotFound(t *testing.T) {
	svc, _, _, _ := newAnchorFixture()

	for _, id := range []string{"", "short", strings.Repeat("g", 32), strings.Repeat("a", 32), "' OR 1=1 --"} {
		view, err := svc.ReadForVerification(context.Background(), id)
		if err != nil {
			t.Fatalf("ReadForVerification(%q) ошибка: %v", id, err)
		}
		if view.Found {
			t.Errorf("ReadForVerification(%q).Found = true", id)
		}
	}
}
