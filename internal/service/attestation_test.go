package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bigkaa/anchorvault/internal/domain/model"
)

func newAttestationFixture(t *testing.T) (*AttestationService, *AnchorService, *memAnchorRepo, *mockAuditSink, *model.Anchor) {
	t.Helper()
	anchors, repo, audit, cache := newAnchorFixture()
	a := seedAnchor(t, anchors, "tenant-a")
	return NewAttestationService(repo, audit, cache, discardLogger()), anchors, repo, audit, a
}

func receipt(id string) model.Attestation {
	return model.Attestation{
		ReceiptID:  id,
		ObservedAt: time.Date(2026, 3, 2, 8, 30, 0, 0, time.FixedZone("MSK", 3*3600)),
		Ordinal:    871204,
		Network:    "mainnet",
	}
}

func TestAttestation_PromotesPending(t *testing.T) {
	svc, _, repo, audit, a := newAttestationFixture(t)

	updated, err := svc.Record(context.Background(), attestor(ScopeAttestationsWrite), a.ID, receipt("rcpt-1"))
	if err != nil {
		t.Fatalf("Record ошибка: %v", err)
	}
	if updated.Status != model.StatusSecured {
		t.Errorf("Status = %s, ожидался SECURED", updated.Status)
	}
	if updated.Attestation == nil || updated.Attestation.ReceiptID != "rcpt-1" || updated.Attestation.Ordinal != 871204 {
		t.Fatalf("Attestation = %+v", updated.Attestation)
	}
	if updated.Attestation.ObservedAt.Location() != time.UTC {
		t.Error("ObservedAt должен храниться в UTC")
	}

	timeline, _ := repo.ListEvents(context.Background(), a.ID)
	want := []model.AnchorEventType{model.EventCreated, model.EventAttested, model.EventSecured}
	if len(timeline) != len(want) {
		t.Fatalf("событий хронологии = %d, ожидалось %d", len(timeline), len(want))
	}
	for i, e := range timeline {
		if e.EventType != want[i] {
			t.Errorf("событие %d = %s, ожидалось %s", i, e.EventType, want[i])
		}
	}

	events := audit.recorded()
	if len(events) != 1 || events[0].Action != model.ActionAnchorAttested {
		t.Fatalf("ожидалось одно событие ANCHOR_ATTESTED, получено %d", len(events))
	}
	if events[0].TenantID == nil || *events[0].TenantID != "tenant-a" {
		t.Error("аудит аттестации должен быть привязан к организации якоря")
	}
}

func TestAttestation_SameReceiptIsNoop(t *testing.T) {
	svc, _, _, audit, a := newAttestationFixture(t)
	sa := attestor(ScopeAttestationsWrite)

	if _, err := svc.Record(context.Background(), sa, a.ID, receipt("rcpt-1")); err != nil {
		t.Fatalf("Record ошибка: %v", err)
	}
	again, err := svc.Record(context.Background(), sa, a.ID, receipt(" rcpt-1 "))
	if err != nil {
		t.Fatalf("повторный Record ошибка: %v", err)
	}
	if again.Attestation.ReceiptID != "rcpt-1" {
		t.Errorf("ReceiptID = %q", again.Attestation.ReceiptID)
	}
	if n := len(audit.recorded()); n != 1 {
		t.Errorf("событий аудита = %d, ожидалось 1", n)
	}
}

func TestAttestation_DifferentReceiptConflicts(t *testing.T) {
	svc, _, _, _, a := newAttestationFixture(t)
	sa := attestor(ScopeAttestationsWrite)

	if _, err := svc.Record(context.Background(), sa, a.ID, receipt("rcpt-1")); err != nil {
		t.Fatalf("Record ошибка: %v", err)
	}
	if _, err := svc.Record(context.Background(), sa, a.ID, receipt("rcpt-2")); !errors.Is(err, ErrConflict) {
		t.Fatalf("ошибка = %v, ожидалась ErrConflict", err)
	}
}

func TestAttestation_RevokedIsTerminal(t *testing.T) {
	svc, anchors, repo, _, a := newAttestationFixture(t)
	if _, err := anchors.ReviseStatus(context.Background(), orgAdmin("admin-1", "tenant-a"), a.ID, model.StatusRevoked); err != nil {
		t.Fatalf("ReviseStatus ошибка: %v", err)
	}

	_, err := svc.Record(context.Background(), attestor(ScopeAttestationsWrite), a.ID, receipt("rcpt-1"))
	if !errors.Is(err, ErrAlreadyTerminal) {
		t.Fatalf("ошибка = %v, ожидалась ErrAlreadyTerminal", err)
	}
	stored, _ := repo.GetByID(context.Background(), a.ID)
	if stored.Status != model.StatusRevoked || stored.Attestation != nil {
		t.Error("отозванный якорь не должен изменяться")
	}
}

func TestAttestation_Denied(t *testing.T) {
	tests := []struct {
		name    string
		actor   *model.Actor
		att     model.Attestation
		wantErr error
	}{
		{"не аутентифицирован", nil, receipt("r"), ErrUnauthenticated},
		{"пользователь", orgAdmin("admin-1", "tenant-a"), receipt("r"), ErrForbidden},
		{"SA без scope", attestor("anchors:read"), receipt("r"), ErrForbidden},
		{"пустая квитанция", attestor(ScopeAttestationsWrite), receipt("  "), ErrValidation},
		{"нет сети", attestor(ScopeAttestationsWrite), model.Attestation{ReceiptID: "r", ObservedAt: time.Now()}, ErrValidation},
		{"нет времени", attestor(ScopeAttestationsWrite), model.Attestation{ReceiptID: "r", Network: "mainnet"}, ErrValidation},
		{"отрицательный ordinal", attestor(ScopeAttestationsWrite), model.Attestation{ReceiptID: "r", Network: "mainnet", ObservedAt: time.Now(), Ordinal: -1}, ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _, audit, a := newAttestationFixture(t)
			if _, err := svc.Record(context.Background(), tt.actor, a.ID, tt.att); !errors.Is(err, tt.wantErr) {
				t.Fatalf("ошибка = %v, ожидалась %v", err, tt.wantErr)
			}
			if n := len(audit.recorded()); n != 0 {
				t.Errorf("событий аудита = %d, ожидалось 0", n)
			}
		})
	}
}

func TestAttestation_UnknownAnchor(t *testing.T) {
	svc, _, _, _, _ := newAttestationFixture(t)
	sa := attestor(ScopeAttestationsWrite)

	for _, id := range []string{"nope", "00000000-0000-4000-8000-000000000000"} {
		if _, err := svc.Record(context.Background(), sa, id, receipt("r")); !errors.Is(err, ErrNotFound) {
			t.Errorf("Record(%q) ошибка = %v, ожидалась ErrNotFound", id, err)
		}
	}
}
