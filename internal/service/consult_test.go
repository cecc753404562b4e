package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mmeshcher/academy-store/internal/model"
)

func TestCreateConsultation(t *testing.T) {
	env := newTestEnv()
	fixed := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	env.svc.now = func() time.Time { return fixed }

	c, err := env.svc.CreateConsultation(context.Background(), ConsultationInput{
		Type:             model.ConsultationCoaching,
		Name:             " 이서준 ",
		Phone:            "010-9876-5432",
		Message:          "상담 원합니다",
		MarketingConsent: true,
	})
	if err != nil {
		t.Fatalf("CreateConsultation: %v", err)
	}
	if c.Name != "이서준" || c.Phone != "01098765432" || c.Status != model.ConsultationPending {
		t.Fatalf("unexpected consultation: %+v", c)
	}
	if !c.MarketingConsent || c.MarketingConsentAt == nil || !c.MarketingConsentAt.Equal(fixed) || c.MarketingConsentVersion != "2024-01" {
		t.Fatalf("consent not recorded: %+v", c)
	}
	if len(env.notifier.created) != 1 || env.notifier.created[0].ConsultationID != c.ConsultationID {
		t.Fatalf("notification not queued: %+v", env.notifier.created)
	}
}

func TestCreateConsultation_Validation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	tests := []struct {
		name string
		in   ConsultationInput
	}{
		{"missing name", ConsultationInput{Type: model.ConsultationAdmission, Phone: "01012345678"}},
		{"landline", ConsultationInput{Type: model.ConsultationAdmission, Name: "a", Phone: "02-123-4567"}},
		{"unknown type", ConsultationInput{Type: "tour", Name: "a", Phone: "01012345678"}},
		{"long message", ConsultationInput{Type: model.ConsultationAdmission, Name: "a", Phone: "01012345678", Message: strings.Repeat("가", maxConsultText+1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ve *ValidationError
			if _, err := env.svc.CreateConsultation(ctx, tt.in); !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
	if len(env.notifier.created) != 0 {
		t.Fatalf("rejected requests must not notify")
	}
}

func TestScheduleConsultation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	adm := admin(env)

	c, err := env.svc.CreateConsultation(ctx, ConsultationInput{Type: model.ConsultationConsulting, Name: "a", Phone: "01012345678"})
	if err != nil {
		t.Fatalf("CreateConsultation: %v", err)
	}
	env.repo.consultations[c.ConsultationID].ScheduleChangeRequest = "다음 주로 변경"

	got, err := env.svc.ScheduleConsultation(ctx, adm, c.ConsultationID, "2024-03-10", "14:00")
	if err != nil {
		t.Fatalf("ScheduleConsultation: %v", err)
	}
	if got.Status != model.ConsultationScheduled || got.ScheduleChangeRequest != "" || got.ScheduledTime != "14:00" {
		t.Fatalf("unexpected consultation: %+v", got)
	}
	if len(env.notifier.scheduled) != 1 {
		t.Fatalf("schedule notification not queued")
	}

	if _, err := env.svc.ScheduleConsultation(ctx, adm, "missing", "2024-03-10", "14:00"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := env.svc.ScheduleConsultation(ctx, Actor{}, c.ConsultationID, "2024-03-10", "14:00"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestUpdateConsultation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	adm := admin(env)
	c, _ := env.svc.CreateConsultation(ctx, ConsultationInput{Type: model.ConsultationTeacher, Name: "a", Phone: "01012345678"})

	status := model.ConsultationContacted
	memo := " 통화 완료 "
	got, err := env.svc.UpdateConsultation(ctx, adm, c.ConsultationID, ConsultationUpdate{Status: &status, AdminMemo: &memo})
	if err != nil {
		t.Fatalf("UpdateConsultation: %v", err)
	}
	if got.Status != status || got.AdminMemo != "통화 완료" {
		t.Fatalf("unexpected consultation: %+v", got)
	}

	bad := model.ConsultationStatus("archived")
	var ve *ValidationError
	if _, err := env.svc.UpdateConsultation(ctx, adm, c.ConsultationID, ConsultationUpdate{Status: &bad}); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	page, err := env.svc.ListConsultations(ctx, adm, ConsultationQuery{Status: model.ConsultationContacted, Type: "bogus"})
	if err != nil {
		t.Fatalf("ListConsultations: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("total = %d, want 1", page.Total)
	}
}

func TestBroadcast(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	adm := admin(env)
	for _, phone := range []string{"01011112222", "01033334444"} {
		if _, err := env.svc.CreateConsultation(ctx, ConsultationInput{
			Type: model.ConsultationAdmission, Name: "a", Phone: phone, MarketingConsent: true,
		}); err != nil {
			t.Fatalf("CreateConsultation: %v", err)
		}
	}

	n, err := env.svc.Broadcast(ctx, adm, []string{"010-1111-2222", "01011112222", "010 3333 4444"}, "봄 특강 안내")
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if n != 2 {
		t.Fatalf("recipients = %d, want 2", n)
	}
	if len(env.notifier.broadcasts) != 1 || len(env.notifier.broadcasts[0]) != 2 {
		t.Fatalf("broadcast not queued: %v", env.notifier.broadcasts)
	}

	var ve *ValidationError
	if _, err := env.svc.Broadcast(ctx, adm, []string{"01011112222", "01055556666"}, "안내"); !errors.As(err, &ve) {
		t.Fatalf("missing consent: expected ValidationError, got %v", err)
	}
	if !strings.Contains(ve.Message, "01055556666") {
		t.Fatalf("error must name the phone without consent: %q", ve.Message)
	}
	if _, err := env.svc.Broadcast(ctx, adm, []string{"01011112222"}, strings.Repeat("가", maxBroadcastMessage+1)); !errors.As(err, &ve) {
		t.Fatalf("long message: expected ValidationError, got %v", err)
	}
	if len(env.notifier.broadcasts) != 1 {
		t.Fatalf("rejected broadcasts must not be queued")
	}
}

func TestRemoveConsent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	adm := admin(env)
	if _, err := env.svc.CreateConsultation(ctx, ConsultationInput{
		Type: model.ConsultationAdmission, Name: "a", Phone: "01011112222", MarketingConsent: true,
	}); err != nil {
		t.Fatalf("CreateConsultation: %v", err)
	}

	n, err := env.svc.RemoveConsent(ctx, adm, []string{"010-1111-2222"})
	if err != nil {
		t.Fatalf("RemoveConsent: %v", err)
	}
	if n != 1 {
		t.Fatalf("updated = %d, want 1", n)
	}
	if _, err := env.svc.Broadcast(ctx, adm, []string{"01011112222"}, "안내"); err == nil {
		t.Fatalf("broadcast after consent removal must fail")
	}
}
