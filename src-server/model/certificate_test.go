package model_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"confdesk/src-server/model"

	"github.com/google/uuid"
)

func TestNewCertificateNumber(t *testing.T) {
	pattern := regexp.MustCompile(`^CERT-2026-[0-9A-F]{8}$`)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		n := model.NewCertificateNumber(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
		if !pattern.MatchString(n) {
			t.Fatalf("bad number %q", n)
		}
		seen[n] = true
	}
	if len(seen) < 45 {
		t.Error("certificate numbers repeat too often")
	}
}

func TestIssueCertificates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	event := newTestEvent(t, db, nil)
	template := &model.CertificateTemplate{
		ID:      uuid.NewString(),
		EventID: event.ID,
		Name:    "Attendance",
		Title:   "Certificate of Attendance",
		Body:    "This certifies that {{name}} attended {{event_name}}.",
	}
	if err := template.Upsert(ctx, db); err != nil {
		t.Fatal(err)
	}

	recipients := []model.CertificateRecipient{
		{RegistrationID: "r1", Name: "Asha Rao", Email: "asha@example.com"},
		{RegistrationID: "r2", Name: "Vikram Shah", Email: "vikram@example.com"},
	}
	issued, skipped, err := model.IssueCertificates(ctx, db, template, recipients, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(issued) != 2 || skipped != 0 {
		t.Fatalf("issued %d skipped %d", len(issued), skipped)
	}

	// case: re-issuing skips existing holders
	issued, skipped, err = model.IssueCertificates(ctx, db, template, append(recipients,
		model.CertificateRecipient{RegistrationID: "r3", Name: "Meera Iyer"}), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(issued) != 1 || skipped != 2 {
		t.Errorf("issued %d skipped %d, want 1 and 2", len(issued), skipped)
	}

	// case: verify and revoke
	got, err := model.GetCertificateByNumber(ctx, db, issued[0].CertificateNumber)
	if err != nil {
		t.Fatal(err)
	}
	if got.RecipientName != "Meera Iyer" || got.Revoked() {
		t.Errorf("unexpected certificate %+v", got)
	}
	revoked, err := model.RevokeCertificate(ctx, db, event.ID, got.ID, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if !revoked.Revoked() {
		t.Error("certificate should be revoked")
	}

	// case: revoked holders get a new one
	issued, skipped, err = model.IssueCertificates(ctx, db, template, []model.CertificateRecipient{
		{RegistrationID: "r3", Name: "Meera Iyer"},
	}, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(issued) != 1 || skipped != 0 {
		t.Errorf("issued %d skipped %d after revoke", len(issued), skipped)
	}

	if err := model.DeleteCertificateTemplate(ctx, db, event.ID, template.ID); !errors.Is(err, model.ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
	if _, err := model.GetCertificateByNumber(ctx, db, "CERT-2026-00000000"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}
