package model

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type CertificateKind string

const (
	CERTIFICATE_KIND_ATTENDANCE = CertificateKind("attendance")
	CERTIFICATE_KIND_SPEAKER    = CertificateKind("speaker")
	CERTIFICATE_KIND_PRESENTER  = CertificateKind("presenter")
	CERTIFICATE_KIND_CUSTOM     = CertificateKind("custom")
)

type CertificateTemplate struct {
	bun.BaseModel `bun:"table:certificate_templates"`

	ID             string          `bun:"id,pk" json:"id"`
	EventID        string          `bun:"event_id,notnull" json:"event_id"`
	Name           string          `bun:"name,notnull" json:"name"`
	Kind           CertificateKind `bun:"kind,notnull,type:varchar" json:"kind"`
	Orientation    string          `bun:"orientation,notnull" json:"orientation"` // L or P
	Title          string          `bun:"title,notnull" json:"title"`
	Body           string          `bun:"body,notnull" json:"body"`
	SignatoryName  string          `bun:"signatory_name" json:"signatory_name"`
	SignatoryTitle string          `bun:"signatory_title" json:"signatory_title"`
	Elements       []BadgeElement  `bun:"elements" json:"elements,omitempty"`

	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

func (t *CertificateTemplate) Upsert(ctx context.Context, db bun.IDB) error {
	if t.Orientation == "" {
		t.Orientation = "L"
	}
	if t.Kind == "" {
		t.Kind = CERTIFICATE_KIND_ATTENDANCE
	}
	switch {
	case t.ID == "":
		return fmt.Errorf("(*CertificateTemplate).Upsert: %w: template id is blank", ErrInvalid)
	case t.EventID == "":
		return fmt.Errorf("(*CertificateTemplate).Upsert: %w: event id is blank", ErrInvalid)
	case strings.TrimSpace(t.Name) == "":
		return fmt.Errorf("(*CertificateTemplate).Upsert: %w: name is blank", ErrInvalid)
	case strings.TrimSpace(t.Title) == "":
		return fmt.Errorf("(*CertificateTemplate).Upsert: %w: title is blank", ErrInvalid)
	case t.Orientation != "L" && t.Orientation != "P":
		return fmt.Errorf("(*CertificateTemplate).Upsert: %w: orientation must be L or P", ErrInvalid)
	}
	switch t.Kind {
	case CERTIFICATE_KIND_ATTENDANCE, CERTIFICATE_KIND_SPEAKER, CERTIFICATE_KIND_PRESENTER, CERTIFICATE_KIND_CUSTOM:
	default:
		return fmt.Errorf("(*CertificateTemplate).Upsert: %w: unknown kind %q", ErrInvalid, t.Kind)
	}
	now := time.Now().UTC()
	t.UpdatedAt = now
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if _, err := db.NewInsert().
		Model(t).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("kind = EXCLUDED.kind").
		Set("orientation = EXCLUDED.orientation").
		Set("title = EXCLUDED.title").
		Set("body = EXCLUDED.body").
		Set("signatory_name = EXCLUDED.signatory_name").
		Set("signatory_title = EXCLUDED.signatory_title").
		Set("elements = EXCLUDED.elements").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx); err != nil {
		return fmt.Errorf("(*CertificateTemplate).Upsert: %w", err)
	}
	return nil
}

func GetCertificateTemplate(ctx context.Context, db bun.IDB, eventID, id string) (*CertificateTemplate, error) {
	template := new(CertificateTemplate)
	if err := db.NewSelect().
		Model(template).
		Where("id = ?", id).
		Where("event_id = ?", eventID).
		Limit(1).
		Scan(ctx); err != nil {
		return nil, notFound(err, "certificate template")
	}
	return template, nil
}

func ListCertificateTemplates(ctx context.Context, db bun.IDB, eventID string) ([]CertificateTemplate, error) {
	templates := make([]CertificateTemplate, 0)
	if err := db.NewSelect().
		Model(&templates).
		Where("event_id = ?", eventID).
		Order("created_at ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("ListCertificateTemplates: %w", err)
	}
	return templates, nil
}

// DeleteCertificateTemplate removes a template no certificate was issued
// from.
func DeleteCertificateTemplate(ctx context.Context, db bun.IDB, eventID, id string) error {
	used, err := db.NewSelect().
		Model((*Certificate)(nil)).
		Where("template_id = ?", id).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("DeleteCertificateTemplate: %w", err)
	}
	if used {
		return fmt.Errorf("DeleteCertificateTemplate: %w: certificates were issued from this template", ErrConflict)
	}
	res, err := db.NewDelete().
		Model((*CertificateTemplate)(nil)).
		Where("id = ?", id).
		Where("event_id = ?", eventID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("DeleteCertificateTemplate: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("DeleteCertificateTemplate: certificate template %w", ErrNotFound)
	}
	return nil
}

type Certificate struct {
	bun.BaseModel `bun:"table:certificates"`

	ID                string     `bun:"id,pk" json:"id"`
	EventID           string     `bun:"event_id,notnull" json:"event_id"`
	TemplateID        string     `bun:"template_id,notnull" json:"template_id"`
	RegistrationID    string     `bun:"registration_id" json:"registration_id,omitempty"`
	FacultyID         string     `bun:"faculty_id" json:"faculty_id,omitempty"`
	RecipientName     string     `bun:"recipient_name,notnull" json:"recipient_name"`
	RecipientEmail    string     `bun:"recipient_email" json:"recipient_email"`
	CertificateNumber string     `bun:"certificate_number,notnull,unique" json:"certificate_number"`
	IssuedAt          time.Time  `bun:"issued_at,notnull" json:"issued_at"`
	RevokedAt         *time.Time `bun:"revoked_at" json:"revoked_at,omitempty"`
}

func (c *Certificate) Revoked() bool {
	return c.RevokedAt != nil
}

// NewCertificateNumber returns CERT-<year>-<8 upper-case hex digits>.
func NewCertificateNumber(issuedAt time.Time) string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return fmt.Sprintf("CERT-%d-%s", issuedAt.Year(), strings.ToUpper(hex.EncodeToString(b)))
}

// CertificateRecipient is someone a certificate can be issued to.
type CertificateRecipient struct {
	RegistrationID string
	FacultyID      string
	Name           string
	Email          string
}

// IssueCertificates issues one certificate per recipient for the template,
// skipping recipients that already hold an unrevoked certificate from it.
func IssueCertificates(ctx context.Context, db *bun.DB, template *CertificateTemplate, recipients []CertificateRecipient, now time.Time) (issued []Certificate, skipped int, err error) {
	issued = make([]Certificate, 0, len(recipients))
	err = db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := make([]Certificate, 0)
		if err := tx.NewSelect().
			Model(&existing).
			Where("template_id = ?", template.ID).
			Where("revoked_at IS NULL").
			Scan(ctx); err != nil {
			return err
		}
		held := make(map[string]struct{}, len(existing))
		for _, c := range existing {
			if c.RegistrationID != "" {
				held["r:"+c.RegistrationID] = struct{}{}
			}
			if c.FacultyID != "" {
				held["f:"+c.FacultyID] = struct{}{}
			}
		}

		now = now.UTC()
		for _, recipient := range recipients {
			key := "r:" + recipient.RegistrationID
			if recipient.FacultyID != "" {
				key = "f:" + recipient.FacultyID
			}
			if _, ok := held[key]; ok {
				skipped++
				continue
			}
			held[key] = struct{}{}
			issued = append(issued, Certificate{
				ID:                newID(),
				EventID:           template.EventID,
				TemplateID:        template.ID,
				RegistrationID:    recipient.RegistrationID,
				FacultyID:         recipient.FacultyID,
				RecipientName:     recipient.Name,
				RecipientEmail:    recipient.Email,
				CertificateNumber: NewCertificateNumber(now),
				IssuedAt:          now,
			})
		}
		if len(issued) == 0 {
			return nil
		}
		_, err := tx.NewInsert().
			Model(&issued).
			Exec(ctx)
		return err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("IssueCertificates: %w", err)
	}
	return issued, skipped, nil
}

func GetCertificate(ctx context.Context, db bun.IDB, eventID, id string) (*Certificate, error) {
	certificate := new(Certificate)
	if err := db.NewSelect().
		Model(certificate).
		Where("id = ?", id).
		Where("event_id = ?", eventID).
		Limit(1).
		Scan(ctx); err != nil {
		return nil, notFound(err, "certificate")
	}
	return certificate, nil
}

func GetCertificateByNumber(ctx context.Context, db bun.IDB, number string) (*Certificate, error) {
	certificate := new(Certificate)
	if err := db.NewSelect().
		Model(certificate).
		Where("certificate_number = ?", strings.ToUpper(strings.TrimSpace(number))).
		Limit(1).
		Scan(ctx); err != nil {
		return nil, notFound(err, "certificate")
	}
	return certificate, nil
}

func ListCertificates(ctx context.Context, db bun.IDB, eventID, templateID string, opts ListOptions) ([]Certificate, int, error) {
	opts = opts.Normalize()
	certificates := make([]Certificate, 0)
	q := db.NewSelect().
		Model(&certificates).
		Where("event_id = ?", eventID)
	if templateID != "" {
		q = q.Where("template_id = ?", templateID)
	}
	total, err := q.
		Order("issued_at ASC", "certificate_number ASC").
		Limit(opts.Limit).
		Offset(opts.Offset).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("ListCertificates: %w", err)
	}
	return certificates, total, nil
}

// RevokeCertificate stamps revoked_at. Revoking twice keeps the first
// timestamp.
func RevokeCertificate(ctx context.Context, db bun.IDB, eventID, id string, now time.Time) (*Certificate, error) {
	certificate, err := GetCertificate(ctx, db, eventID, id)
	if err != nil {
		return nil, fmt.Errorf("RevokeCertificate: %w", err)
	}
	if certificate.Revoked() {
		return certificate, nil
	}
	now = now.UTC()
	certificate.RevokedAt = &now
	if _, err := db.NewUpdate().
		Model(certificate).
		Column("revoked_at").
		WherePK().
		Exec(ctx); err != nil {
		return nil, fmt.Errorf("RevokeCertificate: %w", err)
	}
	return certificate, nil
}
