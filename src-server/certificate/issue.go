// Package certificate selects certificate recipients, renders certificate
// PDFs and answers public verification lookups.
package certificate

import (
	"context"
	"fmt"
	"time"

	"confdesk/src-server/model"
	"confdesk/src-server/utils"

	"github.com/uptrace/bun"
)

type Result struct {
	Issued  []model.Certificate `json:"issued"`
	Skipped int                 `json:"skipped"`
}

// IssueAttendance issues template to confirmed registrations of the event,
// optionally limited to registrationIDs and to attendees who checked in.
func IssueAttendance(ctx context.Context, db *bun.DB, eventID, templateID string, registrationIDs []string, onlyCheckedIn bool, now time.Time) (*Result, error) {
	template, err := model.GetCertificateTemplate(ctx, db, eventID, templateID)
	if err != nil {
		return nil, fmt.Errorf("IssueAttendance: %w", err)
	}
	filter := model.RegistrationFilter{
		Status: model.REGISTRATION_STATUS_CONFIRMED,
		IDs:    registrationIDs,
	}
	if onlyCheckedIn {
		checkedIn := true
		filter.CheckedIn = &checkedIn
	}
	registrations, err := model.AllRegistrations(ctx, db, eventID, filter)
	if err != nil {
		return nil, fmt.Errorf("IssueAttendance: %w", err)
	}

	recipients := make([]model.CertificateRecipient, 0, len(registrations))
	for _, r := range registrations {
		recipients = append(recipients, model.CertificateRecipient{
			RegistrationID: r.ID,
			Name:           utils.CleanupName(r.AttendeeName),
			Email:          r.Email,
		})
	}
	issued, skipped, err := model.IssueCertificates(ctx, db, template, recipients, now)
	if err != nil {
		return nil, fmt.Errorf("IssueAttendance: %w", err)
	}
	return &Result{Issued: issued, Skipped: skipped}, nil
}

// IssueFaculty issues template to the listed faculty, or to every faculty
// member who accepted their invitation when facultyIDs is empty.
func IssueFaculty(ctx context.Context, db *bun.DB, eventID, templateID string, facultyIDs []string, now time.Time) (*Result, error) {
	template, err := model.GetCertificateTemplate(ctx, db, eventID, templateID)
	if err != nil {
		return nil, fmt.Errorf("IssueFaculty: %w", err)
	}
	audience := model.Audience{Kind: model.AUDIENCE_FACULTY, FacultyIDs: facultyIDs}
	if len(facultyIDs) == 0 {
		audience.InviteStatuses = []model.InviteStatus{model.INVITE_STATUS_ACCEPTED}
	}
	faculty, err := audience.ResolveFaculty(ctx, db, eventID)
	if err != nil {
		return nil, fmt.Errorf("IssueFaculty: %w", err)
	}

	recipients := make([]model.CertificateRecipient, 0, len(faculty))
	for _, f := range faculty {
		recipients = append(recipients, model.CertificateRecipient{
			FacultyID: f.ID,
			Name:      utils.CleanupName(f.Name),
			Email:     f.Email,
		})
	}
	issued, skipped, err := model.IssueCertificates(ctx, db, template, recipients, now)
	if err != nil {
		return nil, fmt.Errorf("IssueFaculty: %w", err)
	}
	return &Result{Issued: issued, Skipped: skipped}, nil
}

// Verification is the public answer for a certificate number.
type Verification struct {
	Valid             bool       `json:"valid"`
	CertificateNumber string     `json:"certificate_number"`
	RecipientName     string     `json:"recipient_name"`
	EventName         string     `json:"event_name"`
	IssuedAt          time.Time  `json:"issued_at"`
	Revoked           bool       `json:"revoked"`
	RevokedAt         *time.Time `json:"revoked_at,omitempty"`
}

// Verify looks up a certificate by number. Unknown numbers return
// model.ErrNotFound.
func Verify(ctx context.Context, db bun.IDB, number string) (*Verification, error) {
	cert, err := model.GetCertificateByNumber(ctx, db, number)
	if err != nil {
		return nil, fmt.Errorf("Verify: %w", err)
	}
	event, err := model.GetEvent(ctx, db, cert.EventID)
	if err != nil {
		return nil, fmt.Errorf("Verify: %w", err)
	}
	return &Verification{
		Valid:             !cert.Revoked(),
		CertificateNumber: cert.CertificateNumber,
		RecipientName:     utils.CleanupName(cert.RecipientName),
		EventName:         event.Name,
		IssuedAt:          cert.IssuedAt,
		Revoked:           cert.Revoked(),
		RevokedAt:         cert.RevokedAt,
	}, nil
}
