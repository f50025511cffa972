package model

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
)

var models = []interface{}{
	(*TeamMember)(nil),
	(*Event)(nil),
	(*TicketType)(nil),
	(*Registration)(nil),
	(*BadgeTemplate)(nil),
	(*CertificateTemplate)(nil),
	(*Certificate)(nil),
	(*Faculty)(nil),
	(*ProgramSession)(nil),
	(*SessionAssignment)(nil),
	(*ReminderLog)(nil),
	(*TravelItinerary)(nil),
	(*Abstract)(nil),
	(*ReviewerAssignment)(nil),
	(*AbstractReview)(nil),
	(*Form)(nil),
	(*FormSubmission)(nil),
	(*MessageTemplate)(nil),
	(*MessageLog)(nil),
	(*ScheduledMessage)(nil),
}

// registrationEmailIndex backs "one active registration per email per
// event" so concurrent sign-ups can't both insert.
const registrationEmailIndex = "registrations_event_email_active_uidx"

var indexes = []struct {
	model   interface{}
	name    string
	columns []string
	unique  bool
	where   string
}{
	{(*TicketType)(nil), "ticket_types_event_idx", []string{"event_id"}, false, ""},
	{(*Registration)(nil), "registrations_event_email_idx", []string{"event_id", "email"}, false, ""},
	{(*Registration)(nil), registrationEmailIndex, []string{"event_id", "email"}, true, "status <> 'cancelled'"},
	{(*Registration)(nil), "registrations_event_status_idx", []string{"event_id", "status"}, false, ""},
	{(*Certificate)(nil), "certificates_template_idx", []string{"template_id"}, false, ""},
	{(*ProgramSession)(nil), "program_sessions_event_start_idx", []string{"event_id", "start_at"}, false, ""},
	{(*SessionAssignment)(nil), "session_assignments_faculty_idx", []string{"faculty_id"}, false, ""},
	{(*MessageLog)(nil), "message_logs_event_created_idx", []string{"event_id", "created_at"}, false, ""},
	{(*ScheduledMessage)(nil), "scheduled_messages_status_send_at_idx", []string{"status", "send_at"}, false, ""},
	{(*FormSubmission)(nil), "form_submissions_form_idx", []string{"form_id"}, false, ""},
}

// CreateSchema creates every table and index that doesn't exist yet.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	if err := db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		for _, model := range models {
			if _, err := tx.
				NewCreateTable().
				Model(model).
				IfNotExists().
				Exec(ctx); err != nil {
				return err
			}
		}
		for _, index := range indexes {
			q := tx.
				NewCreateIndex().
				Model(index.model).
				Index(index.name).
				Column(index.columns...).
				IfNotExists()
			if index.unique {
				q = q.Unique()
			}
			if index.where != "" {
				q = q.Where(index.where)
			}
			if _, err := q.Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("CreateSchema: %w", err)
	}

	return nil
}
