package model

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type Channel string

const (
	CHANNEL_EMAIL    = Channel("email")
	CHANNEL_SMS      = Channel("sms")
	CHANNEL_WHATSAPP = Channel("whatsapp")
	CHANNEL_DISCORD  = Channel("discord")
)

func (c Channel) Valid() bool {
	switch c {
	case CHANNEL_EMAIL, CHANNEL_SMS, CHANNEL_WHATSAPP, CHANNEL_DISCORD:
		return true
	}
	return false
}

// Names of the templates used for automatic messages. An event overrides
// the built-in text by creating a template with the same name.
const (
	TEMPLATE_REGISTRATION_CONFIRMATION = "registration_confirmation"
	TEMPLATE_REGISTRATION_CONFIRMED    = "registration_confirmed"
	TEMPLATE_ABSTRACT_DECISION         = "abstract_decision"
	TEMPLATE_FACULTY_INVITATION        = "faculty_invitation"
	TEMPLATE_TRAVEL_ITINERARY          = "travel_itinerary"
	TEMPLATE_SESSION_REMINDER          = "session_reminder"
)

type MessageTemplate struct {
	bun.BaseModel `bun:"table:message_templates"`

	ID      string  `bun:"id,pk" json:"id"`
	EventID string  `bun:"event_id,notnull,unique:template_event_name" json:"event_id"`
	Name    string  `bun:"name,notnull,unique:template_event_name" json:"name"`
	Channel Channel `bun:"channel,notnull,type:varchar" json:"channel"`
	Subject string  `bun:"subject" json:"subject"`
	Body    string  `bun:"body,notnull" json:"body"`

	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

func (t *MessageTemplate) Upsert(ctx context.Context, db bun.IDB) error {
	t.Name = strings.TrimSpace(t.Name)
	switch {
	case t.ID == "":
		return fmt.Errorf("(*MessageTemplate).Upsert: %w: template id is blank", ErrInvalid)
	case t.EventID == "":
		return fmt.Errorf("(*MessageTemplate).Upsert: %w: event id is blank", ErrInvalid)
	case t.Name == "":
		return fmt.Errorf("(*MessageTemplate).Upsert: %w: name is blank", ErrInvalid)
	case !t.Channel.Valid():
		return fmt.Errorf("(*MessageTemplate).Upsert: %w: unknown channel %q", ErrInvalid, t.Channel)
	case strings.TrimSpace(t.Body) == "":
		return fmt.Errorf("(*MessageTemplate).Upsert: %w: body is blank", ErrInvalid)
	case t.Channel == CHANNEL_EMAIL && strings.TrimSpace(t.Subject) == "":
		return fmt.Errorf("(*MessageTemplate).Upsert: %w: email templates need a subject", ErrInvalid)
	}
	nameTaken, err := db.NewSelect().
		Model((*MessageTemplate)(nil)).
		Where("event_id = ?", t.EventID).
		Where("name = ?", t.Name).
		Where("id != ?", t.ID).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("(*MessageTemplate).Upsert: %w", err)
	}
	if nameTaken {
		return fmt.Errorf("(*MessageTemplate).Upsert: %w: template %q already exists", ErrConflict, t.Name)
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
		Set("channel = EXCLUDED.channel").
		Set("subject = EXCLUDED.subject").
		Set("body = EXCLUDED.body").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx); err != nil {
		return fmt.Errorf("(*MessageTemplate).Upsert: %w", err)
	}
	return nil
}

func GetMessageTemplate(ctx context.Context, db bun.IDB, eventID, id string) (*MessageTemplate, error) {
	template := new(MessageTemplate)
	if err := db.NewSelect().
		Model(template).
		Where("id = ?", id).
		Where("event_id = ?", eventID).
		Limit(1).
		Scan(ctx); err != nil {
		return nil, notFound(err, "message template")
	}
	return template, nil
}

// FindMessageTemplate looks a template up by name; (nil, nil) when the
// event has none.
func FindMessageTemplate(ctx context.Context, db bun.IDB, eventID, name string) (*MessageTemplate, error) {
	template := new(MessageTemplate)
	err := db.NewSelect().
		Model(template).
		Where("event_id = ?", eventID).
		Where("name = ?", name).
		Limit(1).
		Scan(ctx)
	switch {
	case err == nil:
		return template, nil
	case notFoundErr(err):
		return nil, nil
	default:
		return nil, fmt.Errorf("FindMessageTemplate: %w", err)
	}
}

func ListMessageTemplates(ctx context.Context, db bun.IDB, eventID string) ([]MessageTemplate, error) {
	templates := make([]MessageTemplate, 0)
	if err := db.NewSelect().
		Model(&templates).
		Where("event_id = ?", eventID).
		Order("name ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("ListMessageTemplates: %w", err)
	}
	return templates, nil
}

func DeleteMessageTemplate(ctx context.Context, db bun.IDB, eventID, id string) error {
	pending, err := db.NewSelect().
		Model((*ScheduledMessage)(nil)).
		Where("template_id = ?", id).
		Where("status = ?", SCHEDULED_STATUS_PENDING).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("DeleteMessageTemplate: %w", err)
	}
	if pending {
		return fmt.Errorf("DeleteMessageTemplate: %w: a scheduled message uses this template", ErrConflict)
	}
	res, err := db.NewDelete().
		Model((*MessageTemplate)(nil)).
		Where("id = ?", id).
		Where("event_id = ?", eventID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("DeleteMessageTemplate: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("DeleteMessageTemplate: message template %w", ErrNotFound)
	}
	return nil
}

type MessageStatus string

const (
	MESSAGE_STATUS_SENT    = MessageStatus("sent")
	MESSAGE_STATUS_FAILED  = MessageStatus("failed")
	MESSAGE_STATUS_SKIPPED = MessageStatus("skipped")
)

type MessageLog struct {
	bun.BaseModel `bun:"table:message_logs"`

	ID                string        `bun:"id,pk" json:"id"`
	EventID           string        `bun:"event_id,notnull" json:"event_id"`
	Channel           Channel       `bun:"channel,notnull,type:varchar" json:"channel"`
	Provider          string        `bun:"provider,notnull" json:"provider"`
	Recipient         string        `bun:"recipient,notnull" json:"recipient"`
	Subject           string        `bun:"subject" json:"subject"`
	Status            MessageStatus `bun:"status,notnull,type:varchar" json:"status"`
	Error             string        `bun:"error" json:"error,omitempty"`
	ProviderMessageID string        `bun:"provider_message_id" json:"provider_message_id,omitempty"`
	ReferenceType     string        `bun:"reference_type" json:"reference_type,omitempty"`
	ReferenceID       string        `bun:"reference_id" json:"reference_id,omitempty"`
	CreatedAt         time.Time     `bun:"created_at,notnull" json:"created_at"`
}

func InsertMessageLog(ctx context.Context, db bun.IDB, log *MessageLog) error {
	if log.ID == "" {
		log.ID = newID()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	if _, err := db.NewInsert().
		Model(log).
		Exec(ctx); err != nil {
		return fmt.Errorf("InsertMessageLog: %w", err)
	}
	return nil
}

type MessageLogFilter struct {
	Channel       Channel
	Status        MessageStatus
	ReferenceType string
	ReferenceID   string
}

func (f MessageLogFilter) apply(q *bun.SelectQuery) *bun.SelectQuery {
	if f.Channel != "" {
		q = q.Where("channel = ?", f.Channel)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.ReferenceType != "" {
		q = q.Where("reference_type = ?", f.ReferenceType)
	}
	if f.ReferenceID != "" {
		q = q.Where("reference_id = ?", f.ReferenceID)
	}
	return q
}

func ListMessageLogs(ctx context.Context, db bun.IDB, eventID string, filter MessageLogFilter, opts ListOptions) ([]MessageLog, int, error) {
	opts = opts.Normalize()
	logs := make([]MessageLog, 0)
	q := db.NewSelect().
		Model(&logs).
		Where("event_id = ?", eventID)
	total, err := filter.apply(q).
		Order("created_at DESC").
		Limit(opts.Limit).
		Offset(opts.Offset).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("ListMessageLogs: %w", err)
	}
	return logs, total, nil
}

func AllMessageLogs(ctx context.Context, db bun.IDB, eventID string, filter MessageLogFilter) ([]MessageLog, error) {
	logs := make([]MessageLog, 0)
	q := db.NewSelect().
		Model(&logs).
		Where("event_id = ?", eventID)
	if err := filter.apply(q).
		Order("created_at ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("AllMessageLogs: %w", err)
	}
	return logs, nil
}

type AudienceKind string

const (
	AUDIENCE_REGISTRATIONS = AudienceKind("registrations")
	AUDIENCE_FACULTY       = AudienceKind("faculty")
)

// Audience selects the recipients of a bulk message. Empty lists match
// everything; registrations default to non-cancelled ones.
type Audience struct {
	Kind            AudienceKind         `json:"kind,omitempty"`
	Statuses        []RegistrationStatus `json:"status,omitempty"`
	TicketTypeIDs   []string             `json:"ticket_type_ids,omitempty"`
	CheckedIn       *bool                `json:"checked_in,omitempty"`
	RegistrationIDs []string             `json:"registration_ids,omitempty"`
	InviteStatuses  []InviteStatus       `json:"invite_status,omitempty"`
	FacultyIDs      []string             `json:"faculty_ids,omitempty"`
}

// ResolveRegistrations returns the registrations the audience selects.
func (a Audience) ResolveRegistrations(ctx context.Context, db bun.IDB, eventID string) ([]Registration, error) {
	registrations := make([]Registration, 0)
	q := db.NewSelect().
		Model(&registrations).
		Where("event_id = ?", eventID)
	switch len(a.Statuses) {
	case 0:
		q = q.Where("status != ?", REGISTRATION_STATUS_CANCELLED)
	default:
		q = q.Where("status IN (?)", bun.In(a.Statuses))
	}
	if len(a.TicketTypeIDs) > 0 {
		q = q.Where("ticket_type_id IN (?)", bun.In(a.TicketTypeIDs))
	}
	if len(a.RegistrationIDs) > 0 {
		q = q.Where("id IN (?)", bun.In(a.RegistrationIDs))
	}
	if a.CheckedIn != nil {
		switch *a.CheckedIn {
		case true:
			q = q.Where("checked_in_at IS NOT NULL")
		case false:
			q = q.Where("checked_in_at IS NULL")
		}
	}
	if err := q.Order("created_at ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("(Audience).ResolveRegistrations: %w", err)
	}
	return registrations, nil
}

// ResolveFaculty returns the faculty the audience selects.
func (a Audience) ResolveFaculty(ctx context.Context, db bun.IDB, eventID string) ([]Faculty, error) {
	faculty := make([]Faculty, 0)
	q := db.NewSelect().
		Model(&faculty).
		Where("event_id = ?", eventID)
	if len(a.InviteStatuses) > 0 {
		q = q.Where("invite_status IN (?)", bun.In(a.InviteStatuses))
	}
	if len(a.FacultyIDs) > 0 {
		q = q.Where("id IN (?)", bun.In(a.FacultyIDs))
	}
	if err := q.Order("name ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("(Audience).ResolveFaculty: %w", err)
	}
	return faculty, nil
}

type ScheduledStatus string

const (
	SCHEDULED_STATUS_PENDING   = ScheduledStatus("pending")
	SCHEDULED_STATUS_SENDING   = ScheduledStatus("sending")
	SCHEDULED_STATUS_SENT      = ScheduledStatus("sent")
	SCHEDULED_STATUS_FAILED    = ScheduledStatus("failed")
	SCHEDULED_STATUS_CANCELLED = ScheduledStatus("cancelled")
)

// ScheduledMessage is a bulk message to send at SendAt. Either TemplateID or
// the inline Channel/Subject/Body is set.
type ScheduledMessage struct {
	bun.BaseModel `bun:"table:scheduled_messages"`

	ID          string          `bun:"id,pk" json:"id"`
	EventID     string          `bun:"event_id,notnull" json:"event_id"`
	TemplateID  string          `bun:"template_id" json:"template_id,omitempty"`
	Channel     Channel         `bun:"channel,type:varchar" json:"channel,omitempty"`
	Subject     string          `bun:"subject" json:"subject,omitempty"`
	Body        string          `bun:"body" json:"body,omitempty"`
	Audience    Audience        `bun:"audience,type:json" json:"audience"`
	SendAt      time.Time       `bun:"send_at,notnull" json:"send_at"`
	Status      ScheduledStatus `bun:"status,notnull,type:varchar" json:"status"`
	SentCount   int             `bun:"sent_count,notnull" json:"sent_count"`
	FailedCount int             `bun:"failed_count,notnull" json:"failed_count"`
	Error       string          `bun:"error" json:"error,omitempty"`
	CreatedBy   string          `bun:"created_by" json:"created_by,omitempty"`
	ProcessedAt *time.Time      `bun:"processed_at" json:"processed_at,omitempty"`

	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

func CreateScheduledMessage(ctx context.Context, db bun.IDB, m *ScheduledMessage, now time.Time) error {
	switch {
	case m.EventID == "":
		return fmt.Errorf("CreateScheduledMessage: %w: event id is blank", ErrInvalid)
	case m.TemplateID == "" && (!m.Channel.Valid() || strings.TrimSpace(m.Body) == ""):
		return fmt.Errorf("CreateScheduledMessage: %w: a template or a channel and body is required", ErrInvalid)
	case !m.SendAt.After(now):
		return fmt.Errorf("CreateScheduledMessage: %w: send_at must be in the future", ErrInvalid)
	}
	if m.ID == "" {
		m.ID = newID()
	}
	m.SendAt = m.SendAt.UTC()
	m.Status = SCHEDULED_STATUS_PENDING
	m.CreatedAt = now.UTC()
	if _, err := db.NewInsert().
		Model(m).
		Exec(ctx); err != nil {
		return fmt.Errorf("CreateScheduledMessage: %w", err)
	}
	return nil
}

func ListScheduledMessages(ctx context.Context, db bun.IDB, eventID string) ([]ScheduledMessage, error) {
	messages := make([]ScheduledMessage, 0)
	if err := db.NewSelect().
		Model(&messages).
		Where("event_id = ?", eventID).
		Order("send_at ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("ListScheduledMessages: %w", err)
	}
	return messages, nil
}

// CancelScheduledMessage cancels a message that hasn't started sending.
func CancelScheduledMessage(ctx context.Context, db bun.IDB, eventID, id string) error {
	res, err := db.NewUpdate().
		Model((*ScheduledMessage)(nil)).
		Set("status = ?", SCHEDULED_STATUS_CANCELLED).
		Where("id = ?", id).
		Where("event_id = ?", eventID).
		Where("status = ?", SCHEDULED_STATUS_PENDING).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("CancelScheduledMessage: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("CancelScheduledMessage: %w: no pending message with that id", ErrConflict)
	}
	return nil
}

// ClaimDueMessages flips due pending messages to sending and returns the
// ones this caller won.
func ClaimDueMessages(ctx context.Context, db bun.IDB, now time.Time) ([]ScheduledMessage, error) {
	due := make([]ScheduledMessage, 0)
	if err := db.NewSelect().
		Model(&due).
		Where("status = ?", SCHEDULED_STATUS_PENDING).
		Where("send_at <= ?", now.UTC()).
		Order("send_at ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("ClaimDueMessages: %w", err)
	}
	claimed := make([]ScheduledMessage, 0, len(due))
	for _, m := range due {
		res, err := db.NewUpdate().
			Model((*ScheduledMessage)(nil)).
			Set("status = ?", SCHEDULED_STATUS_SENDING).
			Where("id = ?", m.ID).
			Where("status = ?", SCHEDULED_STATUS_PENDING).
			Exec(ctx)
		if err != nil {
			return claimed, fmt.Errorf("ClaimDueMessages: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			m.Status = SCHEDULED_STATUS_SENDING
			claimed = append(claimed, m)
		}
	}
	return claimed, nil
}

// FinishScheduledMessage stores the outcome of a send run.
func FinishScheduledMessage(ctx context.Context, db bun.IDB, m *ScheduledMessage, now time.Time) error {
	now = now.UTC()
	m.ProcessedAt = &now
	switch {
	case m.Error != "":
		m.Status = SCHEDULED_STATUS_FAILED
	case m.SentCount == 0 && m.FailedCount > 0:
		m.Status = SCHEDULED_STATUS_FAILED
	default:
		m.Status = SCHEDULED_STATUS_SENT
	}
	if _, err := db.NewUpdate().
		Model(m).
		Column("status", "sent_count", "failed_count", "error", "processed_at").
		WherePK().
		Exec(ctx); err != nil {
		return fmt.Errorf("FinishScheduledMessage: %w", err)
	}
	return nil
}
