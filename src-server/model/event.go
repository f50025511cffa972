package model

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/uptrace/bun"
)

type EventStatus string

const (
	EVENT_STATUS_DRAFT     = EventStatus("draft")
	EVENT_STATUS_PUBLISHED = EventStatus("published")
	EVENT_STATUS_COMPLETED = EventStatus("completed")
	EVENT_STATUS_CANCELLED = EventStatus("cancelled")
)

func (s EventStatus) Valid() bool {
	switch s {
	case EVENT_STATUS_DRAFT, EVENT_STATUS_PUBLISHED, EVENT_STATUS_COMPLETED, EVENT_STATUS_CANCELLED:
		return true
	}
	return false
}

type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID           string      `bun:"id,pk" json:"id"`
	Slug         string      `bun:"slug,notnull,unique" json:"slug"`
	Name         string      `bun:"name,notnull" json:"name"`
	Description  string      `bun:"description" json:"description"`
	Venue        string      `bun:"venue" json:"venue"`
	City         string      `bun:"city" json:"city"`
	Timezone     string      `bun:"timezone,notnull" json:"timezone"`
	StartDate    time.Time   `bun:"start_date,notnull" json:"start_date"`
	EndDate      time.Time   `bun:"end_date,notnull" json:"end_date"`
	Status       EventStatus `bun:"status,notnull,type:varchar" json:"status"`
	Currency     string      `bun:"currency,notnull" json:"currency"`
	ContactEmail string      `bun:"contact_email" json:"contact_email"`

	RegistrationOpen bool `bun:"registration_open,notnull" json:"registration_open"`
	MaxAttendees     int  `bun:"max_attendees,notnull" json:"max_attendees"` // 0 = unlimited

	AbstractWordLimit int        `bun:"abstract_word_limit,notnull" json:"abstract_word_limit"`
	AbstractDeadline  *time.Time `bun:"abstract_deadline" json:"abstract_deadline,omitempty"`

	RegistrationSeq int `bun:"registration_seq,notnull" json:"-"`
	AbstractSeq     int `bun:"abstract_seq,notnull" json:"-"`

	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// Location resolves the event timezone, falling back to fallback when the
// stored name can't be loaded.
func (e *Event) Location(fallback *time.Location) *time.Location {
	if e.Timezone == "" {
		return fallback
	}
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return fallback
	}
	return loc
}

// AcceptsRegistrations reports whether the public registration form is open.
func (e *Event) AcceptsRegistrations() bool {
	return e.Status == EVENT_STATUS_PUBLISHED && e.RegistrationOpen
}

// AcceptsAbstracts reports whether abstracts can be submitted at now.
func (e *Event) AcceptsAbstracts(now time.Time) bool {
	if e.Status != EVENT_STATUS_PUBLISHED {
		return false
	}
	return e.AbstractDeadline == nil || !now.After(*e.AbstractDeadline)
}

// NumberPrefix returns the first 4 alphanumeric characters of the slug,
// upper-cased. Used for registration numbers.
func (e *Event) NumberPrefix() string {
	var sb strings.Builder
	for _, r := range e.Slug {
		if sb.Len() == 4 {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(unicode.ToUpper(r))
		}
	}
	if sb.Len() == 0 {
		return "EVT"
	}
	return sb.String()
}

// DateRange formats the event dates in loc, collapsing the shared month
// and year: "10-12 Mar 2026", "30 Mar - 2 Apr 2026".
func (e *Event) DateRange(loc *time.Location) string {
	start, end := e.StartDate.In(loc), e.EndDate.In(loc)
	switch {
	case start.Format(time.DateOnly) == end.Format(time.DateOnly):
		return start.Format("2 Jan 2006")
	case start.Year() != end.Year():
		return start.Format("2 Jan 2006") + " - " + end.Format("2 Jan 2006")
	case start.Month() != end.Month():
		return start.Format("2 Jan") + " - " + end.Format("2 Jan 2006")
	}
	return fmt.Sprintf("%d-%s", start.Day(), end.Format("2 Jan 2006"))
}

// Variables returns the event placeholders shared by every message.
func (e *Event) Variables(fallback *time.Location) map[string]string {
	venue := e.Venue
	if e.City != "" {
		if venue != "" {
			venue += ", "
		}
		venue += e.City
	}
	return map[string]string{
		"event_name":    e.Name,
		"event_slug":    e.Slug,
		"event_dates":   e.DateRange(e.Location(fallback)),
		"event_venue":   venue,
		"event_city":    e.City,
		"contact_email": e.ContactEmail,
	}
}

var (
	slugInvalidChars = regexp.MustCompile(`[^a-z0-9]+`)
	slugPattern      = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
)

// Slugify turns a display name into a URL slug.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugInvalidChars.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 64 {
		s = strings.TrimRight(s[:64], "-")
	}
	return s
}

func ValidSlug(s string) bool {
	return slugPattern.MatchString(s)
}

func (e *Event) validate() error {
	switch {
	case e.ID == "":
		return fmt.Errorf("%w: event id is blank", ErrInvalid)
	case strings.TrimSpace(e.Name) == "":
		return fmt.Errorf("%w: name is blank", ErrInvalid)
	case !ValidSlug(e.Slug):
		return fmt.Errorf("%w: slug %q is not valid", ErrInvalid, e.Slug)
	case e.StartDate.IsZero() || e.EndDate.IsZero():
		return fmt.Errorf("%w: start and end date are required", ErrInvalid)
	case e.EndDate.Before(e.StartDate):
		return fmt.Errorf("%w: end date must not be before start date", ErrInvalid)
	case !e.Status.Valid():
		return fmt.Errorf("%w: unknown status %q", ErrInvalid, e.Status)
	case e.MaxAttendees < 0:
		return fmt.Errorf("%w: max attendees must not be negative", ErrInvalid)
	case e.AbstractWordLimit < 0:
		return fmt.Errorf("%w: abstract word limit must not be negative", ErrInvalid)
	}
	if _, err := time.LoadLocation(e.Timezone); err != nil {
		return fmt.Errorf("%w: unknown timezone %q", ErrInvalid, e.Timezone)
	}
	return nil
}

// Upsert inserts the event or updates every editable column. Slug
// uniqueness is checked before writing.
func (e *Event) Upsert(ctx context.Context, db bun.IDB) error {
	if e.Slug == "" {
		e.Slug = Slugify(e.Name)
	}
	if e.Status == "" {
		e.Status = EVENT_STATUS_DRAFT
	}
	if e.Currency == "" {
		e.Currency = "INR"
	}
	if e.Timezone == "" {
		e.Timezone = "UTC"
	}
	if err := e.validate(); err != nil {
		return fmt.Errorf("(*Event).Upsert: %w", err)
	}

	slugTaken, err := db.NewSelect().
		Model((*Event)(nil)).
		Where("slug = ?", e.Slug).
		Where("id != ?", e.ID).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("(*Event).Upsert: %w", err)
	}
	if slugTaken {
		return fmt.Errorf("(*Event).Upsert: %w: slug %q is taken", ErrConflict, e.Slug)
	}

	exists, err := db.NewSelect().
		Model((*Event)(nil)).
		Where("id = ?", e.ID).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("(*Event).Upsert: %w", err)
	}

	now := time.Now().UTC()
	e.UpdatedAt = now
	switch exists {
	case true:
		if _, err := db.NewUpdate().
			Model(e).
			ExcludeColumn("id", "created_at", "registration_seq", "abstract_seq").
			WherePK().
			Exec(ctx); err != nil {
			return fmt.Errorf("(*Event).Upsert: %w", err)
		}
	case false:
		e.CreatedAt = now
		if _, err := db.NewInsert().
			Model(e).
			Exec(ctx); err != nil {
			return fmt.Errorf("(*Event).Upsert: %w", err)
		}
	}
	return nil
}

// GetEvent loads an event by id.
func GetEvent(ctx context.Context, db bun.IDB, id string) (*Event, error) {
	event := new(Event)
	if err := db.NewSelect().
		Model(event).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx); err != nil {
		return nil, notFound(err, "event")
	}
	return event, nil
}

// GetEventBySlug loads an event by its public slug.
func GetEventBySlug(ctx context.Context, db bun.IDB, slug string) (*Event, error) {
	event := new(Event)
	if err := db.NewSelect().
		Model(event).
		Where("slug = ?", slug).
		Limit(1).
		Scan(ctx); err != nil {
		return nil, notFound(err, "event")
	}
	return event, nil
}

type EventFilter struct {
	Status EventStatus
	Query  string
}

// ListEvents returns events ordered by start date, newest first.
func ListEvents(ctx context.Context, db bun.IDB, filter EventFilter, opts ListOptions) ([]Event, int, error) {
	opts = opts.Normalize()
	events := make([]Event, 0)
	q := db.NewSelect().
		Model(&events).
		Order("start_date DESC").
		Limit(opts.Limit).
		Offset(opts.Offset)
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if query := strings.TrimSpace(filter.Query); query != "" {
		like := "%" + strings.ToLower(query) + "%"
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("LOWER(name) LIKE ?", like).WhereOr("slug LIKE ?", like)
		})
	}
	total, err := q.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("ListEvents: %w", err)
	}
	return events, total, nil
}

// DeleteEvent removes an event that has no registrations yet, together with
// its ticket types and templates.
func DeleteEvent(ctx context.Context, db *bun.DB, id string) error {
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hasRegistrations, err := tx.NewSelect().
			Model((*Registration)(nil)).
			Where("event_id = ?", id).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("DeleteEvent: %w", err)
		}
		if hasRegistrations {
			return fmt.Errorf("DeleteEvent: %w: event has registrations", ErrConflict)
		}

		for _, m := range []interface{}{
			(*TicketType)(nil),
			(*BadgeTemplate)(nil),
			(*CertificateTemplate)(nil),
			(*MessageTemplate)(nil),
		} {
			if _, err := tx.NewDelete().
				Model(m).
				Where("event_id = ?", id).
				Exec(ctx); err != nil {
				return fmt.Errorf("DeleteEvent: %w", err)
			}
		}

		res, err := tx.NewDelete().
			Model((*Event)(nil)).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("DeleteEvent: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("DeleteEvent: event %w", ErrNotFound)
		}
		return nil
	})
}
