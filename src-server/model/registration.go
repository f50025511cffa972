package model

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type RegistrationStatus string

const (
	REGISTRATION_STATUS_PENDING    = RegistrationStatus("pending")
	REGISTRATION_STATUS_CONFIRMED  = RegistrationStatus("confirmed")
	REGISTRATION_STATUS_CANCELLED  = RegistrationStatus("cancelled")
	REGISTRATION_STATUS_WAITLISTED = RegistrationStatus("waitlisted")
)

func (s RegistrationStatus) Valid() bool {
	switch s {
	case REGISTRATION_STATUS_PENDING, REGISTRATION_STATUS_CONFIRMED,
		REGISTRATION_STATUS_CANCELLED, REGISTRATION_STATUS_WAITLISTED:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PAYMENT_STATUS_PENDING  = PaymentStatus("pending")
	PAYMENT_STATUS_PAID     = PaymentStatus("paid")
	PAYMENT_STATUS_FREE     = PaymentStatus("free")
	PAYMENT_STATUS_REFUNDED = PaymentStatus("refunded")
	PAYMENT_STATUS_WAIVED   = PaymentStatus("waived")
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PAYMENT_STATUS_PENDING, PAYMENT_STATUS_PAID, PAYMENT_STATUS_FREE,
		PAYMENT_STATUS_REFUNDED, PAYMENT_STATUS_WAIVED:
		return true
	}
	return false
}

type RegistrationSource string

const (
	REGISTRATION_SOURCE_WEB    = RegistrationSource("web")
	REGISTRATION_SOURCE_IMPORT = RegistrationSource("import")
	REGISTRATION_SOURCE_MANUAL = RegistrationSource("manual")
)

const registrationEmailColumns = "registrations.event_id, registrations.email"

type Registration struct {
	bun.BaseModel `bun:"table:registrations"`

	ID                 string `bun:"id,pk" json:"id"`
	EventID            string `bun:"event_id,notnull,unique:registration_event_number" json:"event_id"`
	TicketTypeID       string `bun:"ticket_type_id,notnull" json:"ticket_type_id"`
	RegistrationNumber string `bun:"registration_number,notnull,unique:registration_event_number" json:"registration_number"`

	AttendeeName string `bun:"attendee_name,notnull" json:"attendee_name"`
	Email        string `bun:"email,notnull" json:"email"`
	Phone        string `bun:"phone" json:"phone"`
	Designation  string `bun:"designation" json:"designation"`
	Institution  string `bun:"institution" json:"institution"`
	City         string `bun:"city" json:"city"`
	Country      string `bun:"country" json:"country"`

	Status        RegistrationStatus `bun:"status,notnull,type:varchar" json:"status"`
	PaymentStatus PaymentStatus      `bun:"payment_status,notnull,type:varchar" json:"payment_status"`
	AmountCents   int64              `bun:"amount_cents,notnull" json:"amount_cents"`
	Currency      string             `bun:"currency,notnull" json:"currency"`

	CheckInToken string     `bun:"check_in_token,notnull,unique" json:"check_in_token"`
	CheckedInAt  *time.Time `bun:"checked_in_at" json:"checked_in_at,omitempty"`

	CustomFields map[string]string  `bun:"custom_fields" json:"custom_fields,omitempty"`
	Source       RegistrationSource `bun:"source,notnull,type:varchar" json:"source"`

	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// RegistrationFields lists the attendee columns that badge and certificate
// templates may bind to.
var RegistrationFields = []string{
	"attendee_name",
	"email",
	"phone",
	"designation",
	"institution",
	"city",
	"country",
	"registration_number",
	"ticket_type",
	"event_name",
}

// Field returns the value of a bindable attendee column. Custom fields are
// addressed as "custom.<key>".
func (r *Registration) Field(name string) string {
	switch name {
	case "attendee_name":
		return r.AttendeeName
	case "email":
		return r.Email
	case "phone":
		return r.Phone
	case "designation":
		return r.Designation
	case "institution":
		return r.Institution
	case "city":
		return r.City
	case "country":
		return r.Country
	case "registration_number":
		return r.RegistrationNumber
	}
	if key, ok := strings.CutPrefix(name, "custom."); ok {
		return r.CustomFields[key]
	}
	return ""
}

// CheckInURL is the link encoded in badge QR codes and sent to attendees.
func (r *Registration) CheckInURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/c/" + r.CheckInToken
}

// Variables returns placeholder values for message and certificate text.
func (r *Registration) Variables() map[string]string {
	return map[string]string{
		"name":                r.AttendeeName,
		"attendee_name":       r.AttendeeName,
		"email":               r.Email,
		"phone":               r.Phone,
		"designation":         r.Designation,
		"institution":         r.Institution,
		"registration_number": r.RegistrationNumber,
		"status":              string(r.Status),
		"payment_status":      string(r.PaymentStatus),
	}
}

// RegistrationInput is the attendee-supplied part of a registration.
type RegistrationInput struct {
	TicketTypeID string
	AttendeeName string
	Email        string
	Phone        string
	Designation  string
	Institution  string
	City         string
	Country      string
	CustomFields map[string]string
	Source       RegistrationSource
}

func (in *RegistrationInput) normalize() error {
	in.AttendeeName = strings.TrimSpace(in.AttendeeName)
	in.Email = NormalizeEmail(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	switch {
	case in.TicketTypeID == "":
		return fmt.Errorf("%w: ticket type is required", ErrInvalid)
	case in.AttendeeName == "":
		return fmt.Errorf("%w: attendee name is required", ErrInvalid)
	case in.Email == "" || !strings.Contains(in.Email, "@"):
		return fmt.Errorf("%w: a valid email is required", ErrInvalid)
	}
	if in.Source == "" {
		in.Source = REGISTRATION_SOURCE_WEB
	}
	return nil
}

// Register creates a registration inside one transaction: the duplicate
// check, the ticket reservation, the per-event sequence bump and the
// insert either all happen or none do.
//
// When the event is at max_attendees the registration is waitlisted and no
// ticket is reserved. requireOpen enforces the public registration rules
// (published, registration open, ticket on sale); organizers bypass them.
func Register(ctx context.Context, db *bun.DB, eventID string, in RegistrationInput, requireOpen bool) (*Registration, error) {
	if err := in.normalize(); err != nil {
		return nil, fmt.Errorf("Register: %w", err)
	}

	registration := new(Registration)
	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		event, err := GetEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if requireOpen && !event.AcceptsRegistrations() {
			return ErrRegistrationClosed
		}
		ticketType, err := GetTicketType(ctx, tx, eventID, in.TicketTypeID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if requireOpen {
			if err := ticketType.Available(now); err != nil {
				return err
			}
		}

		duplicate, err := tx.NewSelect().
			Model((*Registration)(nil)).
			Where("event_id = ?", eventID).
			Where("email = ?", in.Email).
			Where("status != ?", REGISTRATION_STATUS_CANCELLED).
			Exists(ctx)
		if err != nil {
			return err
		}
		if duplicate {
			return ErrDuplicateRegistration
		}

		status := REGISTRATION_STATUS_PENDING
		paymentStatus := PAYMENT_STATUS_PENDING
		if ticketType.IsFree() {
			status = REGISTRATION_STATUS_CONFIRMED
			paymentStatus = PAYMENT_STATUS_FREE
		}

		full := false
		if event.MaxAttendees > 0 {
			active, err := tx.NewSelect().
				Model((*Registration)(nil)).
				Where("event_id = ?", eventID).
				Where("status IN (?)", bun.In([]RegistrationStatus{
					REGISTRATION_STATUS_PENDING,
					REGISTRATION_STATUS_CONFIRMED,
				})).
				Count(ctx)
			if err != nil {
				return err
			}
			full = active >= event.MaxAttendees
		}
		if full {
			status = REGISTRATION_STATUS_WAITLISTED
		} else if err := reserveTicket(ctx, tx, ticketType.ID); err != nil {
			return err
		}

		seq, err := nextEventSeq(ctx, tx, eventID, "registration_seq")
		if err != nil {
			return err
		}

		*registration = Registration{
			ID:                 newID(),
			EventID:            eventID,
			TicketTypeID:       ticketType.ID,
			RegistrationNumber: fmt.Sprintf("%s-%06d", event.NumberPrefix(), seq),
			AttendeeName:       in.AttendeeName,
			Email:              in.Email,
			Phone:              in.Phone,
			Designation:        strings.TrimSpace(in.Designation),
			Institution:        strings.TrimSpace(in.Institution),
			City:               strings.TrimSpace(in.City),
			Country:            strings.TrimSpace(in.Country),
			Status:             status,
			PaymentStatus:      paymentStatus,
			AmountCents:        ticketType.PriceCents,
			Currency:           ticketType.Currency,
			CheckInToken:       newID(),
			CustomFields:       in.CustomFields,
			Source:             in.Source,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if registration.Currency == "" {
			registration.Currency = event.Currency
		}
		if _, err := tx.NewInsert().
			Model(registration).
			Exec(ctx); err != nil {
			if uniqueViolation(err, registrationEmailIndex, registrationEmailColumns) {
				return ErrDuplicateRegistration
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Register: %w", err)
	}
	return registration, nil
}

// nextEventSeq increments one of the per-event counters and returns the new
// value. Must run inside the caller's transaction.
func nextEventSeq(ctx context.Context, tx bun.Tx, eventID, column string) (int, error) {
	if _, err := tx.NewUpdate().
		Model((*Event)(nil)).
		Set("? = ? + 1", bun.Ident(column), bun.Ident(column)).
		Where("id = ?", eventID).
		Exec(ctx); err != nil {
		return 0, fmt.Errorf("nextEventSeq: %w", err)
	}
	var seq int
	if err := tx.NewSelect().
		Model((*Event)(nil)).
		ColumnExpr("?", bun.Ident(column)).
		Where("id = ?", eventID).
		Scan(ctx, &seq); err != nil {
		return 0, fmt.Errorf("nextEventSeq: %w", err)
	}
	return seq, nil
}

func GetRegistration(ctx context.Context, db bun.IDB, eventID, id string) (*Registration, error) {
	registration := new(Registration)
	if err := db.NewSelect().
		Model(registration).
		Where("id = ?", id).
		Where("event_id = ?", eventID).
		Limit(1).
		Scan(ctx); err != nil {
		return nil, notFound(err, "registration")
	}
	return registration, nil
}

// FindRegistrationForCheckIn looks a registration up by check-in token or
// by registration number.
func FindRegistrationForCheckIn(ctx context.Context, db bun.IDB, eventID, token, number string) (*Registration, error) {
	registration := new(Registration)
	q := db.NewSelect().
		Model(registration).
		Where("event_id = ?", eventID)
	switch {
	case token != "":
		q = q.Where("check_in_token = ?", token)
	case number != "":
		q = q.Where("registration_number = ?", strings.ToUpper(strings.TrimSpace(number)))
	default:
		return nil, fmt.Errorf("FindRegistrationForCheckIn: %w: token or registration number is required", ErrInvalid)
	}
	if err := q.Limit(1).Scan(ctx); err != nil {
		return nil, notFound(err, "registration")
	}
	return registration, nil
}

type RegistrationFilter struct {
	Status        RegistrationStatus
	TicketTypeID  string
	PaymentStatus PaymentStatus
	CheckedIn     *bool
	Query         string
	IDs           []string
}

func (f RegistrationFilter) apply(q *bun.SelectQuery) *bun.SelectQuery {
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.TicketTypeID != "" {
		q = q.Where("ticket_type_id = ?", f.TicketTypeID)
	}
	if f.PaymentStatus != "" {
		q = q.Where("payment_status = ?", f.PaymentStatus)
	}
	if f.CheckedIn != nil {
		switch *f.CheckedIn {
		case true:
			q = q.Where("checked_in_at IS NOT NULL")
		case false:
			q = q.Where("checked_in_at IS NULL")
		}
	}
	if len(f.IDs) > 0 {
		q = q.Where("id IN (?)", bun.In(f.IDs))
	}
	if query := strings.ToLower(strings.TrimSpace(f.Query)); query != "" {
		like := "%" + query + "%"
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("LOWER(attendee_name) LIKE ?", like).
				WhereOr("LOWER(email) LIKE ?", like).
				WhereOr("LOWER(registration_number) LIKE ?", like)
		})
	}
	return q
}

// ListRegistrations returns one page of registrations plus the total count
// matching the filter.
func ListRegistrations(ctx context.Context, db bun.IDB, eventID string, filter RegistrationFilter, opts ListOptions) ([]Registration, int, error) {
	opts = opts.Normalize()
	registrations := make([]Registration, 0)
	q := db.NewSelect().
		Model(&registrations).
		Where("event_id = ?", eventID)
	q = filter.apply(q).
		Order("created_at ASC", "registration_number ASC").
		Limit(opts.Limit).
		Offset(opts.Offset)
	total, err := q.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("ListRegistrations: %w", err)
	}
	return registrations, total, nil
}

// AllRegistrations returns every registration matching the filter. Used by
// exports, badge batches and message audiences.
func AllRegistrations(ctx context.Context, db bun.IDB, eventID string, filter RegistrationFilter) ([]Registration, error) {
	registrations := make([]Registration, 0)
	q := db.NewSelect().
		Model(&registrations).
		Where("event_id = ?", eventID)
	if err := filter.apply(q).
		Order("created_at ASC", "registration_number ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("AllRegistrations: %w", err)
	}
	return registrations, nil
}

// RegistrationUpdate carries the organizer-editable columns. Nil pointers
// leave the column unchanged.
type RegistrationUpdate struct {
	AttendeeName  *string
	Email         *string
	Phone         *string
	Designation   *string
	Institution   *string
	City          *string
	Country       *string
	PaymentStatus *PaymentStatus
	CustomFields  map[string]string
}

func UpdateRegistration(ctx context.Context, db *bun.DB, eventID, id string, upd RegistrationUpdate) (*Registration, error) {
	var registration *Registration
	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if registration, err = GetRegistration(ctx, tx, eventID, id); err != nil {
			return err
		}
		set := func(dst *string, src *string) {
			if src != nil {
				*dst = strings.TrimSpace(*src)
			}
		}
		set(&registration.AttendeeName, upd.AttendeeName)
		set(&registration.Phone, upd.Phone)
		set(&registration.Designation, upd.Designation)
		set(&registration.Institution, upd.Institution)
		set(&registration.City, upd.City)
		set(&registration.Country, upd.Country)
		if upd.Email != nil {
			email := NormalizeEmail(*upd.Email)
			if email != registration.Email {
				taken, err := tx.NewSelect().
					Model((*Registration)(nil)).
					Where("event_id = ?", eventID).
					Where("email = ?", email).
					Where("id != ?", id).
					Where("status != ?", REGISTRATION_STATUS_CANCELLED).
					Exists(ctx)
				if err != nil {
					return err
				}
				if taken {
					return ErrDuplicateRegistration
				}
			}
			registration.Email = email
		}
		if upd.PaymentStatus != nil {
			if !upd.PaymentStatus.Valid() {
				return fmt.Errorf("%w: unknown payment status %q", ErrInvalid, *upd.PaymentStatus)
			}
			registration.PaymentStatus = *upd.PaymentStatus
		}
		if upd.CustomFields != nil {
			registration.CustomFields = upd.CustomFields
		}
		switch {
		case registration.AttendeeName == "":
			return fmt.Errorf("%w: attendee name is required", ErrInvalid)
		case !strings.Contains(registration.Email, "@"):
			return fmt.Errorf("%w: a valid email is required", ErrInvalid)
		}
		registration.UpdatedAt = time.Now().UTC()
		if _, err := tx.NewUpdate().
			Model(registration).
			ExcludeColumn("id", "event_id", "ticket_type_id", "registration_number",
				"status", "check_in_token", "checked_in_at", "source", "created_at").
			WherePK().
			Exec(ctx); err != nil {
			if uniqueViolation(err, registrationEmailIndex, registrationEmailColumns) {
				return ErrDuplicateRegistration
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("UpdateRegistration: %w", err)
	}
	return registration, nil
}

// ConfirmRegistration moves a pending or waitlisted registration to
// confirmed. Paid tickets are marked paid. A waitlisted registration
// reserves its ticket now.
func ConfirmRegistration(ctx context.Context, db *bun.DB, eventID, id string) (*Registration, error) {
	var registration *Registration
	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if registration, err = GetRegistration(ctx, tx, eventID, id); err != nil {
			return err
		}
		switch registration.Status {
		case REGISTRATION_STATUS_CONFIRMED:
			return nil
		case REGISTRATION_STATUS_CANCELLED:
			return fmt.Errorf("%w: registration is cancelled", ErrConflict)
		case REGISTRATION_STATUS_WAITLISTED:
			if err := reserveTicket(ctx, tx, registration.TicketTypeID); err != nil {
				return err
			}
		}
		registration.Status = REGISTRATION_STATUS_CONFIRMED
		if registration.PaymentStatus == PAYMENT_STATUS_PENDING {
			switch registration.AmountCents {
			case 0:
				registration.PaymentStatus = PAYMENT_STATUS_FREE
			default:
				registration.PaymentStatus = PAYMENT_STATUS_PAID
			}
		}
		registration.UpdatedAt = time.Now().UTC()
		_, err = tx.NewUpdate().
			Model(registration).
			Column("status", "payment_status", "updated_at").
			WherePK().
			Exec(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ConfirmRegistration: %w", err)
	}
	return registration, nil
}

// CancelRegistration cancels a registration and releases its ticket when it
// held one. Cancelling twice is a no-op.
func CancelRegistration(ctx context.Context, db *bun.DB, eventID, id string) (*Registration, error) {
	var registration *Registration
	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if registration, err = GetRegistration(ctx, tx, eventID, id); err != nil {
			return err
		}
		switch registration.Status {
		case REGISTRATION_STATUS_CANCELLED:
			return nil
		case REGISTRATION_STATUS_PENDING, REGISTRATION_STATUS_CONFIRMED:
			if err := releaseTicket(ctx, tx, registration.TicketTypeID); err != nil {
				return err
			}
		}
		registration.Status = REGISTRATION_STATUS_CANCELLED
		if registration.PaymentStatus == PAYMENT_STATUS_PAID {
			registration.PaymentStatus = PAYMENT_STATUS_REFUNDED
		}
		registration.UpdatedAt = time.Now().UTC()
		_, err = tx.NewUpdate().
			Model(registration).
			Column("status", "payment_status", "updated_at").
			WherePK().
			Exec(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("CancelRegistration: %w", err)
	}
	return registration, nil
}

// CheckIn marks a confirmed registration as checked in. Checking in twice
// keeps the first timestamp and reports alreadyCheckedIn.
func CheckIn(ctx context.Context, db bun.IDB, registration *Registration, now time.Time) (alreadyCheckedIn bool, err error) {
	if registration.Status != REGISTRATION_STATUS_CONFIRMED {
		return false, fmt.Errorf("CheckIn: %w: registration is %s", ErrConflict, registration.Status)
	}
	if registration.CheckedInAt != nil {
		return true, nil
	}
	now = now.UTC()
	res, err := db.NewUpdate().
		Model((*Registration)(nil)).
		Set("checked_in_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", registration.ID).
		Where("checked_in_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("CheckIn: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// lost a race with another scanner
		return true, nil
	}
	registration.CheckedInAt = &now
	registration.UpdatedAt = now
	return false, nil
}
