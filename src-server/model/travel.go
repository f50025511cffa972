package model

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

type TravelStatus string

const (
	TRAVEL_STATUS_PENDING   = TravelStatus("pending")
	TRAVEL_STATUS_BOOKED    = TravelStatus("booked")
	TRAVEL_STATUS_CONFIRMED = TravelStatus("confirmed")
	TRAVEL_STATUS_CANCELLED = TravelStatus("cancelled")
)

// TravelLeg is one journey. Mode is flight, train, bus, car or other.
type TravelLeg struct {
	Mode    string     `bun:"mode" json:"mode"`
	Carrier string     `bun:"carrier" json:"carrier"`
	Number  string     `bun:"number" json:"number"`
	From    string     `bun:"from_place" json:"from"`
	To      string     `bun:"to_place" json:"to"`
	At      *time.Time `bun:"at" json:"at,omitempty"`
}

type TravelItinerary struct {
	bun.BaseModel `bun:"table:travel_itineraries"`

	ID        string `bun:"id,pk" json:"id"`
	EventID   string `bun:"event_id,notnull,unique:travel_event_faculty" json:"event_id"`
	FacultyID string `bun:"faculty_id,notnull,unique:travel_event_faculty" json:"faculty_id"`

	Arrival   TravelLeg `bun:"embed:arrival_" json:"arrival"`
	Departure TravelLeg `bun:"embed:departure_" json:"departure"`

	HotelName        string     `bun:"hotel_name" json:"hotel_name"`
	HotelCheckIn     *time.Time `bun:"hotel_check_in" json:"hotel_check_in,omitempty"`
	HotelCheckOut    *time.Time `bun:"hotel_check_out" json:"hotel_check_out,omitempty"`
	RoomType         string     `bun:"room_type" json:"room_type"`
	ConfirmationCode string     `bun:"confirmation_code" json:"confirmation_code"`

	PickupRequired bool         `bun:"pickup_required,notnull" json:"pickup_required"`
	DropRequired   bool         `bun:"drop_required,notnull" json:"drop_required"`
	Status         TravelStatus `bun:"status,notnull,type:varchar" json:"status"`
	Notes          string       `bun:"notes" json:"notes"`

	Faculty *Faculty `bun:"rel:belongs-to,join:faculty_id=id" json:"faculty,omitempty"`

	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

func (t *TravelItinerary) validate() error {
	switch {
	case t.EventID == "" || t.FacultyID == "":
		return fmt.Errorf("%w: event and faculty are required", ErrInvalid)
	case t.Arrival.At != nil && t.Departure.At != nil && !t.Departure.At.After(*t.Arrival.At):
		return fmt.Errorf("%w: departure must be after arrival", ErrInvalid)
	case t.HotelCheckIn != nil && t.HotelCheckOut != nil && !t.HotelCheckOut.After(*t.HotelCheckIn):
		return fmt.Errorf("%w: hotel check-out must be after check-in", ErrInvalid)
	}
	switch t.Status {
	case TRAVEL_STATUS_PENDING, TRAVEL_STATUS_BOOKED, TRAVEL_STATUS_CONFIRMED, TRAVEL_STATUS_CANCELLED:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalid, t.Status)
	}
	return nil
}

// Variables returns placeholder values for the itinerary message.
func (t *TravelItinerary) Variables(loc *time.Location) map[string]string {
	format := func(at *time.Time) string {
		if at == nil {
			return "-"
		}
		return at.In(loc).Format("Mon 02 Jan 2006 15:04")
	}
	leg := func(l TravelLeg) string {
		if l.Mode == "" && l.At == nil {
			return "-"
		}
		return fmt.Sprintf("%s %s %s, %s -> %s, %s", l.Mode, l.Carrier, l.Number, l.From, l.To, format(l.At))
	}
	return map[string]string{
		"arrival":           leg(t.Arrival),
		"departure":         leg(t.Departure),
		"arrival_at":        format(t.Arrival.At),
		"departure_at":      format(t.Departure.At),
		"hotel_name":        t.HotelName,
		"hotel_check_in":    format(t.HotelCheckIn),
		"hotel_check_out":   format(t.HotelCheckOut),
		"room_type":         t.RoomType,
		"confirmation_code": t.ConfirmationCode,
		"travel_status":     string(t.Status),
	}
}

// UpsertTravel writes the faculty member's itinerary for the event; there
// is at most one per (event, faculty).
func UpsertTravel(ctx context.Context, db bun.IDB, t *TravelItinerary) error {
	if t.Status == "" {
		t.Status = TRAVEL_STATUS_PENDING
	}
	if err := t.validate(); err != nil {
		return fmt.Errorf("UpsertTravel: %w", err)
	}
	if _, err := GetFaculty(ctx, db, t.EventID, t.FacultyID); err != nil {
		return fmt.Errorf("UpsertTravel: %w", err)
	}

	existing := new(TravelItinerary)
	err := db.NewSelect().
		Model(existing).
		Where("event_id = ?", t.EventID).
		Where("faculty_id = ?", t.FacultyID).
		Limit(1).
		Scan(ctx)
	now := time.Now().UTC()
	t.UpdatedAt = now
	switch {
	case err == nil:
		t.ID = existing.ID
		t.CreatedAt = existing.CreatedAt
		if _, err := db.NewUpdate().
			Model(t).
			ExcludeColumn("id", "event_id", "faculty_id", "created_at").
			WherePK().
			Exec(ctx); err != nil {
			return fmt.Errorf("UpsertTravel: %w", err)
		}
	case notFoundErr(err):
		t.ID = newID()
		t.CreatedAt = now
		if _, err := db.NewInsert().
			Model(t).
			Exec(ctx); err != nil {
			return fmt.Errorf("UpsertTravel: %w", err)
		}
	default:
		return fmt.Errorf("UpsertTravel: %w", err)
	}
	return nil
}

func GetTravel(ctx context.Context, db bun.IDB, eventID, facultyID string) (*TravelItinerary, error) {
	travel := new(TravelItinerary)
	if err := db.NewSelect().
		Model(travel).
		Relation("Faculty").
		Where("travel_itinerary.event_id = ?", eventID).
		Where("travel_itinerary.faculty_id = ?", facultyID).
		Limit(1).
		Scan(ctx); err != nil {
		return nil, notFound(err, "travel itinerary")
	}
	return travel, nil
}

func ListTravel(ctx context.Context, db bun.IDB, eventID string, status TravelStatus) ([]TravelItinerary, error) {
	travel := make([]TravelItinerary, 0)
	q := db.NewSelect().
		Model(&travel).
		Relation("Faculty").
		Where("travel_itinerary.event_id = ?", eventID).
		OrderExpr("travel_itinerary.arrival_at IS NULL").
		Order("travel_itinerary.arrival_at ASC")
	if status != "" {
		q = q.Where("travel_itinerary.status = ?", status)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("ListTravel: %w", err)
	}
	return travel, nil
}

// ListPickups returns non-cancelled arrivals needing a pickup within
// [dayStart, dayStart+24h), ordered by arrival time.
func ListPickups(ctx context.Context, db bun.IDB, eventID string, dayStart time.Time) ([]TravelItinerary, error) {
	dayStart = dayStart.UTC()
	travel := make([]TravelItinerary, 0)
	if err := db.NewSelect().
		Model(&travel).
		Relation("Faculty").
		Where("travel_itinerary.event_id = ?", eventID).
		Where("travel_itinerary.pickup_required = ?", true).
		Where("travel_itinerary.status != ?", TRAVEL_STATUS_CANCELLED).
		Where("travel_itinerary.arrival_at >= ?", dayStart).
		Where("travel_itinerary.arrival_at < ?", dayStart.Add(24*time.Hour)).
		Order("travel_itinerary.arrival_at ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("ListPickups: %w", err)
	}
	return travel, nil
}
