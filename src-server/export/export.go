// Package export writes CSV downloads and reads the registration import
// sheet.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"confdesk/src-server/model"
)

const timeLayout = "2006-01-02 15:04"

// cell neutralizes spreadsheet formulas. Phone numbers like +91... are
// left alone.
func cell(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '@', '\t', '\r':
		return "'" + s
	case '+', '-':
		if _, err := strconv.ParseFloat(strings.ReplaceAll(s[1:], " ", ""), 64); err != nil {
			return "'" + s
		}
	}
	return s
}

func formatTime(t *time.Time, loc *time.Location) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.In(loc).Format(timeLayout)
}

type table struct {
	w   *csv.Writer
	err error
}

func newTable(w io.Writer, header ...string) *table {
	t := &table{w: csv.NewWriter(w)}
	t.err = t.w.Write(header)
	return t
}

func (t *table) row(values ...string) {
	if t.err != nil {
		return
	}
	for i := range values {
		values[i] = cell(values[i])
	}
	t.err = t.w.Write(values)
}

func (t *table) close() error {
	if t.err != nil {
		return t.err
	}
	t.w.Flush()
	return t.w.Error()
}

// Registrations writes one row per registration. Custom fields become
// trailing "custom.<key>" columns, sorted by key.
func Registrations(w io.Writer, registrations []model.Registration, ticketNames map[string]string, loc *time.Location) error {
	keySet := make(map[string]struct{})
	for _, r := range registrations {
		for k := range r.CustomFields {
			keySet[k] = struct{}{}
		}
	}
	customKeys := make([]string, 0, len(keySet))
	for k := range keySet {
		customKeys = append(customKeys, k)
	}
	sort.Strings(customKeys)

	header := []string{
		"registration_number", "attendee_name", "email", "phone", "designation",
		"institution", "city", "country", "ticket_type", "status", "payment_status",
		"amount", "currency", "source", "checked_in_at", "registered_at",
	}
	for _, k := range customKeys {
		header = append(header, "custom."+k)
	}
	t := newTable(w, header...)
	for _, r := range registrations {
		values := []string{
			r.RegistrationNumber, r.AttendeeName, r.Email, r.Phone, r.Designation,
			r.Institution, r.City, r.Country, ticketNames[r.TicketTypeID],
			string(r.Status), string(r.PaymentStatus), formatAmount(r.AmountCents),
			r.Currency, string(r.Source), formatTime(r.CheckedInAt, loc), formatTime(&r.CreatedAt, loc),
		}
		for _, k := range customKeys {
			values = append(values, r.CustomFields[k])
		}
		t.row(values...)
	}
	if err := t.close(); err != nil {
		return fmt.Errorf("Registrations: %w", err)
	}
	return nil
}

func formatAmount(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

func Travel(w io.Writer, travel []model.TravelItinerary, loc *time.Location) error {
	t := newTable(w,
		"faculty_name", "faculty_email", "faculty_phone", "status",
		"arrival_mode", "arrival_carrier", "arrival_number", "arrival_from", "arrival_to", "arrival_at",
		"departure_mode", "departure_carrier", "departure_number", "departure_from", "departure_to", "departure_at",
		"hotel_name", "hotel_check_in", "hotel_check_out", "room_type", "confirmation_code",
		"pickup_required", "drop_required", "notes",
	)
	for _, it := range travel {
		var name, email, phone string
		if it.Faculty != nil {
			name, email, phone = it.Faculty.Name, it.Faculty.Email, it.Faculty.Phone
		}
		t.row(
			name, email, phone, string(it.Status),
			it.Arrival.Mode, it.Arrival.Carrier, it.Arrival.Number, it.Arrival.From, it.Arrival.To, formatTime(it.Arrival.At, loc),
			it.Departure.Mode, it.Departure.Carrier, it.Departure.Number, it.Departure.From, it.Departure.To, formatTime(it.Departure.At, loc),
			it.HotelName, formatTime(it.HotelCheckIn, loc), formatTime(it.HotelCheckOut, loc), it.RoomType, it.ConfirmationCode,
			strconv.FormatBool(it.PickupRequired), strconv.FormatBool(it.DropRequired), it.Notes,
		)
	}
	if err := t.close(); err != nil {
		return fmt.Errorf("Travel: %w", err)
	}
	return nil
}

func Abstracts(w io.Writer, abstracts []model.Abstract, loc *time.Location) error {
	t := newTable(w,
		"abstract_number", "title", "presenting_author", "authors", "email", "category", "track",
		"keywords", "presentation_type", "status", "average_score", "review_count",
		"decision_note", "submitted_at", "decided_at",
	)
	for _, a := range abstracts {
		t.row(
			a.AbstractNumber, a.Title, a.PresentingAuthor, strings.Join(a.Authors, "; "), a.Email,
			a.Category, a.Track, strings.Join(a.Keywords, "; "), string(a.PresentationType), string(a.Status),
			strconv.FormatFloat(a.AverageScore, 'f', 2, 64), strconv.Itoa(a.ReviewCount),
			a.DecisionNote, formatTime(&a.SubmittedAt, loc), formatTime(a.DecidedAt, loc),
		)
	}
	if err := t.close(); err != nil {
		return fmt.Errorf("Abstracts: %w", err)
	}
	return nil
}

// FormSubmissions writes one column per form field in form order.
func FormSubmissions(w io.Writer, form *model.Form, submissions []model.FormSubmission, loc *time.Location) error {
	header := []string{"submitted_at", "email"}
	for _, f := range form.Fields {
		header = append(header, f.Key)
	}
	t := newTable(w, header...)
	for _, s := range submissions {
		values := []string{formatTime(&s.CreatedAt, loc), s.Email}
		for _, f := range form.Fields {
			values = append(values, formatValue(s.Data[f.Key]))
		}
		t.row(values...)
	}
	if err := t.close(); err != nil {
		return fmt.Errorf("FormSubmissions: %w", err)
	}
	return nil
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, formatValue(item))
		}
		return strings.Join(parts, "; ")
	case []string:
		return strings.Join(v, "; ")
	}
	return fmt.Sprint(v)
}

func MessageLogs(w io.Writer, logs []model.MessageLog, loc *time.Location) error {
	t := newTable(w,
		"created_at", "channel", "provider", "recipient", "subject", "status",
		"error", "provider_message_id", "reference_type", "reference_id",
	)
	for _, l := range logs {
		t.row(
			formatTime(&l.CreatedAt, loc), string(l.Channel), l.Provider, l.Recipient, l.Subject,
			string(l.Status), l.Error, l.ProviderMessageID, l.ReferenceType, l.ReferenceID,
		)
	}
	if err := t.close(); err != nil {
		return fmt.Errorf("MessageLogs: %w", err)
	}
	return nil
}
