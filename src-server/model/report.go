package model

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/uptrace/bun"
)

type StatusCount struct {
	Status string `bun:"status" json:"status"`
	Count  int    `bun:"count" json:"count"`
}

type TicketTypeSummary struct {
	TicketTypeID string `bun:"ticket_type_id" json:"ticket_type_id"`
	Name         string `bun:"name" json:"name"`
	Count        int    `bun:"count" json:"count"`
	RevenueCents int64  `bun:"revenue_cents" json:"revenue_cents"`
}

type Dashboard struct {
	EventID string `json:"event_id"`

	Registrations       []StatusCount       `json:"registrations"`
	Payments            []StatusCount       `json:"payments"`
	TicketTypes         []TicketTypeSummary `json:"ticket_types"`
	TotalRegistrations  int                 `json:"total_registrations"`
	ConfirmedCount      int                 `json:"confirmed_count"`
	CheckedInCount      int                 `json:"checked_in_count"`
	CheckInRate         float64             `json:"check_in_rate"`
	RevenueCents        int64               `json:"revenue_cents"`
	Abstracts           []StatusCount       `json:"abstracts"`
	FacultyInvites      []StatusCount       `json:"faculty_invites"`
	Travel              []StatusCount       `json:"travel"`
	CertificatesIssued  int                 `json:"certificates_issued"`
	CertificatesRevoked int                 `json:"certificates_revoked"`
	Messages            []StatusCount       `json:"messages"`
}

// countBy groups rows of model for the event by column.
func countBy(ctx context.Context, db bun.IDB, model interface{}, eventID, column string) ([]StatusCount, error) {
	rows := make([]StatusCount, 0)
	if err := db.NewSelect().
		Model(model).
		ColumnExpr("? AS status", bun.Ident(column)).
		ColumnExpr("COUNT(*) AS count").
		Where("event_id = ?", eventID).
		GroupExpr("?", bun.Ident(column)).
		OrderExpr("? ASC", bun.Ident(column)).
		Scan(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// BuildDashboard aggregates the headline numbers of an event.
func BuildDashboard(ctx context.Context, db bun.IDB, eventID string) (*Dashboard, error) {
	if _, err := GetEvent(ctx, db, eventID); err != nil {
		return nil, fmt.Errorf("BuildDashboard: %w", err)
	}
	d := &Dashboard{EventID: eventID}

	var err error
	groups := []struct {
		dst    *[]StatusCount
		model  interface{}
		column string
	}{
		{&d.Registrations, (*Registration)(nil), "status"},
		{&d.Payments, (*Registration)(nil), "payment_status"},
		{&d.Abstracts, (*Abstract)(nil), "status"},
		{&d.FacultyInvites, (*Faculty)(nil), "invite_status"},
		{&d.Travel, (*TravelItinerary)(nil), "status"},
		{&d.Messages, (*MessageLog)(nil), "status"},
	}
	for _, g := range groups {
		if *g.dst, err = countBy(ctx, db, g.model, eventID, g.column); err != nil {
			return nil, fmt.Errorf("BuildDashboard: count %s: %w", g.column, err)
		}
	}
	for _, row := range d.Registrations {
		d.TotalRegistrations += row.Count
		if row.Status == string(REGISTRATION_STATUS_CONFIRMED) {
			d.ConfirmedCount = row.Count
		}
	}

	d.TicketTypes = make([]TicketTypeSummary, 0)
	if err := db.NewSelect().
		TableExpr("registrations AS r").
		ColumnExpr("r.ticket_type_id AS ticket_type_id").
		ColumnExpr("COALESCE(tt.name, '') AS name").
		ColumnExpr("COUNT(*) AS count").
		ColumnExpr("COALESCE(SUM(CASE WHEN r.payment_status = ? THEN r.amount_cents ELSE 0 END), 0) AS revenue_cents",
			PAYMENT_STATUS_PAID).
		Join("LEFT JOIN ticket_types AS tt ON tt.id = r.ticket_type_id").
		Where("r.event_id = ?", eventID).
		Where("r.status != ?", REGISTRATION_STATUS_CANCELLED).
		GroupExpr("r.ticket_type_id, tt.name").
		OrderExpr("name ASC").
		Scan(ctx, &d.TicketTypes); err != nil {
		return nil, fmt.Errorf("BuildDashboard: ticket types: %w", err)
	}
	for _, row := range d.TicketTypes {
		d.RevenueCents += row.RevenueCents
	}

	if d.CheckedInCount, err = db.NewSelect().
		Model((*Registration)(nil)).
		Where("event_id = ?", eventID).
		Where("checked_in_at IS NOT NULL").
		Count(ctx); err != nil {
		return nil, fmt.Errorf("BuildDashboard: checked in: %w", err)
	}
	if d.ConfirmedCount > 0 {
		d.CheckInRate = math.Round(float64(d.CheckedInCount)/float64(d.ConfirmedCount)*10000) / 10000
	}

	if d.CertificatesIssued, err = db.NewSelect().
		Model((*Certificate)(nil)).
		Where("event_id = ?", eventID).
		Where("revoked_at IS NULL").
		Count(ctx); err != nil {
		return nil, fmt.Errorf("BuildDashboard: certificates: %w", err)
	}
	if d.CertificatesRevoked, err = db.NewSelect().
		Model((*Certificate)(nil)).
		Where("event_id = ?", eventID).
		Where("revoked_at IS NOT NULL").
		Count(ctx); err != nil {
		return nil, fmt.Errorf("BuildDashboard: certificates: %w", err)
	}
	return d, nil
}

type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// DailyRegistrations counts registrations per calendar day in loc. Days are
// bucketed in Go so the query stays portable between sqlite and postgres.
func DailyRegistrations(ctx context.Context, db bun.IDB, eventID string, loc *time.Location) ([]DailyCount, error) {
	var createdAt []time.Time
	if err := db.NewSelect().
		Model((*Registration)(nil)).
		Column("created_at").
		Where("event_id = ?", eventID).
		Scan(ctx, &createdAt); err != nil {
		return nil, fmt.Errorf("DailyRegistrations: %w", err)
	}
	byDay := make(map[string]int)
	for _, at := range createdAt {
		byDay[at.In(loc).Format(time.DateOnly)]++
	}
	days := make([]DailyCount, 0, len(byDay))
	for day, n := range byDay {
		days = append(days, DailyCount{Date: day, Count: n})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days, nil
}
