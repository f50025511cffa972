package model

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type TicketTypeStatus string

const (
	TICKET_TYPE_STATUS_ACTIVE = TicketTypeStatus("active")
	TICKET_TYPE_STATUS_PAUSED = TicketTypeStatus("paused")
	TICKET_TYPE_STATUS_HIDDEN = TicketTypeStatus("hidden")
)

type TicketType struct {
	bun.BaseModel `bun:"table:ticket_types"`

	ID            string           `bun:"id,pk" json:"id"`
	EventID       string           `bun:"event_id,notnull" json:"event_id"`
	Name          string           `bun:"name,notnull" json:"name"`
	Description   string           `bun:"description" json:"description"`
	PriceCents    int64            `bun:"price_cents,notnull" json:"price_cents"`
	Currency      string           `bun:"currency,notnull" json:"currency"`
	QuantityTotal int              `bun:"quantity_total,notnull" json:"quantity_total"` // 0 = unlimited
	QuantitySold  int              `bun:"quantity_sold,notnull" json:"quantity_sold"`
	SalesStart    *time.Time       `bun:"sales_start" json:"sales_start,omitempty"`
	SalesEnd      *time.Time       `bun:"sales_end" json:"sales_end,omitempty"`
	Status        TicketTypeStatus `bun:"status,notnull,type:varchar" json:"status"`
	SortOrder     int              `bun:"sort_order,notnull" json:"sort_order"`

	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

func (t *TicketType) IsFree() bool {
	return t.PriceCents == 0
}

// Remaining returns the number of tickets left, or -1 when unlimited.
func (t *TicketType) Remaining() int {
	if t.QuantityTotal == 0 {
		return -1
	}
	if left := t.QuantityTotal - t.QuantitySold; left > 0 {
		return left
	}
	return 0
}

// Available reports whether a ticket of this type can be sold at now.
func (t *TicketType) Available(now time.Time) error {
	switch {
	case t.Status != TICKET_TYPE_STATUS_ACTIVE:
		return fmt.Errorf("%w: ticket type %q is %s", ErrUnavailable, t.Name, t.Status)
	case t.SalesStart != nil && now.Before(*t.SalesStart):
		return fmt.Errorf("%w: sales for %q have not started", ErrUnavailable, t.Name)
	case t.SalesEnd != nil && now.After(*t.SalesEnd):
		return fmt.Errorf("%w: sales for %q have ended", ErrUnavailable, t.Name)
	case t.Remaining() == 0:
		return ErrSoldOut
	}
	return nil
}

func (t *TicketType) validate() error {
	switch {
	case t.ID == "":
		return fmt.Errorf("%w: ticket type id is blank", ErrInvalid)
	case t.EventID == "":
		return fmt.Errorf("%w: event id is blank", ErrInvalid)
	case strings.TrimSpace(t.Name) == "":
		return fmt.Errorf("%w: name is blank", ErrInvalid)
	case t.PriceCents < 0:
		return fmt.Errorf("%w: price must not be negative", ErrInvalid)
	case t.QuantityTotal < 0:
		return fmt.Errorf("%w: quantity must not be negative", ErrInvalid)
	case t.SalesStart != nil && t.SalesEnd != nil && t.SalesEnd.Before(*t.SalesStart):
		return fmt.Errorf("%w: sales end must be after sales start", ErrInvalid)
	}
	switch t.Status {
	case TICKET_TYPE_STATUS_ACTIVE, TICKET_TYPE_STATUS_PAUSED, TICKET_TYPE_STATUS_HIDDEN:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalid, t.Status)
	}
	return nil
}

// Upsert writes the ticket type. On update quantity_sold is never touched
// and quantity_total can't drop below what has been sold.
func (t *TicketType) Upsert(ctx context.Context, db bun.IDB) error {
	if t.Status == "" {
		t.Status = TICKET_TYPE_STATUS_ACTIVE
	}
	if err := t.validate(); err != nil {
		return fmt.Errorf("(*TicketType).Upsert: %w", err)
	}

	existing := new(TicketType)
	err := db.NewSelect().
		Model(existing).
		Where("id = ?", t.ID).
		Limit(1).
		Scan(ctx)
	now := time.Now().UTC()
	t.UpdatedAt = now
	switch {
	case err == nil:
		if existing.EventID != t.EventID {
			return fmt.Errorf("(*TicketType).Upsert: %w: ticket type belongs to another event", ErrConflict)
		}
		t.QuantitySold = existing.QuantitySold
		t.CreatedAt = existing.CreatedAt
		if t.QuantityTotal != 0 && t.QuantityTotal < t.QuantitySold {
			return fmt.Errorf("(*TicketType).Upsert: %w: quantity %d is below the %d already sold",
				ErrConflict, t.QuantityTotal, t.QuantitySold)
		}
		if _, err := db.NewUpdate().
			Model(t).
			ExcludeColumn("id", "event_id", "quantity_sold", "created_at").
			WherePK().
			Exec(ctx); err != nil {
			return fmt.Errorf("(*TicketType).Upsert: %w", err)
		}
	case notFoundErr(err):
		t.CreatedAt = now
		t.QuantitySold = 0
		if _, err := db.NewInsert().
			Model(t).
			Exec(ctx); err != nil {
			return fmt.Errorf("(*TicketType).Upsert: %w", err)
		}
	default:
		return fmt.Errorf("(*TicketType).Upsert: %w", err)
	}
	return nil
}

func GetTicketType(ctx context.Context, db bun.IDB, eventID, id string) (*TicketType, error) {
	ticketType := new(TicketType)
	if err := db.NewSelect().
		Model(ticketType).
		Where("id = ?", id).
		Where("event_id = ?", eventID).
		Limit(1).
		Scan(ctx); err != nil {
		return nil, notFound(err, "ticket type")
	}
	return ticketType, nil
}

func ListTicketTypes(ctx context.Context, db bun.IDB, eventID string, publicOnly bool) ([]TicketType, error) {
	ticketTypes := make([]TicketType, 0)
	q := db.NewSelect().
		Model(&ticketTypes).
		Where("event_id = ?", eventID).
		Order("sort_order ASC", "created_at ASC")
	if publicOnly {
		q = q.Where("status = ?", TICKET_TYPE_STATUS_ACTIVE)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("ListTicketTypes: %w", err)
	}
	return ticketTypes, nil
}

// DeleteTicketType removes a ticket type nobody has bought.
func DeleteTicketType(ctx context.Context, db bun.IDB, eventID, id string) error {
	ticketType, err := GetTicketType(ctx, db, eventID, id)
	if err != nil {
		return fmt.Errorf("DeleteTicketType: %w", err)
	}
	if ticketType.QuantitySold > 0 {
		return fmt.Errorf("DeleteTicketType: %w: %d tickets already sold", ErrConflict, ticketType.QuantitySold)
	}
	if _, err := db.NewDelete().
		Model((*TicketType)(nil)).
		Where("id = ?", id).
		Exec(ctx); err != nil {
		return fmt.Errorf("DeleteTicketType: %w", err)
	}
	return nil
}

// reserveTicket increments quantity_sold unless the type is sold out.
func reserveTicket(ctx context.Context, db bun.IDB, id string) error {
	res, err := db.NewUpdate().
		Model((*TicketType)(nil)).
		Set("quantity_sold = quantity_sold + 1").
		Where("id = ?", id).
		Where("(quantity_total = 0 OR quantity_sold < quantity_total)").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("reserveTicket: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("reserveTicket: %w", err)
	} else if n == 0 {
		return ErrSoldOut
	}
	return nil
}

// releaseTicket gives a ticket back to the pool.
func releaseTicket(ctx context.Context, db bun.IDB, id string) error {
	if _, err := db.NewUpdate().
		Model((*TicketType)(nil)).
		Set("quantity_sold = quantity_sold - 1").
		Where("id = ?", id).
		Where("quantity_sold > 0").
		Exec(ctx); err != nil {
		return fmt.Errorf("releaseTicket: %w", err)
	}
	return nil
}
