package model_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"confdesk/src-server/model"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	db, err := sql.Open(sqliteshim.ShimName, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	bundb := bun.NewDB(db, sqlitedialect.New())
	t.Cleanup(func() { bundb.Close() })
	if err := model.CreateSchema(context.Background(), bundb); err != nil {
		t.Fatal(err)
	}
	return bundb
}

func newTestEvent(t *testing.T, db bun.IDB, mutate func(*model.Event)) *model.Event {
	t.Helper()
	start := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	event := &model.Event{
		ID:               uuid.NewString(),
		Name:             "Annual Cardiology Summit " + uuid.NewString()[:8],
		StartDate:        start,
		EndDate:          start.Add(48 * time.Hour),
		Status:           model.EVENT_STATUS_PUBLISHED,
		RegistrationOpen: true,
	}
	if mutate != nil {
		mutate(event)
	}
	if err := event.Upsert(context.Background(), db); err != nil {
		t.Fatal(err)
	}
	return event
}

func newTestTicketType(t *testing.T, db bun.IDB, eventID string, priceCents int64, quantity int) *model.TicketType {
	t.Helper()
	ticketType := &model.TicketType{
		ID:            uuid.NewString(),
		EventID:       eventID,
		Name:          "Delegate",
		PriceCents:    priceCents,
		Currency:      "INR",
		QuantityTotal: quantity,
	}
	if err := ticketType.Upsert(context.Background(), db); err != nil {
		t.Fatal(err)
	}
	return ticketType
}
