package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"confdesk/src-server/model"

	"github.com/google/uuid"
)

func TestRecipients(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	event := &model.Event{
		ID: uuid.NewString(), Name: "CardioCon", StartDate: start, EndDate: start.Add(24 * time.Hour),
		Status: model.EVENT_STATUS_PUBLISHED, RegistrationOpen: true,
	}
	if err := event.Upsert(ctx, db); err != nil {
		t.Fatal(err)
	}
	ticket := &model.TicketType{ID: uuid.NewString(), EventID: event.ID, Name: "Delegate"}
	if err := ticket.Upsert(ctx, db); err != nil {
		t.Fatal(err)
	}
	reg, err := model.Register(ctx, db, event.ID, model.RegistrationInput{
		TicketTypeID: ticket.ID, AttendeeName: "Asha Rao", Email: "asha@example.org", Phone: "+919800000001",
	}, true)
	if err != nil {
		t.Fatal(err)
	}
	faculty := &model.Faculty{ID: uuid.NewString(), EventID: event.ID, Name: "Dr. Ravi Menon", Email: "ravi@example.org"}
	if err := faculty.Upsert(ctx, db); err != nil {
		t.Fatal(err)
	}

	recipients, err := Recipients(ctx, db, event.ID, model.Audience{}, "https://confdesk.example")
	if err != nil {
		t.Fatal(err)
	}
	if len(recipients) != 1 || recipients[0].ReferenceID != reg.ID {
		t.Fatalf("registrations audience = %+v", recipients)
	}
	if got := recipients[0].Vars["check_in_url"]; got != "https://confdesk.example/c/"+reg.CheckInToken {
		t.Errorf("check_in_url = %q", got)
	}

	recipients, err = Recipients(ctx, db, event.ID, model.Audience{Kind: model.AUDIENCE_FACULTY}, "https://confdesk.example/")
	if err != nil {
		t.Fatal(err)
	}
	if len(recipients) != 1 || recipients[0].ReferenceType != "faculty" {
		t.Fatalf("faculty audience = %+v", recipients)
	}
	if got := recipients[0].Vars["invite_url"]; got != "https://confdesk.example/public/faculty-invites/"+faculty.InviteToken {
		t.Errorf("invite_url = %q", got)
	}
	if recipients[0].Vars["faculty_name"] != "Dr. Ravi Menon" {
		t.Errorf("faculty_name = %q", recipients[0].Vars["faculty_name"])
	}

	if _, err := Recipients(ctx, db, event.ID, model.Audience{Kind: "sponsors"}, ""); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("expected invalid audience, got %v", err)
	}
}
