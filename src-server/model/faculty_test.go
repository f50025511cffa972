package model_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"confdesk/src-server/model"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

func newTestFaculty(t *testing.T, db bun.IDB, eventID, name string) *model.Faculty {
	t.Helper()
	faculty := &model.Faculty{
		ID:      uuid.NewString(),
		EventID: eventID,
		Name:    name,
		Email:   uuid.NewString()[:8] + "@example.com",
	}
	if err := faculty.Upsert(context.Background(), db); err != nil {
		t.Fatal(err)
	}
	return faculty
}

func newTestSession(t *testing.T, db bun.IDB, eventID, hall string, start time.Time, d time.Duration) *model.ProgramSession {
	t.Helper()
	session := &model.ProgramSession{
		ID:      uuid.NewString(),
		EventID: eventID,
		Title:   "Session in " + hall,
		Hall:    hall,
		StartAt: start,
		EndAt:   start.Add(d),
	}
	if err := session.Upsert(context.Background(), db); err != nil {
		t.Fatal(err)
	}
	return session
}

func TestFacultyInvite(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	event := newTestEvent(t, db, nil)
	faculty := newTestFaculty(t, db, event.ID, "Dr. Menon")

	if faculty.InviteStatus != model.INVITE_STATUS_PENDING || faculty.InviteToken == "" {
		t.Fatalf("unexpected defaults %+v", faculty)
	}
	token := faculty.InviteToken

	// case: profile update keeps the token
	faculty.Bio = "Interventional cardiologist"
	faculty.InviteToken = ""
	if err := faculty.Upsert(ctx, db); err != nil {
		t.Fatal(err)
	}
	got, err := model.GetFacultyByInviteToken(ctx, db, token)
	if err != nil {
		t.Fatal(err)
	}
	if got.Bio != "Interventional cardiologist" {
		t.Errorf("bio = %q", got.Bio)
	}

	if err := model.MarkInvited(ctx, db, got, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := model.RespondToInvite(ctx, db, got, true, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := model.MarkInvited(ctx, db, got, time.Now()); !errors.Is(err, model.ErrConflict) {
		t.Errorf("expected conflict re-inviting, got %v", err)
	}
	accepted, err := model.ListFaculty(ctx, db, event.ID, model.INVITE_STATUS_ACCEPTED)
	if err != nil {
		t.Fatal(err)
	}
	if len(accepted) != 1 {
		t.Errorf("accepted = %d", len(accepted))
	}

	// case: duplicate email within the event
	dup := &model.Faculty{ID: uuid.NewString(), EventID: event.ID, Name: "Other", Email: faculty.Email}
	if err := dup.Upsert(ctx, db); !errors.Is(err, model.ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
}

func TestProgram(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	event := newTestEvent(t, db, nil)
	faculty := newTestFaculty(t, db, event.ID, "Dr. Menon")
	day := event.StartDate.Add(9 * time.Hour)
	late := newTestSession(t, db, event.ID, "Hall B", day.Add(2*time.Hour), time.Hour)
	early := newTestSession(t, db, event.ID, "Hall A", day, time.Hour)

	if err := model.AssignFaculty(ctx, db, event.ID, &model.SessionAssignment{SessionID: late.ID, FacultyID: faculty.ID}); err != nil {
		t.Fatal(err)
	}
	if err := model.AssignFaculty(ctx, db, event.ID, &model.SessionAssignment{SessionID: late.ID, FacultyID: faculty.ID}); !errors.Is(err, model.ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}

	program, err := model.ListProgram(ctx, db, event.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(program) != 2 || program[0].ID != early.ID || len(program[1].Assignments) != 1 {
		t.Errorf("unexpected program %+v", program)
	}

	sessions, err := model.ListFacultySessions(ctx, db, faculty.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || sessions[0].ID != late.ID {
		t.Errorf("faculty sessions = %+v", sessions)
	}

	// case: invalid range
	bad := &model.ProgramSession{ID: uuid.NewString(), EventID: event.ID, Title: "x", StartAt: day, EndAt: day}
	if err := bad.Upsert(ctx, db); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("expected invalid, got %v", err)
	}

	// case: reminders are claimed once
	claimed, err := model.ClaimReminder(ctx, db, late.ID, faculty.ID, late.StartAt, time.Now())
	if err != nil || !claimed {
		t.Fatalf("first claim: %v %v", claimed, err)
	}
	claimed, err = model.ClaimReminder(ctx, db, late.ID, faculty.ID, late.StartAt, time.Now())
	if err != nil || claimed {
		t.Fatalf("second claim: %v %v", claimed, err)
	}

	// case: deleting faculty removes assignments
	if err := model.DeleteFaculty(ctx, db, event.ID, faculty.ID); err != nil {
		t.Fatal(err)
	}
	got, err := model.GetProgramSession(ctx, db, event.ID, late.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Assignments) != 0 {
		t.Error("assignments should be gone")
	}
}

func TestTravel(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	event := newTestEvent(t, db, nil)
	a := newTestFaculty(t, db, event.ID, "Dr. A")
	b := newTestFaculty(t, db, event.ID, "Dr. B")
	day := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	at := func(h int) *time.Time {
		v := day.Add(time.Duration(h) * time.Hour)
		return &v
	}

	// case: departure before arrival
	if err := model.UpsertTravel(ctx, db, &model.TravelItinerary{
		EventID:   event.ID,
		FacultyID: a.ID,
		Arrival:   model.TravelLeg{Mode: "flight", At: at(10)},
		Departure: model.TravelLeg{Mode: "flight", At: at(8)},
	}); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("expected invalid, got %v", err)
	}

	for _, travel := range []*model.TravelItinerary{
		{EventID: event.ID, FacultyID: a.ID, Arrival: model.TravelLeg{Mode: "flight", Number: "AI 101", At: at(15)}, Departure: model.TravelLeg{At: at(60)}, PickupRequired: true},
		{EventID: event.ID, FacultyID: b.ID, Arrival: model.TravelLeg{Mode: "train", At: at(7)}, PickupRequired: true},
	} {
		if err := model.UpsertTravel(ctx, db, travel); err != nil {
			t.Fatal(err)
		}
	}

	// case: upsert replaces the itinerary for the same faculty
	first, err := model.GetTravel(ctx, db, event.ID, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := model.UpsertTravel(ctx, db, &model.TravelItinerary{
		EventID:        event.ID,
		FacultyID:      a.ID,
		Arrival:        model.TravelLeg{Mode: "flight", Number: "AI 103", At: at(12)},
		PickupRequired: true,
		Status:         model.TRAVEL_STATUS_BOOKED,
	}); err != nil {
		t.Fatal(err)
	}
	second, err := model.GetTravel(ctx, db, event.ID, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID || second.Arrival.Number != "AI 103" || second.Faculty == nil {
		t.Errorf("unexpected itinerary %+v", second)
	}

	pickups, err := model.ListPickups(ctx, db, event.ID, day)
	if err != nil {
		t.Fatal(err)
	}
	if len(pickups) != 2 || pickups[0].FacultyID != b.ID || pickups[1].FacultyID != a.ID {
		t.Errorf("pickups not sorted by arrival: %+v", pickups)
	}
	if pickups, _ := model.ListPickups(ctx, db, event.ID, day.Add(24*time.Hour)); len(pickups) != 0 {
		t.Errorf("next day pickups = %d", len(pickups))
	}
}
