package scheduler_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"confdesk/src-server/bus"
	"confdesk/src-server/model"
	"confdesk/src-server/scheduler"
	"confdesk/src-server/utils"

	"github.com/google/uuid"
)

type fixture struct {
	as     *utils.AppState
	event  *model.Event
	ticket *model.TicketType
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	as, err := utils.NewTestAppState()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(as.GracefulShutdown)

	start := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	event := &model.Event{
		ID:               uuid.NewString(),
		Name:             "NeuroSummit",
		StartDate:        start,
		EndDate:          start.AddDate(0, 0, 2),
		Status:           model.EVENT_STATUS_PUBLISHED,
		RegistrationOpen: true,
	}
	if err := event.Upsert(context.Background(), as.BunDB); err != nil {
		t.Fatal(err)
	}
	ticket := &model.TicketType{ID: uuid.NewString(), EventID: event.ID, Name: "Delegate"}
	if err := ticket.Upsert(context.Background(), as.BunDB); err != nil {
		t.Fatal(err)
	}
	return &fixture{as: as, event: event, ticket: ticket}
}

func (f *fixture) register(t *testing.T, name, email string) *model.Registration {
	t.Helper()
	reg, err := model.Register(context.Background(), f.as.BunDB, f.event.ID, model.RegistrationInput{
		TicketTypeID: f.ticket.ID,
		AttendeeName: name,
		Email:        email,
	}, true)
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func (f *fixture) faculty(t *testing.T, name string, status model.InviteStatus) *model.Faculty {
	t.Helper()
	faculty := &model.Faculty{
		ID:           uuid.NewString(),
		EventID:      f.event.ID,
		Name:         name,
		Email:        strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.org",
		Phone:        "+919800000000",
		InviteStatus: status,
	}
	if err := faculty.Upsert(context.Background(), f.as.BunDB); err != nil {
		t.Fatal(err)
	}
	return faculty
}

func (f *fixture) logs(t *testing.T, filter model.MessageLogFilter) []model.MessageLog {
	t.Helper()
	logs, err := model.AllMessageLogs(context.Background(), f.as.BunDB, f.event.ID, filter)
	if err != nil {
		t.Fatal(err)
	}
	return logs
}

// eventually polls cond until it holds or two seconds have passed.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRunScheduledMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "Asha Rao", "asha@example.org")
	f.register(t, "Vikram Shah", "vikram@example.org")

	now := time.Now().UTC()
	inline := &model.ScheduledMessage{
		EventID: f.event.ID,
		Channel: model.CHANNEL_EMAIL,
		Subject: "{{event_name}} update",
		Body:    "Dear {{attendee_name}}, halls open at 8.",
		SendAt:  now.Add(time.Minute),
	}
	if err := model.CreateScheduledMessage(ctx, f.as.BunDB, inline, now); err != nil {
		t.Fatal(err)
	}
	missingTemplate := &model.ScheduledMessage{
		EventID:    f.event.ID,
		TemplateID: uuid.NewString(),
		SendAt:     now.Add(time.Minute),
	}
	if err := model.CreateScheduledMessage(ctx, f.as.BunDB, missingTemplate, now); err != nil {
		t.Fatal(err)
	}

	// nothing is due yet
	if err := scheduler.RunScheduledMessages(ctx, f.as, now); err != nil {
		t.Fatal(err)
	}
	if logs := f.logs(t, model.MessageLogFilter{}); len(logs) != 0 {
		t.Fatalf("sent %d messages before send_at", len(logs))
	}

	if err := scheduler.RunScheduledMessages(ctx, f.as, now.Add(2*time.Minute)); err != nil {
		t.Fatal(err)
	}
	messages, err := model.ListScheduledMessages(ctx, f.as.BunDB, f.event.ID)
	if err != nil {
		t.Fatal(err)
	}
	byID := map[string]model.ScheduledMessage{}
	for _, m := range messages {
		byID[m.ID] = m
	}
	if got := byID[inline.ID]; got.Status != model.SCHEDULED_STATUS_SENT || got.SentCount != 2 || got.ProcessedAt == nil {
		t.Errorf("inline message = %+v", got)
	}
	if got := byID[missingTemplate.ID]; got.Status != model.SCHEDULED_STATUS_FAILED || got.Error == "" {
		t.Errorf("message with missing template = %+v", got)
	}

	logs := f.logs(t, model.MessageLogFilter{Status: model.MESSAGE_STATUS_SENT})
	if len(logs) != 2 {
		t.Fatalf("sent logs = %d, want 2", len(logs))
	}
	if logs[0].Subject != "NeuroSummit update" {
		t.Errorf("subject = %q", logs[0].Subject)
	}

	// a second run must not send again
	if err := scheduler.RunScheduledMessages(ctx, f.as, now.Add(3*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if logs := f.logs(t, model.MessageLogFilter{}); len(logs) != 2 {
		t.Errorf("logs after second run = %d, want 2", len(logs))
	}
}

func TestRunSessionReminders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	db := f.as.BunDB

	accepted := f.faculty(t, "Ravi Menon", model.INVITE_STATUS_ACCEPTED)
	pending := f.faculty(t, "Leela Nair", model.INVITE_STATUS_INVITED)

	day := func(d, hour, minute int) time.Time {
		return time.Date(2026, 3, d, hour, minute, 0, 0, time.UTC)
	}
	sessions := []*model.ProgramSession{
		{ID: uuid.NewString(), EventID: f.event.ID, Title: "Stroke update", Hall: "Hall A", StartAt: day(10, 9, 0), EndAt: day(10, 10, 0)},
		{ID: uuid.NewString(), EventID: f.event.ID, Title: "Morning rounds", Hall: "Hall B", StartAt: day(9, 9, 10), EndAt: day(9, 9, 40), RRule: "FREQ=DAILY;COUNT=4"},
		{ID: uuid.NewString(), EventID: f.event.ID, Title: "Epilepsy panel", Hall: "Hall A", StartAt: day(10, 12, 0), EndAt: day(10, 13, 0)},
	}
	for _, s := range sessions {
		if err := s.Upsert(ctx, db); err != nil {
			t.Fatal(err)
		}
		for _, faculty := range []*model.Faculty{accepted, pending} {
			if err := model.AssignFaculty(ctx, db, f.event.ID, &model.SessionAssignment{
				SessionID: s.ID,
				FacultyID: faculty.ID,
				Role:      model.ASSIGNMENT_ROLE_CHAIR,
			}); err != nil {
				t.Fatal(err)
			}
		}
	}

	now := day(10, 8, 45)
	if err := scheduler.RunSessionReminders(ctx, f.as, now); err != nil {
		t.Fatal(err)
	}
	logs := f.logs(t, model.MessageLogFilter{ReferenceType: "faculty"})
	if len(logs) != 2 {
		t.Fatalf("reminders = %d, want 2: %+v", len(logs), logs)
	}
	subjects := map[string]bool{}
	for _, l := range logs {
		if l.ReferenceID != accepted.ID {
			t.Errorf("reminder went to %s, only accepted faculty get reminders", l.ReferenceID)
		}
		subjects[l.Subject] = true
	}
	for _, want := range []string{
		"Reminder: Stroke update at Tue 10 Mar 09:00",
		"Reminder: Morning rounds at Tue 10 Mar 09:10",
	} {
		if !subjects[want] {
			t.Errorf("missing reminder %q in %v", want, subjects)
		}
	}

	// reminders are sent once per occurrence
	if err := scheduler.RunSessionReminders(ctx, f.as, now.Add(5*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if logs := f.logs(t, model.MessageLogFilter{ReferenceType: "faculty"}); len(logs) != 2 {
		t.Errorf("reminders after second run = %d, want 2", len(logs))
	}

	// the next day's occurrence of the recurring session
	if err := scheduler.RunSessionReminders(ctx, f.as, day(11, 8, 50)); err != nil {
		t.Fatal(err)
	}
	if logs := f.logs(t, model.MessageLogFilter{ReferenceType: "faculty"}); len(logs) != 3 {
		t.Errorf("reminders on day two = %d, want 3", len(logs))
	}
}

func TestNotifications(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, h := range scheduler.Notifications(f.as) {
		go h.Serve(ctx)
		<-h.Ready()
	}

	reg := f.register(t, "Asha Rao", "asha@example.org")
	if err := f.as.Bus.Publish(bus.TOPIC_REGISTRATION_CREATED, bus.Event{EventID: f.event.ID, SubjectID: reg.ID}); err != nil {
		t.Fatal(err)
	}
	eventually(t, "registration confirmation", func() bool {
		return len(f.logs(t, model.MessageLogFilter{ReferenceID: reg.ID})) == 1
	})
	if got := f.logs(t, model.MessageLogFilter{ReferenceID: reg.ID})[0]; got.Recipient != "asha@example.org" || got.Subject != "Your registration for NeuroSummit" {
		t.Errorf("confirmation log = %+v", got)
	}

	faculty := f.faculty(t, "Ravi Menon", model.INVITE_STATUS_PENDING)
	if err := f.as.Bus.Publish(bus.TOPIC_FACULTY_INVITED, bus.Event{EventID: f.event.ID, SubjectID: faculty.ID}); err != nil {
		t.Fatal(err)
	}
	eventually(t, "faculty invitation", func() bool {
		return len(f.logs(t, model.MessageLogFilter{ReferenceType: "faculty", ReferenceID: faculty.ID})) == 1
	})

	arrival := time.Date(2026, 3, 9, 14, 30, 0, 0, time.UTC)
	travel := &model.TravelItinerary{
		EventID:   f.event.ID,
		FacultyID: faculty.ID,
		Arrival:   model.TravelLeg{Mode: "flight", Carrier: "6E", Number: "203", From: "BOM", To: "DEL", At: &arrival},
		HotelName: "Lodhi",
	}
	if err := model.UpsertTravel(context.Background(), f.as.BunDB, travel); err != nil {
		t.Fatal(err)
	}
	if err := f.as.Bus.Publish(bus.TOPIC_TRAVEL_NOTIFY, bus.Event{EventID: f.event.ID, SubjectID: faculty.ID, Channel: string(model.CHANNEL_SMS)}); err != nil {
		t.Fatal(err)
	}
	eventually(t, "travel itinerary", func() bool {
		return len(f.logs(t, model.MessageLogFilter{ReferenceType: "travel"})) == 1
	})
	if got := f.logs(t, model.MessageLogFilter{ReferenceType: "travel"})[0]; got.Channel != model.CHANNEL_SMS || got.Recipient != faculty.Phone {
		t.Errorf("travel log = %+v", got)
	}
}

func TestPollerKeepsRunningAfterErrors(t *testing.T) {
	var runs atomic.Int32
	p := scheduler.NewPoller("test", 5*time.Millisecond, func(context.Context, time.Time) error {
		runs.Add(1)
		return errors.New("boom")
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Serve(ctx) }()

	eventually(t, "three runs", func() bool { return runs.Load() >= 3 })
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve returned %v, want context.Canceled", err)
	}
	if p.String() != "test" {
		t.Errorf("String() = %q", p.String())
	}
}

func TestHTTPServerShutsDownOnCancel(t *testing.T) {
	server := &http.Server{
		Addr:    "127.0.0.1:0",
		Handler: http.NotFoundHandler(),
	}
	svc := scheduler.NewHTTPServer(server, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("http server did not stop")
	}
}
