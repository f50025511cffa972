package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"confdesk/src-server/model"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
)

func TestDispatcherSend(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	recorder := NewRecorder(model.CHANNEL_EMAIL)
	d := NewDispatcher(db, 1000, recorder)

	var results []model.MessageStatus
	d.OnResult(func(channel model.Channel, provider string, status model.MessageStatus, latency time.Duration) {
		results = append(results, status)
	})

	recorder.Fail("bounce@example.org")
	summary, err := d.Send(ctx, Outgoing{
		EventID: "e-1",
		Channel: model.CHANNEL_EMAIL,
		Subject: "Welcome to {{event_name}}",
		Body:    "Hi {{name}}, your number is {{registration_number}}",
		Vars:    map[string]string{"event_name": "CardioCon", "name": "friend"},
	}, []Recipient{
		{Name: "Asha", Email: "asha@example.org", Vars: map[string]string{"name": "Asha", "registration_number": "CARD-000001"}, ReferenceType: "registration", ReferenceID: "r-1"},
		{Name: "No Mail"},
		{Name: "Bounce", Email: "bounce@example.org"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if summary != (Summary{Sent: 1, Failed: 1, Skipped: 1}) {
		t.Errorf("summary = %+v", summary)
	}
	if len(results) != 3 {
		t.Errorf("OnResult called %d times", len(results))
	}

	sent := recorder.Messages()
	if len(sent) != 1 {
		t.Fatalf("recorded %d messages", len(sent))
	}
	if sent[0].Subject != "Welcome to CardioCon" || sent[0].Body != "Hi Asha, your number is CARD-000001" {
		t.Errorf("rendered message = %+v", sent[0])
	}

	logs, total, err := model.ListMessageLogs(ctx, db, "e-1", model.MessageLogFilter{}, model.ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 {
		t.Fatalf("expected 3 logs, got %d", total)
	}
	byStatus := make(map[model.MessageStatus]model.MessageLog)
	for _, l := range logs {
		byStatus[l.Status] = l
	}
	if l := byStatus[model.MESSAGE_STATUS_SENT]; l.ReferenceID != "r-1" || l.ProviderMessageID == "" || l.Provider != "recorder" {
		t.Errorf("sent log = %+v", l)
	}
	if l := byStatus[model.MESSAGE_STATUS_SKIPPED]; l.Error == "" {
		t.Errorf("skipped log has no reason: %+v", l)
	}
	if l := byStatus[model.MESSAGE_STATUS_FAILED]; l.Recipient != "bounce@example.org" || l.Error == "" {
		t.Errorf("failed log = %+v", l)
	}
}

func TestDispatcherNoProvider(t *testing.T) {
	d := NewDispatcher(newTestDB(t), 10)
	if _, err := d.Send(context.Background(), Outgoing{Channel: model.CHANNEL_SMS, Body: "x"}, []Recipient{{Phone: "+15550001"}}); !errors.Is(err, ErrNoProvider) {
		t.Errorf("got %v", err)
	}
}

func TestDispatcherDiscordAnnouncesOnce(t *testing.T) {
	recorder := NewRecorder(model.CHANNEL_DISCORD)
	d := NewDispatcher(newTestDB(t), 1000, recorder)
	summary, err := d.Send(context.Background(), Outgoing{
		EventID: "e-1",
		Channel: model.CHANNEL_DISCORD,
		Body:    "Doors open at 9 for {{event_name}}",
		Vars:    map[string]string{"event_name": "CardioCon"},
	}, []Recipient{{Name: "a"}, {Name: "b"}, {Name: "c"}})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Sent != 1 || len(recorder.Messages()) != 1 {
		t.Errorf("expected a single announcement, got %+v", summary)
	}
	if got := recorder.Messages()[0].Body; got != "Doors open at 9 for CardioCon" {
		t.Errorf("body = %q", got)
	}
}

func TestDispatcherCircuitBreakerOpens(t *testing.T) {
	recorder := NewRecorder(model.CHANNEL_SMS)
	d := NewDispatcher(newTestDB(t), 1000, recorder)
	opened := false
	d.OnBreakerStateChange(func(provider string, state gobreaker.State) {
		if state == gobreaker.StateOpen {
			opened = true
		}
	})
	recorder.Fail("+15550000")
	recipients := make([]Recipient, 8)
	for i := range recipients {
		recipients[i] = Recipient{Phone: "+15550000"}
	}
	summary, err := d.Send(context.Background(), Outgoing{EventID: "e-1", Channel: model.CHANNEL_SMS, Body: "x"}, recipients)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Failed != 8 {
		t.Errorf("summary = %+v", summary)
	}
	if !opened {
		t.Error("breaker did not open after consecutive failures")
	}
	// breaker is open: the provider is not even called
	if len(recorder.Messages()) != 0 {
		t.Errorf("unexpected deliveries: %d", len(recorder.Messages()))
	}
}

func TestSendTemplate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	recorder := NewRecorder(model.CHANNEL_EMAIL)
	d := NewDispatcher(db, 1000, recorder)
	eventID := uuid.NewString()

	if _, err := d.SendTemplate(ctx, eventID, model.TEMPLATE_REGISTRATION_CONFIRMATION,
		map[string]string{"event_name": "CardioCon", "attendee_name": "Asha"},
		Recipient{Email: "asha@example.org"}); err != nil {
		t.Fatal(err)
	}
	if got := recorder.Messages()[0].Subject; got != "Your registration for CardioCon" {
		t.Errorf("default subject = %q", got)
	}

	custom := &model.MessageTemplate{
		ID:      uuid.NewString(),
		EventID: eventID,
		Name:    model.TEMPLATE_REGISTRATION_CONFIRMATION,
		Channel: model.CHANNEL_EMAIL,
		Subject: "See you at {{event_name}}",
		Body:    "Hello {{attendee_name}}",
	}
	if err := custom.Upsert(ctx, db); err != nil {
		t.Fatal(err)
	}
	if _, err := d.SendTemplate(ctx, eventID, model.TEMPLATE_REGISTRATION_CONFIRMATION,
		map[string]string{"event_name": "CardioCon", "attendee_name": "Asha"},
		Recipient{Email: "asha@example.org"}); err != nil {
		t.Fatal(err)
	}
	if got := recorder.Messages()[1]; got.Subject != "See you at CardioCon" || got.Body != "Hello Asha" {
		t.Errorf("custom template not used: %+v", got)
	}

	if _, err := d.SendTemplate(ctx, eventID, "no_such_template", nil, Recipient{Email: "x@example.org"}); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("unknown template: got %v", err)
	}
}
