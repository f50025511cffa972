package bus_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"confdesk/src-server/bus"
)

func TestPublishSubscribe(t *testing.T) {
	b := bus.New(slog.Default())
	defer b.Close()

	received := make(chan bus.Event, 2)
	handler := b.NewHandler(bus.TOPIC_REGISTRATION_CREATED, func(ctx context.Context, e bus.Event) error {
		received <- e
		if e.SubjectID == "fail" {
			return errors.New("boom")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- handler.Serve(ctx) }()

	select {
	case <-handler.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("handler never subscribed")
	}

	// a failing handler must not block the next message
	for _, id := range []string{"fail", "r-2"} {
		if err := b.Publish(bus.TOPIC_REGISTRATION_CREATED, bus.Event{EventID: "e-1", SubjectID: id}); err != nil {
			t.Fatal(err)
		}
	}
	if err := b.Publish(bus.TOPIC_ABSTRACT_DECIDED, bus.Event{EventID: "e-1", SubjectID: "a-1"}); err != nil {
		t.Fatal(err)
	}

	// delivery order across messages is not guaranteed
	subjects := make(map[string]bool)
	for len(subjects) < 2 {
		select {
		case e := <-received:
			if e.EventID != "e-1" {
				t.Errorf("got %+v, want event e-1", e)
			}
			subjects[e.SubjectID] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out, received %v", subjects)
		}
	}
	if !subjects["fail"] || !subjects["r-2"] {
		t.Errorf("received %v, want fail and r-2", subjects)
	}
	select {
	case e := <-received:
		t.Errorf("unexpected event from another topic: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) && err != nil {
		t.Errorf("Serve returned %v", err)
	}
}
