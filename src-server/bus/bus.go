// Package bus carries domain events between request handlers and the
// background workers that react to them (confirmation emails, invitations).
// Delivery is in-process and best effort.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
)

const (
	TOPIC_REGISTRATION_CREATED   = "registration.created"
	TOPIC_REGISTRATION_CONFIRMED = "registration.confirmed"
	TOPIC_ABSTRACT_DECIDED       = "abstract.decided"
	TOPIC_FACULTY_INVITED        = "faculty.invited"
	TOPIC_TRAVEL_NOTIFY          = "travel.notify"
)

// Event identifies the record a topic is about. Handlers reload the record
// from the database.
type Event struct {
	EventID   string `json:"event_id"`
	SubjectID string `json:"subject_id"`
	Channel   string `json:"channel,omitempty"`
}

type Bus struct {
	pubsub *gochannel.GoChannel
}

func New(logger *slog.Logger) *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 256},
			watermill.NewSlogLogger(logger),
		),
	}
}

func (b *Bus) Publish(topic string, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("(*Bus).Publish: %w", err)
	}
	if err := b.pubsub.Publish(topic, message.NewMessage(watermill.NewUUID(), payload)); err != nil {
		return fmt.Errorf("(*Bus).Publish: %s: %w", topic, err)
	}
	return nil
}

func (b *Bus) Close() error {
	return b.pubsub.Close()
}

type HandlerFunc func(ctx context.Context, e Event) error

// Handler consumes one topic. It satisfies suture.Service.
type Handler struct {
	bus   *Bus
	topic string
	fn    HandlerFunc

	readyOnce sync.Once
	ready     chan struct{}
}

func (b *Bus) NewHandler(topic string, fn HandlerFunc) *Handler {
	return &Handler{
		bus:   b,
		topic: topic,
		fn:    fn,
		ready: make(chan struct{}),
	}
}

// Ready is closed once the handler is subscribed. Events published before
// that are not seen by this handler.
func (h *Handler) Ready() <-chan struct{} {
	return h.ready
}

func (h *Handler) String() string {
	return "bus:" + h.topic
}

// Serve blocks until ctx is done. Handler errors are logged and the message
// is acked anyway: there is no redelivery.
func (h *Handler) Serve(ctx context.Context) error {
	messages, err := h.bus.pubsub.Subscribe(ctx, h.topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", h.topic, err)
	}
	h.readyOnce.Do(func() { close(h.ready) })

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var e Event
			if err := json.Unmarshal(msg.Payload, &e); err != nil {
				slog.Error("can't decode bus message", "topic", h.topic, "message_uuid", msg.UUID, "error", err)
				msg.Ack()
				continue
			}
			if err := h.fn(ctx, e); err != nil {
				slog.Error("bus handler failed", "topic", h.topic, "event_id", e.EventID, "subject_id", e.SubjectID, "error", err)
			}
			msg.Ack()
		}
	}
}
