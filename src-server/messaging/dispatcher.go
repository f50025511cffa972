package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"confdesk/src-server/model"

	"github.com/sony/gobreaker/v2"
	"github.com/uptrace/bun"
	"golang.org/x/time/rate"
)

// Recipient is one addressee with the variables used to render their copy.
type Recipient struct {
	Name           string
	Email          string
	Phone          string
	DiscordChannel string
	Vars           map[string]string

	ReferenceType string
	ReferenceID   string
}

// Outgoing is a message before rendering. Vars apply to every recipient
// and are overridden by the recipient's own.
type Outgoing struct {
	EventID string
	Channel model.Channel
	Subject string
	Body    string
	Vars    map[string]string
}

type Summary struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

type guardedProvider struct {
	provider Provider
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker[Result]
}

// Dispatcher renders, rate limits and sends messages, writing a MessageLog
// row per recipient. Failed sends are not retried.
type Dispatcher struct {
	db        bun.IDB
	perSecond float64

	mu        sync.RWMutex
	channels  map[model.Channel]*guardedProvider
	onResult  func(channel model.Channel, provider string, status model.MessageStatus, latency time.Duration)
	onBreaker func(provider string, state gobreaker.State)
}

func NewDispatcher(db bun.IDB, perSecond float64, providers ...Provider) *Dispatcher {
	if perSecond <= 0 {
		perSecond = 10
	}
	d := &Dispatcher{
		db:        db,
		perSecond: perSecond,
		channels:  make(map[model.Channel]*guardedProvider),
	}
	for _, p := range providers {
		d.SetProvider(p)
	}
	return d
}

// SetProvider installs p for its channel, replacing any previous one.
func (d *Dispatcher) SetProvider(p Provider) {
	name := string(p.Channel()) + ":" + p.Name()
	g := &guardedProvider{
		provider: p,
		limiter:  rate.NewLimiter(rate.Limit(d.perSecond), int(d.perSecond)+1),
		breaker: gobreaker.NewCircuitBreaker[Result](gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("messaging circuit breaker state changed", "provider", name, "from", from.String(), "to", to.String())
				d.mu.RLock()
				hook := d.onBreaker
				d.mu.RUnlock()
				if hook != nil {
					hook(name, to)
				}
			},
		}),
	}
	d.mu.Lock()
	d.channels[p.Channel()] = g
	d.mu.Unlock()
}

// OnResult registers a callback invoked after every send attempt.
func (d *Dispatcher) OnResult(fn func(channel model.Channel, provider string, status model.MessageStatus, latency time.Duration)) {
	d.mu.Lock()
	d.onResult = fn
	d.mu.Unlock()
}

// OnBreakerStateChange registers a callback for circuit breaker transitions.
func (d *Dispatcher) OnBreakerStateChange(fn func(provider string, state gobreaker.State)) {
	d.mu.Lock()
	d.onBreaker = fn
	d.mu.Unlock()
}

// Providers returns the provider name per configured channel.
func (d *Dispatcher) Providers() map[model.Channel]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[model.Channel]string, len(d.channels))
	for channel, g := range d.channels {
		out[channel] = g.provider.Name()
	}
	return out
}

func (d *Dispatcher) guarded(channel model.Channel) (*guardedProvider, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	g, ok := d.channels[channel]
	return g, ok
}

func addressFor(channel model.Channel, r Recipient) string {
	switch channel {
	case model.CHANNEL_EMAIL:
		return strings.TrimSpace(r.Email)
	case model.CHANNEL_SMS, model.CHANNEL_WHATSAPP:
		return strings.TrimSpace(r.Phone)
	case model.CHANNEL_DISCORD:
		return r.DiscordChannel
	}
	return ""
}

// Send delivers out to each recipient. Discord messages are announcements:
// they go to the channel once, whatever the recipient list.
func (d *Dispatcher) Send(ctx context.Context, out Outgoing, recipients []Recipient) (Summary, error) {
	var summary Summary
	g, ok := d.guarded(out.Channel)
	if !ok {
		return summary, fmt.Errorf("(*Dispatcher).Send: %s: %w", out.Channel, ErrNoProvider)
	}
	if out.Channel == model.CHANNEL_DISCORD {
		recipients = []Recipient{{ReferenceType: "announcement"}}
	}

	for _, r := range recipients {
		vars := mergeVars(out.Vars, r.Vars)
		msg := Message{
			Channel: out.Channel,
			To:      addressFor(out.Channel, r),
			Subject: Render(out.Subject, vars),
			Body:    Render(out.Body, vars),
		}
		entry := &model.MessageLog{
			EventID:       out.EventID,
			Channel:       out.Channel,
			Provider:      g.provider.Name(),
			Recipient:     msg.To,
			Subject:       msg.Subject,
			ReferenceType: r.ReferenceType,
			ReferenceID:   r.ReferenceID,
		}

		start := time.Now()
		switch {
		case msg.To == "" && out.Channel != model.CHANNEL_DISCORD:
			entry.Status = model.MESSAGE_STATUS_SKIPPED
			entry.Error = ErrNoAddress.Error()
			entry.Recipient = r.Name
			summary.Skipped++
		default:
			if err := g.limiter.Wait(ctx); err != nil {
				return summary, fmt.Errorf("(*Dispatcher).Send: %w", err)
			}
			result, err := g.breaker.Execute(func() (Result, error) {
				return g.provider.Send(ctx, msg)
			})
			switch {
			case err != nil:
				entry.Status = model.MESSAGE_STATUS_FAILED
				entry.Error = err.Error()
				summary.Failed++
				if !errors.Is(err, gobreaker.ErrOpenState) {
					slog.Warn("can't send message", "channel", out.Channel, "provider", g.provider.Name(), "error", err)
				}
			default:
				entry.Status = model.MESSAGE_STATUS_SENT
				entry.ProviderMessageID = result.ProviderMessageID
				summary.Sent++
			}
		}

		d.mu.RLock()
		hook := d.onResult
		d.mu.RUnlock()
		if hook != nil {
			hook(out.Channel, g.provider.Name(), entry.Status, time.Since(start))
		}
		if err := model.InsertMessageLog(ctx, d.db, entry); err != nil {
			return summary, fmt.Errorf("(*Dispatcher).Send: %w", err)
		}
	}
	return summary, nil
}

// SendTemplate sends the event's template called name to one recipient,
// falling back to the built-in text when the event has none.
func (d *Dispatcher) SendTemplate(ctx context.Context, eventID, name string, vars map[string]string, r Recipient) (Summary, error) {
	tmpl, err := d.ResolveTemplate(ctx, eventID, name)
	if err != nil {
		return Summary{}, err
	}
	return d.Send(ctx, Outgoing{
		EventID: eventID,
		Channel: tmpl.Channel,
		Subject: tmpl.Subject,
		Body:    tmpl.Body,
		Vars:    vars,
	}, []Recipient{r})
}

// ResolveTemplate returns the event's template called name or the default.
func (d *Dispatcher) ResolveTemplate(ctx context.Context, eventID, name string) (Template, error) {
	custom, err := model.FindMessageTemplate(ctx, d.db, eventID, name)
	if err != nil {
		return Template{}, fmt.Errorf("(*Dispatcher).ResolveTemplate: %w", err)
	}
	if custom != nil {
		return Template{Channel: custom.Channel, Subject: custom.Subject, Body: custom.Body}, nil
	}
	tmpl, ok := DefaultTemplate(name)
	if !ok {
		return Template{}, fmt.Errorf("(*Dispatcher).ResolveTemplate: template %q %w", name, model.ErrNotFound)
	}
	return tmpl, nil
}
