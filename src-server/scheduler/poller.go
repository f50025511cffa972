package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Poller calls run every interval until its context is done. A failed run
// is logged and retried on the next tick; it never stops the service.
type Poller struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context, now time.Time) error
}

func NewPoller(name string, interval time.Duration, run func(ctx context.Context, now time.Time) error) *Poller {
	return &Poller{name: name, interval: interval, run: run}
}

func (p *Poller) Serve(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if err := p.run(ctx, now); err != nil && ctx.Err() == nil {
				slog.Error("worker run failed", "worker", p.name, "error", err)
			}
		}
	}
}

func (p *Poller) String() string {
	return p.name
}
