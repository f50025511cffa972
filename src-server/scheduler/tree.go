// Package scheduler runs the background side of confdesk under a suture
// supervisor: the HTTP server, the polling workers and the bus handlers.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// Tree groups services by layer so a crashing worker is restarted without
// touching the HTTP server.
type Tree struct {
	root    *suture.Supervisor
	workers *suture.Supervisor
	api     *suture.Supervisor
}

func NewTree(logger *slog.Logger) *Tree {
	handler := &sutureslog.Handler{Logger: logger}

	spec := suture.Spec{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          10 * time.Second,
	}
	rootSpec := spec
	rootSpec.EventHook = handler.MustHook()

	t := &Tree{
		root:    suture.New("confdesk", rootSpec),
		workers: suture.New("workers", spec),
		api:     suture.New("api", spec),
	}
	t.root.Add(t.workers)
	t.root.Add(t.api)
	return t
}

func (t *Tree) AddWorker(svc suture.Service) suture.ServiceToken {
	return t.workers.Add(svc)
}

func (t *Tree) AddAPI(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}
