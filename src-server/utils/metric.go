package utils

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

type HTTPObservation struct {
	Method   string
	Pattern  string
	Status   int
	Duration time.Duration
}

type MessageObservation struct {
	Channel  string
	Provider string
	Status   string
	Latency  time.Duration
}

// BreakerObservation carries a circuit breaker transition. State follows
// gobreaker: 0 closed, 1 half-open, 2 open.
type BreakerObservation struct {
	Provider string
	State    int
}

// MetricChans feed the prometheus collectors in the metric package. Sends
// never block: when nobody is collecting, observations are dropped.
type MetricChans struct {
	DatabaseWrite chan float64
	HTTPRequest   chan HTTPObservation
	MessageSend   chan MessageObservation
	BreakerState  chan BreakerObservation
}

func NewMetricChans() *MetricChans {
	return &MetricChans{
		DatabaseWrite: make(chan float64, 64),
		HTTPRequest:   make(chan HTTPObservation, 256),
		MessageSend:   make(chan MessageObservation, 256),
		BreakerState:  make(chan BreakerObservation, 16),
	}
}

func (m *MetricChans) ObserveDatabaseWrite(latency time.Duration) {
	select {
	case m.DatabaseWrite <- float64(latency.Microseconds()):
	default:
	}
}

func (m *MetricChans) ObserveHTTP(o HTTPObservation) {
	select {
	case m.HTTPRequest <- o:
	default:
	}
}

func (m *MetricChans) ObserveMessage(o MessageObservation) {
	select {
	case m.MessageSend <- o:
	default:
	}
}

func (m *MetricChans) ObserveBreaker(o BreakerObservation) {
	select {
	case m.BreakerState <- o:
	default:
	}
}

// writeLatencyHook reports the latency of INSERT, UPDATE and DELETE queries.
type writeLatencyHook struct {
	chans *MetricChans
}

var _ bun.QueryHook = (*writeLatencyHook)(nil)

func (h *writeLatencyHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *writeLatencyHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	switch event.Operation() {
	case "INSERT", "UPDATE", "DELETE":
		h.chans.ObserveDatabaseWrite(time.Since(event.StartTime))
	}
}
