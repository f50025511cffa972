package messaging

import (
	"context"
	"fmt"
	"sync"

	"confdesk/src-server/model"
)

// Recorder keeps every message it is asked to send. Tests swap it in for a
// real provider; Fail makes sends to matching addresses fail.
type Recorder struct {
	channel model.Channel

	mu       sync.Mutex
	messages []Message
	fail     map[string]bool
}

func NewRecorder(channel model.Channel) *Recorder {
	return &Recorder{channel: channel, fail: make(map[string]bool)}
}

func (r *Recorder) Name() string           { return "recorder" }
func (r *Recorder) Channel() model.Channel { return r.channel }

func (r *Recorder) Fail(to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail[to] = true
}

func (r *Recorder) Send(ctx context.Context, msg Message) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[msg.To] {
		return Result{}, fmt.Errorf("recorder: refusing %s", msg.To)
	}
	r.messages = append(r.messages, msg)
	return Result{ProviderMessageID: fmt.Sprintf("rec-%d", len(r.messages))}, nil
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}
