package messaging

import (
	"context"
	"log/slog"

	"confdesk/src-server/model"

	"github.com/google/uuid"
)

// LogProvider writes messages to the log instead of sending them. It is
// the default for every channel.
type LogProvider struct {
	channel model.Channel
}

func NewLogProvider(channel model.Channel) *LogProvider {
	return &LogProvider{channel: channel}
}

func (p *LogProvider) Name() string           { return "log" }
func (p *LogProvider) Channel() model.Channel { return p.channel }

func (p *LogProvider) Send(ctx context.Context, msg Message) (Result, error) {
	slog.Info("message",
		"channel", p.channel,
		"to", msg.To,
		"subject", msg.Subject,
		"body_len", len(msg.Body),
	)
	return Result{ProviderMessageID: "log-" + uuid.NewString()}, nil
}
