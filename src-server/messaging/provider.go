// Package messaging sends email, SMS, WhatsApp and Discord messages through
// whichever vendor is configured per channel.
package messaging

import (
	"context"
	"errors"

	"confdesk/src-server/model"
)

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrNoProvider      = errors.New("no provider configured for channel")
	ErrNoAddress       = errors.New("recipient has no address for channel")
)

// Message is one rendered message for one recipient. To is an email
// address, a phone number in E.164 or a Discord channel id.
type Message struct {
	Channel model.Channel
	To      string
	Subject string
	Body    string
}

type Result struct {
	ProviderMessageID string
}

type Provider interface {
	Name() string
	Channel() model.Channel
	Send(ctx context.Context, msg Message) (Result, error)
}
