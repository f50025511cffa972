package messaging

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"confdesk/src-server/model"

	"github.com/wneessen/go-mail"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPProvider struct {
	client *mail.Client
	from   string
}

func NewSMTPProvider(cfg SMTPConfig) (*SMTPProvider, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, fmt.Errorf("NewSMTPProvider: SMTP_HOST and EMAIL_FROM are required")
	}
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(15 * time.Second),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewSMTPProvider: %w", err)
	}
	return &SMTPProvider{client: client, from: cfg.From}, nil
}

func (p *SMTPProvider) Name() string           { return "smtp" }
func (p *SMTPProvider) Channel() model.Channel { return model.CHANNEL_EMAIL }

func (p *SMTPProvider) Send(ctx context.Context, msg Message) (Result, error) {
	m := mail.NewMsg()
	if err := m.From(p.from); err != nil {
		return Result{}, fmt.Errorf("smtp: invalid from address: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return Result{}, fmt.Errorf("smtp: invalid recipient: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	m.SetMessageID()
	if err := p.client.DialAndSendWithContext(ctx, m); err != nil {
		return Result{}, fmt.Errorf("smtp: %w", err)
	}
	return Result{ProviderMessageID: m.GetMessageID()}, nil
}

// ResendProvider sends through the Resend HTTP API.
type ResendProvider struct {
	apiKey  string
	from    string
	baseURL string
	client  *http.Client
}

func NewResendProvider(apiKey, from string) (*ResendProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("NewResendProvider: RESEND_API_KEY is required")
	}
	return &ResendProvider{apiKey: apiKey, from: from, baseURL: "https://api.resend.com"}, nil
}

func (p *ResendProvider) Name() string           { return "resend" }
func (p *ResendProvider) Channel() model.Channel { return model.CHANNEL_EMAIL }

func (p *ResendProvider) Send(ctx context.Context, msg Message) (Result, error) {
	var resp struct {
		ID string `json:"id"`
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+p.apiKey)
	if err := postJSON(ctx, p.client, "resend", p.baseURL+"/emails", header, map[string]interface{}{
		"from":    p.from,
		"to":      []string{msg.To},
		"subject": msg.Subject,
		"text":    msg.Body,
	}, &resp); err != nil {
		return Result{}, err
	}
	return Result{ProviderMessageID: resp.ID}, nil
}
