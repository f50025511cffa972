package messaging

import (
	"fmt"
	"strings"

	"confdesk/src-server/model"
)

// Config selects a provider per channel. Discord is enabled when both its
// token and channel are set.
type Config struct {
	EmailProvider string
	EmailFrom     string
	SMTP          SMTPConfig
	ResendAPIKey  string

	SMSProvider      string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string
	MSG91AuthKey     string
	MSG91SenderID    string

	WhatsAppProvider string
	WhatsAppToken    string
	WhatsAppPhoneID  string
	InteraktAPIKey   string

	DiscordBotToken  string
	DiscordChannelID string
}

// NewProviders builds the configured provider for every channel. An unknown
// provider name is an error.
func NewProviders(cfg Config) ([]Provider, error) {
	providers := make([]Provider, 0, 4)

	var email Provider
	var err error
	switch strings.ToLower(cfg.EmailProvider) {
	case "", "log":
		email = NewLogProvider(model.CHANNEL_EMAIL)
	case "smtp":
		smtp := cfg.SMTP
		smtp.From = cfg.EmailFrom
		email, err = NewSMTPProvider(smtp)
	case "resend":
		email, err = NewResendProvider(cfg.ResendAPIKey, cfg.EmailFrom)
	default:
		return nil, fmt.Errorf("NewProviders: EMAIL_PROVIDER %q: %w", cfg.EmailProvider, ErrUnknownProvider)
	}
	if err != nil {
		return nil, err
	}
	providers = append(providers, email)

	var sms Provider
	switch strings.ToLower(cfg.SMSProvider) {
	case "", "log":
		sms = NewLogProvider(model.CHANNEL_SMS)
	case "twilio":
		sms, err = NewTwilioProvider(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFrom)
	case "msg91":
		sms, err = NewMSG91Provider(cfg.MSG91AuthKey, cfg.MSG91SenderID)
	default:
		return nil, fmt.Errorf("NewProviders: SMS_PROVIDER %q: %w", cfg.SMSProvider, ErrUnknownProvider)
	}
	if err != nil {
		return nil, err
	}
	providers = append(providers, sms)

	var whatsapp Provider
	switch strings.ToLower(cfg.WhatsAppProvider) {
	case "", "log":
		whatsapp = NewLogProvider(model.CHANNEL_WHATSAPP)
	case "meta":
		whatsapp, err = NewMetaWhatsAppProvider(cfg.WhatsAppToken, cfg.WhatsAppPhoneID)
	case "interakt":
		whatsapp, err = NewInteraktProvider(cfg.InteraktAPIKey)
	default:
		return nil, fmt.Errorf("NewProviders: WHATSAPP_PROVIDER %q: %w", cfg.WhatsAppProvider, ErrUnknownProvider)
	}
	if err != nil {
		return nil, err
	}
	providers = append(providers, whatsapp)

	if cfg.DiscordBotToken != "" && cfg.DiscordChannelID != "" {
		discord, err := NewDiscordProvider(cfg.DiscordBotToken, cfg.DiscordChannelID)
		if err != nil {
			return nil, err
		}
		providers = append(providers, discord)
	}
	return providers, nil
}
