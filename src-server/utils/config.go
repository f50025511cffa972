package utils

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"confdesk/src-server/messaging"

	"github.com/caarlos0/env/v11"
)

// Raw environment, parsed by caarlos0/env. Only Config's getters are used
// outside this file.
type rawConfig struct {
	Port string `env:"PORT" envDefault:"8080"`

	DatabaseType string `env:"DATABASE_TYPE" envDefault:"sqlite"`
	DatabaseURL  string `env:"DATABASE_URL" envDefault:"file:confdesk.db?mode=rwc"`

	JWTSecret string        `env:"JWT_SECRET"`
	JWTExpire time.Duration `env:"JWT_EXPIRE" envDefault:"168h"`

	AdminEmail    string `env:"ADMIN_EMAIL"`
	AdminPassword string `env:"ADMIN_PASSWORD"`

	Timezone      string `env:"TIMEZONE"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	RateLimitPublic    int      `env:"RATE_LIMIT_PUBLIC" envDefault:"30"`

	EmailProvider string `env:"EMAIL_PROVIDER" envDefault:"log"`
	EmailFrom     string `env:"EMAIL_FROM" envDefault:"no-reply@confdesk.local"`
	SMTPHost      string `env:"SMTP_HOST"`
	SMTPPort      int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername  string `env:"SMTP_USERNAME"`
	SMTPPassword  string `env:"SMTP_PASSWORD"`
	ResendAPIKey  string `env:"RESEND_API_KEY"`

	SMSProvider       string  `env:"SMS_PROVIDER" envDefault:"log"`
	TwilioAccountSID  string  `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken   string  `env:"TWILIO_AUTH_TOKEN"`
	TwilioFrom        string  `env:"TWILIO_FROM"`
	MSG91AuthKey      string  `env:"MSG91_AUTH_KEY"`
	MSG91SenderID     string  `env:"MSG91_SENDER_ID"`
	WhatsAppProvider  string  `env:"WHATSAPP_PROVIDER" envDefault:"log"`
	WhatsAppToken     string  `env:"WHATSAPP_TOKEN"`
	WhatsAppPhoneID   string  `env:"WHATSAPP_PHONE_NUMBER_ID"`
	InteraktAPIKey    string  `env:"INTERAKT_API_KEY"`
	DiscordBotToken   string  `env:"DISCORD_BOT_TOKEN"`
	DiscordChannelID  string  `env:"DISCORD_CHANNEL_ID"`
	MessagesPerSecond float64 `env:"MESSAGES_PER_SECOND" envDefault:"10"`

	SchedulerInterval        time.Duration `env:"SCHEDULER_INTERVAL" envDefault:"30s"`
	ReminderLead             time.Duration `env:"REMINDER_LEAD" envDefault:"30m"`
	MetricCollectionInterval time.Duration `env:"METRIC_COLLECTION_INTERVAL" envDefault:"15s"`

	StaticWebClientDir string `env:"STATIC_WEB_CLIENT_DIR"`
}

type Config struct {
	raw      rawConfig
	location *time.Location
}

// NewConfig reads the process environment. Callers are expected to have
// loaded .env beforehand.
func NewConfig() (*Config, error) {
	var raw rawConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("NewConfig: parse env: %w", err)
	}
	return newConfig(raw)
}

func newConfig(raw rawConfig) (*Config, error) {
	raw.DatabaseType = strings.ToLower(strings.TrimSpace(raw.DatabaseType))
	switch raw.DatabaseType {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("NewConfig: DATABASE_TYPE must be sqlite or postgres, got %q", raw.DatabaseType)
	}
	slog.Debug("env", "DATABASE_TYPE", raw.DatabaseType)

	if raw.JWTSecret == "" {
		slog.Warn("JWT_SECRET is not set, using an insecure development secret")
		raw.JWTSecret = "confdesk-dev-secret"
	}
	if raw.JWTExpire <= 0 {
		return nil, fmt.Errorf("NewConfig: JWT_EXPIRE must be positive")
	}
	if raw.MessagesPerSecond <= 0 {
		return nil, fmt.Errorf("NewConfig: MESSAGES_PER_SECOND must be positive")
	}
	if raw.SchedulerInterval <= 0 || raw.MetricCollectionInterval <= 0 {
		return nil, fmt.Errorf("NewConfig: SCHEDULER_INTERVAL and METRIC_COLLECTION_INTERVAL must be positive")
	}
	raw.PublicBaseURL = strings.TrimRight(raw.PublicBaseURL, "/")

	var loc *time.Location
	switch raw.Timezone {
	case "":
		slog.Warn("TIMEZONE is not set, using local timezone", "timezone", time.Local)
		loc = time.Local
	case "UTC":
		loc = time.UTC
	default:
		var err error
		if loc, err = time.LoadLocation(raw.Timezone); err != nil {
			return nil, fmt.Errorf("NewConfig: invalid TIMEZONE %q: %w", raw.Timezone, err)
		}
	}
	slog.Debug("env", "TIMEZONE", loc.String())

	if raw.StaticWebClientDir != "" {
		info, err := os.Stat(raw.StaticWebClientDir)
		switch {
		case err != nil:
			return nil, fmt.Errorf("NewConfig: can't stat STATIC_WEB_CLIENT_DIR: %w", err)
		case !info.IsDir():
			return nil, fmt.Errorf("NewConfig: STATIC_WEB_CLIENT_DIR is not a directory")
		}
		raw.StaticWebClientDir = filepath.Clean(raw.StaticWebClientDir)
	}

	return &Config{raw: raw, location: loc}, nil
}

// NewTestConfig returns a config suitable for tests: in-memory defaults,
// log-only messaging providers and UTC.
func NewTestConfig() *Config {
	return &Config{
		raw: rawConfig{
			Port:                     "0",
			DatabaseType:             "sqlite",
			JWTSecret:                "test-secret",
			JWTExpire:                time.Hour,
			PublicBaseURL:            "http://confdesk.test",
			CORSAllowedOrigins:       []string{"*"},
			RateLimitPublic:          1000,
			EmailProvider:            "log",
			EmailFrom:                "no-reply@confdesk.test",
			SMSProvider:              "log",
			WhatsAppProvider:         "log",
			MessagesPerSecond:        1000,
			SchedulerInterval:        time.Second,
			ReminderLead:             30 * time.Minute,
			MetricCollectionInterval: time.Second,
		},
		location: time.UTC,
	}
}

// Get PORT env, default to 8080
func (c *Config) GetPort() string { return c.raw.Port }

func (c *Config) GetDatabaseType() string { return c.raw.DatabaseType }
func (c *Config) GetDatabaseURL() string { return c.raw.DatabaseURL }

func (c *Config) GetJWTSecret() string { return c.raw.JWTSecret }
func (c *Config) GetJWTExpire() time.Duration { return c.raw.JWTExpire }
func (c *Config) GetAdminEmail() string { return c.raw.AdminEmail }
func (c *Config) GetAdminPassword() string { return c.raw.AdminPassword }
func (c *Config) GetLocation() *time.Location { return c.location }
func (c *Config) GetPublicBaseURL() string { return c.raw.PublicBaseURL }
func (c *Config) GetCORSAllowedOrigins() []string { return c.raw.CORSAllowedOrigins }
func (c *Config) GetRateLimitPublic() int { return c.raw.RateLimitPublic }

func (c *Config) GetEmailProvider() string { return c.raw.EmailProvider }
func (c *Config) GetEmailFrom() string { return c.raw.EmailFrom }
func (c *Config) GetSMTPHost() string { return c.raw.SMTPHost }
func (c *Config) GetSMTPPort() int { return c.raw.SMTPPort }
func (c *Config) GetSMTPUsername() string { return c.raw.SMTPUsername }
func (c *Config) GetSMTPPassword() string { return c.raw.SMTPPassword }
func (c *Config) GetResendAPIKey() string { return c.raw.ResendAPIKey }
func (c *Config) GetSMSProvider() string { return c.raw.SMSProvider }
func (c *Config) GetTwilioAccountSID() string { return c.raw.TwilioAccountSID }
func (c *Config) GetTwilioAuthToken() string { return c.raw.TwilioAuthToken }
func (c *Config) GetTwilioFrom() string { return c.raw.TwilioFrom }
func (c *Config) GetMSG91AuthKey() string { return c.raw.MSG91AuthKey }
func (c *Config) GetMSG91SenderID() string { return c.raw.MSG91SenderID }
func (c *Config) GetWhatsAppProvider() string { return c.raw.WhatsAppProvider }
func (c *Config) GetWhatsAppToken() string { return c.raw.WhatsAppToken }
func (c *Config) GetWhatsAppPhoneID() string { return c.raw.WhatsAppPhoneID }
func (c *Config) GetInteraktAPIKey() string { return c.raw.InteraktAPIKey }
func (c *Config) GetDiscordBotToken() string { return c.raw.DiscordBotToken }
func (c *Config) GetDiscordChannelID() string { return c.raw.DiscordChannelID }
func (c *Config) GetMessagesPerSecond() float64 { return c.raw.MessagesPerSecond }

func (c *Config) GetSchedulerInterval() time.Duration { return c.raw.SchedulerInterval }
func (c *Config) GetReminderLead() time.Duration { return c.raw.ReminderLead }
func (c *Config) GetMetricCollectionInterval() time.Duration { return c.raw.MetricCollectionInterval }

// Get STATIC_WEB_CLIENT_DIR env, empty when no dashboard is bundled
func (c *Config) GetStaticWebClientDir() string { return c.raw.StaticWebClientDir }

// MessagingConfig selects the messaging providers.
func (c *Config) MessagingConfig() messaging.Config {
	return messaging.Config{
		EmailProvider: c.raw.EmailProvider,
		EmailFrom:     c.raw.EmailFrom,
		SMTP: messaging.SMTPConfig{
			Host:     c.raw.SMTPHost,
			Port:     c.raw.SMTPPort,
			Username: c.raw.SMTPUsername,
			Password: c.raw.SMTPPassword,
		},
		ResendAPIKey:     c.raw.ResendAPIKey,
		SMSProvider:      c.raw.SMSProvider,
		TwilioAccountSID: c.raw.TwilioAccountSID,
		TwilioAuthToken:  c.raw.TwilioAuthToken,
		TwilioFrom:       c.raw.TwilioFrom,
		MSG91AuthKey:     c.raw.MSG91AuthKey,
		MSG91SenderID:    c.raw.MSG91SenderID,
		WhatsAppProvider: c.raw.WhatsAppProvider,
		WhatsAppToken:    c.raw.WhatsAppToken,
		WhatsAppPhoneID:  c.raw.WhatsAppPhoneID,
		InteraktAPIKey:   c.raw.InteraktAPIKey,
		DiscordBotToken:  c.raw.DiscordBotToken,
		DiscordChannelID: c.raw.DiscordChannelID,
	}
}
