package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"mailflow/utils"
)

// Config holds everything the engine reads from the environment. A .env
// file is honored when present but never overrides real env variables.
type Config struct {
	Environment string `validate:"required"`
	LogLevel    string

	TemplatesDir string `validate:"required"`
	ContactsDir  string `validate:"required"`
	TrackingDir  string `validate:"required"`

	DailyLimit      int           `validate:"min=1"`
	PerDomainLimit  int           `validate:"min=1"`
	MinSendInterval time.Duration
	MaxCooldownWait time.Duration
	StalePolicy     string `validate:"oneof=catchup skip"`

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	FromEmail    string `validate:"omitempty,email"`
	FromName     string

	OptOutBaseURL   string `validate:"required,url"`
	OptOutSecret    string `validate:"required,min=16"`
	TokenTTLDays    int    `validate:"min=1"`
	PhysicalAddress string

	IMAPHost         string
	IMAPPort         int
	IMAPUsername     string
	IMAPPassword     string
	IMAPMailbox      string
	IMAPPollInterval time.Duration

	AlertsEmail string `validate:"omitempty,email"`
	DryRun      bool
	OutboxDir   string
	WatchCron   string
	SentryDSN   string
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set variables directly.
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		TemplatesDir: getEnv("TEMPLATES_DIR", "campaign-templates"),
		ContactsDir:  getEnv("CONTACTS_DIR", "contacts"),
		TrackingDir:  getEnv("TRACKING_DIR", "tracking"),

		DailyLimit:      getEnvAsInt("DAILY_LIMIT", 50),
		PerDomainLimit:  getEnvAsInt("PER_DOMAIN_LIMIT", 5),
		MinSendInterval: time.Duration(getEnvAsInt("MIN_SEND_INTERVAL_SECONDS", 30)) * time.Second,
		MaxCooldownWait: time.Duration(getEnvAsInt("MAX_COOLDOWN_WAIT_SECONDS", 90)) * time.Second,
		StalePolicy:     getEnv("STALE_CAMPAIGN_POLICY", "catchup"),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		FromEmail:    getEnv("MAIL_FROM", ""),
		FromName:     getEnv("MAIL_FROM_NAME", "Campaign System"),

		OptOutBaseURL:   getEnv("OPTOUT_BASE_URL", "https://example.com/optout"),
		OptOutSecret:    getEnv("OPTOUT_SECRET", ""),
		TokenTTLDays:    getEnvAsInt("OPTOUT_TOKEN_TTL_DAYS", 90),
		PhysicalAddress: getEnv("PHYSICAL_ADDRESS", ""),

		IMAPHost:         getEnv("IMAP_HOST", ""),
		IMAPPort:         getEnvAsInt("IMAP_PORT", 993),
		IMAPUsername:     getEnv("IMAP_USERNAME", ""),
		IMAPPassword:     getEnv("IMAP_PASSWORD", ""),
		IMAPMailbox:      getEnv("IMAP_MAILBOX", "INBOX"),
		IMAPPollInterval: time.Duration(getEnvAsInt("IMAP_POLL_INTERVAL_SECONDS", 300)) * time.Second,

		AlertsEmail: getEnv("ALERTS_EMAIL", ""),
		DryRun:      getEnvAsBool("DRY_RUN", false),
		OutboxDir:   getEnv("OUTBOX_DIR", "outbox"),
		WatchCron:   getEnv("WATCH_CRON", ""),
		SentryDSN:   getEnv("SENTRY_DSN", ""),
	}

	if err := utils.ValidateStruct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if !cfg.DryRun {
		if cfg.SMTPHost == "" || cfg.SMTPUsername == "" || cfg.SMTPPassword == "" {
			return nil, fmt.Errorf("SMTP_HOST, SMTP_USERNAME and SMTP_PASSWORD are required unless DRY_RUN=true")
		}
		if cfg.FromEmail == "" {
			return nil, fmt.Errorf("MAIL_FROM is required unless DRY_RUN=true")
		}
	}
	return cfg, nil
}

// IMAPEnabled reports whether the inbound unsubscribe poller should run.
func (c *Config) IMAPEnabled() bool {
	return c.IMAPHost != "" && c.IMAPUsername != "" && c.IMAPPassword != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsBool(key string, fallback bool) bool {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return value
}
