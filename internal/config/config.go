// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds every setting the service reads at start-up.
type Config struct {
	Port        string
	Store       string
	DatabaseURL string
	JWTSecret   string

	// Waitlist policy.
	OfferWindow         time.Duration
	WaitlistRequireFull bool
	SweepInterval       time.Duration

	DefaultLocale string
	RateLimit     string

	Workers     int
	WorkerQueue int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBrokers []string
	KafkaTopic   string

	SMTPHost      string
	SMTPPort      string
	SMTPUsername  string
	SMTPPassword  string
	SMTPFromName  string
	SMTPFromEmail string

	DiscordWebhookID    string
	DiscordWebhookToken string

	RazorpayKey    string
	RazorpaySecret string
}

// Load reads an optional .env file, then the process environment, and
// validates the result. All invalid or missing keys are reported together.
func Load() (*Config, error) {
	// .env is optional when variables come from the environment (Docker, CI).
	_ = godotenv.Load()
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an arbitrary variable source.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, fallback string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return fallback
	}

	cfg := &Config{
		Port:          get("PORT", "8080"),
		Store:         strings.ToLower(get("STORE", StorePostgres)),
		DatabaseURL:   get("DATABASE_URL", ""),
		JWTSecret:     get("JWT_SECRET", ""),
		DefaultLocale: get("DEFAULT_LOCALE", "en"),
		RateLimit:     get("RATE_LIMIT", "100-M"),

		RedisAddr:     get("REDIS_ADDR", ""),
		RedisPassword: get("REDIS_PASSWORD", ""),

		KafkaTopic: get("KAFKA_TOPIC", "activity-notices"),

		SMTPHost:      get("SMTP_HOST", ""),
		SMTPPort:      get("SMTP_PORT", "587"),
		SMTPUsername:  get("SMTP_USERNAME", ""),
		SMTPPassword:  get("SMTP_PASSWORD", ""),
		SMTPFromName:  get("SMTP_FROM_NAME", "Activities"),
		SMTPFromEmail: get("SMTP_FROM_EMAIL", ""),

		DiscordWebhookID:    get("DISCORD_WEBHOOK_ID", ""),
		DiscordWebhookToken: get("DISCORD_WEBHOOK_TOKEN", ""),

		RazorpayKey:    get("RAZORPAY_KEY_ID", ""),
		RazorpaySecret: get("RAZORPAY_KEY_SECRET", ""),
	}

	var missing, invalid []string

	duration := func(key string, fallback time.Duration) time.Duration {
		raw := get(key, "")
		if raw == "" {
			return fallback
		}
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			invalid = append(invalid, key)
			return fallback
		}
		return d
	}
	integer := func(key string, fallback, floor int) int {
		raw := get(key, "")
		if raw == "" {
			return fallback
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < floor {
			invalid = append(invalid, key)
			return fallback
		}
		return n
	}

	cfg.OfferWindow = duration("WAITLIST_OFFER_WINDOW", 24*time.Hour)
	cfg.SweepInterval = duration("SWEEP_INTERVAL", time.Minute)
	cfg.Workers = integer("WORKERS", 4, 1)
	cfg.WorkerQueue = integer("WORKER_QUEUE", 256, 1)
	cfg.RedisDB = integer("REDIS_DB", 0, 0)

	if raw := get("WAITLIST_REQUIRE_FULL", "true"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			invalid = append(invalid, "WAITLIST_REQUIRE_FULL")
			b = true
		}
		cfg.WaitlistRequireFull = b
	}

	if brokers := get("KAFKA_BROKERS", ""); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	if port, err := strconv.Atoi(cfg.Port); err != nil || port <= 0 || port > 65535 {
		invalid = append(invalid, "PORT")
	}

	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	switch cfg.Store {
	case StoreMemory:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
			break
		}
		parsed, err := url.Parse(cfg.DatabaseURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			invalid = append(invalid, "DATABASE_URL")
		}
	default:
		invalid = append(invalid, "STORE")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("config: missing required variables: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return nil, fmt.Errorf("config: invalid values for: %s", strings.Join(invalid, ", "))
	}
	return cfg, nil
}

// SMTPEnabled reports whether email delivery is configured.
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != "" && c.SMTPFromEmail != ""
}

// DiscordEnabled reports whether community announcements are configured.
func (c *Config) DiscordEnabled() bool {
	return c.DiscordWebhookID != "" && c.DiscordWebhookToken != ""
}

// RazorpayEnabled reports whether payment verification and refunds are live.
func (c *Config) RazorpayEnabled() bool {
	return c.RazorpayKey != "" && c.RazorpaySecret != ""
}
