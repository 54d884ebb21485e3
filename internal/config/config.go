package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort  string `mapstructure:"APP_PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Store: "postgres" or "memory".
	StoreDriver string `mapstructure:"STORE_DRIVER"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	JWTSecret    string `mapstructure:"JWT_HMAC_SECRET"`
	StaticTokens string `mapstructure:"STATIC_TOKENS"`

	// Redis configuration.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisCacheDB  int    `mapstructure:"REDIS_CACHE_DB"`
	RedisQueueDB  int    `mapstructure:"REDIS_QUEUE_DB"`

	BusyCacheTTL    time.Duration `mapstructure:"BUSY_CACHE_TTL"`
	CalendarTimeout time.Duration `mapstructure:"CALENDAR_TIMEOUT"`

	// Google Calendar OAuth client.
	GoogleClientID     string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `mapstructure:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `mapstructure:"GOOGLE_REDIRECT_URL"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	MailFrom     string `mapstructure:"MAIL_FROM"`

	PublicBaseURL    string `mapstructure:"PUBLIC_BASE_URL"`
	QueueEmails      bool   `mapstructure:"QUEUE_EMAILS"`
	ReminderSchedule string `mapstructure:"REMINDER_SCHEDULE"`
	RateLimitPerMin  int    `mapstructure:"RATE_LIMIT_PER_MIN"`
	CORSOrigins      string `mapstructure:"CORS_ORIGINS"`
	// Comma separated proxy IPs/CIDRs whose X-Forwarded-For is trusted.
	TrustedProxies string `mapstructure:"TRUSTED_PROXIES"`
}

var defaults = map[string]any{
	"APP_PORT":             "8080",
	"ENV":                  "development",
	"LOG_LEVEL":            "",
	"STORE_DRIVER":         "postgres",
	"DATABASE_URL":         "",
	"JWT_HMAC_SECRET":      "",
	"STATIC_TOKENS":        "",
	"REDIS_ADDR":           "",
	"REDIS_PASSWORD":       "",
	"REDIS_CACHE_DB":       0,
	"REDIS_QUEUE_DB":       1,
	"BUSY_CACHE_TTL":       "60s",
	"CALENDAR_TIMEOUT":     "5s",
	"GOOGLE_CLIENT_ID":     "",
	"GOOGLE_CLIENT_SECRET": "",
	"GOOGLE_REDIRECT_URL":  "",
	"SMTP_HOST":            "",
	"SMTP_PORT":            587,
	"SMTP_USERNAME":        "",
	"SMTP_PASSWORD":        "",
	"MAIL_FROM":            "bookings@localhost",
	"PUBLIC_BASE_URL":      "http://localhost:8080",
	"QUEUE_EMAILS":         false,
	"REMINDER_SCHEDULE":    "0 * * * *",
	"RATE_LIMIT_PER_MIN":   120,
	"CORS_ORIGINS":         "*",
	"TRUSTED_PROXIES":      "",
}

// Load reads config.yaml from . or ./config when present, then environment
// variables, falling back to defaults for anything unset.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()

	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.StoreDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL required when STORE_DRIVER=postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.QueueEmails && c.RedisAddr == "" {
		return errors.New("QUEUE_EMAILS requires REDIS_ADDR")
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// GoogleEnabled reports whether a Google OAuth client is configured.
func (c Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURL != ""
}

func (c Config) SMTPEnabled() bool {
	return c.SMTPHost != ""
}

// AllowedOrigins splits CORS_ORIGINS on commas.
func (c Config) AllowedOrigins() []string {
	return splitList(c.CORSOrigins)
}

// Proxies splits TRUSTED_PROXIES on commas. Empty means forwarding headers
// are ignored and the peer address identifies the client.
func (c Config) Proxies() []string {
	return splitList(c.TrustedProxies)
}

func splitList(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
