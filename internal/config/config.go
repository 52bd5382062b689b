package config

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	NotifyLog    = "log"
	NotifyTwilio = "twilio"
)

type Config struct {
	Port             string        `mapstructure:"PORT"`
	Env              string        `mapstructure:"ENV"`
	Store            string        `mapstructure:"STORE"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`
	Timezone         string        `mapstructure:"TIMEZONE"`
	SweepCron        string        `mapstructure:"SWEEP_CRON"`
	ReminderSendHour int           `mapstructure:"REMINDER_SEND_HOUR"`
	RedisURL         string        `mapstructure:"REDIS_URL"`
	SweepLockTTL     time.Duration `mapstructure:"SWEEP_LOCK_TTL"`
	RequestTimeout   time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	RateLimitRPS     float64       `mapstructure:"RATE_LIMIT_RPS"`
	JWTSigningKey    string        `mapstructure:"JWT_SIGNING_KEY"`
	AuthIssuer       string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience     string        `mapstructure:"AUTH_AUDIENCE"`
	NotifyChannel    string        `mapstructure:"NOTIFY_CHANNEL"`
	TwilioAccountSID string        `mapstructure:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string        `mapstructure:"TWILIO_AUTH_TOKEN"`
	TwilioFromNumber string        `mapstructure:"TWILIO_FROM_NUMBER"`
}

var keys = []string{
	"PORT", "ENV", "STORE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"TIMEZONE", "SWEEP_CRON", "REMINDER_SEND_HOUR", "REDIS_URL", "SWEEP_LOCK_TTL",
	"REQUEST_TIMEOUT", "RATE_LIMIT_RPS", "JWT_SIGNING_KEY", "AUTH_ISSUER", "AUTH_AUDIENCE",
	"NOTIFY_CHANNEL", "TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_FROM_NUMBER",
}

// Load reads the environment, with an optional .env file underneath it.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORE", StorePostgres)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("TIMEZONE", "Africa/Bamako")
	v.SetDefault("SWEEP_CRON", "0 8 * * *")
	v.SetDefault("REMINDER_SEND_HOUR", 9)
	v.SetDefault("SWEEP_LOCK_TTL", "10m")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("NOTIFY_CHANNEL", NotifyLog)

	// Unmarshal only sees env vars that are bound.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Location resolves TIMEZONE. The sweep's notion of "today" and the reminder
// send time are read in this zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE=%s", StorePostgres)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store)
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := cron.ParseStandard(c.SweepCron); err != nil {
		return fmt.Errorf("SWEEP_CRON %q: %w", c.SweepCron, err)
	}
	if c.ReminderSendHour < 0 || c.ReminderSendHour > 23 {
		return fmt.Errorf("REMINDER_SEND_HOUR must be between 0 and 23, got %d", c.ReminderSendHour)
	}
	if c.RedisURL != "" && c.SweepLockTTL <= 0 {
		return fmt.Errorf("SWEEP_LOCK_TTL must be positive when REDIS_URL is set")
	}

	if !c.IsDev() && len(c.JWTSigningKey) < 32 {
		return fmt.Errorf("JWT_SIGNING_KEY of at least 32 bytes is required outside development (ENV=%q)", c.Env)
	}

	switch c.NotifyChannel {
	case NotifyLog:
	case NotifyTwilio:
		if c.TwilioAccountSID == "" || c.TwilioAuthToken == "" || c.TwilioFromNumber == "" {
			return fmt.Errorf("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER are required when NOTIFY_CHANNEL=%s", NotifyTwilio)
		}
	default:
		return fmt.Errorf("NOTIFY_CHANNEL must be %q or %q, got %q", NotifyLog, NotifyTwilio, c.NotifyChannel)
	}
	return nil
}
