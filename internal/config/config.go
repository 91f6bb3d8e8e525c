package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                string   `mapstructure:"PORT"`
	Env                 string   `mapstructure:"ENV"`
	DatabaseURL         string   `mapstructure:"DATABASE_URL"`
	DBMaxConns          int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32    `mapstructure:"DB_MIN_CONNS"`
	AuthIssuer          string   `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL         string   `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience        string   `mapstructure:"AUTH_AUDIENCE"`
	CORSOrigins         []string `mapstructure:"CORS_ORIGINS"`
	AutosaveIntervalSec int      `mapstructure:"AUTOSAVE_INTERVAL_SECONDS"`
	AutosaveMaxRetries  int      `mapstructure:"AUTOSAVE_MAX_RETRIES"`
	AssessmentExpiryHrs int      `mapstructure:"ASSESSMENT_EXPIRY_HOURS"`
	ReminderPollSec     int      `mapstructure:"REMINDER_POLL_SECONDS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("AUTOSAVE_INTERVAL_SECONDS", 30)
	v.SetDefault("AUTOSAVE_MAX_RETRIES", 3)
	v.SetDefault("ASSESSMENT_EXPIRY_HOURS", 24)
	v.SetDefault("REMINDER_POLL_SECONDS", 60)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("AUTH_JWKS_URL")
	v.BindEnv("AUTH_AUDIENCE")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("AUTOSAVE_INTERVAL_SECONDS")
	v.BindEnv("AUTOSAVE_MAX_RETRIES")
	v.BindEnv("ASSESSMENT_EXPIRY_HOURS")
	v.BindEnv("REMINDER_POLL_SECONDS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: Authentication is bypassed: all requests get admin access.")
		log.Println("WARNING: Set ENV=production and configure AUTH_ISSUER for production.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// AutosaveInterval returns the draft autosave tick interval.
func (c *Config) AutosaveInterval() time.Duration {
	if c.AutosaveIntervalSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.AutosaveIntervalSec) * time.Second
}

// ReminderPollInterval returns how often the reminder dispatch loop wakes up.
func (c *Config) ReminderPollInterval() time.Duration {
	if c.ReminderPollSec <= 0 {
		return time.Minute
	}
	return time.Duration(c.ReminderPollSec) * time.Second
}

// Validate checks that the configuration is safe to run. In production
// AUTH_ISSUER must be set so real JWT authentication is enforced.
func (c *Config) Validate() error {
	if c.IsProduction() && c.AuthIssuer == "" {
		return fmt.Errorf("AUTH_ISSUER must be set in production; refusing to start without authentication configuration")
	}
	if c.AutosaveIntervalSec < 0 {
		return fmt.Errorf("AUTOSAVE_INTERVAL_SECONDS must not be negative, got %d", c.AutosaveIntervalSec)
	}
	if c.AssessmentExpiryHrs < 0 {
		return fmt.Errorf("ASSESSMENT_EXPIRY_HOURS must not be negative, got %d", c.AssessmentExpiryHrs)
	}
	return nil
}
