// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN for the session/alert/location store.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisAddr is the address of the Redis instance backing the realtime bus.
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RedisPassword is the optional Redis password.
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	// AMQPURL is the RabbitMQ URL for best-effort notification delivery; empty disables it.
	AMQPURL string `mapstructure:"AMQP_URL"`
	// NotifyExchange is the fanout exchange notifications are published to.
	NotifyExchange string `mapstructure:"NOTIFY_EXCHANGE"`
	// ClassifierURL is the base URL of the cry-classification service; empty disables detection.
	ClassifierURL string `mapstructure:"CLASSIFIER_URL"`
	// AuthJWTSecret verifies caller tokens issued by the external auth service (HS256).
	AuthJWTSecret string `mapstructure:"AUTH_JWT_SECRET"`

	// LocationInterval is the GPS polling interval (e.g. "30s").
	LocationInterval string `mapstructure:"LOCATION_UPDATE_INTERVAL"`
	// DetectionWindow is the audio duty cycle between classifications (e.g. "3s").
	DetectionWindow string `mapstructure:"DETECTION_WINDOW"`
	// CryAlertCooldown suppresses duplicate cry alerts raised within this window (e.g. "60s").
	CryAlertCooldown string `mapstructure:"CRY_ALERT_COOLDOWN"`
	// GPSAnomalyKm is how far a sample may sit from the session's care location before a gps_anomaly alert is raised.
	GPSAnomalyKm float64 `mapstructure:"GPS_ANOMALY_KM"`
	// CryScoreThreshold is the minimum classifier score treated as a positive detection.
	CryScoreThreshold float64 `mapstructure:"CRY_SCORE_THRESHOLD"`

	// LogFormat selects zap output: "json" for production, anything else for development.
	LogFormat string `mapstructure:"LOG_FORMAT"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("AMQP_URL", "")
	v.SetDefault("NOTIFY_EXCHANGE", "nestcare.notifications")
	v.SetDefault("CLASSIFIER_URL", "")
	v.SetDefault("AUTH_JWT_SECRET", "")
	v.SetDefault("LOCATION_UPDATE_INTERVAL", "30s")
	v.SetDefault("DETECTION_WINDOW", "3s")
	v.SetDefault("CRY_ALERT_COOLDOWN", "60s")
	v.SetDefault("GPS_ANOMALY_KM", 2.0)
	v.SetDefault("CRY_SCORE_THRESHOLD", 0.7)
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.GPSAnomalyKm <= 0 {
		return nil, errors.New("config: GPS_ANOMALY_KM must be positive")
	}
	if cfg.CryScoreThreshold <= 0 || cfg.CryScoreThreshold > 1 {
		return nil, errors.New("config: CRY_SCORE_THRESHOLD must be in (0, 1]")
	}

	return &cfg, nil
}

// LocationUpdateInterval parses LocationInterval as a time.Duration. Returns 30s if unset or invalid.
func (c *Config) LocationUpdateInterval() time.Duration {
	d, err := time.ParseDuration(c.LocationInterval)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// DetectionWindowDuration parses DetectionWindow as a time.Duration. Returns 3s if unset or invalid.
func (c *Config) DetectionWindowDuration() time.Duration {
	d, err := time.ParseDuration(c.DetectionWindow)
	if err != nil || d <= 0 {
		return 3 * time.Second
	}
	return d
}

// CryCooldown parses CryAlertCooldown as a time.Duration. Returns 60s if unset or invalid.
func (c *Config) CryCooldown() time.Duration {
	d, err := time.ParseDuration(c.CryAlertCooldown)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}
