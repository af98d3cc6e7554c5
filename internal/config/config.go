// Package config loads runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const insecureDevSecret = "dev-secret-change-me"

// Config holds runtime configuration for the service.
type Config struct {
	AppEnv  string `envconfig:"APP_ENV" default:"development"`
	AppAddr string `envconfig:"APP_ADDR" default:":8081"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	MongoURI string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDB  string `envconfig:"MONGO_DB" default:"fleet_rental"`

	JWTSecret     string        `envconfig:"JWT_SECRET" default:"dev-secret-change-me"`
	JWTExpiry     time.Duration `envconfig:"JWT_EXPIRY" default:"24h"`
	SessionCookie string        `envconfig:"SESSION_COOKIE" default:"fleet_session"`
	OracleTimeout time.Duration `envconfig:"ORACLE_TIMEOUT" default:"3s"`

	MQTTBroker      string `envconfig:"MQTT_BROKER"`
	MQTTClientID    string `envconfig:"MQTT_CLIENT_ID" default:"fleet-rental"`
	MQTTTopicPrefix string `envconfig:"MQTT_TOPIC_PREFIX" default:"fleet/"`

	SubmitRateLimit  int           `envconfig:"SUBMIT_RATE_LIMIT" default:"20"`
	SubmitRateWindow time.Duration `envconfig:"SUBMIT_RATE_WINDOW" default:"1m"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot express.
func (c *Config) Validate() error {
	if c.IsProduction() && (c.JWTSecret == "" || c.JWTSecret == insecureDevSecret) {
		return errors.New("JWT_SECRET must be set in production")
	}
	if c.JWTExpiry <= 0 {
		return errors.New("JWT_EXPIRY must be positive")
	}
	if c.OracleTimeout <= 0 {
		return errors.New("ORACLE_TIMEOUT must be positive")
	}
	if c.SubmitRateLimit < 0 {
		return errors.New("SUBMIT_RATE_LIMIT must not be negative")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// IsProduction returns true when the service runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// NewLogger builds the root logger described by the configuration.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(c.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if strings.EqualFold(c.LogFormat, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
