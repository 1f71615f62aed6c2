// Package config loads client settings from the environment, an optional
// .env file and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the settings shared by the commands.
type Config struct {
	APIBaseURL string        `env:"FLEET_API_BASE_URL" envDefault:"http://localhost:8081/api"`
	APITimeout time.Duration `env:"FLEET_API_TIMEOUT" envDefault:"10s"`
	RateLimit  float64       `env:"FLEET_API_RATE_LIMIT" envDefault:"5"`
	RateBurst  int           `env:"FLEET_API_RATE_BURST" envDefault:"10"`
	TokenFile  string        `env:"FLEET_TOKEN_FILE"`

	MQTTBrokerURL   string `env:"FLEET_MQTT_BROKER_URL"`
	MQTTClientID    string `env:"FLEET_MQTT_CLIENT_ID" envDefault:"fleetctl"`
	MQTTUsername    string `env:"FLEET_MQTT_USERNAME"`
	MQTTPassword    string `env:"FLEET_MQTT_PASSWORD"`
	MQTTTopicPrefix string `env:"FLEET_MQTT_TOPIC_PREFIX" envDefault:"fleet/notifications"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
	LogFile   string `env:"LOG_FILE"`
}

// LoadDotEnv reads the given files (".env" when none) into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ParseEnv reads Config from the environment.
func ParseEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// ParseConfig reads the environment, then registers the global flags on fs
// and parses args over it.
func ParseConfig(fset *flag.FlagSet, args []string) (Config, error) {
	cfg, err := ParseEnv()
	if err != nil {
		return Config{}, err
	}

	fset.StringVar(&cfg.APIBaseURL, "api", cfg.APIBaseURL, "backend API base URL (FLEET_API_BASE_URL)")
	fset.DurationVar(&cfg.APITimeout, "timeout", cfg.APITimeout, "per-call timeout (FLEET_API_TIMEOUT)")
	fset.StringVar(&cfg.TokenFile, "token-file", cfg.TokenFile, "where the session token is kept (FLEET_TOKEN_FILE)")
	fset.StringVar(&cfg.MQTTBrokerURL, "mqtt", cfg.MQTTBrokerURL, "MQTT broker URL for live notifications (FLEET_MQTT_BROKER_URL)")
	fset.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error (LOG_LEVEL)")
	fset.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "text or json (LOG_FORMAT)")
	fset.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "rotate logs into this file instead of stderr (LOG_FILE)")

	if err := fset.Parse(args); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values flags and env cannot type-check.
func (c Config) Validate() error {
	if c.APIBaseURL == "" {
		return errors.New("api base url is required")
	}
	if c.APITimeout <= 0 {
		return fmt.Errorf("api timeout must be positive, got %s", c.APITimeout)
	}
	if c.RateBurst < 0 {
		return fmt.Errorf("rate burst must not be negative, got %d", c.RateBurst)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log format %q: want text or json", c.LogFormat)
	}
	return nil
}
