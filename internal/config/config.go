package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/siegeai/siegeinfer/schema"
)

// Config is everything siegeinfer reads from the environment or a .env file.
type Config struct {
	LogLevel slog.Level
	Schema   schema.Config

	Workers    int
	BatchSize  int
	Checkpoint string

	Addr string

	APIKey          string
	Server          string
	Device          string
	Filter          string
	PublishInterval time.Duration
}

// Load reads .env when present, then the environment. Environment variables win over
// the file since godotenv never overrides what is already set.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() (*Config, error) {
	var c Config

	if err := c.LogLevel.UnmarshalText([]byte(getEnv("SIEGE_LOG", "info"))); err != nil {
		return nil, fmt.Errorf("%w: SIEGE_LOG: %v", schema.ErrInvalidConfiguration, err)
	}

	unify, err := getBool("SIEGE_UNIFY_RECORDS", true)
	if err != nil {
		return nil, err
	}
	c.Schema, err = schema.NewConfig(unify, getEnv("SIEGE_EQUIVALENCE_MODE", "kind"))
	if err != nil {
		return nil, fmt.Errorf("SIEGE_EQUIVALENCE_MODE: %w", err)
	}

	if c.Workers, err = getPositiveInt("SIEGE_WORKERS", 4); err != nil {
		return nil, err
	}
	if c.BatchSize, err = getPositiveInt("SIEGE_BATCH_SIZE", 256); err != nil {
		return nil, err
	}
	c.Checkpoint = getEnv("SIEGE_CHECKPOINT", "")
	c.Addr = getEnv("SIEGE_ADDR", ":8080")

	c.APIKey = getEnv("SIEGE_APIKEY", "")
	c.Server = getEnv("SIEGE_SERVER", "https://dashboard.siegeai.com")
	c.Device = getEnv("SIEGE_DEVICE", "lo")
	c.Filter = getEnv("SIEGE_FILTER", "tcp and port 80")

	c.PublishInterval, err = time.ParseDuration(getEnv("SIEGE_PUBLISH_INTERVAL", "10s"))
	if err != nil || c.PublishInterval <= 0 {
		return nil, fmt.Errorf("%w: SIEGE_PUBLISH_INTERVAL must be a positive duration", schema.ErrInvalidConfiguration)
	}

	return &c, nil
}

// SetupLogging installs the default text logger at the configured level.
func (c *Config) SetupLogging() {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: c.LogLevel})
	slog.SetDefault(slog.New(h))
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getBool(key string, fallback bool) (bool, error) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean, got %q", schema.ErrInvalidConfiguration, key, val)
	}
	return b, nil
}

func getPositiveInt(key string, fallback int) (int, error) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %q", schema.ErrInvalidConfiguration, key, val)
	}
	return n, nil
}
