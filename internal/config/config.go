// Package config holds the statsloader CLI configuration.
//
// Values are resolved with precedence flags > environment (STATSLOADER_*)
// > TOML file > defaults. Flags that were set explicitly are tracked in a
// changed map so lower layers never override them.
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/oldg9516/ai-agents-stats-sub004/pkg/loader"
	"github.com/oldg9516/ai-agents-stats-sub004/pkg/logging"
	"github.com/oldg9516/ai-agents-stats-sub004/pkg/source/httpsource"
	"github.com/oldg9516/ai-agents-stats-sub004/pkg/source/redissource"
)

// DefaultUserAgent is sent to the source when none is configured.
const DefaultUserAgent = "statsloader/0.1.0"

// Config holds CLI configuration for statsloader.
type Config struct {
	SourceURL string
	UserAgent string
	AuthToken string

	RedisAddr   string
	RedisDB     int
	RedisPrefix string
	RedisTTL    time.Duration

	ListenAddr string

	BatchSize        int
	MaxBatches       int
	MaxConcurrent    int
	RequestTimeout   time.Duration
	MaxClientRecords int

	LogLevel string
	Pretty   bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		UserAgent:      DefaultUserAgent,
		RedisPrefix:    redissource.DefaultPrefix,
		RedisTTL:       redissource.DefaultTTL,
		ListenAddr:     ":8080",
		BatchSize:      loader.DefaultBatchSize,
		MaxBatches:     loader.DefaultMaxBatches,
		MaxConcurrent:  loader.DefaultMaxConcurrent,
		RequestTimeout: loader.DefaultRequestTimeout,
		LogLevel:       string(logging.LevelInfo),
	}
}

// Validate checks the configuration for errors and normalizes values.
// A source URL is only required by commands that talk to the source, so
// it is checked by RequireSource instead.
func (c *Config) Validate() error {
	c.SourceURL = strings.TrimSuffix(c.SourceURL, "/")

	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.MaxBatches <= 0 {
		return fmt.Errorf("max batches must be positive")
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("max concurrent must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.MaxClientRecords < 0 {
		return fmt.Errorf("max client records must not be negative")
	}
	if c.RedisTTL <= 0 {
		return fmt.Errorf("redis ttl must be positive")
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}

	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	c.LogLevel = string(level)

	return nil
}

// RequireSource checks that a usable source URL is configured.
func (c *Config) RequireSource() error {
	if c.SourceURL == "" {
		return fmt.Errorf("source-url is required")
	}
	u, err := url.Parse(c.SourceURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("source-url must be an absolute http(s) URL (got %q)", c.SourceURL)
	}
	return nil
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	if c.AuthToken != "" {
		c.AuthToken = "*****"
	}
	return c
}

// LoaderConfig maps the CLI settings onto the loader.
func (c Config) LoaderConfig() loader.Config {
	return loader.Config{
		BatchSize:            c.BatchSize,
		MaxBatches:           c.MaxBatches,
		MaxConcurrentBatches: c.MaxConcurrent,
		RequestTimeout:       c.RequestTimeout,
		MaxClientRecords:     c.MaxClientRecords,
	}
}

// SourceConfig maps the CLI settings onto the HTTP source.
func (c Config) SourceConfig() httpsource.Config {
	return httpsource.Config{
		BaseURL:   c.SourceURL,
		UserAgent: c.UserAgent,
		AuthToken: c.AuthToken,
	}
}

// RedisConfig maps the CLI settings onto the Redis source.
func (c Config) RedisConfig() redissource.Config {
	return redissource.Config{
		Prefix: c.RedisPrefix,
		TTL:    c.RedisTTL,
	}
}

// LoggingConfig maps the CLI settings onto the logger.
func (c Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.LogLevel)
	cfg.Pretty = c.Pretty
	return cfg
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if positive.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString accepts "true" and "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
