package cliconfig

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	logadapter "github.com/bft-labs/virusscan/internal/adapters/log"
	"github.com/bft-labs/virusscan/internal/domain"
)

const (
	// DefaultListenAddress is where the HTTP API listens.
	DefaultListenAddress = ":20305"
	// DefaultClamdNetwork and DefaultClamdAddress locate the scanning daemon.
	DefaultClamdNetwork = "tcp"
	DefaultClamdAddress = "localhost:3310"
	// DefaultDataverseURL is the repository API base URL.
	DefaultDataverseURL = "http://localhost:8080"
)

// Config holds CLI configuration for virusscan.
type Config struct {
	ListenAddress string
	LogLevel      string

	ClamdNetwork        string
	ClamdAddress        string
	ClamdTimeout        time.Duration
	ClamdConnPerSession bool

	ChunkSize   int
	BufferSize  int
	OverlapSize int

	DataverseURL     string
	DataverseAPIKey  string
	DataverseTimeout time.Duration

	Workers     int
	QueueSize   int
	MaxFileSize int64
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		ListenAddress:    DefaultListenAddress,
		LogLevel:         "info",
		ClamdNetwork:     DefaultClamdNetwork,
		ClamdAddress:     DefaultClamdAddress,
		ClamdTimeout:     10 * time.Second,
		ChunkSize:        20 << 20, // 20MiB
		BufferSize:       64 << 10, // 64KiB
		OverlapSize:      1 << 20,  // 1MiB
		DataverseURL:     DefaultDataverseURL,
		DataverseTimeout: 30 * time.Second,
		Workers:          2,
		QueueSize:        64,
	}
}

// SessionConfig returns the INSTREAM session sizes.
func (c Config) SessionConfig() domain.SessionConfig {
	return domain.SessionConfig{
		ChunkSize:   c.ChunkSize,
		BufferSize:  c.BufferSize,
		OverlapSize: c.OverlapSize,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := c.SessionConfig().Validate(); err != nil {
		return err
	}

	if c.ListenAddress == "" {
		return fmt.Errorf("%w: listen address is required", domain.ErrInvalidConfig)
	}
	switch c.ClamdNetwork {
	case "tcp", "tcp4", "tcp6", "unix":
	default:
		return fmt.Errorf("%w: clamd network must be tcp or unix, got %q", domain.ErrInvalidConfig, c.ClamdNetwork)
	}
	if c.ClamdAddress == "" {
		return fmt.Errorf("%w: clamd address is required", domain.ErrInvalidConfig)
	}
	if c.ClamdTimeout < 0 || c.DataverseTimeout < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", domain.ErrInvalidConfig)
	}

	if c.DataverseURL != "" {
		u, err := url.Parse(c.DataverseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: invalid dataverse url %q", domain.ErrInvalidConfig, c.DataverseURL)
		}
	}

	if c.Workers <= 0 {
		return fmt.Errorf("%w: workers must be positive", domain.ErrInvalidConfig)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("%w: queue size must be positive", domain.ErrInvalidConfig)
	}
	if c.MaxFileSize < 0 {
		return fmt.Errorf("%w: max file size must not be negative", domain.ErrInvalidConfig)
	}

	if _, err := logadapter.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}
	return nil
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	if c.DataverseAPIKey != "" {
		c.DataverseAPIKey = "*****"
	}
	return c
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

// setIntPtr sets an int value, zero included, if present and flag not changed.
func (s *configSetter) setIntPtr(flag string, value *int, dst *int) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setInt64 sets an int64 value if positive and flag not changed.
func (s *configSetter) setInt64(flag string, value int64, dst *int64) {
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

// setIntFromString parses a string to int and sets the destination if valid.
// Values below min are ignored.
func (s *configSetter) setIntFromString(flag, value string, min int, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i < min {
		return nil
	}
	*dst = i
	return nil
}

// setInt64FromString parses a string to int64 and sets the destination if positive.
func (s *configSetter) setInt64FromString(flag, value string, dst *int64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
