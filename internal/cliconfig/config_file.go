package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	ListenAddress       string `toml:"listen_address"`
	LogLevel            string `toml:"log_level"`
	ClamdNetwork        string `toml:"clamd_network"`
	ClamdAddress        string `toml:"clamd_address"`
	ClamdTimeout        string `toml:"clamd_timeout"`
	ClamdConnPerSession *bool  `toml:"clamd_connection_per_session"`
	ChunkSize           int    `toml:"chunk_size"`
	BufferSize          int    `toml:"buffer_size"`
	OverlapSize         *int   `toml:"overlap_size"`
	DataverseURL        string `toml:"dataverse_url"`
	DataverseAPIKey     string `toml:"dataverse_api_key"`
	DataverseTimeout    string `toml:"dataverse_timeout"`
	Workers             int    `toml:"workers"`
	QueueSize           int    `toml:"queue_size"`
	MaxFileSize         int64  `toml:"max_file_size"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.virusscan/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".virusscan", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("listen", fc.ListenAddress, &cfg.ListenAddress)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("clamd-network", fc.ClamdNetwork, &cfg.ClamdNetwork)
	s.setString("clamd-address", fc.ClamdAddress, &cfg.ClamdAddress)
	s.setString("dataverse-url", fc.DataverseURL, &cfg.DataverseURL)
	s.setString("dataverse-api-key", fc.DataverseAPIKey, &cfg.DataverseAPIKey)

	if err := s.setDuration("clamd-timeout", fc.ClamdTimeout, &cfg.ClamdTimeout); err != nil {
		return err
	}
	if err := s.setDuration("dataverse-timeout", fc.DataverseTimeout, &cfg.DataverseTimeout); err != nil {
		return err
	}

	s.setInt("chunk-size", fc.ChunkSize, &cfg.ChunkSize)
	s.setInt("buffer-size", fc.BufferSize, &cfg.BufferSize)
	s.setIntPtr("overlap-size", fc.OverlapSize, &cfg.OverlapSize)
	s.setInt("workers", fc.Workers, &cfg.Workers)
	s.setInt("queue-size", fc.QueueSize, &cfg.QueueSize)
	s.setInt64("max-file-size", fc.MaxFileSize, &cfg.MaxFileSize)

	s.setBool("clamd-conn-per-session", fc.ClamdConnPerSession, &cfg.ClamdConnPerSession)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// Load resolves the effective configuration: base holds defaults with flag
// values already bound, then the file at path (when present) and VIRUSSCAN_*
// variables fill every setting whose flag was not changed. Environment wins
// over the file. The result is validated.
func Load(base Config, path string, changed map[string]bool) (Config, error) {
	cfg := base
	if path != "" && FileExists(path) {
		fc, err := LoadFileConfig(path)
		if err != nil {
			return base, fmt.Errorf("load config: %w", err)
		}
		if err := ApplyFileConfig(&cfg, fc, changed); err != nil {
			return base, err
		}
	}
	if err := ApplyEnvConfig(&cfg, changed); err != nil {
		return base, err
	}
	if err := cfg.Validate(); err != nil {
		return base, err
	}
	return cfg, nil
}
