package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (VIRUSSCAN_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("listen", os.Getenv("VIRUSSCAN_LISTEN_ADDRESS"), &cfg.ListenAddress)
	s.setString("log-level", os.Getenv("VIRUSSCAN_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("clamd-network", os.Getenv("VIRUSSCAN_CLAMD_NETWORK"), &cfg.ClamdNetwork)
	s.setString("clamd-address", os.Getenv("VIRUSSCAN_CLAMD_ADDRESS"), &cfg.ClamdAddress)
	s.setString("dataverse-url", os.Getenv("VIRUSSCAN_DATAVERSE_URL"), &cfg.DataverseURL)
	s.setString("dataverse-api-key", os.Getenv("VIRUSSCAN_DATAVERSE_API_KEY"), &cfg.DataverseAPIKey)

	if err := s.setDuration("clamd-timeout", os.Getenv("VIRUSSCAN_CLAMD_TIMEOUT"), &cfg.ClamdTimeout); err != nil {
		return err
	}
	if err := s.setDuration("dataverse-timeout", os.Getenv("VIRUSSCAN_DATAVERSE_TIMEOUT"), &cfg.DataverseTimeout); err != nil {
		return err
	}

	if err := s.setIntFromString("chunk-size", os.Getenv("VIRUSSCAN_CHUNK_SIZE"), 1, &cfg.ChunkSize); err != nil {
		return err
	}
	if err := s.setIntFromString("buffer-size", os.Getenv("VIRUSSCAN_BUFFER_SIZE"), 1, &cfg.BufferSize); err != nil {
		return err
	}
	if err := s.setIntFromString("overlap-size", os.Getenv("VIRUSSCAN_OVERLAP_SIZE"), 0, &cfg.OverlapSize); err != nil {
		return err
	}
	if err := s.setIntFromString("workers", os.Getenv("VIRUSSCAN_WORKERS"), 1, &cfg.Workers); err != nil {
		return err
	}
	if err := s.setIntFromString("queue-size", os.Getenv("VIRUSSCAN_QUEUE_SIZE"), 1, &cfg.QueueSize); err != nil {
		return err
	}
	if err := s.setInt64FromString("max-file-size", os.Getenv("VIRUSSCAN_MAX_FILE_SIZE"), &cfg.MaxFileSize); err != nil {
		return err
	}

	s.setBoolFromString("clamd-conn-per-session", os.Getenv("VIRUSSCAN_CLAMD_CONN_PER_SESSION"), &cfg.ClamdConnPerSession)

	return nil
}
