package cliconfig

import (
	"testing"
	"time"
)

func TestApplyEnvConfig(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		changed  map[string]bool
		initial  Config
		expected Config
		wantErr  bool
	}{
		{
			name: "applies all valid env vars",
			envVars: map[string]string{
				"VIRUSSCAN_LISTEN_ADDRESS":         ":9000",
				"VIRUSSCAN_LOG_LEVEL":              "debug",
				"VIRUSSCAN_CLAMD_NETWORK":          "unix",
				"VIRUSSCAN_CLAMD_ADDRESS":          "/run/clamd.ctl",
				"VIRUSSCAN_CLAMD_TIMEOUT":          "3s",
				"VIRUSSCAN_CLAMD_CONN_PER_SESSION": "1",
				"VIRUSSCAN_CHUNK_SIZE":             "1000",
				"VIRUSSCAN_BUFFER_SIZE":            "100",
				"VIRUSSCAN_OVERLAP_SIZE":           "50",
				"VIRUSSCAN_DATAVERSE_URL":          "https://dv.example.org",
				"VIRUSSCAN_DATAVERSE_API_KEY":      "key",
				"VIRUSSCAN_DATAVERSE_TIMEOUT":      "1m",
				"VIRUSSCAN_WORKERS":                "4",
				"VIRUSSCAN_QUEUE_SIZE":             "16",
				"VIRUSSCAN_MAX_FILE_SIZE":          "1073741824",
			},
			changed: map[string]bool{},
			expected: Config{
				ListenAddress:       ":9000",
				LogLevel:            "debug",
				ClamdNetwork:        "unix",
				ClamdAddress:        "/run/clamd.ctl",
				ClamdTimeout:        3 * time.Second,
				ClamdConnPerSession: true,
				ChunkSize:           1000,
				BufferSize:          100,
				OverlapSize:         50,
				DataverseURL:        "https://dv.example.org",
				DataverseAPIKey:     "key",
				DataverseTimeout:    time.Minute,
				Workers:             4,
				QueueSize:           16,
				MaxFileSize:         1 << 30,
			},
		},
		{
			name: "respects changed flags",
			envVars: map[string]string{
				"VIRUSSCAN_CLAMD_ADDRESS": "env:3310",
				"VIRUSSCAN_WORKERS":       "8",
			},
			changed: map[string]bool{"clamd-address": true},
			initial: Config{ClamdAddress: "flag:3310"},
			expected: Config{
				ClamdAddress: "flag:3310",
				Workers:      8,
			},
		},
		{
			name:     "overlap zero is applied",
			envVars:  map[string]string{"VIRUSSCAN_OVERLAP_SIZE": "0"},
			changed:  map[string]bool{},
			initial:  Config{OverlapSize: 1024},
			expected: Config{OverlapSize: 0},
		},
		{
			name:     "non-positive chunk size is ignored",
			envVars:  map[string]string{"VIRUSSCAN_CHUNK_SIZE": "0"},
			changed:  map[string]bool{},
			initial:  Config{ChunkSize: 500},
			expected: Config{ChunkSize: 500},
		},
		{
			name:    "returns error for invalid duration",
			envVars: map[string]string{"VIRUSSCAN_CLAMD_TIMEOUT": "not-a-duration"},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name:    "returns error for invalid int",
			envVars: map[string]string{"VIRUSSCAN_BUFFER_SIZE": "not-a-number"},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name:    "returns error for invalid int64",
			envVars: map[string]string{"VIRUSSCAN_MAX_FILE_SIZE": "big"},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name:     "handles bool 'false' as false",
			envVars:  map[string]string{"VIRUSSCAN_CLAMD_CONN_PER_SESSION": "false"},
			changed:  map[string]bool{},
			initial:  Config{ClamdConnPerSession: true},
			expected: Config{ClamdConnPerSession: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := tt.initial
			err := ApplyEnvConfig(&cfg, tt.changed)

			if tt.wantErr {
				if err == nil {
					t.Error("ApplyEnvConfig() expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ApplyEnvConfig() unexpected error: %v", err)
			}
			if cfg != tt.expected {
				t.Errorf("ApplyEnvConfig() = %+v\nwant %+v", cfg, tt.expected)
			}
		})
	}
}
