package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestApplyFileConfig(t *testing.T) {
	trueVal := true

	tests := []struct {
		name       string
		fileConfig FileConfig
		changed    map[string]bool
		initial    Config
		expected   Config
		wantErr    bool
	}{
		{
			name: "applies all valid config values",
			fileConfig: FileConfig{
				SourceURL:      "https://stats.example.com",
				BatchSize:      500,
				RequestTimeout: "5s",
				RedisTTL:       "1h",
				Pretty:         &trueVal,
			},
			changed: map[string]bool{},
			initial: Config{},
			expected: Config{
				SourceURL:      "https://stats.example.com",
				BatchSize:      500,
				RequestTimeout: 5 * time.Second,
				RedisTTL:       time.Hour,
				Pretty:         true,
			},
		},
		{
			name: "respects changed flags",
			fileConfig: FileConfig{
				SourceURL: "https://file.example.com",
				BatchSize: 500,
			},
			changed: map[string]bool{"source-url": true},
			initial: Config{
				SourceURL: "https://flag.example.com",
				BatchSize: 60,
			},
			expected: Config{
				SourceURL: "https://flag.example.com", // unchanged because flag was set
				BatchSize: 500,
			},
		},
		{
			name:       "ignores zero values",
			fileConfig: FileConfig{},
			changed:    map[string]bool{},
			initial:    Config{BatchSize: 60, ListenAddr: ":8080"},
			expected:   Config{BatchSize: 60, ListenAddr: ":8080"},
		},
		{
			name:       "returns error for invalid duration",
			fileConfig: FileConfig{RequestTimeout: "soon"},
			changed:    map[string]bool{},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.initial
			err := ApplyFileConfig(&cfg, tt.fileConfig, tt.changed)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ApplyFileConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if cfg != tt.expected {
				t.Errorf("ApplyFileConfig() = %+v, want %+v", cfg, tt.expected)
			}
		})
	}
}

func TestLoadFileConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	content := `
source_url = "https://stats.example.com"
user_agent = "Dashboard/2.0 (ops@example.com)"
redis_addr = "localhost:6379"
batch_size = 300
max_concurrent = 2
request_timeout = "10s"
log_level = "debug"
pretty = true
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	fc, err := LoadFileConfig(path)
	if err != nil {
		t.Fatalf("LoadFileConfig() error = %v", err)
	}

	if fc.SourceURL != "https://stats.example.com" {
		t.Errorf("SourceURL = %q", fc.SourceURL)
	}
	if fc.BatchSize != 300 || fc.MaxConcurrent != 2 {
		t.Errorf("BatchSize/MaxConcurrent = %d/%d, want 300/2", fc.BatchSize, fc.MaxConcurrent)
	}
	if fc.RequestTimeout != "10s" {
		t.Errorf("RequestTimeout = %q", fc.RequestTimeout)
	}
	if fc.Pretty == nil || !*fc.Pretty {
		t.Error("Pretty should be true")
	}

	cfg := DefaultConfig()
	if err := ApplyFileConfig(&cfg, fc, map[string]bool{}); err != nil {
		t.Fatalf("ApplyFileConfig() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.RequestTimeout != 10*time.Second || cfg.LogLevel != "debug" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadFileConfig_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadFileConfig(filepath.Join(dir, "missing.toml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(bad, []byte("batch_size = [unterminated"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadFileConfig(bad); err == nil {
		t.Error("expected error for invalid TOML")
	}
}

func TestDefaultConfigPath(t *testing.T) {
	t.Setenv("HOME", "/home/tester")

	if got, want := DefaultConfigPath(), filepath.Join("/home/tester", ".statsloader", "config.toml"); got != want {
		t.Errorf("DefaultConfigPath() = %q, want %q", got, want)
	}
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "present")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	if !FileExists(path) {
		t.Error("FileExists() = false for existing file")
	}
	if FileExists(filepath.Join(dir, "absent")) {
		t.Error("FileExists() = true for missing file")
	}
}
