package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.BatchSize != 60 {
		t.Errorf("BatchSize = %d, want 60", cfg.BatchSize)
	}
	if cfg.MaxBatches != 20 {
		t.Errorf("MaxBatches = %d, want 20", cfg.MaxBatches)
	}
	if cfg.MaxConcurrent != 3 {
		t.Errorf("MaxConcurrent = %d, want 3", cfg.MaxConcurrent)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %v, want 30s", cfg.RequestTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "zero batch size", mutate: func(c *Config) { c.BatchSize = 0 }, wantErr: "batch size"},
		{name: "zero max batches", mutate: func(c *Config) { c.MaxBatches = 0 }, wantErr: "max batches"},
		{name: "zero concurrency", mutate: func(c *Config) { c.MaxConcurrent = 0 }, wantErr: "max concurrent"},
		{name: "zero timeout", mutate: func(c *Config) { c.RequestTimeout = 0 }, wantErr: "request timeout"},
		{name: "negative ceiling", mutate: func(c *Config) { c.MaxClientRecords = -1 }, wantErr: "max client records"},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_Normalizes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SourceURL = "https://stats.example.com/"
	cfg.UserAgent = ""
	cfg.LogLevel = "WARNING"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.SourceURL != "https://stats.example.com" {
		t.Errorf("SourceURL = %q, want trailing slash trimmed", cfg.SourceURL)
	}
	if cfg.UserAgent != DefaultUserAgent {
		t.Errorf("UserAgent = %q, want %q", cfg.UserAgent, DefaultUserAgent)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
}

func TestRequireSource(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{url: "https://stats.example.com"},
		{url: "http://localhost:9000/api"},
		{url: "", wantErr: true},
		{url: "stats.example.com", wantErr: true},
		{url: "ftp://stats.example.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.SourceURL = tt.url
			if err := cfg.RequireSource(); (err != nil) != tt.wantErr {
				t.Errorf("RequireSource() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRedacted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AuthToken = "secret"

	if got := cfg.Redacted().AuthToken; got != "*****" {
		t.Errorf("Redacted().AuthToken = %q", got)
	}
	if cfg.AuthToken != "secret" {
		t.Error("Redacted should not modify the receiver")
	}
}

func TestLoaderConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatchSize = 500
	cfg.MaxClientRecords = 5000

	lc := cfg.LoaderConfig()
	if lc.BatchSize != 500 || lc.MaxClientRecords != 5000 {
		t.Errorf("LoaderConfig() = %+v", lc)
	}
	if lc.MaxConcurrentBatches != cfg.MaxConcurrent {
		t.Errorf("MaxConcurrentBatches = %d, want %d", lc.MaxConcurrentBatches, cfg.MaxConcurrent)
	}
}
