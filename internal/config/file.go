package config

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	SourceURL        string `toml:"source_url"`
	UserAgent        string `toml:"user_agent"`
	AuthToken        string `toml:"auth_token"`
	RedisAddr        string `toml:"redis_addr"`
	RedisDB          int    `toml:"redis_db"`
	RedisPrefix      string `toml:"redis_prefix"`
	RedisTTL         string `toml:"redis_ttl"`
	ListenAddr       string `toml:"listen_addr"`
	BatchSize        int    `toml:"batch_size"`
	MaxBatches       int    `toml:"max_batches"`
	MaxConcurrent    int    `toml:"max_concurrent"`
	RequestTimeout   string `toml:"request_timeout"`
	MaxClientRecords int    `toml:"max_client_records"`
	LogLevel         string `toml:"log_level"`
	Pretty           *bool  `toml:"pretty"`
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

// DefaultConfigPath returns ~/.statsloader/config.toml, or "" when the
// home directory is unknown.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".statsloader", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("source-url", fc.SourceURL, &cfg.SourceURL)
	s.setString("user-agent", fc.UserAgent, &cfg.UserAgent)
	s.setString("auth-token", fc.AuthToken, &cfg.AuthToken)
	s.setString("redis-addr", fc.RedisAddr, &cfg.RedisAddr)
	s.setString("redis-prefix", fc.RedisPrefix, &cfg.RedisPrefix)
	s.setString("listen", fc.ListenAddr, &cfg.ListenAddr)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	if err := s.setDuration("redis-ttl", fc.RedisTTL, &cfg.RedisTTL); err != nil {
		return err
	}
	if err := s.setDuration("request-timeout", fc.RequestTimeout, &cfg.RequestTimeout); err != nil {
		return err
	}

	s.setInt("redis-db", fc.RedisDB, &cfg.RedisDB)
	s.setInt("batch-size", fc.BatchSize, &cfg.BatchSize)
	s.setInt("max-batches", fc.MaxBatches, &cfg.MaxBatches)
	s.setInt("max-concurrent", fc.MaxConcurrent, &cfg.MaxConcurrent)
	s.setInt("max-client-records", fc.MaxClientRecords, &cfg.MaxClientRecords)

	s.setBool("pretty", fc.Pretty, &cfg.Pretty)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
