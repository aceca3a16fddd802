package config

import "os"

// ApplyEnvConfig applies configuration from environment variables (STATSLOADER_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("source-url", os.Getenv("STATSLOADER_SOURCE_URL"), &cfg.SourceURL)
	s.setString("user-agent", os.Getenv("STATSLOADER_USER_AGENT"), &cfg.UserAgent)
	s.setString("auth-token", os.Getenv("STATSLOADER_AUTH_TOKEN"), &cfg.AuthToken)
	s.setString("redis-addr", os.Getenv("STATSLOADER_REDIS_ADDR"), &cfg.RedisAddr)
	s.setString("redis-prefix", os.Getenv("STATSLOADER_REDIS_PREFIX"), &cfg.RedisPrefix)
	s.setString("listen", os.Getenv("STATSLOADER_LISTEN_ADDR"), &cfg.ListenAddr)
	s.setString("log-level", os.Getenv("STATSLOADER_LOG_LEVEL"), &cfg.LogLevel)

	if err := s.setDuration("redis-ttl", os.Getenv("STATSLOADER_REDIS_TTL"), &cfg.RedisTTL); err != nil {
		return err
	}
	if err := s.setDuration("request-timeout", os.Getenv("STATSLOADER_REQUEST_TIMEOUT"), &cfg.RequestTimeout); err != nil {
		return err
	}

	if err := s.setIntFromString("redis-db", os.Getenv("STATSLOADER_REDIS_DB"), &cfg.RedisDB); err != nil {
		return err
	}
	if err := s.setIntFromString("batch-size", os.Getenv("STATSLOADER_BATCH_SIZE"), &cfg.BatchSize); err != nil {
		return err
	}
	if err := s.setIntFromString("max-batches", os.Getenv("STATSLOADER_MAX_BATCHES"), &cfg.MaxBatches); err != nil {
		return err
	}
	if err := s.setIntFromString("max-concurrent", os.Getenv("STATSLOADER_MAX_CONCURRENT"), &cfg.MaxConcurrent); err != nil {
		return err
	}
	if err := s.setIntFromString("max-client-records", os.Getenv("STATSLOADER_MAX_CLIENT_RECORDS"), &cfg.MaxClientRecords); err != nil {
		return err
	}

	s.setBoolFromString("pretty", os.Getenv("STATSLOADER_PRETTY"), &cfg.Pretty)

	return nil
}
