package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Config is read once from the environment at startup.
type Config struct {
	Addr            string
	DBPath          string
	WebDir          string
	OpponentDelay   time.Duration
	ChallengerDelay time.Duration
	SessionMaxIdle  time.Duration
	CleanupInterval time.Duration
	LogLevel        slog.Level
}

// Default returns the configuration used when no variables are set.
func Default() Config {
	return Config{
		Addr:            ":8080",
		DBPath:          ":memory:",
		WebDir:          "web",
		OpponentDelay:   1500 * time.Millisecond,
		ChallengerDelay: 3 * time.Second,
		SessionMaxIdle:  time.Hour,
		CleanupInterval: time.Minute,
		LogLevel:        slog.LevelInfo,
	}
}

// Load reads the configuration through getenv (os.Getenv in production).
func Load(getenv func(string) string) (Config, error) {
	cfg := Default()
	if p := getenv("PORT"); p != "" {
		cfg.Addr = ":" + p
	}
	if p := getenv("DB_PATH"); p != "" {
		cfg.DBPath = p
	}
	if p := getenv("WEB_DIR"); p != "" {
		cfg.WebDir = p
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"OPPONENT_DELAY", &cfg.OpponentDelay},
		{"CHALLENGER_DELAY", &cfg.ChallengerDelay},
		{"SESSION_MAX_IDLE", &cfg.SessionMaxIdle},
		{"CLEANUP_INTERVAL", &cfg.CleanupInterval},
	}
	for _, d := range durations {
		v := getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", d.key, err)
		}
		if parsed < 0 {
			return cfg, fmt.Errorf("%s: must not be negative", d.key)
		}
		*d.dst = parsed
	}
	if cfg.OpponentDelay == 0 {
		return cfg, fmt.Errorf("OPPONENT_DELAY: must be positive")
	}
	if cfg.CleanupInterval == 0 {
		return cfg, fmt.Errorf("CLEANUP_INTERVAL: must be positive")
	}

	if v := getenv("LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(strings.ToUpper(v))); err != nil {
			return cfg, fmt.Errorf("LOG_LEVEL: %w", err)
		}
	}
	return cfg, nil
}

// FromEnv loads the configuration from the process environment.
func FromEnv() (Config, error) {
	return Load(os.Getenv)
}
