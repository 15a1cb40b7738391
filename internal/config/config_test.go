package config

import (
	"log/slog"
	"testing"
	"time"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(env(nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
	if cfg.OpponentDelay != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s opponent delay, got %s", cfg.OpponentDelay)
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(env(map[string]string{
		"PORT":             "9090",
		"DB_PATH":          "rooms.db",
		"WEB_DIR":          "public",
		"OPPONENT_DELAY":   "250ms",
		"CHALLENGER_DELAY": "0s",
		"SESSION_MAX_IDLE": "10m",
		"LOG_LEVEL":        "debug",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.DBPath != "rooms.db" || cfg.WebDir != "public" {
		t.Fatalf("unexpected addr/db/web: %+v", cfg)
	}
	if cfg.OpponentDelay != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %s", cfg.OpponentDelay)
	}
	if cfg.ChallengerDelay != 0 {
		t.Fatalf("expected challenger disabled, got %s", cfg.ChallengerDelay)
	}
	if cfg.SessionMaxIdle != 10*time.Minute {
		t.Fatalf("expected 10m, got %s", cfg.SessionMaxIdle)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("expected debug, got %s", cfg.LogLevel)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]map[string]string{
		"malformed duration": {"OPPONENT_DELAY": "soon"},
		"negative duration":  {"SESSION_MAX_IDLE": "-1m"},
		"zero opponent":      {"OPPONENT_DELAY": "0s"},
		"bad level":          {"LOG_LEVEL": "chatty"},
	}
	for name, vars := range cases {
		if _, err := Load(env(vars)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
