package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != defaultListen || cfg.Planner.MaxSessionMinutes != 90 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("perm = %o, want 600", perm)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.RefreshCron != cfg.RefreshCron || len(again.EnergyProfile) != len(cfg.EnergyProfile) {
		t.Fatal("reloaded config differs from defaults")
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
timezone: UTC
planner:
  max_session_minutes: 60
blackouts:
  - label: Lectures
    rrule: FREQ=WEEKLY;BYDAY=MO,WE
    start: "2025-09-01T10:00"
    duration_minutes: 90
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Planner.MaxSessionMinutes != 60 {
		t.Fatalf("max session = %d", cfg.Planner.MaxSessionMinutes)
	}
	if cfg.Planner.MinSessionMinutes != 30 || cfg.Planner.UnitMinutes != 30 {
		t.Fatalf("planner defaults not applied: %+v", cfg.Planner)
	}
	if len(cfg.EnergyProfile) != 0 {
		t.Fatal("absent energy profile should stay empty so the planner default applies")
	}
	if len(cfg.Blackouts) != 1 || cfg.Blackouts[0].DurationMinutes != 90 {
		t.Fatalf("blackouts %+v", cfg.Blackouts)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(c *Config){
		"timezone":      func(c *Config) { c.Timezone = "Mars/Olympus" },
		"cron":          func(c *Config) { c.RefreshCron = "every minute" },
		"energy hour":   func(c *Config) { c.EnergyProfile = map[int]float64{25: 0.5} },
		"energy weight": func(c *Config) { c.EnergyProfile = map[int]float64{9: 1.5} },
		"rrule":         func(c *Config) { c.Blackouts = []Blackout{{RRule: "FREQ=SOMETIMES", Start: "2025-09-01T10:00", DurationMinutes: 60}} },
		"busy source":   func(c *Config) { c.BusySources = []BusySource{{ID: "x"}} },
	}
	for name, mutate := range cases {
		cfg := DefaultConfig()
		mutate(cfg)
		if err := cfg.Validate(); err == nil || !strings.HasPrefix(err.Error(), "config:") {
			t.Fatalf("%s: expected config error, got %v", name, err)
		}
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestEmptyPath(t *testing.T) {
	if _, err := Load(""); !errors.Is(err, ErrEmptyPath) {
		t.Fatalf("got %v", err)
	}
	if err := Save("x.yaml", nil); !errors.Is(err, ErrNilConfig) {
		t.Fatalf("got %v", err)
	}
}
