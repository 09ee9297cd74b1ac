package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/teambition/rrule-go"
	"gopkg.in/yaml.v3"

	"studyplanner/internal/planner"
)

var (
	ErrEmptyPath = errors.New("config: path is empty")
	ErrNilConfig = errors.New("config: config is nil")
)

// BlackoutLayout is the local date-time format of Blackout.Start.
const BlackoutLayout = "2006-01-02T15:04"

// BusySource is a calendar whose events block study time, either a
// subscribed ICS URL or a local .ics file.
type BusySource struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url,omitempty" json:"url,omitempty"`
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
}

// Blackout is a recurring window in which nothing is scheduled, e.g. a
// class timetable: rrule "FREQ=WEEKLY;BYDAY=MO,WE", start
// "2025-09-01T10:00", 90 minutes.
type Blackout struct {
	Label           string `yaml:"label" json:"label"`
	RRule           string `yaml:"rrule" json:"rrule"`
	Start           string `yaml:"start" json:"start"`
	DurationMinutes int    `yaml:"duration_minutes" json:"duration_minutes"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the preview API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address of the preview API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone that decides hours of day and day
	// boundaries. "Local" uses the host zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// RefreshCron is the re-planning schedule used by watch and serve.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// CalendarPath is the .ics file the planner writes its blocks into.
	CalendarPath string `yaml:"calendar_path" json:"calendar_path"`

	// WorkItemsPath is the YAML file listing work items.
	WorkItemsPath string `yaml:"work_items_path" json:"work_items_path"`

	// CacheDir holds HTTP caches of subscribed busy calendars.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	BusySources []BusySource `yaml:"busy_sources" json:"busy_sources"`
	Blackouts   []Blackout   `yaml:"blackouts" json:"blackouts"`

	// EnergyProfile maps hour of day to capacity; empty uses the default
	// 09:00-21:00 profile.
	EnergyProfile planner.EnergyProfile `yaml:"energy_profile" json:"energy_profile"`

	Planner planner.Settings `yaml:"planner" json:"planner"`

	// BasicAuth, if set, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen        = "127.0.0.1:8080"
	defaultTimezone      = "Local"
	defaultRefreshCron   = "*/30 * * * *"
	defaultCalendarPath  = "/var/lib/studyplanner/planner.ics"
	defaultWorkItemsPath = "/var/lib/studyplanner/work_items.yaml"
	defaultCacheDir      = "/var/lib/studyplanner/ics-cache"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:        defaultListen,
		Timezone:      defaultTimezone,
		LogLevel:      "info",
		RefreshCron:   defaultRefreshCron,
		CalendarPath:  defaultCalendarPath,
		WorkItemsPath: defaultWorkItemsPath,
		CacheDir:      defaultCacheDir,
		BusySources:   []BusySource{},
		Blackouts:     []Blackout{},
		EnergyProfile: planner.DefaultEnergyProfile(),
		Planner:       planner.DefaultSettings(),
	}
}

// Normalize fills in missing/zero values so that partially-filled configs
// still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.CalendarPath == "" {
		c.CalendarPath = defaultCalendarPath
	}
	if c.WorkItemsPath == "" {
		c.WorkItemsPath = defaultWorkItemsPath
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.BusySources == nil {
		c.BusySources = []BusySource{}
	}
	if c.Blackouts == nil {
		c.Blackouts = []Blackout{}
	}
	c.Planner = c.Planner.Normalize()
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		return fmt.Errorf("config: refresh %q: %w", c.RefreshCron, err)
	}
	for h, w := range c.EnergyProfile {
		if h < 0 || h > 23 {
			return fmt.Errorf("config: energy_profile hour %d out of range", h)
		}
		if w < 0 || w > 1 {
			return fmt.Errorf("config: energy_profile weight %v for hour %d out of [0,1]", w, h)
		}
	}
	for i, b := range c.Blackouts {
		if _, err := rrule.StrToRRule(b.RRule); err != nil {
			return fmt.Errorf("config: blackouts[%d] rrule: %w", i, err)
		}
		if _, err := time.Parse(BlackoutLayout, b.Start); err != nil {
			return fmt.Errorf("config: blackouts[%d] start: %w", i, err)
		}
		if b.DurationMinutes <= 0 {
			return fmt.Errorf("config: blackouts[%d] duration must be positive", i)
		}
	}
	for i, s := range c.BusySources {
		if (s.URL == "") == (s.Path == "") {
			return fmt.Errorf("config: busy_sources[%d] needs exactly one of url or path", i)
		}
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms (creating the parent directory) and returned.
//   - Otherwise the YAML is read, normalized and validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	// Unset planner fields must fall back to defaults, not the zero values
	// the YAML decoder would leave in a fresh struct.
	cfg.Planner = planner.Settings{}
	cfg.EnergyProfile = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms,
// creating the parent directory with 0700 if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return ErrEmptyPath
	}
	if cfg == nil {
		return ErrNilConfig
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".studyplanner-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience wrapper around the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
