package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"studyplan/internal/calsync"
)

// CalendarConfig is one subscribed external calendar.
type CalendarConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
	// OwnerID receives the imported sessions.
	OwnerID string `yaml:"owner_id"`
	// CourseID, if set, assigns every imported session to that course.
	CourseID string `yaml:"course_id,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type Config struct {
	Listen   string `yaml:"listen"`
	DBPath   string `yaml:"db_path"`
	Timezone string `yaml:"timezone"`
	LogLevel string `yaml:"log_level"`

	HoursPerECTS float64 `yaml:"hours_per_ects"`
	// MaxOccurrences and HorizonDays bound open-ended series.
	MaxOccurrences int `yaml:"max_occurrences"`
	HorizonDays    int `yaml:"horizon_days"`
	// MaxSeriesOccurrences rejects larger bounded series.
	MaxSeriesOccurrences int `yaml:"max_series_occurrences"`

	// DedupCron and ImportCron are 5-field cron specs; "-" disables a job.
	DedupCron  string `yaml:"dedup_cron"`
	ImportCron string `yaml:"import_cron"`

	CacheDir  string           `yaml:"cache_dir"`
	Calendars []CalendarConfig `yaml:"calendars"`

	// BasicAuth, if set, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty"`
}

func DefaultConfig() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills zero values with defaults.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.DBPath == "" {
		c.DBPath = "./var/studyplan.db"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.HoursPerECTS <= 0 {
		c.HoursPerECTS = 30
	}
	if c.MaxOccurrences <= 0 {
		c.MaxOccurrences = 500
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = 365
	}
	if c.MaxSeriesOccurrences <= 0 {
		c.MaxSeriesOccurrences = 5000
	}
	if c.DedupCron == "" {
		c.DedupCron = "0 3 * * *"
	}
	if c.ImportCron == "" {
		c.ImportCron = "*/30 * * * *"
	}
	if c.CacheDir == "" {
		c.CacheDir = "./var/ics-cache"
	}
	if c.Calendars == nil {
		c.Calendars = []CalendarConfig{}
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" && c.BasicAuth.Password == "" {
		c.BasicAuth = nil
	}
}

// Location resolves Timezone, falling back to UTC for unknown names.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Sources converts the calendar list for the sync job.
func (c *Config) Sources() []calsync.Source {
	out := make([]calsync.Source, 0, len(c.Calendars))
	for _, cal := range c.Calendars {
		out = append(out, calsync.Source{
			ID:       cal.ID,
			Name:     cal.Name,
			URL:      cal.URL,
			OwnerID:  cal.OwnerID,
			CourseID: cal.CourseID,
		})
	}
	return out
}

// Load reads the YAML file at path. On first run the file does not exist;
// a default config is written (0600) and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			return cfg, Save(path, cfg)
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes cfg atomically (temp file in the same directory, then rename).
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
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

	tmp, err := os.CreateTemp(dir, ".studyplan-config-*.tmp")
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
