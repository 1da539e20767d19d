// Package config loads the clinic service configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"bioskin/internal/slots"
)

const (
	DefaultPath     = "configs/config.yaml"
	DefaultTimezone = "America/Mexico_City"

	ProviderGoogle = "google"
	ProviderMemory = "memory"
)

type Config struct {
	Server struct {
		Address string `yaml:"address"`
	} `yaml:"server"`

	API struct {
		APIKey string `yaml:"api_key"`
	} `yaml:"api"`

	Clinic struct {
		Name     string `yaml:"name"`
		Timezone string `yaml:"timezone"`
	} `yaml:"clinic"`

	Schedule struct {
		FirstHour    *int `yaml:"first_hour"`
		LastHour     *int `yaml:"last_hour"`
		SlotMinutes  int  `yaml:"slot_minutes"`
		BlockMinutes int  `yaml:"block_minutes"`
	} `yaml:"schedule"`

	Agenda struct {
		DefaultDays        int `yaml:"default_days"`
		MaxDays            int `yaml:"max_days"`
		MaxParallelFetches int `yaml:"max_parallel_fetches"`
	} `yaml:"agenda"`

	Calendar struct {
		Provider          string  `yaml:"provider"`
		CalendarID        string  `yaml:"calendar_id"`
		CredentialsFile   string  `yaml:"credentials_file"`
		Subject           string  `yaml:"subject"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"calendar"`

	Redis struct {
		Address        string `yaml:"address"`
		Password       string `yaml:"password"`
		DB             int    `yaml:"db"`
		LockTTLSeconds int    `yaml:"lock_ttl_seconds"`
	} `yaml:"redis"`

	Journal struct {
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"journal"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// PathFromEnv returns CLINIC_CONFIG_PATH or the default path.
func PathFromEnv() string {
	if p := os.Getenv("CLINIC_CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads .env (if present) and the YAML file at path.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Journal.Path != "" {
		if err = os.MkdirAll(filepath.Dir(cfg.Journal.Path), 0o755); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if err := c.Grid(time.UTC).Validate(); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	if c.BlockUnit() > c.SlotDuration() {
		return fmt.Errorf("schedule: block_minutes must not exceed slot_minutes")
	}
	switch c.Provider() {
	case ProviderMemory:
	case ProviderGoogle:
		if c.Calendar.CalendarID == "" {
			return fmt.Errorf("calendar: calendar_id is required for the google provider")
		}
		if c.Calendar.CredentialsFile == "" {
			return fmt.Errorf("calendar: credentials_file is required for the google provider")
		}
	default:
		return fmt.Errorf("calendar: unknown provider %q", c.Calendar.Provider)
	}
	if c.Agenda.DefaultDays > c.AgendaMaxDays() {
		return fmt.Errorf("agenda: default_days exceeds max_days")
	}
	return nil
}

// Location loads the clinic timezone.
func (c *Config) Location() (*time.Location, error) {
	tz := c.Clinic.Timezone
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("clinic timezone %q: %w", tz, err)
	}
	return loc, nil
}

func (c *Config) SlotDuration() time.Duration {
	if c.Schedule.SlotMinutes <= 0 {
		return slots.DefaultSlotDuration
	}
	return time.Duration(c.Schedule.SlotMinutes) * time.Minute
}

func (c *Config) BlockUnit() time.Duration {
	if c.Schedule.BlockMinutes <= 0 {
		return slots.DefaultBlockUnit
	}
	return time.Duration(c.Schedule.BlockMinutes) * time.Minute
}

// Grid returns the slot grid in loc.
func (c *Config) Grid(loc *time.Location) slots.Grid {
	g := slots.DefaultGrid(loc)
	if c.Schedule.FirstHour != nil {
		g.FirstHour = *c.Schedule.FirstHour
	}
	if c.Schedule.LastHour != nil {
		g.LastHour = *c.Schedule.LastHour
	}
	g.Duration = c.SlotDuration()
	return g
}

func (c *Config) Provider() string {
	if c.Calendar.Provider == "" {
		return ProviderGoogle
	}
	return c.Calendar.Provider
}

func (c *Config) AgendaDefaultDays() int {
	if c.Agenda.DefaultDays <= 0 {
		return 7
	}
	return c.Agenda.DefaultDays
}

func (c *Config) AgendaMaxDays() int {
	if c.Agenda.MaxDays <= 0 {
		return 90
	}
	return c.Agenda.MaxDays
}

func (c *Config) AgendaParallel() int {
	if c.Agenda.MaxParallelFetches <= 0 {
		return 8
	}
	return c.Agenda.MaxParallelFetches
}

func (c *Config) LockTTL() time.Duration {
	if c.Redis.LockTTLSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Redis.LockTTLSeconds) * time.Second
}

func (c *Config) ServerAddress() string {
	if c.Server.Address == "" {
		return ":8080"
	}
	return c.Server.Address
}

func (c *Config) JournalPath() string {
	if c.Journal.Path == "" {
		return "data/journal.db"
	}
	return c.Journal.Path
}
