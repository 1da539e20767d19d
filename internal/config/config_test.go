package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
calendar:
  provider: memory
journal:
  path: "`+filepath.Join(t.TempDir(), "j", "journal.db")+`"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, DefaultTimezone, loc.String())

	g := cfg.Grid(loc)
	assert.Equal(t, 7, g.FirstHour)
	assert.Equal(t, 20, g.LastHour)
	assert.Equal(t, 2*time.Hour, g.Duration)
	assert.Equal(t, time.Hour, cfg.BlockUnit())
	assert.Equal(t, 7, cfg.AgendaDefaultDays())
	assert.Equal(t, 90, cfg.AgendaMaxDays())
	assert.Equal(t, 8, cfg.AgendaParallel())
	assert.Equal(t, 30*time.Second, cfg.LockTTL())
	assert.Equal(t, ":8080", cfg.ServerAddress())
	assert.DirExists(t, filepath.Dir(cfg.Journal.Path))
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("TEST_CALENDAR_ID", "clinic@example.com")
	t.Setenv("TEST_API_KEY", "secret")
	path := writeConfig(t, `
api:
  api_key: "${TEST_API_KEY}"
schedule:
  first_hour: 0
  last_hour: 10
  slot_minutes: 60
  block_minutes: 30
calendar:
  provider: google
  calendar_id: "${TEST_CALENDAR_ID}"
  credentials_file: /etc/clinic/sa.json
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.API.APIKey)
	assert.Equal(t, "clinic@example.com", cfg.Calendar.CalendarID)

	g := cfg.Grid(time.UTC)
	assert.Equal(t, 0, g.FirstHour, "an explicit zero first hour is kept")
	assert.Equal(t, 10, g.LastHour)
	assert.Equal(t, 30*time.Minute, cfg.BlockUnit())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown provider", "calendar:\n  provider: outlook\n"},
		{"google without calendar", "calendar:\n  provider: google\n  credentials_file: x\n"},
		{"bad timezone", "clinic:\n  timezone: Mars/Olympus\ncalendar:\n  provider: memory\n"},
		{"inverted grid", "schedule:\n  first_hour: 12\n  last_hour: 8\ncalendar:\n  provider: memory\n"},
		{"block longer than slot", "schedule:\n  slot_minutes: 60\n  block_minutes: 90\ncalendar:\n  provider: memory\n"},
		{"default over max", "agenda:\n  default_days: 20\n  max_days: 10\ncalendar:\n  provider: memory\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPathFromEnv(t *testing.T) {
	t.Setenv("CLINIC_CONFIG_PATH", "")
	assert.Equal(t, DefaultPath, PathFromEnv())
	t.Setenv("CLINIC_CONFIG_PATH", "/etc/clinic.yaml")
	assert.Equal(t, "/etc/clinic.yaml", PathFromEnv())
}
