// Package app wires the scheduling services from configuration. Both the
// HTTP server and the operator CLI start from here.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"bioskin/internal/agenda"
	"bioskin/internal/availability"
	"bioskin/internal/blocks"
	"bioskin/internal/booking"
	"bioskin/internal/calendar"
	"bioskin/internal/calendar/gcal"
	"bioskin/internal/calendar/memstore"
	"bioskin/internal/config"
	"bioskin/internal/events"
	"bioskin/internal/journal"
	"bioskin/internal/lock"
)

// App holds the wired services.
type App struct {
	Config       *config.Config
	Location     *time.Location
	Calendar     *calendar.Calendar
	Availability *availability.Calculator
	Booking      *booking.Service
	Blocks       *blocks.Service
	Agenda       *agenda.Aggregator
	Bus          *events.EventBus
	Journal      *journal.Journal
	Redis        *redis.Client
	Logger       *zerolog.Logger
}

// NewLogger builds the process logger from the log section.
func NewLogger(cfg *config.Config) zerolog.Logger {
	var logger zerolog.Logger
	if strings.EqualFold(cfg.Log.Format, "json") {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		logger = zerolog.New(output).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level))
	if err != nil || cfg.Log.Level == "" {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

// New wires every service. withJournal opens the sqlite journal and
// subscribes it to the bus.
func New(ctx context.Context, cfg *config.Config, withJournal bool, logger *zerolog.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	store, err := newStore(ctx, cfg, loc, logger)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Location: loc,
		Calendar: calendar.New(store, logger),
		Bus:      events.NewEventBus(),
		Logger:   logger,
	}

	var locker lock.DateLocker = lock.Noop{}
	if cfg.Redis.Address != "" {
		a.Redis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		locker = lock.NewRedisLocker(a.Redis, cfg.LockTTL(), logger)
		logger.Info().Str("redis", cfg.Redis.Address).Msg("per-date write guard enabled")
	} else {
		logger.Warn().Msg("no redis configured; concurrent writers for the same date are not serialised")
	}

	if withJournal {
		a.Journal, err = journal.Open(cfg.JournalPath(), logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Journal.Attach(a.Bus)
	}

	a.Availability = availability.NewCalculator(a.Calendar, cfg.Grid(loc), logger)
	a.Agenda = agenda.New(a.Calendar, loc, agenda.Config{
		MaxDays:  cfg.AgendaMaxDays(),
		Parallel: cfg.AgendaParallel(),
	}, a.Bus, logger)
	a.Booking = booking.NewService(a.Calendar, a.Availability, locker, a.Bus, logger)
	a.Blocks = blocks.NewService(a.Calendar, a.Availability, a.Agenda, locker, a.Bus, cfg.BlockUnit(), logger)
	return a, nil
}

func newStore(ctx context.Context, cfg *config.Config, loc *time.Location, logger *zerolog.Logger) (calendar.Store, error) {
	switch cfg.Provider() {
	case config.ProviderMemory:
		logger.Warn().Msg("using in-memory calendar; events are lost on exit")
		return memstore.New(), nil
	case config.ProviderGoogle:
		return gcal.New(ctx, gcal.Config{
			CalendarID:        cfg.Calendar.CalendarID,
			CredentialsFile:   cfg.Calendar.CredentialsFile,
			Subject:           cfg.Calendar.Subject,
			RequestsPerSecond: cfg.Calendar.RequestsPerSecond,
			Burst:             cfg.Calendar.Burst,
			Location:          loc,
		}, logger)
	}
	return nil, fmt.Errorf("unknown calendar provider %q", cfg.Calendar.Provider)
}

// Ready checks the journal database and redis.
func (a *App) Ready(ctx context.Context) error {
	if a.Journal != nil {
		if err := a.Journal.Ping(ctx); err != nil {
			return fmt.Errorf("journal: %w", err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Close releases the journal and redis connections.
func (a *App) Close() {
	if a.Journal != nil {
		_ = a.Journal.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
}
