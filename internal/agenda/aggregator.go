// Package agenda loads and classifies the events of a multi-day window for
// the management views.
package agenda

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"bioskin/internal/calendar"
	"bioskin/internal/domain"
	"bioskin/internal/events"
	"bioskin/internal/interval"
	"bioskin/internal/metrics"
	"bioskin/internal/slots"
)

const (
	DefaultMaxDays  = 90
	DefaultParallel = 8
)

// Source is the calendar access the aggregator needs.
type Source interface {
	List(ctx context.Context, iv interval.TimeInterval) ([]calendar.Event, error)
	Delete(ctx context.Context, id string) error
}

// Config bounds the window size and fetch concurrency.
type Config struct {
	MaxDays  int
	Parallel int
}

// DayResult is the outcome of one day's fetch. Count covers the events first
// seen on that day, so an event crossing midnight counts once, on its first day.
type DayResult struct {
	Date  time.Time `json:"date"`
	Count int       `json:"count"`
	Err   error     `json:"-"`
}

// Window is the merged, chronologically sorted view of several days.
type Window struct {
	From         time.Time
	Days         []DayResult
	Events       []calendar.Event
	Appointments int
	Blocks       int
}

// Failed returns the dates whose fetch failed.
func (w *Window) Failed() []time.Time {
	var failed []time.Time
	for _, d := range w.Days {
		if d.Err != nil {
			failed = append(failed, d.Date)
		}
	}
	return failed
}

// Err returns a *domain.FetchError naming every failed day, or nil.
func (w *Window) Err() error {
	var (
		dates []time.Time
		errs  []error
	)
	for _, d := range w.Days {
		if d.Err != nil {
			dates = append(dates, d.Date)
			errs = append(errs, d.Err)
		}
	}
	if len(dates) == 0 {
		return nil
	}
	return &domain.FetchError{Op: "agenda window", Dates: dates, Err: errors.Join(errs...)}
}

// OfKind returns the events of one kind, still sorted.
func (w *Window) OfKind(kind calendar.Kind) []calendar.Event {
	var out []calendar.Event
	for _, ev := range w.Events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// Aggregator fetches events day by day.
type Aggregator struct {
	source   Source
	loc      *time.Location
	now      func() time.Time
	maxDays  int
	parallel int
	bus      events.Publisher
	logger   *zerolog.Logger
}

// New creates an aggregator for the clinic timezone loc.
func New(source Source, loc *time.Location, cfg Config, bus events.Publisher, logger *zerolog.Logger) *Aggregator {
	if cfg.MaxDays <= 0 {
		cfg.MaxDays = DefaultMaxDays
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = DefaultParallel
	}
	if bus == nil {
		bus = events.Discard{}
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Aggregator{
		source:   source,
		loc:      loc,
		now:      time.Now,
		maxDays:  cfg.MaxDays,
		parallel: cfg.Parallel,
		bus:      bus,
		logger:   logger,
	}
}

// WithClock replaces the clock.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// LoadWindow loads daysAhead days starting today.
func (a *Aggregator) LoadWindow(ctx context.Context, daysAhead int) (*Window, error) {
	return a.LoadRange(ctx, slots.Today(a.now(), a.loc), daysAhead)
}

// LoadRange fetches each day of [from, from+days) concurrently. A failed day
// is recorded in its DayResult and does not abort the others.
func (a *Aggregator) LoadRange(ctx context.Context, from time.Time, days int) (*Window, error) {
	if days < 1 {
		return nil, domain.Invalid("days", "must be at least 1")
	}
	if days > a.maxDays {
		return nil, domain.Invalid("days", fmt.Sprintf("must not exceed %d", a.maxDays))
	}
	start := slots.CivilDay(from, a.loc)

	results := make([]DayResult, days)
	perDay := make([][]calendar.Event, days)

	sem := make(chan struct{}, a.parallel)
	var wg sync.WaitGroup
	for i := 0; i < days; i++ {
		day := start.AddDate(0, 0, i)
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, day time.Time) {
			defer wg.Done()
			defer func() { <-sem }()

			evs, err := a.source.List(ctx, interval.TimeInterval{Start: day, End: day.AddDate(0, 0, 1)})
			results[i] = DayResult{Date: day, Err: err}
			if err != nil {
				metrics.IncWindowDay("error")
				a.logger.Warn().Err(err).Str("date", day.Format("2006-01-02")).Msg("agenda day fetch failed")
				return
			}
			metrics.IncWindowDay("ok")
			perDay[i] = evs
		}(i, day)
	}
	wg.Wait()

	w := &Window{From: start, Days: results}
	seen := make(map[string]bool)
	for i, evs := range perDay {
		for _, ev := range evs {
			// Events crossing midnight come back from both days.
			if seen[ev.ID] {
				continue
			}
			seen[ev.ID] = true
			w.Days[i].Count++
			w.Events = append(w.Events, ev)
		}
	}
	calendar.SortByStart(w.Events)
	w.Appointments, w.Blocks = calendar.CountByKind(w.Events)
	return w, nil
}

// DeleteEvent removes a single event: a cancellation for appointments, a
// single-hour removal for blocks. Missing events count as deleted.
func (a *Aggregator) DeleteEvent(ctx context.Context, id string, kind calendar.Kind) error {
	if id == "" {
		return domain.Invalid("id", "is required")
	}
	if _, err := calendar.ParseKind(string(kind)); err != nil {
		return domain.Invalid("kind", err.Error())
	}

	if err := a.source.Delete(ctx, id); err != nil {
		a.logger.Error().Err(err).Str("event_id", id).Str("kind", string(kind)).Msg("delete event failed")
		return err
	}

	topic := events.BlockHourRemoved
	if kind == calendar.KindAppointment {
		topic = events.AppointmentCancelled
		metrics.IncAppointment("cancelled")
	} else {
		metrics.IncBlockHour("deleted")
	}
	a.logger.Info().Str("event_id", id).Str("kind", string(kind)).Msg("event deleted")
	if err := a.bus.PublishJSON(topic, events.Mutation{EventIDs: []string{id}, Kind: string(kind)}); err != nil {
		a.logger.Warn().Err(err).Str("topic", topic).Msg("publish failed")
	}
	return nil
}
