// Package availability computes bookable slots from a fresh snapshot of the
// external calendar. Nothing is cached between calls.
package availability

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"bioskin/internal/calendar"
	"bioskin/internal/domain"
	"bioskin/internal/interval"
	"bioskin/internal/metrics"
	"bioskin/internal/slots"
)

// EventSource lists calendar events overlapping an interval.
type EventSource interface {
	List(ctx context.Context, iv interval.TimeInterval) ([]calendar.Event, error)
}

// DayAvailability is the classified grid of one day.
type DayAvailability struct {
	Date      time.Time
	Slots     []slots.Slot
	States    []slots.State
	FetchedAt time.Time
}

// Free returns the slots that can be booked.
func (d *DayAvailability) Free() []slots.Slot {
	var free []slots.Slot
	for i, s := range d.Slots {
		if d.States[i] == slots.StateFree {
			free = append(free, s)
		}
	}
	return free
}

// Info returns the client representation of the grid.
func (d *DayAvailability) Info() []slots.SlotInfo {
	return slots.ToSlotInfo(d.Slots, d.States)
}

// Calculator classifies grid slots against the calendar.
type Calculator struct {
	source EventSource
	grid   slots.Grid
	now    func() time.Time
	logger *zerolog.Logger
}

// NewCalculator creates a calculator for grid.
func NewCalculator(source EventSource, grid slots.Grid, logger *zerolog.Logger) *Calculator {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if grid.Location == nil {
		grid.Location = time.Local
	}
	return &Calculator{source: source, grid: grid, now: time.Now, logger: logger}
}

// WithClock replaces the clock, for tests and tooling.
func (c *Calculator) WithClock(now func() time.Time) *Calculator {
	c.now = now
	return c
}

// Grid returns the slot grid.
func (c *Calculator) Grid() slots.Grid { return c.grid }

// Location returns the clinic timezone.
func (c *Calculator) Location() *time.Location { return c.grid.Location }

// Now returns the current instant in the clinic timezone.
func (c *Calculator) Now() time.Time { return c.now().In(c.grid.Location) }

// Today returns local midnight of the current clinic day.
func (c *Calculator) Today() time.Time { return slots.Today(c.now(), c.grid.Location) }

// Day classifies every grid slot of date. A failed fetch returns a
// *domain.FetchError and no grid.
func (c *Calculator) Day(ctx context.Context, date time.Time) (*DayAvailability, error) {
	day := slots.CivilDay(date, c.grid.Location)
	busy, err := c.Busy(ctx, day)
	if err != nil {
		metrics.IncSlotGrid("fetch_error")
		return nil, err
	}

	grid := c.grid.GenerateSlots(day)
	metrics.IncSlotGrid("ok")
	return &DayAvailability{
		Date:      day,
		Slots:     grid,
		States:    slots.ClassifyAll(grid, busy, c.now()),
		FetchedAt: c.now(),
	}, nil
}

// Busy fetches the busy intervals (appointments and blocks alike) that can
// touch any grid slot of date.
func (c *Calculator) Busy(ctx context.Context, date time.Time) ([]interval.TimeInterval, error) {
	day := slots.CivilDay(date, c.grid.Location)
	return c.busyIn(ctx, day, c.dayWindow(day))
}

func (c *Calculator) busyIn(ctx context.Context, day time.Time, window interval.TimeInterval) ([]interval.TimeInterval, error) {
	events, err := c.source.List(ctx, window)
	if err != nil {
		c.logger.Error().Err(err).Str("date", day.Format("2006-01-02")).Msg("busy interval fetch failed")
		return nil, &domain.FetchError{Op: "busy intervals", Dates: []time.Time{day}, Err: err}
	}
	return calendar.Intervals(events), nil
}

// dayWindow spans the whole day, extended to the end of the latest grid slot.
func (c *Calculator) dayWindow(day time.Time) interval.TimeInterval {
	end := day.AddDate(0, 0, 1)
	if last := c.grid.SlotAt(day, c.grid.LastHour).Interval.End; last.After(end) {
		end = last
	}
	return interval.TimeInterval{Start: day, End: end}
}

// Recheck fetches a fresh snapshot and fails with *domain.ConflictError when
// slot is now occupied.
func (c *Calculator) Recheck(ctx context.Context, slot slots.Slot) error {
	window := c.dayWindow(slot.Date)
	if slot.Interval.End.After(window.End) {
		window.End = slot.Interval.End
	}
	busy, err := c.busyIn(ctx, slot.Date, window)
	if err != nil {
		return err
	}
	return c.CheckAgainst(slot, busy)
}

// CheckAgainst returns *domain.ConflictError when slot overlaps busy.
func (c *Calculator) CheckAgainst(slot slots.Slot, busy []interval.TimeInterval) error {
	if slots.Classify(slot, busy, c.now()) == slots.StateOccupied {
		return &domain.ConflictError{Date: slot.Date, Hour: slot.StartHour, Interval: slot.Interval}
	}
	return nil
}
