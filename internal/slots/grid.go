// Package slots builds the fixed candidate slot grid for a clinic day and
// classifies each slot against busy intervals.
package slots

import (
	"fmt"
	"time"

	"bioskin/internal/interval"
)

const (
	DefaultFirstHour    = 7
	DefaultLastHour     = 20
	DefaultSlotDuration = 2 * time.Hour
	DefaultBlockUnit    = time.Hour
)

// Slot is a candidate appointment window starting on the hourly grid.
type Slot struct {
	Date      time.Time // local midnight of the slot's calendar day
	StartHour int
	Duration  time.Duration
	Interval  interval.TimeInterval
}

// SlotInfo is a simplified representation for clients.
type SlotInfo struct {
	Date  string `json:"date"`  // "2026-01-15"
	Hour  int    `json:"hour"`  // 9
	Start string `json:"start"` // "09:00"
	End   string `json:"end"`   // "11:00"
	State State  `json:"state"`
}

// Grid is the static slot configuration of a deployment.
type Grid struct {
	FirstHour int
	LastHour  int
	Duration  time.Duration
	Location  *time.Location
}

// DefaultGrid returns the 07:00-20:00 hourly grid of two-hour slots.
func DefaultGrid(loc *time.Location) Grid {
	return Grid{
		FirstHour: DefaultFirstHour,
		LastHour:  DefaultLastHour,
		Duration:  DefaultSlotDuration,
		Location:  loc,
	}
}

// Validate checks the grid bounds.
func (g Grid) Validate() error {
	if g.FirstHour < 0 || g.FirstHour > 23 {
		return fmt.Errorf("first hour %d out of range 0-23", g.FirstHour)
	}
	if g.LastHour < g.FirstHour || g.LastHour > 23 {
		return fmt.Errorf("last hour %d must be within %d-23", g.LastHour, g.FirstHour)
	}
	if g.Duration <= 0 {
		return fmt.Errorf("slot duration must be positive")
	}
	return nil
}

func (g Grid) location() *time.Location {
	if g.Location == nil {
		return time.Local
	}
	return g.Location
}

// Hours returns every grid start hour in ascending order.
func (g Grid) Hours() []int {
	hours := make([]int, 0, g.LastHour-g.FirstHour+1)
	for h := g.FirstHour; h <= g.LastHour; h++ {
		hours = append(hours, h)
	}
	return hours
}

// OnGrid reports whether hour is a grid start hour.
func (g Grid) OnGrid(hour int) bool {
	return hour >= g.FirstHour && hour <= g.LastHour
}

// GenerateSlots returns one slot per grid hour for date. The last slots may
// extend past the nominal day.
func (g Grid) GenerateSlots(date time.Time) []Slot {
	day := CivilDay(date, g.location())
	result := make([]Slot, 0, g.LastHour-g.FirstHour+1)
	for _, h := range g.Hours() {
		result = append(result, NewSlot(day, h, 0, g.Duration))
	}
	return result
}

// SlotAt returns the grid slot starting at hour on date.
func (g Grid) SlotAt(date time.Time, hour int) Slot {
	return NewSlot(CivilDay(date, g.location()), hour, 0, g.Duration)
}

// NewSlot builds a slot of duration d starting at hour:minute on the civil
// day of date, in date's location.
func NewSlot(date time.Time, hour, minute int, d time.Duration) Slot {
	loc := date.Location()
	day := CivilDay(date, loc)
	start := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
	end := ResolveEnd(day, hour, minute, d).At(loc)
	return Slot{
		Date:      day,
		StartHour: hour,
		Duration:  d,
		Interval:  interval.TimeInterval{Start: start, End: end},
	}
}

// CivilDay returns midnight in loc of the calendar day written in t.
// The fields of t are read as-is, without converting t to loc first.
func CivilDay(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Today returns local midnight of now's calendar day in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	return CivilDay(now.In(loc), loc)
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	a, b = a.In(loc), b.In(loc)
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// ToSlotInfo converts classified slots for clients.
func ToSlotInfo(slots []Slot, states []State) []SlotInfo {
	result := make([]SlotInfo, len(slots))
	for i, s := range slots {
		var state State
		if i < len(states) {
			state = states[i]
		}
		result[i] = SlotInfo{
			Date:  s.Date.Format("2006-01-02"),
			Hour:  s.StartHour,
			Start: s.Interval.Start.Format("15:04"),
			End:   s.Interval.End.Format("15:04"),
			State: state,
		}
	}
	return result
}
