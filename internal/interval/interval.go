// Package interval holds the half-open time range used across the scheduling engine.
package interval

import (
	"errors"
	"fmt"
	"time"
)

// ErrEmptyInterval is returned when end does not come after start.
var ErrEmptyInterval = errors.New("interval end must be after start")

// TimeInterval is the half-open range [Start, End).
type TimeInterval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// New builds an interval, rejecting empty or inverted ranges.
func New(start, end time.Time) (TimeInterval, error) {
	if !start.Before(end) {
		return TimeInterval{}, fmt.Errorf("%w: %s >= %s", ErrEmptyInterval,
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return TimeInterval{Start: start, End: end}, nil
}

// Overlaps reports whether a and b share any instant.
// Intervals that only touch (a.End == b.Start) do not overlap.
func Overlaps(a, b TimeInterval) bool {
	return a.Start.Before(b.End) && a.End.After(b.Start)
}

// OverlapsAny reports whether iv overlaps at least one interval of busy.
func OverlapsAny(iv TimeInterval, busy []TimeInterval) bool {
	for _, b := range busy {
		if Overlaps(iv, b) {
			return true
		}
	}
	return false
}

// Duration returns End - Start.
func (iv TimeInterval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Contains reports whether t falls inside [Start, End).
func (iv TimeInterval) Contains(t time.Time) bool {
	return !t.Before(iv.Start) && t.Before(iv.End)
}

// In returns the interval with both bounds expressed in loc.
func (iv TimeInterval) In(loc *time.Location) TimeInterval {
	return TimeInterval{Start: iv.Start.In(loc), End: iv.End.In(loc)}
}

func (iv TimeInterval) String() string {
	return fmt.Sprintf("[%s, %s)", iv.Start.Format(time.RFC3339), iv.End.Format(time.RFC3339))
}
