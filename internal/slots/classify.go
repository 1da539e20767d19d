package slots

import (
	"time"

	"bioskin/internal/interval"
)

// State is the computed availability of a slot.
type State string

const (
	StateFree     State = "free"
	StateOccupied State = "occupied"
	StatePast     State = "past"
)

// Classify decides the state of slot given the busy intervals and now.
// Occupied wins over Past. Past only applies to slots of the current local
// day whose start is at or before now.
func Classify(slot Slot, busy []interval.TimeInterval, now time.Time) State {
	if interval.OverlapsAny(slot.Interval, busy) {
		return StateOccupied
	}
	if SameDay(slot.Date, now, slot.Date.Location()) && !slot.Interval.Start.After(now) {
		return StatePast
	}
	return StateFree
}

// ClassifyAll classifies every slot against the same snapshot.
func ClassifyAll(slots []Slot, busy []interval.TimeInterval, now time.Time) []State {
	states := make([]State, len(slots))
	for i, s := range slots {
		states[i] = Classify(s, busy, now)
	}
	return states
}
