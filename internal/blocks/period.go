// Package blocks manages blocked periods: batches of single-hour events that
// make slots unavailable for booking.
package blocks

import (
	"sort"
	"time"

	"bioskin/internal/calendar"
	"bioskin/internal/slots"
)

// State is the lifecycle state of a block batch.
type State string

const (
	StateRequested        State = "requested"
	StateValidated        State = "validated"
	StateCreated          State = "created"
	StatePartiallyCreated State = "partially_created"
	StateFailed           State = "failed"
	StateDeleted          State = "deleted"
	StatePartiallyDeleted State = "partially_deleted"
)

// Entry is one blocked hour and the event backing it.
type Entry struct {
	Hour    int    `json:"hour"`
	EventID string `json:"event_id"`
}

// BlockedPeriod groups the blocked hours of one date that share a reason.
// CreatedAt and BatchID describe the earliest batch that contributed to it.
type BlockedPeriod struct {
	Date      time.Time `json:"date"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
	BatchID   string    `json:"batch_id,omitempty"`
	Entries   []Entry   `json:"entries"`
}

// Hours returns the blocked hours in ascending order.
func (p BlockedPeriod) Hours() []int {
	hours := make([]int, len(p.Entries))
	for i, e := range p.Entries {
		hours[i] = e.Hour
	}
	return hours
}

// EventIDs returns the ids of the backing events, ordered by hour.
func (p BlockedPeriod) EventIDs() []string {
	ids := make([]string, len(p.Entries))
	for i, e := range p.Entries {
		ids[i] = e.EventID
	}
	return ids
}

func (p BlockedPeriod) entry(id string) (Entry, bool) {
	for _, e := range p.Entries {
		if e.EventID == id {
			return e, true
		}
	}
	return Entry{}, false
}

type groupKey struct {
	date   string
	reason string
}

// GroupPeriods folds block events into periods keyed by (date, reason), so
// separate submissions with the same reason on one day form a single period.
// Periods come back sorted by date, then first hour.
func GroupPeriods(evs []calendar.Event, loc *time.Location) []BlockedPeriod {
	index := make(map[groupKey]int)
	var periods []BlockedPeriod

	for _, ev := range evs {
		if ev.Kind != calendar.KindBlock {
			continue
		}
		start := ev.Interval.Start.In(loc)
		date := slots.Today(start, loc)
		key := groupKey{date: date.Format("2006-01-02"), reason: ev.Meta.Reason}
		i, ok := index[key]
		if !ok {
			i = len(periods)
			index[key] = i
			periods = append(periods, BlockedPeriod{
				Date:      date,
				Reason:    ev.Meta.Reason,
				CreatedAt: ev.Meta.CreatedAt,
				BatchID:   ev.Meta.BatchID,
			})
		} else if earlier(ev.Meta.CreatedAt, periods[i].CreatedAt) {
			periods[i].CreatedAt = ev.Meta.CreatedAt
			periods[i].BatchID = ev.Meta.BatchID
		}
		periods[i].Entries = append(periods[i].Entries, Entry{Hour: start.Hour(), EventID: ev.ID})
	}

	for i := range periods {
		sort.SliceStable(periods[i].Entries, func(a, b int) bool {
			return periods[i].Entries[a].Hour < periods[i].Entries[b].Hour
		})
	}
	sort.SliceStable(periods, func(a, b int) bool {
		if !periods[a].Date.Equal(periods[b].Date) {
			return periods[a].Date.Before(periods[b].Date)
		}
		return periods[a].Entries[0].Hour < periods[b].Entries[0].Hour
	})
	return periods
}

// earlier reports whether a precedes b; zero times never win.
func earlier(a, b time.Time) bool {
	if a.IsZero() {
		return false
	}
	return b.IsZero() || a.Before(b)
}
