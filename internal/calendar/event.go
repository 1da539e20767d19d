// Package calendar is the boundary to the external calendar store. Raw store
// events are decoded here into typed events so that nothing downstream parses
// free-text descriptions.
package calendar

import (
	"fmt"
	"sort"
	"time"

	"bioskin/internal/interval"
)

// Kind tells appointments and blocked hours apart.
type Kind string

const (
	KindAppointment Kind = "appointment"
	KindBlock       Kind = "block"
)

// ParseKind parses a kind name.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindAppointment, KindBlock:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown event kind %q", s)
}

// Metadata is the structured part of an event description.
type Metadata struct {
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	BatchID   string    `json:"batch_id,omitempty"`
	Patient   string    `json:"patient,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Service   string    `json:"service,omitempty"`
	Notes     string    `json:"notes,omitempty"`
}

// Event is a decoded calendar event.
type Event struct {
	ID       string                `json:"id"`
	Interval interval.TimeInterval `json:"interval"`
	Kind     Kind                  `json:"kind"`
	Summary  string                `json:"summary"`
	Meta     Metadata              `json:"meta"`
}

// Draft is an event to be created.
type Draft struct {
	Interval interval.TimeInterval
	Kind     Kind
	Summary  string
	Meta     Metadata
}

// RawEvent is an event as the store keeps it.
type RawEvent struct {
	ID          string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
}

// Intervals returns the time ranges of events.
func Intervals(events []Event) []interval.TimeInterval {
	out := make([]interval.TimeInterval, len(events))
	for i, ev := range events {
		out[i] = ev.Interval
	}
	return out
}

// SortByStart orders events chronologically, then by id for stability.
func SortByStart(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i].Interval.Start, events[j].Interval.Start
		if a.Equal(b) {
			return events[i].ID < events[j].ID
		}
		return a.Before(b)
	})
}

// CountByKind counts appointments and blocks.
func CountByKind(events []Event) (appointments, blocks int) {
	for _, ev := range events {
		switch ev.Kind {
		case KindBlock:
			blocks++
		default:
			appointments++
		}
	}
	return appointments, blocks
}
