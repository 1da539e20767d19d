// Package memstore is an in-process calendar store for development and tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"bioskin/internal/calendar"
)

// Faults injects failures into store operations. A nil hook never fails.
type Faults struct {
	List   func(from, to time.Time) error
	Create func(ev calendar.RawEvent) error
	Delete func(id string) error
}

// Store keeps events in memory.
type Store struct {
	mu     sync.Mutex
	events map[string]calendar.RawEvent
	seq    int
	faults Faults
}

// New creates an empty store.
func New() *Store {
	return &Store{events: make(map[string]calendar.RawEvent)}
}

// SetFaults replaces the failure hooks.
func (s *Store) SetFaults(f Faults) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = f
}

// ListEvents returns events overlapping [from, to) ordered by start.
func (s *Store) ListEvents(ctx context.Context, from, to time.Time) ([]calendar.RawEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.faults.List != nil {
		if err := s.faults.List(from, to); err != nil {
			return nil, err
		}
	}

	var out []calendar.RawEvent
	for _, ev := range s.events {
		if ev.Start.Before(to) && ev.End.After(from) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out, nil
}

// CreateEvent stores ev under a new id.
func (s *Store) CreateEvent(ctx context.Context, ev calendar.RawEvent) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.faults.Create != nil {
		if err := s.faults.Create(ev); err != nil {
			return "", err
		}
	}

	s.seq++
	ev.ID = fmt.Sprintf("mem-%06d", s.seq)
	s.events[ev.ID] = ev
	return ev.ID, nil
}

// DeleteEvent removes an event by id.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.faults.Delete != nil {
		if err := s.faults.Delete(id); err != nil {
			return err
		}
	}

	if _, ok := s.events[id]; !ok {
		return calendar.ErrEventNotFound
	}
	delete(s.events, id)
	return nil
}

// Get returns a stored event.
func (s *Store) Get(id string) (calendar.RawEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	return ev, ok
}

// Len returns the number of stored events.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}
