package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"bioskin/internal/interval"
	"bioskin/internal/metrics"
)

// ErrEventNotFound is returned by stores when an event id does not exist.
var ErrEventNotFound = errors.New("calendar event not found")

// Store is the raw event CRUD offered by the external calendar.
type Store interface {
	// ListEvents returns every live event overlapping [from, to).
	ListEvents(ctx context.Context, from, to time.Time) ([]RawEvent, error)

	// CreateEvent stores ev and returns its new id.
	CreateEvent(ctx context.Context, ev RawEvent) (string, error)

	// DeleteEvent removes an event. Missing ids yield ErrEventNotFound.
	DeleteEvent(ctx context.Context, id string) error
}

// Calendar is the typed view of a Store.
type Calendar struct {
	store  Store
	logger *zerolog.Logger
}

// New wraps store.
func New(store Store, logger *zerolog.Logger) *Calendar {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Calendar{store: store, logger: logger}
}

// List fetches and decodes the events overlapping iv, sorted by start.
func (c *Calendar) List(ctx context.Context, iv interval.TimeInterval) ([]Event, error) {
	started := time.Now()
	raws, err := c.store.ListEvents(ctx, iv.Start, iv.End)
	metrics.ObserveCalendar("list", started, err)
	if err != nil {
		return nil, fmt.Errorf("list events %s: %w", iv, err)
	}

	events := make([]Event, 0, len(raws))
	for _, raw := range raws {
		if !raw.Start.Before(raw.End) {
			c.logger.Warn().Str("event_id", raw.ID).Msg("skipping event with empty time range")
			continue
		}
		events = append(events, Decode(raw))
	}
	SortByStart(events)
	return events, nil
}

// Create writes a new tagged event and returns its id.
func (c *Calendar) Create(ctx context.Context, d Draft) (string, error) {
	if !d.Interval.Start.Before(d.Interval.End) {
		return "", fmt.Errorf("create event: %w", interval.ErrEmptyInterval)
	}
	if _, err := ParseKind(string(d.Kind)); err != nil {
		return "", fmt.Errorf("create event: %w", err)
	}
	summary := d.Summary
	if summary == "" {
		summary = DefaultSummary(d.Kind, d.Meta)
	}

	started := time.Now()
	id, err := c.store.CreateEvent(ctx, RawEvent{
		Summary:     summary,
		Description: EncodeDescription(d.Kind, d.Meta),
		Start:       d.Interval.Start,
		End:         d.Interval.End,
	})
	metrics.ObserveCalendar("create", started, err)
	if err != nil {
		return "", fmt.Errorf("create %s event %s: %w", d.Kind, d.Interval, err)
	}
	return id, nil
}

// Delete removes an event. Deleting an id that is already gone succeeds.
func (c *Calendar) Delete(ctx context.Context, id string) error {
	started := time.Now()
	err := c.store.DeleteEvent(ctx, id)
	if errors.Is(err, ErrEventNotFound) {
		c.logger.Debug().Str("event_id", id).Msg("event already deleted")
		err = nil
	}
	metrics.ObserveCalendar("delete", started, err)
	if err != nil {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	return nil
}
