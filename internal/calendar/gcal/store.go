// Package gcal stores clinic events in a Google Calendar.
package gcal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	gcalendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"bioskin/internal/calendar"
)

// Config describes the calendar to use and how to reach it.
type Config struct {
	CalendarID        string
	CredentialsFile   string
	Subject           string // user to impersonate with domain-wide delegation
	RequestsPerSecond float64
	Burst             int
	Location          *time.Location
}

// Store implements calendar.Store on top of the Calendar v3 API.
type Store struct {
	svc        *gcalendar.Service
	calendarID string
	limiter    *rate.Limiter
	loc        *time.Location
	logger     *zerolog.Logger
}

// New authenticates with a service account key and builds a store.
func New(ctx context.Context, cfg Config, logger *zerolog.Logger) (*Store, error) {
	data, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSONWithParams(ctx, data, google.CredentialsParams{
		Scopes:  []string{gcalendar.CalendarEventsScope},
		Subject: cfg.Subject,
	})
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	svc, err := gcalendar.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return NewWithService(svc, cfg, logger), nil
}

// NewWithService builds a store around an existing API client.
func NewWithService(svc *gcalendar.Service, cfg Config, logger *zerolog.Logger) *Store {
	if cfg.CalendarID == "" {
		cfg.CalendarID = "primary"
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Store{
		svc:        svc,
		calendarID: cfg.CalendarID,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		loc:        cfg.Location,
		logger:     logger,
	}
}

// ListEvents returns the confirmed and tentative events overlapping [from, to).
func (s *Store) ListEvents(ctx context.Context, from, to time.Time) ([]calendar.RawEvent, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	call := s.svc.Events.List(s.calendarID).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		ShowDeleted(false).
		MaxResults(250).
		Context(ctx)

	var out []calendar.RawEvent
	err := call.Pages(ctx, func(page *gcalendar.Events) error {
		for _, item := range page.Items {
			if item.Status == "cancelled" {
				continue
			}
			raw, err := s.toRaw(item)
			if err != nil {
				s.logger.Warn().Err(err).Str("event_id", item.Id).Msg("skipping unreadable event")
				continue
			}
			out = append(out, raw)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list google events: %w", err)
	}
	return out, nil
}

// CreateEvent inserts ev and returns the id Google assigned.
func (s *Store) CreateEvent(ctx context.Context, ev calendar.RawEvent) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}

	created, err := s.svc.Events.Insert(s.calendarID, &gcalendar.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       s.dateTime(ev.Start),
		End:         s.dateTime(ev.End),
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("insert google event: %w", err)
	}
	return created.Id, nil
}

// DeleteEvent removes an event; 404 and 410 map to calendar.ErrEventNotFound.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	err := s.svc.Events.Delete(s.calendarID, id).Context(ctx).Do()
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone) {
		return calendar.ErrEventNotFound
	}
	return fmt.Errorf("delete google event: %w", err)
}

func (s *Store) dateTime(t time.Time) *gcalendar.EventDateTime {
	return &gcalendar.EventDateTime{
		DateTime: t.In(s.loc).Format(time.RFC3339),
		TimeZone: s.loc.String(),
	}
}

func (s *Store) toRaw(item *gcalendar.Event) (calendar.RawEvent, error) {
	start, err := s.parseTime(item.Start)
	if err != nil {
		return calendar.RawEvent{}, fmt.Errorf("start: %w", err)
	}
	end, err := s.parseTime(item.End)
	if err != nil {
		return calendar.RawEvent{}, fmt.Errorf("end: %w", err)
	}
	return calendar.RawEvent{
		ID:          item.Id,
		Summary:     item.Summary,
		Description: item.Description,
		Start:       start,
		End:         end,
	}, nil
}

// parseTime reads timed events as instants and all-day events as local midnight.
func (s *Store) parseTime(edt *gcalendar.EventDateTime) (time.Time, error) {
	if edt == nil {
		return time.Time{}, errors.New("missing time")
	}
	if edt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, edt.DateTime)
		if err != nil {
			return time.Time{}, err
		}
		return t.In(s.loc), nil
	}
	if edt.Date != "" {
		return time.ParseInLocation("2006-01-02", edt.Date, s.loc)
	}
	return time.Time{}, errors.New("event time has neither date nor dateTime")
}
