package blocks

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bioskin/internal/agenda"
	"bioskin/internal/availability"
	"bioskin/internal/calendar"
	"bioskin/internal/domain"
	"bioskin/internal/events"
	"bioskin/internal/lock"
	"bioskin/internal/metrics"
	"bioskin/internal/slots"
)

// Writer creates and deletes calendar events.
type Writer interface {
	Create(ctx context.Context, d calendar.Draft) (string, error)
	Delete(ctx context.Context, id string) error
}

// WindowLoader loads the upcoming agenda.
type WindowLoader interface {
	LoadWindow(ctx context.Context, daysAhead int) (*agenda.Window, error)
}

// Request asks to block hours of one date.
type Request struct {
	Date   time.Time
	Hours  []int
	Reason string
}

// HourOutcome is the result for one requested hour.
type HourOutcome struct {
	Hour    int    `json:"hour"`
	EventID string `json:"event_id,omitempty"`
	Err     error  `json:"-"`
}

// CreateResult reports a block batch. Hours are written one by one, so a
// batch can end up partially created.
type CreateResult struct {
	State    State
	Period   BlockedPeriod
	Outcomes []HourOutcome
}

// Err returns a *domain.PartialBatchError when any hour failed.
func (r *CreateResult) Err() error {
	be := &domain.PartialBatchError{Op: "create block"}
	for _, o := range r.Outcomes {
		if o.Err != nil {
			be.Failed = append(be.Failed, domain.UnitError{Unit: fmt.Sprintf("%02d:00", o.Hour), Err: o.Err})
		} else {
			be.Succeeded++
		}
	}
	if len(be.Failed) == 0 {
		return nil
	}
	return be
}

// DeleteOutcome is the result for one event id.
type DeleteOutcome struct {
	EventID string `json:"event_id"`
	Hour    int    `json:"hour"`
	Err     error  `json:"-"`
}

// DeleteResult reports a removal. Remaining holds the hours still blocked.
type DeleteResult struct {
	State     State
	Remaining BlockedPeriod
	Outcomes  []DeleteOutcome
}

// Err returns a *domain.PartialBatchError when any deletion failed.
func (r *DeleteResult) Err() error {
	be := &domain.PartialBatchError{Op: "delete block"}
	for _, o := range r.Outcomes {
		if o.Err != nil {
			be.Failed = append(be.Failed, domain.UnitError{Unit: o.EventID, Err: o.Err})
		} else {
			be.Succeeded++
		}
	}
	if len(be.Failed) == 0 {
		return nil
	}
	return be
}

// Service runs the block workflow.
type Service struct {
	cal    Writer
	avail  *availability.Calculator
	window WindowLoader
	locker lock.DateLocker
	bus    events.Publisher
	unit   time.Duration
	newID  func() string
	logger *zerolog.Logger
}

// NewService wires the workflow. unit is the length of each blocked hour
// event; zero means slots.DefaultBlockUnit.
func NewService(cal Writer, avail *availability.Calculator, window WindowLoader, locker lock.DateLocker,
	bus events.Publisher, unit time.Duration, logger *zerolog.Logger) *Service {
	if locker == nil {
		locker = lock.Noop{}
	}
	if bus == nil {
		bus = events.Discard{}
	}
	if unit <= 0 {
		unit = slots.DefaultBlockUnit
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{
		cal:    cal,
		avail:  avail,
		window: window,
		locker: locker,
		bus:    bus,
		unit:   unit,
		newID:  uuid.NewString,
		logger: logger,
	}
}

func (s *Service) validate(req Request) (time.Time, []int, string, error) {
	if req.Date.IsZero() {
		return time.Time{}, nil, "", domain.Invalid("date", "is required")
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return time.Time{}, nil, "", domain.Invalid("reason", "is required")
	}
	if len(req.Hours) == 0 {
		return time.Time{}, nil, "", domain.Invalid("hours", "at least one hour is required")
	}

	grid := s.avail.Grid()
	seen := make(map[int]bool, len(req.Hours))
	hours := make([]int, 0, len(req.Hours))
	for _, h := range req.Hours {
		if !grid.OnGrid(h) {
			return time.Time{}, nil, "", domain.Invalid("hours",
				fmt.Sprintf("hour %d is outside %02d-%02d", h, grid.FirstHour, grid.LastHour))
		}
		if seen[h] {
			continue
		}
		seen[h] = true
		hours = append(hours, h)
	}
	sort.Ints(hours)
	return slots.CivilDay(req.Date, s.avail.Location()), hours, reason, nil
}

// Create blocks the requested hours. Every hour is checked against one fresh
// snapshot of the date plus the hours already written by this batch; an
// occupied hour fails alone and the rest are still attempted.
//
// The returned error covers validation, locking and the snapshot fetch. Per
// hour failures are in the result; see CreateResult.Err.
func (s *Service) Create(ctx context.Context, req Request) (*CreateResult, error) {
	date, hours, reason, err := s.validate(req)
	if err != nil {
		return nil, err
	}
	dateStr := date.Format("2006-01-02")
	log := s.logger.With().Str("date", dateStr).Ints("hours", hours).Logger()

	unlock, err := s.locker.Lock(ctx, date)
	if err != nil {
		log.Warn().Err(err).Msg("block: date lock not acquired")
		return nil, err
	}
	defer unlock()

	busy, err := s.avail.Busy(ctx, date)
	if err != nil {
		return nil, err
	}

	res := &CreateResult{
		State: StateValidated,
		Period: BlockedPeriod{
			Date:      date,
			Reason:    reason,
			CreatedAt: s.avail.Now().Truncate(time.Second),
			BatchID:   s.newID(),
		},
	}

	for _, h := range hours {
		slot := slots.NewSlot(date, h, 0, s.unit)
		if err := s.avail.CheckAgainst(slot, busy); err != nil {
			metrics.IncBlockHour("conflict")
			res.Outcomes = append(res.Outcomes, HourOutcome{Hour: h, Err: err})
			continue
		}

		id, err := s.cal.Create(ctx, calendar.Draft{
			Interval: slot.Interval,
			Kind:     calendar.KindBlock,
			Meta: calendar.Metadata{
				Reason:    reason,
				CreatedAt: res.Period.CreatedAt,
				BatchID:   res.Period.BatchID,
			},
		})
		if err != nil {
			metrics.IncBlockHour("error")
			log.Error().Err(err).Int("hour", h).Msg("block: create hour failed")
			res.Outcomes = append(res.Outcomes, HourOutcome{Hour: h, Err: err})
			continue
		}

		metrics.IncBlockHour("created")
		busy = append(busy, slot.Interval)
		res.Outcomes = append(res.Outcomes, HourOutcome{Hour: h, EventID: id})
		res.Period.Entries = append(res.Period.Entries, Entry{Hour: h, EventID: id})
	}

	created := len(res.Period.Entries)
	switch {
	case created == len(hours):
		res.State = StateCreated
	case created == 0:
		res.State = StateFailed
	default:
		res.State = StatePartiallyCreated
	}

	log.Info().
		Str("state", string(res.State)).
		Str("batch_id", res.Period.BatchID).
		Int("created", created).
		Int("failed", len(hours)-created).
		Msg("block batch processed")

	if created > 0 {
		s.publish(events.BlockCreated, events.Mutation{
			EventIDs: res.Period.EventIDs(),
			Kind:     string(calendar.KindBlock),
			Date:     dateStr,
			Hours:    res.Period.Hours(),
			Reason:   reason,
			BatchID:  res.Period.BatchID,
			Failed:   len(hours) - created,
		})
	}
	return res, nil
}

// List returns the blocked periods of the next daysAhead days. Days that
// could not be fetched are reported through the error, which is a
// *domain.FetchError; the periods of the other days are still returned.
func (s *Service) List(ctx context.Context, daysAhead int) ([]BlockedPeriod, error) {
	w, err := s.window.LoadWindow(ctx, daysAhead)
	if err != nil {
		return nil, err
	}
	return GroupPeriods(w.OfKind(calendar.KindBlock), s.avail.Location()), w.Err()
}

// Remove deletes some hours of a period. ids must belong to the period. Each
// id is deleted independently and ids already gone count as deleted.
func (s *Service) Remove(ctx context.Context, period BlockedPeriod, ids []string) (*DeleteResult, error) {
	if len(ids) == 0 {
		return nil, domain.Invalid("event_ids", "at least one id is required")
	}
	seen := make(map[string]bool, len(ids))
	targets := make([]Entry, 0, len(ids))
	for _, id := range ids {
		e, ok := period.entry(id)
		if !ok {
			return nil, domain.Invalid("event_ids", fmt.Sprintf("%s is not part of the period", id))
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		targets = append(targets, e)
	}

	res := &DeleteResult{}
	removed := make(map[string]bool, len(targets))
	for _, e := range targets {
		if err := s.cal.Delete(ctx, e.EventID); err != nil {
			metrics.IncBlockHour("error")
			s.logger.Error().Err(err).Str("event_id", e.EventID).Int("hour", e.Hour).Msg("block: delete hour failed")
			res.Outcomes = append(res.Outcomes, DeleteOutcome{EventID: e.EventID, Hour: e.Hour, Err: err})
			continue
		}
		metrics.IncBlockHour("deleted")
		removed[e.EventID] = true
		res.Outcomes = append(res.Outcomes, DeleteOutcome{EventID: e.EventID, Hour: e.Hour})
	}

	res.Remaining = period
	res.Remaining.Entries = nil
	for _, e := range period.Entries {
		if !removed[e.EventID] {
			res.Remaining.Entries = append(res.Remaining.Entries, e)
		}
	}
	if len(res.Remaining.Entries) == 0 {
		res.State = StateDeleted
	} else {
		res.State = StatePartiallyDeleted
	}

	s.logger.Info().
		Str("date", period.Date.Format("2006-01-02")).
		Str("state", string(res.State)).
		Int("removed", len(removed)).
		Int("remaining", len(res.Remaining.Entries)).
		Msg("block removal processed")

	if len(removed) > 0 {
		topic := events.BlockHourRemoved
		if res.State == StateDeleted {
			topic = events.BlockDeleted
		}
		var (
			removedIDs   []string
			removedHours []int
		)
		for _, o := range res.Outcomes {
			if o.Err == nil {
				removedIDs = append(removedIDs, o.EventID)
				removedHours = append(removedHours, o.Hour)
			}
		}
		s.publish(topic, events.Mutation{
			EventIDs: removedIDs,
			Kind:     string(calendar.KindBlock),
			Date:     period.Date.Format("2006-01-02"),
			Hours:    removedHours,
			Reason:   period.Reason,
			BatchID:  period.BatchID,
			Failed:   len(targets) - len(removed),
		})
	}
	return res, nil
}

// Delete removes every hour of the period.
func (s *Service) Delete(ctx context.Context, period BlockedPeriod) (*DeleteResult, error) {
	if len(period.Entries) == 0 {
		return nil, domain.Invalid("event_ids", "period has no events")
	}
	return s.Remove(ctx, period, period.EventIDs())
}

// FindPeriod looks up the period containing eventID within the next
// daysAhead days.
func (s *Service) FindPeriod(ctx context.Context, eventID string, daysAhead int) (BlockedPeriod, bool, error) {
	periods, err := s.List(ctx, daysAhead)
	for _, p := range periods {
		if _, ok := p.entry(eventID); ok {
			return p, true, nil
		}
	}
	return BlockedPeriod{}, false, err
}

func (s *Service) publish(topic string, m events.Mutation) {
	if err := s.bus.PublishJSON(topic, m); err != nil {
		s.logger.Warn().Err(err).Str("topic", topic).Msg("publish failed")
	}
}

// ParseHours parses a comma separated hour list such as "9,10,11".
func ParseHours(s string) ([]int, error) {
	var hours []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		h, err := strconv.Atoi(part)
		if err != nil {
			return nil, domain.Invalid("hours", fmt.Sprintf("%q is not an hour", part))
		}
		hours = append(hours, h)
	}
	return hours, nil
}
