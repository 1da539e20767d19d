// Package booking writes and cancels patient appointments.
package booking

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"bioskin/internal/availability"
	"bioskin/internal/calendar"
	"bioskin/internal/domain"
	"bioskin/internal/events"
	"bioskin/internal/interval"
	"bioskin/internal/lock"
	"bioskin/internal/metrics"
	"bioskin/internal/slots"
)

const maxDuration = 8 * time.Hour

// Writer creates and deletes calendar events.
type Writer interface {
	Create(ctx context.Context, d calendar.Draft) (string, error)
	Delete(ctx context.Context, id string) error
}

// Patient identifies who the appointment is for.
type Patient struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// Request asks for an appointment. Duration defaults to the grid slot
// duration.
type Request struct {
	Date        time.Time     `json:"date"`
	StartHour   int           `json:"start_hour"`
	StartMinute int           `json:"start_minute"`
	Duration    time.Duration `json:"duration"`
	Patient     Patient       `json:"patient"`
	Service     string        `json:"service"`
	Notes       string        `json:"notes"`
}

// Appointment is a booked appointment.
type Appointment struct {
	ID       string                `json:"id"`
	Interval interval.TimeInterval `json:"interval"`
	End      slots.EndTime         `json:"-"`
	Patient  Patient               `json:"patient"`
	Service  string                `json:"service"`
}

// Service books appointments against the live calendar.
type Service struct {
	cal    Writer
	avail  *availability.Calculator
	locker lock.DateLocker
	bus    events.Publisher
	logger *zerolog.Logger
}

// NewService creates a booking service. A nil locker means no write guard.
func NewService(cal Writer, avail *availability.Calculator, locker lock.DateLocker, bus events.Publisher, logger *zerolog.Logger) *Service {
	if locker == nil {
		locker = lock.Noop{}
	}
	if bus == nil {
		bus = events.Discard{}
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{cal: cal, avail: avail, locker: locker, bus: bus, logger: logger}
}

func (s *Service) validate(req *Request) (slots.Slot, error) {
	req.Patient.Name = strings.TrimSpace(req.Patient.Name)
	req.Patient.Phone = strings.TrimSpace(req.Patient.Phone)
	req.Patient.Email = strings.TrimSpace(req.Patient.Email)
	req.Service = strings.TrimSpace(req.Service)

	switch {
	case req.Patient.Name == "":
		return slots.Slot{}, domain.Invalid("patient.name", "is required")
	case req.Service == "":
		return slots.Slot{}, domain.Invalid("service", "is required")
	case req.Date.IsZero():
		return slots.Slot{}, domain.Invalid("date", "is required")
	}
	if req.Patient.Email != "" {
		if _, err := mail.ParseAddress(req.Patient.Email); err != nil {
			return slots.Slot{}, domain.Invalid("patient.email", "is not a valid address")
		}
	}

	grid := s.avail.Grid()
	if !grid.OnGrid(req.StartHour) {
		return slots.Slot{}, domain.Invalid("start_hour",
			fmt.Sprintf("must be between %02d and %02d", grid.FirstHour, grid.LastHour))
	}
	if req.StartMinute < 0 || req.StartMinute > 59 {
		return slots.Slot{}, domain.Invalid("start_minute", "must be between 0 and 59")
	}
	if req.Duration == 0 {
		req.Duration = grid.Duration
	}
	if req.Duration < 0 || req.Duration > maxDuration {
		return slots.Slot{}, domain.Invalid("duration", fmt.Sprintf("must be positive and at most %s", maxDuration))
	}

	day := slots.CivilDay(req.Date, s.avail.Location())
	slot := slots.NewSlot(day, req.StartHour, req.StartMinute, req.Duration)
	if !slot.Interval.Start.After(s.avail.Now()) {
		return slots.Slot{}, domain.Invalid("date", "appointment must start in the future")
	}
	return slot, nil
}

// Book re-checks the slot against a fresh snapshot and writes the
// appointment. Without a write guard, two concurrent bookings of the same
// slot can both pass the check.
func (s *Service) Book(ctx context.Context, req Request) (*Appointment, error) {
	slot, err := s.validate(&req)
	if err != nil {
		return nil, err
	}
	log := s.logger.With().
		Str("date", slot.Date.Format("2006-01-02")).
		Int("hour", slot.StartHour).
		Str("kind", string(calendar.KindAppointment)).
		Logger()

	unlock, err := s.locker.Lock(ctx, slot.Date)
	if err != nil {
		log.Warn().Err(err).Msg("booking: date lock not acquired")
		return nil, err
	}
	defer unlock()

	if err := s.avail.Recheck(ctx, slot); err != nil {
		if domain.IsConflict(err) {
			metrics.IncAppointment("conflict")
			log.Info().Msg("booking: slot taken")
		}
		return nil, err
	}

	id, err := s.cal.Create(ctx, calendar.Draft{
		Interval: slot.Interval,
		Kind:     calendar.KindAppointment,
		Meta: calendar.Metadata{
			CreatedAt: s.avail.Now().Truncate(time.Second),
			Patient:   req.Patient.Name,
			Phone:     req.Patient.Phone,
			Email:     req.Patient.Email,
			Service:   req.Service,
			Notes:     req.Notes,
		},
	})
	if err != nil {
		metrics.IncAppointment("error")
		log.Error().Err(err).Msg("booking: create appointment failed")
		return nil, err
	}

	metrics.IncAppointment("booked")
	log.Info().Str("event_id", id).Msg("appointment booked")

	appt := &Appointment{
		ID:       id,
		Interval: slot.Interval,
		End:      slots.ResolveEnd(slot.Date, req.StartHour, req.StartMinute, req.Duration),
		Patient:  req.Patient,
		Service:  req.Service,
	}
	if err := s.bus.PublishJSON(events.AppointmentBooked, events.Mutation{
		EventIDs: []string{id},
		Kind:     string(calendar.KindAppointment),
		Date:     slot.Date.Format("2006-01-02"),
		Hours:    []int{slot.StartHour},
	}); err != nil {
		log.Warn().Err(err).Msg("publish failed")
	}
	return appt, nil
}

// Cancel deletes an appointment. Cancelling one that is already gone
// succeeds.
func (s *Service) Cancel(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Invalid("id", "is required")
	}
	if err := s.cal.Delete(ctx, id); err != nil {
		s.logger.Error().Err(err).Str("event_id", id).Msg("booking: cancel failed")
		return err
	}

	metrics.IncAppointment("cancelled")
	s.logger.Info().Str("event_id", id).Msg("appointment cancelled")
	if err := s.bus.PublishJSON(events.AppointmentCancelled, events.Mutation{
		EventIDs: []string{id},
		Kind:     string(calendar.KindAppointment),
	}); err != nil {
		s.logger.Warn().Err(err).Msg("publish failed")
	}
	return nil
}
