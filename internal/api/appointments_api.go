package api

import (
	"fmt"
	"net/http"
	"time"

	"bioskin/internal/booking"
	"bioskin/internal/domain"
	"bioskin/internal/metrics"
)

// BookRequest is the request body for POST /api/v1/appointments.
type BookRequest struct {
	Date            string          `json:"date"`       // Format: YYYY-MM-DD
	StartTime       string          `json:"start_time"` // Format: HH:MM
	DurationMinutes int             `json:"duration_minutes,omitempty"`
	Patient         booking.Patient `json:"patient"`
	Service         string          `json:"service"`
	Notes           string          `json:"notes,omitempty"`
}

// AppointmentResponse describes a booked appointment.
type AppointmentResponse struct {
	ID      string          `json:"id"`
	Date    string          `json:"date"`
	Start   time.Time       `json:"start"`
	End     time.Time       `json:"end"`
	EndDate string          `json:"end_date"`
	EndTime string          `json:"end_time"`
	Patient booking.Patient `json:"patient"`
	Service string          `json:"service"`
}

func parseClock(v string) (hour, minute int, err error) {
	t, perr := time.Parse("15:04", v)
	if perr != nil {
		return 0, 0, domain.Invalid("start_time", "invalid format; expected HH:MM")
	}
	return t.Hour(), t.Minute(), nil
}

// handleBook books an appointment.
// POST /api/v1/appointments
func (s *HTTPServer) handleBook(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("book")

	var req BookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	date, err := s.parseDate(req.Date)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	hour, minute, err := parseClock(req.StartTime)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if req.DurationMinutes < 0 {
		s.writeServiceError(w, domain.Invalid("duration_minutes", fmt.Sprintf("%d is negative", req.DurationMinutes)))
		return
	}

	appt, err := s.booking.Book(r.Context(), booking.Request{
		Date:        date,
		StartHour:   hour,
		StartMinute: minute,
		Duration:    time.Duration(req.DurationMinutes) * time.Minute,
		Patient:     req.Patient,
		Service:     req.Service,
		Notes:       req.Notes,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, AppointmentResponse{
		ID:      appt.ID,
		Date:    date.Format(dateLayout),
		Start:   appt.Interval.Start,
		End:     appt.Interval.End,
		EndDate: appt.End.Date.Format(dateLayout),
		EndTime: appt.End.Clock(),
		Patient: appt.Patient,
		Service: appt.Service,
	})
}

// handleCancel cancels an appointment.
// DELETE /api/v1/appointments/{id}
func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("cancel")

	if err := s.booking.Cancel(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
