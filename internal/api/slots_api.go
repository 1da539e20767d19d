package api

import (
	"net/http"
	"time"

	"bioskin/internal/metrics"
	"bioskin/internal/slots"
)

// SlotsResponse is the response for GET /api/v1/slots.
type SlotsResponse struct {
	Date      string           `json:"date"`
	Timezone  string           `json:"timezone"`
	Slots     []slots.SlotInfo `json:"slots"`
	Free      int              `json:"free"`
	FetchedAt time.Time        `json:"fetched_at"`
}

// handleSlots returns the classified slot grid of one day.
// GET /api/v1/slots?date=YYYY-MM-DD
func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("slots")

	date, err := s.parseDate(r.URL.Query().Get("date"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	day, err := s.avail.Day(r.Context(), date)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SlotsResponse{
		Date:      day.Date.Format(dateLayout),
		Timezone:  s.avail.Location().String(),
		Slots:     day.Info(),
		Free:      len(day.Free()),
		FetchedAt: day.FetchedAt,
	})
}
