package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"bioskin/internal/agenda"
	"bioskin/internal/calendar"
	"bioskin/internal/domain"
	"bioskin/internal/metrics"
)

// DayResponse is the per-day status of an agenda window.
type DayResponse struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
	Error string `json:"error,omitempty"`
}

// AgendaResponse is the response for GET /api/v1/agenda.
type AgendaResponse struct {
	From         string           `json:"from"`
	Days         []DayResponse    `json:"days"`
	Events       []calendar.Event `json:"events"`
	Appointments int              `json:"appointments"`
	Blocks       int              `json:"blocks"`
	FailedDays   []string         `json:"failed_days,omitempty"`
}

func (s *HTTPServer) loadWindow(r *http.Request) (*agenda.Window, error) {
	days, err := s.parseDays(r)
	if err != nil {
		return nil, err
	}
	return s.agenda.LoadWindow(r.Context(), days)
}

// handleAgenda returns the merged events of the next days. Days whose fetch
// failed are listed in failed_days; the rest are still returned.
// GET /api/v1/agenda?days=N
func (s *HTTPServer) handleAgenda(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("agenda")

	win, err := s.loadWindow(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	resp := AgendaResponse{
		From:         win.From.Format(dateLayout),
		Days:         make([]DayResponse, len(win.Days)),
		Events:       win.Events,
		Appointments: win.Appointments,
		Blocks:       win.Blocks,
		FailedDays:   failedDays(win.Err()),
	}
	if resp.Events == nil {
		resp.Events = []calendar.Event{}
	}
	for i, d := range win.Days {
		resp.Days[i] = DayResponse{Date: d.Date.Format(dateLayout), Count: d.Count}
		if d.Err != nil {
			resp.Days[i].Error = "fetch failed"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAgendaExport renders the window as an xlsx workbook. The workbook is
// built in memory so a failed render still gets an error status.
// GET /api/v1/agenda/export?days=N
func (s *HTTPServer) handleAgendaExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("agenda_export")

	win, err := s.loadWindow(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := s.exportXLSX(&buf, win, s.avail.Location()); err != nil {
		s.logger.Error().Err(err).Msg("agenda export failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="agenda_%s.xlsx"`, win.From.Format(dateLayout)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Warn().Err(err).Msg("agenda export write failed")
	}
}

// handleDeleteEvent deletes one appointment or blocked hour.
// DELETE /api/v1/events/{id}?kind=appointment|block
func (s *HTTPServer) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("delete_event")

	kind, err := calendar.ParseKind(r.URL.Query().Get("kind"))
	if err != nil {
		s.writeServiceError(w, domain.Invalid("kind", "must be appointment or block"))
		return
	}
	if err := s.agenda.DeleteEvent(r.Context(), r.PathValue("id"), kind); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleJournal lists recent calendar mutations.
// GET /api/v1/journal?limit=N
func (s *HTTPServer) handleJournal(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("journal")

	if s.journal == nil {
		writeError(w, http.StatusNotFound, "journal disabled")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			s.writeServiceError(w, domain.Invalid("limit", "must be between 1 and 500"))
			return
		}
		limit = n
	}
	entries, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("journal read failed")
		writeError(w, http.StatusInternalServerError, "journal unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
