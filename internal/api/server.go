// Package api exposes the scheduling services over HTTP JSON.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"bioskin/internal/agenda"
	"bioskin/internal/availability"
	"bioskin/internal/blocks"
	"bioskin/internal/booking"
	"bioskin/internal/domain"
	"bioskin/internal/journal"
)

const dateLayout = "2006-01-02"

// JournalReader serves the journal route.
type JournalReader interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Deps are the services behind the routes.
type Deps struct {
	Availability *availability.Calculator
	Booking      *booking.Service
	Blocks       *blocks.Service
	Agenda       *agenda.Aggregator
	Journal      JournalReader
	DefaultDays  int
	APIKey       string
	Logger       *zerolog.Logger
}

// HTTPServer serves the /api/v1 routes.
type HTTPServer struct {
	avail       *availability.Calculator
	booking     *booking.Service
	blocks      *blocks.Service
	agenda      *agenda.Aggregator
	journal     JournalReader
	defaultDays int
	apiKey      string
	logger      *zerolog.Logger
	server      *http.Server

	exportXLSX func(io.Writer, *agenda.Window, *time.Location) error
}

// NewHTTPServer builds the server listening on addr.
func NewHTTPServer(addr string, d Deps) *HTTPServer {
	if d.DefaultDays <= 0 {
		d.DefaultDays = 7
	}
	if d.Logger == nil {
		nop := zerolog.Nop()
		d.Logger = &nop
	}
	s := &HTTPServer{
		avail:       d.Availability,
		booking:     d.Booking,
		blocks:      d.Blocks,
		agenda:      d.Agenda,
		journal:     d.Journal,
		defaultDays: d.DefaultDays,
		apiKey:      d.APIKey,
		logger:      d.Logger,
		exportXLSX:  agenda.WriteXLSX,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/slots", s.handleSlots)
	mux.HandleFunc("POST /api/v1/appointments", s.handleBook)
	mux.HandleFunc("DELETE /api/v1/appointments/{id}", s.handleCancel)
	mux.HandleFunc("GET /api/v1/agenda", s.handleAgenda)
	mux.HandleFunc("GET /api/v1/agenda/export", s.handleAgendaExport)
	mux.HandleFunc("DELETE /api/v1/events/{id}", s.handleDeleteEvent)
	mux.HandleFunc("GET /api/v1/blocks", s.handleListBlocks)
	mux.HandleFunc("POST /api/v1/blocks", s.handleCreateBlock)
	mux.HandleFunc("POST /api/v1/blocks/delete", s.handleDeleteBlock)
	mux.HandleFunc("GET /api/v1/journal", s.handleJournal)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.withAPIKey(mux),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) withAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" {
			got := r.Header.Get("X-Api-Key")
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.apiKey)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid or missing API key")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps service errors to status codes.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	var (
		ve *domain.ValidationError
		ce *domain.ConflictError
		fe *domain.FetchError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": ve.Error(), "field": ve.Field})
	case errors.Is(err, domain.ErrDateLocked):
		writeError(w, http.StatusLocked, err.Error())
	case errors.As(err, &ce):
		writeError(w, http.StatusConflict, ce.Error())
	case errors.As(err, &fe):
		s.logger.Warn().Err(err).Msg("calendar unavailable")
		writeError(w, http.StatusServiceUnavailable, "calendar unavailable, try again")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusBadGateway, "calendar request failed")
	}
}

func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func (s *HTTPServer) parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, domain.Invalid("date", "is required")
	}
	d, err := time.ParseInLocation(dateLayout, value, s.avail.Location())
	if err != nil {
		return time.Time{}, domain.Invalid("date", "invalid format; expected YYYY-MM-DD")
	}
	return d, nil
}

func (s *HTTPServer) parseDays(r *http.Request) (int, error) {
	v := r.URL.Query().Get("days")
	if v == "" {
		return s.defaultDays, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, domain.Invalid("days", "must be an integer")
	}
	return n, nil
}

func failedDays(err error) []string {
	var fe *domain.FetchError
	if !errors.As(err, &fe) {
		return nil
	}
	out := make([]string, len(fe.Dates))
	for i, d := range fe.Dates {
		out[i] = d.Format(dateLayout)
	}
	return out
}
