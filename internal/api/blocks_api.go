package api

import (
	"errors"
	"net/http"

	"bioskin/internal/blocks"
	"bioskin/internal/domain"
	"bioskin/internal/metrics"
)

// CreateBlockRequest is the request body for POST /api/v1/blocks.
type CreateBlockRequest struct {
	Date   string `json:"date"` // Format: YYYY-MM-DD
	Hours  []int  `json:"hours"`
	Reason string `json:"reason"`
}

// OutcomeResponse is the result for one unit of a batch.
type OutcomeResponse struct {
	Hour    int    `json:"hour"`
	EventID string `json:"event_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BlockResultResponse is the response of block creation and deletion.
type BlockResultResponse struct {
	State    blocks.State          `json:"state"`
	Period   *blocks.BlockedPeriod `json:"period,omitempty"`
	Outcomes []OutcomeResponse     `json:"outcomes"`
}

// DeleteBlockRequest is the request body for POST /api/v1/blocks/delete.
// Without event_ids the whole period is deleted.
type DeleteBlockRequest struct {
	Period   blocks.BlockedPeriod `json:"period"`
	EventIDs []string             `json:"event_ids,omitempty"`
}

// BlocksResponse is the response for GET /api/v1/blocks.
type BlocksResponse struct {
	Periods    []blocks.BlockedPeriod `json:"periods"`
	FailedDays []string               `json:"failed_days,omitempty"`
}

func outcomeError(err error) string {
	if err == nil {
		return ""
	}
	var ce *domain.ConflictError
	if errors.As(err, &ce) {
		return "occupied"
	}
	return "calendar write failed"
}

// handleListBlocks lists the blocked periods of the next days.
// GET /api/v1/blocks?days=N
func (s *HTTPServer) handleListBlocks(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("blocks_list")

	days, err := s.parseDays(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	periods, err := s.blocks.List(r.Context(), days)
	if err != nil && !domain.IsFetch(err) {
		s.writeServiceError(w, err)
		return
	}
	if periods == nil {
		periods = []blocks.BlockedPeriod{}
	}
	writeJSON(w, http.StatusOK, BlocksResponse{Periods: periods, FailedDays: failedDays(err)})
}

// handleCreateBlock blocks hours of a date: 201 when every hour was
// blocked, 207 when some were, 409 when none were.
// POST /api/v1/blocks
func (s *HTTPServer) handleCreateBlock(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("blocks_create")

	var req CreateBlockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	date, err := s.parseDate(req.Date)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	res, err := s.blocks.Create(r.Context(), blocks.Request{Date: date, Hours: req.Hours, Reason: req.Reason})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	resp := BlockResultResponse{State: res.State, Outcomes: make([]OutcomeResponse, len(res.Outcomes))}
	for i, o := range res.Outcomes {
		resp.Outcomes[i] = OutcomeResponse{Hour: o.Hour, EventID: o.EventID, Error: outcomeError(o.Err)}
	}
	if len(res.Period.Entries) > 0 {
		resp.Period = &res.Period
	}

	status := http.StatusCreated
	switch res.State {
	case blocks.StatePartiallyCreated:
		status = http.StatusMultiStatus
	case blocks.StateFailed:
		status = http.StatusConflict
	}
	writeJSON(w, status, resp)
}

// handleDeleteBlock deletes a whole period or some of its hours. 207 when
// some deletions failed, 502 when none went through.
// POST /api/v1/blocks/delete
func (s *HTTPServer) handleDeleteBlock(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("blocks_delete")

	var req DeleteBlockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var (
		res *blocks.DeleteResult
		err error
	)
	if len(req.EventIDs) == 0 {
		res, err = s.blocks.Delete(r.Context(), req.Period)
	} else {
		res, err = s.blocks.Remove(r.Context(), req.Period, req.EventIDs)
	}
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	resp := BlockResultResponse{State: res.State, Outcomes: make([]OutcomeResponse, len(res.Outcomes))}
	for i, o := range res.Outcomes {
		resp.Outcomes[i] = OutcomeResponse{Hour: o.Hour, EventID: o.EventID, Error: outcomeError(o.Err)}
	}
	if len(res.Remaining.Entries) > 0 {
		resp.Period = &res.Remaining
	}

	status := http.StatusOK
	var be *domain.PartialBatchError
	if errors.As(res.Err(), &be) {
		status = http.StatusMultiStatus
		if be.Succeeded == 0 {
			status = http.StatusBadGateway
		}
	}
	writeJSON(w, status, resp)
}
