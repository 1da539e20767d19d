// Package domain defines the error taxonomy shared by the scheduling services.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"bioskin/internal/interval"
)

// ErrDateLocked is returned when another writer holds the write guard for a date.
var ErrDateLocked = errors.New("calendar date is locked by another writer")

// ValidationError is a locally detected input problem. It never reaches the network.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Invalid is a shorthand constructor for ValidationError.
func Invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// FetchError reports a failed listing of busy intervals or events.
type FetchError struct {
	Op    string
	Dates []time.Time
	Err   error
}

func (e *FetchError) Error() string {
	if len(e.Dates) == 0 {
		return fmt.Sprintf("%s: fetch failed: %v", e.Op, e.Err)
	}
	days := make([]string, len(e.Dates))
	for i, d := range e.Dates {
		days[i] = d.Format("2006-01-02")
	}
	return fmt.Sprintf("%s: fetch failed for %s: %v", e.Op, strings.Join(days, ", "), e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ConflictError reports a slot that was expected free but is occupied.
type ConflictError struct {
	Date     time.Time
	Hour     int
	Interval interval.TimeInterval
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("slot %s %02d:00 is occupied", e.Date.Format("2006-01-02"), e.Hour)
}

// UnitError is the failure of one unit (an hour or an event id) of a batch.
type UnitError struct {
	Unit string
	Err  error
}

// PartialBatchError reports a batch where some units failed.
type PartialBatchError struct {
	Op        string
	Succeeded int
	Failed    []UnitError
}

func (e *PartialBatchError) Error() string {
	return fmt.Sprintf("%s: %d succeeded, %d failed", e.Op, e.Succeeded, len(e.Failed))
}

// Unwrap exposes the per-unit causes to errors.Is / errors.As.
func (e *PartialBatchError) Unwrap() []error {
	errs := make([]error, len(e.Failed))
	for i, f := range e.Failed {
		errs[i] = f.Err
	}
	return errs
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsConflict reports whether err is or wraps a ConflictError.
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

// IsFetch reports whether err is or wraps a FetchError.
func IsFetch(err error) bool {
	var f *FetchError
	return errors.As(err, &f)
}
