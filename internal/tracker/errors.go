package tracker

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a scrape failed.
type ErrorKind string

// Failure kinds produced by the scrape pipeline.
const (
	KindInvalidURL        ErrorKind = "invalid_url"
	KindPageLoadFailure   ErrorKind = "page_load_failure"
	KindContentNotReady   ErrorKind = "content_not_ready"
	KindLoginWall         ErrorKind = "login_wall"
	KindNotFound          ErrorKind = "not_found"
	KindExtractionFailure ErrorKind = "extraction_failure"
	KindUnknown           ErrorKind = "unknown"
)

// Kinds lists every failure kind in a stable order.
func Kinds() []ErrorKind {
	return []ErrorKind{
		KindInvalidURL,
		KindPageLoadFailure,
		KindContentNotReady,
		KindLoginWall,
		KindNotFound,
		KindExtractionFailure,
		KindUnknown,
	}
}

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned by stores when a unique field is already taken.
var ErrConflict = errors.New("already exists")

// ScrapeError is a classified scrape failure.
type ScrapeError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	// Status is the HTTP status observed for page load failures; 0 when no response arrived.
	Status int   `json:"status,omitempty"`
	Err    error `json:"-"`
}

// NewError creates a ScrapeError without an underlying cause.
func NewError(kind ErrorKind, message string) *ScrapeError {
	return &ScrapeError{Kind: kind, Message: message}
}

// WrapError creates a ScrapeError that wraps err.
func WrapError(kind ErrorKind, err error, message string) *ScrapeError {
	return &ScrapeError{Kind: kind, Message: message, Err: err}
}

// PageLoadError reports a navigation failure with the observed HTTP status.
func PageLoadError(status int, err error, message string) *ScrapeError {
	return &ScrapeError{Kind: KindPageLoadFailure, Status: status, Message: message, Err: err}
}

// Error implements error.
func (e *ScrapeError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.Status, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap returns the underlying cause.
func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first ScrapeError in err's chain, or KindUnknown.
func KindOf(err error) ErrorKind {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// AsScrapeError returns err as a *ScrapeError, wrapping unclassified errors as KindUnknown.
func AsScrapeError(err error) *ScrapeError {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se
	}
	return WrapError(KindUnknown, err, err.Error())
}
