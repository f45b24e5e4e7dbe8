package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrTimeout        = errors.New("request timed out")
	ErrBlocked        = errors.New("blocked by anti-bot page")
	ErrEmptyResponse  = errors.New("empty response body")
	ErrEmptyContent   = errors.New("no content extracted")
	ErrInvalidURL     = errors.New("invalid URL")
	ErrNoLinks        = errors.New("no article links discovered")
	ErrRenderDisabled = errors.New("rendered mode is disabled")
	ErrNotFound       = errors.New("not found")
)

// FetchErrorKind classifies fetch failures.
type FetchErrorKind string

const (
	FetchNetwork FetchErrorKind = "network"
	FetchTimeout FetchErrorKind = "timeout"
	FetchDriver  FetchErrorKind = "driver"
)

// FetchError wraps errors that occur during fetching.
type FetchError struct {
	URL        string
	Kind       FetchErrorKind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error (%s) for %s (status %d): %v", e.Kind, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error (%s) for %s: %v", e.Kind, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsFetchKind reports whether err is a FetchError of the given kind.
func IsFetchKind(err error, kind FetchErrorKind) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == kind
}

// ExtractionError records the failure of a single extraction method.
// The extractor logs it and moves on to the next method.
type ExtractionError struct {
	Method string
	URL    string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction method %q failed for %s: %v", e.Method, e.URL, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur in a storage backend.
type StorageError struct {
	Backend string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("storage error (%s %s): %v", e.Backend, e.Op, e.Err)
	}
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// StageError wraps errors raised by a candidate pipeline stage.
type StageError struct {
	Stage string
	URL   string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline error at stage %q for %s: %v", e.Stage, e.URL, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
