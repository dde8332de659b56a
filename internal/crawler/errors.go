package crawler

import (
	"errors"
	"fmt"
)

// Error classes surfaced to the operator.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrValidation    = errors.New("validation error")
	ErrTransport     = errors.New("transport error")
	ErrChallenge     = errors.New("challenge error")
	ErrExtraction    = errors.New("extraction error")
	ErrPostNotFound  = errors.New("post not found")
	ErrUnknownThread = errors.New("thread was not announced to the sink")
)

// TransportError describes a failed fetch.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrTransport.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// ExtractionError reports a post field that could not be derived.
type ExtractionError struct {
	Page  int
	Index int
	Field string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract page %d post %d field %s: %v", e.Page, e.Index, e.Field, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrExtraction.
func (e *ExtractionError) Is(target error) bool {
	return target == ErrExtraction
}
