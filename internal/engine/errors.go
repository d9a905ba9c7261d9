package engine

import (
	"errors"
	"fmt"
)

// ErrTickInFlight is returned when a tick is triggered while another one is
// still running. It is an informational skip, not a failure.
var ErrTickInFlight = errors.New("tick already in flight")

// ValidationError rejects a settings or profile patch. The engine state is
// left untouched.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// FetchError aborts the current tick. Prior state is retained and the timer
// keeps running.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError means the primary price could not be parsed. Auxiliary fields
// that fail to parse only lower coverage and never raise this.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse price %q: %v", e.Raw, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
