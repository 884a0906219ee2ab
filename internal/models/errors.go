package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNoMatch is matched by errors.Is for every *NoMatchError.
	ErrNoMatch = errors.New("no matching record")
	// ErrMalformedSource is matched by errors.Is for every *MalformedSourceError.
	ErrMalformedSource = errors.New("malformed source")
)

// NoMatchError reports a locate query with zero candidate rows.
type NoMatchError struct {
	Variable    string
	InitialTime string
	ValidTime   string
	Pattern     string
}

func (e *NoMatchError) Error() string {
	msg := fmt.Sprintf("no matching record for variable %q, initial time %s, valid time %s",
		e.Variable, e.InitialTime, e.ValidTime)
	if e.Pattern != "" {
		msg += fmt.Sprintf(", pattern %q", e.Pattern)
	}
	return msg
}

// Is makes errors.Is(err, ErrNoMatch) succeed.
func (e *NoMatchError) Is(target error) bool {
	return target == ErrNoMatch
}

// IsTransient returns false: retrying the same query returns the same answer.
func (e *NoMatchError) IsTransient() bool {
	return false
}

// MalformedSourceError reports file metadata that cannot be interpreted,
// such as a time coordinate without units. It fails one file only.
type MalformedSourceError struct {
	Path     string
	Variable string
	Reason   string
	Err      error
}

func (e *MalformedSourceError) Error() string {
	var msg string
	if e.Variable != "" {
		msg = fmt.Sprintf("malformed source %s: variable %q: %s", e.Path, e.Variable, e.Reason)
	} else {
		msg = fmt.Sprintf("malformed source %s: %s", e.Path, e.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is makes errors.Is(err, ErrMalformedSource) succeed.
func (e *MalformedSourceError) Is(target error) bool {
	return target == ErrMalformedSource
}

func (e *MalformedSourceError) Unwrap() error {
	return e.Err
}

// IsTransient returns false as the file content will not change by itself
func (e *MalformedSourceError) IsTransient() bool {
	return false
}

// ValidationError represents a rejected input value
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}
