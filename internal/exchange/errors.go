package exchange

import (
	"errors"
	"fmt"
)

var (
	// ErrZeroRate marks a funding rate that parsed to exactly zero.
	ErrZeroRate = errors.New("zero funding rate")
	// ErrNotFinite marks NaN or infinite values.
	ErrNotFinite = errors.New("value is not finite")
	// ErrMissing marks an absent or null field.
	ErrMissing = errors.New("field missing")
	// ErrNonPositive marks a timestamp at or before the epoch.
	ErrNonPositive = errors.New("timestamp must be positive")
)

// ParseError reports one malformed field. The item carrying it is dropped.
type ParseError struct {
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("parse %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("parse %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// EnvelopeError reports an upstream response whose status flag or code
// signals failure. The whole request is discarded.
type EnvelopeError struct {
	Exchange string
	Code     string
	Message  string
}

func (e *EnvelopeError) Error() string {
	return fmt.Sprintf("%s envelope error: code=%s msg=%s", e.Exchange, e.Code, e.Message)
}
