package exchange

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ParseRate validates a funding rate. It must be a finite decimal other than
// zero; "0", "0.0000" and "-0" are all rejected.
func ParseRate(field, text string) (float64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, &ParseError{Field: field, Err: ErrMissing}
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return 0, &ParseError{Field: field, Value: text, Err: err}
	}
	if d.IsZero() {
		return 0, &ParseError{Field: field, Value: text, Err: ErrZeroRate}
	}
	f, _ := d.Float64()
	if math.IsNaN(f) || math.IsInf(f, 0) || f == 0 {
		return 0, &ParseError{Field: field, Value: text, Err: ErrNotFinite}
	}
	return f, nil
}

// ParseEpochMs converts a millisecond epoch to a UTC time. Values at or
// below zero are rejected.
func ParseEpochMs(field, text string) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, &ParseError{Field: field, Err: ErrMissing}
	}
	ms, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		d, derr := decimal.NewFromString(text)
		if derr != nil {
			return time.Time{}, &ParseError{Field: field, Value: text, Err: err}
		}
		ms = d.IntPart()
	}
	if ms <= 0 {
		return time.Time{}, &ParseError{Field: field, Value: text, Err: ErrNonPositive}
	}
	return time.UnixMilli(ms).UTC(), nil
}

// NumberString returns the text of a JSON string or number. Upstreams are
// inconsistent about quoting numeric fields.
func NumberString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", false
	}
	return n.String(), true
}

// SplitList decodes a JSON array into its raw elements so every item can be
// validated on its own.
func SplitList(field string, raw json.RawMessage) ([]json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, &ParseError{Field: field, Err: ErrMissing}
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &ParseError{Field: field, Err: err}
	}
	return items, nil
}
