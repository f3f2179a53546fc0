package fetcher

import (
	"fmt"
)

// Kind classifies why a fetch failed.
type Kind string

const (
	KindTimeout    Kind = "timeout"
	KindNetwork    Kind = "network"
	KindHTTPStatus Kind = "http_status"
	KindEmptyBody  Kind = "empty_body"
	// KindCanceled means the caller gave up; the upstream is not at fault.
	KindCanceled Kind = "canceled"
)

// Sentinels for errors.Is. Only the Kind is compared.
var (
	ErrTimeout    = &Error{Kind: KindTimeout}
	ErrNetwork    = &Error{Kind: KindNetwork}
	ErrHTTPStatus = &Error{Kind: KindHTTPStatus}
	ErrEmptyBody  = &Error{Kind: KindEmptyBody}
	ErrCanceled   = &Error{Kind: KindCanceled}
)

// Error describes one failed upstream request. Body is truncated and only
// set for KindHTTPStatus.
type Error struct {
	Kind       Kind
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindHTTPStatus:
		return fmt.Sprintf("fetch %s: http status %d: %s", e.URL, e.StatusCode, e.Body)
	default:
		if e.Err != nil {
			return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
		}
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// outcome is the metrics label for err.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if fe, ok := err.(*Error); ok {
		return string(fe.Kind)
	}
	return string(KindNetwork)
}
