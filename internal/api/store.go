package api

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"fundingflow/internal/metrics"
	"fundingflow/logger"
)

const (
	defaultHistory = 200

	exchangeField  = "exchange"
	requestIDField = "request_id"
)

// history is a fixed-size ring that keeps the most recent items.
type history[T any] struct {
	mu    sync.RWMutex
	items []T
	next  int
	full  bool
}

func newHistory[T any](limit int) *history[T] {
	if limit <= 0 {
		limit = defaultHistory
	}
	return &history[T]{items: make([]T, limit)}
}

func (h *history[T]) push(item T) {
	h.mu.Lock()
	h.items[h.next] = item
	h.next = (h.next + 1) % len(h.items)
	if h.next == 0 {
		h.full = true
	}
	h.mu.Unlock()
}

// filter returns the retained items oldest first; a nil keep returns all.
func (h *history[T]) filter(keep func(T) bool) []T {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var ordered []T
	if h.full {
		ordered = append(ordered, h.items[h.next:]...)
	}
	ordered = append(ordered, h.items[:h.next]...)

	out := make([]T, 0, len(ordered))
	for _, item := range ordered {
		if keep == nil || keep(item) {
			out = append(out, item)
		}
	}
	return out
}

// metricEvent is a metric as served by /debug/metrics, with the exchange
// dimension lifted out of the free-form fields.
type metricEvent struct {
	Timestamp time.Time              `json:"timestamp"`
	Component string                 `json:"component"`
	Name      string                 `json:"name"`
	Value     interface{}            `json:"value"`
	Type      string                 `json:"type"`
	Exchange  string                 `json:"exchange,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

type metricStore struct {
	events *history[metricEvent]
}

func newMetricStore(limit int) *metricStore {
	return &metricStore{events: newHistory[metricEvent](limit)}
}

func (s *metricStore) handle(m metrics.Metric) {
	exchange, fields := splitFields(m.Fields, exchangeField)
	s.events.push(metricEvent{
		Timestamp: m.Timestamp,
		Component: m.Component,
		Name:      m.Name,
		Value:     m.Value,
		Type:      m.Type,
		Exchange:  exchange[exchangeField],
		Fields:    fields,
	})
}

// snapshot returns the retained events, limited to one exchange when
// exchange is not empty.
func (s *metricStore) snapshot(exchange string) []metricEvent {
	if exchange == "" {
		return s.events.filter(nil)
	}
	return s.events.filter(func(e metricEvent) bool { return strings.EqualFold(e.Exchange, exchange) })
}

// logEvent is a captured log line. Exchange and request id are promoted so
// a failing venue or request can be followed without parsing fields.
type logEvent struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Component string                 `json:"component,omitempty"`
	Exchange  string                 `json:"exchange,omitempty"`
	RequestID string                 `json:"requestId,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// logStore is a logrus hook feeding /debug/logs.
type logStore struct {
	events  *history[logEvent]
	enabled atomic.Bool
}

func newLogStore(limit int) *logStore {
	ls := &logStore{events: newHistory[logEvent](limit)}
	ls.enabled.Store(true)
	return ls
}

func (s *logStore) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (s *logStore) Fire(entry *logrus.Entry) error {
	if !s.enabled.Load() {
		return nil
	}
	promoted, fields := splitFields(logger.Fields(entry.Data), "component", exchangeField, requestIDField)
	s.events.push(logEvent{
		Timestamp: entry.Time,
		Level:     entry.Level.String(),
		Component: promoted["component"],
		Exchange:  promoted[exchangeField],
		RequestID: promoted[requestIDField],
		Message:   entry.Message,
		Fields:    fields,
	})
	return nil
}

// snapshot returns the retained lines at or above minLevel, limited to one
// exchange when exchange is not empty.
func (s *logStore) snapshot(exchange string, minLevel logrus.Level) []logEvent {
	return s.events.filter(func(e logEvent) bool {
		if exchange != "" && !strings.EqualFold(e.Exchange, exchange) {
			return false
		}
		lvl, err := logrus.ParseLevel(e.Level)
		return err != nil || lvl <= minLevel
	})
}

func (s *logStore) close() {
	s.enabled.Store(false)
}

// splitFields moves the named keys out of data as strings and returns the
// rest with errors and Stringers rendered as text.
func splitFields(data logger.Fields, keys ...string) (map[string]string, map[string]interface{}) {
	promoted := make(map[string]string, len(keys))
	var rest map[string]interface{}
	for k, v := range data {
		if slices.Contains(keys, k) {
			promoted[k] = fmt.Sprint(v)
			continue
		}
		if rest == nil {
			rest = make(map[string]interface{}, len(data))
		}
		switch val := v.(type) {
		case error:
			rest[k] = val.Error()
		case fmt.Stringer:
			rest[k] = val.String()
		default:
			rest[k] = val
		}
	}
	return promoted, rest
}
