// Package exchangetest serves canned upstream payloads to adapter tests.
package exchangetest

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"fundingflow/internal/fetcher"
)

// Route is the canned answer for one request path plus query.
type Route struct {
	Status int
	Body   string
	// Hang blocks the handler until the client gives up.
	Hang bool
}

// Server is an httptest upstream that records every request URI it serves.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	routes   map[string]Route
	requests []string
}

// NewServer starts a Server keyed by request URI (path plus raw query).
// Unknown URIs answer 404. The server is closed with the test.
func NewServer(t *testing.T, routes map[string]Route) *Server {
	t.Helper()
	s := &Server{routes: routes}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// JSON is shorthand for a 200 route.
func JSON(body string) Route {
	return Route{Status: http.StatusOK, Body: body}
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.URL.RequestURI())
	route, ok := s.routes[r.URL.RequestURI()]
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	if route.Hang {
		<-r.Context().Done()
		return
	}
	status := route.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(route.Body))
}

// Requests returns the request URIs served so far, in arrival order.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.requests))
	copy(out, s.requests)
	return out
}

// Fetcher returns an unthrottled fetcher with the given timeout.
func Fetcher(timeout time.Duration) *fetcher.Fetcher {
	return fetcher.New(fetcher.Options{Timeout: timeout}, nil)
}
