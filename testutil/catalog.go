// Package testutil provides mock servers for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// MockCatalogServer mocks the chart catalog's community and API front ends
// behind a single base URL.
type MockCatalogServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockCatalogServer creates a catalog mock; unmatched paths return 404.
func NewMockCatalogServer(t *testing.T) *MockCatalogServer {
	t.Helper()
	m := &MockCatalogServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockSuggest serves a suggestion index (artists or songs).
func (m *MockCatalogServer) MockSuggest(index string, suggestions []string) {
	m.Handlers["/api/suggest/"+index] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"suggestions": suggestions}) //nolint:errcheck // test mock response
	}
}

// MockListing serves the paged chart listing endpoint.
func (m *MockCatalogServer) MockListing(rows []map[string]string) {
	m.Handlers["/api/charts"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"rows": rows}) //nolint:errcheck // test mock response
	}
}

// MockSearchPage serves raw HTML from the community search page.
func (m *MockCatalogServer) MockSearchPage(html string) {
	m.Handlers["/search"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, html)
	}
}

// MockLogin serves the community login form endpoint, setting a session
// cookie on POST when accept is true.
func (m *MockCatalogServer) MockLogin(accept bool) {
	m.Handlers["/login"] = func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && accept {
			http.SetCookie(w, &http.Cookie{Name: "session_id", Value: "test-session", Path: "/"})
		}
		w.WriteHeader(http.StatusOK)
	}
}

// MockAuthorize serves the API authorize page. With consent true the page
// carries an allow-access form posting back to /oauth/authorize.
func (m *MockCatalogServer) MockAuthorize(consent bool) {
	m.Handlers["/oauth/authorize"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if consent && r.Method == http.MethodGet {
			fmt.Fprint(w, `<html><body><form method="post" action="/oauth/authorize">
				<input type="hidden" name="csrf" value="tok123">
				<input type="submit" name="allow" value="Allow access">
			</form></body></html>`)
			return
		}
		fmt.Fprint(w, `<html><body>signed in</body></html>`)
	}
}

// MockProbe serves the authenticated identity probe.
func (m *MockCatalogServer) MockProbe(status int) {
	m.Handlers["/api/me"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}
}
