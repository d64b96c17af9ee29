package youtubeapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/onnwee/song-tender/config"
)

type memTokenStore struct {
	mu        sync.Mutex
	access    string
	refresh   string
	expiry    time.Time
	scope     string
	upserts   int
	upsertErr error
}

func (m *memTokenStore) UpsertOAuthToken(ctx context.Context, provider, access, refresh string, expiry time.Time, scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.access, m.refresh, m.expiry, m.scope = access, refresh, expiry, scope
	return nil
}

func (m *memTokenStore) GetOAuthToken(ctx context.Context, provider string) (string, string, time.Time, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.access, m.refresh, m.expiry, m.scope, nil
}

func newTestService(t *testing.T, store TokenStore) *Service {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)

	cfg := &config.Config{YTClientID: "id", YTClientSecret: "secret", YTRedirectURI: "http://localhost/cb"}
	s := New(cfg, store)
	s.oauth.Endpoint = oauth2.Endpoint{TokenURL: srv.URL + "/token"}
	return s
}

func TestExchangePersistsToken(t *testing.T) {
	store := &memTokenStore{}
	s := newTestService(t, store)

	tok, err := s.Exchange(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if tok.AccessToken != "at-1" {
		t.Errorf("access token = %q", tok.AccessToken)
	}
	if store.access != "at-1" || store.refresh != "rt-1" {
		t.Errorf("stored token = %q / %q, want at-1 / rt-1", store.access, store.refresh)
	}
}

func TestExchangeSurvivesPersistFailure(t *testing.T) {
	store := &memTokenStore{upsertErr: errors.New("db down")}
	s := newTestService(t, store)

	// Persistence failure is logged, not fatal: the caller still gets a
	// usable token for this process lifetime.
	tok, err := s.Exchange(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("Exchange failed on persist error: %v", err)
	}
	if tok.AccessToken != "at-1" {
		t.Errorf("access token = %q", tok.AccessToken)
	}
}

func TestRefreshIfNeededSkipsFreshToken(t *testing.T) {
	store := &memTokenStore{access: "fresh", expiry: time.Now().Add(time.Hour)}
	s := newTestService(t, store)

	tok, err := s.refreshIfNeeded(context.Background())
	if err != nil {
		t.Fatalf("refreshIfNeeded: %v", err)
	}
	if tok.AccessToken != "fresh" {
		t.Errorf("access token = %q, want the stored one", tok.AccessToken)
	}
	if store.upserts != 0 {
		t.Errorf("fresh token re-persisted %d time(s)", store.upserts)
	}
}

func TestRefreshIfNeededRefreshesExpiring(t *testing.T) {
	store := &memTokenStore{access: "stale", refresh: "rt-old", expiry: time.Now().Add(time.Minute), scope: "s"}
	s := newTestService(t, store)

	tok, err := s.refreshIfNeeded(context.Background())
	if err != nil {
		t.Fatalf("refreshIfNeeded: %v", err)
	}
	if tok.AccessToken != "at-1" {
		t.Errorf("access token = %q, want refreshed at-1", tok.AccessToken)
	}
	if store.access != "at-1" {
		t.Errorf("stored access = %q, want at-1", store.access)
	}
}
