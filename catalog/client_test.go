package catalog

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/onnwee/song-tender/testutil"
)

type memSessionStore struct {
	mu   sync.Mutex
	data string
}

func (m *memSessionStore) SaveSession(ctx context.Context, data string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = data
	return nil
}

func (m *memSessionStore) LoadSession(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data, nil
}

func TestLoginFullHandshake(t *testing.T) {
	srv := testutil.NewMockCatalogServer(t)
	srv.MockLogin(true)
	srv.MockAuthorize(true)
	srv.MockProbe(http.StatusOK)

	c := New(srv.URL, srv.URL, "user", "pass")
	ok, err := c.Login(context.Background(), false)
	if err != nil || !ok {
		t.Fatalf("Login = %v, %v, want true, nil", ok, err)
	}
	if !c.Authenticated() {
		t.Error("client not authenticated after full handshake")
	}

	// Repeat logins without force are a no-op success.
	if ok, err := c.Login(context.Background(), false); !ok || err != nil {
		t.Errorf("repeat Login = %v, %v", ok, err)
	}
}

func TestLoginWithoutCredentialsIsNoop(t *testing.T) {
	c := New("http://unused.invalid", "http://unused.invalid", "", "")
	ok, err := c.Login(context.Background(), false)
	if ok || err != nil {
		t.Errorf("Login = %v, %v, want false, nil", ok, err)
	}
}

func TestLoginKeepsPartialSessionOnProbeFailure(t *testing.T) {
	srv := testutil.NewMockCatalogServer(t)
	srv.MockLogin(true)
	srv.MockAuthorize(false)
	srv.MockProbe(http.StatusUnauthorized)

	c := New(srv.URL, srv.URL, "user", "pass")
	ok, err := c.Login(context.Background(), false)
	if ok || err == nil {
		t.Fatalf("Login = %v, %v, want failure", ok, err)
	}
	if c.Authenticated() {
		t.Error("client claims full auth after failed probe")
	}
	// Forum cookies are kept for scraping strategies.
	if c.state != authPartial {
		t.Errorf("state = %v, want authPartial", c.state)
	}
}

func TestLoginFailsWithoutSessionCookie(t *testing.T) {
	srv := testutil.NewMockCatalogServer(t)
	srv.MockLogin(false)

	c := New(srv.URL, srv.URL, "user", "pass")
	if ok, err := c.Login(context.Background(), false); ok || err == nil {
		t.Errorf("Login = %v, %v, want cookie failure", ok, err)
	}
	if c.state != authNone {
		t.Errorf("state = %v, want authNone", c.state)
	}
}

func TestSessionSaveAndRestore(t *testing.T) {
	srv := testutil.NewMockCatalogServer(t)
	srv.MockLogin(true)
	srv.MockAuthorize(true)
	srv.MockProbe(http.StatusOK)

	store := &memSessionStore{}
	c := New(srv.URL, srv.URL, "user", "pass")
	c.Sessions = store
	if ok, err := c.Login(context.Background(), false); !ok || err != nil {
		t.Fatalf("Login = %v, %v", ok, err)
	}
	if store.data == "" {
		t.Fatal("session was not persisted after login")
	}

	// A fresh client restores the saved cookies and passes the probe without
	// logging in again.
	fresh := New(srv.URL, srv.URL, "user", "pass")
	fresh.Sessions = store
	if !fresh.RestoreSession(context.Background()) {
		t.Fatal("RestoreSession failed")
	}
	if !fresh.Authenticated() {
		t.Error("restored client not authenticated")
	}
}

func TestRestoreSessionRejectsDeadCookies(t *testing.T) {
	srv := testutil.NewMockCatalogServer(t)
	srv.MockProbe(http.StatusUnauthorized)

	store := &memSessionStore{data: `[{"name":"session_id","value":"stale"}]`}
	c := New(srv.URL, srv.URL, "user", "pass")
	c.Sessions = store
	if c.RestoreSession(context.Background()) {
		t.Error("stale session accepted without a passing probe")
	}
	if c.Authenticated() {
		t.Error("client authenticated from a dead session")
	}
}
