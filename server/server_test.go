package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/onnwee/song-tender/ledger"
	"github.com/onnwee/song-tender/queue"
	"github.com/onnwee/song-tender/router"
)

func newTestServer(t *testing.T) (*httptest.Server, *queue.Queue, *ledger.Ledger) {
	t.Helper()
	q := queue.New(queue.Config{MaxPending: 5}, nil)
	l := ledger.New(ledger.DefaultRates(), nil)
	r := router.New(q, l, nil, router.Config{})
	mux := NewMux(context.Background(), nil, q, l, r, nil)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, q, l
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t)
	var body map[string]string
	if status := getJSON(t, srv.URL+"/healthz", &body); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestQueueEndpoint(t *testing.T) {
	srv, q, _ := newTestServer(t)
	q.Enqueue(queue.Song{Artist: "Muse", Title: "Uprising"}, "u1", "Alice", queue.PlatformTwitch, false)

	var state router.DisplayState
	if status := getJSON(t, srv.URL+"/queue", &state); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if len(state.Pending) != 1 || state.Pending[0].Song.Title != "Uprising" {
		t.Errorf("state = %+v", state)
	}

	resp, err := http.Post(srv.URL+"/queue", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST /queue status = %d", resp.StatusCode)
	}
}

func TestAdminAuthRequired(t *testing.T) {
	t.Setenv("ADMIN_TOKEN", "hunter2")
	srv, q, _ := newTestServer(t)
	q.Enqueue(queue.Song{Title: "one"}, "u1", "U1", queue.PlatformTwitch, false)

	resp, err := http.Post(srv.URL+"/admin/queue/next", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated admin call status = %d, want 401", resp.StatusCode)
	}
	if len(q.Pending()) != 1 {
		t.Error("unauthenticated admin call mutated the queue")
	}

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/admin/queue/next", nil)
	req.Header.Set("X-Admin-Token", "hunter2")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("authenticated admin call status = %d", resp.StatusCode)
	}
	if _, ok := q.NowPlaying(); !ok {
		t.Error("authenticated next did not promote")
	}
}

func TestAdminQueueFlow(t *testing.T) {
	srv, q, _ := newTestServer(t)
	q.Enqueue(queue.Song{Title: "one"}, "u1", "U1", queue.PlatformTwitch, false)
	q.Enqueue(queue.Song{Title: "two"}, "u2", "U2", queue.PlatformTwitch, false)

	post := func(path, body string) int {
		resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if status := post("/admin/queue/reorder", `{"from":2,"to":1}`); status != http.StatusOK {
		t.Errorf("reorder status = %d", status)
	}
	if pending := q.Pending(); pending[0].Song.Title != "two" {
		t.Errorf("reorder not applied: %+v", pending)
	}
	if status := post("/admin/queue/reorder", `{"from":0,"to":9}`); status != http.StatusBadRequest {
		t.Errorf("out-of-range reorder status = %d", status)
	}

	if status := post("/admin/queue/next", ""); status != http.StatusOK {
		t.Errorf("next status = %d", status)
	}
	if status := post("/admin/queue/next", ""); status != http.StatusConflict {
		t.Errorf("second next status = %d, want conflict while playing", status)
	}
	if status := post("/admin/queue/played", ""); status != http.StatusOK {
		t.Errorf("played status = %d", status)
	}
	if status := post("/admin/queue/skip", ""); status != http.StatusOK {
		t.Errorf("skip status = %d", status)
	}
	if status := post("/admin/queue/clear", ""); status != http.StatusOK {
		t.Errorf("clear status = %d", status)
	}
	if len(q.Pending()) != 0 {
		t.Errorf("pending after flow = %+v", q.Pending())
	}
}

func TestAdminLedgerEndpoints(t *testing.T) {
	srv, _, l := newTestServer(t)

	resp, err := http.Post(srv.URL+"/admin/ledger/award", "application/json",
		strings.NewReader(`{"platform":"twitch","display_name":"Alice","amount":3}`))
	if err != nil {
		t.Fatal(err)
	}
	var acct ledger.Account
	if err := json.NewDecoder(resp.Body).Decode(&acct); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if acct.Tokens != 3 {
		t.Errorf("award returned %+v", acct)
	}

	resp, err = http.Post(srv.URL+"/admin/ledger/balance", "application/json",
		strings.NewReader(`{"platform":"twitch","display_name":"Alice","amount":1}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if bal := l.Search("alice")[0].Tokens; bal != 1 {
		t.Errorf("balance after set = %d, want 1", bal)
	}

	resp, err = http.Post(srv.URL+"/admin/ledger/award", "application/json",
		strings.NewReader(`{"platform":"myspace","display_name":"Alice","amount":1}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown platform status = %d", resp.StatusCode)
	}

	var accounts struct {
		Accounts []ledger.Account `json:"accounts"`
	}
	if status := getJSON(t, srv.URL+"/admin/ledger/accounts?q=ali", &accounts); status != http.StatusOK {
		t.Fatalf("accounts status = %d", status)
	}
	if len(accounts.Accounts) != 1 {
		t.Errorf("accounts = %+v", accounts.Accounts)
	}
}

func TestAdminRatesRoundTrip(t *testing.T) {
	srv, _, l := newTestServer(t)

	var rates ledger.Rates
	if status := getJSON(t, srv.URL+"/admin/ledger/rates", &rates); status != http.StatusOK {
		t.Fatalf("GET rates status = %d", status)
	}
	if rates.SubTier1 != 1 {
		t.Errorf("default rates = %+v", rates)
	}

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/admin/ledger/rates",
		strings.NewReader(`{"sub_tier1":5,"bits_threshold":100,"tokens_per_bits":1}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT rates status = %d", resp.StatusCode)
	}
	if got := l.GetRates().SubTier1; got != 5 {
		t.Errorf("SubTier1 after PUT = %d, want 5", got)
	}
}

func TestCorrelationIDHeader(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.Header.Get("X-Correlation-ID") == "" {
		t.Error("missing generated correlation id")
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	req.Header.Set("X-Correlation-ID", "corr-123")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Correlation-ID"); got != "corr-123" {
		t.Errorf("correlation id = %q, want echoed corr-123", got)
	}
}

func TestReadyzWithoutDB(t *testing.T) {
	srv, _, _ := newTestServer(t)
	if status := getJSON(t, srv.URL+"/readyz", nil); status != http.StatusOK {
		t.Errorf("readyz status = %d", status)
	}
}
