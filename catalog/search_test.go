package catalog

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/onnwee/song-tender/testutil"
)

func TestQueryVariants(t *testing.T) {
	variants := queryVariants("  Green   DAY: American Idiot! ")
	want := []string{
		"  Green   DAY: American Idiot! ", // verbatim first
		"Green DAY: American Idiot!",      // whitespace normalized
		"Green DAY American Idiot",        // punctuation stripped
	}
	if len(variants) != len(want) {
		t.Fatalf("variants = %q, want %q", variants, want)
	}
	for i := range want {
		if variants[i] != want[i] {
			t.Errorf("variants[%d] = %q, want %q", i, variants[i], want[i])
		}
	}

	// Case variants dedup case-insensitively down to the original.
	if got := queryVariants("uprising"); len(got) != 1 || got[0] != "uprising" {
		t.Errorf("single-word variants = %q, want just the query", got)
	}
}

func TestSplitArtistTitle(t *testing.T) {
	tests := []struct {
		in             string
		artist, title  string
		ok             bool
	}{
		{"Muse - Uprising", "Muse", "Uprising", true},
		{"Muse – Uprising", "Muse", "Uprising", true},
		{"Muse — Uprising", "Muse", "Uprising", true},
		{"Uprising by Muse", "Muse", "Uprising", true},
		{"Panic at the Disco", "Panic at", "the Disco", true},
		{"Uprising", "", "", false},
		{"two words", "", "", false},
	}
	for _, tt := range tests {
		artist, title, ok := SplitArtistTitle(tt.in)
		if artist != tt.artist || title != tt.title || ok != tt.ok {
			t.Errorf("SplitArtistTitle(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.in, artist, title, ok, tt.artist, tt.title, tt.ok)
		}
	}
}

func TestResultCacheTTL(t *testing.T) {
	rc := newResultCache(30 * time.Minute)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rc.now = func() time.Time { return now }

	rc.put("muse uprising", Result{Found: true, Candidates: []Candidate{{Artist: "Muse", Title: "Uprising"}}})
	if _, ok := rc.get("muse uprising"); !ok {
		t.Fatal("fresh entry missing")
	}

	now = now.Add(29 * time.Minute)
	if _, ok := rc.get("muse uprising"); !ok {
		t.Error("entry expired before TTL")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := rc.get("muse uprising"); ok {
		t.Error("entry survived past TTL")
	}
}

func TestResultCacheStoresMisses(t *testing.T) {
	rc := newResultCache(30 * time.Minute)
	rc.put("nothing here", Result{Found: false})
	res, ok := rc.get("nothing here")
	if !ok || res.Found {
		t.Errorf("cached miss = %+v ok=%v, want found=false entry", res, ok)
	}
}

func TestSearchStructuredListing(t *testing.T) {
	srv := testutil.NewMockCatalogServer(t)
	srv.MockListing([]map[string]string{
		{"artist": "Muse", "title": "Uprising", "album": "The Resistance", "url": "/charts/1"},
		{"artist": "Somebody", "title": "Else Entirely", "url": "/charts/2"},
		{"artist": "", "title": "No Artist", "url": "/charts/3"},
	})

	c := New(srv.URL, srv.URL, "", "")
	res := c.Search(context.Background(), "Muse Uprising")
	if !res.Found {
		t.Fatal("expected a found result")
	}
	if len(res.Candidates) != 1 {
		t.Fatalf("candidates = %+v, want only the relevant row", res.Candidates)
	}
	got := res.Candidates[0]
	if got.Artist != "Muse" || got.Title != "Uprising" || got.Album != "The Resistance" {
		t.Errorf("candidate = %+v", got)
	}
}

func TestSearchServesFromCache(t *testing.T) {
	srv := testutil.NewMockCatalogServer(t)
	srv.MockListing([]map[string]string{
		{"artist": "Muse", "title": "Uprising"},
	})

	c := New(srv.URL, srv.URL, "", "")
	if res := c.Search(context.Background(), "Muse Uprising"); !res.Found {
		t.Fatal("first search should hit the listing")
	}

	// Break the backend; cached result must still be served, keyed
	// case-insensitively.
	srv.Handlers["/api/charts"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}
	if res := c.Search(context.Background(), "MUSE UPRISING"); !res.Found {
		t.Error("cached result not served after backend failure")
	}
}

func TestSearchNotFoundCached(t *testing.T) {
	srv := testutil.NewMockCatalogServer(t)
	calls := 0
	srv.Handlers["/api/charts"] = func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rows":[]}`))
	}

	c := New(srv.URL, srv.URL, "", "")
	if res := c.Search(context.Background(), "no such song"); res.Found {
		t.Fatal("unexpected found result")
	}
	first := calls
	if res := c.Search(context.Background(), "no such song"); res.Found {
		t.Fatal("unexpected found result on repeat")
	}
	if calls != first {
		t.Errorf("repeat miss re-hit the catalog (%d -> %d calls)", first, calls)
	}
}

func TestSearchOutageNotCached(t *testing.T) {
	srv := testutil.NewMockCatalogServer(t)
	srv.Handlers["/api/charts"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}

	// Every strategy errors out; this round must not be cached as a miss.
	c := New(srv.URL, srv.URL, "", "")
	if res := c.Search(context.Background(), "Muse Uprising"); res.Found {
		t.Fatal("found a result during a full outage")
	}

	srv.MockListing([]map[string]string{
		{"artist": "Muse", "title": "Uprising"},
	})
	if res := c.Search(context.Background(), "Muse Uprising"); !res.Found {
		t.Error("recovered backend still served the outage-round miss")
	}
}

func TestExactLookupRequiresSession(t *testing.T) {
	srv := testutil.NewMockCatalogServer(t)
	srv.MockSuggest("artists", []string{"Muse"})
	srv.MockSuggest("songs", []string{"Uprising"})
	srv.Handlers["/api/charts"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rows":[]}`))
	}

	// Without a session the suggestion index is never consulted.
	c := New(srv.URL, srv.URL, "", "")
	if res := c.Search(context.Background(), "Muse - Uprising"); res.Found {
		t.Fatalf("unauthenticated search used a session-only strategy: %+v", res)
	}

	c2 := New(srv.URL, srv.URL, "", "")
	c2.setState(authFull)
	res := c2.Search(context.Background(), "Muse - Uprising")
	if !res.Found || len(res.Candidates) != 1 {
		t.Fatalf("authenticated exact lookup = %+v", res)
	}
	if res.Candidates[0].Artist != "Muse" || res.Candidates[0].Title != "Uprising" {
		t.Errorf("candidate = %+v", res.Candidates[0])
	}
}

func TestExactLookupRejectsUnrelatedSuggestions(t *testing.T) {
	srv := testutil.NewMockCatalogServer(t)
	srv.MockSuggest("artists", []string{"Radiohead"})
	srv.MockSuggest("songs", []string{"Creep"})
	srv.Handlers["/api/charts"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rows":[]}`))
	}

	c := New(srv.URL, srv.URL, "", "")
	c.setState(authFull)
	if res := c.Search(context.Background(), "Muse - Uprising"); res.Found {
		t.Errorf("unrelated top suggestion accepted: %+v", res)
	}
}
