package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/onnwee/song-tender/telemetry"
)

// Candidate is one resolved catalog entry.
type Candidate struct {
	Artist string `json:"artist"`
	Title  string `json:"title"`
	Album  string `json:"album,omitempty"`
	URL    string `json:"url,omitempty"`
}

// Result is a search outcome. Not-found results are cached too so repeated
// misses don't re-hit the catalog.
type Result struct {
	Found      bool
	Candidates []Candidate
}

// strategy is one way of querying the catalog. Strategies are tried in order
// until one yields candidates.
type strategy interface {
	name() string
	// search returns candidates for a single query variant. An error means
	// the strategy could not run (network/auth); an empty slice means it ran
	// and found nothing.
	search(ctx context.Context, c *Client, query string) ([]Candidate, error)
	// requiresSession marks strategies that only work with a full session.
	requiresSession() bool
}

// Search resolves a free-text query through the strategy chain. Results
// (found or not) are cached for 30 minutes keyed by the lower-cased query.
func (c *Client) Search(ctx context.Context, query string) Result {
	key := strings.ToLower(query)
	if res, ok := c.cache.get(key); ok {
		telemetry.IncCatalogCacheHit()
		return res
	}
	telemetry.IncCatalogSearch()

	variants := queryVariants(query)
	res := Result{}
	completed := false
	telemetry.TimeFunc(telemetry.SearchDuration, func() {
		for _, s := range c.strategies {
			if s.requiresSession() && !c.Authenticated() {
				continue
			}
			for _, v := range variants {
				cands, err := s.search(ctx, c, v)
				if err != nil {
					telemetry.LoggerWithCorr(ctx).Debug("catalog strategy failed",
						"strategy", s.name(), "query", v, "err", err)
					continue
				}
				completed = true
				if len(cands) > 0 {
					res = Result{Found: true, Candidates: cands}
					break
				}
			}
			if res.Found {
				break
			}
		}
	})
	// A miss is cacheable only when at least one strategy actually ran to
	// completion; an outage or an expired context must not pin a 30-minute
	// not-found.
	if res.Found || (completed && ctx.Err() == nil) {
		c.cache.put(key, res)
	}
	return res
}

// queryVariants generates search variants in a fixed order: verbatim,
// whitespace-normalized, title-cased, lower-cased, punctuation-stripped.
// Duplicates are removed case-insensitively, preserving generation order.
func queryVariants(query string) []string {
	normalized := strings.Join(strings.Fields(query), " ")
	variants := []string{
		query,
		normalized,
		titleCase(normalized),
		strings.ToLower(normalized),
		stripPunctuation(normalized),
	}
	seen := make(map[string]bool, len(variants))
	out := make([]string, 0, len(variants))
	for _, v := range variants {
		k := strings.ToLower(v)
		if v == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		if len(r) > 0 {
			r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		}
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

func stripPunctuation(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r == ' ' || r == '-' || (r >= '0' && r <= '9') ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r > 127 {
			sb.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// SplitArtistTitle splits free text into (artist, title) on an explicit
// separator (" - ", " – ", " — ", " by "); with no separator it guesses a
// two-word artist and leaves the rest as title. ok is false when no sensible
// split exists.
func SplitArtistTitle(text string) (artist, title string, ok bool) {
	for _, sep := range []string{" - ", " – ", " — "} {
		if i := strings.Index(text, sep); i > 0 {
			return strings.TrimSpace(text[:i]), strings.TrimSpace(text[i+len(sep):]), true
		}
	}
	if i := strings.Index(strings.ToLower(text), " by "); i > 0 {
		// "title by artist" ordering
		return strings.TrimSpace(text[i+4:]), strings.TrimSpace(text[:i]), true
	}
	words := strings.Fields(text)
	if len(words) >= 3 {
		return strings.Join(words[:2], " "), strings.Join(words[2:], " "), true
	}
	return "", "", false
}

// queryTokens returns lower-cased tokens longer than 2 characters.
func queryTokens(s string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(s)) {
		if len(w) > 2 {
			out = append(out, w)
		}
	}
	return out
}

// relevantTo reports whether a candidate's artist+title contains at least one
// query token longer than 2 characters.
func relevantTo(query string, cand Candidate) bool {
	hay := strings.ToLower(cand.Artist + " " + cand.Title)
	for _, tok := range queryTokens(query) {
		if strings.Contains(hay, tok) {
			return true
		}
	}
	return false
}

func dedupCandidates(cands []Candidate) []Candidate {
	seen := make(map[string]bool, len(cands))
	out := make([]Candidate, 0, len(cands))
	for _, cd := range cands {
		k := strings.ToLower(cd.Artist) + "\x00" + strings.ToLower(cd.Title)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, cd)
	}
	return out
}

// exactLookupStrategy resolves the artist and title halves independently
// against the catalog's name-suggestion indices. A candidate is reported only
// when both halves resolve to an exact, containing, or contained match; it
// never falls back to an unrelated top suggestion.
type exactLookupStrategy struct{}

func (exactLookupStrategy) name() string          { return "exact-lookup" }
func (exactLookupStrategy) requiresSession() bool { return true }

func (exactLookupStrategy) search(ctx context.Context, c *Client, query string) ([]Candidate, error) {
	artist, title, ok := SplitArtistTitle(query)
	if !ok {
		return nil, nil
	}
	resolvedArtist, artistOK, err := c.suggest(ctx, "artists", artist)
	if err != nil {
		return nil, err
	}
	if !artistOK {
		return nil, nil
	}
	resolvedTitle, titleOK, err := c.suggest(ctx, "songs", title)
	if err != nil {
		return nil, err
	}
	if !titleOK {
		return nil, nil
	}
	return []Candidate{{Artist: resolvedArtist, Title: resolvedTitle}}, nil
}

// suggest queries a suggestion index and accepts only close matches: exact,
// suggestion-contains-term, or term-contains-suggestion (case-insensitive).
func (c *Client) suggest(ctx context.Context, index, term string) (string, bool, error) {
	u := fmt.Sprintf("%s/api/suggest/%s?q=%s", c.APIURL, index, url.QueryEscape(term))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", false, err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", false, err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("suggest %s: %s", index, resp.Status)
	}
	var body struct {
		Suggestions []string `json:"suggestions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", false, err
	}
	lowTerm := strings.ToLower(term)
	for _, s := range body.Suggestions {
		low := strings.ToLower(s)
		if low == lowTerm || strings.Contains(low, lowTerm) || strings.Contains(lowTerm, low) {
			return s, true, nil
		}
	}
	return "", false, nil
}

// structuredListingStrategy queries the catalog's paged listing endpoint with
// the search term as a server-side filter.
type structuredListingStrategy struct{}

func (structuredListingStrategy) name() string          { return "structured-listing" }
func (structuredListingStrategy) requiresSession() bool { return false }

func (structuredListingStrategy) search(ctx context.Context, c *Client, query string) ([]Candidate, error) {
	u := fmt.Sprintf("%s/api/charts?sort=name&page=1&filter=%s", c.APIURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing: %s", resp.Status)
	}
	var body struct {
		Rows []struct {
			Artist string `json:"artist"`
			Title  string `json:"title"`
			Album  string `json:"album"`
			URL    string `json:"url"`
		} `json:"rows"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	var out []Candidate
	for _, row := range body.Rows {
		cand := Candidate{Artist: row.Artist, Title: row.Title, Album: row.Album, URL: row.URL}
		if cand.Artist == "" || cand.Title == "" || !relevantTo(query, cand) {
			continue
		}
		out = append(out, cand)
	}
	return dedupCandidates(out), nil
}
