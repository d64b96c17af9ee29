package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// fetchSearchDocument loads and parses the community search results page for
// a query. Used by all document-scraping strategies.
func (c *Client) fetchSearchDocument(ctx context.Context, query string) (*html.Node, error) {
	u := c.CommunityURL + "/search?q=" + url.QueryEscape(query)
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
		return nil, fmt.Errorf("search page: %s", resp.Status)
	}
	return html.Parse(resp.Body)
}

// findAll returns every element node matching pred, depth-first.
func findAll(root *html.Node, pred func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && pred(n) {
			out = append(out, n)
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(root)
	return out
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attrVal(n, "class")) {
		if strings.EqualFold(c, class) {
			return true
		}
	}
	return false
}

// resultsTableStrategy parses a structured results table: rows whose first
// two cells are artist and title.
type resultsTableStrategy struct{}

func (resultsTableStrategy) name() string          { return "results-table" }
func (resultsTableStrategy) requiresSession() bool { return false }

func (resultsTableStrategy) search(ctx context.Context, c *Client, query string) ([]Candidate, error) {
	doc, err := c.fetchSearchDocument(ctx, query)
	if err != nil {
		return nil, err
	}
	var out []Candidate
	for _, table := range findAll(doc, func(n *html.Node) bool {
		return n.Data == "table" && strings.Contains(strings.ToLower(attrVal(n, "class")), "result")
	}) {
		for _, tr := range findAll(table, func(n *html.Node) bool { return n.Data == "tr" }) {
			cells := findAll(tr, func(n *html.Node) bool { return n.Data == "td" })
			if len(cells) < 2 {
				continue
			}
			cand := Candidate{Artist: textOf(cells[0]), Title: textOf(cells[1])}
			if len(cells) > 2 {
				cand.Album = textOf(cells[2])
			}
			if link := firstLink(tr); link != "" {
				cand.URL = c.absoluteURL(link)
			}
			if cand.Artist != "" && cand.Title != "" && relevantTo(query, cand) {
				out = append(out, cand)
			}
		}
	}
	return dedupCandidates(out), nil
}

// embeddedStateStrategy digs candidates out of component-state payloads
// embedded in the page (script bodies and data attributes holding
// entity-encoded JSON). Any object carrying an artist-like key and a
// title-like key as siblings counts as a candidate.
type embeddedStateStrategy struct{}

func (embeddedStateStrategy) name() string          { return "embedded-state" }
func (embeddedStateStrategy) requiresSession() bool { return false }

func (embeddedStateStrategy) search(ctx context.Context, c *Client, query string) ([]Candidate, error) {
	doc, err := c.fetchSearchDocument(ctx, query)
	if err != nil {
		return nil, err
	}
	var payloads []string
	for _, script := range findAll(doc, func(n *html.Node) bool { return n.Data == "script" }) {
		if body := textOf(script); strings.Contains(body, "{") {
			payloads = append(payloads, body)
		}
	}
	var collectAttrs func(n *html.Node)
	collectAttrs = func(n *html.Node) {
		for _, a := range n.Attr {
			if strings.HasPrefix(a.Key, "data-") && strings.Contains(a.Val, "{") {
				payloads = append(payloads, a.Val)
			}
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			collectAttrs(ch)
		}
	}
	collectAttrs(doc)

	var out []Candidate
	for _, raw := range payloads {
		decoded := html.UnescapeString(raw)
		start := strings.IndexAny(decoded, "{[")
		if start < 0 {
			continue
		}
		var state any
		if err := json.Unmarshal([]byte(decoded[start:]), &state); err != nil {
			continue
		}
		collectStateCandidates(state, &out)
	}
	filtered := out[:0]
	for _, cand := range out {
		if relevantTo(query, cand) {
			filtered = append(filtered, cand)
		}
	}
	return dedupCandidates(filtered), nil
}

var titleLikeKeys = []string{"title", "song", "track", "name"}

// collectStateCandidates walks decoded JSON looking for objects where an
// artist key and a title-like key sit on the same object.
func collectStateCandidates(v any, out *[]Candidate) {
	switch node := v.(type) {
	case map[string]any:
		var artist, title string
		for key, val := range node {
			s, ok := val.(string)
			if !ok || s == "" {
				continue
			}
			low := strings.ToLower(key)
			if strings.Contains(low, "artist") && artist == "" {
				artist = s
				continue
			}
			for _, tk := range titleLikeKeys {
				if strings.Contains(low, tk) && title == "" {
					title = s
					break
				}
			}
		}
		if artist != "" && title != "" {
			*out = append(*out, Candidate{Artist: artist, Title: title})
		}
		for _, val := range node {
			collectStateCandidates(val, out)
		}
	case []any:
		for _, item := range node {
			collectStateCandidates(item, out)
		}
	}
}

// layoutSelectorStrategy targets the known catalog page layout: chart cards
// with artist/title spans, falling back through several nested link-finding
// heuristics.
type layoutSelectorStrategy struct{}

func (layoutSelectorStrategy) name() string          { return "layout-selectors" }
func (layoutSelectorStrategy) requiresSession() bool { return false }

func (layoutSelectorStrategy) search(ctx context.Context, c *Client, query string) ([]Candidate, error) {
	doc, err := c.fetchSearchDocument(ctx, query)
	if err != nil {
		return nil, err
	}
	var out []Candidate
	cards := findAll(doc, func(n *html.Node) bool {
		return (n.Data == "div" || n.Data == "li" || n.Data == "article") &&
			(hasClass(n, "chart-card") || hasClass(n, "song-entry") || hasClass(n, "chart"))
	})
	for _, card := range cards {
		cand := Candidate{}
		if a := findAll(card, func(n *html.Node) bool { return hasClass(n, "artist") }); len(a) > 0 {
			cand.Artist = textOf(a[0])
		}
		if t := findAll(card, func(n *html.Node) bool { return hasClass(n, "title") || hasClass(n, "song") }); len(t) > 0 {
			cand.Title = textOf(t[0])
		}
		if cand.Artist == "" || cand.Title == "" {
			// Nested link heuristics: heading link, chart-link class, then
			// the card's first link, each parsed as "artist - title" text.
			if artist, title, link, ok := cardFromLinks(card); ok {
				cand.Artist, cand.Title = artist, title
				cand.URL = c.absoluteURL(link)
			}
		} else if link := firstLink(card); link != "" {
			cand.URL = c.absoluteURL(link)
		}
		if cand.Artist != "" && cand.Title != "" && relevantTo(query, cand) {
			out = append(out, cand)
		}
	}
	return dedupCandidates(out), nil
}

func cardFromLinks(card *html.Node) (artist, title, href string, ok bool) {
	candidates := [][]*html.Node{
		findAll(card, func(n *html.Node) bool {
			return n.Data == "a" && n.Parent != nil && (n.Parent.Data == "h3" || n.Parent.Data == "h2")
		}),
		findAll(card, func(n *html.Node) bool { return n.Data == "a" && hasClass(n, "chart-link") }),
		findAll(card, func(n *html.Node) bool { return n.Data == "a" }),
	}
	for _, links := range candidates {
		for _, link := range links {
			if a, t, split := SplitArtistTitle(textOf(link)); split {
				return a, t, attrVal(link, "href"), true
			}
		}
	}
	return "", "", "", false
}

// linkScanStrategy is the blanket fallback: every file-detail link on the
// page whose text splits into artist and title.
type linkScanStrategy struct{}

func (linkScanStrategy) name() string          { return "link-scan" }
func (linkScanStrategy) requiresSession() bool { return false }

func (linkScanStrategy) search(ctx context.Context, c *Client, query string) ([]Candidate, error) {
	doc, err := c.fetchSearchDocument(ctx, query)
	if err != nil {
		return nil, err
	}
	var out []Candidate
	for _, link := range findAll(doc, func(n *html.Node) bool { return n.Data == "a" }) {
		href := attrVal(link, "href")
		if !strings.Contains(href, "/charts/") && !strings.Contains(href, "/file/") {
			continue
		}
		artist, title, ok := SplitArtistTitle(textOf(link))
		if !ok {
			continue
		}
		cand := Candidate{Artist: artist, Title: title, URL: c.absoluteURL(href)}
		if relevantTo(query, cand) {
			out = append(out, cand)
		}
	}
	return dedupCandidates(out), nil
}

func firstLink(n *html.Node) string {
	links := findAll(n, func(l *html.Node) bool { return l.Data == "a" })
	if len(links) == 0 {
		return ""
	}
	return attrVal(links[0], "href")
}

func (c *Client) absoluteURL(href string) string {
	if href == "" || strings.HasPrefix(href, "http") {
		return href
	}
	base, err := url.Parse(c.CommunityURL)
	if err != nil {
		return href
	}
	u, err := base.Parse(href)
	if err != nil {
		return href
	}
	return u.String()
}
