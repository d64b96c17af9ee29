// Package catalog resolves free-text song requests against an external
// community chart catalog. It layers a chain of search strategies (exact
// suggestion lookup, structured listing, document scraping) over a single
// HTTP client with optional session authentication, and caches results.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
)

// authState tracks how far login got. Partial means the forum login
// succeeded but the API handshake did not; forum cookies are kept because
// some scraping strategies still benefit from them.
type authState int

const (
	authNone authState = iota
	authPartial
	authFull
)

const maxRedirectHops = 10

// SessionStore persists serialized session cookies between runs.
type SessionStore interface {
	SaveSession(ctx context.Context, data string) error
	LoadSession(ctx context.Context) (string, error)
}

// Client is a catalog resolver. Construct with New; all methods are safe for
// concurrent use (searches for distinct queries may run in parallel).
type Client struct {
	// CommunityURL is the forum front end used for form login and scraping.
	CommunityURL string
	// APIURL is the catalog API front end (suggestions, listing, oauth).
	APIURL   string
	Username string
	Password string

	HTTPClient *http.Client
	Sessions   SessionStore

	cache      *resultCache
	strategies []strategy

	stateMu sync.Mutex
	state   authState
}

// New creates a catalog client with a cookie jar and the default strategy
// chain.
func New(communityURL, apiURL, username, password string) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		CommunityURL: strings.TrimRight(communityURL, "/"),
		APIURL:       strings.TrimRight(apiURL, "/"),
		Username:     username,
		Password:     password,
		HTTPClient:   &http.Client{Jar: jar, Timeout: 20 * time.Second},
		cache:        newResultCache(30 * time.Minute),
	}
	c.strategies = []strategy{
		exactLookupStrategy{},
		structuredListingStrategy{},
		resultsTableStrategy{},
		embeddedStateStrategy{},
		layoutSelectorStrategy{},
		linkScanStrategy{},
	}
	return c
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// Authenticated reports whether the API handshake completed.
func (c *Client) Authenticated() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state == authFull
}

func (c *Client) setState(s authState) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// Login performs the two-phase session handshake: (1) form login against the
// community front end, verified by session cookies; (2) an OAuth-style
// authorize handshake against the API front end with bounded redirect
// following and auto-submission of a consent form when presented. The session
// counts as valid only when an authenticated probe succeeds afterwards.
// Without credentials it is a no-op returning false.
func (c *Client) Login(ctx context.Context, force bool) (bool, error) {
	if c.Username == "" || c.Password == "" {
		return false, nil
	}
	if c.Authenticated() && !force {
		return true, nil
	}
	c.setState(authNone)

	if err := c.formLogin(ctx); err != nil {
		slog.Warn("catalog forum login failed", slog.Any("err", err))
		return false, err
	}
	c.setState(authPartial)

	if err := c.apiHandshake(ctx); err != nil {
		slog.Warn("catalog api handshake failed; keeping partial session", slog.Any("err", err))
		return false, err
	}
	if err := c.probe(ctx); err != nil {
		slog.Warn("catalog session probe failed; keeping partial session", slog.Any("err", err))
		return false, err
	}
	c.setState(authFull)
	c.saveSession(ctx)
	slog.Info("catalog session established")
	return true, nil
}

// formLogin posts credentials to the community login form and checks that a
// session-identifying cookie was set somewhere along the redirect chain.
func (c *Client) formLogin(ctx context.Context) error {
	form := url.Values{}
	form.Set("username", c.Username)
	form.Set("password", c.Password)
	form.Set("remember", "1")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.CommunityURL+"/login", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer closeBody(resp)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("login form post: %s", resp.Status)
	}
	if !c.hasSessionCookie() {
		return errors.New("no session cookie after login")
	}
	return nil
}

func (c *Client) hasSessionCookie() bool {
	jar := c.httpClient().Jar
	if jar == nil {
		return false
	}
	u, err := url.Parse(c.CommunityURL)
	if err != nil {
		return false
	}
	for _, ck := range jar.Cookies(u) {
		if strings.Contains(strings.ToLower(ck.Name), "session") {
			return true
		}
	}
	return false
}

// apiHandshake walks the API's authorize flow by hand so the hop count can be
// bounded and an interstitial consent form auto-submitted.
func (c *Client) apiHandshake(ctx context.Context) error {
	// Follow redirects manually; the jar still accumulates cookies.
	noRedirect := &http.Client{
		Jar:     c.httpClient().Jar,
		Timeout: c.httpClient().Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	target := c.APIURL + "/oauth/authorize"
	for hop := 0; hop < maxRedirectHops; hop++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return err
		}
		resp, err := noRedirect.Do(req)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 300 && resp.StatusCode < 400 {
			loc := resp.Header.Get("Location")
			closeBody(resp)
			if loc == "" {
				return errors.New("redirect without location")
			}
			next, err := resp.Request.URL.Parse(loc)
			if err != nil {
				return err
			}
			target = next.String()
			continue
		}
		if resp.StatusCode != http.StatusOK {
			closeBody(resp)
			return fmt.Errorf("authorize: %s", resp.Status)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		closeBody(resp)
		if err != nil {
			return err
		}
		action, fields, found := findConsentForm(string(body), resp.Request.URL)
		if !found {
			// Landed on a plain page with no consent form; handshake done.
			return nil
		}
		if err := c.submitConsent(ctx, noRedirect, action, fields); err != nil {
			return err
		}
		return nil
	}
	return fmt.Errorf("authorize redirect chain exceeded %d hops", maxRedirectHops)
}

// findConsentForm locates an "allow access" form in an authorize page and
// returns its action URL and hidden fields.
func findConsentForm(page string, base *url.URL) (string, url.Values, bool) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return "", nil, false
	}
	var action string
	fields := url.Values{}
	var found bool
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if found {
			return
		}
		if n.Type == html.ElementNode && n.Data == "form" {
			if formHasAllowSubmit(n) {
				found = true
				action = attrVal(n, "action")
				collectHiddenInputs(n, fields)
				return
			}
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(doc)
	if !found {
		return "", nil, false
	}
	if action == "" {
		action = base.String()
	} else if u, err := base.Parse(action); err == nil {
		action = u.String()
	}
	return action, fields, true
}

func formHasAllowSubmit(form *html.Node) bool {
	var has bool
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if has || n == nil {
			return
		}
		if n.Type == html.ElementNode && (n.Data == "input" || n.Data == "button") {
			val := strings.ToLower(attrVal(n, "value") + " " + attrVal(n, "name") + " " + textOf(n))
			if strings.Contains(val, "allow") || strings.Contains(val, "authorize") || strings.Contains(val, "accept") {
				has = true
				return
			}
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(form)
	return has
}

func collectHiddenInputs(form *html.Node, fields url.Values) {
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "input" {
			name := attrVal(n, "name")
			if name != "" && attrVal(n, "type") != "submit" {
				fields.Set(name, attrVal(n, "value"))
			}
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(form)
}

func (c *Client) submitConsent(ctx context.Context, client *http.Client, action string, fields url.Values) error {
	fields.Set("allow", "1")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, action, strings.NewReader(fields.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer closeBody(resp)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("consent submit: %s", resp.Status)
	}
	return nil
}

// probe issues an authenticated API request to confirm the session works.
func (c *Client) probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.APIURL+"/api/me", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("probe: %s", resp.Status)
	}
	return nil
}

// saveSession serializes the API host's cookies through the session store.
func (c *Client) saveSession(ctx context.Context) {
	if c.Sessions == nil {
		return
	}
	jar := c.httpClient().Jar
	u, err := url.Parse(c.APIURL)
	if jar == nil || err != nil {
		return
	}
	type storedCookie struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	var cookies []storedCookie
	for _, ck := range jar.Cookies(u) {
		cookies = append(cookies, storedCookie{Name: ck.Name, Value: ck.Value})
	}
	data, err := json.Marshal(cookies)
	if err != nil {
		return
	}
	if err := c.Sessions.SaveSession(ctx, string(data)); err != nil {
		slog.Warn("catalog session save failed", slog.Any("err", err))
	}
}

// RestoreSession loads previously saved cookies into the jar. The restored
// session still has to pass the probe before it is trusted.
func (c *Client) RestoreSession(ctx context.Context) bool {
	if c.Sessions == nil {
		return false
	}
	data, err := c.Sessions.LoadSession(ctx)
	if err != nil || data == "" {
		return false
	}
	var cookies []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal([]byte(data), &cookies); err != nil {
		return false
	}
	u, err := url.Parse(c.APIURL)
	if err != nil {
		return false
	}
	jar := c.httpClient().Jar
	if jar == nil {
		return false
	}
	restored := make([]*http.Cookie, 0, len(cookies))
	for _, ck := range cookies {
		restored = append(restored, &http.Cookie{Name: ck.Name, Value: ck.Value})
	}
	jar.SetCookies(u, restored)
	if err := c.probe(ctx); err != nil {
		return false
	}
	c.setState(authFull)
	return true
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}
