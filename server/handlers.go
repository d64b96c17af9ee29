// Package server exposes the HTTP API: health, status, metrics, the overlay
// queue view, and authenticated admin endpoints mirroring the moderator and
// broadcaster chat commands.
package server

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/onnwee/song-tender/catalog"
	"github.com/onnwee/song-tender/ledger"
	"github.com/onnwee/song-tender/queue"
	"github.com/onnwee/song-tender/router"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db      *sql.DB
	queue   *queue.Queue
	ledger  *ledger.Ledger
	router  *router.Router
	catalog *catalog.Client
}

// NewHandlers creates a Handlers instance with the given dependencies.
// catalog may be nil when no catalog is configured.
func NewHandlers(db *sql.DB, q *queue.Queue, l *ledger.Ledger, r *router.Router, c *catalog.Client) *Handlers {
	return &Handlers{db: db, queue: q, ledger: l, router: r, catalog: c}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func methodNotAllowed(w http.ResponseWriter) {
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}

// HandleHealthz is a liveness check.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleReadyz reports readiness: the database must answer a ping.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HandleStatus summarizes runtime state for dashboards.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"pending":       len(h.queue.Pending()),
		"history":       len(h.queue.History()),
		"accounts":      len(h.ledger.Accounts()),
		"catalog_ready": h.catalog != nil && h.catalog.Authenticated(),
	}
	if playing, ok := h.queue.NowPlaying(); ok {
		status["now_playing"] = playing
	}
	writeJSON(w, http.StatusOK, status)
}

// HandleQueue serves the overlay view: pending requests plus now playing.
func (h *Handlers) HandleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, h.router.GetDisplayState())
}

// HandleQueueHistory serves played and skipped requests.
func (h *Handlers) HandleQueueHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": h.queue.History()})
}

// Admin queue operations -----------------------------------------------------

func (h *Handlers) HandleAdminQueueNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if req, ok := h.queue.PromoteNextToPlaying(); ok {
		writeJSON(w, http.StatusOK, req)
		return
	}
	writeJSON(w, http.StatusConflict, map[string]string{"error": "queue empty or a song is already playing"})
}

func (h *Handlers) HandleAdminQueuePlayed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if req, ok := h.queue.CompleteCurrentlyPlaying(); ok {
		writeJSON(w, http.StatusOK, req)
		return
	}
	writeJSON(w, http.StatusConflict, map[string]string{"error": "nothing is playing"})
}

func (h *Handlers) HandleAdminQueueSkip(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if id := r.URL.Query().Get("id"); id != "" {
		if req, ok := h.queue.Skip(id); ok {
			writeJSON(w, http.StatusOK, req)
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "request not found"})
		return
	}
	if playing, ok := h.queue.NowPlaying(); ok {
		if req, ok := h.queue.Skip(playing.ID); ok {
			writeJSON(w, http.StatusOK, req)
			return
		}
	}
	if req, ok := h.queue.RemovePendingAtIndex(1); ok {
		writeJSON(w, http.StatusOK, req)
		return
	}
	writeJSON(w, http.StatusConflict, map[string]string{"error": "nothing to skip"})
}

func (h *Handlers) HandleAdminQueueClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	n := h.queue.ClearAll()
	writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

func (h *Handlers) HandleAdminQueueReorder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var body struct {
		From int `json:"from"`
		To   int `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body: expected {from, to}"})
		return
	}
	if !h.queue.Reorder(body.From, body.To) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "positions out of range"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": h.queue.Pending()})
}

func (h *Handlers) HandleAdminQueueRemove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var body struct {
		Position int `json:"position"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body: expected {position}"})
		return
	}
	if req, ok := h.queue.RemovePendingAtIndex(body.Position); ok {
		writeJSON(w, http.StatusOK, req)
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "position out of range"})
}

// Admin ledger operations ----------------------------------------------------

func (h *Handlers) HandleAdminLedgerAccounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	var accounts []ledger.Account
	if q == "" {
		accounts = h.ledger.Accounts()
	} else {
		accounts = h.ledger.Search(q)
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

func (h *Handlers) HandleAdminLedgerRates(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.ledger.GetRates())
	case http.MethodPut:
		var rates ledger.Rates
		if err := json.NewDecoder(r.Body).Decode(&rates); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid rates body"})
			return
		}
		h.ledger.SetRates(rates)
		writeJSON(w, http.StatusOK, h.ledger.GetRates())
	default:
		methodNotAllowed(w)
	}
}

type ledgerGrantRequest struct {
	Platform    string `json:"platform"`
	DisplayName string `json:"display_name"`
	Amount      int    `json:"amount"`
	Description string `json:"description"`
}

func (g *ledgerGrantRequest) platform() (queue.Platform, bool) {
	switch queue.Platform(g.Platform) {
	case queue.PlatformTwitch:
		return queue.PlatformTwitch, true
	case queue.PlatformYouTube:
		return queue.PlatformYouTube, true
	}
	return "", false
}

func (h *Handlers) HandleAdminLedgerAward(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var body ledgerGrantRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.DisplayName == "" || body.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "expected {platform, display_name, amount>0}"})
		return
	}
	platform, ok := body.platform()
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "platform must be twitch or youtube"})
		return
	}
	desc := body.Description
	if desc == "" {
		desc = "granted by admin"
	}
	acct := h.ledger.AwardByUsername(platform, body.DisplayName, body.Amount, desc)
	writeJSON(w, http.StatusOK, acct)
}

func (h *Handlers) HandleAdminLedgerBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var body ledgerGrantRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.DisplayName == "" || body.Amount < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "expected {platform, display_name, amount>=0}"})
		return
	}
	platform, ok := body.platform()
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "platform must be twitch or youtube"})
		return
	}
	acct := h.ledger.SetBalanceByUsername(platform, body.DisplayName, body.Amount)
	writeJSON(w, http.StatusOK, acct)
}
