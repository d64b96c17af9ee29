// Package queue owns the ordered song request queue: priority lane ordering,
// per-requester cooldowns and pending limits, request lifecycle
// (pending -> playing -> completed/skipped), and snapshot persistence.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Platform identifies the chat platform a request came from.
type Platform string

const (
	PlatformTwitch  Platform = "twitch"
	PlatformYouTube Platform = "youtube"
)

// Status is a request lifecycle state. completed and skipped are terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPlaying   Status = "playing"
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
)

// Song is a resolved (or best-guess) catalog candidate. Immutable once
// attached to a request.
type Song struct {
	Artist     string `json:"artist"`
	Title      string `json:"title"`
	Album      string `json:"album,omitempty"`
	CatalogURL string `json:"catalog_url,omitempty"`
}

// Request is a queued song request. Seq is a monotonic submission counter;
// priority insertion reorders the pending list, so Seq, not list position, is
// what "most recent" means.
type Request struct {
	ID            string    `json:"id"`
	Song          Song      `json:"song"`
	RequesterID   string    `json:"requester_id"`
	RequesterName string    `json:"requester_name"`
	Platform      Platform  `json:"platform"`
	SubmittedAt   time.Time `json:"submitted_at"`
	Status        Status    `json:"status"`
	Priority      bool      `json:"priority"`
	Seq           uint64    `json:"seq"`
}

// Admission errors returned by Submit.
var (
	ErrOnCooldown     = errors.New("requester is on cooldown")
	ErrTooManyPending = errors.New("requester has too many pending requests")
)

// Store persists queue snapshots. Saves are fire-and-forget: a failed save is
// logged and never rolls back in-memory state.
type Store interface {
	SaveSnapshot(ctx context.Context, name string, data []byte) error
	LoadSnapshot(ctx context.Context, name string) ([]byte, error)
}

const snapshotName = "queue"

// Config holds admission limits.
type Config struct {
	Cooldown   time.Duration // min time between accepted submissions per (platform, requester)
	MaxPending int           // max non-terminal requests per (platform, requester)
}

// Queue is the request queue engine. All methods are safe for concurrent use.
type Queue struct {
	mu        sync.Mutex
	cfg       Config
	store     Store
	pending   []*Request
	playing   *Request
	history   []*Request
	cooldowns map[string]time.Time
	seq       uint64
	now       func() time.Time
}

// New creates a queue engine. store may be nil (no persistence).
func New(cfg Config, store Store) *Queue {
	if cfg.Cooldown < 0 {
		cfg.Cooldown = 0
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = 1
	}
	return &Queue{
		cfg:       cfg,
		store:     store,
		cooldowns: make(map[string]time.Time),
		now:       time.Now,
	}
}

func cooldownKey(platform Platform, requesterID string) string {
	return string(platform) + ":" + requesterID
}

// CanSubmit reports whether a requester may submit now. When denied, reason is
// a short user-facing explanation (remaining cooldown or pending limit).
func (q *Queue) CanSubmit(requesterID string, platform Platform) (bool, string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	reason, err := q.canSubmitLocked(requesterID, platform)
	return err == nil, reason
}

func (q *Queue) canSubmitLocked(requesterID string, platform Platform) (string, error) {
	if last, ok := q.cooldowns[cooldownKey(platform, requesterID)]; ok && q.cfg.Cooldown > 0 {
		elapsed := q.now().Sub(last)
		if elapsed < q.cfg.Cooldown {
			remaining := int((q.cfg.Cooldown - elapsed).Round(time.Second).Seconds())
			if remaining < 1 {
				remaining = 1
			}
			return fmt.Sprintf("please wait %ds before requesting again", remaining), ErrOnCooldown
		}
	}
	count := 0
	for _, r := range q.pending {
		if r.Platform == platform && r.RequesterID == requesterID {
			count++
		}
	}
	if q.playing != nil && q.playing.Platform == platform && q.playing.RequesterID == requesterID {
		count++
	}
	if count >= q.cfg.MaxPending {
		return fmt.Sprintf("you already have %d request(s) in the queue", count), ErrTooManyPending
	}
	return "", nil
}

// Submit atomically re-checks admission, runs admit, and enqueues, all under
// the queue lock, so two near-simultaneous commands from the same requester
// cannot both pass the cooldown/limit check. admit (nil means no side effect)
// carries the token spend for a priority request: a failed admit leaves the
// queue untouched and its error is returned, and a successful admit is
// followed by the enqueue before the lock is released, so no reader can see
// admit's effect without the request in the queue. Returns the created
// request and its 1-based pending position.
func (q *Queue) Submit(song Song, requesterID, displayName string, platform Platform, priority bool, admit func() error) (Request, int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, err := q.canSubmitLocked(requesterID, platform); err != nil {
		return Request{}, 0, err
	}
	if admit != nil {
		if err := admit(); err != nil {
			return Request{}, 0, err
		}
	}
	req, pos := q.enqueueLocked(song, requesterID, displayName, platform, priority)
	return req, pos, nil
}

// Enqueue inserts a request without re-checking admission (admin path).
// Priority requests go to the back of the priority lane, ahead of every
// non-priority entry; everything else appends. Refreshes the requester's
// cooldown and persists. Returns the created request and its 1-based position.
func (q *Queue) Enqueue(song Song, requesterID, displayName string, platform Platform, priority bool) (Request, int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.enqueueLocked(song, requesterID, displayName, platform, priority)
}

func (q *Queue) enqueueLocked(song Song, requesterID, displayName string, platform Platform, priority bool) (Request, int) {
	q.seq++
	req := &Request{
		ID:            uuid.New().String(),
		Seq:           q.seq,
		Song:          song,
		RequesterID:   requesterID,
		RequesterName: displayName,
		Platform:      platform,
		SubmittedAt:   q.now().UTC(),
		Status:        StatusPending,
		Priority:      priority,
	}
	pos := len(q.pending)
	if priority {
		pos = 0
		for i, r := range q.pending {
			if r.Priority {
				pos = i + 1
			}
		}
	}
	q.pending = append(q.pending, nil)
	copy(q.pending[pos+1:], q.pending[pos:])
	q.pending[pos] = req
	q.cooldowns[cooldownKey(platform, requesterID)] = q.now()
	q.persistLocked()
	return *req, pos + 1
}

// PositionOf returns the 1-based pending position of a request, or 0 if it is
// not pending.
func (q *Queue) PositionOf(requestID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, r := range q.pending {
		if r.ID == requestID {
			return i + 1
		}
	}
	return 0
}

// IsDuplicate reports whether a pending entry already matches artist+title
// (case-insensitive exact match).
func (q *Queue) IsDuplicate(artist, title string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, r := range q.pending {
		if strings.EqualFold(r.Song.Artist, artist) && strings.EqualFold(r.Song.Title, title) {
			return true
		}
	}
	return false
}

// PeekNext returns the first pending entry without mutating anything.
func (q *Queue) PeekNext() (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return Request{}, false
	}
	return *q.pending[0], true
}

// PromoteNextToPlaying marks the first pending entry as playing. No-op when
// the queue is empty or something is already playing; this is the only way a
// playing entry is created.
func (q *Queue) PromoteNextToPlaying() (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.playing != nil || len(q.pending) == 0 {
		return Request{}, false
	}
	q.playing = q.pending[0]
	q.pending = q.pending[1:]
	q.playing.Status = StatusPlaying
	q.persistLocked()
	return *q.playing, true
}

// CompleteCurrentlyPlaying moves the playing entry to completed history.
func (q *Queue) CompleteCurrentlyPlaying() (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.playing == nil {
		return Request{}, false
	}
	done := q.playing
	q.playing = nil
	done.Status = StatusCompleted
	q.history = append(q.history, done)
	q.persistLocked()
	return *done, true
}

// Skip moves any non-terminal entry (pending or playing) to skipped history.
// Unknown ids are a no-op.
func (q *Queue) Skip(requestID string) (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.skipLocked(requestID)
}

func (q *Queue) skipLocked(requestID string) (Request, bool) {
	if q.playing != nil && q.playing.ID == requestID {
		skipped := q.playing
		q.playing = nil
		skipped.Status = StatusSkipped
		q.history = append(q.history, skipped)
		q.persistLocked()
		return *skipped, true
	}
	for i, r := range q.pending {
		if r.ID == requestID {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			r.Status = StatusSkipped
			q.history = append(q.history, r)
			q.persistLocked()
			return *r, true
		}
	}
	return Request{}, false
}

// ClearAll skips every pending entry and returns the count removed. The
// playing entry, if any, is left alone.
func (q *Queue) ClearAll() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.pending)
	for _, r := range q.pending {
		r.Status = StatusSkipped
		q.history = append(q.history, r)
	}
	q.pending = nil
	if n > 0 {
		q.persistLocked()
	}
	return n
}

// Reorder moves the pending entry at 1-based index from to index to. This is
// a manual moderator override and may place a non-priority entry ahead of
// priority entries on purpose. Out-of-range indices are a no-op.
func (q *Queue) Reorder(from, to int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	from--
	to--
	if from < 0 || from >= len(q.pending) || to < 0 || to >= len(q.pending) || from == to {
		return false
	}
	r := q.pending[from]
	q.pending = append(q.pending[:from], q.pending[from+1:]...)
	q.pending = append(q.pending, nil)
	copy(q.pending[to+1:], q.pending[to:])
	q.pending[to] = r
	q.persistLocked()
	return true
}

// RemoveLastRequestOf skips the most recently submitted pending entry for a
// display name on a platform (self-service removal). Recency is by submission
// sequence, not list position: a fresh priority request sits ahead of an older
// plain one but is still the one removed.
func (q *Queue) RemoveLastRequestOf(displayName string, platform Platform) (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	best := -1
	for i, r := range q.pending {
		if r.Platform == platform && strings.EqualFold(r.RequesterName, displayName) {
			if best == -1 || r.Seq > q.pending[best].Seq {
				best = i
			}
		}
	}
	if best == -1 {
		return Request{}, false
	}
	return q.skipLocked(q.pending[best].ID)
}

// RemovePendingAtIndex skips the pending entry at a 1-based index.
func (q *Queue) RemovePendingAtIndex(i int) (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i < 1 || i > len(q.pending) {
		return Request{}, false
	}
	return q.skipLocked(q.pending[i-1].ID)
}

// Pending returns a copy of the pending list in queue order.
func (q *Queue) Pending() []Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Request, len(q.pending))
	for i, r := range q.pending {
		out[i] = *r
	}
	return out
}

// NowPlaying returns the playing entry, if any.
func (q *Queue) NowPlaying() (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.playing == nil {
		return Request{}, false
	}
	return *q.playing, true
}

// History returns a copy of the terminal request history, oldest first.
func (q *Queue) History() []Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Request, len(q.history))
	for i, r := range q.history {
		out[i] = *r
	}
	return out
}
