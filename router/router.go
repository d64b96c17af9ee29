// Package router dispatches chat commands: it parses request text, resolves
// songs through the catalog, gates handlers by permission tier, spends tokens
// for priority requests, and mutates the queue and ledger.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/song-tender/catalog"
	"github.com/onnwee/song-tender/ledger"
	"github.com/onnwee/song-tender/queue"
	"github.com/onnwee/song-tender/telemetry"
)

// Tier is a caller's permission level.
type Tier int

const (
	TierViewer Tier = iota
	TierModerator
	TierBroadcaster
)

// Caller identifies who issued a command.
type Caller struct {
	Platform    queue.Platform
	UserID      string
	DisplayName string
	Tier        Tier
}

// ReplyFunc sends a chat reply back on the caller's transport.
type ReplyFunc func(text string)

// Resolver is the catalog search dependency.
type Resolver interface {
	Search(ctx context.Context, query string) catalog.Result
}

type handlerFunc func(ctx context.Context, r *Router, args string, caller Caller, reply ReplyFunc)

type command struct {
	tier    Tier
	handler handlerFunc
}

// Router routes chat commands to handlers. The dispatch table is fixed at
// construction.
type Router struct {
	queue    *queue.Queue
	ledger   *ledger.Ledger
	resolver Resolver

	commands      map[string]command
	searchTimeout time.Duration
	priorityCost  int
}

// Config tunes router behavior.
type Config struct {
	SearchTimeout time.Duration // bound on catalog resolution per request
	PriorityCost  int           // tokens per priority request
}

// New builds the router and its dispatch table, aliases included.
func New(q *queue.Queue, l *ledger.Ledger, resolver Resolver, cfg Config) *Router {
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = 10 * time.Second
	}
	if cfg.PriorityCost <= 0 {
		cfg.PriorityCost = 1
	}
	r := &Router{
		queue:         q,
		ledger:        l,
		resolver:      resolver,
		commands:      make(map[string]command),
		searchTimeout: cfg.SearchTimeout,
		priorityCost:  cfg.PriorityCost,
	}
	r.register(TierViewer, handleRequest, "sr", "songrequest", "request")
	r.register(TierViewer, handlePriorityRequest, "psr", "prioritysongrequest", "priorityrequest")
	r.register(TierViewer, handlePosition, "queue", "position", "mysong")
	r.register(TierViewer, handleRemoveLast, "wrongsong", "oops", "removesong")
	r.register(TierViewer, handleBalance, "tokens", "balance")
	r.register(TierModerator, handleNext, "next")
	r.register(TierModerator, handlePlayed, "played", "done")
	r.register(TierModerator, handleSkip, "skip")
	r.register(TierBroadcaster, handleClear, "clearqueue", "clear")
	r.register(TierBroadcaster, handleGiveTokens, "givetokens")
	r.register(TierBroadcaster, handleSetTokens, "settokens")
	return r
}

func (r *Router) register(tier Tier, h handlerFunc, keywords ...string) {
	for _, kw := range keywords {
		r.commands[kw] = command{tier: tier, handler: h}
	}
}

// Dispatch handles one raw chat message. Messages that are not commands, and
// unknown commands, are silently ignored. A panic inside a handler is caught
// here and converted to a generic apology so one bad message cannot take the
// command loop down.
func (r *Router) Dispatch(ctx context.Context, message string, caller Caller, reply ReplyFunc) {
	message = strings.TrimSpace(message)
	if !strings.HasPrefix(message, "!") {
		return
	}
	keyword, args, _ := strings.Cut(message[1:], " ")
	keyword = strings.ToLower(keyword)
	cmd, ok := r.commands[keyword]
	if !ok {
		return
	}
	if caller.Tier < cmd.tier {
		// Viewers probing elevated commands are ignored; a mod hitting a
		// broadcaster-only command gets told.
		if caller.Tier >= TierModerator {
			reply(fmt.Sprintf("@%s only the broadcaster can do that", caller.DisplayName))
		}
		return
	}

	ctx, span := telemetry.StartSpan(ctx, "router", "command "+keyword)
	defer span.End()
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("command handler panicked",
				slog.String("command", keyword),
				slog.String("user", caller.DisplayName),
				slog.Any("panic", rec))
			reply(fmt.Sprintf("@%s sorry, something went wrong", caller.DisplayName))
		}
	}()
	telemetry.TimeFunc(telemetry.CommandDuration, func() {
		cmd.handler(ctx, r, strings.TrimSpace(args), caller, reply)
	})
}

func handleRequest(ctx context.Context, r *Router, args string, caller Caller, reply ReplyFunc) {
	r.admitRequest(ctx, args, caller, reply, false)
}

func handlePriorityRequest(ctx context.Context, r *Router, args string, caller Caller, reply ReplyFunc) {
	r.admitRequest(ctx, args, caller, reply, true)
}

// admitRequest runs the full admission pipeline: cooldown/limit check, text
// parsing, catalog resolution, scoring, duplicate check, then enqueue. For a
// priority request the token spend runs as the submit's admit callback, under
// the queue's admission lock, so the debit and the enqueue commit together:
// no concurrent reader can see the tokens gone without the request queued,
// and a denied admission never spends.
func (r *Router) admitRequest(ctx context.Context, text string, caller Caller, reply ReplyFunc, priority bool) {
	if text == "" {
		reply(fmt.Sprintf("@%s usage: !sr <artist> - <title>", caller.DisplayName))
		return
	}
	if ok, reason := r.queue.CanSubmit(caller.UserID, caller.Platform); !ok {
		telemetry.IncRequestDenied()
		reply(fmt.Sprintf("@%s %s", caller.DisplayName, reason))
		return
	}

	parsed := ParseRequestText(text)
	song := r.resolve(ctx, text, parsed)

	if r.queue.IsDuplicate(song.Artist, song.Title) {
		telemetry.IncRequestDenied()
		reply(fmt.Sprintf("@%s that song is already in the queue", caller.DisplayName))
		return
	}

	var balance int
	var spend func() error
	if priority {
		spend = func() error {
			var err error
			balance, err = r.ledger.Spend(caller.Platform, caller.UserID, r.priorityCost)
			return err
		}
	}
	req, pos, err := r.queue.Submit(song, caller.UserID, caller.DisplayName, caller.Platform, priority, spend)
	if err != nil {
		telemetry.IncRequestDenied()
		switch {
		case errors.Is(err, ledger.ErrNoAccount):
			reply(fmt.Sprintf("@%s you don't have any tokens yet", caller.DisplayName))
		case errors.Is(err, ledger.ErrInsufficientBalance):
			reply(fmt.Sprintf("@%s not enough tokens (you have %d, need %d)", caller.DisplayName, balance, r.priorityCost))
		case errors.Is(err, queue.ErrOnCooldown):
			reply(fmt.Sprintf("@%s you're on cooldown", caller.DisplayName))
		case errors.Is(err, queue.ErrTooManyPending):
			reply(fmt.Sprintf("@%s you already have a request in the queue", caller.DisplayName))
		default:
			reply(fmt.Sprintf("@%s sorry, something went wrong", caller.DisplayName))
		}
		return
	}
	if priority {
		telemetry.AddTokensSpent(r.priorityCost)
	}
	telemetry.IncRequestAccepted()
	label := ""
	if priority {
		label = " (priority)"
	}
	reply(fmt.Sprintf("@%s queued %s - %s%s at position %d", caller.DisplayName, req.Song.Artist, req.Song.Title, label, pos))
}

// resolve turns request text into a song via the catalog: the raw text first,
// then "artist title", then title only, keeping the first non-empty result
// and scoring its candidates. When the catalog yields nothing (or times out)
// the best-guess text is used as an unvalidated candidate so chat requests
// are never dropped for catalog availability alone.
func (r *Router) resolve(ctx context.Context, text string, parsed ParsedRequest) queue.Song {
	sctx, cancel := context.WithTimeout(ctx, r.searchTimeout)
	defer cancel()

	queries := []string{text}
	if parsed.Targeted {
		queries = append(queries, parsed.Artist+" "+parsed.Title, parsed.Title)
	}
	var res catalog.Result
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if res = r.resolver.Search(sctx, q); res.Found {
			break
		}
		if sctx.Err() != nil {
			break
		}
	}
	if res.Found {
		if best, ok := catalog.BestMatch(parsed.Artist, parsed.Title, res.Candidates); ok {
			return queue.Song{Artist: best.Artist, Title: best.Title, Album: best.Album, CatalogURL: best.URL}
		}
	}
	if parsed.Targeted {
		return queue.Song{Artist: parsed.Artist, Title: parsed.Title}
	}
	return queue.Song{Title: text}
}

func handlePosition(ctx context.Context, r *Router, _ string, caller Caller, reply ReplyFunc) {
	pending := r.queue.Pending()
	for i, req := range pending {
		if req.Platform == caller.Platform && req.RequesterID == caller.UserID {
			reply(fmt.Sprintf("@%s your request %s - %s is at position %d of %d", caller.DisplayName, req.Song.Artist, req.Song.Title, i+1, len(pending)))
			return
		}
	}
	reply(fmt.Sprintf("@%s you have no requests queued (%d pending)", caller.DisplayName, len(pending)))
}

func handleRemoveLast(ctx context.Context, r *Router, _ string, caller Caller, reply ReplyFunc) {
	if req, ok := r.queue.RemoveLastRequestOf(caller.DisplayName, caller.Platform); ok {
		reply(fmt.Sprintf("@%s removed %s - %s", caller.DisplayName, req.Song.Artist, req.Song.Title))
		return
	}
	reply(fmt.Sprintf("@%s you have no requests to remove", caller.DisplayName))
}

func handleBalance(ctx context.Context, r *Router, _ string, caller Caller, reply ReplyFunc) {
	balance := r.ledger.GetBalance(caller.Platform, caller.UserID)
	reply(fmt.Sprintf("@%s you have %d token(s)", caller.DisplayName, balance))
}

func handleNext(ctx context.Context, r *Router, _ string, caller Caller, reply ReplyFunc) {
	if req, ok := r.queue.PromoteNextToPlaying(); ok {
		reply(fmt.Sprintf("now playing: %s - %s (requested by %s)", req.Song.Artist, req.Song.Title, req.RequesterName))
		return
	}
	reply("nothing to play: queue is empty or a song is already playing")
}

func handlePlayed(ctx context.Context, r *Router, _ string, caller Caller, reply ReplyFunc) {
	if req, ok := r.queue.CompleteCurrentlyPlaying(); ok {
		reply(fmt.Sprintf("marked %s - %s as played", req.Song.Artist, req.Song.Title))
		return
	}
	reply("nothing is playing")
}

func handleSkip(ctx context.Context, r *Router, _ string, caller Caller, reply ReplyFunc) {
	if playing, ok := r.queue.NowPlaying(); ok {
		if req, ok := r.queue.Skip(playing.ID); ok {
			reply(fmt.Sprintf("skipped %s - %s", req.Song.Artist, req.Song.Title))
			return
		}
	}
	if req, ok := r.queue.RemovePendingAtIndex(1); ok {
		reply(fmt.Sprintf("skipped %s - %s", req.Song.Artist, req.Song.Title))
		return
	}
	reply("nothing to skip")
}

func handleClear(ctx context.Context, r *Router, _ string, caller Caller, reply ReplyFunc) {
	n := r.queue.ClearAll()
	reply(fmt.Sprintf("cleared %d request(s) from the queue", n))
}

func handleGiveTokens(ctx context.Context, r *Router, args string, caller Caller, reply ReplyFunc) {
	name, amountStr, ok := strings.Cut(args, " ")
	if !ok {
		reply("usage: !givetokens <user> <amount>")
		return
	}
	amount, err := strconv.Atoi(strings.TrimSpace(amountStr))
	if err != nil || amount <= 0 {
		reply("usage: !givetokens <user> <amount>")
		return
	}
	name = strings.TrimPrefix(strings.TrimSpace(name), "@")
	acct := r.ledger.AwardByUsername(caller.Platform, name, amount, "granted by "+caller.DisplayName)
	telemetry.AddTokensAwarded(amount)
	reply(fmt.Sprintf("%s now has %d token(s)", acct.DisplayName, acct.Tokens))
}

func handleSetTokens(ctx context.Context, r *Router, args string, caller Caller, reply ReplyFunc) {
	name, amountStr, ok := strings.Cut(args, " ")
	if !ok {
		reply("usage: !settokens <user> <amount>")
		return
	}
	amount, err := strconv.Atoi(strings.TrimSpace(amountStr))
	if err != nil || amount < 0 {
		reply("usage: !settokens <user> <amount>")
		return
	}
	name = strings.TrimPrefix(strings.TrimSpace(name), "@")
	acct := r.ledger.SetBalanceByUsername(caller.Platform, name, amount)
	reply(fmt.Sprintf("%s now has %d token(s)", acct.DisplayName, acct.Tokens))
}

// DisplayState is a read-only snapshot for the overlay page.
type DisplayState struct {
	Pending    []queue.Request `json:"pending"`
	NowPlaying *queue.Request  `json:"now_playing,omitempty"`
}

// GetDisplayState returns the pending list and now-playing entry.
func (r *Router) GetDisplayState() DisplayState {
	state := DisplayState{Pending: r.queue.Pending()}
	if playing, ok := r.queue.NowPlaying(); ok {
		state.NowPlaying = &playing
	}
	return state
}
