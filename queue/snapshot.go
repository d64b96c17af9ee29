package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/onnwee/song-tender/telemetry"
)

// snapshot is the JSON shape persisted after each mutation and loaded at
// startup.
type snapshot struct {
	Pending []Request `json:"pending"`
	Playing *Request  `json:"playing,omitempty"`
	History []Request `json:"history"`
}

// persistLocked marshals the current state under the lock and writes it out
// on a separate goroutine. Persistence is best-effort: failures are logged
// and never roll back in-memory state.
func (q *Queue) persistLocked() {
	telemetry.SetQueueDepth(len(q.pending))
	if q.store == nil {
		return
	}
	snap := snapshot{
		Pending: make([]Request, len(q.pending)),
		History: make([]Request, len(q.history)),
	}
	for i, r := range q.pending {
		snap.Pending[i] = *r
	}
	for i, r := range q.history {
		snap.History[i] = *r
	}
	if q.playing != nil {
		p := *q.playing
		snap.Playing = &p
	}
	data, err := json.Marshal(snap)
	if err != nil {
		slog.Error("queue snapshot marshal failed", slog.Any("err", err))
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := q.store.SaveSnapshot(ctx, snapshotName, data); err != nil {
			slog.Warn("queue snapshot save failed", slog.Any("err", err))
		}
	}()
}

// Load restores the queue from the last persisted snapshot. Missing or
// malformed snapshots leave the queue empty.
func (q *Queue) Load(ctx context.Context) error {
	if q.store == nil {
		return nil
	}
	data, err := q.store.LoadSnapshot(ctx, snapshotName)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = make([]*Request, len(snap.Pending))
	for i := range snap.Pending {
		r := snap.Pending[i]
		q.pending[i] = &r
	}
	q.history = make([]*Request, len(snap.History))
	for i := range snap.History {
		r := snap.History[i]
		q.history[i] = &r
	}
	q.playing = snap.Playing
	// Resume the submission counter past every restored entry so new
	// requests always compare as newer.
	for _, r := range q.pending {
		if r.Seq > q.seq {
			q.seq = r.Seq
		}
	}
	for _, r := range q.history {
		if r.Seq > q.seq {
			q.seq = r.Seq
		}
	}
	if q.playing != nil && q.playing.Seq > q.seq {
		q.seq = q.playing.Seq
	}
	telemetry.SetQueueDepth(len(q.pending))
	slog.Info("queue snapshot loaded", slog.Int("pending", len(q.pending)), slog.Int("history", len(q.history)))
	return nil
}
