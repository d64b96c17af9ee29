package ledger

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// snapshot is the JSON shape persisted after each mutation: every account
// plus the configured rates.
type snapshot struct {
	Accounts map[string]Account `json:"accounts"`
	Rates    Rates              `json:"rates"`
}

// persistLocked writes the ledger out on a separate goroutine. Best-effort:
// failures are logged, in-memory state is authoritative.
func (l *Ledger) persistLocked() {
	if l.store == nil {
		return
	}
	snap := snapshot{Accounts: make(map[string]Account, len(l.accounts)), Rates: l.rates}
	for key, acct := range l.accounts {
		snap.Accounts[key] = *acct
	}
	data, err := json.Marshal(snap)
	if err != nil {
		slog.Error("ledger snapshot marshal failed", slog.Any("err", err))
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.store.SaveSnapshot(ctx, snapshotName, data); err != nil {
			slog.Warn("ledger snapshot save failed", slog.Any("err", err))
		}
	}()
}

// Load restores accounts and rates from the last persisted snapshot.
func (l *Ledger) Load(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	data, err := l.store.LoadSnapshot(ctx, snapshotName)
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
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts = make(map[string]*Account, len(snap.Accounts))
	for key := range snap.Accounts {
		acct := snap.Accounts[key]
		l.accounts[key] = &acct
	}
	l.rates = snap.Rates.withDefaults()
	slog.Info("ledger snapshot loaded", slog.Int("accounts", len(l.accounts)))
	return nil
}
