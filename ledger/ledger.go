// Package ledger owns VIP token balances: earning rules for platform support
// events, atomic spends for priority requests, capped transaction history,
// and placeholder-account migration for admin grants made before a viewer's
// platform id is known.
package ledger

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/onnwee/song-tender/queue"
)

// Kind classifies a token transaction.
type Kind string

const (
	KindSubscription Kind = "subscription"
	KindBits         Kind = "bits"
	KindSuperChat    Kind = "superchat"
	KindManual       Kind = "manual"
	KindSpent        Kind = "spent"
)

// Transaction is one ledger entry. Amount is negative for spends.
type Transaction struct {
	Timestamp   time.Time `json:"timestamp"`
	Kind        Kind      `json:"kind"`
	Amount      int       `json:"amount"`
	Description string    `json:"description,omitempty"`
}

// Account is a viewer's token balance and history. History keeps the most
// recent maxHistory entries, oldest dropped first.
type Account struct {
	Platform    queue.Platform `json:"platform"`
	UserID      string         `json:"user_id"`
	DisplayName string         `json:"display_name"`
	Tokens      int            `json:"tokens"`
	TotalEarned int            `json:"total_earned"`
	History     []Transaction  `json:"history"`
	LastUpdated time.Time      `json:"last_updated"`
}

const maxHistory = 100

var (
	ErrNoAccount           = errors.New("no account for user")
	ErrInsufficientBalance = errors.New("insufficient token balance")
)

// Store persists ledger snapshots; same fire-and-forget contract as the queue.
type Store interface {
	SaveSnapshot(ctx context.Context, name string, data []byte) error
	LoadSnapshot(ctx context.Context, name string) ([]byte, error)
}

const snapshotName = "ledger"

// Ledger holds all accounts. All methods are safe for concurrent use; a
// single mutex makes each Award/Spend and the placeholder migration atomic
// with respect to concurrent lookups.
type Ledger struct {
	mu       sync.Mutex
	accounts map[string]*Account
	rates    Rates
	store    Store
	now      func() time.Time
}

// New creates a ledger with the given earning rates. store may be nil.
func New(rates Rates, store Store) *Ledger {
	return &Ledger{
		accounts: make(map[string]*Account),
		rates:    rates.withDefaults(),
		store:    store,
		now:      time.Now,
	}
}

func accountKey(platform queue.Platform, userID string) string {
	return string(platform) + ":" + userID
}

// placeholderKey addresses an account created before the viewer's platform id
// was known. It is keyed by lowercased display name.
func placeholderKey(platform queue.Platform, displayName string) string {
	return string(platform) + ":name:" + strings.ToLower(displayName)
}

// ensureLocked implements get-or-create with placeholder migration: the first
// time a real platform id is seen for a display name that has a placeholder
// account on the same platform, the placeholder's balance and history move
// under the real key and the placeholder key is deleted in the same critical
// section.
func (l *Ledger) ensureLocked(platform queue.Platform, userID, displayName string) *Account {
	key := accountKey(platform, userID)
	if acct, ok := l.accounts[key]; ok {
		if displayName != "" {
			acct.DisplayName = displayName
		}
		return acct
	}
	if displayName != "" {
		phKey := placeholderKey(platform, displayName)
		if ph, ok := l.accounts[phKey]; ok {
			delete(l.accounts, phKey)
			ph.UserID = userID
			ph.DisplayName = displayName
			ph.LastUpdated = l.now().UTC()
			l.accounts[key] = ph
			return ph
		}
	}
	acct := &Account{
		Platform:    platform,
		UserID:      userID,
		DisplayName: displayName,
		LastUpdated: l.now().UTC(),
	}
	l.accounts[key] = acct
	return acct
}

// EnsureAccount gets or creates an account, refreshing its display name and
// migrating any matching placeholder account.
func (l *Ledger) EnsureAccount(platform queue.Platform, userID, displayName string) Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct := l.ensureLocked(platform, userID, displayName)
	l.persistLocked()
	return *acct
}

// GetBalance returns the token balance, 0 when no account exists.
func (l *Ledger) GetBalance(platform queue.Platform, userID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if acct, ok := l.accounts[accountKey(platform, userID)]; ok {
		return acct.Tokens
	}
	return 0
}

func (l *Ledger) appendTxLocked(acct *Account, kind Kind, amount int, description string) {
	acct.History = append(acct.History, Transaction{
		Timestamp:   l.now().UTC(),
		Kind:        kind,
		Amount:      amount,
		Description: description,
	})
	if len(acct.History) > maxHistory {
		acct.History = acct.History[len(acct.History)-maxHistory:]
	}
	acct.LastUpdated = l.now().UTC()
}

// Award credits tokens and records the transaction. amount <= 0 is a no-op.
func (l *Ledger) Award(platform queue.Platform, userID, displayName string, amount int, kind Kind, description string) Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct := l.ensureLocked(platform, userID, displayName)
	if amount > 0 {
		acct.Tokens += amount
		acct.TotalEarned += amount
		l.appendTxLocked(acct, kind, amount, description)
		l.persistLocked()
	}
	return *acct
}

// Spend debits tokens atomically. Returns the remaining balance, or
// ErrNoAccount / ErrInsufficientBalance without touching the account.
func (l *Ledger) Spend(platform queue.Platform, userID string, amount int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct, ok := l.accounts[accountKey(platform, userID)]
	if !ok {
		return 0, ErrNoAccount
	}
	if amount <= 0 {
		return acct.Tokens, nil
	}
	if acct.Tokens < amount {
		return acct.Tokens, ErrInsufficientBalance
	}
	acct.Tokens -= amount
	l.appendTxLocked(acct, KindSpent, -amount, "priority request")
	l.persistLocked()
	return acct.Tokens, nil
}

// findByUsernameLocked resolves an account by display name (case-insensitive)
// on a platform, creating a placeholder-keyed account when none exists.
func (l *Ledger) findByUsernameLocked(platform queue.Platform, displayName string) *Account {
	for _, acct := range l.accounts {
		if acct.Platform == platform && strings.EqualFold(acct.DisplayName, displayName) {
			return acct
		}
	}
	acct := &Account{
		Platform:    platform,
		DisplayName: displayName,
		LastUpdated: l.now().UTC(),
	}
	l.accounts[placeholderKey(platform, displayName)] = acct
	return acct
}

// AwardByUsername credits tokens addressed by display name (admin path that
// lacks a platform id).
func (l *Ledger) AwardByUsername(platform queue.Platform, displayName string, amount int, description string) Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct := l.findByUsernameLocked(platform, displayName)
	if amount > 0 {
		acct.Tokens += amount
		acct.TotalEarned += amount
		l.appendTxLocked(acct, KindManual, amount, description)
		l.persistLocked()
	}
	return *acct
}

// SetBalanceByUsername overwrites a balance addressed by display name. The
// delta is recorded as a manual transaction; TotalEarned only grows.
func (l *Ledger) SetBalanceByUsername(platform queue.Platform, displayName string, tokens int) Account {
	if tokens < 0 {
		tokens = 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	acct := l.findByUsernameLocked(platform, displayName)
	delta := tokens - acct.Tokens
	acct.Tokens = tokens
	if delta > 0 {
		acct.TotalEarned += delta
	}
	if delta != 0 {
		l.appendTxLocked(acct, KindManual, delta, "balance set by admin")
		l.persistLocked()
	}
	return *acct
}

// Accounts returns a copy of every account.
func (l *Ledger) Accounts() []Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Account, 0, len(l.accounts))
	for _, acct := range l.accounts {
		out = append(out, *acct)
	}
	return out
}

// Search returns accounts whose display name contains the query
// (case-insensitive).
func (l *Ledger) Search(query string) []Account {
	q := strings.ToLower(query)
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Account
	for _, acct := range l.accounts {
		if strings.Contains(strings.ToLower(acct.DisplayName), q) {
			out = append(out, *acct)
		}
	}
	return out
}
