package ledger

import (
	"math"

	"github.com/onnwee/song-tender/queue"
)

// Rates maps platform support events to token awards. All fields are
// runtime-configurable through SetRates.
type Rates struct {
	SubTier1 int `json:"sub_tier1"`
	SubTier2 int `json:"sub_tier2"`
	SubTier3 int `json:"sub_tier3"`

	BitsThreshold    int `json:"bits_threshold"`     // cheer size that earns TokensPerBits
	TokensPerBits    int `json:"tokens_per_bits"`    // tokens per full BitsThreshold
	Membership       int `json:"membership"`         // tokens per YouTube membership
	DollarThreshold  int `json:"dollar_threshold"`   // superchat major units per TokensPerDollars
	TokensPerDollars int `json:"tokens_per_dollars"` // tokens per full DollarThreshold
}

// DefaultRates mirrors the out-of-the-box earning scheme.
func DefaultRates() Rates {
	return Rates{
		SubTier1:         1,
		SubTier2:         2,
		SubTier3:         3,
		BitsThreshold:    500,
		TokensPerBits:    1,
		Membership:       1,
		DollarThreshold:  5,
		TokensPerDollars: 1,
	}
}

func (r Rates) withDefaults() Rates {
	d := DefaultRates()
	if r.BitsThreshold <= 0 {
		r.BitsThreshold = d.BitsThreshold
	}
	if r.DollarThreshold <= 0 {
		r.DollarThreshold = d.DollarThreshold
	}
	return r
}

// GetRates returns the current earning rates.
func (l *Ledger) GetRates() Rates {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rates
}

// SetRates replaces the earning rates.
func (l *Ledger) SetRates(r Rates) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rates = r.withDefaults()
	l.persistLocked()
}

// AwardForSubscription awards the fixed token count for a sub tier (1-3).
func (l *Ledger) AwardForSubscription(platform queue.Platform, userID, displayName string, tier int) Account {
	rates := l.GetRates()
	tokens := rates.SubTier1
	switch tier {
	case 2:
		tokens = rates.SubTier2
	case 3:
		tokens = rates.SubTier3
	}
	return l.Award(platform, userID, displayName, tokens, KindSubscription, "subscription")
}

// AwardForBits awards floor(bits/threshold)*rate tokens; below-threshold
// cheers earn nothing.
func (l *Ledger) AwardForBits(platform queue.Platform, userID, displayName string, bits int) Account {
	rates := l.GetRates()
	if bits < rates.BitsThreshold {
		return l.EnsureAccount(platform, userID, displayName)
	}
	tokens := (bits / rates.BitsThreshold) * rates.TokensPerBits
	return l.Award(platform, userID, displayName, tokens, KindBits, "bits cheer")
}

// AwardForMembership awards the fixed membership token count.
func (l *Ledger) AwardForMembership(platform queue.Platform, userID, displayName string) Account {
	rates := l.GetRates()
	return l.Award(platform, userID, displayName, rates.Membership, KindSubscription, "membership")
}

// AwardForSuperChat awards floor(amount/threshold)*rate tokens for a monetary
// super chat, where amount is in major currency units.
func (l *Ledger) AwardForSuperChat(platform queue.Platform, userID, displayName string, amount float64) Account {
	rates := l.GetRates()
	if amount < float64(rates.DollarThreshold) {
		return l.EnsureAccount(platform, userID, displayName)
	}
	tokens := int(math.Floor(amount/float64(rates.DollarThreshold))) * rates.TokensPerDollars
	return l.Award(platform, userID, displayName, tokens, KindSuperChat, "super chat")
}
