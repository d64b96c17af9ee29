package router

import (
	"log/slog"

	"github.com/onnwee/song-tender/queue"
	"github.com/onnwee/song-tender/telemetry"
)

// PlatformEvents is implemented by chat transports that can report
// monetization events. The router wires these into ledger awards once at
// composition time.
type PlatformEvents interface {
	OnSubscription(func(platform queue.Platform, userID, displayName string, tier int))
	OnBits(func(platform queue.Platform, userID, displayName string, bits int))
	OnMembership(func(platform queue.Platform, userID, displayName string))
	OnSuperChat(func(platform queue.Platform, userID, displayName string, amount float64))
}

// WireEvents connects a platform event source to the ledger earning rules.
func (r *Router) WireEvents(src PlatformEvents) {
	src.OnSubscription(func(platform queue.Platform, userID, displayName string, tier int) {
		before := r.ledger.GetBalance(platform, userID)
		acct := r.ledger.AwardForSubscription(platform, userID, displayName, tier)
		telemetry.AddTokensAwarded(acct.Tokens - before)
		slog.Info("tokens for subscription", slog.String("user", displayName), slog.Int("tier", tier), slog.Int("balance", acct.Tokens))
	})
	src.OnBits(func(platform queue.Platform, userID, displayName string, bits int) {
		before := r.ledger.GetBalance(platform, userID)
		acct := r.ledger.AwardForBits(platform, userID, displayName, bits)
		telemetry.AddTokensAwarded(acct.Tokens - before)
		slog.Info("tokens for bits", slog.String("user", displayName), slog.Int("bits", bits), slog.Int("balance", acct.Tokens))
	})
	src.OnMembership(func(platform queue.Platform, userID, displayName string) {
		before := r.ledger.GetBalance(platform, userID)
		acct := r.ledger.AwardForMembership(platform, userID, displayName)
		telemetry.AddTokensAwarded(acct.Tokens - before)
		slog.Info("tokens for membership", slog.String("user", displayName), slog.Int("balance", acct.Tokens))
	})
	src.OnSuperChat(func(platform queue.Platform, userID, displayName string, amount float64) {
		before := r.ledger.GetBalance(platform, userID)
		acct := r.ledger.AwardForSuperChat(platform, userID, displayName, amount)
		telemetry.AddTokensAwarded(acct.Tokens - before)
		slog.Info("tokens for super chat", slog.String("user", displayName), slog.Float64("amount", amount), slog.Int("balance", acct.Tokens))
	})
}
