// Package oauth provides generic token refresh scheduling for providers whose
// tokens are persisted in the oauth_tokens table. It performs jittered checks
// and refreshes when expiry falls within a configured window.
package oauth

import (
	"context"
	"database/sql"
	"log/slog"
	"math/rand"
	"strings"
	"time"
)

// RefreshFunc performs a provider-specific refresh and returns
// (access, refresh, expiry, scope).
type RefreshFunc func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error)

// StartRefresher launches a goroutine that periodically checks a provider's
// token row and refreshes it when its remaining lifetime drops inside window.
func StartRefresher(ctx context.Context, db *sql.DB, provider string, interval, window time.Duration, fn RefreshFunc) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	go func() {
		// Jitter the first check so multiple instances don't stampede.
		//nolint:gosec // G404: scheduling jitter, not security
		initial := time.Duration(rand.Int63n(int64(interval / 2)))
		select {
		case <-ctx.Done():
			return
		case <-time.After(initial):
		}
		for {
			//nolint:gosec // G404: scheduling jitter, not security
			jitter := time.Duration(rand.Int63n(int64(interval/5)*2) - int64(interval/5))
			sleep := interval + jitter
			if sleep < interval/2 {
				sleep = interval / 2
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(sleep):
			}
			var at, rt, scope string
			var exp time.Time
			row := db.QueryRowContext(ctx, `SELECT access_token, refresh_token, expires_at, scope FROM oauth_tokens WHERE provider=$1 LIMIT 1`, provider)
			if err := row.Scan(&at, &rt, &exp, &scope); err != nil {
				continue
			}
			if rt == "" || time.Until(exp) > window {
				continue
			}
			rctx, cancel := context.WithTimeout(ctx, 15*time.Second)
			newAT, newRT, newExp, newScope, err := fn(rctx, rt)
			cancel()
			if err != nil {
				slog.Warn("token refresh failed", slog.String("provider", provider), slog.Any("err", err))
				continue
			}
			if newRT == "" {
				newRT = rt
			}
			if newScope == "" {
				newScope = scope
			}
			_, err = db.ExecContext(ctx, `UPDATE oauth_tokens SET access_token=$1, refresh_token=$2, expires_at=$3, scope=$4, updated_at=NOW() WHERE provider=$5`,
				newAT, newRT, newExp, strings.TrimSpace(newScope), provider)
			if err != nil {
				slog.Warn("token persist failed", slog.String("provider", provider), slog.Any("err", err))
				continue
			}
			slog.Info("token refreshed", slog.String("provider", provider))
		}
	}()
}
