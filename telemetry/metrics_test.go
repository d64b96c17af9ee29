package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestInitIdempotent(t *testing.T) {
	Init()
	Init() // second call must not re-register collectors
	if RequestsAccepted == nil || QueueDepthGauge == nil {
		t.Fatal("metrics not initialized")
	}
	// Helpers must tolerate being called; values are scraped, not asserted.
	IncRequestAccepted()
	IncRequestDenied()
	IncCatalogSearch()
	IncCatalogCacheHit()
	AddTokensAwarded(3)
	AddTokensAwarded(-1)
	AddTokensSpent(2)
	SetQueueDepth(4)
	TimeFunc(CommandDuration, func() {})
	TimeFunc(SearchDuration, func() {})
}

func TestTimeFunc(t *testing.T) {
	ran := false
	d := TimeFunc(nil, func() {
		ran = true
		time.Sleep(5 * time.Millisecond)
	})
	if !ran {
		t.Fatal("fn not invoked")
	}
	if d < 5*time.Millisecond {
		t.Errorf("duration = %v, want >= 5ms", d)
	}
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Errorf("empty context correlation = %q", got)
	}
	ctx = WithCorrelation(ctx, "abc-123")
	if got := GetCorrelation(ctx); got != "abc-123" {
		t.Errorf("correlation = %q", got)
	}
	if LoggerWithCorr(ctx) == nil {
		t.Error("LoggerWithCorr returned nil")
	}
}
