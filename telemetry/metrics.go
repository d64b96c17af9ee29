// Package telemetry provides Prometheus metrics, correlation-id aware logging
// helpers, and OpenTelemetry tracing setup.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	RequestsAccepted prometheus.Counter
	RequestsDenied   prometheus.Counter
	CatalogSearches  prometheus.Counter
	CatalogCacheHits prometheus.Counter
	TokensAwarded    prometheus.Counter
	TokensSpent      prometheus.Counter

	// Histograms (seconds)
	CommandDuration prometheus.Observer
	SearchDuration  prometheus.Observer

	// Gauges
	QueueDepthGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		RequestsAccepted = promauto.NewCounter(prometheus.CounterOpts{Name: "songreq_requests_accepted_total", Help: "Song requests accepted into the queue"})
		RequestsDenied = promauto.NewCounter(prometheus.CounterOpts{Name: "songreq_requests_denied_total", Help: "Song requests denied (cooldown, limit, duplicate, tokens)"})
		CatalogSearches = promauto.NewCounter(prometheus.CounterOpts{Name: "songreq_catalog_searches_total", Help: "Catalog searches issued (cache misses)"})
		CatalogCacheHits = promauto.NewCounter(prometheus.CounterOpts{Name: "songreq_catalog_cache_hits_total", Help: "Catalog searches served from cache"})
		TokensAwarded = promauto.NewCounter(prometheus.CounterOpts{Name: "songreq_tokens_awarded_total", Help: "Tokens awarded across all accounts"})
		TokensSpent = promauto.NewCounter(prometheus.CounterOpts{Name: "songreq_tokens_spent_total", Help: "Tokens spent on priority requests"})
		CommandDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "songreq_command_duration_seconds", Help: "Chat command handling duration seconds", Buckets: prometheus.DefBuckets})
		SearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "songreq_search_duration_seconds", Help: "Catalog search duration seconds", Buckets: prometheus.DefBuckets})
		QueueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "songreq_queue_depth", Help: "Current number of pending requests"})
	})
}

// SetQueueDepth records the current pending queue length.
func SetQueueDepth(n int) {
	if QueueDepthGauge != nil {
		QueueDepthGauge.Set(float64(n))
	}
}

func IncRequestAccepted() { inc(RequestsAccepted) }
func IncRequestDenied()   { inc(RequestsDenied) }
func IncCatalogSearch()   { inc(CatalogSearches) }
func IncCatalogCacheHit() { inc(CatalogCacheHits) }

// AddTokensAwarded records earned tokens.
func AddTokensAwarded(n int) {
	if TokensAwarded != nil && n > 0 {
		TokensAwarded.Add(float64(n))
	}
}

// AddTokensSpent records spent tokens.
func AddTokensSpent(n int) {
	if TokensSpent != nil && n > 0 {
		TokensSpent.Add(float64(n))
	}
}

func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// TimeFunc measures the duration of fn and records it in obs if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a context carrying the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with a corr attribute when one is present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
