package server

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/song-tender/catalog"
	"github.com/onnwee/song-tender/ledger"
	"github.com/onnwee/song-tender/queue"
	"github.com/onnwee/song-tender/router"
	"github.com/onnwee/song-tender/telemetry"
)

// NewMux returns the HTTP handler with all routes. The context bounds the
// rate limiter cleanup goroutine.
func NewMux(ctx context.Context, db *sql.DB, q *queue.Queue, l *ledger.Ledger, r *router.Router, c *catalog.Client) http.Handler {
	authCfg := loadAuthConfig()
	rateLimiter := newIPRateLimiter(ctx, loadRateLimiterConfig())
	corsCfg := loadCORSConfig()

	handlers := NewHandlers(db, q, l, r, c)

	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", handlers.HandleHealthz)
	mux.HandleFunc("/readyz", handlers.HandleReadyz)
	mux.HandleFunc("/status", handlers.HandleStatus)

	// Overlay endpoints
	mux.HandleFunc("/queue", handlers.HandleQueue)
	mux.HandleFunc("/queue/history", handlers.HandleQueueHistory)

	// Admin endpoints
	mux.HandleFunc("/admin/queue/next", handlers.HandleAdminQueueNext)
	mux.HandleFunc("/admin/queue/played", handlers.HandleAdminQueuePlayed)
	mux.HandleFunc("/admin/queue/skip", handlers.HandleAdminQueueSkip)
	mux.HandleFunc("/admin/queue/clear", handlers.HandleAdminQueueClear)
	mux.HandleFunc("/admin/queue/reorder", handlers.HandleAdminQueueReorder)
	mux.HandleFunc("/admin/queue/remove", handlers.HandleAdminQueueRemove)
	mux.HandleFunc("/admin/ledger/accounts", handlers.HandleAdminLedgerAccounts)
	mux.HandleFunc("/admin/ledger/rates", handlers.HandleAdminLedgerRates)
	mux.HandleFunc("/admin/ledger/award", handlers.HandleAdminLedgerAward)
	mux.HandleFunc("/admin/ledger/balance", handlers.HandleAdminLedgerBalance)

	// Auth and rate limiting apply only to admin endpoints.
	selectiveHandler := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if strings.HasPrefix(req.URL.Path, "/admin/") {
			adminAuth(rateLimitMiddleware(mux, rateLimiter), authCfg).ServeHTTP(w, req)
			return
		}
		mux.ServeHTTP(w, req)
	})

	// Correlation ID injection and tracing wrap everything.
	handler := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		corr := req.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(req.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, "http-server", req.Method+" "+req.URL.Path,
			telemetry.HTTPMethodAttr(req.Method),
			telemetry.HTTPRouteAttr(req.URL.Path),
		)
		defer span.End()

		telemetry.LoggerWithCorr(ctx).Debug("request start", slog.String("method", req.Method), slog.String("path", req.URL.Path), slog.String("component", "http"))

		wrappedWriter := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		selectiveHandler.ServeHTTP(wrappedWriter, req.WithContext(ctx))

		telemetry.SetSpanHTTPStatus(span, wrappedWriter.statusCode)
	})
	return withCORSConfig(handler, corsCfg)
}

// statusRecorder wraps ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	slog.Info("http server listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
