package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Priya8975/quakewatch/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Deps are the collaborators the HTTP surface reads from.
type Deps struct {
	Snapshots  SnapshotReader
	Refresher  Refresher
	Limiter    RefreshLimiter
	Clients    ClientCounter
	Poller     PollReporter
	WebSocket  http.HandlerFunc
	Version    string
	// StaleAfter is how old the last successful poll may be before
	// /api/health reports "stale".
	StaleAfter time.Duration
	Logger     *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(corsMiddleware)

	quakeHandler := NewEarthquakeHandler(d.Snapshots, d.Refresher, d.Limiter, d.Logger)
	statusHandler := NewStatusHandler(d.Snapshots, d.Clients, d.Poller)

	// WebSocket endpoint
	if d.WebSocket != nil {
		r.Get("/ws", d.WebSocket)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/earthquakes", quakeHandler.List)
		r.Get("/status", statusHandler.Status)
		r.Get("/health", HealthHandler(d.Version, d.Poller, d.StaleAfter))
	})

	r.Handle("/metrics", metrics.Handler())

	return r
}

// corsMiddleware lets any origin read the public feed.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
