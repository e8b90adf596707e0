package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/Priya8975/quakewatch/internal/domain"
)

// SnapshotReader serves the cached snapshot.
type SnapshotReader interface {
	Current() []domain.Earthquake
	State() domain.Snapshot
	Ready() bool
}

// Refresher runs, or joins, a feed poll.
type Refresher interface {
	PollOnce(ctx context.Context) error
}

// RefreshLimiter decides whether a caller may force a poll.
type RefreshLimiter interface {
	Allow(ctx context.Context, caller string) bool
}

type EarthquakeHandler struct {
	snapshots SnapshotReader
	refresher Refresher
	limiter   RefreshLimiter
	logger    *slog.Logger
}

func NewEarthquakeHandler(s SnapshotReader, r Refresher, l RefreshLimiter, logger *slog.Logger) *EarthquakeHandler {
	return &EarthquakeHandler{snapshots: s, refresher: r, limiter: l, logger: logger}
}

type earthquakesResponse struct {
	Status bool                `json:"status"`
	Result []domain.Earthquake `json:"result"`
}

// List serves the cached snapshot. With refresh=true it first polls the
// feed; a failed or rate limited refresh still serves the cache.
func (h *EarthquakeHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := domain.MaxSnapshotSize
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if n < limit {
			limit = n
		}
	}

	if r.URL.Query().Get("refresh") == "true" {
		h.refresh(r)
	}

	events := h.snapshots.Current()
	if len(events) > limit {
		events = events[:limit]
	}

	respondJSON(w, http.StatusOK, earthquakesResponse{Status: true, Result: events})
}

func (h *EarthquakeHandler) refresh(r *http.Request) {
	if h.refresher == nil {
		return
	}
	if h.limiter != nil && !h.limiter.Allow(r.Context(), clientIP(r)) {
		h.logger.Debug("refresh limited, serving cached snapshot", "client_ip", clientIP(r))
		return
	}

	// The poll may be shared with the scheduler, so it must outlive this request.
	if err := h.refresher.PollOnce(context.WithoutCancel(r.Context())); err != nil {
		h.logger.Warn("refresh poll failed, serving cached snapshot", "error", err)
	}
}

// clientIP is the caller's address without its port. RealIP has already
// replaced RemoteAddr when a proxy header was present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
