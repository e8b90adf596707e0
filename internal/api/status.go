package api

import (
	"net/http"
	"time"

	"github.com/Priya8975/quakewatch/internal/worker"
)

// ClientCounter reports connected subscribers.
type ClientCounter interface {
	ClientCount() int
}

// PollReporter reports the state of the poll loop.
type PollReporter interface {
	Status() worker.PollStatus
}

type StatusHandler struct {
	snapshots SnapshotReader
	clients   ClientCounter
	poller    PollReporter
}

func NewStatusHandler(s SnapshotReader, c ClientCounter, p PollReporter) *StatusHandler {
	return &StatusHandler{snapshots: s, clients: c, poller: p}
}

type statusResponse struct {
	Ready        bool              `json:"ready"`
	Subscribers  int               `json:"subscribers"`
	SnapshotSize int               `json:"snapshot_size"`
	LastSeenID   string            `json:"last_seen_id,omitempty"`
	FetchedAt    *time.Time        `json:"fetched_at,omitempty"`
	Poll         worker.PollStatus `json:"poll"`
}

// Status returns subscriber and poll loop information for operators.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	snap := h.snapshots.State()

	resp := statusResponse{
		Ready:        h.snapshots.Ready(),
		Subscribers:  h.clients.ClientCount(),
		SnapshotSize: len(snap.Events),
		LastSeenID:   snap.LastSeenID,
		Poll:         h.poller.Status(),
	}
	if !snap.FetchedAt.IsZero() {
		resp.FetchedAt = &snap.FetchedAt
	}

	respondJSON(w, http.StatusOK, resp)
}
