package api

import (
	"net/http"
	"time"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status        string     `json:"status"`
	Version       string     `json:"version"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
}

// HealthHandler reports "ok" while the last successful poll is younger than
// staleAfter and "stale" otherwise. It always answers 200.
func HealthHandler(version string, poller PollReporter, staleAfter time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "stale", Version: version}

		if poller != nil {
			if last := poller.Status().LastSuccessAt; !last.IsZero() {
				resp.LastSuccessAt = &last
				if time.Since(last) <= staleAfter {
					resp.Status = "ok"
				}
			}
		}

		respondJSON(w, http.StatusOK, resp)
	}
}
