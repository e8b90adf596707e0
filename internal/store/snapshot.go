package store

import (
	"sync/atomic"

	"github.com/Priya8975/quakewatch/internal/domain"
)

// SnapshotCache holds the latest poll result. Each Replace swaps one
// immutable value, so readers see either the old snapshot or the new one,
// never a mix of events and last-seen id from different polls.
type SnapshotCache struct {
	state atomic.Pointer[domain.Snapshot]
}

func NewSnapshotCache() *SnapshotCache {
	return &SnapshotCache{}
}

// Replace installs snap as the current snapshot. The events are copied and
// capped at domain.MaxSnapshotSize.
func (c *SnapshotCache) Replace(snap domain.Snapshot) {
	n := len(snap.Events)
	if n > domain.MaxSnapshotSize {
		n = domain.MaxSnapshotSize
	}
	events := make([]domain.Earthquake, n)
	copy(events, snap.Events[:n])
	snap.Events = events

	c.state.Store(&snap)
}

// Current returns the events of the last snapshot, or an empty slice before
// the first Replace. Callers must not modify the returned slice.
func (c *SnapshotCache) Current() []domain.Earthquake {
	if s := c.state.Load(); s != nil {
		return s.Events
	}
	return []domain.Earthquake{}
}

// State returns the whole snapshot, including the last seen id.
func (c *SnapshotCache) State() domain.Snapshot {
	if s := c.state.Load(); s != nil {
		return *s
	}
	return domain.Snapshot{Events: []domain.Earthquake{}}
}

// LastSeenID returns the head id of the last successful poll, or "" if none.
func (c *SnapshotCache) LastSeenID() string {
	if s := c.state.Load(); s != nil {
		return s.LastSeenID
	}
	return ""
}

// Ready reports whether a snapshot has been installed.
func (c *SnapshotCache) Ready() bool {
	return c.state.Load() != nil
}
