package engine

import "github.com/Priya8975/quakewatch/internal/domain"

// Detection is the outcome of comparing a fresh snapshot to the last head id.
type Detection struct {
	IsNew      bool
	Newest     domain.Earthquake
	LastSeenID string
}

// Detect decides whether the head of events is a new earthquake. An empty
// lastSeenID means no poll has succeeded yet; the first poll never reports
// novelty. An empty events slice keeps lastSeenID as it was.
func Detect(events []domain.Earthquake, lastSeenID string) Detection {
	if len(events) == 0 {
		return Detection{LastSeenID: lastSeenID}
	}

	newest := events[0]
	return Detection{
		IsNew:      lastSeenID != "" && lastSeenID != newest.ID,
		Newest:     newest,
		LastSeenID: newest.ID,
	}
}
