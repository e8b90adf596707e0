package domain

// Message types pushed to subscribers.
const (
	MessageSnapshot = "earthquakes"
	MessageNewEvent = "newEarthquake"
)

// Message is the envelope for everything pushed to subscribers.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
