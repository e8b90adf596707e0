package domain

import (
	"encoding/json"
	"math"
	"time"
)

// MaxSnapshotSize caps how many events a snapshot holds.
const MaxSnapshotSize = 50

// UnknownLocation is used when a record carries no usable place name.
const UnknownLocation = "Unknown location"

type Earthquake struct {
	ID         string    `json:"id"`
	Date       string    `json:"date"`
	Time       string    `json:"time"`
	OccurredAt time.Time `json:"dateTime"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Depth      float64   `json:"depth"`
	Magnitude  float64   `json:"magnitude"`
	Location   string    `json:"location"`
	City       string    `json:"city"`
	District   string    `json:"district"`
}

// MarshalJSON writes NaN measurements and unencodable times as null, so one
// bad field never fails the whole message.
func (e Earthquake) MarshalJSON() ([]byte, error) {
	type wire struct {
		ID         string     `json:"id"`
		Date       string     `json:"date"`
		Time       string     `json:"time"`
		OccurredAt *time.Time `json:"dateTime"`
		Latitude   *float64   `json:"latitude"`
		Longitude  *float64   `json:"longitude"`
		Depth      *float64   `json:"depth"`
		Magnitude  *float64   `json:"magnitude"`
		Location   string     `json:"location"`
		City       string     `json:"city"`
		District   string     `json:"district"`
	}
	return json.Marshal(wire{
		ID:         e.ID,
		Date:       e.Date,
		Time:       e.Time,
		OccurredAt: encodableTime(e.OccurredAt),
		Latitude:   finite(e.Latitude),
		Longitude:  finite(e.Longitude),
		Depth:      finite(e.Depth),
		Magnitude:  finite(e.Magnitude),
		Location:   e.Location,
		City:       e.City,
		District:   e.District,
	})
}

// HasCoordinates reports whether both coordinates are usable on a map.
func (e Earthquake) HasCoordinates() bool {
	return !math.IsNaN(e.Latitude) && !math.IsNaN(e.Longitude)
}

// Encodable reports whether t falls in the years JSON timestamps can carry.
func Encodable(t time.Time) bool {
	y := t.Year()
	return y >= 0 && y <= 9999
}

func encodableTime(t time.Time) *time.Time {
	if !Encodable(t) {
		return nil
	}
	return &t
}

func finite(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// Snapshot is the result of one successful poll. Values are never mutated
// after they are handed to the snapshot cache.
type Snapshot struct {
	Events     []Earthquake `json:"events"`
	LastSeenID string       `json:"last_seen_id,omitempty"`
	FetchedAt  time.Time    `json:"fetched_at"`
}
