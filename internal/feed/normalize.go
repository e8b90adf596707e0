package feed

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Priya8975/quakewatch/internal/domain"
)

// FeedZone is the offset the Kandilli feed writes its local timestamps in.
var FeedZone = time.FixedZone("TRT", 3*60*60)

const (
	dateLayout = "02.01.2006"
	timeLayout = "15:04:05"
)

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006.01.02 15:04:05",
	"2006-01-02T15:04:05",
}

// now is replaced in tests.
var now = time.Now

// Normalize maps a raw feed record onto the canonical shape. It never fails:
// fields that cannot be resolved fall back to NaN, empty strings, the
// unknown-location sentinel, or the current time.
func Normalize(rec RawRecord) domain.Earthquake {
	occurredAt, ok := resolveTime(rec, rules.occurredAt)
	if !ok {
		occurredAt = now().In(FeedZone)
	}

	date := resolveString(rec, rules.date)
	if date == "" {
		date = occurredAt.In(FeedZone).Format(dateLayout)
	}
	clock := resolveString(rec, rules.time)
	if clock == "" {
		clock = occurredAt.In(FeedZone).Format(timeLayout)
	}

	location := resolveString(rec, rules.location)
	if location == "" {
		location = domain.UnknownLocation
	}

	return domain.Earthquake{
		ID:         resolveString(rec, rules.id),
		Date:       date,
		Time:       clock,
		OccurredAt: occurredAt,
		Latitude:   resolveFloat(rec, rules.latitude),
		Longitude:  resolveFloat(rec, rules.longitude),
		Depth:      resolveFloat(rec, rules.depth),
		Magnitude:  resolveFloat(rec, rules.magnitude),
		Location:   location,
		City:       resolveString(rec, rules.city),
		District:   resolveString(rec, rules.district),
	}
}

// NormalizeAll normalizes records in order.
func NormalizeAll(recs []RawRecord) []domain.Earthquake {
	out := make([]domain.Earthquake, 0, len(recs))
	for _, rec := range recs {
		out = append(out, Normalize(rec))
	}
	return out
}

func resolveString(rec RawRecord, r rule) string {
	v, ok := r.resolve(rec)
	if !ok {
		return ""
	}
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

func resolveFloat(rec RawRecord, r rule) float64 {
	v, ok := r.resolve(rec)
	if !ok {
		return math.NaN()
	}
	return toFloat(v)
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	case float64:
		return x
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func resolveTime(rec RawRecord, r rule) (time.Time, bool) {
	v, ok := r.resolve(rec)
	if !ok {
		return time.Time{}, false
	}
	switch x := v.(type) {
	case string:
		return parseTimeFlexible(x)
	case json.Number:
		return parseEpoch(x.String())
	default:
		return time.Time{}, false
	}
}

// parseEpoch reads whole seconds, or milliseconds when the value has 13 or
// more digits. Results outside years 0-9999 are rejected.
func parseEpoch(s string) (time.Time, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, false
	}

	var t time.Time
	if len(strings.TrimLeft(s, "+-")) >= 13 {
		t = time.UnixMilli(n)
	} else {
		t = time.Unix(n, 0)
	}
	t = t.In(FeedZone)
	if !domain.Encodable(t) {
		return time.Time{}, false
	}
	return t, true
}

// parseTimeFlexible accepts the feed's local layouts, RFC 3339 and epoch
// seconds or milliseconds.
func parseTimeFlexible(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, FeedZone); err == nil {
			return t, true
		}
	}
	if len(s) >= 9 {
		return parseEpoch(s)
	}
	return time.Time{}, false
}
