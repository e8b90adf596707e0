package feed

import (
	"strconv"
	"strings"
)

// A path addresses a value inside a raw record. Segments are object keys,
// or array indexes for segments that parse as integers.
type path []string

func p(dotted string) path {
	return strings.Split(dotted, ".")
}

func (pt path) String() string {
	return strings.Join(pt, ".")
}

// rule lists, in priority order, where one canonical field may be found.
type rule struct {
	field   string
	sources []path
}

// rules is the single place that decides field resolution. The first source
// holding a present, non-null, non-empty value wins.
var rules = struct {
	id, latitude, longitude, depth, magnitude rule
	location, city, district                  rule
	occurredAt, date, time                    rule
}{
	id:         rule{"id", []path{p("earthquake_id"), p("_id"), p("id")}},
	latitude:   rule{"latitude", []path{p("geojson.coordinates.1"), p("lat"), p("latitude")}},
	longitude:  rule{"longitude", []path{p("geojson.coordinates.0"), p("lng"), p("lon"), p("longitude")}},
	depth:      rule{"depth", []path{p("depth")}},
	magnitude:  rule{"magnitude", []path{p("mag"), p("magnitude")}},
	location:   rule{"location", []path{p("title"), p("location_properties.epiCenter.name")}},
	city:       rule{"city", []path{p("location_properties.epiCenter.name")}},
	district:   rule{"district", []path{p("location_properties.closestCity.name")}},
	occurredAt: rule{"occurredAt", []path{p("date_time"), p("created_at")}},
	date:       rule{"date", []path{p("date")}},
	time:       rule{"time", []path{p("time")}},
}

// resolve returns the first usable value for r.
func (r rule) resolve(rec RawRecord) (any, bool) {
	for _, src := range r.sources {
		if v, ok := lookup(rec, src); ok && usable(v) {
			return v, true
		}
	}
	return nil, false
}

func lookup(rec RawRecord, pt path) (any, bool) {
	var cur any = map[string]any(rec)
	for _, seg := range pt {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

func usable(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(x) != ""
	default:
		return true
	}
}
