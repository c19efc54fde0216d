package availability

import (
	"encoding/json"
	"time"
)

// DefaultMaxSlots caps the number of suggestions when the caller gives none.
const DefaultMaxSlots = 50

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether [start, end) intersects the interval.
func (i Interval) Overlaps(start, end time.Time) bool {
	return start.Before(i.End) && end.After(i.Start)
}

// MarshalJSON encodes the interval as {"start": RFC3339, "end": RFC3339},
// keeping the offset the times carry.
func (i Interval) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}{
		Start: i.Start.Format(time.RFC3339),
		End:   i.End.Format(time.RFC3339),
	})
}

// SuggestSlots walks a cursor from timeMin in steps of step and returns every
// candidate [cursor, cursor+duration) that fits before timeMax and does not
// overlap any busy interval. The cursor advances by step whether or not the
// candidate was accepted.
//
// A non-positive step defaults to duration, a non-positive maxSlots to
// DefaultMaxSlots. A non-positive duration yields no slots.
func SuggestSlots(timeMin, timeMax time.Time, busy []Interval, duration, step time.Duration, maxSlots int) []Interval {
	if duration <= 0 {
		return nil
	}
	if step <= 0 {
		step = duration
	}
	if maxSlots <= 0 {
		maxSlots = DefaultMaxSlots
	}

	var slots []Interval
	for cursor := timeMin; cursor.Before(timeMax) && len(slots) < maxSlots; cursor = cursor.Add(step) {
		end := cursor.Add(duration)
		if end.After(timeMax) {
			break
		}
		if !overlapsAny(cursor, end, busy) {
			slots = append(slots, Interval{Start: cursor, End: end})
		}
	}
	return slots
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		if b.Overlaps(start, end) {
			return true
		}
	}
	return false
}
