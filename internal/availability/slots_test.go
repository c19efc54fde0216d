package availability

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return ts
}

func TestSuggestSlots_MorningWithOneMeeting(t *testing.T) {
	busy := []Interval{{Start: at(t, "2025-03-10T10:00:00+01:00"), End: at(t, "2025-03-10T11:00:00+01:00")}}

	slots := SuggestSlots(
		at(t, "2025-03-10T09:00:00+01:00"),
		at(t, "2025-03-10T13:00:00+01:00"),
		busy, 30*time.Minute, 30*time.Minute, 50,
	)

	require.Len(t, slots, 6)
	want := []string{"09:00", "09:30", "11:00", "11:30", "12:00", "12:30"}
	for i, slot := range slots {
		assert.Equal(t, want[i], slot.Start.Format("15:04"))
		assert.Equal(t, 30*time.Minute, slot.End.Sub(slot.Start))
	}
}

func TestSuggestSlots(t *testing.T) {
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(4 * time.Hour)

	tests := []struct {
		name     string
		busy     []Interval
		duration time.Duration
		step     time.Duration
		maxSlots int
		want     int
	}{
		{
			name:     "empty calendar",
			duration: time.Hour,
			want:     4,
		},
		{
			name:     "step defaults to duration",
			duration: time.Hour,
			step:     0,
			want:     4,
		},
		{
			name:     "smaller step",
			duration: time.Hour,
			step:     30 * time.Minute,
			want:     7,
		},
		{
			name:     "max slots caps the result",
			duration: 30 * time.Minute,
			maxSlots: 3,
			want:     3,
		},
		{
			name:     "non-positive duration",
			duration: 0,
			want:     0,
		},
		{
			name:     "duration longer than window",
			duration: 5 * time.Hour,
			want:     0,
		},
		{
			name:     "fully busy",
			busy:     []Interval{{Start: start, End: end}},
			duration: 30 * time.Minute,
			want:     0,
		},
		{
			name: "adjacent busy intervals do not overlap",
			busy: []Interval{
				{Start: start.Add(time.Hour), End: start.Add(2 * time.Hour)},
			},
			duration: time.Hour,
			want:     3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slots := SuggestSlots(start, end, tt.busy, tt.duration, tt.step, tt.maxSlots)
			assert.Len(t, slots, tt.want)
			for _, slot := range slots {
				assert.False(t, slot.End.After(end))
				for _, b := range tt.busy {
					assert.False(t, b.Overlaps(slot.Start, slot.End))
				}
			}
		})
	}
}

func TestSuggestSlots_DefaultMaxSlots(t *testing.T) {
	start := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	slots := SuggestSlots(start, start.Add(24*time.Hour), nil, 5*time.Minute, 0, 0)
	assert.Len(t, slots, DefaultMaxSlots)
}

func TestInterval_MarshalJSON(t *testing.T) {
	slot := Interval{Start: at(t, "2025-03-10T09:00:00+02:00"), End: at(t, "2025-03-10T09:30:00+02:00")}
	data, err := json.Marshal(slot)
	require.NoError(t, err)
	assert.JSONEq(t, `{"start":"2025-03-10T09:00:00+02:00","end":"2025-03-10T09:30:00+02:00"}`, string(data))
}
