package calendar_tools

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/sharedcal/internal/tools/common"
)

func TestOffsetMatchesZone(t *testing.T) {
	kyiv, err := time.LoadLocation("Europe/Kyiv")
	require.NoError(t, err)
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	tests := []struct {
		name  string
		value string
		loc   *time.Location
		want  bool
	}{
		{name: "winter offset", value: "2026-02-18T16:00:00+02:00", loc: kyiv, want: true},
		{name: "utc in kyiv", value: "2026-02-18T16:00:00+00:00", loc: kyiv, want: false},
		{name: "summer offset", value: "2026-07-01T09:00:00+03:00", loc: kyiv, want: true},
		{name: "winter offset in summer", value: "2026-07-01T09:00:00+02:00", loc: kyiv, want: false},
		{name: "new york dst", value: "2026-06-01T09:00:00-04:00", loc: ny, want: true},
		{name: "z in utc", value: "2026-06-01T09:00:00Z", loc: time.UTC, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := time.Parse(time.RFC3339, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, offsetMatchesZone(parsed, tt.loc))
		})
	}
}

func TestValidateTiming(t *testing.T) {
	tests := []struct {
		name         string
		args         map[string]any
		requireShape bool
		wantErr      bool
		want         eventTiming
	}{
		{
			name: "timed",
			args: map[string]any{
				"start_at": "2030-03-01T11:00:00+01:00",
				"end_at":   "2030-03-01T12:00:00+01:00",
				"timezone": "Europe/Berlin",
			},
			requireShape: true,
			want: eventTiming{
				StartAt:  "2030-03-01T11:00:00+01:00",
				EndAt:    "2030-03-01T12:00:00+01:00",
				TimeZone: "Europe/Berlin",
			},
		},
		{
			name:         "all day",
			args:         map[string]any{"start_date": "2030-03-01", "end_date": "2030-03-02"},
			requireShape: true,
			want:         eventTiming{StartDate: "2030-03-01", EndDate: "2030-03-02"},
		},
		{
			name:         "nothing on update",
			args:         map[string]any{},
			requireShape: false,
		},
		{
			name:         "nothing on create",
			args:         map[string]any{},
			requireShape: true,
			wantErr:      true,
		},
		{
			name: "null values count as absent",
			args: map[string]any{
				"start_date": "2030-03-01",
				"end_date":   "2030-03-02",
				"start_at":   nil,
				"timezone":   "",
			},
			requireShape: true,
			want:         eventTiming{StartDate: "2030-03-01", EndDate: "2030-03-02"},
		},
		{
			name: "end before start",
			args: map[string]any{
				"start_at": "2030-03-01T12:00:00Z",
				"end_at":   "2030-03-01T11:00:00Z",
				"timezone": "UTC",
			},
			wantErr: true,
		},
		{
			name: "same instant in different offsets",
			args: map[string]any{
				"start_at": "2030-07-01T12:00:00+02:00",
				"end_at":   "2030-07-01T10:00:00+00:00",
				"timezone": "Europe/Berlin",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := common.ArgsFromMap(tt.args)
			got := validateTiming(args, tt.requireShape)
			if tt.wantErr {
				assert.Error(t, args.Err())
				return
			}
			require.NoError(t, args.Err())
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateWindow(t *testing.T) {
	args := common.ArgsFromMap(map[string]any{
		"time_min": "2030-03-01T00:00:00-05:00",
		"time_max": "2030-03-01T06:00:00Z",
		"timezone": "America/New_York",
	})
	w := validateWindow(args)
	require.NoError(t, args.Err())
	assert.Equal(t, "2030-03-01T00:00:00-05:00", w.TimeMin.raw)
	assert.Equal(t, "America/New_York", w.TimeZone)

	args = common.ArgsFromMap(map[string]any{
		"time_min": "2030-03-01T00:00:00-05:00",
		"time_max": "2030-03-01T05:00:00Z",
		"timezone": "Local",
	})
	validateWindow(args)
	assert.True(t, args.Failed("time_max"))
	assert.True(t, args.Failed("timezone"))
}

func TestValidateAttendees(t *testing.T) {
	args := common.ArgsFromMap(map[string]any{
		"attendees": []any{"ana@example.com", "Bob <bob@example.com>", "plain"},
	})
	got := validateAttendees(args)
	assert.Equal(t, []string{"ana@example.com", "Bob <bob@example.com>", "plain"}, got)
	assert.False(t, args.Failed("attendees.0"))
	assert.True(t, args.Failed("attendees.1"))
	assert.True(t, args.Failed("attendees.2"))
}
