package calendar_tools

import (
	"fmt"
	"net/mail"
	"regexp"
	"time"
	_ "time/tzdata" // IANA zones for minimal container images

	"github.com/teemow/sharedcal/internal/calendar"
	"github.com/teemow/sharedcal/internal/tools/common"
)

// Limits enforced on tool arguments.
const (
	maxSummaryLength        = 255
	maxIdempotencyKeyLength = 120
	minMaxResults           = 1
	maxMaxResults           = 2500
	minSlotMinutes          = 5
	maxSlotMinutes          = 240
	minMaxSlots             = 1
	maxMaxSlots             = 200
)

const (
	datetimeFormatLabel = `Y-m-d\TH:i:sP`
	dateFormatLabel     = "Y-m-d"
	dateLayout          = "2006-01-02"
)

// datetimePattern is RFC 3339 without fractional seconds and with an
// explicit offset.
var datetimePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(Z|[+-]\d{2}:\d{2})$`)

var sendUpdatesValues = []string{
	calendar.SendUpdatesAll,
	calendar.SendUpdatesExternalOnly,
	calendar.SendUpdatesNone,
}

// parsedValue is a string argument together with its parsed form. ok is
// false when the argument was absent or invalid.
type parsedValue[T any] struct {
	raw    string
	parsed T
	ok     bool
}

func datetimeArg(a *common.Args, field string) parsedValue[time.Time] {
	raw := a.String(field)
	if raw == "" {
		return parsedValue[time.Time]{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if !datetimePattern.MatchString(raw) || err != nil {
		a.Fail(field, fmt.Sprintf("The %s field must match the format %s.", common.Label(field), datetimeFormatLabel))
		return parsedValue[time.Time]{raw: raw}
	}
	return parsedValue[time.Time]{raw: raw, parsed: t, ok: true}
}

func dateArg(a *common.Args, field string) parsedValue[time.Time] {
	raw := a.String(field)
	if raw == "" {
		return parsedValue[time.Time]{}
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		a.Fail(field, fmt.Sprintf("The %s field must match the format %s.", common.Label(field), dateFormatLabel))
		return parsedValue[time.Time]{raw: raw}
	}
	return parsedValue[time.Time]{raw: raw, parsed: t, ok: true}
}

func timezoneArg(a *common.Args, field string) parsedValue[*time.Location] {
	raw := a.String(field)
	if raw == "" {
		return parsedValue[*time.Location]{}
	}
	loc, err := time.LoadLocation(raw)
	if err != nil || raw == "Local" {
		a.Fail(field, fmt.Sprintf("The %s field must be a valid timezone.", common.Label(field)))
		return parsedValue[*time.Location]{raw: raw}
	}
	return parsedValue[*time.Location]{raw: raw, parsed: loc, ok: true}
}

// requireAfter records a failure unless later is strictly after earlier.
// Either side being invalid skips the check.
func requireAfter(a *common.Args, field, other string, later, earlier parsedValue[time.Time]) {
	if later.ok && earlier.ok && !later.parsed.After(earlier.parsed) {
		a.Fail(field, fmt.Sprintf("The %s field must be a date after %s.", common.Label(field), common.Label(other)))
	}
}

// requireOffsetMatches checks that the offset written in a datetime is the
// offset tz has at that instant.
func requireOffsetMatches(a *common.Args, field string, dt parsedValue[time.Time], tz parsedValue[*time.Location]) {
	if !dt.ok || !tz.ok {
		return
	}
	if !offsetMatchesZone(dt.parsed, tz.parsed) {
		a.Fail(field, fmt.Sprintf("The %s offset must match the provided timezone at that datetime.", common.Label(field)))
	}
}

func offsetMatchesZone(t time.Time, loc *time.Location) bool {
	_, written := t.Zone()
	_, actual := t.In(loc).Zone()
	return written == actual
}

// timeWindow is the validated time_min/time_max/timezone triple shared by
// the read tools.
type timeWindow struct {
	TimeMin  parsedValue[time.Time]
	TimeMax  parsedValue[time.Time]
	TimeZone string
}

func validateWindow(a *common.Args) timeWindow {
	a.Require("time_min", "time_max", "timezone")
	w := timeWindow{
		TimeMin: datetimeArg(a, "time_min"),
		TimeMax: datetimeArg(a, "time_max"),
	}
	requireAfter(a, "time_max", "time_min", w.TimeMax, w.TimeMin)
	w.TimeZone = timezoneArg(a, "timezone").raw
	return w
}

// eventTiming holds either the timed or the all-day shape of an event.
type eventTiming struct {
	StartAt   string
	EndAt     string
	TimeZone  string
	StartDate string
	EndDate   string
}

var (
	timedFields  = []string{"start_at", "end_at", "timezone"}
	allDayFields = []string{"start_date", "end_date"}
)

// validateTiming enforces the timed and all-day shapes. requireShape makes
// one of the two shapes mandatory (create); without it both may be absent
// (update).
func validateTiming(a *common.Args, requireShape bool) eventTiming {
	if requireShape {
		requiredWithoutAll(a, []string{"start_at", "end_at"}, allDayFields)
		requiredWithoutAll(a, allDayFields, []string{"start_at", "end_at"})
	}
	requiredWith(a, "start_at", "end_at")
	requiredWith(a, "end_at", "start_at")
	requiredWith(a, "start_date", "end_date")
	requiredWith(a, "end_date", "start_date")
	requiredWith(a, "timezone", "start_at", "end_at")

	if anyPresent(a, timedFields...) && anyPresent(a, allDayFields...) {
		prohibits(a, timedFields, allDayFields)
		prohibits(a, allDayFields, timedFields)
	}

	startAt := datetimeArg(a, "start_at")
	endAt := datetimeArg(a, "end_at")
	tz := timezoneArg(a, "timezone")
	requireOffsetMatches(a, "start_at", startAt, tz)
	requireOffsetMatches(a, "end_at", endAt, tz)
	requireAfter(a, "end_at", "start_at", endAt, startAt)

	startDate := dateArg(a, "start_date")
	endDate := dateArg(a, "end_date")
	requireAfter(a, "end_date", "start_date", endDate, startDate)

	return eventTiming{
		StartAt:   startAt.raw,
		EndAt:     endAt.raw,
		TimeZone:  tz.raw,
		StartDate: startDate.raw,
		EndDate:   endDate.raw,
	}
}

func validateIdempotencyKey(a *common.Args) string {
	a.Require("idempotency_key")
	a.MaxLength("idempotency_key", maxIdempotencyKeyLength)
	return a.String("idempotency_key")
}

func validateSendUpdates(a *common.Args) string {
	a.OneOf("send_updates", sendUpdatesValues...)
	return a.String("send_updates")
}

func validateAttendees(a *common.Args) []string {
	attendees := a.Strings("attendees")
	for i, email := range attendees {
		addr, err := mail.ParseAddress(email)
		if err != nil || addr.Address != email {
			field := fmt.Sprintf("attendees.%d", i)
			a.Fail(field, fmt.Sprintf("The %s field must be a valid email address.", field))
		}
	}
	return attendees
}

func requiredWith(a *common.Args, field string, others ...string) {
	if a.Present(field) || !anyPresent(a, others...) {
		return
	}
	a.Fail(field, fmt.Sprintf("The %s field is required when %s is present.", common.Label(field), labels(others)))
}

func requiredWithoutAll(a *common.Args, fields, others []string) {
	if anyPresent(a, others...) {
		return
	}
	for _, field := range fields {
		if !a.Present(field) {
			a.Fail(field, fmt.Sprintf("The %s field is required when none of %s are present.", common.Label(field), labels(others)))
		}
	}
}

func prohibits(a *common.Args, fields, others []string) {
	for _, field := range fields {
		if a.Present(field) {
			a.Fail(field, fmt.Sprintf("The %s field prohibits %s from being present.", common.Label(field), labels(others)))
		}
	}
}

func anyPresent(a *common.Args, fields ...string) bool {
	for _, field := range fields {
		if a.Present(field) {
			return true
		}
	}
	return false
}

func labels(fields []string) string {
	out := ""
	for i, field := range fields {
		if i > 0 {
			out += " / "
		}
		out += common.Label(field)
	}
	return out
}
