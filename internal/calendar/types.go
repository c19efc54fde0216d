package calendar

import (
	"encoding/json"

	"github.com/teemow/sharedcal/internal/availability"
)

// Values accepted for sendUpdates.
const (
	SendUpdatesAll          = "all"
	SendUpdatesExternalOnly = "externalOnly"
	SendUpdatesNone         = "none"
)

// DefaultMaxResults is the page size used when the caller gives none.
const DefaultMaxResults = 50

// freeBusyExpansionMax is the most calendars a group ID may expand to.
const freeBusyExpansionMax = 50

// ListEventsRequest selects events in a time window.
type ListEventsRequest struct {
	CalendarID     string `json:"calendar_id,omitempty"`
	TimeMin        string `json:"time_min"`
	TimeMax        string `json:"time_max"`
	TimeZone       string `json:"timezone"`
	MaxResults     int    `json:"max_results,omitempty"`
	PageToken      string `json:"page_token,omitempty"`
	IncludeDeleted bool   `json:"include_deleted,omitempty"`
}

// SearchEventsRequest is a free-text search in a time window.
type SearchEventsRequest struct {
	CalendarID string `json:"calendar_id,omitempty"`
	Query      string `json:"query"`
	TimeMin    string `json:"time_min"`
	TimeMax    string `json:"time_max"`
	TimeZone   string `json:"timezone"`
	MaxResults int    `json:"max_results,omitempty"`
	PageToken  string `json:"page_token,omitempty"`
}

// EventPage is one page of list or search results.
type EventPage struct {
	Items         []json.RawMessage `json:"items"`
	NextPageToken string            `json:"nextPageToken,omitempty"`
}

// CreateEventRequest creates a timed event (StartAt, EndAt, TimeZone) or an
// all-day event (StartDate, EndDate).
type CreateEventRequest struct {
	CalendarID  string   `json:"calendar_id,omitempty"`
	Summary     string   `json:"summary"`
	Description string   `json:"description,omitempty"`
	Location    string   `json:"location,omitempty"`
	StartAt     string   `json:"start_at,omitempty"`
	EndAt       string   `json:"end_at,omitempty"`
	TimeZone    string   `json:"timezone,omitempty"`
	StartDate   string   `json:"start_date,omitempty"`
	EndDate     string   `json:"end_date,omitempty"`
	Attendees   []string `json:"attendees,omitempty"`
	SendUpdates string   `json:"send_updates,omitempty"`

	// IdempotencyKey is passed to the cache as the token and is not part
	// of the payload.
	IdempotencyKey string `json:"-"`
}

// UpdateEventRequest patches an event. Nil or empty fields are left
// untouched on the remote side.
type UpdateEventRequest struct {
	CalendarID  string  `json:"calendar_id,omitempty"`
	EventID     string  `json:"event_id"`
	Summary     *string `json:"summary,omitempty"`
	Description *string `json:"description,omitempty"`
	Location    *string `json:"location,omitempty"`
	StartAt     string  `json:"start_at,omitempty"`
	EndAt       string  `json:"end_at,omitempty"`
	TimeZone    string  `json:"timezone,omitempty"`
	StartDate   string  `json:"start_date,omitempty"`
	EndDate     string  `json:"end_date,omitempty"`
	IfMatchETag string  `json:"if_match_etag,omitempty"`
	SendUpdates string  `json:"send_updates,omitempty"`

	IdempotencyKey string `json:"-"`
}

// DeleteEventRequest removes an event.
type DeleteEventRequest struct {
	CalendarID  string `json:"calendar_id,omitempty"`
	EventID     string `json:"event_id"`
	IfMatchETag string `json:"if_match_etag,omitempty"`
	SendUpdates string `json:"send_updates,omitempty"`

	IdempotencyKey string `json:"-"`
}

// GetEventRequest fetches a single event.
type GetEventRequest struct {
	CalendarID string
	EventID    string
}

// EventResult is the outcome of a create or update.
type EventResult struct {
	Event    json.RawMessage
	Replayed bool
}

// DeleteResult is the outcome of a delete.
type DeleteResult struct {
	Deleted  bool   `json:"deleted"`
	EventID  string `json:"event_id"`
	Replayed bool   `json:"-"`
}

// FreeBusyRequest asks for busy intervals of one or more calendars.
// CalendarIDs wins over CalendarID when non-empty.
type FreeBusyRequest struct {
	CalendarID  string
	CalendarIDs []string
	TimeMin     string
	TimeMax     string
	TimeZone    string
}

// BusyRange is a busy interval exactly as Google reported it.
type BusyRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// FreeBusyResult maps calendar IDs to their busy ranges.
type FreeBusyResult struct {
	Calendars map[string][]BusyRange
}

// AvailabilityRequest asks for open slots. SlotStepMinutes defaults to the
// duration and MaxSlots to availability.DefaultMaxSlots.
type AvailabilityRequest struct {
	FreeBusyRequest
	SlotDurationMinutes int
	SlotStepMinutes     int
	MaxSlots            int
}

// AvailabilityResult is the outcome of FindAvailability.
type AvailabilityResult struct {
	BusyByCalendar map[string][]BusyRange  `json:"busy_by_calendar"`
	SuggestedSlots []availability.Interval `json:"suggested_slots"`
	TimeZone       string                  `json:"timezone"`
}
