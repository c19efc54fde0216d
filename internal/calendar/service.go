package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	calendarv3 "google.golang.org/api/calendar/v3"

	"github.com/teemow/sharedcal/internal/apierror"
	"github.com/teemow/sharedcal/internal/availability"
	"github.com/teemow/sharedcal/internal/google"
	"github.com/teemow/sharedcal/internal/idempotency"
	"github.com/teemow/sharedcal/internal/logging"
)

// DefaultCalendarID is used when neither the request nor the configuration
// names a calendar.
const DefaultCalendarID = "primary"

// Operation names used as idempotency namespaces.
const (
	OpCreateEvent = "create_event"
	OpUpdateEvent = "update_event"
	OpDeleteEvent = "delete_event"
)

// Doer executes Calendar API requests. *Client implements it.
type Doer interface {
	Do(ctx context.Context, req Request) (json.RawMessage, error)
}

// CredentialStatusSource reports on the stored credential.
type CredentialStatusSource interface {
	Status(ctx context.Context) (google.CredentialStatus, error)
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	DefaultCalendarID string
	Logger            logging.Logger
}

// Service implements the calendar operations exposed to tool callers.
type Service struct {
	client            Doer
	cache             *idempotency.Cache
	creds             CredentialStatusSource
	defaultCalendarID string
	logger            logging.Logger
}

// NewService creates a Service.
func NewService(client Doer, cache *idempotency.Cache, creds CredentialStatusSource, cfg ServiceConfig) *Service {
	if cfg.DefaultCalendarID == "" {
		cfg.DefaultCalendarID = DefaultCalendarID
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.DefaultLogger()
	}
	return &Service{
		client:            client,
		cache:             cache,
		creds:             creds,
		defaultCalendarID: cfg.DefaultCalendarID,
		logger:            cfg.Logger,
	}
}

// DefaultCalendarID returns the calendar used when a request names none.
func (s *Service) DefaultCalendarID() string {
	return s.defaultCalendarID
}

// ListEvents lists expanded single events ordered by start time.
func (s *Service) ListEvents(ctx context.Context, req ListEventsRequest) (EventPage, error) {
	q := windowQuery(req.TimeMin, req.TimeMax, req.TimeZone, req.MaxResults, req.PageToken)
	q.Set("showDeleted", googleBool(req.IncludeDeleted))

	raw, err := s.client.Do(ctx, Request{
		Method: http.MethodGet,
		Path:   eventsPath(s.calendarID(req.CalendarID)),
		Query:  q,
	})
	if err != nil {
		return EventPage{}, err
	}
	return decodePage(raw)
}

// SearchEvents runs a free-text query over a time window.
func (s *Service) SearchEvents(ctx context.Context, req SearchEventsRequest) (EventPage, error) {
	q := windowQuery(req.TimeMin, req.TimeMax, req.TimeZone, req.MaxResults, req.PageToken)
	q.Set("q", req.Query)

	raw, err := s.client.Do(ctx, Request{
		Method: http.MethodGet,
		Path:   eventsPath(s.calendarID(req.CalendarID)),
		Query:  q,
	})
	if err != nil {
		return EventPage{}, err
	}
	return decodePage(raw)
}

// GetEvent fetches one event.
func (s *Service) GetEvent(ctx context.Context, req GetEventRequest) (json.RawMessage, error) {
	return s.client.Do(ctx, Request{
		Method: http.MethodGet,
		Path:   eventPath(s.calendarID(req.CalendarID), req.EventID),
	})
}

// CreateEvent inserts an event under a deterministic ID derived from the
// idempotency key. Replays within the cache TTL return the stored event.
// If the insert reports a conflict (a previous attempt created the event but
// its response was lost) the existing event is fetched instead.
func (s *Service) CreateEvent(ctx context.Context, req CreateEventRequest) (EventResult, error) {
	calendarID := s.calendarID(req.CalendarID)
	eventID := EventIDForKey(req.IdempotencyKey)

	event := &calendarv3.Event{
		Id:          eventID,
		Summary:     req.Summary,
		Description: req.Description,
		Location:    req.Location,
		Start:       eventDateTime(req.StartDate, req.StartAt, req.TimeZone),
		End:         eventDateTime(req.EndDate, req.EndAt, req.TimeZone),
	}
	for _, email := range req.Attendees {
		event.Attendees = append(event.Attendees, &calendarv3.EventAttendee{Email: email})
	}

	res, err := s.cache.Run(ctx, OpCreateEvent, req.IdempotencyKey, req, func(ctx context.Context) (json.RawMessage, error) {
		raw, err := s.client.Do(ctx, Request{
			Method: http.MethodPost,
			Path:   eventsPath(calendarID),
			Query:  sendUpdatesQuery(req.SendUpdates),
			Body:   event,
		})
		if apierror.Is(err, apierror.CodeConflict) {
			s.logger.Info("Event already exists, fetching it instead",
				logging.KeyCalendarID, calendarID,
				logging.KeyEventID, eventID)
			return s.GetEvent(ctx, GetEventRequest{CalendarID: calendarID, EventID: eventID})
		}
		return raw, err
	})
	if err != nil {
		return EventResult{}, err
	}
	return EventResult{Event: res.Response, Replayed: res.Replayed}, nil
}

// UpdateEvent patches only the fields present in req.
func (s *Service) UpdateEvent(ctx context.Context, req UpdateEventRequest) (EventResult, error) {
	calendarID := s.calendarID(req.CalendarID)

	patch := &calendarv3.Event{
		Start: eventDateTime(req.StartDate, req.StartAt, req.TimeZone),
		End:   eventDateTime(req.EndDate, req.EndAt, req.TimeZone),
	}
	if req.Summary != nil {
		patch.Summary = *req.Summary
		patch.ForceSendFields = append(patch.ForceSendFields, "Summary")
	}
	if req.Description != nil {
		patch.Description = *req.Description
		patch.ForceSendFields = append(patch.ForceSendFields, "Description")
	}
	if req.Location != nil {
		patch.Location = *req.Location
		patch.ForceSendFields = append(patch.ForceSendFields, "Location")
	}

	res, err := s.cache.Run(ctx, OpUpdateEvent, req.IdempotencyKey, req, func(ctx context.Context) (json.RawMessage, error) {
		return s.client.Do(ctx, Request{
			Method:  http.MethodPatch,
			Path:    eventPath(calendarID, req.EventID),
			Query:   sendUpdatesQuery(req.SendUpdates),
			Body:    patch,
			Headers: ifMatchHeaders(req.IfMatchETag),
		})
	})
	if err != nil {
		return EventResult{}, err
	}
	return EventResult{Event: res.Response, Replayed: res.Replayed}, nil
}

// DeleteEvent removes an event and acknowledges it.
func (s *Service) DeleteEvent(ctx context.Context, req DeleteEventRequest) (DeleteResult, error) {
	calendarID := s.calendarID(req.CalendarID)

	res, err := s.cache.Run(ctx, OpDeleteEvent, req.IdempotencyKey, req, func(ctx context.Context) (json.RawMessage, error) {
		_, err := s.client.Do(ctx, Request{
			Method:  http.MethodDelete,
			Path:    eventPath(calendarID, req.EventID),
			Query:   sendUpdatesQuery(req.SendUpdates),
			Headers: ifMatchHeaders(req.IfMatchETag),
		})
		if err != nil {
			return nil, err
		}
		return json.Marshal(DeleteResult{Deleted: true, EventID: req.EventID})
	})
	if err != nil {
		return DeleteResult{}, err
	}

	var ack DeleteResult
	if err := json.Unmarshal(res.Response, &ack); err != nil {
		return DeleteResult{}, apierror.Upstream(http.StatusInternalServerError, err, "stored delete acknowledgement is unreadable")
	}
	ack.Replayed = res.Replayed
	return ack, nil
}

// FreeBusy returns the busy ranges of the requested calendars. Busy entries
// without a start and an end are dropped.
func (s *Service) FreeBusy(ctx context.Context, req FreeBusyRequest) (FreeBusyResult, error) {
	ids := make([]string, 0, len(req.CalendarIDs))
	for _, id := range req.CalendarIDs {
		if id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		ids = []string{s.calendarID(req.CalendarID)}
	}

	body := &calendarv3.FreeBusyRequest{
		TimeMin:              req.TimeMin,
		TimeMax:              req.TimeMax,
		TimeZone:             req.TimeZone,
		CalendarExpansionMax: freeBusyExpansionMax,
	}
	for _, id := range ids {
		body.Items = append(body.Items, &calendarv3.FreeBusyRequestItem{Id: id})
	}

	raw, err := s.client.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/freeBusy",
		Body:   body,
	})
	if err != nil {
		return FreeBusyResult{}, err
	}
	return decodeFreeBusy(raw), nil
}

// FindAvailability pools the busy ranges of all requested calendars and
// suggests open slots in the window.
func (s *Service) FindAvailability(ctx context.Context, req AvailabilityRequest) (AvailabilityResult, error) {
	timeMin, err := time.Parse(time.RFC3339, req.TimeMin)
	if err != nil {
		return AvailabilityResult{}, invalidTime("time_min", err)
	}
	timeMax, err := time.Parse(time.RFC3339, req.TimeMax)
	if err != nil {
		return AvailabilityResult{}, invalidTime("time_max", err)
	}

	fb, err := s.FreeBusy(ctx, req.FreeBusyRequest)
	if err != nil {
		return AvailabilityResult{}, err
	}

	var busy []availability.Interval
	for _, ranges := range fb.Calendars {
		for _, r := range ranges {
			start, err1 := time.Parse(time.RFC3339, r.Start)
			end, err2 := time.Parse(time.RFC3339, r.End)
			if err1 != nil || err2 != nil {
				continue
			}
			busy = append(busy, availability.Interval{Start: start, End: end})
		}
	}

	duration := time.Duration(req.SlotDurationMinutes) * time.Minute
	step := time.Duration(req.SlotStepMinutes) * time.Minute
	slots := availability.SuggestSlots(timeMin, timeMax, busy, duration, step, req.MaxSlots)
	if slots == nil {
		slots = []availability.Interval{}
	}

	return AvailabilityResult{
		BusyByCalendar: fb.Calendars,
		SuggestedSlots: slots,
		TimeZone:       req.TimeZone,
	}, nil
}

// CredentialStatus reports on the stored credential without revealing it.
func (s *Service) CredentialStatus(ctx context.Context) (google.CredentialStatus, error) {
	return s.creds.Status(ctx)
}

func (s *Service) calendarID(id string) string {
	if id != "" {
		return id
	}
	return s.defaultCalendarID
}

func eventsPath(calendarID string) string {
	return "/calendars/" + url.PathEscape(calendarID) + "/events"
}

func eventPath(calendarID, eventID string) string {
	return eventsPath(calendarID) + "/" + url.PathEscape(eventID)
}

func windowQuery(timeMin, timeMax, timeZone string, maxResults int, pageToken string) url.Values {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	q := url.Values{}
	q.Set("timeMin", timeMin)
	q.Set("timeMax", timeMax)
	q.Set("timeZone", timeZone)
	q.Set("singleEvents", googleBool(true))
	q.Set("orderBy", "startTime")
	q.Set("maxResults", strconv.Itoa(maxResults))
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}
	return q
}

func sendUpdatesQuery(value string) url.Values {
	if value == "" {
		value = SendUpdatesNone
	}
	return url.Values{"sendUpdates": []string{value}}
}

func ifMatchHeaders(etag string) map[string]string {
	if etag == "" {
		return nil
	}
	return map[string]string{"If-Match": etag}
}

// eventDateTime picks the all-day form when a date is given and the timed
// form when a datetime is given. It returns nil when neither is set.
func eventDateTime(date, dateTime, timeZone string) *calendarv3.EventDateTime {
	switch {
	case date != "":
		return &calendarv3.EventDateTime{Date: date}
	case dateTime != "":
		return &calendarv3.EventDateTime{DateTime: dateTime, TimeZone: timeZone}
	default:
		return nil
	}
}

func decodePage(raw json.RawMessage) (EventPage, error) {
	var page EventPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return EventPage{}, apierror.Upstream(http.StatusBadGateway, err, "unexpected events list response")
	}
	if page.Items == nil {
		page.Items = []json.RawMessage{}
	}
	return page, nil
}

func decodeFreeBusy(raw json.RawMessage) FreeBusyResult {
	result := FreeBusyResult{Calendars: map[string][]BusyRange{}}

	var resp struct {
		Calendars map[string]json.RawMessage `json:"calendars"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return result
	}

	for id, data := range resp.Calendars {
		var cal struct {
			Busy []json.RawMessage `json:"busy"`
		}
		ranges := []BusyRange{}
		if err := json.Unmarshal(data, &cal); err == nil {
			for _, item := range cal.Busy {
				var period calendarv3.TimePeriod
				if err := json.Unmarshal(item, &period); err != nil {
					continue
				}
				if period.Start == "" || period.End == "" {
					continue
				}
				ranges = append(ranges, BusyRange{Start: period.Start, End: period.End})
			}
		}
		result.Calendars[id] = ranges
	}
	return result
}

func invalidTime(field string, err error) error {
	return apierror.Wrap(apierror.CodeValidation, http.StatusUnprocessableEntity, err,
		fmt.Sprintf("%s must be an RFC 3339 datetime with an explicit offset", field))
}
