package calendar

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/sharedcal/internal/apierror"
	"github.com/teemow/sharedcal/internal/google"
	"github.com/teemow/sharedcal/internal/idempotency"
	"github.com/teemow/sharedcal/internal/storage"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  map[string][]string
	Header http.Header
	Body   string
}

// fakeCalendarAPI records requests and answers them with the handler's
// status and body.
type fakeCalendarAPI struct {
	mu       sync.Mutex
	requests []recordedRequest
	respond  func(r recordedRequest) (int, string)
}

func (f *fakeCalendarAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	req := recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
		Body:   string(body),
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	status, out := f.respond(req)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(out))
}

type fakeStatus struct{}

func (fakeStatus) Status(context.Context) (google.CredentialStatus, error) {
	return google.CredentialStatus{TokenFile: "/tmp/tokens.json", HasRefreshToken: true}, nil
}

func newTestService(t *testing.T, respond func(r recordedRequest) (int, string)) (*Service, *fakeCalendarAPI) {
	t.Helper()
	api := &fakeCalendarAPI{respond: respond}
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	fs, err := storage.NewFileStore(storage.FileConfig{
		Path:        filepath.Join(t.TempDir(), "idempotency.json"),
		LockTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	cache := idempotency.New(fs, idempotency.Config{
		Clock: clockwork.NewFakeClockAt(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)),
	})

	client := NewClient(&fakeTokens{current: "tok"}, ClientConfig{BaseURL: server.URL, Timeout: 5 * time.Second})
	return NewService(client, cache, fakeStatus{}, ServiceConfig{}), api
}

func ok(body string) func(recordedRequest) (int, string) {
	return func(recordedRequest) (int, string) { return http.StatusOK, body }
}

func TestService_ListEvents(t *testing.T) {
	svc, api := newTestService(t, ok(`{"items":[{"id":"a"},{"id":"b"}],"nextPageToken":"next"}`))

	page, err := svc.ListEvents(context.Background(), ListEventsRequest{
		TimeMin:        "2025-03-10T00:00:00+01:00",
		TimeMax:        "2025-03-11T00:00:00+01:00",
		TimeZone:       "Europe/Berlin",
		IncludeDeleted: true,
		PageToken:      "p1",
	})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, "next", page.NextPageToken)

	require.Len(t, api.requests, 1)
	req := api.requests[0]
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/calendars/primary/events", req.Path)
	assert.Equal(t, "2025-03-10T00:00:00+01:00", req.Query["timeMin"][0])
	assert.Equal(t, "2025-03-11T00:00:00+01:00", req.Query["timeMax"][0])
	assert.Equal(t, "Europe/Berlin", req.Query["timeZone"][0])
	assert.Equal(t, "true", req.Query["singleEvents"][0])
	assert.Equal(t, "startTime", req.Query["orderBy"][0])
	assert.Equal(t, "50", req.Query["maxResults"][0])
	assert.Equal(t, "true", req.Query["showDeleted"][0])
	assert.Equal(t, "p1", req.Query["pageToken"][0])
}

func TestService_SearchEvents(t *testing.T) {
	svc, api := newTestService(t, ok(`{}`))

	page, err := svc.SearchEvents(context.Background(), SearchEventsRequest{
		CalendarID: "team@group.calendar.google.com",
		Query:      "retro",
		TimeMin:    "2025-03-10T00:00:00Z",
		TimeMax:    "2025-03-11T00:00:00Z",
		TimeZone:   "UTC",
		MaxResults: 10,
	})
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)

	req := api.requests[0]
	assert.Equal(t, "/calendars/team@group.calendar.google.com/events", req.Path)
	assert.Equal(t, "retro", req.Query["q"][0])
	assert.Equal(t, "10", req.Query["maxResults"][0])
	assert.NotContains(t, req.Query, "showDeleted")
	assert.NotContains(t, req.Query, "pageToken")
}

func TestService_CreateEvent(t *testing.T) {
	svc, api := newTestService(t, ok(`{"id":"created","status":"confirmed"}`))
	ctx := context.Background()

	req := CreateEventRequest{
		Summary:        "Standup",
		StartAt:        "2025-03-10T10:00:00+01:00",
		EndAt:          "2025-03-10T10:15:00+01:00",
		TimeZone:       "Europe/Berlin",
		Attendees:      []string{"a@example.com"},
		IdempotencyKey: "standup-0310",
	}

	first, err := svc.CreateEvent(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)
	assert.JSONEq(t, `{"id":"created","status":"confirmed"}`, string(first.Event))

	second, err := svc.CreateEvent(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.JSONEq(t, string(first.Event), string(second.Event))

	require.Len(t, api.requests, 1)
	sent := api.requests[0]
	assert.Equal(t, http.MethodPost, sent.Method)
	assert.Equal(t, "none", sent.Query["sendUpdates"][0])

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(sent.Body), &body))
	assert.Equal(t, EventIDForKey("standup-0310"), body["id"])
	assert.Equal(t, "Standup", body["summary"])
	assert.Equal(t, map[string]any{"dateTime": "2025-03-10T10:00:00+01:00", "timeZone": "Europe/Berlin"}, body["start"])
	assert.Equal(t, []any{map[string]any{"email": "a@example.com"}}, body["attendees"])
	assert.NotContains(t, body, "description")
}

func TestService_CreateEvent_AllDay(t *testing.T) {
	svc, api := newTestService(t, ok(`{"id":"x"}`))

	_, err := svc.CreateEvent(context.Background(), CreateEventRequest{
		Summary:        "Offsite",
		StartDate:      "2025-03-10",
		EndDate:        "2025-03-12",
		SendUpdates:    SendUpdatesAll,
		IdempotencyKey: "offsite",
	})
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(api.requests[0].Body), &body))
	assert.Equal(t, map[string]any{"date": "2025-03-10"}, body["start"])
	assert.Equal(t, map[string]any{"date": "2025-03-12"}, body["end"])
	assert.Equal(t, "all", api.requests[0].Query["sendUpdates"][0])
}

func TestService_CreateEvent_ConflictFetchesExisting(t *testing.T) {
	eventID := EventIDForKey("lost-response")
	svc, api := newTestService(t, func(r recordedRequest) (int, string) {
		if r.Method == http.MethodPost {
			return http.StatusConflict, `{"error":{"code":409,"message":"The requested identifier already exists.","errors":[{"reason":"duplicate"}]}}`
		}
		return http.StatusOK, `{"id":"` + eventID + `","summary":"Standup"}`
	})

	res, err := svc.CreateEvent(context.Background(), CreateEventRequest{
		Summary:        "Standup",
		StartAt:        "2025-03-10T10:00:00+01:00",
		EndAt:          "2025-03-10T10:15:00+01:00",
		TimeZone:       "Europe/Berlin",
		IdempotencyKey: "lost-response",
	})
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.JSONEq(t, `{"id":"`+eventID+`","summary":"Standup"}`, string(res.Event))

	require.Len(t, api.requests, 2)
	assert.Equal(t, http.MethodGet, api.requests[1].Method)
	assert.Equal(t, "/calendars/primary/events/"+eventID, api.requests[1].Path)
}

func TestService_CreateEvent_OtherErrorsPropagate(t *testing.T) {
	svc, api := newTestService(t, func(recordedRequest) (int, string) {
		return http.StatusForbidden, `{"error":{"code":403,"message":"Forbidden","errors":[{"reason":"forbidden"}]}}`
	})

	_, err := svc.CreateEvent(context.Background(), CreateEventRequest{Summary: "x", StartDate: "2025-03-10", EndDate: "2025-03-11", IdempotencyKey: "k"})
	require.Error(t, err)
	assert.Equal(t, apierror.CodeForbidden, apierror.CodeOf(err))
	assert.Len(t, api.requests, 1)
}

func TestService_UpdateEvent(t *testing.T) {
	svc, api := newTestService(t, ok(`{"id":"evt","summary":"Renamed"}`))
	summary := "Renamed"
	empty := ""

	res, err := svc.UpdateEvent(context.Background(), UpdateEventRequest{
		EventID:        "evt",
		Summary:        &summary,
		Description:    &empty,
		IfMatchETag:    `"3181161784712000"`,
		IdempotencyKey: "rename",
	})
	require.NoError(t, err)
	assert.False(t, res.Replayed)

	sent := api.requests[0]
	assert.Equal(t, http.MethodPatch, sent.Method)
	assert.Equal(t, "/calendars/primary/events/evt", sent.Path)
	assert.Equal(t, `"3181161784712000"`, sent.Header.Get("If-Match"))
	assert.JSONEq(t, `{"summary":"Renamed","description":""}`, sent.Body)
}

func TestService_UpdateEvent_Times(t *testing.T) {
	svc, api := newTestService(t, ok(`{"id":"evt"}`))

	_, err := svc.UpdateEvent(context.Background(), UpdateEventRequest{
		EventID:        "evt",
		StartAt:        "2025-03-10T11:00:00+01:00",
		EndAt:          "2025-03-10T12:00:00+01:00",
		TimeZone:       "Europe/Berlin",
		IdempotencyKey: "move",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"start":{"dateTime":"2025-03-10T11:00:00+01:00","timeZone":"Europe/Berlin"},
		"end":{"dateTime":"2025-03-10T12:00:00+01:00","timeZone":"Europe/Berlin"}
	}`, api.requests[0].Body)
	assert.Empty(t, api.requests[0].Header.Get("If-Match"))
}

func TestService_DeleteEvent(t *testing.T) {
	svc, api := newTestService(t, func(recordedRequest) (int, string) { return http.StatusNoContent, "" })
	ctx := context.Background()
	req := DeleteEventRequest{EventID: "evt", SendUpdates: SendUpdatesExternalOnly, IdempotencyKey: "del"}

	first, err := svc.DeleteEvent(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, DeleteResult{Deleted: true, EventID: "evt"}, first)

	second, err := svc.DeleteEvent(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, "evt", second.EventID)

	require.Len(t, api.requests, 1)
	assert.Equal(t, http.MethodDelete, api.requests[0].Method)
	assert.Equal(t, "externalOnly", api.requests[0].Query["sendUpdates"][0])
}

func TestService_DeleteEvent_NotFound(t *testing.T) {
	svc, _ := newTestService(t, func(recordedRequest) (int, string) {
		return http.StatusNotFound, `{"error":{"code":404,"message":"Not Found"}}`
	})

	_, err := svc.DeleteEvent(context.Background(), DeleteEventRequest{EventID: "gone", IdempotencyKey: "k"})
	require.Error(t, err)
	assert.Equal(t, apierror.CodeNotFound, apierror.CodeOf(err))
}

func TestService_FreeBusy(t *testing.T) {
	svc, api := newTestService(t, ok(`{
		"calendars": {
			"a@example.com": {"busy": [
				{"start":"2025-03-10T10:00:00+01:00","end":"2025-03-10T11:00:00+01:00"},
				{"start":"2025-03-10T12:00:00+01:00"},
				"garbage"
			]},
			"b@example.com": {"errors": [{"domain":"global","reason":"notFound"}]}
		}
	}`))

	res, err := svc.FreeBusy(context.Background(), FreeBusyRequest{
		CalendarID:  "ignored",
		CalendarIDs: []string{"a@example.com", "", "b@example.com"},
		TimeMin:     "2025-03-10T09:00:00+01:00",
		TimeMax:     "2025-03-10T13:00:00+01:00",
		TimeZone:    "Europe/Berlin",
	})
	require.NoError(t, err)
	assert.Equal(t, []BusyRange{{Start: "2025-03-10T10:00:00+01:00", End: "2025-03-10T11:00:00+01:00"}}, res.Calendars["a@example.com"])
	assert.Empty(t, res.Calendars["b@example.com"])

	sent := api.requests[0]
	assert.Equal(t, "/freeBusy", sent.Path)
	assert.JSONEq(t, `{
		"timeMin":"2025-03-10T09:00:00+01:00",
		"timeMax":"2025-03-10T13:00:00+01:00",
		"timeZone":"Europe/Berlin",
		"items":[{"id":"a@example.com"},{"id":"b@example.com"}],
		"calendarExpansionMax":50
	}`, sent.Body)
}

func TestService_FreeBusy_DefaultsToConfiguredCalendar(t *testing.T) {
	svc, api := newTestService(t, ok(`{"calendars":{}}`))

	_, err := svc.FreeBusy(context.Background(), FreeBusyRequest{TimeMin: "a", TimeMax: "b", TimeZone: "UTC"})
	require.NoError(t, err)
	assert.True(t, strings.Contains(api.requests[0].Body, `"items":[{"id":"primary"}]`))
}

func TestService_FindAvailability(t *testing.T) {
	svc, _ := newTestService(t, ok(`{"calendars":{"primary":{"busy":[
		{"start":"2025-03-10T10:00:00+01:00","end":"2025-03-10T11:00:00+01:00"}
	]}}}`))

	res, err := svc.FindAvailability(context.Background(), AvailabilityRequest{
		FreeBusyRequest: FreeBusyRequest{
			TimeMin:  "2025-03-10T09:00:00+01:00",
			TimeMax:  "2025-03-10T13:00:00+01:00",
			TimeZone: "Europe/Berlin",
		},
		SlotDurationMinutes: 30,
	})
	require.NoError(t, err)
	assert.Len(t, res.SuggestedSlots, 6)
	assert.Equal(t, "Europe/Berlin", res.TimeZone)
	assert.Len(t, res.BusyByCalendar["primary"], 1)

	data, err := json.Marshal(res.SuggestedSlots[2])
	require.NoError(t, err)
	assert.JSONEq(t, `{"start":"2025-03-10T11:00:00+01:00","end":"2025-03-10T11:30:00+01:00"}`, string(data))
}

func TestService_FindAvailability_InvalidWindow(t *testing.T) {
	svc, api := newTestService(t, ok(`{}`))

	_, err := svc.FindAvailability(context.Background(), AvailabilityRequest{
		FreeBusyRequest:     FreeBusyRequest{TimeMin: "tomorrow", TimeMax: "2025-03-10T13:00:00Z"},
		SlotDurationMinutes: 30,
	})
	require.Error(t, err)
	assert.Equal(t, apierror.CodeValidation, apierror.CodeOf(err))
	assert.Empty(t, api.requests)
}

func TestService_CredentialStatus(t *testing.T) {
	svc, _ := newTestService(t, ok(`{}`))

	status, err := svc.CredentialStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, status.HasRefreshToken)
	assert.Equal(t, "primary", svc.DefaultCalendarID())
}

func TestEventIDForKey(t *testing.T) {
	id := EventIDForKey("standup-0310")
	assert.Len(t, id, 32)
	assert.True(t, strings.HasPrefix(id, "mcp"))
	assert.Equal(t, strings.ToLower(id), id)
	assert.Equal(t, id, EventIDForKey("standup-0310"))
	assert.NotEqual(t, id, EventIDForKey("standup-0311"))
}
