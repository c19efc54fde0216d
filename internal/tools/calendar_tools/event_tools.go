package calendar_tools

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/sharedcal/internal/calendar"
	"github.com/teemow/sharedcal/internal/server"
	"github.com/teemow/sharedcal/internal/tools/common"
)

const (
	datetimeDescription = "RFC3339 datetime with explicit offset. Use end-user local timezone intent."
	offsetDescription   = "RFC3339 datetime with explicit offset. Offset must match timezone at that instant."
	timezoneDescription = "IANA timezone for end-user local intent (example: Europe/Kyiv). Do not assume UTC unless user explicitly requested UTC."
)

// RegisterEventTools registers the event read and write tools with the MCP server
func RegisterEventTools(s *mcpserver.MCPServer, sc *server.ServerContext) {
	listEventsTool := mcp.NewTool("list_events",
		mcp.WithDescription("List events within a required time window from a Google calendar. "+
			"Resolve ambiguous local times in the end-user timezone and do not assume UTC unless explicitly requested."),
		mcp.WithString("calendar_id",
			mcp.Description("Calendar ID (defaults to the configured shared calendar)"),
		),
		mcp.WithString("time_min",
			mcp.Required(),
			mcp.Description(datetimeDescription),
		),
		mcp.WithString("time_max",
			mcp.Required(),
			mcp.Description(datetimeDescription),
		),
		mcp.WithString("timezone",
			mcp.Required(),
			mcp.Description(timezoneDescription),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Page size (default 50)"),
			mcp.Min(minMaxResults),
			mcp.Max(maxMaxResults),
		),
		mcp.WithString("page_token",
			mcp.Description("next_page_token from a previous call"),
		),
		mcp.WithBoolean("include_deleted",
			mcp.Description("Include cancelled events"),
		),
	)

	s.AddTool(listEventsTool, common.InstrumentedToolHandler("list_events", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleListEvents(ctx, request, sc)
	}))

	searchEventsTool := mcp.NewTool("search_events",
		mcp.WithDescription("Search events by free-text query within a required time window. "+
			"Resolve ambiguous local times in the end-user timezone and do not assume UTC unless explicitly requested."),
		mcp.WithString("calendar_id",
			mcp.Description("Calendar ID (defaults to the configured shared calendar)"),
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Free-text query matched against summary, description, location and attendees"),
		),
		mcp.WithString("time_min",
			mcp.Required(),
			mcp.Description(datetimeDescription),
		),
		mcp.WithString("time_max",
			mcp.Required(),
			mcp.Description(datetimeDescription),
		),
		mcp.WithString("timezone",
			mcp.Required(),
			mcp.Description(timezoneDescription),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Page size (default 50)"),
			mcp.Min(minMaxResults),
			mcp.Max(maxMaxResults),
		),
		mcp.WithString("page_token",
			mcp.Description("next_page_token from a previous call"),
		),
	)

	s.AddTool(searchEventsTool, common.InstrumentedToolHandler("search_events", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleSearchEvents(ctx, request, sc)
	}))

	createEventTool := mcp.NewTool("create_event",
		mcp.WithDescription("Create a timed or all-day Google Calendar event with idempotent retry support. "+
			"For timed events, use start_at/end_at/timezone. For all-day events, use start_date/end_date and omit timezone. "+
			"Resolve user-local times in the end-user's timezone and pass RFC3339 datetimes with explicit offsets. "+
			"Do not assume UTC unless the user explicitly requested UTC."),
		mcp.WithString("calendar_id",
			mcp.Description("Calendar ID (defaults to the configured shared calendar)"),
		),
		mcp.WithString("summary",
			mcp.Required(),
			mcp.Description("Event title"),
			mcp.MaxLength(maxSummaryLength),
		),
		mcp.WithString("description",
			mcp.Description("Event description"),
		),
		mcp.WithString("location",
			mcp.Description("Event location"),
		),
		mcp.WithString("start_at",
			mcp.Description(offsetDescription),
		),
		mcp.WithString("end_at",
			mcp.Description(offsetDescription),
		),
		mcp.WithString("timezone",
			mcp.Description("IANA timezone for end-user local intent (example: Europe/Kyiv). Required for timed events, omitted for all-day events."),
		),
		mcp.WithString("start_date",
			mcp.Description("All-day start date in YYYY-MM-DD format. Use with end_date, omit start_at/end_at/timezone."),
		),
		mcp.WithString("end_date",
			mcp.Description("All-day exclusive end date in YYYY-MM-DD format (single-day event: next day)."),
		),
		mcp.WithArray("attendees",
			mcp.Description("Attendee email addresses"),
			mcp.Items(map[string]any{"type": "string", "format": "email"}),
		),
		mcp.WithString("send_updates",
			mcp.Description("Who receives notifications (default: none)"),
			mcp.Enum(sendUpdatesValues...),
		),
		mcp.WithString("idempotency_key",
			mcp.Required(),
			mcp.Description("Caller-chosen key; retries with the same key and arguments replay the first result"),
			mcp.MaxLength(maxIdempotencyKeyLength),
		),
	)

	s.AddTool(createEventTool, common.InstrumentedToolHandler("create_event", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleCreateEvent(ctx, request, sc)
	}))

	updateEventTool := mcp.NewTool("update_event",
		mcp.WithDescription("Update an existing timed or all-day Google Calendar event with idempotent retry support. "+
			"For timed updates, use start_at/end_at/timezone. For all-day updates, use start_date/end_date and omit timezone. "+
			"Resolve user-local times in the end-user's timezone and pass RFC3339 datetimes with explicit offsets. "+
			"Do not assume UTC unless the user explicitly requested UTC."),
		mcp.WithString("calendar_id",
			mcp.Description("Calendar ID (defaults to the configured shared calendar)"),
		),
		mcp.WithString("event_id",
			mcp.Required(),
			mcp.Description("The ID of the event to update"),
		),
		mcp.WithString("summary",
			mcp.Description("New event title"),
			mcp.MaxLength(maxSummaryLength),
		),
		mcp.WithString("description",
			mcp.Description("New event description"),
		),
		mcp.WithString("location",
			mcp.Description("New event location"),
		),
		mcp.WithString("start_at",
			mcp.Description(offsetDescription),
		),
		mcp.WithString("end_at",
			mcp.Description(offsetDescription),
		),
		mcp.WithString("timezone",
			mcp.Description("IANA timezone for end-user local intent (example: Europe/Kyiv). Required for timed updates, omitted for all-day updates."),
		),
		mcp.WithString("start_date",
			mcp.Description("All-day start date in YYYY-MM-DD format. Use with end_date, omit start_at/end_at/timezone."),
		),
		mcp.WithString("end_date",
			mcp.Description("All-day exclusive end date in YYYY-MM-DD format (single-day event: next day)."),
		),
		mcp.WithString("send_updates",
			mcp.Description("Who receives notifications (default: none)"),
			mcp.Enum(sendUpdatesValues...),
		),
		mcp.WithString("if_match_etag",
			mcp.Description("Only update if the event still has this etag"),
		),
		mcp.WithString("idempotency_key",
			mcp.Required(),
			mcp.Description("Caller-chosen key; retries with the same key and arguments replay the first result"),
			mcp.MaxLength(maxIdempotencyKeyLength),
		),
	)

	s.AddTool(updateEventTool, common.InstrumentedToolHandler("update_event", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleUpdateEvent(ctx, request, sc)
	}))

	deleteEventTool := mcp.NewTool("delete_event",
		mcp.WithDescription("Delete an event from Google Calendar with idempotent retry support."),
		mcp.WithString("calendar_id",
			mcp.Description("Calendar ID (defaults to the configured shared calendar)"),
		),
		mcp.WithString("event_id",
			mcp.Required(),
			mcp.Description("The ID of the event to delete"),
		),
		mcp.WithString("send_updates",
			mcp.Description("Who receives notifications (default: none)"),
			mcp.Enum(sendUpdatesValues...),
		),
		mcp.WithString("if_match_etag",
			mcp.Description("Only delete if the event still has this etag"),
		),
		mcp.WithString("idempotency_key",
			mcp.Required(),
			mcp.Description("Caller-chosen key; retries with the same key and arguments replay the first result"),
			mcp.MaxLength(maxIdempotencyKeyLength),
		),
	)

	s.AddTool(deleteEventTool, common.InstrumentedToolHandler("delete_event", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleDeleteEvent(ctx, request, sc)
	}))
}

func handleListEvents(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := common.NewArgs(request)
	req := calendar.ListEventsRequest{CalendarID: args.String("calendar_id")}
	window := validateWindow(args)
	req.TimeMin, req.TimeMax, req.TimeZone = window.TimeMin.raw, window.TimeMax.raw, window.TimeZone
	req.MaxResults = args.IntRange("max_results", calendar.DefaultMaxResults, minMaxResults, maxMaxResults)
	req.PageToken = args.String("page_token")
	req.IncludeDeleted = args.Bool("include_deleted")
	if err := args.Err(); err != nil {
		return common.ErrorResult(err), nil
	}

	page, err := sc.Service().ListEvents(ctx, req)
	if err != nil {
		return common.ErrorResult(err), nil
	}
	return eventPageResult(page, req.TimeZone), nil
}

func handleSearchEvents(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := common.NewArgs(request)
	req := calendar.SearchEventsRequest{CalendarID: args.String("calendar_id")}
	args.Require("query")
	req.Query = args.String("query")
	window := validateWindow(args)
	req.TimeMin, req.TimeMax, req.TimeZone = window.TimeMin.raw, window.TimeMax.raw, window.TimeZone
	req.MaxResults = args.IntRange("max_results", calendar.DefaultMaxResults, minMaxResults, maxMaxResults)
	req.PageToken = args.String("page_token")
	if err := args.Err(); err != nil {
		return common.ErrorResult(err), nil
	}

	page, err := sc.Service().SearchEvents(ctx, req)
	if err != nil {
		return common.ErrorResult(err), nil
	}
	return eventPageResult(page, req.TimeZone), nil
}

func handleCreateEvent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := common.NewArgs(request)
	req := calendar.CreateEventRequest{CalendarID: args.String("calendar_id")}
	args.Require("summary")
	args.MaxLength("summary", maxSummaryLength)
	req.Summary = args.String("summary")
	req.Description = args.String("description")
	req.Location = args.String("location")

	timing := validateTiming(args, true)
	req.StartAt, req.EndAt, req.TimeZone = timing.StartAt, timing.EndAt, timing.TimeZone
	req.StartDate, req.EndDate = timing.StartDate, timing.EndDate

	req.Attendees = validateAttendees(args)
	req.SendUpdates = validateSendUpdates(args)
	req.IdempotencyKey = validateIdempotencyKey(args)
	if err := args.Err(); err != nil {
		return common.ErrorResult(err), nil
	}

	res, err := sc.Service().CreateEvent(ctx, req)
	if err != nil {
		return common.ErrorResult(err), nil
	}
	return eventResult(res), nil
}

func handleUpdateEvent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := common.NewArgs(request)
	req := calendar.UpdateEventRequest{CalendarID: args.String("calendar_id")}
	args.Require("event_id")
	req.EventID = args.String("event_id")
	args.MaxLength("summary", maxSummaryLength)
	req.Summary = args.OptionalString("summary")
	req.Description = args.OptionalString("description")
	req.Location = args.OptionalString("location")

	timing := validateTiming(args, false)
	req.StartAt, req.EndAt, req.TimeZone = timing.StartAt, timing.EndAt, timing.TimeZone
	req.StartDate, req.EndDate = timing.StartDate, timing.EndDate

	req.SendUpdates = validateSendUpdates(args)
	req.IfMatchETag = args.String("if_match_etag")
	req.IdempotencyKey = validateIdempotencyKey(args)
	if err := args.Err(); err != nil {
		return common.ErrorResult(err), nil
	}

	res, err := sc.Service().UpdateEvent(ctx, req)
	if err != nil {
		return common.ErrorResult(err), nil
	}
	return eventResult(res), nil
}

func handleDeleteEvent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := common.NewArgs(request)
	req := calendar.DeleteEventRequest{CalendarID: args.String("calendar_id")}
	args.Require("event_id")
	req.EventID = args.String("event_id")
	req.SendUpdates = validateSendUpdates(args)
	req.IfMatchETag = args.String("if_match_etag")
	req.IdempotencyKey = validateIdempotencyKey(args)
	if err := args.Err(); err != nil {
		return common.ErrorResult(err), nil
	}

	res, err := sc.Service().DeleteEvent(ctx, req)
	if err != nil {
		return common.ErrorResult(err), nil
	}

	eventID := res.EventID
	if eventID == "" {
		eventID = req.EventID
	}
	return common.StructuredResult(map[string]any{
		"deleted":           res.Deleted,
		"event_id":          eventID,
		"idempotent_replay": res.Replayed,
	}), nil
}

func eventPageResult(page calendar.EventPage, timeZone string) *mcp.CallToolResult {
	events := page.Items
	if events == nil {
		events = []json.RawMessage{}
	}
	var nextPageToken any
	if page.NextPageToken != "" {
		nextPageToken = page.NextPageToken
	}
	return common.StructuredResult(map[string]any{
		"events":          events,
		"next_page_token": nextPageToken,
		"timezone":        timeZone,
	})
}

func eventResult(res calendar.EventResult) *mcp.CallToolResult {
	return common.StructuredResult(map[string]any{
		"event":             res.Event,
		"idempotent_replay": res.Replayed,
	})
}
