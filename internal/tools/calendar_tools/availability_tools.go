package calendar_tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/sharedcal/internal/availability"
	"github.com/teemow/sharedcal/internal/calendar"
	"github.com/teemow/sharedcal/internal/server"
	"github.com/teemow/sharedcal/internal/tools/common"
)

// RegisterAvailabilityTools registers the scheduling tools with the MCP server
func RegisterAvailabilityTools(s *mcpserver.MCPServer, sc *server.ServerContext) {
	findAvailabilityTool := mcp.NewTool("find_availability",
		mcp.WithDescription("Find busy windows and suggest open slots for scheduling in a required time range. "+
			"Resolve ambiguous local times in the end-user timezone and do not assume UTC unless explicitly requested."),
		mcp.WithString("calendar_id",
			mcp.Description("Calendar ID (defaults to the configured shared calendar)"),
		),
		mcp.WithArray("calendar_ids",
			mcp.Description("Calendars whose busy times are pooled; overrides calendar_id"),
			mcp.Items(map[string]any{"type": "string"}),
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
		mcp.WithNumber("slot_duration_minutes",
			mcp.Required(),
			mcp.Description("Length of each suggested slot in minutes"),
			mcp.Min(minSlotMinutes),
			mcp.Max(maxSlotMinutes),
		),
		mcp.WithNumber("slot_step_minutes",
			mcp.Description("Distance between candidate slot starts in minutes (default: slot duration)"),
			mcp.Min(minSlotMinutes),
			mcp.Max(maxSlotMinutes),
		),
		mcp.WithNumber("max_slots",
			mcp.Description("Maximum number of suggestions (default 50)"),
			mcp.Min(minMaxSlots),
			mcp.Max(maxMaxSlots),
		),
	)

	s.AddTool(findAvailabilityTool, common.InstrumentedToolHandler("find_availability", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleFindAvailability(ctx, request, sc)
	}))
}

func handleFindAvailability(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := common.NewArgs(request)
	var req calendar.AvailabilityRequest
	req.CalendarID = args.String("calendar_id")
	req.CalendarIDs = args.Strings("calendar_ids")
	window := validateWindow(args)
	req.TimeMin, req.TimeMax, req.TimeZone = window.TimeMin.raw, window.TimeMax.raw, window.TimeZone

	args.Require("slot_duration_minutes")
	req.SlotDurationMinutes = args.IntRange("slot_duration_minutes", 0, minSlotMinutes, maxSlotMinutes)
	req.SlotStepMinutes = args.IntRange("slot_step_minutes", req.SlotDurationMinutes, minSlotMinutes, maxSlotMinutes)
	req.MaxSlots = args.IntRange("max_slots", availability.DefaultMaxSlots, minMaxSlots, maxMaxSlots)
	if err := args.Err(); err != nil {
		return common.ErrorResult(err), nil
	}

	res, err := sc.Service().FindAvailability(ctx, req)
	if err != nil {
		return common.ErrorResult(err), nil
	}
	return common.StructuredResult(map[string]any{
		"busy_by_calendar": res.BusyByCalendar,
		"suggested_slots":  res.SuggestedSlots,
		"timezone":         res.TimeZone,
	}), nil
}
