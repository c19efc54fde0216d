package calendar_tools

import (
	"fmt"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/sharedcal/internal/server"
)

// RegisterCalendarTools registers all calendar tools with the MCP server
func RegisterCalendarTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	if s == nil {
		return fmt.Errorf("MCP server is required")
	}
	if sc == nil {
		return fmt.Errorf("server context is required")
	}

	RegisterEventTools(s, sc)
	RegisterAvailabilityTools(s, sc)
	RegisterStatusTools(s, sc)
	return nil
}
