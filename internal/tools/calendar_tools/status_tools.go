package calendar_tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/sharedcal/internal/server"
	"github.com/teemow/sharedcal/internal/tools/common"
)

// RegisterStatusTools registers the credential diagnostics tool
func RegisterStatusTools(s *mcpserver.MCPServer, sc *server.ServerContext) {
	tokenStatusTool := mcp.NewTool("token_status",
		mcp.WithDescription("Show whether the shared Google Calendar credential is present and when its access token expires. Token values are never returned."),
	)

	s.AddTool(tokenStatusTool, common.InstrumentedToolHandler("token_status", sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleTokenStatus(ctx, sc)
	}))
}

func handleTokenStatus(ctx context.Context, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	status, err := sc.Service().CredentialStatus(ctx)
	if err != nil {
		return common.ErrorResult(err), nil
	}

	var expiresAt any
	if status.ExpiresAt != nil {
		expiresAt = status.ExpiresAt.UTC().Format(time.RFC3339)
	}
	var scope any
	if status.Scope != "" {
		scope = status.Scope
	}
	return common.StructuredResult(map[string]any{
		"token_file":        status.TokenFile,
		"has_access_token":  status.HasAccessToken,
		"has_refresh_token": status.HasRefreshToken,
		"expires_at":        expiresAt,
		"expired":           status.Expired,
		"scope":             scope,
	}), nil
}
