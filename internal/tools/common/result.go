package common

import (
	"encoding/json"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/sharedcal/internal/apierror"
)

// StructuredResult returns payload as structured content, with its JSON
// encoding as the text fallback for clients that only read text.
func StructuredResult(payload map[string]any) *mcp.CallToolResult {
	text, err := json.Marshal(payload)
	if err != nil {
		return ErrorResult(apierror.Upstream(http.StatusInternalServerError, err, "unable to encode tool result"))
	}
	return mcp.NewToolResultStructured(payload, string(text))
}

// ErrorResult reports err as {"error":{code,message,http_status,context}}
// with IsError set. Errors that are not *apierror.Error are reported as
// UPSTREAM_ERROR.
func ErrorResult(err error) *mcp.CallToolResult {
	e := apierror.From(err)
	errContext := e.Context
	if errContext == nil {
		errContext = map[string]any{}
	}

	result := mcp.NewToolResultStructured(map[string]any{
		"error": map[string]any{
			"code":        string(e.Code),
			"message":     e.Message,
			"http_status": e.Status,
			"context":     errContext,
		},
	}, e.Message)
	result.IsError = true
	return result
}

// ErrorDetails returns the code and message of a result built by
// ErrorResult, or empty strings.
func ErrorDetails(result *mcp.CallToolResult) (code, message string) {
	if result == nil {
		return "", ""
	}
	payload, ok := result.StructuredContent.(map[string]any)
	if !ok {
		return "", ""
	}
	details, ok := payload["error"].(map[string]any)
	if !ok {
		return "", ""
	}
	code, _ = details["code"].(string)
	message, _ = details["message"].(string)
	return code, message
}

// IdempotentReplay reports whether a mutation result was served from the
// idempotency cache.
func IdempotentReplay(result *mcp.CallToolResult) bool {
	if result == nil {
		return false
	}
	payload, ok := result.StructuredContent.(map[string]any)
	if !ok {
		return false
	}
	replayed, _ := payload["idempotent_replay"].(bool)
	return replayed
}
