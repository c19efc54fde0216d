package apierror

import (
	"encoding/json"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
)

// DefaultMessage is used when a failed response carries no body at all.
const DefaultMessage = "Google Calendar API request failed."

// Context keys attached to classified errors.
const (
	ContextGoogleReason = "google_reason"
	ContextOAuthError   = "oauth_error"
)

// rateLimitReasons are the 403 reasons Google uses for quota exhaustion.
var rateLimitReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"quotaExceeded":         true,
}

type googleErrorEnvelope struct {
	Error *googleapi.Error `json:"error"`
}

type oauthErrorEnvelope struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Classify maps a failed remote response onto the domain taxonomy.
// It never returns nil.
func Classify(status int, body []byte) *Error {
	reason, message, oauthCode := parseBody(body)

	e := New(codeFor(status, reason), status, message)
	e.Context[ContextGoogleReason] = reason
	if oauthCode != "" {
		e.Context[ContextOAuthError] = oauthCode
	}
	return e
}

func codeFor(status int, reason string) Code {
	switch {
	case status == http.StatusBadRequest:
		return CodeValidation
	case status == http.StatusUnauthorized:
		return CodeReauthRequired
	case status == http.StatusForbidden && rateLimitReasons[reason]:
		return CodeRateLimited
	case status == http.StatusForbidden:
		return CodeForbidden
	case status == http.StatusNotFound:
		return CodeNotFound
	case status == http.StatusConflict:
		return CodeConflict
	case status == http.StatusTooManyRequests:
		return CodeRateLimited
	default:
		return CodeUpstream
	}
}

// parseBody extracts the primary reason and message. Google API errors use
// {"error":{"message":..., "errors":[{"reason":...}]}}; the OAuth token
// endpoint uses {"error":"...", "error_description":"..."}.
func parseBody(body []byte) (reason, message, oauthCode string) {
	message = DefaultMessage
	if len(strings.TrimSpace(string(body))) == 0 {
		return "", message, ""
	}
	message = string(body)

	var env googleErrorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		if len(env.Error.Errors) > 0 {
			reason = env.Error.Errors[0].Reason
		}
		if env.Error.Message != "" {
			message = env.Error.Message
		}
		return reason, message, ""
	}

	var oauthEnv oauthErrorEnvelope
	if err := json.Unmarshal(body, &oauthEnv); err == nil && oauthEnv.Error != "" {
		if oauthEnv.ErrorDescription != "" {
			message = oauthEnv.ErrorDescription
		}
		return "", message, oauthEnv.Error
	}

	return "", message, ""
}
