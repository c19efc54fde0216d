package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// Health status constants for health check responses.
const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
	healthStatusDegraded     = "degraded"
)

// credentialCheckTimeout bounds the credential read done by /healthz/detailed.
const credentialCheckTimeout = 5 * time.Second

// HealthChecker provides health check endpoints for Kubernetes probes.
type HealthChecker struct {
	ready         atomic.Bool
	serverContext *ServerContext
	startTime     time.Time
}

// NewHealthChecker creates a HealthChecker that starts out ready. sc may be
// nil in tests.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	h := &HealthChecker{
		serverContext: sc,
		startTime:     time.Now(),
	}
	h.ready.Store(true)
	return h
}

// SetReady sets the readiness state of the server.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady returns whether the server is ready to receive traffic.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

func (h *HealthChecker) isServerShuttingDown() bool {
	return h.serverContext != nil && h.serverContext.IsShutdown()
}

// HealthResponse represents the JSON response for health endpoints.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse adds uptime, storage locations and credential state.
type DetailedHealthResponse struct {
	Status      string            `json:"status"`
	Uptime      string            `json:"uptime"`
	Storage     map[string]string `json:"storage,omitempty"`
	Credentials *CredentialHealth `json:"credentials,omitempty"`
}

// CredentialHealth summarizes the shared credential without exposing it.
type CredentialHealth struct {
	HasRefreshToken bool   `json:"has_refresh_token"`
	HasAccessToken  bool   `json:"has_access_token"`
	Expired         bool   `json:"expired"`
	Error           string `json:"error,omitempty"`
}

// LivenessHandler returns an HTTP handler for the /healthz endpoint.
// It only reports that the process is serving requests.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: healthStatusOK})
	})
}

// ReadinessHandler returns an HTTP handler for the /readyz endpoint.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		checks := make(map[string]string)
		allOk := true

		if !h.ready.Load() {
			checks["ready"] = healthStatusNotReady
			allOk = false
		} else {
			checks["ready"] = healthStatusOK
		}

		if h.isServerShuttingDown() {
			checks["shutdown"] = healthStatusShuttingDown
			allOk = false
		} else {
			checks["shutdown"] = healthStatusOK
		}

		response := HealthResponse{Checks: checks, Status: healthStatusOK}
		status := http.StatusOK
		if !allOk {
			response.Status = healthStatusNotReady
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, response)
	})
}

// DetailedHealthHandler returns an HTTP handler for the /healthz/detailed
// endpoint. A missing refresh token degrades the status without failing the
// probe, since the server still answers tool calls with REAUTH_REQUIRED.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response := DetailedHealthResponse{
			Status: healthStatusOK,
			Uptime: time.Since(h.startTime).Truncate(time.Second).String(),
		}

		if sc := h.serverContext; sc != nil && !sc.IsShutdown() {
			if stores := sc.Stores(); stores != nil {
				response.Storage = map[string]string{
					"tokens":      stores.Tokens.Location(),
					"idempotency": stores.Idempotency.Location(),
				}
			}
			response.Credentials = h.credentialHealth(r.Context())
			if response.Credentials.Error != "" || !response.Credentials.HasRefreshToken {
				response.Status = healthStatusDegraded
			}
		}

		status := http.StatusOK
		switch {
		case !h.ready.Load():
			response.Status = healthStatusNotReady
			status = http.StatusServiceUnavailable
		case h.isServerShuttingDown():
			response.Status = healthStatusShuttingDown
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, response)
	})
}

func (h *HealthChecker) credentialHealth(ctx context.Context) *CredentialHealth {
	ctx, cancel := context.WithTimeout(ctx, credentialCheckTimeout)
	defer cancel()

	status, err := h.serverContext.Service().CredentialStatus(ctx)
	if err != nil {
		return &CredentialHealth{Error: err.Error()}
	}
	return &CredentialHealth{
		HasRefreshToken: status.HasRefreshToken,
		HasAccessToken:  status.HasAccessToken,
		Expired:         status.Expired,
	}
}

// RegisterHealthEndpoints registers health check endpoints on the given mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("/healthz", h.LivenessHandler())
	mux.Handle("/readyz", h.ReadinessHandler())
	mux.Handle("/healthz/detailed", h.DetailedHealthHandler())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
