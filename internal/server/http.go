package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/sharedcal/internal/apierror"
	"github.com/teemow/sharedcal/internal/google"
	"github.com/teemow/sharedcal/internal/instrumentation"
)

// Messages returned by the bootstrap callback.
const (
	callbackMissingParams = "Missing required OAuth callback parameters."
	callbackInvalidState  = "Invalid OAuth state. Start bootstrap again."
	callbackSuccess       = "Google Calendar bootstrap completed successfully. Shared tokens were stored."
)

// HTTPServer serves the MCP streamable-HTTP endpoint, the bootstrap callback
// and the health probes on one port.
type HTTPServer struct {
	mcpServer        *mcpserver.MCPServer
	serverContext    *ServerContext
	healthChecker    *HealthChecker
	metrics          *instrumentation.Metrics
	disableStreaming bool

	mu         sync.Mutex
	httpServer *http.Server
	addr       string
}

// HTTPServerConfig configures an HTTPServer.
type HTTPServerConfig struct {
	// DisableStreaming turns off SSE streaming on /mcp for clients that
	// cannot handle it.
	DisableStreaming bool

	// HealthChecker defaults to a fresh checker bound to the server context.
	HealthChecker *HealthChecker
}

// NewHTTPServer creates an HTTPServer.
func NewHTTPServer(mcpServer *mcpserver.MCPServer, sc *ServerContext, cfg HTTPServerConfig) (*HTTPServer, error) {
	if mcpServer == nil {
		return nil, fmt.Errorf("MCP server is required")
	}
	if sc == nil {
		return nil, fmt.Errorf("server context is required")
	}
	health := cfg.HealthChecker
	if health == nil {
		health = NewHealthChecker(sc)
	}
	return &HTTPServer{
		mcpServer:        mcpServer,
		serverContext:    sc,
		healthChecker:    health,
		metrics:          sc.Metrics(),
		disableStreaming: cfg.DisableStreaming,
	}, nil
}

// HealthChecker returns the checker backing the probe endpoints.
func (s *HTTPServer) HealthChecker() *HealthChecker {
	return s.healthChecker
}

// Handler builds the routed, instrumented handler.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	opts := []mcpserver.StreamableHTTPOption{mcpserver.WithEndpointPath("/mcp")}
	if s.disableStreaming {
		opts = append(opts, mcpserver.WithDisableStreaming(true))
	}
	mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(s.mcpServer, opts...))
	mux.HandleFunc("/oauth/callback", s.handleBootstrapCallback)
	s.healthChecker.RegisterHealthEndpoints(mux)

	return instrumentHTTP(mux, s.metrics)
}

// handleBootstrapCallback completes the consent flow started by
// "sharedcal bootstrap url".
func (s *HTTPServer) handleBootstrapCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	code, state := query.Get("code"), query.Get("state")
	if code == "" || state == "" {
		if oauthErr := query.Get("error"); oauthErr != "" {
			writeText(w, http.StatusUnprocessableEntity, "Google returned an error: "+oauthErr)
			return
		}
		writeText(w, http.StatusUnprocessableEntity, callbackMissingParams)
		return
	}

	logger := s.serverContext.Logger()
	if _, err := s.serverContext.Bootstrap().Complete(r.Context(), code, state); err != nil {
		e := apierror.From(err)
		logger.Warn("Bootstrap callback failed", "error_code", string(e.Code), "error", err)
		if errors.Is(err, google.ErrInvalidState) {
			writeText(w, http.StatusUnprocessableEntity, callbackInvalidState)
			return
		}
		status := e.Status
		if status < http.StatusBadRequest {
			status = http.StatusBadGateway
		}
		writeText(w, status, e.Message)
		return
	}

	logger.Info("Bootstrap completed via callback")
	writeText(w, http.StatusOK, callbackSuccess)
}

// Start serves on addr until Shutdown.
func (s *HTTPServer) Start(addr string) error {
	return s.StartWithReadySignal(addr, nil)
}

// StartWithReadySignal binds addr, closes ready once bound, then serves.
func (s *HTTPServer) StartWithReadySignal(addr string, ready chan<- struct{}) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.mu.Lock()
	s.httpServer = srv
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	if ready != nil {
		close(ready)
	}
	return srv.Serve(ln)
}

// Addr returns the bound address once started.
func (s *HTTPServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Shutdown marks the server not ready and drains connections.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.healthChecker.SetReady(false)

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Flush keeps SSE streaming working through the wrapper.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// instrumentHTTP records http_requests_total and request duration.
func instrumentHTTP(next http.Handler, metrics *instrumentation.Metrics) http.Handler {
	if metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordHTTPRequest(r.Context(), r.Method, r.URL.Path, status, time.Since(start))
	})
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}
