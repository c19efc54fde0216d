package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/sharedcal/internal/config"
	"github.com/teemow/sharedcal/internal/instrumentation"
	"github.com/teemow/sharedcal/internal/logging"
	"github.com/teemow/sharedcal/internal/server"
	"github.com/teemow/sharedcal/internal/tools/calendar_tools"
)

const (
	metricsStartupTimeout = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
)

func newServeCmd() *cobra.Command {
	var disableStreaming bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server exposing the shared calendar
tools to AI assistants.

Supports multiple transport types:
  - stdio: Standard input/output (default)
  - streamable-http: Streamable HTTP transport on /mcp

The streamable-http transport also serves the OAuth bootstrap callback on
/oauth/callback and health probes on /healthz, /readyz and /health.

The shared credential must have been bootstrapped first:
  sharedcal bootstrap url
  sharedcal bootstrap exchange --code CODE --state STATE`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cfg, disableStreaming)
		},
	}

	cmd.Flags().String("transport", config.TransportStdio, "Transport type: stdio or streamable-http")
	cmd.Flags().String("http-addr", ":8080", "HTTP server address (for streamable-http transport)")
	cmd.Flags().BoolVar(&disableStreaming, "disable-streaming", false, "Disable streaming for HTTP transport (for compatibility with certain clients)")
	cmd.Flags().Bool("metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().String("metrics-addr", ":9090", "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

// serveLogWriter keeps stdout free for the protocol on the stdio transport.
func serveLogWriter(transport string) io.Writer {
	if transport == config.TransportStdio {
		return os.Stderr
	}
	return os.Stdout
}

func runServe(cfg config.Config, disableStreaming bool) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, serveLogWriter(cfg.Server.Transport))
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Warn("Error during instrumentation shutdown", logging.Err(err))
		}
	}()

	// The metrics port is only useful next to a long-running HTTP server.
	if cfg.Server.Transport != config.TransportStdio && cfg.Server.MetricsEnabled && provider.Enabled() {
		metricsServer, err := startMetricsServer(provider, cfg.Server.MetricsAddr)
		if err != nil {
			return err
		}
		logger.Info("Metrics server started", "addr", metricsServer.Addr())
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(ctx); err != nil {
				logger.Warn("Error during metrics server shutdown", logging.Err(err))
			}
		}()
	}

	opts := server.Options{Logger: logger}
	if provider.Enabled() {
		opts.Metrics = provider.Metrics()
		opts.AuditLogger = instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging)
	}
	serverContext, err := server.NewServerContext(shutdownCtx, cfg, opts)
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Warn("Error during server context shutdown", logging.Err(err))
		}
	}()

	mcpSrv := newMCPServer()
	if err := calendar_tools.RegisterCalendarTools(mcpSrv, serverContext); err != nil {
		return fmt.Errorf("failed to register calendar tools: %w", err)
	}

	logger.Info("Starting sharedcal MCP server",
		"transport", cfg.Server.Transport,
		"version", version,
		"storage", cfg.Storage.Type,
		"default_calendar", cfg.Calendar.DefaultID)

	switch cfg.Server.Transport {
	case config.TransportStdio:
		return runStdioServer(mcpSrv)
	case config.TransportStreamableHTTP:
		return runStreamableHTTPServer(shutdownCtx, mcpSrv, serverContext, cfg.Server.HTTPAddr, disableStreaming, logger)
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", cfg.Server.Transport)
	}
}

func newMCPServer() *mcpserver.MCPServer {
	return mcpserver.NewMCPServer("sharedcal", version,
		mcpserver.WithToolCapabilities(true),
	)
}

func startMetricsServer(provider *instrumentation.Provider, addr string) (*server.MetricsServer, error) {
	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    addr,
		Enabled:                 true,
		InstrumentationProvider: provider,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}

	// Use ready channel to confirm metrics server started successfully
	metricsReady := make(chan struct{})
	metricsErr := make(chan error, 1)
	go func() {
		if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && err != http.ErrServerClosed {
			metricsErr <- err
		}
		close(metricsErr)
	}()

	select {
	case <-metricsReady:
		return metricsServer, nil
	case err := <-metricsErr:
		return nil, fmt.Errorf("metrics server failed to start: %w", err)
	case <-time.After(metricsStartupTimeout):
		return nil, fmt.Errorf("metrics server startup timed out")
	}
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	err := <-serverDone
	if err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

func runStreamableHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, addr string, disableStreaming bool, logger *slog.Logger) error {
	httpServer, err := server.NewHTTPServer(mcpSrv, sc, server.HTTPServerConfig{
		DisableStreaming: disableStreaming,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	ready := make(chan struct{})
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.StartWithReadySignal(addr, ready); err != nil && err != http.ErrServerClosed {
			serverDone <- err
		}
	}()

	select {
	case <-ready:
		logger.Info("Streamable HTTP server listening",
			"addr", httpServer.Addr(),
			"mcp_endpoint", "/mcp",
			"callback_endpoint", "/oauth/callback",
			"health_endpoints", "/healthz, /readyz, /health")
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
		return nil
	}

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received, stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
		logger.Info("HTTP server stopped normally")
	}

	logger.Info("HTTP server gracefully stopped")
	return nil
}
