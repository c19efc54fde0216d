package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/teemow/sharedcal/internal/calendar"
	"github.com/teemow/sharedcal/internal/config"
	"github.com/teemow/sharedcal/internal/google"
	"github.com/teemow/sharedcal/internal/idempotency"
	"github.com/teemow/sharedcal/internal/instrumentation"
	"github.com/teemow/sharedcal/internal/logging"
)

// Options carries the optional collaborators of a ServerContext.
type Options struct {
	// Metrics records service metrics. Nil disables recording.
	Metrics *instrumentation.Metrics

	// AuditLogger records tool invocations. Nil disables auditing.
	AuditLogger *instrumentation.AuditLogger

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Clock defaults to the real clock.
	Clock clockwork.Clock

	// HTTPClient is used for the token endpoint and the Calendar API.
	HTTPClient *http.Client
}

// ServerContext owns the wired calendar service and everything it depends on
// for the lifetime of one serve or CLI invocation.
type ServerContext struct {
	ctx         context.Context
	cancel      context.CancelFunc
	service     *calendar.Service
	tokens      *google.TokenProvider
	bootstrap   *google.Bootstrap
	metrics     *instrumentation.Metrics
	auditLogger *instrumentation.AuditLogger
	logger      *slog.Logger
	stores      *Stores
	mu          sync.RWMutex
	shutdown    bool
}

// NewServerContext builds the storage backend and the calendar service from cfg.
func NewServerContext(ctx context.Context, cfg config.Config, opts Options) (*ServerContext, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	adapter := logging.NewSlogAdapter(opts.Logger)

	stores, err := OpenStores(cfg, adapter, opts.Metrics)
	if err != nil {
		return nil, err
	}

	creds := google.NewCredentialStore(stores.Tokens, opts.Clock, adapter)
	refresherOpts := []google.RefresherOption{
		google.WithLogger(adapter),
		google.WithRefreshRecorder(opts.Metrics),
	}
	if opts.HTTPClient != nil {
		refresherOpts = append(refresherOpts, google.WithHTTPClient(opts.HTTPClient))
	}
	refresher := google.NewRefresher(google.OAuthConfig{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		RedirectURL:  cfg.OAuth.RedirectURL,
		AuthURL:      cfg.OAuth.AuthURL,
		TokenURL:     cfg.OAuth.TokenURL,
	}, creds, refresherOpts...)
	tokens := google.NewTokenProvider(creds, refresher)

	client := calendar.NewClient(tokens, calendar.ClientConfig{
		BaseURL:    cfg.Calendar.BaseURL,
		Timeout:    cfg.Calendar.RequestTimeout,
		HTTPClient: opts.HTTPClient,
		Recorder:   opts.Metrics,
		Logger:     adapter,
	})
	cache := idempotency.New(stores.Idempotency, idempotency.Config{
		TTL:      cfg.Idempotency.TTL,
		Clock:    opts.Clock,
		Recorder: opts.Metrics,
		Logger:   adapter,
	})
	service := calendar.NewService(client, cache, tokens, calendar.ServiceConfig{
		DefaultCalendarID: cfg.Calendar.DefaultID,
		Logger:            adapter,
	})

	shutdownCtx, cancel := context.WithCancel(ctx)
	return &ServerContext{
		ctx:         shutdownCtx,
		cancel:      cancel,
		service:     service,
		tokens:      tokens,
		bootstrap:   google.NewBootstrap(google.NewStateStore(stores.State, opts.Clock), refresher),
		metrics:     opts.Metrics,
		auditLogger: opts.AuditLogger,
		logger:      opts.Logger,
		stores:      stores,
	}, nil
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Service returns the calendar service.
func (sc *ServerContext) Service() *calendar.Service {
	return sc.service
}

// Tokens returns the access token provider.
func (sc *ServerContext) Tokens() *google.TokenProvider {
	return sc.tokens
}

// Bootstrap returns the consent flow driver.
func (sc *ServerContext) Bootstrap() *google.Bootstrap {
	return sc.bootstrap
}

// Metrics returns the metrics recorder, or nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.metrics
}

// AuditLogger returns the audit logger, or nil.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.auditLogger
}

// Logger returns the process logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// Stores returns the opened storage documents.
func (sc *ServerContext) Stores() *Stores {
	return sc.stores
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the context and releases the storage backend. It is safe
// to call more than once.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	if err := sc.stores.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}
	return nil
}
