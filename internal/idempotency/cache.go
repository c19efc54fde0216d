package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/teemow/sharedcal/internal/apierror"
	"github.com/teemow/sharedcal/internal/logging"
	"github.com/teemow/sharedcal/internal/storage"
)

// DefaultTTL is how long a stored response is replayed.
const DefaultTTL = 24 * time.Hour

// Outcomes reported to the Recorder.
const (
	ResultExecuted = "executed"
	ResultReplayed = "replayed"
	ResultFailed   = "failed"
)

// Resolver performs the side effect and returns the response to store.
type Resolver func(ctx context.Context) (json.RawMessage, error)

// Result is the outcome of Run.
type Result struct {
	// Replayed is true when Response came from the table and the resolver
	// was not called.
	Replayed bool
	Response json.RawMessage
}

// Recorder receives one outcome per Run call.
type Recorder interface {
	RecordIdempotencyRequest(ctx context.Context, operation, result string)
}

// Config holds the optional collaborators of a Cache.
type Config struct {
	TTL      time.Duration
	Clock    clockwork.Clock
	Recorder Recorder
	Logger   logging.Logger
}

// Cache is a persistent idempotency table on a storage.Store.
type Cache struct {
	store    storage.Store
	ttl      time.Duration
	clock    clockwork.Clock
	recorder Recorder
	logger   logging.Logger
}

// New creates a Cache. Zero values in cfg fall back to DefaultTTL, the real
// clock and the default logger.
func New(store storage.Store, cfg Config) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.DefaultLogger()
	}
	return &Cache{
		store:    store,
		ttl:      cfg.TTL,
		clock:    cfg.Clock,
		recorder: cfg.Recorder,
		logger:   cfg.Logger,
	}
}

// Location describes where the table is persisted.
func (c *Cache) Location() string {
	return c.store.Location()
}

type entry struct {
	ExpiresAt time.Time       `json:"expires_at"`
	Response  json.RawMessage `json:"response"`
}

type table struct {
	Entries map[string]entry `json:"entries"`
}

// Run returns the stored response for (operation, token, payload) if a live
// entry exists, and otherwise calls resolve and stores its response.
//
// The table lock is held while resolve runs, so concurrent callers with the
// same key wait and then replay. When resolve fails its error is returned
// unchanged and nothing is written.
func (c *Cache) Run(ctx context.Context, operation, token string, payload any, resolve Resolver) (Result, error) {
	key, err := Key(operation, token, payload)
	if err != nil {
		c.record(ctx, operation, ResultFailed)
		return Result{}, apierror.Upstream(http.StatusInternalServerError, err, "unable to encode idempotency payload")
	}

	var (
		result     Result
		resolveErr error
	)
	err = c.store.Update(ctx, func(current []byte) ([]byte, error) {
		now := c.clock.Now()
		t := c.decode(current)
		prune(t, now)

		if e, ok := t.Entries[key]; ok {
			result = Result{Replayed: true, Response: e.Response}
			return encode(t)
		}

		response, err := resolve(ctx)
		if err != nil {
			resolveErr = err
			return nil, err
		}
		if len(response) == 0 {
			response = json.RawMessage("{}")
		}

		t.Entries[key] = entry{ExpiresAt: now.Add(c.ttl).UTC(), Response: response}
		result = Result{Response: response}
		return encode(t)
	})

	switch {
	case resolveErr != nil:
		c.record(ctx, operation, ResultFailed)
		return Result{}, resolveErr
	case err != nil:
		c.record(ctx, operation, ResultFailed)
		c.logger.Error("Idempotency table update failed",
			logging.KeyOperation, operation,
			logging.KeyIdempotencyKey, logging.HashIdempotencyKey(token),
			logging.KeyError, err)
		if _, ok := apierror.As(err); ok {
			return Result{}, err
		}
		return Result{}, apierror.Upstream(http.StatusInternalServerError, err, "idempotency storage is unavailable")
	}

	if result.Replayed {
		c.record(ctx, operation, ResultReplayed)
		c.logger.Info("Replaying stored response",
			logging.KeyOperation, operation,
			logging.KeyIdempotencyKey, logging.HashIdempotencyKey(token))
	} else {
		c.record(ctx, operation, ResultExecuted)
	}
	return result, nil
}

// Key derives the composite table key: the hex SHA-256 of the JSON encoding
// of {operation, idempotency_key, payload}.
func Key(operation, token string, payload any) (string, error) {
	data, err := json.Marshal(struct {
		Operation      string `json:"operation"`
		IdempotencyKey string `json:"idempotency_key"`
		Payload        any    `json:"payload"`
	}{operation, token, payload})
	if err != nil {
		return "", fmt.Errorf("failed to encode idempotency key: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// decode reads the table, dropping anything it cannot parse.
func (c *Cache) decode(data []byte) *table {
	t := &table{Entries: map[string]entry{}}
	if len(strings.TrimSpace(string(data))) == 0 {
		return t
	}

	var raw struct {
		Entries map[string]json.RawMessage `json:"entries"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		c.logger.Warn("Ignoring unreadable idempotency table", "location", c.store.Location(), "error", err)
		return t
	}
	for key, value := range raw.Entries {
		var e entry
		if err := json.Unmarshal(value, &e); err != nil {
			continue
		}
		if e.ExpiresAt.IsZero() || len(e.Response) == 0 || string(e.Response) == "null" {
			continue
		}
		t.Entries[key] = e
	}
	return t
}

func prune(t *table, now time.Time) {
	for key, e := range t.Entries {
		if !e.ExpiresAt.After(now) {
			delete(t.Entries, key)
		}
	}
}

func encode(t *table) ([]byte, error) {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode idempotency table: %w", err)
	}
	return data, nil
}

func (c *Cache) record(ctx context.Context, operation, result string) {
	if c.recorder != nil {
		c.recorder.RecordIdempotencyRequest(ctx, operation, result)
	}
}
