package storage

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/valkey-io/valkey-go"

	"github.com/teemow/sharedcal/internal/logging"
)

const (
	// DefaultValkeyKeyPrefix namespaces every key written by this service.
	DefaultValkeyKeyPrefix = "sharedcal:"

	// DefaultValkeyLockTTL is the expiry of a lock key. A live holder renews
	// it every third of the TTL, so it only bounds how long a crashed holder
	// blocks others.
	DefaultValkeyLockTTL = 30 * time.Second

	// minValkeyLockTTL keeps the renewal interval well above a round trip.
	minValkeyLockTTL = time.Second
)

// releaseScript deletes the lock only if it is still owned by the caller.
var releaseScript = valkey.NewLuaScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript resets the lock expiry only if it is still owned by the caller.
var extendScript = valkey.NewLuaScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// writeScript sets the document only while the caller owns the lock.
// KEYS[1] is the document, KEYS[2] the lock.
var writeScript = valkey.NewLuaScript(`
if redis.call("GET", KEYS[2]) == ARGV[1] then
  redis.call("SET", KEYS[1], ARGV[2])
  return 1
end
return 0
`)

// ValkeyConfig holds configuration for the Valkey storage backend.
type ValkeyConfig struct {
	// URL is the Valkey server address (e.g., "valkey.namespace.svc:6379")
	URL string

	// Password is the optional password for Valkey authentication
	Password string

	// TLSEnabled enables TLS for Valkey connections
	TLSEnabled bool

	// TLSCAFile is the path to a CA certificate used to verify the server.
	// Use this when Valkey uses certificates signed by a private CA.
	TLSCAFile string

	// KeyPrefix is the prefix for all Valkey keys (default: "sharedcal:")
	KeyPrefix string

	// DB is the Valkey database number (default: 0)
	DB int

	// LockTTL is the expiry set on lock keys (default: 30s). Holders renew
	// it while they work.
	LockTTL time.Duration
}

// Validate checks that the configuration can be used to connect.
func (c ValkeyConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("valkey URL is required when storage type is valkey")
	}
	if c.DB < 0 {
		return fmt.Errorf("valkey DB must be non-negative, got %d", c.DB)
	}
	if c.LockTTL < 0 {
		return fmt.Errorf("valkey lock TTL must be non-negative, got %s", c.LockTTL)
	}
	if c.LockTTL > 0 && c.LockTTL < minValkeyLockTTL {
		return fmt.Errorf("valkey lock TTL must be at least %s, got %s", minValkeyLockTTL, c.LockTTL)
	}
	if c.TLSCAFile != "" && !c.TLSEnabled {
		return fmt.Errorf("valkey TLS CA file is set but TLS is not enabled")
	}
	return nil
}

// NewValkeyClient connects to Valkey using cfg.
func NewValkeyClient(cfg ValkeyConfig) (valkey.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opt := valkey.ClientOption{
		InitAddress: []string{cfg.URL},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	}

	if cfg.TLSEnabled {
		tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
		if cfg.TLSCAFile != "" {
			pem, err := os.ReadFile(cfg.TLSCAFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read valkey CA file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fmt.Errorf("valkey CA file %s contains no certificates", cfg.TLSCAFile)
			}
			tlsConfig.RootCAs = pool
		}
		opt.TLSConfig = tlsConfig
	}

	client, err := valkey.NewClient(opt)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to valkey at %s: %v", ErrUnavailable, cfg.URL, err)
	}
	return client, nil
}

// lockCommands are the Valkey operations a ValkeyStore issues.
type lockCommands interface {
	// acquire sets lockKey to token if it is unset. It reports false when
	// another holder owns the lock.
	acquire(ctx context.Context, lockKey, token string, ttl time.Duration) (bool, error)
	// extend resets the expiry of a lock still owned by token.
	extend(ctx context.Context, lockKey, token string, ttl time.Duration) (bool, error)
	release(ctx context.Context, lockKey, token string) error
	// get returns nil for a missing key.
	get(ctx context.Context, key string) ([]byte, error)
	// setOwned writes key only while lockKey is owned by token.
	setOwned(ctx context.Context, key, lockKey, token string, value []byte) (bool, error)
}

// clientCommands implements lockCommands on a valkey.Client.
type clientCommands struct {
	client valkey.Client
}

func (c clientCommands) acquire(ctx context.Context, lockKey, token string, ttl time.Duration) (bool, error) {
	cmd := c.client.B().Set().Key(lockKey).Value(token).Nx().PxMilliseconds(ttl.Milliseconds()).Build()
	err := c.client.Do(ctx, cmd).Error()
	if valkey.IsValkeyNil(err) {
		return false, nil
	}
	return err == nil, err
}

func (c clientCommands) extend(ctx context.Context, lockKey, token string, ttl time.Duration) (bool, error) {
	n, err := extendScript.Exec(ctx, c.client, []string{lockKey},
		[]string{token, strconv.FormatInt(ttl.Milliseconds(), 10)}).AsInt64()
	return n == 1, err
}

func (c clientCommands) release(ctx context.Context, lockKey, token string) error {
	return releaseScript.Exec(ctx, c.client, []string{lockKey}, []string{token}).Error()
}

func (c clientCommands) get(ctx context.Context, key string) ([]byte, error) {
	value, err := c.client.Do(ctx, c.client.B().Get().Key(key).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, nil
	}
	return value, err
}

func (c clientCommands) setOwned(ctx context.Context, key, lockKey, token string, value []byte) (bool, error) {
	n, err := writeScript.Exec(ctx, c.client, []string{key, lockKey},
		[]string{token, valkey.BinaryString(value)}).AsInt64()
	return n == 1, err
}

// ValkeyStore keeps one document in Valkey, guarded by a lock key. The lock
// is renewed while the mutator runs and the final write is rejected if the
// lock was lost in the meantime.
type ValkeyStore struct {
	cmds        lockCommands
	clock       clockwork.Clock
	name        string
	key         string
	lockKey     string
	lockTTL     time.Duration
	lockTimeout time.Duration
	logger      logging.Logger
	recorder    LockRecorder
}

// ValkeyStoreOptions configures a ValkeyStore sharing an existing client.
type ValkeyStoreOptions struct {
	KeyPrefix   string
	Name        string
	LockTTL     time.Duration
	LockTimeout time.Duration
	Logger      logging.Logger
	Recorder    LockRecorder
	// Clock drives lock renewal. Defaults to the real clock.
	Clock clockwork.Clock
}

// NewValkeyStore creates a store for the document called opts.Name.
func NewValkeyStore(client valkey.Client, opts ValkeyStoreOptions) (*ValkeyStore, error) {
	if client == nil {
		return nil, fmt.Errorf("valkey client is required")
	}
	return newValkeyStore(clientCommands{client: client}, opts)
}

func newValkeyStore(cmds lockCommands, opts ValkeyStoreOptions) (*ValkeyStore, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("valkey document name is required")
	}

	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = DefaultValkeyKeyPrefix
	}
	ttl := opts.LockTTL
	if ttl == 0 {
		ttl = DefaultValkeyLockTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &ValkeyStore{
		cmds:        cmds,
		clock:       clock,
		name:        opts.Name,
		key:         prefix + opts.Name,
		lockKey:     prefix + opts.Name + ":lock",
		lockTTL:     ttl,
		lockTimeout: opts.LockTimeout,
		logger:      logger,
		recorder:    opts.Recorder,
	}, nil
}

// Location returns the document key.
func (s *ValkeyStore) Location() string {
	return "valkey:" + s.key
}

// Update implements Store.
func (s *ValkeyStore) Update(ctx context.Context, fn Mutator) error {
	token, err := s.lock(ctx)
	if err != nil {
		return err
	}

	renewCtx, stopRenewal := context.WithCancel(ctx)
	renewed := make(chan struct{})
	go func() {
		defer close(renewed)
		s.keepAlive(renewCtx, token)
	}()
	defer func() {
		stopRenewal()
		<-renewed
		s.unlock(token)
	}()

	current, err := s.cmds.get(ctx, s.key)
	if err != nil {
		return fmt.Errorf("%w: failed to read %s: %v", ErrUnavailable, s.key, err)
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}

	owned, err := s.cmds.setOwned(ctx, s.key, s.lockKey, token, next)
	if err != nil {
		return fmt.Errorf("%w: failed to write %s: %v", ErrUnavailable, s.key, err)
	}
	if !owned {
		s.logger.Error("Valkey lock expired before write, document left unchanged", "key", s.lockKey)
		return fmt.Errorf("%w: %s", ErrLockLost, s.lockKey)
	}
	return nil
}

// keepAlive extends the lock every third of its TTL until ctx is done or
// the lock turns out to belong to someone else.
func (s *ValkeyStore) keepAlive(ctx context.Context, token string) {
	ticker := s.clock.NewTicker(s.lockTTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}

		owned, err := s.cmds.extend(ctx, s.lockKey, token, s.lockTTL)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			// Retried on the next tick; the TTL leaves two more attempts.
			s.logger.Warn("Failed to extend valkey lock", "key", s.lockKey, "error", err)
		case !owned:
			s.logger.Error("Valkey lock lost while held", "key", s.lockKey)
			return
		}
	}
}

func (s *ValkeyStore) lock(ctx context.Context) (string, error) {
	lockCtx := ctx
	if s.lockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
	}

	token := uuid.NewString()
	started := time.Now()
	ticker := time.NewTicker(lockRetryDelay)
	defer ticker.Stop()

	for {
		acquired, err := s.cmds.acquire(lockCtx, s.lockKey, token, s.lockTTL)
		if acquired {
			s.record(ctx, time.Since(started), true)
			return token, nil
		}
		if err != nil && lockCtx.Err() == nil {
			s.record(ctx, time.Since(started), false)
			return "", fmt.Errorf("%w: failed to acquire lock %s: %v", ErrUnavailable, s.lockKey, err)
		}

		select {
		case <-lockCtx.Done():
			s.record(ctx, time.Since(started), false)
			if errors.Is(lockCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return "", fmt.Errorf("%w: %s after %s", ErrLockTimeout, s.lockKey, s.lockTimeout)
			}
			return "", fmt.Errorf("failed to acquire lock %s: %w", s.lockKey, lockCtx.Err())
		case <-ticker.C:
		}
	}
}

func (s *ValkeyStore) unlock(token string) {
	// The caller's context may already be cancelled; release regardless.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.cmds.release(ctx, s.lockKey, token); err != nil {
		s.logger.Warn("Failed to release valkey lock", "key", s.lockKey, "error", err)
	}
}

func (s *ValkeyStore) record(ctx context.Context, wait time.Duration, acquired bool) {
	if s.recorder != nil {
		s.recorder.RecordStorageLockWait(ctx, "valkey", s.name, wait, acquired)
	}
}
