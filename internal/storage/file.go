package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/peterbourgon/diskv/v3"

	"github.com/teemow/sharedcal/internal/logging"
)

const (
	// lockRetryDelay is how often a blocked Update polls the lock file.
	lockRetryDelay = 25 * time.Millisecond

	filePerm = 0o600
	dirPerm  = 0o700
)

// LockRecorder observes how long callers waited for the exclusive section.
// *instrumentation.Metrics satisfies it.
type LockRecorder interface {
	RecordStorageLockWait(ctx context.Context, backend, document string, wait time.Duration, acquired bool)
}

// FileConfig configures a FileStore.
type FileConfig struct {
	// Path is the full path of the document. Its directory is created on demand.
	Path string

	// LockTimeout bounds lock acquisition. Zero means wait until ctx is done.
	LockTimeout time.Duration

	Logger   logging.Logger
	Recorder LockRecorder
}

// FileStore keeps one document on disk next to a "<name>.lock" file.
// Every Update opens its own lock descriptor, so concurrent goroutines in a
// single process exclude each other exactly like separate processes do.
type FileStore struct {
	dir         string
	name        string
	lockPath    string
	lockTimeout time.Duration
	logger      logging.Logger
	recorder    LockRecorder
	dv          *diskv.Diskv
}

// NewFileStore creates a FileStore. No filesystem access happens until the
// first Update.
func NewFileStore(cfg FileConfig) (*FileStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("file store path is required")
	}

	path, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve store path %q: %w", cfg.Path, err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}

	dir, name := filepath.Split(path)
	dir = filepath.Clean(dir)

	// Flat transform: the document sits directly in dir under its own name.
	flatTransform := func(string) []string { return []string{} }

	return &FileStore{
		dir:         dir,
		name:        name,
		lockPath:    filepath.Join(dir, name+".lock"),
		lockTimeout: cfg.LockTimeout,
		logger:      logger,
		recorder:    cfg.Recorder,
		dv: diskv.New(diskv.Options{
			BasePath:     dir,
			Transform:    flatTransform,
			CacheSizeMax: 0,
			TempDir:      filepath.Join(dir, ".tmp"),
			FilePerm:     filePerm,
			PathPerm:     dirPerm,
		}),
	}, nil
}

// Location returns the document path.
func (s *FileStore) Location() string {
	return filepath.Join(s.dir, s.name)
}

// Update implements Store.
func (s *FileStore) Update(ctx context.Context, fn Mutator) error {
	if err := os.MkdirAll(s.dir, dirPerm); err != nil {
		return fmt.Errorf("%w: failed to create directory %s: %v", ErrUnavailable, s.dir, err)
	}

	lock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.logger.Warn("Failed to release storage lock", "path", s.lockPath, "error", err)
		}
	}()

	current, err := s.read()
	if err != nil {
		return err
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}

	if err := s.dv.Write(s.name, next); err != nil {
		return fmt.Errorf("%w: failed to write %s: %v", ErrUnavailable, s.Location(), err)
	}
	return nil
}

func (s *FileStore) lock(ctx context.Context) (*flock.Flock, error) {
	lockCtx := ctx
	if s.lockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
	}

	started := time.Now()
	lock := flock.New(s.lockPath)
	locked, err := lock.TryLockContext(lockCtx, lockRetryDelay)
	wait := time.Since(started)

	if s.recorder != nil {
		s.recorder.RecordStorageLockWait(ctx, "file", s.name, wait, locked && err == nil)
	}

	switch {
	case err == nil && locked:
		if wait > time.Second {
			s.logger.Debug("Acquired storage lock after waiting", "path", s.lockPath, "wait", wait)
		}
		return lock, nil
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return nil, fmt.Errorf("%w: %s after %s", ErrLockTimeout, s.lockPath, s.lockTimeout)
	case err != nil && lockCtx.Err() != nil:
		return nil, fmt.Errorf("failed to acquire lock %s: %w", s.lockPath, lockCtx.Err())
	case err != nil:
		return nil, fmt.Errorf("%w: failed to open lock file %s: %v", ErrUnavailable, s.lockPath, err)
	default:
		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, s.lockPath)
	}
}

func (s *FileStore) read() ([]byte, error) {
	if !s.dv.Has(s.name) {
		return nil, nil
	}
	data, err := s.dv.Read(s.name)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", ErrUnavailable, s.Location(), err)
	}
	return data, nil
}
