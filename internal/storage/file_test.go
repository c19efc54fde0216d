package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	mu    sync.Mutex
	waits []bool
}

func (r *fakeRecorder) RecordStorageLockWait(_ context.Context, backend, document string, _ time.Duration, acquired bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits = append(r.waits, acquired)
}

func newTestFileStore(t *testing.T, path string) *FileStore {
	t.Helper()
	s, err := NewFileStore(FileConfig{Path: path, LockTimeout: 5 * time.Second})
	require.NoError(t, err)
	return s
}

func TestFileStore_MissingDocumentIsNil(t *testing.T) {
	s := newTestFileStore(t, filepath.Join(t.TempDir(), "state", "doc.json"))

	var seen []byte
	called := false
	err := s.Update(context.Background(), func(current []byte) ([]byte, error) {
		called = true
		seen = current
		return nil, nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Nil(t, seen)

	_, err = os.Stat(s.Location())
	assert.True(t, os.IsNotExist(err), "nil mutator result must not create the document")
}

func TestFileStore_WriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	s := newTestFileStore(t, path)
	ctx := context.Background()

	require.NoError(t, Write(ctx, s, []byte(`{"v":1}`)))

	got, err := Read(ctx, s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(got))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	assert.Equal(t, path, s.Location())
}

func TestFileStore_MutatorErrorWritesNothing(t *testing.T) {
	s := newTestFileStore(t, filepath.Join(t.TempDir(), "doc.json"))
	ctx := context.Background()
	require.NoError(t, Write(ctx, s, []byte("before")))

	boom := errors.New("resolver failed")
	err := s.Update(ctx, func([]byte) ([]byte, error) {
		return []byte("after"), boom
	})
	assert.Same(t, boom, err)

	got, err := Read(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, "before", string(got))
}

func TestFileStore_ConcurrentUpdatesSerialize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter")
	const workers, perWorker = 8, 10

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Separate store instances behave like separate processes.
			s := newTestFileStore(t, path)
			for j := 0; j < perWorker; j++ {
				err := s.Update(context.Background(), func(current []byte) ([]byte, error) {
					n := 0
					if len(current) > 0 {
						var err error
						n, err = strconv.Atoi(string(current))
						if err != nil {
							return nil, err
						}
					}
					return []byte(strconv.Itoa(n + 1)), nil
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	got, err := Read(context.Background(), newTestFileStore(t, path))
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(workers*perWorker), string(got))
}

func TestFileStore_LockTimeout(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")
	recorder := &fakeRecorder{}
	s, err := NewFileStore(FileConfig{Path: path, LockTimeout: 100 * time.Millisecond, Recorder: recorder})
	require.NoError(t, err)

	held := flock.New(path + ".lock")
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer func() { _ = held.Unlock() }()

	called := false
	err = s.Update(context.Background(), func([]byte) ([]byte, error) {
		called = true
		return nil, nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.False(t, called)
	assert.Equal(t, []bool{false}, recorder.waits)
}

func TestFileStore_UnavailableDirectory(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	s := newTestFileStore(t, filepath.Join(blocker, "doc.json"))
	err := s.Update(context.Background(), func([]byte) ([]byte, error) {
		return []byte("x"), nil
	})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNewFileStore_RequiresPath(t *testing.T) {
	_, err := NewFileStore(FileConfig{})
	assert.Error(t, err)
}
