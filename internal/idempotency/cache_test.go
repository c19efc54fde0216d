package idempotency

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/sharedcal/internal/apierror"
	"github.com/teemow/sharedcal/internal/storage"
)

var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type fakeRecorder struct {
	mu      sync.Mutex
	results []string
}

func (r *fakeRecorder) RecordIdempotencyRequest(_ context.Context, _ string, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

type createPayload struct {
	Summary string `json:"summary"`
	StartAt string `json:"start_at"`
}

func newTestCache(t *testing.T) (*Cache, *clockwork.FakeClock, *fakeRecorder, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "idempotency.json")
	fs, err := storage.NewFileStore(storage.FileConfig{Path: path, LockTimeout: 5 * time.Second})
	require.NoError(t, err)
	clock := clockwork.NewFakeClockAt(testNow)
	rec := &fakeRecorder{}
	return New(fs, Config{Clock: clock, Recorder: rec}), clock, rec, path
}

// countingResolver returns a resolver that counts its calls and answers with
// {"call": n}.
func countingResolver(calls *int) Resolver {
	return func(context.Context) (json.RawMessage, error) {
		*calls++
		return json.RawMessage(`{"call":` + strconv.Itoa(*calls) + `}`), nil
	}
}

func TestCache_ReplaysSameRequest(t *testing.T) {
	cache, _, rec, _ := newTestCache(t)
	ctx := context.Background()
	payload := createPayload{Summary: "Standup", StartAt: "2025-03-10T10:00:00+01:00"}

	calls := 0
	first, err := cache.Run(ctx, "create_event", "key-1", payload, countingResolver(&calls))
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := cache.Run(ctx, "create_event", "key-1", payload, countingResolver(&calls))
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.JSONEq(t, string(first.Response), string(second.Response))

	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{ResultExecuted, ResultReplayed}, rec.results)
}

func TestCache_KeySensitivity(t *testing.T) {
	ctx := context.Background()
	base := createPayload{Summary: "Standup", StartAt: "2025-03-10T10:00:00+01:00"}

	tests := []struct {
		name      string
		operation string
		token     string
		payload   createPayload
	}{
		{name: "different token", operation: "create_event", token: "key-2", payload: base},
		{name: "different operation", operation: "update_event", token: "key-1", payload: base},
		{name: "different payload", operation: "create_event", token: "key-1", payload: createPayload{Summary: "Retro", StartAt: base.StartAt}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache, _, _, _ := newTestCache(t)
			calls := 0

			_, err := cache.Run(ctx, "create_event", "key-1", base, countingResolver(&calls))
			require.NoError(t, err)

			res, err := cache.Run(ctx, tt.operation, tt.token, tt.payload, countingResolver(&calls))
			require.NoError(t, err)
			assert.False(t, res.Replayed)
			assert.Equal(t, 2, calls)
		})
	}
}

func TestCache_Expiry(t *testing.T) {
	tests := []struct {
		name         string
		advance      time.Duration
		wantReplayed bool
	}{
		{name: "just before ttl", advance: 23*time.Hour + 59*time.Minute, wantReplayed: true},
		{name: "exactly at ttl", advance: 24 * time.Hour, wantReplayed: false},
		{name: "after ttl", advance: 24*time.Hour + time.Minute, wantReplayed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache, clock, _, _ := newTestCache(t)
			ctx := context.Background()
			calls := 0

			_, err := cache.Run(ctx, "delete_event", "key-1", map[string]string{"event_id": "abc"}, countingResolver(&calls))
			require.NoError(t, err)

			clock.Advance(tt.advance)

			res, err := cache.Run(ctx, "delete_event", "key-1", map[string]string{"event_id": "abc"}, countingResolver(&calls))
			require.NoError(t, err)
			assert.Equal(t, tt.wantReplayed, res.Replayed)
		})
	}
}

func TestCache_ResolverFailureWritesNothing(t *testing.T) {
	cache, _, rec, path := newTestCache(t)
	ctx := context.Background()
	cause := apierror.New(apierror.CodeRateLimited, 429, "slow down")

	_, err := cache.Run(ctx, "create_event", "key-1", createPayload{Summary: "x"}, func(context.Context) (json.RawMessage, error) {
		return nil, cause
	})
	require.Error(t, err)
	assert.Same(t, cause, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	calls := 0
	res, err := cache.Run(ctx, "create_event", "key-1", createPayload{Summary: "x"}, countingResolver(&calls))
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{ResultFailed, ResultExecuted}, rec.results)
}

func TestCache_PrunesExpiredEntries(t *testing.T) {
	cache, clock, _, path := newTestCache(t)
	ctx := context.Background()
	calls := 0

	_, err := cache.Run(ctx, "create_event", "old", createPayload{Summary: "old"}, countingResolver(&calls))
	require.NoError(t, err)

	clock.Advance(25 * time.Hour)
	_, err = cache.Run(ctx, "create_event", "new", createPayload{Summary: "new"}, countingResolver(&calls))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc table
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Len(t, doc.Entries, 1)

	newKey, err := Key("create_event", "new", createPayload{Summary: "new"})
	require.NoError(t, err)
	assert.Contains(t, doc.Entries, newKey)
	assert.True(t, testNow.Add(25*time.Hour+DefaultTTL).Equal(doc.Entries[newKey].ExpiresAt))
}

func TestCache_CorruptTableCountsAsEmpty(t *testing.T) {
	cache, _, _, path := newTestCache(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	calls := 0
	res, err := cache.Run(context.Background(), "create_event", "key-1", createPayload{}, countingResolver(&calls))
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, 1, calls)
}

func TestCache_ConcurrentCallersRunResolverOnce(t *testing.T) {
	cache, _, _, _ := newTestCache(t)
	ctx := context.Background()

	var (
		mu    sync.Mutex
		calls int
		wg    sync.WaitGroup
	)
	resolve := func(context.Context) (json.RawMessage, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return json.RawMessage(`{"id":"evt"}`), nil
	}

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.Run(ctx, "create_event", "same", createPayload{Summary: "x"}, resolve)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, calls)
}

func TestCache_StorageFailureIsUpstream(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	fs, err := storage.NewFileStore(storage.FileConfig{Path: filepath.Join(blocker, "idempotency.json")})
	require.NoError(t, err)
	cache := New(fs, Config{})

	_, err = cache.Run(context.Background(), "create_event", "k", createPayload{}, func(context.Context) (json.RawMessage, error) {
		t.Fatal("resolver must not run without storage")
		return nil, nil
	})
	require.Error(t, err)
	assert.Equal(t, apierror.CodeUpstream, apierror.CodeOf(err))
}

func TestKey(t *testing.T) {
	a, err := Key("create_event", "k", createPayload{Summary: "x"})
	require.NoError(t, err)
	b, err := Key("create_event", "k", createPayload{Summary: "x"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	_, err = Key("create_event", "k", func() {})
	assert.Error(t, err)
}
