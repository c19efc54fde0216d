package google

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/teemow/sharedcal/internal/apierror"
	"github.com/teemow/sharedcal/internal/storage"
)

// StateLength is the number of characters in a generated bootstrap state.
const StateLength = 48

const stateAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// ErrInvalidState is the cause of every Verify failure.
var ErrInvalidState = errors.New("invalid bootstrap state")

type bootstrapState struct {
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// StateStore persists the anti-forgery state of a pending bootstrap.
type StateStore struct {
	store storage.Store
	clock clockwork.Clock
}

// NewStateStore creates a StateStore. A nil clock means the real clock.
func NewStateStore(store storage.Store, clock clockwork.Clock) *StateStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &StateStore{store: store, clock: clock}
}

// Generate creates, persists and returns a fresh state, replacing any
// pending one.
func (s *StateStore) Generate(ctx context.Context) (string, error) {
	state, err := randomState(StateLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	data, err := json.Marshal(bootstrapState{State: state, CreatedAt: s.clock.Now().UTC()})
	if err != nil {
		return "", fmt.Errorf("failed to encode state: %w", err)
	}
	if err := storage.Write(ctx, s.store, data); err != nil {
		return "", fmt.Errorf("failed to save state: %w", err)
	}
	return state, nil
}

// Verify checks state against the pending one using a constant-time compare.
func (s *StateStore) Verify(ctx context.Context, state string) error {
	if state == "" {
		return invalidState("state is required")
	}
	current, err := storage.Read(ctx, s.store)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}
	var pending bootstrapState
	_ = json.Unmarshal(current, &pending)
	if pending.State == "" || subtle.ConstantTimeCompare([]byte(pending.State), []byte(state)) != 1 {
		return invalidState("state does not match the pending bootstrap request")
	}
	return nil
}

func invalidState(msg string) error {
	e := apierror.New(apierror.CodeValidation, http.StatusUnprocessableEntity, msg)
	e.Err = ErrInvalidState
	return e
}

// Clear removes the pending state so it cannot be replayed.
func (s *StateStore) Clear(ctx context.Context) error {
	if err := storage.Write(ctx, s.store, []byte("{}")); err != nil {
		return fmt.Errorf("failed to clear state: %w", err)
	}
	return nil
}

func randomState(n int) (string, error) {
	max := big.NewInt(int64(len(stateAlphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = stateAlphabet[idx.Int64()]
	}
	return string(out), nil
}
