package google

import (
	"context"
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

// ExpiryBuffer is how long before expires_at an access token stops being used.
const ExpiryBuffer = 30 * time.Second

// DefaultTokenType is assumed when neither the response nor the record has one.
const DefaultTokenType = "Bearer"

// CredentialRecord is the persisted OAuth token set.
type CredentialRecord struct {
	AccessToken  string     `json:"access_token,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	TokenType    string     `json:"token_type,omitempty"`
	Scope        string     `json:"scope,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// TokenResponse is the subset of an OAuth token endpoint response that is
// merged into the record.
type TokenResponse struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	ExpiresIn    int64
}

// CredentialStatus is a diagnostics view of the stored credential. It never
// contains token material.
type CredentialStatus struct {
	TokenFile       string     `json:"token_file"`
	HasAccessToken  bool       `json:"has_access_token"`
	HasRefreshToken bool       `json:"has_refresh_token"`
	ExpiresAt       *time.Time `json:"expires_at"`
	Expired         bool       `json:"expired"`
	Scope           string     `json:"scope,omitempty"`
}

// CredentialStore reads and writes the credential record. Every method runs
// inside one exclusive storage section and never holds it across network I/O.
type CredentialStore struct {
	store  storage.Store
	clock  clockwork.Clock
	logger logging.Logger
}

// NewCredentialStore creates a CredentialStore. A nil clock means the real clock.
func NewCredentialStore(store storage.Store, clock clockwork.Clock, logger logging.Logger) *CredentialStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &CredentialStore{store: store, clock: clock, logger: logger}
}

// Location returns where the record is persisted.
func (s *CredentialStore) Location() string {
	return s.store.Location()
}

// Read returns the current record. A missing or corrupt record reads as empty.
func (s *CredentialStore) Read(ctx context.Context) (CredentialRecord, error) {
	var rec CredentialRecord
	err := s.update(ctx, func(current CredentialRecord) (*CredentialRecord, error) {
		rec = current
		return nil, nil
	})
	return rec, err
}

// Write replaces the record in full.
func (s *CredentialStore) Write(ctx context.Context, rec CredentialRecord) error {
	return s.update(ctx, func(CredentialRecord) (*CredentialRecord, error) {
		return &rec, nil
	})
}

// MergeTokenResponse folds a token endpoint response into the stored record.
// The refresh token survives unless the response carries a new one.
func (s *CredentialStore) MergeTokenResponse(ctx context.Context, resp TokenResponse) (CredentialRecord, error) {
	var merged CredentialRecord
	err := s.update(ctx, func(current CredentialRecord) (*CredentialRecord, error) {
		merged = mergeTokenResponse(current, resp, s.clock.Now())
		return &merged, nil
	})
	return merged, err
}

// CurrentAccessToken returns the access token if it is valid for at least
// ExpiryBuffer, or "" otherwise.
func (s *CredentialStore) CurrentAccessToken(ctx context.Context) (string, error) {
	rec, err := s.Read(ctx)
	if err != nil {
		return "", err
	}
	if !s.usable(rec) {
		return "", nil
	}
	return rec.AccessToken, nil
}

// RefreshToken returns the stored refresh token, or "" when there is none.
func (s *CredentialStore) RefreshToken(ctx context.Context) (string, error) {
	rec, err := s.Read(ctx)
	if err != nil {
		return "", err
	}
	return rec.RefreshToken, nil
}

// Status reports what is stored without revealing any token.
func (s *CredentialStore) Status(ctx context.Context) (CredentialStatus, error) {
	rec, err := s.Read(ctx)
	if err != nil {
		return CredentialStatus{}, err
	}
	status := CredentialStatus{
		TokenFile:       s.store.Location(),
		HasAccessToken:  rec.AccessToken != "",
		HasRefreshToken: rec.RefreshToken != "",
		ExpiresAt:       rec.ExpiresAt,
		Expired:         rec.ExpiresAt == nil || !rec.ExpiresAt.After(s.clock.Now()),
		Scope:           rec.Scope,
	}
	return status, nil
}

func (s *CredentialStore) usable(rec CredentialRecord) bool {
	if rec.AccessToken == "" || rec.ExpiresAt == nil {
		return false
	}
	return rec.ExpiresAt.After(s.clock.Now().Add(ExpiryBuffer))
}

func (s *CredentialStore) update(ctx context.Context, fn func(CredentialRecord) (*CredentialRecord, error)) error {
	err := s.store.Update(ctx, func(current []byte) ([]byte, error) {
		next, err := fn(s.decode(current))
		if err != nil || next == nil {
			return nil, err
		}
		data, err := json.MarshalIndent(next, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode credential record: %w", err)
		}
		return data, nil
	})
	if err != nil {
		if _, ok := apierror.As(err); ok {
			return err
		}
		return apierror.Upstream(http.StatusInternalServerError, err, "credential storage is unavailable")
	}
	return nil
}

func (s *CredentialStore) decode(data []byte) CredentialRecord {
	var rec CredentialRecord
	if len(strings.TrimSpace(string(data))) == 0 {
		return rec
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Warn("Ignoring unreadable credential record", "location", s.store.Location(), "error", err)
		return CredentialRecord{}
	}
	return rec
}

func mergeTokenResponse(current CredentialRecord, resp TokenResponse, now time.Time) CredentialRecord {
	merged := current

	if resp.AccessToken != "" {
		merged.AccessToken = resp.AccessToken
	}
	if resp.RefreshToken != "" {
		merged.RefreshToken = resp.RefreshToken
	}
	if resp.ExpiresIn > 0 {
		expiresAt := now.Add(time.Duration(resp.ExpiresIn) * time.Second).UTC()
		merged.ExpiresAt = &expiresAt
	}

	switch {
	case resp.TokenType != "":
		merged.TokenType = resp.TokenType
	case current.TokenType == "":
		merged.TokenType = DefaultTokenType
	}

	if resp.Scope != "" {
		merged.Scope = resp.Scope
	}
	return merged
}
