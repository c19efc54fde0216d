package google

import (
	"context"
	"net/http"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/sharedcal/internal/apierror"
	"github.com/teemow/sharedcal/internal/storage"
)

func newTestStateStore(t *testing.T) *StateStore {
	t.Helper()
	fs, err := storage.NewFileStore(storage.FileConfig{
		Path:        filepath.Join(t.TempDir(), "google-bootstrap-state.json"),
		LockTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return NewStateStore(fs, nil)
}

func TestBootstrap_StartAndComplete(t *testing.T) {
	endpoint := &tokenEndpoint{
		status: http.StatusOK,
		body:   `{"access_token":"access-1","refresh_token":"refresh-1","expires_in":3599,"token_type":"Bearer"}`,
	}
	r, creds, _ := newTestRefresher(t, endpoint)
	b := NewBootstrap(newTestStateStore(t), r)
	ctx := context.Background()

	consent, err := b.Start(ctx)
	require.NoError(t, err)
	u, err := url.Parse(consent)
	require.NoError(t, err)
	state := u.Query().Get("state")
	assert.Len(t, state, StateLength)

	_, err = b.Complete(ctx, "auth-code", "forged")
	assert.Equal(t, apierror.CodeValidation, apierror.CodeOf(err))
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Zero(t, endpoint.calls)

	rec, err := b.Complete(ctx, "auth-code", state)
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", rec.RefreshToken)
	require.Equal(t, 1, endpoint.calls)
	assert.Equal(t, "authorization_code", endpoint.forms[0].Get("grant_type"))
	assert.Equal(t, "auth-code", endpoint.forms[0].Get("code"))

	rt, err := creds.RefreshToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", rt)

	// The state is single-use.
	_, err = b.Complete(ctx, "auth-code", state)
	assert.Equal(t, apierror.CodeValidation, apierror.CodeOf(err))
}

func TestBootstrap_RequiresCodeAndState(t *testing.T) {
	r, _, _ := newTestRefresher(t, &tokenEndpoint{status: http.StatusOK})
	b := NewBootstrap(newTestStateStore(t), r)

	_, err := b.Complete(context.Background(), "", "state")
	assert.Equal(t, apierror.CodeValidation, apierror.CodeOf(err))

	_, err = b.Complete(context.Background(), "code", "")
	assert.Equal(t, apierror.CodeValidation, apierror.CodeOf(err))
}

func TestBootstrap_StartRequiresClient(t *testing.T) {
	creds, _, _ := newTestCredentialStore(t)
	b := NewBootstrap(newTestStateStore(t), NewRefresher(OAuthConfig{}, creds))

	_, err := b.Start(context.Background())
	assert.Equal(t, apierror.CodeValidation, apierror.CodeOf(err))
}

func TestTokenProvider(t *testing.T) {
	endpoint := &tokenEndpoint{
		status: http.StatusOK,
		body:   `{"access_token":"access-2","expires_in":3600,"token_type":"Bearer"}`,
	}
	r, creds, _ := newTestRefresher(t, endpoint)
	p := NewTokenProvider(creds, r)
	ctx := context.Background()
	require.NoError(t, creds.Write(ctx, CredentialRecord{RefreshToken: "refresh-1"}))

	token, err := p.CurrentAccessToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)

	refreshed, err := p.RefreshAccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-2", refreshed)

	token, err = p.CurrentAccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-2", token)

	status, err := p.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.HasRefreshToken)
}
