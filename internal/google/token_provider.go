package google

import (
	"context"
	"fmt"
	"net/http"

	"github.com/teemow/sharedcal/internal/apierror"
)

// TokenProvider hands out access tokens for the shared credential and
// refreshes it on demand. It satisfies calendar.TokenSource.
type TokenProvider struct {
	creds     *CredentialStore
	refresher *Refresher
}

// NewTokenProvider creates a TokenProvider.
func NewTokenProvider(creds *CredentialStore, refresher *Refresher) *TokenProvider {
	return &TokenProvider{creds: creds, refresher: refresher}
}

// CurrentAccessToken returns a usable access token or "".
func (p *TokenProvider) CurrentAccessToken(ctx context.Context) (string, error) {
	return p.creds.CurrentAccessToken(ctx)
}

// RefreshAccessToken forces a refresh-token grant and returns the new
// access token.
func (p *TokenProvider) RefreshAccessToken(ctx context.Context) (string, error) {
	rec, err := p.refresher.RefreshAccessToken(ctx)
	if err != nil {
		return "", err
	}
	return rec.AccessToken, nil
}

// Status reports the stored credential state.
func (p *TokenProvider) Status(ctx context.Context) (CredentialStatus, error) {
	return p.creds.Status(ctx)
}

// Bootstrap drives the one-time consent flow that seeds the refresh token.
type Bootstrap struct {
	states    *StateStore
	refresher *Refresher
}

// NewBootstrap creates a Bootstrap.
func NewBootstrap(states *StateStore, refresher *Refresher) *Bootstrap {
	return &Bootstrap{states: states, refresher: refresher}
}

// Start generates a new state and returns the consent URL.
func (b *Bootstrap) Start(ctx context.Context) (string, error) {
	if b.refresher.oauth.ClientID == "" || b.refresher.oauth.RedirectURL == "" {
		return "", apierror.New(apierror.CodeValidation, http.StatusUnprocessableEntity,
			"a Google OAuth client ID and redirect URL are required to bootstrap")
	}
	state, err := b.states.Generate(ctx)
	if err != nil {
		return "", err
	}
	return b.refresher.AuthCodeURL(state), nil
}

// Complete verifies state, exchanges code and clears the pending state.
func (b *Bootstrap) Complete(ctx context.Context, code, state string) (CredentialRecord, error) {
	if code == "" {
		return CredentialRecord{}, apierror.New(apierror.CodeValidation, http.StatusUnprocessableEntity, "code is required")
	}
	if err := b.states.Verify(ctx, state); err != nil {
		return CredentialRecord{}, err
	}
	rec, err := b.refresher.Exchange(ctx, code)
	if err != nil {
		return CredentialRecord{}, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	if err := b.states.Clear(ctx); err != nil {
		return CredentialRecord{}, err
	}
	return rec, nil
}
