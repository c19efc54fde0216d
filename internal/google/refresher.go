package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/sharedcal/internal/apierror"
	"github.com/teemow/sharedcal/internal/logging"
)

// Refresh outcomes reported to the RefreshRecorder.
const (
	RefreshResultSuccess = "success"
	RefreshResultError   = "error"
	RefreshResultMissing = "missing_refresh_token"
)

// RefreshRecorder observes token refresh attempts.
// *instrumentation.Metrics satisfies it.
type RefreshRecorder interface {
	RecordTokenRefresh(ctx context.Context, result string)
}

// OAuthConfig holds the OAuth client registration.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	Scopes       []string
}

// Refresher obtains fresh tokens from the Google token endpoint and merges
// them into the CredentialStore.
type Refresher struct {
	oauth      *oauth2.Config
	creds      *CredentialStore
	httpClient *http.Client
	recorder   RefreshRecorder
	logger     logging.Logger
}

// RefresherOption customizes a Refresher.
type RefresherOption func(*Refresher)

// WithHTTPClient sets the client used to reach the token endpoint.
func WithHTTPClient(c *http.Client) RefresherOption {
	return func(r *Refresher) { r.httpClient = c }
}

// WithRefreshRecorder sets the metrics recorder.
func WithRefreshRecorder(rec RefreshRecorder) RefresherOption {
	return func(r *Refresher) { r.recorder = rec }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) RefresherOption {
	return func(r *Refresher) { r.logger = l }
}

// NewRefresher creates a Refresher. Empty endpoint URLs fall back to Google's.
func NewRefresher(cfg OAuthConfig, creds *CredentialStore, opts ...RefresherOption) *Refresher {
	authURL := cfg.AuthURL
	if authURL == "" {
		authURL = DefaultAuthURL
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultOAuthScopes
	}

	r := &Refresher{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: scopes,
		},
		creds:      creds,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logging.DefaultLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AuthCodeURL builds the consent URL for the bootstrap flow. Offline access
// and a forced consent prompt make Google issue a refresh token every time.
func (r *Refresher) AuthCodeURL(state string) string {
	return r.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
}

// RefreshAccessToken runs the refresh_token grant and stores the result.
func (r *Refresher) RefreshAccessToken(ctx context.Context) (CredentialRecord, error) {
	refreshToken, err := r.creds.RefreshToken(ctx)
	if err != nil {
		r.record(ctx, RefreshResultError)
		return CredentialRecord{}, err
	}
	if refreshToken == "" {
		r.record(ctx, RefreshResultMissing)
		return CredentialRecord{}, apierror.ReauthRequired("refresh token is missing, run the bootstrap flow again")
	}

	src := r.oauth.TokenSource(r.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		r.record(ctx, RefreshResultError)
		r.logger.Warn("Token refresh failed", "error", err)
		return CredentialRecord{}, classifyTokenError(err)
	}

	rec, err := r.creds.MergeTokenResponse(ctx, tokenResponse(tok))
	if err != nil {
		r.record(ctx, RefreshResultError)
		return CredentialRecord{}, err
	}

	r.record(ctx, RefreshResultSuccess)
	r.logger.Debug("Refreshed access token", "access_token", logging.SanitizeToken(rec.AccessToken))
	return rec, nil
}

// Exchange trades an authorization code for tokens and stores the result.
func (r *Refresher) Exchange(ctx context.Context, code string) (CredentialRecord, error) {
	tok, err := r.oauth.Exchange(r.clientContext(ctx), code)
	if err != nil {
		return CredentialRecord{}, classifyTokenError(err)
	}
	rec, err := r.creds.MergeTokenResponse(ctx, tokenResponse(tok))
	if err != nil {
		return CredentialRecord{}, err
	}
	if rec.RefreshToken == "" {
		r.logger.Warn("Token endpoint returned no refresh token; revoke the grant and bootstrap again")
	}
	return rec, nil
}

func (r *Refresher) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
}

func (r *Refresher) record(ctx context.Context, result string) {
	if r.recorder != nil {
		r.recorder.RecordTokenRefresh(ctx, result)
	}
}

func classifyTokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := http.StatusBadGateway
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		classified := apierror.Classify(status, re.Body)
		classified.Err = err
		return classified
	}
	return apierror.Upstream(http.StatusBadGateway, err, fmt.Sprintf("token endpoint request failed: %v", err))
}

func tokenResponse(tok *oauth2.Token) TokenResponse {
	resp := TokenResponse{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresIn:    tok.ExpiresIn,
	}
	if resp.ExpiresIn <= 0 && !tok.Expiry.IsZero() {
		resp.ExpiresIn = int64(time.Until(tok.Expiry).Round(time.Second) / time.Second)
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		resp.Scope = scope
	}
	return resp
}
