package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/teemow/sharedcal/internal/apierror"
	"github.com/teemow/sharedcal/internal/instrumentation"
	"github.com/teemow/sharedcal/internal/logging"
)

const (
	// DefaultBaseURL is the Google Calendar v3 REST root.
	DefaultBaseURL = "https://www.googleapis.com/calendar/v3"

	// DefaultRequestTimeout bounds every remote call.
	DefaultRequestTimeout = 30 * time.Second

	maxConnsPerHost = 10
)

// TokenSource supplies bearer tokens for the shared credential.
type TokenSource interface {
	// CurrentAccessToken returns a usable access token, or "" if none is
	// stored or it is about to expire.
	CurrentAccessToken(ctx context.Context) (string, error)

	// RefreshAccessToken forces a refresh and returns the new access token.
	RefreshAccessToken(ctx context.Context) (string, error)
}

// RequestRecorder receives one observation per HTTP attempt.
type RequestRecorder interface {
	RecordCalendarAPIRequest(ctx context.Context, method string, statusCode int, duration time.Duration)
}

// Request describes one Calendar API call. Path is relative to the base URL
// and must already be escaped.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Body    any
	Headers map[string]string
}

// ClientConfig configures a Client. Zero values use the defaults.
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Recorder   RequestRecorder
	Logger     logging.Logger
}

// Client is an authenticated Calendar API client.
type Client struct {
	http     *resty.Client
	tokens   TokenSource
	recorder RequestRecorder
	logger   logging.Logger
}

// NewClient creates a Client that authenticates with tokens.
func NewClient(tokens TokenSource, cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRequestTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxConnsPerHost:     maxConnsPerHost,
				MaxIdleConnsPerHost: maxConnsPerHost,
			},
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.DefaultLogger()
	}

	client := resty.NewWithClient(cfg.HTTPClient).
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		http:     client,
		tokens:   tokens,
		recorder: cfg.Recorder,
		logger:   cfg.Logger,
	}
}

// Do sends req and returns the decoded JSON body.
//
// A 401 triggers exactly one credential refresh and one retry. Every other
// non-2xx response is classified immediately without retrying. A 204 or an
// empty body yields an empty object.
func (c *Client) Do(ctx context.Context, req Request) (json.RawMessage, error) {
	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}

	token, err := c.resolveToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, req, body, token, 1)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode() == http.StatusUnauthorized {
		c.logger.Info("Calendar API rejected the access token, refreshing once",
			"method", req.Method, "path", req.Path)

		token, err = c.refreshToken(ctx)
		if err != nil {
			return nil, err
		}
		resp, err = c.send(ctx, req, body, token, 2)
		if err != nil {
			return nil, err
		}
	}

	if !resp.IsSuccess() {
		classified := apierror.Classify(resp.StatusCode(), resp.Body())
		c.logger.Debug("Calendar API request failed",
			"method", req.Method,
			"path", req.Path,
			"status", resp.StatusCode(),
			"code", string(classified.Code))
		return nil, classified
	}

	return decodeBody(resp)
}

// resolveToken returns the stored access token, refreshing when none is usable.
func (c *Client) resolveToken(ctx context.Context) (string, error) {
	token, err := c.tokens.CurrentAccessToken(ctx)
	if err != nil {
		return "", err
	}
	if token != "" {
		return token, nil
	}

	return c.refreshToken(ctx)
}

// refreshToken forces one refresh and uses its token as is, even when the
// new expiry is already inside the validity buffer.
func (c *Client) refreshToken(ctx context.Context) (string, error) {
	token, err := c.tokens.RefreshAccessToken(ctx)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", apierror.ReauthRequired("Google access token could not be refreshed.")
	}
	return token, nil
}

func (c *Client) send(ctx context.Context, req Request, body []byte, token string, attempt int) (*resty.Response, error) {
	ctx, span := instrumentation.StartCalendarAPISpan(ctx, req.Method, req.Path, attempt)
	defer span.End()

	r := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeaders(req.Headers)
	if len(req.Query) > 0 {
		r.SetQueryParamsFromValues(req.Query)
	}
	if body != nil {
		r.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	start := time.Now()
	resp, err := r.Execute(req.Method, req.Path)
	duration := time.Since(start)

	if err != nil {
		c.record(ctx, req.Method, 0, duration)
		instrumentation.FinishCalendarAPISpan(span, 0, err)
		return nil, apierror.Upstream(http.StatusBadGateway, err,
			fmt.Sprintf("Google Calendar API request failed: %v", err))
	}

	c.record(ctx, req.Method, resp.StatusCode(), duration)
	instrumentation.FinishCalendarAPISpan(span, resp.StatusCode(), nil)
	return resp, nil
}

func (c *Client) record(ctx context.Context, method string, status int, duration time.Duration) {
	if c.recorder != nil {
		c.recorder.RecordCalendarAPIRequest(ctx, method, status, duration)
	}
}

func encodeBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	if raw, ok := body.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, apierror.Upstream(http.StatusInternalServerError, err, "unable to encode request body")
	}
	return data, nil
}

func decodeBody(resp *resty.Response) (json.RawMessage, error) {
	body := bytes.TrimSpace(resp.Body())
	if resp.StatusCode() == http.StatusNoContent || len(body) == 0 {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid(body) {
		return nil, apierror.New(apierror.CodeUpstream, http.StatusBadGateway,
			"Google Calendar API returned a response that is not JSON.")
	}
	return json.RawMessage(body), nil
}
