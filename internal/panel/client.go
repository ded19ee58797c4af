// Package panel provides an authenticated REST client for one provisioning
// panel, with bounded retries, and the two-entry routing table that picks
// the mirror target for a webhook.
package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

var (
	// ErrAuth means token acquisition failed after exhausting retries.
	// Fatal for the current call chain.
	ErrAuth = errors.New("panel authentication failed")

	// ErrConflict means the panel reported the account already exists.
	// A distinguishable outcome, not a failure.
	ErrConflict = errors.New("account already exists on panel")

	// ErrNoResult means the request produced no usable result: transient
	// failures exhausted the attempt budget, or the panel answered with a
	// terminal client error. Callers fall back to the retry queue.
	ErrNoResult = errors.New("panel request produced no result")
)

const maxResponseBytes = 1 << 20

// Endpoint identifies one panel: base URL plus credentials.
type Endpoint struct {
	Name            string
	BaseURL         string
	Username        string
	Password        string
	URLMarker       string
	DefaultInbounds []string
}

// Options controls request execution behavior.
type Options struct {
	// Retry bounds token acquisition and request execution.
	Retry RetryPolicy

	// RequestTimeout is the per-attempt HTTP timeout.
	RequestTimeout time.Duration

	// FallbackSignatures mark a 404 body as an edge-proxy fallback page.
	FallbackSignatures []string
}

// Client is an authenticated REST client for one panel endpoint.
// It holds no durable state; every typed operation acquires its own token.
type Client struct {
	endpoint Endpoint
	opts     Options
	http     *http.Client
	logger   *slog.Logger
}

// NewClient creates a panel client. Zero option fields get defaults:
// 5 attempts, 500ms base delay, 10s request timeout.
func NewClient(ep Endpoint, opts Options, logger *slog.Logger) *Client {
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = 5
	}
	if opts.Retry.BaseDelay <= 0 {
		opts.Retry.BaseDelay = 500 * time.Millisecond
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		endpoint: ep,
		opts:     opts,
		http:     &http.Client{Timeout: opts.RequestTimeout},
		logger:   logger.With("panel", ep.Name),
	}
}

// Endpoint returns the panel endpoint this client talks to.
func (c *Client) Endpoint() Endpoint {
	return c.endpoint
}

// BaseURL returns the panel API origin.
func (c *Client) BaseURL() string {
	return c.endpoint.BaseURL
}

// statusError is an HTTP status from the panel that ended an attempt.
type statusError struct {
	status int
	body   []byte
}

func (e *statusError) Error() string {
	return fmt.Sprintf("panel returned status %d", e.status)
}

// statusOf extracts the panel HTTP status from an error chain, 0 if none.
func statusOf(err error) int {
	var se *statusError
	if errors.As(err, &se) {
		return se.status
	}
	return 0
}

// Token acquires a fresh access token by posting credentials to the panel
// auth endpoint. Non-200 responses are retried on the linear schedule; when
// the attempt budget runs out the whole call chain fails with ErrAuth.
func (c *Client) Token(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("username", c.endpoint.Username)
	form.Set("password", c.endpoint.Password)
	encoded := form.Encode()

	op := func() (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.endpoint.BaseURL+"/api/admin/token", strings.NewReader(encoded))
		if err != nil {
			return "", backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return "", err
		}

		if resp.StatusCode != http.StatusOK {
			return "", &statusError{status: resp.StatusCode, body: body}
		}

		var tr tokenResponse
		if err := json.Unmarshal(body, &tr); err != nil {
			return "", backoff.Permanent(fmt.Errorf("invalid token response: %w", err))
		}
		if tr.AccessToken == "" {
			return "", backoff.Permanent(fmt.Errorf("token response missing access_token"))
		}
		return tr.AccessToken, nil
	}

	token, err := backoff.Retry(ctx, op, c.opts.Retry.options()...)
	if err != nil {
		c.logger.Error("token acquisition failed", "error", err)
		return "", fmt.Errorf("%w: %v", ErrAuth, err)
	}
	return token, nil
}

// request acquires a token and executes one authenticated panel request
// through the retrying executor. The returned error is unmapped; typed
// operations translate it into the sentinel taxonomy.
func (c *Client) request(ctx context.Context, method, path string, body any) ([]byte, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}

	op := func() ([]byte, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.endpoint.BaseURL+path, reader)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			// Transport or timeout: retryable.
			return nil, err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, err
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return respBody, nil
		case resp.StatusCode >= 500:
			return nil, &statusError{status: resp.StatusCode, body: respBody}
		case resp.StatusCode == http.StatusNotFound && c.isFallbackPage(respBody):
			// The edge proxy served its fallback page; the panel itself
			// never saw the request. Retryable, unlike a genuine 404.
			return nil, &statusError{status: resp.StatusCode, body: respBody}
		default:
			return nil, backoff.Permanent(&statusError{status: resp.StatusCode, body: respBody})
		}
	}

	return backoff.Retry(ctx, op, c.opts.Retry.options()...)
}

// isFallbackPage reports whether a 404 body matches a configured
// edge-proxy fallback page signature.
func (c *Client) isFallbackPage(body []byte) bool {
	if len(c.opts.FallbackSignatures) == 0 {
		return false
	}
	text := string(body)
	for _, sig := range c.opts.FallbackSignatures {
		if sig != "" && strings.Contains(text, sig) {
			return true
		}
	}
	return false
}

// noResult wraps a failed request into the ErrNoResult sentinel, keeping
// ErrAuth failures distinct.
func noResult(op string, err error) error {
	if errors.Is(err, ErrAuth) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrNoResult, op, err)
}

// GetUser fetches an account by username.
func (c *Client) GetUser(ctx context.Context, username string) (*User, error) {
	body, err := c.request(ctx, http.MethodGet, "/api/user/"+url.PathEscape(username), nil)
	if err != nil {
		return nil, noResult("get user", err)
	}

	var u User
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, noResult("get user", err)
	}
	return &u, nil
}

// CreateUser creates an account with the panel's default inbound tags and
// no explicit expiry.
func (c *Client) CreateUser(ctx context.Context, username string) (*User, error) {
	return c.CreateUserWithOptions(ctx, username, "", c.endpoint.DefaultInbounds, 0)
}

// CreateUserWithOptions creates an account with an explicit proxy id,
// inbound tags, and expiry. Returns ErrConflict when the panel reports the
// account already exists, so callers can tell "already mirrored" from
// "call failed".
func (c *Client) CreateUserWithOptions(ctx context.Context, username, proxyID string, inbounds []string, expire int64) (*User, error) {
	if inbounds == nil {
		inbounds = []string{}
	}

	body := createRequest{
		Username: username,
		Proxies:  Proxies{VLESS: VLESSSettings{ID: proxyID, Flow: vlessFlow}},
		Inbounds: Inbounds{VLESS: inbounds},
	}
	if expire > 0 {
		body.Expire = expire
	}

	respBody, err := c.request(ctx, http.MethodPost, "/api/user", body)
	if err != nil {
		if statusOf(err) == http.StatusConflict {
			return nil, fmt.Errorf("%w: %s", ErrConflict, username)
		}
		return nil, noResult("create user", err)
	}

	var u User
	if err := json.Unmarshal(respBody, &u); err != nil {
		return nil, noResult("create user", err)
	}
	c.logger.Debug("user created", "username", username)
	return &u, nil
}

// ModifyUser updates an account's expiry.
func (c *Client) ModifyUser(ctx context.Context, username string, expire int64) (*User, error) {
	respBody, err := c.request(ctx, http.MethodPut, "/api/user/"+url.PathEscape(username), modifyRequest{Expire: expire})
	if err != nil {
		return nil, noResult("modify user", err)
	}

	var u User
	if err := json.Unmarshal(respBody, &u); err != nil {
		return nil, noResult("modify user", err)
	}
	return &u, nil
}

// DeleteUser removes an account.
func (c *Client) DeleteUser(ctx context.Context, username string) error {
	_, err := c.request(ctx, http.MethodDelete, "/api/user/"+url.PathEscape(username), nil)
	if err != nil {
		return noResult("delete user", err)
	}
	return nil
}
