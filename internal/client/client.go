// Package client provides an API client that silently renews expired access
// tokens. Many requests can fail on an expired token at once; naive per-request
// refreshing rotates the refresh token repeatedly and spuriously logs out a
// healthy session. The coordinator below guarantees at most one in-flight
// refresh attempt, with every waiting request sharing its outcome.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dealstream/api/internal/domain"
)

// ErrLoggedOut is returned for every request once the session has been torn
// down by a failed refresh. No further refresh attempts are made.
var ErrLoggedOut = errors.New("logged out")

type retryKey struct{}

func markRetry(ctx context.Context) context.Context {
	return context.WithValue(ctx, retryKey{}, true)
}

func isRetry(ctx context.Context) bool {
	v, _ := ctx.Value(retryKey{}).(bool)
	return v
}

// Client is an HTTP client for the dealstream API with transparent token
// renewal. Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu          sync.RWMutex
	accessToken string

	// One shared pending refresh; concurrent 401s queue on it instead of
	// issuing their own refresh calls.
	refreshGroup singleflight.Group

	loggedOut  bool
	logoutOnce sync.Once
	onLogout   func()
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client. A cookie jar is
// attached if the client has none, since refresh is cookie-driven.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogoutHandler registers a callback fired exactly once when the session
// is terminally logged out.
func WithLogoutHandler(fn func()) Option {
	return func(c *Client) { c.onLogout = fn }
}

// New creates an API client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	if c.httpClient.Jar == nil {
		jar, _ := cookiejar.New(nil)
		c.httpClient.Jar = jar
	}
	return c
}

// SetAccessToken installs the access token used for the Authorization header.
// Called after login and after every successful refresh.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	c.accessToken = token
	c.mu.Unlock()
}

// AccessToken returns the current access token.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// LoggedOut reports whether the session has been terminally torn down.
func (c *Client) LoggedOut() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loggedOut
}

// Do sends the request with the current access token. On a 401 it joins the
// shared refresh, then replays the request exactly once with the rotated
// token. A 401 on the replay is returned to the caller rather than triggering
// another refresh, so a downstream rejection cannot loop.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.LoggedOut() {
		return nil, ErrLoggedOut
	}

	sent := c.AccessToken()
	res, err := c.send(req, sent)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusUnauthorized || isRetry(req.Context()) {
		return res, nil
	}
	res.Body.Close()

	token, err := c.refresh(sent)
	if err != nil {
		return nil, err
	}

	retry, err := cloneRequest(req.WithContext(markRetry(req.Context())))
	if err != nil {
		return nil, err
	}
	return c.send(retry, token)
}

func (c *Client) send(req *http.Request, token string) (*http.Response, error) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.httpClient.Do(req)
}

// refresh performs or joins the single in-flight refresh attempt. Every
// queued caller receives the same outcome: the rotated access token, or the
// shared failure after which the session is logged out exactly once. The
// stale argument is the token the failed request carried; if a sibling
// already rotated past it, the rotated token is reused without another call.
func (c *Client) refresh(stale string) (string, error) {
	v, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		if c.LoggedOut() {
			return nil, ErrLoggedOut
		}
		if current := c.AccessToken(); current != "" && current != stale {
			return current, nil
		}

		pair, err := c.callRefresh()
		if err != nil {
			c.logout()
			return nil, fmt.Errorf("%w: %v", ErrLoggedOut, err)
		}

		c.SetAccessToken(pair.AccessToken)
		return pair.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// callRefresh hits the refresh endpoint. The refresh token travels in the
// cookie jar; the leader uses its own timeout so a queued caller's cancelled
// context cannot fail the refresh for everyone.
func (c *Client) callRefresh() (*domain.TokenPair, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/auth/refresh", nil)
	if err != nil {
		return nil, err
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("refresh rejected with status %d", res.StatusCode)
	}

	var envelope struct {
		Success bool              `json:"success"`
		Data    *domain.TokenPair `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if !envelope.Success || envelope.Data == nil {
		return nil, errors.New("malformed refresh response")
	}

	return envelope.Data, nil
}

// logout tears down local session state. Runs at most once no matter how many
// callers fail simultaneously.
func (c *Client) logout() {
	c.logoutOnce.Do(func() {
		c.mu.Lock()
		c.loggedOut = true
		c.accessToken = ""
		c.mu.Unlock()

		if c.onLogout != nil {
			c.onLogout()
		}
	})
}

// cloneRequest rebuilds the request for a replay, restoring the body where
// possible.
func cloneRequest(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body != nil && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		clone.Body = body
	}
	return clone, nil
}
