package lichess

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

const (
	DefaultBaseURL   = "https://lichess.org"
	defaultUserAgent = "cheese-lichess-bot"
)

var (
	ErrBadRequest   = errors.New("lichess: bad request")
	ErrUnauthorized = errors.New("lichess: unauthorized")
	ErrNotFound     = errors.New("lichess: not found")
	ErrRateLimited  = errors.New("lichess: rate limited")
)

// APIError is a non-2xx response. errors.Is matches the sentinel for its status.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lichess api error: status=%d body=%s", e.Status, e.Body)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrBadRequest:
		return e.Status == fasthttp.StatusBadRequest
	case ErrUnauthorized:
		return e.Status == fasthttp.StatusUnauthorized || e.Status == fasthttp.StatusForbidden
	case ErrNotFound:
		return e.Status == fasthttp.StatusNotFound
	case ErrRateLimited:
		return e.Status == fasthttp.StatusTooManyRequests
	}
	return false
}

// Client performs the platform's short request/response calls.
type Client struct {
	baseURL   string
	token     string
	userAgent string
	http      *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

// WithRetry sets the attempt count for retryable calls (move submission).
func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

func NewClient(baseURL, token string, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		token:          strings.TrimSpace(token),
		userAgent:      defaultUserAgent,
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

// Account returns the identity the token belongs to.
func (c *Client) Account(ctx context.Context) (*Account, error) {
	var acct Account
	if err := c.do(ctx, fasthttp.MethodGet, "/api/account", nil, &acct, false); err != nil {
		return nil, err
	}
	if strings.TrimSpace(acct.ID) == "" {
		return nil, fmt.Errorf("account response without id")
	}
	return &acct, nil
}

func (c *Client) AcceptChallenge(ctx context.Context, challengeID string) error {
	return c.do(ctx, fasthttp.MethodPost, "/api/challenge/"+url.PathEscape(challengeID)+"/accept", nil, nil, false)
}

func (c *Client) DeclineChallenge(ctx context.Context, challengeID string, reason DeclineReason) error {
	form := url.Values{}
	if reason != "" {
		form.Set("reason", string(reason))
	}
	return c.do(ctx, fasthttp.MethodPost, "/api/challenge/"+url.PathEscape(challengeID)+"/decline", form, nil, false)
}

// MakeMove submits a coordinate-notation move. Transport errors and 429/5xx
// responses are retried with backoff; any other status is returned at once.
func (c *Client) MakeMove(ctx context.Context, gameID, move string) error {
	path := "/api/bot/game/" + url.PathEscape(gameID) + "/move/" + url.PathEscape(move)
	return c.do(ctx, fasthttp.MethodPost, path, nil, nil, true)
}

// SendChat posts text to the player or spectator room of a game.
func (c *Client) SendChat(ctx context.Context, gameID, room, text string) error {
	form := url.Values{}
	form.Set("room", room)
	form.Set("text", text)
	return c.do(ctx, fasthttp.MethodPost, "/api/bot/game/"+url.PathEscape(gameID)+"/chat", form, nil, false)
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out any, retry bool) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.Set("Accept", "application/json")
	req.Header.SetUserAgent(c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if form != nil {
		req.Header.SetContentType("application/x-www-form-urlencoded")
		req.SetBodyString(form.Encode())
	}

	attempts := 1
	if retry && c.retryMax > 1 {
		attempts = c.retryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			lastErr = fmt.Errorf("request %s %s failed: %w", method, path, err)
			if attempt == attempts {
				return lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			apiErr := &APIError{Status: status, Body: truncate(string(resp.Body()), 512)}
			if attempt == attempts || !shouldRetryStatus(status) {
				return apiErr
			}
			lastErr = apiErr
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		if out != nil {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base // 100ms, 200ms ...
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
