// SPDX-License-Identifier: MIT

package twitch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vodsaver/vodsaver/internal/log"
)

// DefaultBaseURL is the production Helix endpoint.
const DefaultBaseURL = "https://api.twitch.tv/helix"

const (
	defaultTimeout        = 30 * time.Second
	defaultRetries        = 2
	defaultBackoff        = 200 * time.Millisecond
	defaultMaxBackoff     = 2 * time.Second
	defaultRateLimit      = 5
	defaultRateLimitBurst = 10
	errorBodyLimit        = 512
)

// Client interacts with the Helix API.
type Client struct {
	BaseURL    string
	ClientID   string
	HTTPClient *http.Client
	tokens     TokenSource
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
	userAgent  string
	rnd        *rand.Rand
	mu         sync.Mutex
}

// Options configures the Helix client behavior.
type Options struct {
	BaseURL        string
	Timeout        time.Duration
	MaxRetries     int
	Backoff        time.Duration
	MaxBackoff     time.Duration
	UserAgent      string
	RateLimit      rate.Limit
	RateLimitBurst int
}

// NewClient creates a new Helix client. The token source supplies the bearer
// credential attached to every request.
func NewClient(clientID string, tokens TokenSource, opts Options) *Client {
	nopts := normalizeOptions(opts)
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}

	return &Client{
		BaseURL:  strings.TrimRight(nopts.BaseURL, "/"),
		ClientID: clientID,
		HTTPClient: &http.Client{
			Timeout:   nopts.Timeout,
			Transport: transport,
		},
		tokens:     tokens,
		limiter:    rate.NewLimiter(nopts.RateLimit, nopts.RateLimitBurst),
		maxRetries: nopts.MaxRetries,
		backoff:    nopts.Backoff,
		maxBackoff: nopts.MaxBackoff,
		userAgent:  nopts.UserAgent,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- jitter only
	}
}

func normalizeOptions(opts Options) Options {
	if strings.TrimSpace(opts.BaseURL) == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultRetries
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = rate.Limit(defaultRateLimit)
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = defaultRateLimitBurst
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = "vodsaver"
	}
	return opts
}

// UserByLogin resolves a channel login to its user record.
func (c *Client) UserByLogin(ctx context.Context, login string) (*User, error) {
	params := url.Values{}
	params.Set("login", login)

	var res envelope[userPayload]
	if err := c.get(ctx, "users", "/users", params, &res); err != nil {
		return nil, err
	}
	if len(res.Data) == 0 {
		return nil, &APIError{Sentinel: ErrNotFound, Operation: "users", Body: fmt.Sprintf("no user for login %q", login)}
	}
	user := res.Data[0].toUser()
	return &user, nil
}

// IsLive reports whether the user currently has a running broadcast.
func (c *Client) IsLive(ctx context.Context, userID string) (bool, error) {
	params := url.Values{}
	params.Set("user_id", userID)
	params.Set("first", "1")

	var res envelope[streamPayload]
	if err := c.get(ctx, "streams", "/streams", params, &res); err != nil {
		return false, err
	}
	return len(res.Data) > 0, nil
}

// LatestVOD returns the user's most recent archived broadcast, or nil when
// the channel has no archives at all.
func (c *Client) LatestVOD(ctx context.Context, userID string) (*Video, error) {
	params := url.Values{}
	params.Set("user_id", userID)
	params.Set("first", "1")
	params.Set("type", "archive")
	params.Set("sort", "time")

	var res envelope[videoPayload]
	if err := c.get(ctx, "videos", "/videos", params, &res); err != nil {
		return nil, err
	}
	if len(res.Data) == 0 {
		return nil, nil
	}
	video, err := res.Data[0].toVideo(ctx)
	if err != nil {
		return nil, err
	}
	return &video, nil
}

func (c *Client) get(ctx context.Context, op, path string, params url.Values, v interface{}) error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return &APIError{Sentinel: ErrUpstream, Operation: op, Err: fmt.Errorf("invalid base URL: %w", err)}
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = params.Encode()

	resp, err := c.doGet(ctx, op, u.String())
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &APIError{Sentinel: ErrBadResponse, Operation: op, Err: err}
	}
	return nil
}

// doGet performs the request with rate limiting and bounded retries. Only
// transport errors, 429 and 5xx responses are retried; auth and not-found
// failures surface immediately.
func (c *Client) doGet(ctx context.Context, op, rawURL string) (*http.Response, error) {
	logger := log.WithComponentFromContext(ctx, "twitch")

	maxAttempts := c.maxRetries + 1
	var lastErr error
	var lastStatus int
	var lastBody string
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, &APIError{Sentinel: ErrUpstream, Operation: op, Err: err}
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, &APIError{Sentinel: ErrUpstream, Operation: op, Err: err}
		}
		if err := c.applyHeaders(ctx, req); err != nil {
			return nil, err
		}

		start := time.Now()
		resp, err := c.HTTPClient.Do(req)
		duration := time.Since(start)

		status := 0
		if resp != nil {
			status = resp.StatusCode
		}

		if err == nil && status == http.StatusOK {
			return resp, nil
		}

		// Terminal statuses map to their sentinel without retrying.
		if err == nil {
			body := readErrorBody(resp)
			switch {
			case status == http.StatusUnauthorized || status == http.StatusForbidden:
				return nil, &APIError{Sentinel: ErrUnauthorized, Operation: op, Status: status, Body: body}
			case status == http.StatusNotFound:
				return nil, &APIError{Sentinel: ErrNotFound, Operation: op, Status: status, Body: body}
			case status != http.StatusTooManyRequests && status < http.StatusInternalServerError:
				return nil, &APIError{Sentinel: ErrUpstream, Operation: op, Status: status, Body: body}
			}
			lastStatus = status
			lastBody = body
			lastErr = nil
		} else {
			if resp != nil {
				_, _ = io.Copy(io.Discard, resp.Body)
				_ = resp.Body.Close()
			}
			lastErr = err
			lastStatus = 0
			lastBody = ""
		}

		if attempt >= maxAttempts {
			break
		}

		wait := c.backoffFor(attempt - 1)
		logger.Debug().
			Str("op", op).
			Int("attempt", attempt).
			Int("status", status).
			Dur("duration", duration).
			Dur("backoff", wait).
			Msg("retrying request")
		if err := sleepWithContext(ctx, wait); err != nil {
			return nil, &APIError{Sentinel: ErrUpstream, Operation: op, Err: err}
		}
	}

	return nil, &APIError{Sentinel: ErrUpstream, Operation: op, Status: lastStatus, Body: lastBody, Err: lastErr}
}

func (c *Client) applyHeaders(ctx context.Context, req *http.Request) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Client-Id", c.ClientID)
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return nil
}

func readErrorBody(resp *http.Response) string {
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func (c *Client) backoffFor(attempt int) time.Duration {
	wait := c.backoff * time.Duration(1<<attempt)
	if wait > c.maxBackoff {
		wait = c.maxBackoff
	}
	jitter := time.Duration(c.randInt63n(int64(wait/5 + 1)))
	return wait + jitter
}

func (c *Client) randInt63n(n int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rnd.Int63n(n)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
