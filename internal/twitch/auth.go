// SPDX-License-Identifier: MIT

package twitch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultIDBaseURL is the production identity endpoint.
const DefaultIDBaseURL = "https://id.twitch.tv"

// expiryMargin is subtracted from a token's lifetime so a cached token is
// never handed out moments before the platform rejects it.
const expiryMargin = time.Minute

// TokenSource supplies a bearer credential for API calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenSource returns a fixed credential, typically a user OAuth token
// taken from the environment.
type StaticTokenSource string

// Token implements TokenSource.
func (s StaticTokenSource) Token(_ context.Context) (string, error) {
	return string(s), nil
}

// AppTokenSource mints app access tokens via the client credentials grant
// and caches them until shortly before expiry. Safe for concurrent use.
type AppTokenSource struct {
	ClientID     string
	ClientSecret string
	BaseURL      string       // identity endpoint, defaults to DefaultIDBaseURL
	HTTPClient   *http.Client // defaults to a 30s-timeout client

	mu      sync.Mutex
	token   string
	expires time.Time
	now     func() time.Time
}

type tokenPayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// Token implements TokenSource. It returns the cached token when still
// valid, otherwise requests a fresh one.
func (s *AppTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.now == nil {
		s.now = time.Now
	}
	if s.token != "" && s.now().Before(s.expires) {
		return s.token, nil
	}

	form := url.Values{}
	form.Set("client_id", s.ClientID)
	form.Set("client_secret", s.ClientSecret)
	form.Set("grant_type", "client_credentials")

	var payload tokenPayload
	if err := postForm(ctx, s.httpClient(), s.baseURL()+"/oauth2/token", form, "token", &payload); err != nil {
		return "", err
	}
	if payload.AccessToken == "" {
		return "", &APIError{Sentinel: ErrBadResponse, Operation: "token", Body: "empty access_token"}
	}

	s.token = payload.AccessToken
	lifetime := time.Duration(payload.ExpiresIn) * time.Second
	if lifetime > expiryMargin {
		lifetime -= expiryMargin
	}
	s.expires = s.now().Add(lifetime)
	return s.token, nil
}

func (s *AppTokenSource) baseURL() string {
	if strings.TrimSpace(s.BaseURL) == "" {
		return DefaultIDBaseURL
	}
	return strings.TrimRight(s.BaseURL, "/")
}

func (s *AppTokenSource) httpClient() *http.Client {
	if s.HTTPClient != nil {
		return s.HTTPClient
	}
	return &http.Client{Timeout: defaultTimeout}
}

// DeviceAuthorization is the identity service's response to a device code
// request. The user visits VerificationURI and enters UserCode.
type DeviceAuthorization struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

// DeviceToken is the token document issued once the user approves access.
type DeviceToken struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int      `json:"expires_in"`
	Scope        []string `json:"scope"`
	TokenType    string   `json:"token_type"`
}

// DeviceCodeFlow drives the OAuth device authorization grant for user-level
// tokens, which unlock subscriber-only archives.
type DeviceCodeFlow struct {
	ClientID   string
	BaseURL    string       // identity endpoint, defaults to DefaultIDBaseURL
	HTTPClient *http.Client // defaults to a 30s-timeout client
}

// Authorize requests a device and user code pair for the given scopes.
func (f *DeviceCodeFlow) Authorize(ctx context.Context, scopes string) (*DeviceAuthorization, error) {
	form := url.Values{}
	form.Set("client_id", f.ClientID)
	form.Set("scopes", scopes)

	var auth DeviceAuthorization
	if err := postForm(ctx, f.httpClient(), f.baseURL()+"/oauth2/device", form, "device", &auth); err != nil {
		return nil, err
	}
	if auth.DeviceCode == "" || auth.UserCode == "" {
		return nil, &APIError{Sentinel: ErrBadResponse, Operation: "device", Body: "incomplete device authorization"}
	}
	return &auth, nil
}

// Poll blocks until the user approves the device, the authorization expires
// or the context is cancelled. Pending and slow-down responses (400, 428,
// 429) keep the poll alive per the device grant protocol.
func (f *DeviceCodeFlow) Poll(ctx context.Context, auth *DeviceAuthorization) (*DeviceToken, error) {
	interval := time.Duration(auth.Interval) * time.Second
	if interval < time.Second {
		interval = 5 * time.Second
	}

	deadline := time.Now().Add(time.Duration(auth.ExpiresIn) * time.Second)
	form := url.Values{}
	form.Set("client_id", f.ClientID)
	form.Set("device_code", auth.DeviceCode)
	form.Set("grant_type", "urn:ietf:params:oauth:grant-type:device_code")

	for {
		if err := sleepWithContext(ctx, interval); err != nil {
			return nil, err
		}
		if auth.ExpiresIn > 0 && time.Now().After(deadline) {
			return nil, &APIError{Sentinel: ErrUnauthorized, Operation: "device", Body: "device code expired before approval"}
		}

		var token DeviceToken
		err := postForm(ctx, f.httpClient(), f.baseURL()+"/oauth2/token", form, "device", &token)
		if err == nil {
			return &token, nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && pendingStatus(apiErr.Status) {
			// 429 is the slow_down signal; back off per the device grant.
			if apiErr.Status == http.StatusTooManyRequests {
				interval += 5 * time.Second
			}
			continue
		}
		return nil, err
	}
}

// pendingStatus reports whether the token endpoint asked us to keep polling:
// 400 carries authorization_pending or slow_down, 428/429 are throttles.
func pendingStatus(status int) bool {
	switch status {
	case http.StatusBadRequest, http.StatusPreconditionRequired, http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

func (f *DeviceCodeFlow) baseURL() string {
	if strings.TrimSpace(f.BaseURL) == "" {
		return DefaultIDBaseURL
	}
	return strings.TrimRight(f.BaseURL, "/")
}

func (f *DeviceCodeFlow) httpClient() *http.Client {
	if f.HTTPClient != nil {
		return f.HTTPClient
	}
	return &http.Client{Timeout: defaultTimeout}
}

// postForm submits a form to the identity service and decodes the JSON
// response. Non-200 statuses map onto the sentinel taxonomy.
func postForm(ctx context.Context, client *http.Client, rawURL string, form url.Values, op string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return &APIError{Sentinel: ErrUpstream, Operation: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return &APIError{Sentinel: ErrUpstream, Operation: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		sentinel := ErrUnauthorized
		if resp.StatusCode >= http.StatusInternalServerError {
			sentinel = ErrUpstream
		}
		return &APIError{Sentinel: sentinel, Operation: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &APIError{Sentinel: ErrBadResponse, Operation: op, Err: fmt.Errorf("decode error: %w", err)}
	}
	return nil
}
