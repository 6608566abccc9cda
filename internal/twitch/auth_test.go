// SPDX-License-Identifier: MIT
package twitch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestStaticTokenSource(t *testing.T) {
	src := StaticTokenSource("user-token")
	tok, err := src.Token(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok != "user-token" {
		t.Errorf("Token = %q, want user-token", tok)
	}
}

func TestAppTokenSource(t *testing.T) {
	var calls atomic.Int32
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost || r.URL.Path != "/oauth2/token" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if r.PostForm.Get("client_id") != "cid" || r.PostForm.Get("client_secret") != "sec" {
			t.Errorf("unexpected credentials %v", r.PostForm)
		}
		if r.PostForm.Get("grant_type") != "client_credentials" {
			t.Errorf("grant_type = %q", r.PostForm.Get("grant_type"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "app-token",
			"expires_in":   3600,
			"token_type":   "bearer",
		})
	}))
	defer s.Close()

	src := &AppTokenSource{ClientID: "cid", ClientSecret: "sec", BaseURL: s.URL}

	tok, err := src.Token(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok != "app-token" {
		t.Errorf("Token = %q, want app-token", tok)
	}

	// Second call hits the cache, not the server.
	tok, err = src.Token(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok != "app-token" {
		t.Errorf("Token = %q, want app-token", tok)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 token request, got %d", got)
	}
}

func TestAppTokenSourceRefreshAfterExpiry(t *testing.T) {
	var calls atomic.Int32
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-" + string(rune('0'+n)),
			"expires_in":   3600,
		})
	}))
	defer s.Close()

	now := time.Now()
	src := &AppTokenSource{ClientID: "cid", ClientSecret: "sec", BaseURL: s.URL}
	src.now = func() time.Time { return now }

	tok, err := src.Token(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if tok != "tok-1" {
		t.Errorf("Token = %q", tok)
	}

	// Advance the clock past the cached expiry.
	now = now.Add(2 * time.Hour)
	tok, err = src.Token(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if tok != "tok-2" {
		t.Errorf("Token = %q, want refreshed token", tok)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("expected 2 token requests, got %d", got)
	}
}

func TestAppTokenSourceUnauthorized(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"status":403,"message":"invalid client secret"}`))
	}))
	defer s.Close()

	src := &AppTokenSource{ClientID: "cid", ClientSecret: "bad", BaseURL: s.URL}
	_, err := src.Token(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Operation != "token" {
		t.Errorf("Operation = %q, want token", apiErr.Operation)
	}
}

func TestDeviceCodeFlowAuthorize(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth2/device" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if r.PostForm.Get("client_id") != "cid" || r.PostForm.Get("scopes") != "user:read:subscriptions" {
			t.Errorf("unexpected form %v", r.PostForm)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"device_code":      "dev-123",
			"user_code":        "ABCD-1234",
			"verification_uri": "https://www.twitch.tv/activate",
			"expires_in":       1800,
			"interval":         5,
		})
	}))
	defer s.Close()

	flow := &DeviceCodeFlow{ClientID: "cid", BaseURL: s.URL}
	auth, err := flow.Authorize(context.Background(), "user:read:subscriptions")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if auth.DeviceCode != "dev-123" || auth.UserCode != "ABCD-1234" {
		t.Errorf("unexpected authorization: %+v", auth)
	}
	if auth.Interval != 5 {
		t.Errorf("Interval = %d, want 5", auth.Interval)
	}
}

func TestDeviceCodeFlowPoll(t *testing.T) {
	var calls atomic.Int32
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth2/token" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if got := r.PostForm.Get("grant_type"); got != "urn:ietf:params:oauth:grant-type:device_code" {
			t.Errorf("grant_type = %q", got)
		}
		// Pending twice, then approve.
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"status":400,"message":"authorization_pending"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "user-access",
			"refresh_token": "user-refresh",
			"expires_in":    14400,
			"scope":         []string{"user:read:subscriptions"},
			"token_type":    "bearer",
		})
	}))
	defer s.Close()

	flow := &DeviceCodeFlow{ClientID: "cid", BaseURL: s.URL}
	auth := &DeviceAuthorization{DeviceCode: "dev-123", UserCode: "ABCD", ExpiresIn: 60, Interval: 1}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	token, err := flow.Poll(ctx, auth)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token.AccessToken != "user-access" || token.RefreshToken != "user-refresh" {
		t.Errorf("unexpected token: %+v", token)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 polls, got %d", got)
	}
}

func TestDeviceCodeFlowPollFatal(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"status":403,"message":"access_denied"}`))
	}))
	defer s.Close()

	flow := &DeviceCodeFlow{ClientID: "cid", BaseURL: s.URL}
	auth := &DeviceAuthorization{DeviceCode: "dev-123", ExpiresIn: 60, Interval: 1}

	_, err := flow.Poll(context.Background(), auth)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestDeviceCodeFlowPollCancelled(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":400,"message":"authorization_pending"}`))
	}))
	defer s.Close()

	flow := &DeviceCodeFlow{ClientID: "cid", BaseURL: s.URL}
	auth := &DeviceAuthorization{DeviceCode: "dev-123", ExpiresIn: 600, Interval: 1}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := flow.Poll(ctx, auth)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline, got %v", err)
	}
}
