// SPDX-License-Identifier: MIT
package twitch

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestAPIError_Sentinels(t *testing.T) {
	cases := []struct {
		name     string
		err      *APIError
		sentinel error
	}{
		{
			name:     "unauthorized",
			err:      &APIError{Sentinel: ErrUnauthorized, Operation: "users", Status: 401},
			sentinel: ErrUnauthorized,
		},
		{
			name:     "not found",
			err:      &APIError{Sentinel: ErrNotFound, Operation: "users", Status: 404},
			sentinel: ErrNotFound,
		},
		{
			name:     "upstream",
			err:      &APIError{Sentinel: ErrUpstream, Operation: "videos", Status: 503},
			sentinel: ErrUpstream,
		},
		{
			name:     "bad response",
			err:      &APIError{Sentinel: ErrBadResponse, Operation: "videos"},
			sentinel: ErrBadResponse,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if !errors.Is(tc.err, tc.sentinel) {
				t.Errorf("expected sentinel %v, got %v", tc.sentinel, tc.err)
			}

			var apiErr *APIError
			if !errors.As(error(tc.err), &apiErr) {
				t.Fatal("expected error to be *APIError")
			}
			if apiErr.Operation != tc.err.Operation {
				t.Errorf("expected operation %s, got %s", tc.err.Operation, apiErr.Operation)
			}
		})
	}
}

func TestAPIError_Message(t *testing.T) {
	err := &APIError{
		Sentinel:  ErrUpstream,
		Operation: "videos",
		Status:    502,
		Body:      "bad gateway",
		Err:       fmt.Errorf("connection reset"),
	}

	msg := err.Error()
	for _, want := range []string{"twitch:", "videos", "HTTP 502", "bad gateway", "connection reset"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

func TestAPIError_WrappedThroughFmt(t *testing.T) {
	inner := &APIError{Sentinel: ErrUnauthorized, Operation: "token", Status: 403}
	wrapped := fmt.Errorf("processing somechannel: %w", inner)

	if !errors.Is(wrapped, ErrUnauthorized) {
		t.Error("sentinel should survive fmt.Errorf wrapping")
	}
	var apiErr *APIError
	if !errors.As(wrapped, &apiErr) {
		t.Fatal("expected to recover *APIError")
	}
	if apiErr.Status != 403 {
		t.Errorf("Status = %d, want 403", apiErr.Status)
	}
}

func TestIsTokenFailure(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "token mint outage",
			err:  &APIError{Sentinel: ErrUpstream, Operation: "token", Status: 503},
			want: true,
		},
		{
			name: "token rejected",
			err:  &APIError{Sentinel: ErrUnauthorized, Operation: "token", Status: 401},
			want: true,
		},
		{
			name: "device grant",
			err:  &APIError{Sentinel: ErrUnauthorized, Operation: "device", Status: 403},
			want: true,
		},
		{
			name: "wrapped token failure",
			err:  fmt.Errorf("resolve user: %w", &APIError{Sentinel: ErrUpstream, Operation: "token"}),
			want: true,
		},
		{
			name: "resource call",
			err:  &APIError{Sentinel: ErrUpstream, Operation: "videos", Status: 502},
			want: false,
		},
		{
			name: "plain error",
			err:  errors.New("connection reset"),
			want: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTokenFailure(tc.err); got != tc.want {
				t.Errorf("IsTokenFailure = %v, want %v", got, tc.want)
			}
		})
	}
}
