// SPDX-License-Identifier: MIT

package twitch

import (
	"errors"
	"fmt"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrUnauthorized = errors.New("helix: unauthorized")
	ErrNotFound     = errors.New("helix: resource not found")
	ErrUpstream     = errors.New("helix: upstream unreachable or internal error")
	ErrBadResponse  = errors.New("helix: invalid response format or malformed data")
)

// APIError is a rich error type that wraps the sentinel errors with context.
type APIError struct {
	Sentinel  error
	Operation string
	Status    int
	Body      string
	Err       error // Nested lower-level error (e.g. net.Error)
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("twitch: %s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Sentinel
}

// IsTokenFailure reports whether err originated in credential acquisition
// (app token mint or device grant) rather than a resource call. Callers use
// it to keep an identity outage from masquerading as a lookup problem.
func IsTokenFailure(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Operation == "token" || apiErr.Operation == "device"
}
