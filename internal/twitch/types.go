// SPDX-License-Identifier: MIT

package twitch

import (
	"context"
	"time"

	"github.com/vodsaver/vodsaver/internal/log"
)

// User is a channel owner as returned by the users endpoint.
type User struct {
	ID          string
	Login       string
	DisplayName string
}

// Video is one archived broadcast as returned by the videos endpoint.
type Video struct {
	ID          string
	Title       string
	URL         string
	Description string
	PublishedAt time.Time
	Duration    time.Duration
}

// Wire shapes. Helix wraps every collection in a "data" envelope.
type envelope[T any] struct {
	Data []T `json:"data"`
}

type userPayload struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

type streamPayload struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type videoPayload struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	PublishedAt string `json:"published_at"`
	Duration    string `json:"duration"`
}

func (p userPayload) toUser() User {
	return User{ID: p.ID, Login: p.Login, DisplayName: p.DisplayName}
}

// toVideo converts the wire payload. ID and a parseable published_at are
// mandatory; the caller treats a failure here as a malformed upstream
// response. Duration is best-effort and falls back to zero with a debug log.
func (p videoPayload) toVideo(ctx context.Context) (Video, error) {
	if p.ID == "" {
		return Video{}, &APIError{Sentinel: ErrBadResponse, Operation: "videos", Body: "missing video id"}
	}
	publishedAt, err := time.Parse(time.RFC3339, p.PublishedAt)
	if err != nil {
		return Video{}, &APIError{Sentinel: ErrBadResponse, Operation: "videos", Body: "unparseable published_at", Err: err}
	}
	duration, err := parseVideoDuration(p.Duration)
	if err != nil {
		logger := log.WithComponentFromContext(ctx, "twitch")
		logger.Debug().
			Str("video_id", p.ID).
			Str("duration", p.Duration).
			Msg("unparseable duration, using zero")
	}
	return Video{
		ID:          p.ID,
		Title:       p.Title,
		URL:         p.URL,
		Description: p.Description,
		PublishedAt: publishedAt,
		Duration:    duration,
	}, nil
}

// parseVideoDuration parses the compact "3h8m33s" format videos carry. An
// absent duration is a legitimate zero, not a parse failure.
func parseVideoDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
