// SPDX-License-Identifier: MIT

// Package naming maps a VOD's start timestamp and show name onto the
// Season/Episode layout media servers expect: month becomes the season,
// day-of-month becomes the episode.
package naming

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

var (
	forbiddenPattern  = regexp.MustCompile(`[\\/:*?"<>|]+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

const maxNameLength = 180

// Plan is the deterministic destination for one VOD.
type Plan struct {
	// Dir is the destination folder, relative to the output root.
	Dir string
	// Stem is the media filename without extension.
	Stem    string
	Season  int
	Episode int
}

// PlanFor computes the destination plan for a VOD that started at the given
// time. Pure: identical inputs always yield identical plans. The timestamp
// is normalized to UTC so the mapping never depends on the host timezone.
//
// Two VODs starting on the same calendar day collide on the same stem; the
// caller disambiguates (see the collision handling in the run orchestration).
func PlanFor(showName string, startedAt time.Time) Plan {
	utc := startedAt.UTC()
	show := SanitizeName(showName)
	season := int(utc.Month())
	episode := utc.Day()
	return Plan{
		Dir:     filepath.Join(show, fmt.Sprintf("Season %02d", season)),
		Stem:    fmt.Sprintf("%s - S%02dE%02d", show, season, episode),
		Season:  season,
		Episode: episode,
	}
}

// SanitizeName makes a string safe as a single path component. Unicode is
// NFC-normalized so visually identical names map to identical folders,
// filesystem-reserved characters collapse to "-", runs of whitespace
// collapse to single spaces, and overlong names are truncated.
func SanitizeName(value string) string {
	value = norm.NFC.String(value)
	value = forbiddenPattern.ReplaceAllString(value, "-")
	value = strings.TrimSpace(whitespacePattern.ReplaceAllString(value, " "))
	if value == "" {
		return "untitled"
	}
	if runes := []rune(value); len(runes) > maxNameLength {
		value = strings.TrimSpace(string(runes[:maxNameLength]))
	}
	return value
}
