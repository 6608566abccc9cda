// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vodsaver/vodsaver/internal/validate"
)

// Defaults for tunables that are rarely overridden.
const (
	DefaultAPITimeout = 30 * time.Second
	DefaultAPIRetries = 2
	DefaultMetricsJob = "vodsaver"
	DefaultYtdlpBin   = "yt-dlp"
)

// Config is the immutable process configuration, constructed once at startup
// and passed by reference into the run orchestration.
type Config struct {
	// Channels holds the normalized (lowercased) channel logins to process,
	// in order. ShowNames maps positionally onto Channels; missing or empty
	// entries fall back to the channel login.
	Channels  []string
	ShowNames []string

	ClientID     string
	ClientSecret string
	// UserToken, when set, is used as the bearer credential instead of
	// minting an app access token from ClientID/ClientSecret.
	UserToken string

	CookiesPath string
	OutputDir   string
	// StatePath is the raw STATE_PATH setting. Per-channel resolution
	// happens in Targets via ResolveStatePath.
	StatePath string

	YtdlpPath      string
	YtdlpExtraArgs []string

	APITimeout      time.Duration
	APIRetries      int
	DownloadTimeout time.Duration

	LockPath string

	MetricsPushURL string
	MetricsJob     string

	LogLevel string
}

// Target is one channel's fully resolved processing parameters.
type Target struct {
	Channel   string
	ShowName  string
	StatePath string
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	channelsValue := ParseString("TWITCH_CHANNELS", "")
	if strings.TrimSpace(channelsValue) == "" {
		channelsValue = ParseString("TWITCH_CHANNEL", "")
	}

	cfg := &Config{
		Channels:        NormalizeChannels(channelsValue),
		ShowNames:       normalizeShowNames(ParseString("SHOW_NAMES", "")),
		ClientID:        ParseString("TWITCH_CLIENT_ID", ""),
		ClientSecret:    ParseString("TWITCH_CLIENT_SECRET", ""),
		UserToken:       ParseString("TWITCH_USER_OAUTH_TOKEN", ""),
		CookiesPath:     ParseString("COOKIES_PATH", ""),
		OutputDir:       ParseString("OUTPUT_DIR", ""),
		StatePath:       ParseString("STATE_PATH", ""),
		YtdlpPath:       ParseString("YTDLP_PATH", DefaultYtdlpBin),
		YtdlpExtraArgs:  strings.Fields(ParseString("YTDLP_EXTRA_ARGS", "")),
		APITimeout:      ParseDuration("VODSAVER_API_TIMEOUT", DefaultAPITimeout),
		APIRetries:      ParseInt("VODSAVER_API_RETRIES", DefaultAPIRetries),
		DownloadTimeout: ParseDuration("VODSAVER_DOWNLOAD_TIMEOUT", 0),
		MetricsPushURL:  ParseString("VODSAVER_METRICS_PUSH_URL", ""),
		MetricsJob:      ParseString("VODSAVER_METRICS_JOB", DefaultMetricsJob),
		LogLevel:        ParseString("LOG_LEVEL", "info"),
	}
	cfg.LockPath = ParseString("VODSAVER_LOCK_PATH", filepath.Join(cfg.OutputDir, ".vodsaver.lock"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for completeness and consistency.
// OutputDir is created when missing so later stages can assume it exists.
func (c *Config) Validate() error {
	v := validate.New()

	if len(c.Channels) == 0 {
		v.AddError("TWITCH_CHANNELS", "at least one channel is required (TWITCH_CHANNELS or TWITCH_CHANNEL)", "")
	}
	v.NotEmpty("TWITCH_CLIENT_ID", c.ClientID)
	if c.UserToken == "" {
		v.NotEmpty("TWITCH_CLIENT_SECRET", c.ClientSecret)
	}
	v.File("COOKIES_PATH", c.CookiesPath)
	v.Directory("OUTPUT_DIR", c.OutputDir, false)
	v.NonNegative("VODSAVER_API_RETRIES", c.APIRetries)
	if c.APITimeout <= 0 {
		v.AddError("VODSAVER_API_TIMEOUT", "timeout must be positive", c.APITimeout.String())
	}
	if c.DownloadTimeout < 0 {
		v.AddError("VODSAVER_DOWNLOAD_TIMEOUT", "timeout cannot be negative", c.DownloadTimeout.String())
	}
	v.OneOf("LOG_LEVEL", c.LogLevel, []string{"debug", "info", "warn", "error"})
	if c.MetricsPushURL != "" {
		v.URL("VODSAVER_METRICS_PUSH_URL", c.MetricsPushURL, []string{"http", "https"})
	}

	return v.Err()
}

// Targets resolves the per-channel processing parameters.
func (c *Config) Targets() []Target {
	multi := len(c.Channels) > 1
	targets := make([]Target, 0, len(c.Channels))
	for i, channel := range c.Channels {
		targets = append(targets, Target{
			Channel:   channel,
			ShowName:  c.showName(i),
			StatePath: ResolveStatePath(c.StatePath, c.OutputDir, channel, multi),
		})
	}
	return targets
}

func (c *Config) showName(index int) string {
	if index < len(c.ShowNames) {
		if name := strings.TrimSpace(c.ShowNames[index]); name != "" {
			return name
		}
	}
	return c.Channels[index]
}

// NormalizeChannels splits a comma-separated channel list, trimming
// whitespace and lowercasing each login. Empty entries are dropped and
// duplicates keep their first position.
func NormalizeChannels(value string) []string {
	var channels []string
	seen := make(map[string]struct{})
	for _, c := range strings.Split(value, ",") {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		channels = append(channels, c)
	}
	return channels
}

// normalizeShowNames keeps positions so entries map onto Channels by index.
func normalizeShowNames(value string) []string {
	if value == "" {
		return nil
	}
	names := strings.Split(value, ",")
	for i := range names {
		names[i] = strings.TrimSpace(names[i])
	}
	return names
}

// ResolveStatePath maps the STATE_PATH setting to the state file for one
// channel. An empty setting defaults to <outputDir>/state/<channel>.json.
// With a single channel an explicit setting is used verbatim. With multiple
// channels the setting is treated as a directory unless it points at (or
// looks like) a single file, in which case per-channel files go into that
// file's directory.
func ResolveStatePath(setting, outputDir, channel string, multi bool) string {
	if setting == "" {
		return filepath.Join(outputDir, "state", channel+".json")
	}
	if !multi {
		return setting
	}
	name := channel + ".json"
	if info, err := os.Stat(setting); err == nil {
		if info.IsDir() {
			return filepath.Join(setting, name)
		}
		return filepath.Join(filepath.Dir(setting), name)
	}
	if strings.EqualFold(filepath.Ext(setting), ".json") {
		return filepath.Join(filepath.Dir(setting), name)
	}
	return filepath.Join(setting, name)
}
