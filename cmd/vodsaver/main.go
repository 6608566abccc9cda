// SPDX-License-Identifier: MIT

// Command vodsaver archives the newest VOD of each configured Twitch channel
// into a media-server library tree. It is built to run unattended from cron:
// every decision derives from the per-channel state file, so repeated runs
// are free and interrupted runs repair themselves on the next invocation.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"

	"github.com/vodsaver/vodsaver/internal/config"
	"github.com/vodsaver/vodsaver/internal/jobs"
	"github.com/vodsaver/vodsaver/internal/log"
	"github.com/vodsaver/vodsaver/internal/metrics"
	"github.com/vodsaver/vodsaver/internal/nfo"
	"github.com/vodsaver/vodsaver/internal/state"
	"github.com/vodsaver/vodsaver/internal/twitch"
	"github.com/vodsaver/vodsaver/internal/ytdlp"
)

var (
	version   = "v1.0.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		os.Exit(runTokenCLI(os.Args[2:]))
	}
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("vodsaver", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	showVersion := fs.Bool("version", false, "print version and exit")
	dryRun := fs.Bool("dry-run", false, "log decisions without downloading or writing state")
	force := fs.Bool("force", false, "download the latest VOD even when the watermark matches")
	envFile := fs.String("env", "", "load environment variables from this file before reading config")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *showVersion {
		fmt.Printf("vodsaver %s (commit: %s, built: %s)\n", version, commit, buildDate)
		return 0
	}

	// An explicit -env file must load; the default .env is best-effort.
	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "cannot load env file %s: %v\n", *envFile, err)
			return 2
		}
	} else {
		_ = godotenv.Load()
	}

	log.Configure(log.Config{
		Service: "vodsaver",
		Version: version,
	})
	logger := log.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Error().
			Err(err).
			Str("event", "config.load_failed").
			Msg("configuration invalid")
		return 2
	}

	log.Configure(log.Config{
		Level:   cfg.LogLevel,
		Service: "vodsaver",
		Version: version,
	})

	runID := uuid.NewString()
	ctx = log.ContextWithRunID(ctx, runID)

	lock, err := jobs.AcquireLock(cfg.LockPath)
	if err != nil {
		if errors.Is(err, jobs.ErrConcurrentRun) {
			logger.Error().
				Err(err).
				Str("event", "run.locked").
				Msg("another vodsaver run is active")
		} else {
			logger.Error().
				Err(err).
				Str("event", "run.lock_failed").
				Msg("cannot acquire run lock")
		}
		return 1
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn().Err(err).Msg("failed to release run lock")
		}
	}()

	client := twitch.NewClient(cfg.ClientID, tokenSource(cfg), twitch.Options{
		Timeout:    cfg.APITimeout,
		MaxRetries: cfg.APIRetries,
	})
	downloader := &ytdlp.Client{
		Bin:         cfg.YtdlpPath,
		CookiesPath: cfg.CookiesPath,
		ExtraArgs:   cfg.YtdlpExtraArgs,
		Timeout:     cfg.DownloadTimeout,
	}
	opts := jobs.Options{Force: *force, DryRun: *dryRun}

	logger.Info().
		Str("event", "run.start").
		Str("run_id", runID).
		Int("channels", len(cfg.Channels)).
		Bool("force", opts.Force).
		Bool("dry_run", opts.DryRun).
		Msg("starting run")

	var runErr *multierror.Error
	for _, target := range cfg.Targets() {
		tctx := log.ContextWithChannel(ctx, target.Channel)

		deps := jobs.Deps{
			API:      client,
			Download: downloader,
			State:    state.NewStore(target.StatePath),
			Metadata: nfoWriter{},
		}
		res, err := jobs.SaveLatest(tctx, deps, jobs.Target{
			Channel:   target.Channel,
			ShowName:  target.ShowName,
			OutputDir: cfg.OutputDir,
		}, opts)
		if err != nil {
			metrics.IncRun("error")
			logger.Error().
				Err(err).
				Str("event", "run.channel_failed").
				Str("channel", target.Channel).
				Msg("channel run failed")
			runErr = multierror.Append(runErr, multierror.Prefix(err, fmt.Sprintf("[%s]", target.Channel)))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		metrics.IncRun(string(res.Outcome))
		for _, warning := range res.Warnings {
			logger.Warn().Str("channel", target.Channel).Msg(warning)
		}
	}

	metrics.Push(ctx, cfg.MetricsPushURL, cfg.MetricsJob)

	if err := runErr.ErrorOrNil(); err != nil {
		logger.Error().
			Err(err).
			Str("event", "run.failed").
			Int("failed", runErr.Len()).
			Msg("run finished with failures")
		return 1
	}

	logger.Info().Str("event", "run.complete").Msg("run finished")
	return 0
}

// tokenSource prefers a user token when one is configured; device-flow user
// tokens can reach subscriber-only VODs that an app token cannot.
func tokenSource(cfg *config.Config) twitch.TokenSource {
	if cfg.UserToken != "" {
		return twitch.StaticTokenSource(cfg.UserToken)
	}
	return &twitch.AppTokenSource{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	}
}

// nfoWriter adapts the nfo package functions to jobs.MetadataWriter.
type nfoWriter struct{}

func (nfoWriter) Write(path string, rec nfo.Record) error  { return nfo.Write(path, rec) }
func (nfoWriter) PeekSourceID(path string) (string, error) { return nfo.PeekSourceID(path) }
