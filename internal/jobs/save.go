// SPDX-License-Identifier: MIT

package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vodsaver/vodsaver/internal/log"
	"github.com/vodsaver/vodsaver/internal/metrics"
	"github.com/vodsaver/vodsaver/internal/naming"
	"github.com/vodsaver/vodsaver/internal/nfo"
	"github.com/vodsaver/vodsaver/internal/state"
	"github.com/vodsaver/vodsaver/internal/twitch"
)

// maxStemAttempts bounds the collision suffix search. More than a handful of
// distinct broadcasts on one UTC day would be unheard of.
const maxStemAttempts = 100

// SaveLatest runs the archive decision for one channel: look up the newest
// VOD, compare it against the stored watermark, and download it if it is new.
// The watermark only advances after the media file is verified on disk, so a
// failed run is retried in full on the next invocation.
func SaveLatest(ctx context.Context, deps Deps, target Target, opts Options) (*Result, error) {
	logger := log.WithComponentFromContext(ctx, "jobs")
	now := deps.Clock
	if now == nil {
		now = time.Now
	}

	logger.Info().
		Str("event", "save.start").
		Str("channel", target.Channel).
		Bool("force", opts.Force).
		Bool("dry_run", opts.DryRun).
		Msg("starting channel run")

	// Watermark first: a corrupt state file must stop the run before any
	// network traffic, otherwise a later commit would overwrite whatever
	// history the file held.
	st, err := deps.State.Load()
	if err != nil {
		metrics.IncFailure("state")
		if errors.Is(err, state.ErrCorrupt) {
			return nil, fmt.Errorf("%w: %w", ErrCorruptState, err)
		}
		return nil, fmt.Errorf("load state: %w", err)
	}

	user, err := deps.API.UserByLogin(ctx, target.Channel)
	if err != nil {
		return nil, classifyAPIError("resolve user", err)
	}

	live, err := deps.API.IsLive(ctx, user.ID)
	if err != nil {
		return nil, classifyAPIError("live check", err)
	}
	if live {
		// The newest VOD is still growing while the stream runs. Even a
		// forced run defers; a partial capture would be committed as done.
		logger.Info().
			Str("event", "save.live_deferred").
			Str("channel", target.Channel).
			Msg("channel is live, deferring")
		return &Result{Outcome: OutcomeLiveDeferred}, nil
	}

	vod, err := deps.API.LatestVOD(ctx, user.ID)
	if err != nil {
		return nil, classifyAPIError("latest vod", err)
	}
	if vod == nil {
		logger.Info().
			Str("event", "save.no_vods").
			Str("channel", target.Channel).
			Msg("channel has no archives")
		return &Result{Outcome: OutcomeNoVODs}, nil
	}

	if vod.ID == st.LastVodID && !opts.Force {
		logger.Info().
			Str("event", "save.up_to_date").
			Str("channel", target.Channel).
			Str("vod_id", vod.ID).
			Msg("latest archive already saved")
		return &Result{Outcome: OutcomeUpToDate, VodID: vod.ID}, nil
	}

	show := target.ShowName
	if show == "" {
		show = target.Channel
	}
	plan := naming.PlanFor(show, vod.PublishedAt)

	if opts.DryRun {
		logger.Info().
			Str("event", "save.dry_run").
			Str("channel", target.Channel).
			Str("vod_id", vod.ID).
			Str("stem", plan.Stem).
			Msg("dry run, skipping download")
		return &Result{Outcome: OutcomeDryRun, VodID: vod.ID}, nil
	}

	seasonDir := filepath.Join(target.OutputDir, plan.Dir)
	if err := os.MkdirAll(seasonDir, 0o750); err != nil {
		metrics.IncFailure("download")
		return nil, fmt.Errorf("%w: create %s: %w", ErrDownload, seasonDir, err)
	}

	stem, err := resolveStem(deps.Metadata, seasonDir, plan.Stem, vod.ID)
	if err != nil {
		metrics.IncFailure("download")
		return nil, fmt.Errorf("%w: %w", ErrDownload, err)
	}
	mediaPath := filepath.Join(seasonDir, stem+".mp4")

	started := now()
	if err := deps.Download.Download(ctx, vod.URL, mediaPath); err != nil {
		metrics.IncFailure("download")
		return nil, fmt.Errorf("%w: %w", ErrDownload, err)
	}
	metrics.ObserveDownloadDuration(now().Sub(started))

	info, err := os.Stat(mediaPath)
	if err != nil || info.Size() == 0 {
		metrics.IncFailure("download")
		return nil, fmt.Errorf("%w: downloader reported success but %s is missing or empty", ErrDownload, mediaPath)
	}
	metrics.AddDownloadedBytes(info.Size())

	result := &Result{Outcome: OutcomeDownloaded, VodID: vod.ID, MediaPath: mediaPath}

	title := vod.Title
	if title == "" {
		title = stem
	}
	nfoPath := filepath.Join(seasonDir, stem+".nfo")
	rec := nfo.Record{
		Title:     title,
		Plot:      vod.Description,
		SourceID:  vod.ID,
		StartedAt: vod.PublishedAt,
		Season:    plan.Season,
		Episode:   plan.Episode,
		Runtime:   vod.Duration,
		DateAdded: now(),
	}
	if err := deps.Metadata.Write(nfoPath, rec); err != nil {
		// The media file on disk outranks its sidecar. Keep going so the
		// watermark still advances and the download is not repeated.
		metrics.IncFailure("nfo")
		result.Warnings = append(result.Warnings, fmt.Sprintf("sidecar write failed for %s: %v", nfoPath, err))
		logger.Warn().
			Err(err).
			Str("event", "save.nfo_failed").
			Str("path", nfoPath).
			Msg("sidecar write failed")
	}

	next := state.State{
		LastVodID:          vod.ID,
		LastVodPublishedAt: vod.PublishedAt.UTC().Format(time.RFC3339),
	}
	if err := deps.State.Save(ctx, next); err != nil {
		metrics.IncFailure("state")
		return nil, fmt.Errorf("%w: %w", ErrState, err)
	}

	metrics.RecordDownloadSuccess(now())
	logger.Info().
		Str("event", "save.downloaded").
		Str("channel", target.Channel).
		Str("vod_id", vod.ID).
		Str("path", mediaPath).
		Int64("bytes", info.Size()).
		Msg("archive saved")
	return result, nil
}

// resolveStem picks the filename stem for a VOD. Distinct broadcasts on the
// same UTC day collide on the Season/Episode stem, so occupied stems get a
// numeric suffix. A stem whose sidecar already names this VOD is reused, which
// lets re-downloads overwrite in place instead of multiplying suffixes.
func resolveStem(meta MetadataWriter, dir, stem, vodID string) (string, error) {
	for n := 1; n <= maxStemAttempts; n++ {
		candidate := stem
		if n > 1 {
			candidate = fmt.Sprintf("%s - %d", stem, n)
		}

		if _, err := os.Stat(filepath.Join(dir, candidate+".mp4")); err != nil {
			if os.IsNotExist(err) {
				return candidate, nil
			}
			return "", fmt.Errorf("stat %s: %w", candidate, err)
		}

		// An unreadable sidecar counts as occupied: never overwrite a file
		// that cannot be proven to belong to this VOD.
		id, err := meta.PeekSourceID(filepath.Join(dir, candidate+".nfo"))
		if err == nil && id == vodID {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free name for %q after %d attempts", stem, maxStemAttempts)
}

// classifyAPIError folds Helix failures into the saver's error space while
// keeping the original chain intact. Any failure during token acquisition is
// an authentication failure, even when the identity service is merely down.
func classifyAPIError(op string, err error) error {
	if errors.Is(err, twitch.ErrUnauthorized) || twitch.IsTokenFailure(err) {
		metrics.IncFailure("auth")
		return fmt.Errorf("%w: %s: %w", ErrAuth, op, err)
	}
	metrics.IncFailure("lookup")
	return fmt.Errorf("%w: %s: %w", ErrLookup, op, err)
}
