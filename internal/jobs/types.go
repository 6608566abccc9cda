// SPDX-License-Identifier: MIT

package jobs

import (
	"context"
	"time"

	"github.com/vodsaver/vodsaver/internal/nfo"
	"github.com/vodsaver/vodsaver/internal/state"
	"github.com/vodsaver/vodsaver/internal/twitch"
)

// Outcome classifies how a channel run ended when it did not fail.
type Outcome string

const (
	OutcomeDownloaded   Outcome = "downloaded"
	OutcomeUpToDate     Outcome = "up_to_date"
	OutcomeLiveDeferred Outcome = "live_deferred"
	OutcomeNoVODs       Outcome = "no_vods"
	OutcomeDryRun       Outcome = "dry_run"
)

// VodAPI is the slice of the Helix client the saver needs.
type VodAPI interface {
	UserByLogin(ctx context.Context, login string) (*twitch.User, error)
	IsLive(ctx context.Context, userID string) (bool, error)
	LatestVOD(ctx context.Context, userID string) (*twitch.Video, error)
}

// Downloader fetches a VOD URL into a local file.
type Downloader interface {
	Download(ctx context.Context, url, outPath string) error
}

// StateStore persists the per-channel watermark between runs.
type StateStore interface {
	Load() (state.State, error)
	Save(ctx context.Context, st state.State) error
	Path() string
}

// MetadataWriter emits and inspects the media-server sidecar files.
type MetadataWriter interface {
	Write(path string, rec nfo.Record) error
	PeekSourceID(path string) (string, error)
}

// Options controls the behavior of a single channel run.
type Options struct {
	Force  bool // download again even when the watermark matches
	DryRun bool // decide and log, but write nothing
}

// Target names one channel to archive and where its artifacts go.
type Target struct {
	Channel   string // platform login, lowercase
	ShowName  string // library show title; falls back to the login
	OutputDir string // library root the Season folders live under
}

// Deps holds all collaborators for a channel run.
type Deps struct {
	API      VodAPI
	Download Downloader
	State    StateStore
	Metadata MetadataWriter
	Clock    func() time.Time
}

// Result describes a finished channel run.
type Result struct {
	Outcome   Outcome
	VodID     string
	MediaPath string   // final media path, set when Outcome is downloaded
	Warnings  []string // non-fatal problems, e.g. a failed sidecar write
}
