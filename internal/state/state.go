// SPDX-License-Identifier: MIT

// Package state persists the last-saved VOD record per channel.
//
// The record is the idempotence anchor for the whole run: it must only ever
// advance after a verified download, so Load distinguishes "no prior state"
// (first run, zero value) from "state exists but is unreadable" (ErrCorrupt,
// which callers surface instead of silently re-downloading).
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"github.com/vodsaver/vodsaver/internal/log"
)

// ErrCorrupt marks a state file that exists but cannot be parsed.
var ErrCorrupt = errors.New("state: corrupt state file")

// State is the persisted record of the last successfully saved VOD.
type State struct {
	LastVodID          string `json:"last_vod_id"`
	LastVodPublishedAt string `json:"last_vod_published_at,omitempty"`
}

// Store reads and writes the state file at a fixed path.
type Store struct {
	path string
}

// NewStore creates a store bound to path. The file need not exist yet.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the bound state file path.
func (s *Store) Path() string {
	return s.path
}

// Load returns the persisted state. A missing file is the first-run
// condition and yields a zero state, not an error; a file that exists but
// cannot be read or parsed wraps ErrCorrupt.
func (s *Store) Load() (State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("%w: read %s: %w", ErrCorrupt, s.path, err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	return st, nil
}

// Save atomically replaces the state file. renameio writes to a temp file,
// fsyncs and renames, so a crash mid-write never leaves content Load would
// reject as corrupt. The parent directory is created on demand.
func (s *Store) Save(ctx context.Context, st State) error {
	logger := log.WithComponentFromContext(ctx, "state")

	if dir := filepath.Dir(s.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("create state directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	data = append(data, '\n')

	pendingFile, err := renameio.NewPendingFile(s.path)
	if err != nil {
		return fmt.Errorf("create pending state file: %w", err)
	}
	defer func() {
		// Cleanup on error - renameio removes temp file if not committed
		if err := pendingFile.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending state file")
		}
	}()

	if _, err := pendingFile.Write(data); err != nil {
		return fmt.Errorf("write state data: %w", err)
	}

	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace state file: %w", err)
	}

	logger.Debug().
		Str("path", s.path).
		Str("last_vod_id", st.LastVodID).
		Msg("state saved")
	return nil
}
