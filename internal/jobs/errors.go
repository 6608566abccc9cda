// SPDX-License-Identifier: MIT

package jobs

import "errors"

// Sentinel errors for channel runs. Callers match with errors.Is; the
// underlying cause stays on the chain for errors.As inspection.
var (
	ErrAuth          = errors.New("jobs: authentication failed")
	ErrLookup        = errors.New("jobs: channel lookup failed")
	ErrCorruptState  = errors.New("jobs: corrupt state file")
	ErrDownload      = errors.New("jobs: download failed")
	ErrState         = errors.New("jobs: state not persisted")
	ErrConcurrentRun = errors.New("jobs: another run holds the lock")
)
