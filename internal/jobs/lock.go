// SPDX-License-Identifier: MIT

package jobs

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Lock guards an output tree against overlapping runs, e.g. a cron job
// starting while the previous invocation is still downloading.
type Lock struct {
	fl *flock.Flock
}

// AcquireLock takes the advisory file lock or fails fast with
// ErrConcurrentRun. It never blocks waiting for the holder.
func AcquireLock(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrConcurrentRun, path)
	}
	return &Lock{fl: fl}, nil
}

// Release drops the lock. The lock file itself is left in place.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}
