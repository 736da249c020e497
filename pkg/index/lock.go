// SPDX-License-Identifier: Apache-2.0
package index

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

const (
	// LockFile guards the published tree against concurrent finalizers
	LockFile = ".index.lock"
	// StaleLockThreshold is how old a lock must be before it is broken
	StaleLockThreshold = time.Hour
)

// ErrLocked is returned while another finalizer holds the lock
var ErrLocked = errors.New("index lock exists: another release may be in progress")

type lock struct {
	path  string
	owner string
	file  *os.File
}

// acquireLock creates dir/.index.lock exclusively. A lock older than
// StaleLockThreshold is removed once and acquisition retried.
func acquireLock(dir string) (*lock, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}
	lockPath := filepath.Join(dir, LockFile)

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
	if err != nil {
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}
		if !isStale(lockPath) {
			return nil, ErrLocked
		}
		log.Warnf("Removing stale index lock %s", lockPath)
		os.Remove(lockPath)
		file, err = os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
		if err != nil {
			return nil, ErrLocked
		}
	}

	owner := uuid.NewString()
	data := fmt.Sprintf("owner=%s\npid=%d\ntimestamp=%s\n", owner, os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if _, err := file.WriteString(data); err != nil {
		file.Close()
		os.Remove(lockPath)
		return nil, fmt.Errorf("write lock data: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(lockPath)
		return nil, fmt.Errorf("sync lock file: %w", err)
	}

	return &lock{path: lockPath, owner: owner, file: file}, nil
}

func (l *lock) release() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}

func isStale(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) > StaleLockThreshold
}
