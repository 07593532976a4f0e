package tokenstore

import (
	"context"
	"fmt"
	"os"
	"time"
)

const (
	lockRetryDelay = 100 * time.Millisecond
	lockWaitLimit  = 5 * time.Second
	// A lock file older than this is assumed to belong to a crashed writer.
	lockStaleAfter = 30 * time.Second
)

// fileLock is an exclusive lock held through a sibling ".lock" file, shared by
// every process writing the same token file.
type fileLock struct {
	f    *os.File
	path string
}

// acquireFileLock blocks until the lock for target is held, ctx is done, or
// lockWaitLimit elapses.
func acquireFileLock(ctx context.Context, target string) (*fileLock, error) {
	lockPath := target + ".lock"
	deadline := time.Now().Add(lockWaitLimit)

	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			fmt.Fprintf(f, "%d", os.Getpid())
			return &fileLock{f: f, path: lockPath}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}

		if info, statErr := os.Stat(lockPath); statErr == nil &&
			time.Since(info.ModTime()) > lockStaleAfter {
			if remErr := os.Remove(lockPath); remErr != nil && !os.IsNotExist(remErr) {
				return nil, fmt.Errorf("remove stale lock file %s: %w", lockPath, remErr)
			}
			continue
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timeout waiting for file lock after %v", lockWaitLimit)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
}

func (l *fileLock) release() error {
	if l.f != nil {
		l.f.Close()
	}
	return os.Remove(l.path)
}
