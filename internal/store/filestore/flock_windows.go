//go:build windows

package filestore

import (
	"errors"
	"fmt"
	"os"
)

var errLockHeld = errors.New("lock held by another writer")

// Windows: no cross-process lock. Writers in one process are still
// serialised by Store.mu.
func tryLock(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	return f, nil
}

func releaseLock(f *os.File) {
	if f == nil {
		return
	}
	_ = f.Close()
}
