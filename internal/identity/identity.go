// Package identity issues and persists the per-install instance identity.
//
// The identity file is written exactly once, on first run, using a
// write-to-temp-then-rename sequence so a crash or a full disk never leaves a
// partial file behind. Every later run loads the file unchanged.
package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/fsutil"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/pkg/ledger"
)

// ErrStorage is matched by every *StorageError.
var ErrStorage = errors.New("identity storage failure")

// ErrNotFound is returned by Load when no identity has been issued yet.
var ErrNotFound = errors.New("identity not found")

// StorageError reports a failed read or write of the identity file.
type StorageError struct {
	Op   string // "read", "decode", "write"
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("failed to %s identity %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrStorage) hold for *StorageError.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// Ensure returns the identity stored at path, issuing and persisting a new one
// if none exists. created is true only when this call wrote the file.
func Ensure(path string, now func() time.Time) (id ledger.InstanceIdentity, created bool, err error) {
	existing, err := Load(path)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return ledger.InstanceIdentity{}, false, err
	}

	if now == nil {
		now = time.Now
	}
	id = ledger.InstanceIdentity{
		UserID:      ledger.NewInstanceID(),
		InstalledAt: now().UTC().Truncate(time.Second),
	}

	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return ledger.InstanceIdentity{}, false, &StorageError{Op: "write", Path: path, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ledger.InstanceIdentity{}, false, &StorageError{Op: "write", Path: path, Err: err}
	}
	if err := fsutil.WriteFileAtomic(path, append(data, '\n'), 0o644); err != nil {
		return ledger.InstanceIdentity{}, false, &StorageError{Op: "write", Path: path, Err: err}
	}

	return id, true, nil
}

// Load reads an existing identity without creating one.
// Returns ErrNotFound if the file does not exist.
func Load(path string) (ledger.InstanceIdentity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ledger.InstanceIdentity{}, ErrNotFound
		}
		return ledger.InstanceIdentity{}, &StorageError{Op: "read", Path: path, Err: err}
	}

	var id ledger.InstanceIdentity
	if err := json.Unmarshal(data, &id); err != nil {
		return ledger.InstanceIdentity{}, &StorageError{Op: "decode", Path: path, Err: err}
	}
	if err := id.Validate(); err != nil {
		return ledger.InstanceIdentity{}, &StorageError{Op: "decode", Path: path, Err: err}
	}

	return id, nil
}
