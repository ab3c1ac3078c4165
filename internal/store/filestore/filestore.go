// Package filestore is a ledger.Store backed by a plain JSON file carrying a
// monotonic revision counter.
//
// Writes go through a temp file and rename. The compare and the rename run
// under an exclusive OS lock on a sibling lock file. The lock file itself is
// never removed; only the lock on it matters.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/fsutil"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/pkg/ledger"
)

const lockPollInterval = 5 * time.Millisecond

// envelope is the on-disk shape.
type envelope struct {
	Version  uint64          `json:"version"`
	Document json.RawMessage `json:"document"`
}

// Store keeps the ledger in a single file.
type Store struct {
	path     string
	lockPath string
	mu       sync.Mutex
}

var _ ledger.Store = (*Store)(nil)

// New returns a store for path. The parent directory is created on first write.
func New(path string) *Store {
	return &Store{path: path, lockPath: path + ".lock"}
}

// Path returns the ledger file path.
func (s *Store) Path() string { return s.path }

func (s *Store) GetLatest(ctx context.Context) (*ledger.Ledger, ledger.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	env, err := s.read()
	if err != nil {
		return nil, "", err
	}
	l, err := ledger.Decode(env.Document)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode %s: %w", s.path, err)
	}
	return l, versionOf(env.Version), nil
}

func (s *Store) PutIfMatch(ctx context.Context, l *ledger.Ledger, expected ledger.Version) (ledger.Version, error) {
	data, err := ledger.Encode(l)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create ledger directory: %w", err)
	}

	unlock, err := s.lock(ctx)
	if err != nil {
		return "", err
	}
	defer unlock()

	env, err := s.read()
	if err != nil {
		return "", err
	}
	current := versionOf(env.Version)
	if current != expected {
		return "", &ledger.ConflictError{Expected: expected, Current: current}
	}

	out, err := json.Marshal(envelope{Version: env.Version + 1, Document: data})
	if err != nil {
		return "", fmt.Errorf("failed to encode envelope: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.path, out, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", s.path, err)
	}

	return versionOf(env.Version + 1), nil
}

func (s *Store) read() (envelope, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return envelope{}, nil
	}
	if err != nil {
		return envelope{}, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, fmt.Errorf("failed to decode %s: %w", s.path, err)
	}
	return env, nil
}

// lock acquires the writer lock, polling until ctx is done.
func (s *Store) lock(ctx context.Context) (func(), error) {
	s.mu.Lock()
	for {
		f, err := tryLock(s.lockPath)
		if err == nil {
			return func() {
				releaseLock(f)
				s.mu.Unlock()
			}, nil
		}
		if !errors.Is(err, errLockHeld) {
			s.mu.Unlock()
			return nil, fmt.Errorf("failed to lock %s: %w", s.lockPath, err)
		}

		select {
		case <-ctx.Done():
			s.mu.Unlock()
			return nil, fmt.Errorf("timed out waiting for %s: %w", s.lockPath, ctx.Err())
		case <-time.After(lockPollInterval):
		}
	}
}

func versionOf(n uint64) ledger.Version {
	return ledger.Version(strconv.FormatUint(n, 10))
}
