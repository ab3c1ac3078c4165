// Package watch follows the local credit record and reports when the
// instance's credits, referrals or unlocked tools change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/localrecord"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/pkg/ledger"
)

// DefaultDebounce coalesces the create/write/rename burst of one atomic write.
const DefaultDebounce = 150 * time.Millisecond

// Change is one observed difference in the local record.
// Before is nil when the record did not exist.
type Change struct {
	Before *ledger.LocalRecord
	After  ledger.LocalRecord
}

// CreditDelta is the change in referral credits.
func (c Change) CreditDelta() int {
	if c.Before == nil {
		return c.After.ReferralCredits
	}
	return c.After.ReferralCredits - c.Before.ReferralCredits
}

// NewTools lists tools present in After but not Before.
func (c Change) NewTools() []string {
	var out []string
	for _, t := range c.After.ToolsUnlocked {
		if c.Before == nil || !slices.Contains(c.Before.ToolsUnlocked, t) {
			out = append(out, t)
		}
	}
	return out
}

// Watcher follows one record file.
type Watcher struct {
	Path     string
	Debounce time.Duration
	Logger   *zap.Logger

	// OnReady, if set, is called once the watch is established.
	OnReady func(current *ledger.LocalRecord)
}

// New returns a watcher for the record at path.
func New(path string, logger *zap.Logger) *Watcher {
	return &Watcher{Path: path, Debounce: DefaultDebounce, Logger: logger}
}

// Run watches until ctx is done, calling fn from the Run goroutine for each
// change. It returns nil when ctx is cancelled. The record's directory must
// exist; the file itself may appear later.
func (w *Watcher) Run(ctx context.Context, fn func(Change)) error {
	log := w.Logger
	if log == nil {
		log = zap.NewNop()
	}
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fsw.Close()

	// Watch the directory: atomic replacement swaps the file's inode.
	dir := filepath.Dir(w.Path)
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	last, err := w.read()
	if err != nil {
		log.Warn("ignoring unreadable local record", zap.String("path", w.Path), zap.Error(err))
	}

	if w.OnReady != nil {
		w.OnReady(last)
	}

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	target := filepath.Clean(w.Path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || event.Op == fsnotify.Chmod {
				continue
			}
			timer.Reset(debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.Warn("file watcher error", zap.String("path", w.Path), zap.Error(err))

		case <-timer.C:
			current, err := w.read()
			if err != nil {
				log.Warn("failed to read local record", zap.String("path", w.Path), zap.Error(err))
				continue
			}
			if current == nil || (last != nil && equal(*last, *current)) {
				continue
			}
			fn(Change{Before: last, After: *current})
			last = current
		}
	}
}

// read returns nil when the record does not exist yet.
func (w *Watcher) read() (*ledger.LocalRecord, error) {
	rec, err := localrecord.Read(w.Path)
	if errors.Is(err, localrecord.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func equal(a, b ledger.LocalRecord) bool {
	return a.ReferralCount == b.ReferralCount &&
		a.ReferralCredits == b.ReferralCredits &&
		slices.Equal(a.ToolsUnlocked, b.ToolsUnlocked)
}
