// Package unlock spends referral credits on catalog tools.
//
// Unlocks are applied to the shared ledger first and only then mirrored to
// the local record, so credits are never spent while the ledger is offline.
package unlock

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/credit"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/ledgersync"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/localrecord"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/logging"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/pkg/ledger"
)

// ErrUnknownTool is returned for a tool missing from the catalog.
var ErrUnknownTool = errors.New("unknown tool")

// errNoChange ends a mutation that would leave the ledger as it is.
var errNoChange = errors.New("ledger unchanged")

// Service unlocks tools for one instance.
type Service struct {
	InstanceID string
	RecordPath string
	Catalog    *Catalog
	Sync       *ledgersync.Client
	Logger     *zap.Logger
}

// Result describes a completed Unlock.
type Result struct {
	Tool             Tool
	Outcome          credit.UnlockOutcome
	CreditsRemaining int
	Message          string
}

// Unlock spends the tool's cost from the instance's ledger balance.
func (s *Service) Unlock(ctx context.Context, name string) (*Result, error) {
	tool, ok := s.Catalog.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	var (
		outcome credit.UnlockOutcome
		rec     *ledger.Record
	)
	_, err := s.Sync.Mutate(ctx, func(current *ledger.Ledger) (*ledger.Ledger, error) {
		next, o, err := credit.ApplyUnlock(current, s.InstanceID, tool.Name, tool.Cost)
		if err != nil {
			return nil, err
		}
		outcome = o
		rec = next.Installs[s.InstanceID]
		if o == credit.UnlockAlreadyUnlocked {
			return nil, errNoChange
		}
		return next, nil
	})
	if err != nil && !errors.Is(err, errNoChange) {
		return nil, err
	}

	if err := localrecord.Write(s.RecordPath, rec.Local()); err != nil {
		return nil, fmt.Errorf("tool unlocked in the ledger but the local record was not updated (run 'orchledger repair'): %w", err)
	}

	res := &Result{
		Tool:             tool,
		Outcome:          outcome,
		CreditsRemaining: rec.ReferralCredits,
		Message:          message(tool, outcome, rec.ReferralCredits),
	}

	logging.Event(logging.Component(s.Logger, "unlock"), logging.EventToolUnlocked,
		zap.String("instance_id", s.InstanceID),
		zap.String("tool", tool.Name),
		zap.String("outcome", string(outcome)),
		zap.Int("credits_remaining", rec.ReferralCredits))
	return res, nil
}

func message(t Tool, outcome credit.UnlockOutcome, remaining int) string {
	if outcome == credit.UnlockAlreadyUnlocked {
		return fmt.Sprintf("%s is already unlocked", t.Label)
	}
	if t.UnlockMessage != "" {
		return t.UnlockMessage
	}
	return fmt.Sprintf("%s unlocked! %d credits remaining.", t.Label, remaining)
}

// Entry is a catalog tool annotated with the instance's state.
type Entry struct {
	Tool
	Locked     bool
	Affordable bool
}

// List returns the catalog in priority order, marking what the local record
// has unlocked and can afford.
func (s *Service) List() ([]Entry, ledger.LocalRecord, error) {
	rec, err := localrecord.Read(s.RecordPath)
	if err != nil {
		return nil, ledger.LocalRecord{}, err
	}

	unlocked := make(map[string]bool, len(rec.ToolsUnlocked))
	for _, t := range rec.ToolsUnlocked {
		unlocked[t] = true
	}

	tools := s.Catalog.Sorted()
	entries := make([]Entry, 0, len(tools))
	for _, t := range tools {
		entries = append(entries, Entry{
			Tool:       t,
			Locked:     !unlocked[t.Name],
			Affordable: unlocked[t.Name] || rec.ReferralCredits >= t.Cost,
		})
	}
	return entries, rec, nil
}
