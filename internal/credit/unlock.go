package credit

import (
	"fmt"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/pkg/ledger"
)

// UnlockOutcome tags the effect of ApplyUnlock.
type UnlockOutcome string

const (
	UnlockApplied         UnlockOutcome = "unlocked"
	UnlockAlreadyUnlocked UnlockOutcome = "already_unlocked"
)

// ApplyUnlock spends cost credits from id's balance and adds tool to its
// unlocked set, returning a modified copy of l. A tool that is already
// unlocked costs nothing and the ledger is returned unchanged.
func ApplyUnlock(l *ledger.Ledger, id, tool string, cost int) (*ledger.Ledger, UnlockOutcome, error) {
	if tool == "" {
		return nil, "", fmt.Errorf("tool name cannot be empty")
	}
	if cost < 0 {
		return nil, "", fmt.Errorf("unlock cost must be >= 0, got %d", cost)
	}
	if !l.Has(id) {
		return nil, "", fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}

	out := l.Clone()
	rec := out.Installs[id]

	if rec.HasTool(tool) {
		return out, UnlockAlreadyUnlocked, nil
	}
	if rec.ReferralCredits < cost {
		return nil, "", &InsufficientCreditsError{Tool: tool, Need: cost, Have: rec.ReferralCredits}
	}

	rec.ReferralCredits -= cost
	rec.ToolsUnlocked = append(rec.ToolsUnlocked, tool)

	return out, UnlockApplied, nil
}
