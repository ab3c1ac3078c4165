package credit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/pkg/ledger"
)

func TestApplyUnlock(t *testing.T) {
	base := func(t *testing.T) *ledger.Ledger {
		return seeded(t, map[string]ledger.Record{"orch-a": {ReferralCount: 1, ReferralCredits: 6}})
	}

	t.Run("spends credits and appends tool", func(t *testing.T) {
		in := base(t)
		out, outcome, err := ApplyUnlock(in, "orch-a", "outliner", 4)
		require.NoError(t, err)
		assert.Equal(t, UnlockApplied, outcome)
		assert.Equal(t, 2, out.Installs["orch-a"].ReferralCredits)
		assert.Equal(t, []string{ledger.DefaultTool, "outliner"}, out.Installs["orch-a"].ToolsUnlocked)
		assert.Equal(t, 1, out.Installs["orch-a"].ReferralCount)

		// Input untouched.
		assert.Equal(t, 6, in.Installs["orch-a"].ReferralCredits)
		assert.Equal(t, []string{ledger.DefaultTool}, in.Installs["orch-a"].ToolsUnlocked)
	})

	t.Run("exact balance", func(t *testing.T) {
		out, _, err := ApplyUnlock(base(t), "orch-a", "outliner", 6)
		require.NoError(t, err)
		assert.Equal(t, 0, out.Installs["orch-a"].ReferralCredits)
	})

	t.Run("already unlocked is free", func(t *testing.T) {
		out, outcome, err := ApplyUnlock(base(t), "orch-a", ledger.DefaultTool, 5)
		require.NoError(t, err)
		assert.Equal(t, UnlockAlreadyUnlocked, outcome)
		assert.Equal(t, 6, out.Installs["orch-a"].ReferralCredits)
	})

	t.Run("insufficient credits", func(t *testing.T) {
		_, _, err := ApplyUnlock(base(t), "orch-a", "outliner", 7)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInsufficientCredits)

		var insufficient *InsufficientCreditsError
		require.ErrorAs(t, err, &insufficient)
		assert.Equal(t, 7, insufficient.Need)
		assert.Equal(t, 6, insufficient.Have)
		assert.Equal(t, "unlocking outliner needs 7 credits, have 6", insufficient.Error())
	})

	t.Run("unknown instance", func(t *testing.T) {
		_, _, err := ApplyUnlock(base(t), "orch-b", "outliner", 1)
		assert.ErrorIs(t, err, ErrInstanceNotFound)
	})

	t.Run("invalid arguments", func(t *testing.T) {
		_, _, err := ApplyUnlock(base(t), "orch-a", "outliner", -1)
		assert.Error(t, err)
		_, _, err = ApplyUnlock(base(t), "orch-a", "", 1)
		assert.Error(t, err)
	})
}
