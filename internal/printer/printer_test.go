package printer

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errBuf bytes.Buffer
	prevOut, prevErr, prevColor := Out, Err, color.NoColor
	Out, Err, color.NoColor = &out, &errBuf, true
	t.Cleanup(func() { Out, Err, color.NoColor = prevOut, prevErr, prevColor })
	return &out, &errBuf
}

func TestError(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		_, stderr := capture(t)
		err := Error("Ledger unreachable", "The shared ledger did not answer.", nil)
		require.EqualError(t, err, "Ledger unreachable")
		assert.Equal(t, "Ledger unreachable\n\nThe shared ledger did not answer.\n", stderr.String())
	})

	t.Run("single suggestion", func(t *testing.T) {
		_, stderr := capture(t)
		err := Error("Unknown tool", "No such tool.", []string{"Run 'orchledger tools list'"})
		require.EqualError(t, err, "Unknown tool")
		assert.Contains(t, stderr.String(), "\nRun 'orchledger tools list'\n")
		assert.NotContains(t, stderr.String(), "Either:")
	})

	t.Run("numbered suggestions", func(t *testing.T) {
		_, stderr := capture(t)
		_ = Error("Store down", "Explanation", []string{"Start it", "Point elsewhere"})
		assert.Contains(t, stderr.String(), "Either:\n  1. Start it\n  2. Point elsewhere\n")
	})
}

func TestErrorWithContext_SortsDetails(t *testing.T) {
	_, stderr := capture(t)
	err := ErrorWithContext("Sync failed", "", map[string]string{
		"Store":    "redis://localhost:6379",
		"Attempts": "5",
	}, nil)
	require.EqualError(t, err, "Sync failed")
	assert.Equal(t, "Sync failed\n\n\n  Attempts: 5\n  Store: redis://localhost:6379\n", stderr.String())
}

func TestPrefixes(t *testing.T) {
	stdout, _ := capture(t)

	Success("registered %s\n", "orch-1")
	Success("✓ already prefixed\n")
	Step("contacting ledger\n")
	Warning("offline\n")

	assert.Equal(t,
		"✓ registered orch-1\n✓ already prefixed\n→ contacting ledger\n⚠️  offline\n",
		stdout.String())
}

func TestField(t *testing.T) {
	stdout, _ := capture(t)
	Field("Credits", 6)
	assert.Equal(t, "  Credits:           6\n", stdout.String())
}
