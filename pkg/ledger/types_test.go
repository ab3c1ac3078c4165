package ledger

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInstanceID(t *testing.T) {
	id := NewInstanceID()
	assert.True(t, IsGeneratedID(id), "generated id %q should have orch-<uuid> shape", id)
	assert.NotEqual(t, id, NewInstanceID())
}

func TestIsGeneratedID(t *testing.T) {
	assert.True(t, IsGeneratedID("orch-0b0e7c4e-8a8e-4be5-9d68-2b0a9b0b1f3e"))
	assert.False(t, IsGeneratedID("0b0e7c4e-8a8e-4be5-9d68-2b0a9b0b1f3e"))
	assert.False(t, IsGeneratedID("orch-not-a-uuid"))
}

func TestValidateInstanceID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"generated", NewInstanceID(), false},
		{"legacy id", "user-123", false},
		{"empty", "", true},
		{"blank", "   ", true},
		{"unknown placeholder", "Unknown", true},
		{"padded", " orch-a ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInstanceID(tt.id)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewRecord(t *testing.T) {
	now := time.Date(2025, 3, 4, 5, 6, 7, 0, time.FixedZone("x", 3600))
	rec := NewRecord(3, DefaultTool, now)

	assert.Equal(t, 0, rec.ReferralCount)
	assert.Equal(t, 3, rec.ReferralCredits)
	assert.Equal(t, []string{DefaultTool}, rec.ToolsUnlocked)
	assert.Equal(t, "2025-03-04T04:06:07Z", rec.Timestamp)

	assert.Equal(t, []string{}, NewRecord(3, "", now).ToolsUnlocked)
}

func TestLedgerClone(t *testing.T) {
	l := New()
	l.Installs["orch-a"] = NewRecord(3, DefaultTool, time.Now())
	l.Extra = map[string]json.RawMessage{"filename": json.RawMessage(`"x"`)}

	c := l.Clone()
	c.Installs["orch-a"].ReferralCredits = 99
	c.Installs["orch-a"].ToolsUnlocked[0] = "changed"
	c.Installs["orch-b"] = NewRecord(3, DefaultTool, time.Now())

	assert.Equal(t, 3, l.Installs["orch-a"].ReferralCredits)
	assert.Equal(t, DefaultTool, l.Installs["orch-a"].ToolsUnlocked[0])
	assert.False(t, l.Has("orch-b"))
	assert.Equal(t, `"x"`, string(c.Extra["filename"]))

	var nilLedger *Ledger
	assert.NotNil(t, nilLedger.Clone().Installs)
	assert.False(t, nilLedger.Has("orch-a"))
}

func TestRecordHelpers(t *testing.T) {
	rec := NewRecord(3, DefaultTool, time.Now())
	assert.True(t, rec.HasTool(DefaultTool))
	assert.False(t, rec.HasTool("mem_tool"))

	local := rec.Local()
	assert.Equal(t, LocalRecord{ReferralCount: 0, ReferralCredits: 3, ToolsUnlocked: []string{DefaultTool}}, local)

	rec.ReferralCredits = -1
	assert.Error(t, rec.Validate())
}

func TestLedgerValidate(t *testing.T) {
	l := New()
	l.Installs["orch-a"] = nil
	require.Error(t, l.Validate())

	l = New()
	l.Installs[""] = NewRecord(3, DefaultTool, time.Now())
	require.Error(t, l.Validate())
}

func TestInstanceIdentityValidate(t *testing.T) {
	assert.NoError(t, InstanceIdentity{UserID: NewInstanceID(), InstalledAt: time.Now()}.Validate())
	assert.Error(t, InstanceIdentity{UserID: NewInstanceID()}.Validate())
	assert.Error(t, InstanceIdentity{InstalledAt: time.Now()}.Validate())
}

func TestConflictError(t *testing.T) {
	err := error(&ConflictError{Expected: "1", Current: "2"})
	assert.True(t, IsConflict(err))
	assert.True(t, errors.Is(err, ErrConflict))
	assert.Equal(t, "ledger version conflict: expected 1, current 2", err.Error())
	assert.Equal(t, "ledger version conflict: expected 1", (&ConflictError{Expected: "1"}).Error())
	assert.False(t, IsConflict(errors.New("boom")))
}

func TestLedgerKeys(t *testing.T) {
	assert.Equal(t, "orchestrate:default:ledger", LedgerKey(DefaultNamespace))
	assert.Equal(t, "orchestrate:prod:ledger_events", LedgerEventsChannel("prod"))
	assert.NoError(t, ValidateNamespace("staging-2"))
	assert.Error(t, ValidateNamespace("-bad"))
}

func TestETag(t *testing.T) {
	assert.Equal(t, `"7"`, ETag("7"))

	tests := []struct {
		in   string
		want Version
		ok   bool
	}{
		{`"7"`, "7", true},
		{` "12" `, "12", true},
		{`W/"7"`, "", false},
		{`7`, "", false},
		{`""`, "", false},
		{`"a"b"`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, ok := ParseETag(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, v)
		})
	}
}
