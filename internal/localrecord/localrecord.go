// Package localrecord reads and writes the instance's own credit record inside
// the container. Feature gates read this file, so every install path leaves a
// well-formed copy behind.
package localrecord

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/credit"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/fsutil"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/pkg/ledger"
)

// ErrNotFound is returned by Read when no record has been written yet.
var ErrNotFound = errors.New("local record not found")

// Default returns the baseline entitlement granted by p.
func Default(p credit.Policy) ledger.LocalRecord {
	tools := []string{}
	if p.DefaultTool != "" {
		tools = append(tools, p.DefaultTool)
	}
	return ledger.LocalRecord{
		ReferralCount:   0,
		ReferralCredits: p.InitialCredits,
		ToolsUnlocked:   tools,
	}
}

// Read loads the record at path.
func Read(path string) (ledger.LocalRecord, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return ledger.LocalRecord{}, ErrNotFound
	}
	if err != nil {
		return ledger.LocalRecord{}, fmt.Errorf("failed to read local record: %w", err)
	}

	var rec ledger.LocalRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return ledger.LocalRecord{}, fmt.Errorf("failed to decode local record %s: %w", path, err)
	}
	if rec.ToolsUnlocked == nil {
		rec.ToolsUnlocked = []string{}
	}
	if rec.ReferralCount < 0 || rec.ReferralCredits < 0 {
		return ledger.LocalRecord{}, fmt.Errorf("local record %s has negative counters", path)
	}
	return rec, nil
}

// Write atomically replaces the record at path, creating the directory.
func Write(path string, rec ledger.LocalRecord) error {
	if rec.ToolsUnlocked == nil {
		rec.ToolsUnlocked = []string{}
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode local record: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create record directory: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write local record: %w", err)
	}
	return nil
}
