package ledger

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// IDPrefix is prepended to the UUID of every instance identity.
	IDPrefix = "orch-"

	// InitialCredits is the credit grant every new instance receives.
	InitialCredits = 3

	// CreditsPerReferral is added to a referrer for each install it refers.
	CreditsPerReferral = 3

	// DefaultTool is unlocked for every new instance.
	DefaultTool = "json_manager"

	// TimestampLayout is used for all timestamps stored in the ledger.
	TimestampLayout = time.RFC3339
)

// Version is an opaque token identifying a revision of the ledger document.
// Backends in this repository use a decimal revision counter.
type Version string

// NoVersion is the version of a document that has never been written.
const NoVersion Version = "0"

// InstanceIdentity is the per-install identity persisted on first run.
type InstanceIdentity struct {
	UserID      string    `json:"user_id"`      // orch-<uuid>
	InstalledAt time.Time `json:"installed_at"` // UTC, set once
}

// Record is one instance's entry in the ledger.
type Record struct {
	ReferralCount   int      `json:"referral_count"`
	ReferralCredits int      `json:"referral_credits"`
	ToolsUnlocked   []string `json:"tools_unlocked"`
	Timestamp       string   `json:"timestamp"`
}

// LocalRecord is the instance's own record as persisted inside the container.
// It is what downstream feature gates read, so it must exist on every path.
type LocalRecord struct {
	ReferralCount   int      `json:"referral_count"`
	ReferralCredits int      `json:"referral_credits"`
	ToolsUnlocked   []string `json:"tools_unlocked"`
}

// Ledger is the singleton document mapping instance ids to records.
type Ledger struct {
	Installs map[string]*Record

	// Extra holds top-level fields this package does not interpret.
	Extra map[string]json.RawMessage
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{Installs: make(map[string]*Record)}
}

// NewInstanceID generates a fresh instance id.
func NewInstanceID() string {
	return IDPrefix + uuid.New().String()
}

// NewRecord creates the record granted to a freshly installed instance.
func NewRecord(credits int, defaultTool string, now time.Time) *Record {
	tools := []string{}
	if defaultTool != "" {
		tools = append(tools, defaultTool)
	}
	return &Record{
		ReferralCount:   0,
		ReferralCredits: credits,
		ToolsUnlocked:   tools,
		Timestamp:       now.UTC().Format(TimestampLayout),
	}
}

// Has reports whether id has a record.
func (l *Ledger) Has(id string) bool {
	if l == nil || l.Installs == nil {
		return false
	}
	_, ok := l.Installs[id]
	return ok
}

// Clone returns a deep copy of the ledger.
func (l *Ledger) Clone() *Ledger {
	out := New()
	if l == nil {
		return out
	}
	for id, rec := range l.Installs {
		out.Installs[id] = rec.Clone()
	}
	if len(l.Extra) > 0 {
		out.Extra = make(map[string]json.RawMessage, len(l.Extra))
		for k, v := range l.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.ToolsUnlocked = append([]string{}, r.ToolsUnlocked...)
	return &c
}

// HasTool reports whether tool is unlocked for this record.
func (r *Record) HasTool(tool string) bool {
	for _, t := range r.ToolsUnlocked {
		if t == tool {
			return true
		}
	}
	return false
}

// Local projects the record onto the locally persisted shape.
func (r *Record) Local() LocalRecord {
	return LocalRecord{
		ReferralCount:   r.ReferralCount,
		ReferralCredits: r.ReferralCredits,
		ToolsUnlocked:   append([]string{}, r.ToolsUnlocked...),
	}
}

// Validate checks the record's counters are non-negative.
func (r *Record) Validate() error {
	if r.ReferralCount < 0 {
		return fmt.Errorf("invalid referral_count: must be >= 0, got %d", r.ReferralCount)
	}
	if r.ReferralCredits < 0 {
		return fmt.Errorf("invalid referral_credits: must be >= 0, got %d", r.ReferralCredits)
	}
	return nil
}

// Validate checks every record in the ledger.
func (l *Ledger) Validate() error {
	for id, rec := range l.Installs {
		if id == "" {
			return fmt.Errorf("ledger contains an empty instance id")
		}
		if rec == nil {
			return fmt.Errorf("instance %q has a null record", id)
		}
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("instance %q: %w", id, err)
		}
	}
	return nil
}

// Validate checks the identity has a usable id and install time.
func (i InstanceIdentity) Validate() error {
	if err := ValidateInstanceID(i.UserID); err != nil {
		return err
	}
	if i.InstalledAt.IsZero() {
		return fmt.Errorf("installed_at cannot be empty")
	}
	return nil
}

// ValidateInstanceID rejects empty ids and the "unknown" placeholder.
// Ids minted by NewInstanceID additionally parse as orch-<uuid>, but ids
// from older installs are accepted as long as they are non-blank.
func ValidateInstanceID(id string) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return fmt.Errorf("instance id cannot be empty")
	}
	if strings.EqualFold(trimmed, "unknown") {
		return fmt.Errorf("instance id cannot be %q", trimmed)
	}
	if trimmed != id {
		return fmt.Errorf("instance id %q has surrounding whitespace", id)
	}
	return nil
}

// IsGeneratedID reports whether id has the orch-<uuid> shape.
func IsGeneratedID(id string) bool {
	if !strings.HasPrefix(id, IDPrefix) {
		return false
	}
	_, err := uuid.Parse(strings.TrimPrefix(id, IDPrefix))
	return err == nil
}
