// Package credit implements the referral credit rules over an in-memory
// ledger snapshot. Every function here is pure: inputs are never mutated and
// no I/O is performed, so callers can re-apply a computation against a fresher
// snapshot after a version conflict.
package credit

import (
	"errors"
	"fmt"
	"time"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/pkg/ledger"
)

// Outcome tags the effect an install had on the referrer.
type Outcome string

const (
	OutcomeNoReferrer       Outcome = "no_referrer"
	OutcomeReferrerCredited Outcome = "referrer_credited"
	OutcomeReferrerNotFound Outcome = "referrer_not_found"
)

// Policy holds the credit amounts applied by ApplyInstall.
type Policy struct {
	InitialCredits     int
	CreditsPerReferral int
	DefaultTool        string
}

// DefaultPolicy returns the stock grant: 3 credits, 3 per referral, json_manager.
func DefaultPolicy() Policy {
	return Policy{
		InitialCredits:     ledger.InitialCredits,
		CreditsPerReferral: ledger.CreditsPerReferral,
		DefaultTool:        ledger.DefaultTool,
	}
}

// Validate rejects negative amounts.
func (p Policy) Validate() error {
	if p.InitialCredits < 0 {
		return fmt.Errorf("initial credits must be >= 0, got %d", p.InitialCredits)
	}
	if p.CreditsPerReferral < 0 {
		return fmt.Errorf("credits per referral must be >= 0, got %d", p.CreditsPerReferral)
	}
	return nil
}

// ErrDuplicateInstance is matched by every *DuplicateInstanceError.
var ErrDuplicateInstance = errors.New("duplicate instance id")

// ErrInstanceNotFound is returned when an operation names an id with no record.
var ErrInstanceNotFound = errors.New("instance not found in ledger")

// ErrInsufficientCredits is matched by every *InsufficientCreditsError.
var ErrInsufficientCredits = errors.New("insufficient credits")

// DuplicateInstanceError reports an install whose id is already registered.
type DuplicateInstanceError struct {
	InstanceID string
}

func (e *DuplicateInstanceError) Error() string {
	return fmt.Sprintf("instance %s is already registered in the ledger", e.InstanceID)
}

func (e *DuplicateInstanceError) Is(target error) bool {
	return target == ErrDuplicateInstance
}

// InsufficientCreditsError reports an unlock the balance cannot cover.
type InsufficientCreditsError struct {
	Tool string
	Need int
	Have int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("unlocking %s needs %d credits, have %d", e.Tool, e.Need, e.Have)
}

func (e *InsufficientCreditsError) Is(target error) bool {
	return target == ErrInsufficientCredits
}

// ApplyInstall registers newID in a copy of l and credits referrerID when it
// names an existing instance other than newID.
//
// An unknown referrer is not an error: the install is recorded and the
// outcome is OutcomeReferrerNotFound.
func ApplyInstall(l *ledger.Ledger, newID, referrerID string, now time.Time, p Policy) (*ledger.Ledger, Outcome, error) {
	if err := ledger.ValidateInstanceID(newID); err != nil {
		return nil, "", fmt.Errorf("invalid new instance id: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, "", err
	}
	if l.Has(newID) {
		return nil, "", &DuplicateInstanceError{InstanceID: newID}
	}

	out := l.Clone()
	out.Installs[newID] = ledger.NewRecord(p.InitialCredits, p.DefaultTool, now)

	if referrerID == "" {
		return out, OutcomeNoReferrer, nil
	}

	// The new id is inserted first, so a self-referral would find itself.
	if referrerID == newID {
		return out, OutcomeReferrerNotFound, nil
	}

	ref, ok := out.Installs[referrerID]
	if !ok {
		return out, OutcomeReferrerNotFound, nil
	}
	ref.ReferralCount++
	ref.ReferralCredits += p.CreditsPerReferral

	return out, OutcomeReferrerCredited, nil
}

// Balance returns id's record in its local shape.
func Balance(l *ledger.Ledger, id string) (ledger.LocalRecord, error) {
	if !l.Has(id) {
		return ledger.LocalRecord{}, fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}
	return l.Installs[id].Local(), nil
}
