package ledger

import (
	"context"
	"errors"
	"fmt"
)

// Store is the versioned document contract every ledger backend satisfies.
//
// GetLatest returns the current document and its version. A document that has
// never been written is returned as an empty ledger at NoVersion.
//
// PutIfMatch replaces the document only if the stored version still equals
// expected, and returns the new version. A mismatch returns an error for
// which IsConflict is true and leaves the stored document untouched.
type Store interface {
	GetLatest(ctx context.Context) (*Ledger, Version, error)
	PutIfMatch(ctx context.Context, l *Ledger, expected Version) (Version, error)
}

// ErrConflict is matched by every version-mismatch error.
var ErrConflict = errors.New("ledger version conflict")

// ConflictError reports a rejected conditional write.
type ConflictError struct {
	Expected Version
	Current  Version // empty when the backend cannot report it
}

func (e *ConflictError) Error() string {
	if e.Current == "" {
		return fmt.Sprintf("ledger version conflict: expected %s", e.Expected)
	}
	return fmt.Sprintf("ledger version conflict: expected %s, current %s", e.Expected, e.Current)
}

// Is makes errors.Is(err, ErrConflict) hold for *ConflictError.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// IsConflict returns true if err is a version-mismatch rejection.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
