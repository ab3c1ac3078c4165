package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Serialization helpers for converting between the typed ledger and its wire
// and Redis representations.
//
// The document travels as one JSON blob. Redis stores it as a hash with the
// blob in the "document" field next to the "version" counter, so a single
// HGETALL returns a consistent snapshot.

const (
	// HashFieldDocument holds the encoded JSON document.
	HashFieldDocument = "document"

	// HashFieldVersion holds the decimal revision counter.
	HashFieldVersion = "version"

	// HashFieldUpdatedAt holds the commit time in Unix milliseconds.
	HashFieldUpdatedAt = "updated_at_ms"
)

// installsField is the only top-level field the ledger interprets.
const installsField = "installs"

// MarshalJSON encodes the ledger with installs first and Extra fields merged in.
func (l *Ledger) MarshalJSON() ([]byte, error) {
	top := make(map[string]json.RawMessage, len(l.Extra)+1)
	for k, v := range l.Extra {
		if k == installsField {
			continue
		}
		top[k] = v
	}

	installs := l.Installs
	if installs == nil {
		installs = map[string]*Record{}
	}
	raw, err := json.Marshal(installs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal installs: %w", err)
	}
	top[installsField] = raw

	return json.Marshal(top)
}

// UnmarshalJSON decodes a ledger document, keeping unknown fields in Extra.
func (l *Ledger) UnmarshalJSON(data []byte) error {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return fmt.Errorf("failed to unmarshal ledger document: %w", err)
	}

	l.Installs = make(map[string]*Record)
	l.Extra = nil

	for k, v := range top {
		if k == installsField {
			if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
				continue
			}
			if err := json.Unmarshal(v, &l.Installs); err != nil {
				return fmt.Errorf("failed to unmarshal installs: %w", err)
			}
			continue
		}
		if l.Extra == nil {
			l.Extra = make(map[string]json.RawMessage)
		}
		l.Extra[k] = v
	}

	// Normalise records so callers never see nil tool lists.
	for id, rec := range l.Installs {
		if rec == nil {
			delete(l.Installs, id)
			continue
		}
		if rec.ToolsUnlocked == nil {
			rec.ToolsUnlocked = []string{}
		}
	}

	return nil
}

// Encode serializes a ledger to its JSON wire format.
func Encode(l *Ledger) ([]byte, error) {
	if l == nil {
		l = New()
	}
	if err := l.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ledger: %w", err)
	}
	return json.Marshal(l)
}

// Decode parses a JSON wire document. An empty body is an empty ledger.
func Decode(data []byte) (*Ledger, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return New(), nil
	}
	l := New()
	if err := json.Unmarshal(data, l); err != nil {
		return nil, err
	}
	if err := l.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ledger: %w", err)
	}
	return l, nil
}

// LedgerToHash converts a ledger and its new version to Redis hash format.
func LedgerToHash(l *Ledger, v Version, updatedAtMs int64) (map[string]interface{}, error) {
	body, err := Encode(l)
	if err != nil {
		return nil, err
	}

	hash := map[string]interface{}{
		HashFieldDocument:  string(body),
		HashFieldVersion:   string(v),
		HashFieldUpdatedAt: updatedAtMs,
	}
	return hash, nil
}

// HashToLedger converts a Redis hash back to a ledger and its version.
// An empty hash is the not-yet-written document at NoVersion.
func HashToLedger(hash map[string]string) (*Ledger, Version, error) {
	if len(hash) == 0 {
		return New(), NoVersion, nil
	}

	version := hash[HashFieldVersion]
	if _, err := strconv.ParseUint(version, 10, 64); err != nil {
		return nil, "", fmt.Errorf("invalid version field: %w", err)
	}

	l, err := Decode([]byte(hash[HashFieldDocument]))
	if err != nil {
		return nil, "", fmt.Errorf("failed to deserialize ledger: %w", err)
	}

	return l, Version(version), nil
}

// NextVersion returns the revision after v.
func NextVersion(v Version) (Version, error) {
	n, err := strconv.ParseUint(string(v), 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid version %q: %w", v, err)
	}
	return Version(strconv.FormatUint(n+1, 10)), nil
}
