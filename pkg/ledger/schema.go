package ledger

import (
	"fmt"
	"regexp"
)

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced so several ledgers
// (production, staging, tests) can share one Redis server.
//
// Key pattern: orchestrate:{namespace}:{entity}
// Channel pattern: orchestrate:{namespace}:{event_type}_events

// DefaultNamespace is used when no namespace is configured.
const DefaultNamespace = "default"

// namespacePattern is the DNS-label shape accepted for namespaces.
var namespacePattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// ValidateNamespace checks a namespace name can be embedded in Redis keys.
func ValidateNamespace(ns string) error {
	if ns == "" {
		return fmt.Errorf("namespace cannot be empty")
	}
	if len(ns) > 63 {
		return fmt.Errorf("namespace too long: %d characters (max: 63)", len(ns))
	}
	if !namespacePattern.MatchString(ns) {
		return fmt.Errorf("invalid namespace '%s': must be lowercase alphanumeric with hyphens (not at start/end)", ns)
	}
	return nil
}

// LedgerKey returns the Redis key for the ledger document hash.
// Pattern: orchestrate:{namespace}:ledger
func LedgerKey(namespace string) string {
	return fmt.Sprintf("orchestrate:%s:ledger", namespace)
}

// LedgerEventsChannel returns the Pub/Sub channel name for ledger commits.
// Pattern: orchestrate:{namespace}:ledger_events
func LedgerEventsChannel(namespace string) string {
	return fmt.Sprintf("orchestrate:%s:ledger_events", namespace)
}
