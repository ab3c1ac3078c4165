package docker

import (
	"fmt"

	"github.com/docker/docker/api/types/filters"
	"github.com/google/uuid"
)

// Label keys carried by every container orchledger provisions.
const (
	LabelProject   = "orchestrate.project"
	LabelNamespace = "orchestrate.ledger.namespace"
	LabelRunID     = "orchestrate.run_id"
	LabelComponent = "orchestrate.component"
	LabelRedisPort = "orchestrate.redis.port"
)

// ComponentLedgerRedis marks the shared-ledger Redis container.
const ComponentLedgerRedis = "ledger-redis"

// BuildLabels returns the label set for a ledger resource. component may be
// empty.
func BuildLabels(namespace, runID, component string) map[string]string {
	labels := map[string]string{
		LabelProject:   "true",
		LabelNamespace: namespace,
		LabelRunID:     runID,
	}
	if component != "" {
		labels[LabelComponent] = component
	}
	return labels
}

// GenerateRunID returns a new id for one `store up`.
func GenerateRunID() string {
	return uuid.New().String()
}

// LedgerContainerName is the Redis container name for a ledger namespace.
func LedgerContainerName(namespace string) string {
	return fmt.Sprintf("orchestrate-ledger-%s", namespace)
}

// LedgerFilter selects the ledger containers of namespace, or of every
// namespace when it is empty.
func LedgerFilter(namespace string) filters.Args {
	f := filters.NewArgs(
		filters.Arg("label", LabelProject+"=true"),
		filters.Arg("label", LabelComponent+"="+ComponentLedgerRedis),
	)
	if namespace != "" {
		f.Add("label", LabelNamespace+"="+namespace)
	}
	return f
}
