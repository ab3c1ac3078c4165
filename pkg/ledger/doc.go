// Package ledger provides type-safe Go definitions, serialization and the
// versioned-store contract for the OrchestrateOS install ledger.
//
// # Overview
//
// The ledger is a single shared document that tracks every installed
// OrchestrateOS instance together with its referral counters and credits.
// Installers never hold a lock on it. Every change is a read-modify-write
// cycle guarded by an opaque version token: the document is fetched with
// its version, mutated locally, and written back only if the store's
// version still matches.
//
// # Core Concepts
//
// An InstanceIdentity is created exactly once per install and persisted
// locally. Its UserID is the key of the instance's Record in the Ledger.
//
// A Record holds the referral counters for one instance: how many installs
// it referred, how many credits it holds and which tools it has unlocked.
//
// A Version identifies one revision of the document. NoVersion ("0") means
// the document has never been written; a PutIfMatch against NoVersion
// creates it.
//
// # Usage Example
//
//	store, err := ledger.NewRedisStore(&redis.Options{Addr: "localhost:6379"}, "default")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
//	doc, version, err := store.GetLatest(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	doc.Installs["orch-..."] = ledger.NewRecord(3, "json_manager", time.Now())
//
//	if _, err := store.PutIfMatch(ctx, doc, version); ledger.IsConflict(err) {
//		// someone else won the race: re-fetch and retry
//	}
//
// # Redis Schema
//
// All Redis keys follow the pattern: orchestrate:{namespace}:{entity}
//
// Ledger document: orchestrate:{namespace}:ledger (hash with document, version, updated_at_ms)
//
// Pub/Sub channel: orchestrate:{namespace}:ledger_events
//
// # Wire Format
//
// The document is exchanged as JSON:
//
//	{"installs": {"<instance_id>": {"referral_count": 0, "referral_credits": 3,
//	  "tools_unlocked": ["json_manager"], "timestamp": "2025-01-01T00:00:00Z"}}}
//
// Unknown top-level fields are preserved across a Decode/Encode round trip.
package ledger
