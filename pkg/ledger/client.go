package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store backed by a single Redis hash.
// All keys and channels are automatically namespaced.
// The store is thread-safe and can be used concurrently from multiple goroutines.
type RedisStore struct {
	rdb       *redis.Client
	namespace string
}

// Compile-time interface check.
var _ Store = (*RedisStore)(nil)

// LedgerEvent is published after every committed write.
type LedgerEvent struct {
	Version     Version `json:"version"`
	Installs    int     `json:"installs"`
	UpdatedAtMs int64   `json:"updated_at_ms"`
}

// NewRedisStore creates a new Redis-backed ledger store for the namespace.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - namespace: ledger namespace (must be a valid DNS label)
//
// Returns an error if namespace is invalid.
func NewRedisStore(redisOpts *redis.Options, namespace string) (*RedisStore, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return nil, err
	}

	return &RedisStore{
		rdb:       redis.NewClient(redisOpts),
		namespace: namespace,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// GetLatest reads the document hash in one HGETALL.
func (s *RedisStore) GetLatest(ctx context.Context) (*Ledger, Version, error) {
	hashData, err := s.rdb.HGetAll(ctx, LedgerKey(s.namespace)).Result()
	if err != nil {
		return nil, "", fmt.Errorf("failed to read ledger from Redis: %w", err)
	}
	return HashToLedger(hashData)
}

// PutIfMatch writes the document inside WATCH/MULTI/EXEC.
// Any concurrent write to the key between WATCH and EXEC aborts the
// transaction, which is reported as a conflict.
// Publishes a LedgerEvent to orchestrate:{namespace}:ledger_events after commit.
func (s *RedisStore) PutIfMatch(ctx context.Context, l *Ledger, expected Version) (Version, error) {
	key := LedgerKey(s.namespace)
	now := time.Now().UnixMilli()

	var next Version
	txf := func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, HashFieldVersion).Result()
		if errors.Is(err, redis.Nil) {
			current = string(NoVersion)
		} else if err != nil {
			return fmt.Errorf("failed to read ledger version: %w", err)
		}

		if Version(current) != expected {
			return &ConflictError{Expected: expected, Current: Version(current)}
		}

		next, err = NextVersion(Version(current))
		if err != nil {
			return err
		}

		hash, err := LedgerToHash(l, next, now)
		if err != nil {
			return fmt.Errorf("failed to serialize ledger: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, hash)
			return nil
		})
		return err
	}

	if err := s.rdb.Watch(ctx, txf, key); err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return "", &ConflictError{Expected: expected}
		}
		if IsConflict(err) {
			return "", err
		}
		return "", fmt.Errorf("failed to write ledger to Redis: %w", err)
	}

	event, err := json.Marshal(LedgerEvent{Version: next, Installs: len(l.Installs), UpdatedAtMs: now})
	if err != nil {
		return next, fmt.Errorf("failed to marshal ledger event: %w", err)
	}
	// The write is committed; a lost notification only delays watchers.
	_ = s.rdb.Publish(ctx, LedgerEventsChannel(s.namespace), event).Err()

	return next, nil
}

// Subscription represents an active Pub/Sub subscription to ledger events.
// Caller must call Close() when done to clean up resources.
type Subscription struct {
	events <-chan *LedgerEvent
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of ledger events.
// The channel will be closed when the subscription is closed or the context is cancelled.
func (s *Subscription) Events() <-chan *LedgerEvent {
	return s.events
}

// Errors returns the channel of subscription errors.
// The subscription continues after errors - malformed messages are skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeLedgerEvents subscribes to commit notifications for this namespace.
// Caller must call subscription.Close() when done.
//
// Events are delivered on a buffered channel (size 10). Redis Pub/Sub is
// at-most-once, so a slow subscriber may miss events; re-read the document
// with GetLatest when exact state matters.
func (s *RedisStore) SubscribeLedgerEvents(ctx context.Context) (*Subscription, error) {
	pubsub := s.rdb.Subscribe(ctx, LedgerEventsChannel(s.namespace))

	// Wait for the subscription to be confirmed so no commit is missed
	// between this call returning and the first receive.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to ledger events: %w", err)
	}

	eventsChan := make(chan *LedgerEvent, 10)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var event LedgerEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal ledger event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &event:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}
