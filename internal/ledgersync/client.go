// Package ledgersync runs the read-modify-write exchange against a
// ledger.Store with optimistic concurrency.
//
// Every cycle fetches the latest document, applies a pure mutation and
// writes back conditionally on the fetched version. A version conflict
// re-runs the whole cycle on a fresh snapshot with exponential backoff.
// Nothing is held between cycles, so an aborted run leaves no lock behind
// and no side effect until the final conditional write commits.
package ledgersync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/credit"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/logging"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/pkg/ledger"
)

// ErrLedgerSync is matched by every *SyncError.
var ErrLedgerSync = errors.New("ledger sync failed")

// SyncError reports a sync that could not commit: retries exhausted, the
// store unreachable, or any other store failure.
type SyncError struct {
	Attempts int
	Err      error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("ledger sync failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

func (e *SyncError) Is(target error) bool {
	return target == ErrLedgerSync
}

// RetryConfig bounds the conflict retry loop.
type RetryConfig struct {
	MaxAttempts      int           // total cycles, including the first
	OperationTimeout time.Duration // per GetLatest / PutIfMatch call
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
}

// DefaultRetryConfig returns 5 attempts, 5s per call, 100ms..1s backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:      5,
		OperationTimeout: 5 * time.Second,
		InitialBackoff:   100 * time.Millisecond,
		MaxBackoff:       time.Second,
	}
}

func (r RetryConfig) withDefaults() RetryConfig {
	d := DefaultRetryConfig()
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = d.MaxAttempts
	}
	if r.OperationTimeout <= 0 {
		r.OperationTimeout = d.OperationTimeout
	}
	if r.InitialBackoff <= 0 {
		r.InitialBackoff = d.InitialBackoff
	}
	if r.MaxBackoff <= 0 {
		r.MaxBackoff = d.MaxBackoff
	}
	if r.MaxBackoff < r.InitialBackoff {
		r.MaxBackoff = r.InitialBackoff
	}
	return r
}

// Client performs ledger mutations against a store.
// It is safe for concurrent use; each call works on its own snapshot.
type Client struct {
	store  ledger.Store
	policy credit.Policy
	retry  RetryConfig
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithPolicy overrides the credit policy applied by Sync.
func WithPolicy(p credit.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithRetry overrides the retry bounds. Zero fields keep their defaults.
func WithRetry(r RetryConfig) Option {
	return func(c *Client) { c.retry = r.withDefaults() }
}

// WithLogger sets the event logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = logging.Component(l, "ledgersync") }
}

// WithClock sets the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a sync client for store.
func New(store ledger.Store, opts ...Option) *Client {
	c := &Client{
		store:  store,
		policy: credit.DefaultPolicy(),
		retry:  DefaultRetryConfig(),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Commit describes a committed mutation.
type Commit struct {
	Ledger   *ledger.Ledger
	Version  ledger.Version
	Attempts int
}

// MutateFunc computes the next document from a fetched snapshot.
// It must not retain or mutate its argument.
type MutateFunc func(current *ledger.Ledger) (*ledger.Ledger, error)

// Mutate applies fn to the latest document and writes the result back
// conditionally, retrying on version conflicts.
//
// Errors returned by fn are returned unwrapped and end the loop. Store
// failures and exhausted retries are returned as *SyncError.
func (c *Client) Mutate(ctx context.Context, fn MutateFunc) (*Commit, error) {
	var (
		attempts  int
		committed *Commit
		fnErr     error
	)

	operation := func() error {
		attempts++

		current, version, err := c.getLatest(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}

		next, err := fn(current)
		if err != nil {
			fnErr = err
			return backoff.Permanent(err)
		}

		newVersion, err := c.putIfMatch(ctx, next, version)
		if err != nil {
			if ledger.IsConflict(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		committed = &Commit{Ledger: next, Version: newVersion, Attempts: attempts}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		logging.EventAt(c.logger, zapcore.DebugLevel, logging.EventLedgerConflictRetry,
			zap.Int("attempt", attempts),
			zap.Duration("backoff", wait),
			zap.Error(err))
	}

	err := backoff.RetryNotify(operation, c.backoff(ctx), notify)
	if err == nil {
		return committed, nil
	}
	if fnErr != nil && errors.Is(err, fnErr) {
		return nil, fnErr
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = fmt.Errorf("%w (last error: %v)", ctxErr, err)
	}
	return nil, &SyncError{Attempts: attempts, Err: err}
}

func (c *Client) backoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retry.InitialBackoff
	b.MaxInterval = c.retry.MaxBackoff
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.retry.MaxAttempts-1)), ctx)
}

func (c *Client) getLatest(ctx context.Context) (*ledger.Ledger, ledger.Version, error) {
	opCtx, cancel := context.WithTimeout(ctx, c.retry.OperationTimeout)
	defer cancel()

	l, v, err := c.store.GetLatest(opCtx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch ledger: %w", err)
	}
	return l, v, nil
}

func (c *Client) putIfMatch(ctx context.Context, l *ledger.Ledger, v ledger.Version) (ledger.Version, error) {
	opCtx, cancel := context.WithTimeout(ctx, c.retry.OperationTimeout)
	defer cancel()

	next, err := c.store.PutIfMatch(opCtx, l, v)
	if err != nil {
		if ledger.IsConflict(err) {
			return "", err
		}
		return "", fmt.Errorf("failed to write ledger: %w", err)
	}
	return next, nil
}

// Result is the outcome of a committed Sync.
type Result struct {
	Outcome  credit.Outcome
	Record   *ledger.Record // the new instance's committed record
	Attempts int
	Version  ledger.Version
}

// Sync registers newID in the shared ledger and credits referrerID if it
// exists. A duplicate id is returned as an error matching
// credit.ErrDuplicateInstance without retrying.
func (c *Client) Sync(ctx context.Context, newID, referrerID string) (*Result, error) {
	var outcome credit.Outcome

	commit, err := c.Mutate(ctx, func(current *ledger.Ledger) (*ledger.Ledger, error) {
		next, o, err := credit.ApplyInstall(current, newID, referrerID, c.now(), c.policy)
		if err != nil {
			return nil, err
		}
		outcome = o
		return next, nil
	})
	if err != nil {
		c.logFailure(newID, err)
		return nil, err
	}

	res := &Result{
		Outcome:  outcome,
		Record:   commit.Ledger.Installs[newID].Clone(),
		Attempts: commit.Attempts,
		Version:  commit.Version,
	}
	c.logOutcome(newID, referrerID, res)
	return res, nil
}

// Fetch returns id's current record from the store.
// Returns an error matching credit.ErrInstanceNotFound if id has no record.
func (c *Client) Fetch(ctx context.Context, id string) (*ledger.Record, ledger.Version, error) {
	l, v, err := c.getLatest(ctx)
	if err != nil {
		return nil, "", &SyncError{Attempts: 1, Err: err}
	}
	if !l.Has(id) {
		return nil, v, fmt.Errorf("%w: %s", credit.ErrInstanceNotFound, id)
	}
	return l.Installs[id].Clone(), v, nil
}

func (c *Client) logOutcome(newID, referrerID string, res *Result) {
	fields := []zap.Field{
		zap.String("instance_id", newID),
		zap.String("outcome", string(res.Outcome)),
		zap.Int("attempts", res.Attempts),
		zap.String("version", string(res.Version)),
	}
	logging.Event(c.logger, logging.EventInstallRegistered, fields...)

	switch res.Outcome {
	case credit.OutcomeReferrerCredited:
		logging.Event(c.logger, logging.EventReferrerCredited,
			zap.String("instance_id", newID),
			zap.String("referrer_id", referrerID))
	case credit.OutcomeReferrerNotFound:
		logging.Event(c.logger, logging.EventReferrerNotFound,
			zap.String("instance_id", newID),
			zap.String("referrer_id", referrerID))
	}
}

func (c *Client) logFailure(newID string, err error) {
	if errors.Is(err, credit.ErrDuplicateInstance) {
		logging.EventAt(c.logger, zapcore.ErrorLevel, logging.EventDuplicateInstance,
			zap.String("instance_id", newID), zap.Error(err))
		return
	}

	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		logging.EventAt(c.logger, zapcore.WarnLevel, logging.EventLedgerSyncFailed,
			zap.String("instance_id", newID),
			zap.Int("attempts", syncErr.Attempts),
			zap.Error(syncErr.Err))
	}
}
