package watch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/localrecord"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/pkg/ledger"
)

// EventSource delivers a notification after every committed ledger write.
// *ledger.RedisStore implements it.
type EventSource interface {
	SubscribeLedgerEvents(ctx context.Context) (*ledger.Subscription, error)
}

// FetchFunc reads the instance's own record and the version it was read at.
type FetchFunc func(ctx context.Context) (*ledger.Record, ledger.Version, error)

// Remote follows the instance's record in the shared ledger. Each commit
// notification triggers a re-read; notifications are only hints, so a
// missed one is caught up by the next.
type Remote struct {
	Events EventSource
	Fetch  FetchFunc
	Logger *zap.Logger

	// RecordPath, if set, receives every observed record so the local copy
	// tracks the ledger.
	RecordPath string

	// OnReady, if set, is called once the subscription is confirmed and the
	// first read has completed.
	OnReady func(current *ledger.LocalRecord)
}

// Run follows the ledger until ctx is done, calling fn from the Run
// goroutine for each change. It returns nil when ctx is cancelled.
func (r *Remote) Run(ctx context.Context, fn func(Change)) error {
	log := r.Logger
	if log == nil {
		log = zap.NewNop()
	}

	// Subscribe before the first read so no commit falls between them.
	sub, err := r.Events.SubscribeLedgerEvents(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	rec, version, err := r.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("failed to read own record: %w", err)
	}
	last := rec.Local()
	if err := r.persist(last); err != nil {
		log.Warn("failed to write local record", zap.String("path", r.RecordPath), zap.Error(err))
	}
	if r.OnReady != nil {
		r.OnReady(&last)
	}

	events, errs := sub.Events(), sub.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.Warn("ledger event error", zap.Error(err))

		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("ledger event subscription closed")
			}
			if ev.Version == version {
				continue
			}
			rec, v, err := r.Fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Warn("failed to read own record", zap.Error(err))
				continue
			}
			version = v
			current := rec.Local()
			if equal(last, current) {
				continue
			}
			if err := r.persist(current); err != nil {
				log.Warn("failed to write local record", zap.String("path", r.RecordPath), zap.Error(err))
			}
			before := last
			fn(Change{Before: &before, After: current})
			last = current
		}
	}
}

func (r *Remote) persist(rec ledger.LocalRecord) error {
	if r.RecordPath == "" {
		return nil
	}
	return localrecord.Write(r.RecordPath, rec)
}
