// Package store opens the ledger backend selected by configuration.
package store

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/config"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/store/boltstore"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/store/filestore"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/store/httpstore"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/store/memstore"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/store/sqlstore"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/pkg/ledger"
)

// boltLockTimeout bounds how long Open waits for another process holding the
// bolt database.
const boltLockTimeout = 2 * time.Second

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open returns the configured backend and a closer releasing its resources.
// cfg must already be validated.
func Open(cfg config.Store) (ledger.Store, io.Closer, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid redis url: %w", err)
		}
		if cfg.Token != "" && opts.Password == "" {
			opts.Password = cfg.Token
		}
		s, err := ledger.NewRedisStore(opts, cfg.Namespace)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create redis store: %w", err)
		}
		return s, s, nil

	case config.BackendHTTP:
		s, err := httpstore.New(cfg.URL, cfg.Token, &http.Client{Timeout: 10 * time.Second})
		if err != nil {
			return nil, nil, err
		}
		return s, nopCloser{}, nil

	case config.BackendBolt:
		s, err := boltstore.Open(cfg.Path, boltLockTimeout)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil

	case config.BackendSQLite:
		s, err := sqlstore.Open(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil

	case config.BackendFile:
		return filestore.New(cfg.Path), nopCloser{}, nil

	case config.BackendMemory:
		return memstore.New(), nopCloser{}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// Unavailable is a Store whose every call fails with the error that kept
// the real backend from opening. The installer runs against it so an open
// failure degrades like any other sync failure.
type Unavailable struct {
	Err error
}

var _ ledger.Store = Unavailable{}

func (u Unavailable) GetLatest(context.Context) (*ledger.Ledger, ledger.Version, error) {
	return nil, "", fmt.Errorf("ledger store unavailable: %w", u.Err)
}

func (u Unavailable) PutIfMatch(context.Context, *ledger.Ledger, ledger.Version) (ledger.Version, error) {
	return "", fmt.Errorf("ledger store unavailable: %w", u.Err)
}
