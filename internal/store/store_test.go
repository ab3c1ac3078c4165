package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/config"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/store/boltstore"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/store/filestore"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/store/httpstore"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/store/memstore"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/store/sqlstore"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/pkg/ledger"
)

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	dir := t.TempDir()

	tests := []struct {
		name  string
		cfg   config.Store
		check func(t *testing.T, s ledger.Store)
	}{
		{"redis", config.Store{Backend: config.BackendRedis, URL: "redis://" + mr.Addr(), Namespace: "test"}, func(t *testing.T, s ledger.Store) {
			assert.IsType(t, &ledger.RedisStore{}, s)
		}},
		{"http", config.Store{Backend: config.BackendHTTP, URL: "http://127.0.0.1:8080"}, func(t *testing.T, s ledger.Store) {
			assert.IsType(t, &httpstore.Store{}, s)
		}},
		{"bolt", config.Store{Backend: config.BackendBolt, Path: filepath.Join(dir, "l.db")}, func(t *testing.T, s ledger.Store) {
			assert.IsType(t, &boltstore.Store{}, s)
		}},
		{"sqlite", config.Store{Backend: config.BackendSQLite, Path: filepath.Join(dir, "l.sqlite")}, func(t *testing.T, s ledger.Store) {
			assert.IsType(t, &sqlstore.Store{}, s)
		}},
		{"file", config.Store{Backend: config.BackendFile, Path: filepath.Join(dir, "l.json")}, func(t *testing.T, s ledger.Store) {
			assert.IsType(t, &filestore.Store{}, s)
		}},
		{"memory", config.Store{Backend: config.BackendMemory}, func(t *testing.T, s ledger.Store) {
			assert.IsType(t, &memstore.Store{}, s)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, closer, err := Open(tt.cfg)
			require.NoError(t, err)
			defer closer.Close()
			tt.check(t, s)

			if tt.name == "http" {
				return
			}
			_, v, err := s.GetLatest(context.Background())
			require.NoError(t, err)
			assert.Equal(t, ledger.NoVersion, v)
		})
	}
}

func TestOpen_Errors(t *testing.T) {
	_, _, err := Open(config.Store{Backend: "jsonbin"})
	assert.Error(t, err)

	_, _, err = Open(config.Store{Backend: config.BackendRedis, URL: "http://nope", Namespace: "x"})
	assert.Error(t, err)

	_, _, err = Open(config.Store{Backend: config.BackendRedis, URL: "redis://localhost:6379", Namespace: "Bad"})
	assert.Error(t, err)
}

func TestUnavailable(t *testing.T) {
	cause := errors.New("boltstore: open bolt db: timeout")
	s := Unavailable{Err: cause}

	_, _, err := s.GetLatest(context.Background())
	require.ErrorIs(t, err, cause)
	assert.False(t, ledger.IsConflict(err))

	_, err = s.PutIfMatch(context.Background(), ledger.New(), ledger.NoVersion)
	require.ErrorIs(t, err, cause)
}
