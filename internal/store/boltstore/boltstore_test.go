package boltstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/testutil"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/pkg/ledger"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state", "ledger.db"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreContract(t *testing.T) {
	testutil.RunStoreContract(t, func(t *testing.T) ledger.Store {
		return openTestStore(t)
	})
}

func TestStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	s, err := Open(path, time.Second)
	require.NoError(t, err)
	doc := ledger.New()
	doc.Installs["orch-a"] = ledger.NewRecord(3, ledger.DefaultTool, time.Now())
	_, err = s.PutIfMatch(ctx, doc, ledger.NoVersion)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path, time.Second)
	require.NoError(t, err)
	defer s.Close()

	got, v, err := s.GetLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, ledger.Version("1"), v)
	assert.True(t, got.Has("orch-a"))
}

func TestStore_CorruptVersion(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketLedger).Put(keyVersion, []byte("abc"))
	}))

	_, _, err := s.GetLatest(context.Background())
	assert.ErrorContains(t, err, "invalid version")
}

func TestOpen_LockTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := Open(path, time.Second)
	require.NoError(t, err)
	defer s.Close()

	_, err = Open(path, 50*time.Millisecond)
	assert.Error(t, err)
}
