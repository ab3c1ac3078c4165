// Package testutil provides shared test helpers for ledger backends.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/pkg/ledger"
)

// StoreFactory returns a fresh, empty store for one subtest.
type StoreFactory func(t *testing.T) ledger.Store

// RunStoreContract exercises the GetLatest / PutIfMatch contract that every
// ledger backend must satisfy.
func RunStoreContract(t *testing.T, newStore StoreFactory) {
	ctx := context.Background()
	now := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)

	t.Run("empty store reports no version", func(t *testing.T) {
		s := newStore(t)
		doc, v, err := s.GetLatest(ctx)
		require.NoError(t, err)
		assert.Equal(t, ledger.NoVersion, v)
		assert.Empty(t, doc.Installs)
	})

	t.Run("create then read back", func(t *testing.T) {
		s := newStore(t)

		doc := ledger.New()
		doc.Installs["orch-a"] = ledger.NewRecord(3, ledger.DefaultTool, now)
		v1, err := s.PutIfMatch(ctx, doc, ledger.NoVersion)
		require.NoError(t, err)
		assert.NotEqual(t, ledger.NoVersion, v1)

		got, v, err := s.GetLatest(ctx)
		require.NoError(t, err)
		assert.Equal(t, v1, v)
		assert.Equal(t, doc.Installs, got.Installs)
	})

	t.Run("stale version is rejected and document untouched", func(t *testing.T) {
		s := newStore(t)

		first := ledger.New()
		first.Installs["orch-a"] = ledger.NewRecord(3, ledger.DefaultTool, now)
		_, err := s.PutIfMatch(ctx, first, ledger.NoVersion)
		require.NoError(t, err)

		stale := ledger.New()
		stale.Installs["orch-b"] = ledger.NewRecord(3, ledger.DefaultTool, now)
		_, err = s.PutIfMatch(ctx, stale, ledger.NoVersion)
		require.Error(t, err)
		assert.True(t, ledger.IsConflict(err), "expected conflict, got %v", err)

		got, _, err := s.GetLatest(ctx)
		require.NoError(t, err)
		assert.True(t, got.Has("orch-a"))
		assert.False(t, got.Has("orch-b"))
	})

	t.Run("versions advance on every write", func(t *testing.T) {
		s := newStore(t)

		seen := map[ledger.Version]bool{ledger.NoVersion: true}
		v := ledger.NoVersion
		for i := 0; i < 3; i++ {
			doc, cur, err := s.GetLatest(ctx)
			require.NoError(t, err)
			require.Equal(t, v, cur)

			doc.Installs[fmt.Sprintf("orch-%d", i)] = ledger.NewRecord(3, ledger.DefaultTool, now)
			v, err = s.PutIfMatch(ctx, doc, cur)
			require.NoError(t, err)
			assert.False(t, seen[v], "version %s reused", v)
			seen[v] = true
		}
	})

	t.Run("unknown top-level fields survive", func(t *testing.T) {
		s := newStore(t)

		doc := ledger.New()
		doc.Extra = map[string]json.RawMessage{"filename": json.RawMessage(`"referrals.json"`)}
		_, err := s.PutIfMatch(ctx, doc, ledger.NoVersion)
		require.NoError(t, err)

		got, _, err := s.GetLatest(ctx)
		require.NoError(t, err)
		assert.JSONEq(t, `"referrals.json"`, string(got.Extra["filename"]))
	})

	t.Run("concurrent writers from one snapshot commit exactly once", func(t *testing.T) {
		s := newStore(t)
		_, base, err := s.GetLatest(ctx)
		require.NoError(t, err)

		const writers = 6
		results := make([]error, writers)
		var g errgroup.Group
		for i := 0; i < writers; i++ {
			i := i
			g.Go(func() error {
				doc := ledger.New()
				doc.Installs[fmt.Sprintf("orch-w%d", i)] = ledger.NewRecord(3, ledger.DefaultTool, now)
				_, results[i] = s.PutIfMatch(ctx, doc, base)
				return nil
			})
		}
		require.NoError(t, g.Wait())

		committed := 0
		for _, err := range results {
			if err == nil {
				committed++
				continue
			}
			assert.True(t, ledger.IsConflict(err), "expected conflict, got %v", err)
		}
		assert.Equal(t, 1, committed)

		got, _, err := s.GetLatest(ctx)
		require.NoError(t, err)
		assert.Len(t, got.Installs, 1)
	})
}
