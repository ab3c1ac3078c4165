package watch

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/ledgersync"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/localrecord"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/pkg/ledger"
)

func TestRemote_FollowsReferralCredit(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := ledger.NewRedisStore(&redis.Options{Addr: mr.Addr()}, "test")
	require.NoError(t, err)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := ledgersync.New(store)
	_, err = client.Sync(ctx, "orch-ref", "")
	require.NoError(t, err)

	recordPath := filepath.Join(t.TempDir(), "referrals.json")
	ready := make(chan *ledger.LocalRecord, 1)
	changes := make(chan Change, 8)
	r := &Remote{
		Events:     store,
		Fetch:      func(ctx context.Context) (*ledger.Record, ledger.Version, error) { return client.Fetch(ctx, "orch-ref") },
		RecordPath: recordPath,
		OnReady:    func(cur *ledger.LocalRecord) { ready <- cur },
	}

	var g errgroup.Group
	g.Go(func() error { return r.Run(ctx, func(c Change) { changes <- c }) })

	select {
	case initial := <-ready:
		assert.Equal(t, 3, initial.ReferralCredits)
	case <-time.After(5 * time.Second):
		t.Fatal("remote watch never became ready")
	}
	rec, err := localrecord.Read(recordPath)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.ReferralCredits)

	// An unrelated install commits but leaves orch-ref unchanged.
	_, err = client.Sync(ctx, "orch-other", "")
	require.NoError(t, err)
	_, err = client.Sync(ctx, "orch-new", "orch-ref")
	require.NoError(t, err)

	c := next(t, changes)
	require.NotNil(t, c.Before)
	assert.Equal(t, 3, c.CreditDelta())
	assert.Equal(t, 1, c.After.ReferralCount)

	select {
	case extra := <-changes:
		t.Fatalf("unexpected change %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}

	rec, err = localrecord.Read(recordPath)
	require.NoError(t, err)
	assert.Equal(t, 6, rec.ReferralCredits)

	cancel()
	require.NoError(t, g.Wait())
}

func TestRemote_UnknownInstance(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := ledger.NewRedisStore(&redis.Options{Addr: mr.Addr()}, "test")
	require.NoError(t, err)
	defer store.Close()

	client := ledgersync.New(store)
	r := &Remote{
		Events: store,
		Fetch:  func(ctx context.Context) (*ledger.Record, ledger.Version, error) { return client.Fetch(ctx, "orch-missing") },
	}
	err = r.Run(context.Background(), func(Change) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read own record")
}
