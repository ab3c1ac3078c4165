package ledgersync

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/credit"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/store/boltstore"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/store/memstore"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/pkg/ledger"
)

type backend struct {
	name string
	open func(t *testing.T) ledger.Store
}

func raceBackends() []backend {
	return []backend{
		{"memory", func(t *testing.T) ledger.Store { return memstore.New() }},
		{"redis", func(t *testing.T) ledger.Store {
			mr := miniredis.RunT(t)
			s, err := ledger.NewRedisStore(&redis.Options{Addr: mr.Addr()}, "race")
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		}},
		{"bolt", func(t *testing.T) ledger.Store {
			s, err := boltstore.Open(filepath.Join(t.TempDir(), "ledger.db"), time.Second)
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		}},
	}
}

// TestSync_ConcurrentInstallsNoLostUpdate races installs that all name the
// same referrer. Every install must land and the referrer must be credited
// once per install.
func TestSync_ConcurrentInstallsNoLostUpdate(t *testing.T) {
	for _, b := range raceBackends() {
		t.Run(b.name, func(t *testing.T) {
			store := b.open(t)
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
			defer cancel()

			seed := New(store, WithRetry(fastRetry(5)))
			_, err := seed.Sync(ctx, "orch-root", "")
			require.NoError(t, err)

			const installs = 8
			results := make([]*Result, installs)
			var g errgroup.Group
			for i := 0; i < installs; i++ {
				i := i
				g.Go(func() error {
					// Each installer is its own client like an independent process.
					c := New(store, WithRetry(fastRetry(installs*4)))
					res, err := c.Sync(ctx, fmt.Sprintf("orch-new-%d", i), "orch-root")
					results[i] = res
					return err
				})
			}
			require.NoError(t, g.Wait())

			retried := 0
			for _, res := range results {
				assert.Equal(t, credit.OutcomeReferrerCredited, res.Outcome)
				if res.Attempts > 1 {
					retried++
				}
			}
			t.Logf("%d of %d installs retried after a conflict", retried, installs)

			doc, _, err := store.GetLatest(ctx)
			require.NoError(t, err)
			assert.Len(t, doc.Installs, installs+1)
			assert.Equal(t, installs, doc.Installs["orch-root"].ReferralCount)
			assert.Equal(t, 3+3*installs, doc.Installs["orch-root"].ReferralCredits)
			for i := 0; i < installs; i++ {
				rec := doc.Installs[fmt.Sprintf("orch-new-%d", i)]
				require.NotNil(t, rec)
				assert.Equal(t, 3, rec.ReferralCredits)
				assert.Equal(t, 0, rec.ReferralCount)
			}
		})
	}
}

// TestSync_TwoRacersOneRetries forces the interleaving from property 6
// deterministically: both clients read the same snapshot, one commits, the
// other conflicts and retries on the fresh document.
func TestSync_TwoRacersOneRetries(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	seed := ledger.New()
	seed.Installs["orch-r"] = ledger.NewRecord(3, ledger.DefaultTool, fixedNow)
	_, err := store.PutIfMatch(ctx, seed, ledger.NoVersion)
	require.NoError(t, err)

	racer := New(store)
	interleaved := false

	c := New(store, WithRetry(fastRetry(5)))
	commit, err := c.Mutate(ctx, func(current *ledger.Ledger) (*ledger.Ledger, error) {
		if !interleaved {
			interleaved = true
			_, err := racer.Sync(ctx, "orch-b", "orch-r")
			require.NoError(t, err)
		}
		next, _, err := credit.ApplyInstall(current, "orch-a", "orch-r", fixedNow, credit.DefaultPolicy())
		return next, err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, commit.Attempts)

	doc, _, err := store.GetLatest(ctx)
	require.NoError(t, err)
	assert.True(t, doc.Has("orch-a"))
	assert.True(t, doc.Has("orch-b"))
	assert.Equal(t, 2, doc.Installs["orch-r"].ReferralCount)
	assert.Equal(t, 9, doc.Installs["orch-r"].ReferralCredits)
}
