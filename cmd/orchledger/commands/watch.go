package commands

import (
	"context"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/config"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/credit"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/identity"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/printer"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/watch"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/pkg/ledger"
)

var watchRemote bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the local credit record and report changes",
	Long: `Watches the local credit record and prints every change to credits,
referrals or unlocked tools until interrupted.

With --remote the instance's record in the shared Redis ledger is followed
instead, and each change is also written to the local record.

Examples:
  # Follow credits while a referred install runs elsewhere
  orchledger watch

  # Follow the shared ledger directly
  ORCH_LEDGER_URL=redis://localhost:6379 orchledger watch --remote`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchRemote, "remote", false, "Follow the shared ledger (redis backend) instead of the local file")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	if watchRemote {
		return runRemoteWatch(ctx)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	w := watch.New(cfg.RecordPath(), logger)
	w.OnReady = func(cur *ledger.LocalRecord) {
		printer.Step("Watching %s (Ctrl+C to stop)\n", cfg.RecordPath())
		if cur != nil {
			printer.Field("Credits", cur.ReferralCredits)
			printer.Field("Tools unlocked", cur.ToolsUnlocked)
		}
	}

	if err := w.Run(ctx, printChange); err != nil {
		return printer.Error("watch failed", err.Error(), []string{"Run 'orchledger install' to create the state directory"})
	}
	return nil
}

func runRemoteWatch(ctx context.Context) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.Close()

	events, ok := e.store.(watch.EventSource)
	if !ok {
		return printer.ErrorWithContext(
			"remote watch needs the redis backend",
			"Only the redis backend publishes ledger commits.",
			map[string]string{"Backend": e.cfg.Store.Backend},
			[]string{"Set " + config.EnvURL + "=redis://<host>:6379, or run 'orchledger watch' without --remote"},
		)
	}
	id, err := identity.Load(e.cfg.IdentityPath())
	if err != nil {
		return printer.Error("instance not installed", err.Error(), []string{"Run 'orchledger install' first"})
	}

	r := &watch.Remote{
		Events: events,
		Fetch: func(ctx context.Context) (*ledger.Record, ledger.Version, error) {
			return e.sync.Fetch(ctx, id.UserID)
		},
		RecordPath: e.cfg.RecordPath(),
		Logger:     e.logger,
		OnReady: func(cur *ledger.LocalRecord) {
			printer.Step("Following %s in %s (Ctrl+C to stop)\n", id.UserID, storeTarget(e.cfg.Store))
			printer.Field("Credits", cur.ReferralCredits)
			printer.Field("Tools unlocked", cur.ToolsUnlocked)
		},
	}
	if err := r.Run(ctx, printChange); err != nil {
		if errors.Is(err, credit.ErrInstanceNotFound) {
			return printer.Error("instance not registered", err.Error(), []string{"Run 'orchledger repair' to register it"})
		}
		return printer.Error("watch failed", err.Error(), nil)
	}
	return nil
}

func printChange(c watch.Change) {
	if d := c.CreditDelta(); d > 0 {
		printer.Success("Credits %+d → %d\n", d, c.After.ReferralCredits)
	} else if d < 0 {
		printer.Info("Credits %+d → %d\n", d, c.After.ReferralCredits)
	}
	if c.Before == nil || c.After.ReferralCount != c.Before.ReferralCount {
		printer.Field("Referrals", c.After.ReferralCount)
	}
	if tools := c.NewTools(); len(tools) > 0 {
		printer.Success("Unlocked: %s\n", strings.Join(tools, ", "))
	}
}
