package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/config"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/credit"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/identity"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/ledgersync"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/localrecord"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/printer"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/unlock"
)

var unlockCmd = &cobra.Command{
	Use:   "unlock <tool>",
	Short: "Spend referral credits to unlock a tool",
	Long: `Unlocks a tool from the catalog, deducting its cost from this
instance's credits in the shared ledger.

Unlocking needs the ledger: credits are never spent offline.`,
	Args: cobra.ExactArgs(1),
	RunE: runUnlock,
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Inspect the tool catalog",
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog tools and whether they are unlocked",
	Args:  cobra.NoArgs,
	RunE:  runToolsList,
}

func init() {
	toolsCmd.AddCommand(toolsListCmd)
	rootCmd.AddCommand(unlockCmd, toolsCmd)
}

func loadCatalog(cfg *config.Config) (*unlock.Catalog, error) {
	if cfg.Catalog == "" {
		return nil, printer.Error(
			"no tool catalog configured",
			"The catalog setting in the configuration is empty.",
			[]string{fmt.Sprintf("Set catalog: <path> in %s", configPath)},
		)
	}
	cat, err := unlock.LoadCatalog(cfg.Path(cfg.Catalog))
	if err != nil {
		return nil, printer.Error("failed to load the tool catalog", err.Error(), nil)
	}
	return cat, nil
}

func runUnlock(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	e, err := setup()
	if err != nil {
		return err
	}
	defer e.Close()

	cat, err := loadCatalog(e.cfg)
	if err != nil {
		return err
	}
	id, err := identity.Load(e.cfg.IdentityPath())
	if err != nil {
		return printer.Error("instance not installed", err.Error(), []string{"Run 'orchledger install' first"})
	}

	svc := &unlock.Service{
		InstanceID: id.UserID,
		RecordPath: e.cfg.RecordPath(),
		Catalog:    cat,
		Sync:       e.sync,
		Logger:     e.logger,
	}

	res, err := svc.Unlock(ctx, args[0])
	switch {
	case err == nil:
	case errors.Is(err, unlock.ErrUnknownTool):
		return printer.Error("unknown tool", err.Error(), []string{"Run 'orchledger tools list' to see the catalog"})
	case errors.Is(err, credit.ErrInsufficientCredits):
		return printer.Error("not enough credits", err.Error(), []string{"Refer another install to earn more credits"})
	case errors.Is(err, credit.ErrInstanceNotFound):
		return printer.Error("instance not registered", err.Error(), []string{"Run 'orchledger repair' to register it"})
	case errors.Is(err, ledgersync.ErrLedgerSync):
		return printer.ErrorWithContext(
			"shared ledger unreachable",
			err.Error(),
			map[string]string{"Store": storeTarget(e.cfg.Store)},
			[]string{"Try again once the ledger is reachable; no credits were spent"},
		)
	default:
		return printer.Error("unlock failed", err.Error(), nil)
	}

	if res.Outcome == credit.UnlockAlreadyUnlocked {
		printer.Info("%s\n", res.Message)
		return nil
	}
	printer.Success("%s\n", res.Message)
	return nil
}

func runToolsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cat, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	svc := &unlock.Service{RecordPath: cfg.RecordPath(), Catalog: cat}
	entries, rec, err := svc.List()
	if err != nil {
		if errors.Is(err, localrecord.ErrNotFound) {
			return printer.Error("no local credit record", err.Error(), []string{"Run 'orchledger install' first"})
		}
		return printer.Error("failed to read local credit record", err.Error(), nil)
	}

	printer.Info("Credits available: %d\n\n", rec.ReferralCredits)
	for _, entry := range entries {
		switch {
		case !entry.Locked:
			printer.Success("%-24s unlocked\n", entry.Label)
		case entry.Affordable:
			printer.Step("%-24s %d credits (run 'orchledger unlock %s')\n", entry.Label, entry.Cost, entry.Name)
		default:
			printer.Info("  %-24s %d credits\n", entry.Label, entry.Cost)
		}
		if entry.Description != "" {
			printer.Info("    %s\n", entry.Description)
		}
	}
	return nil
}
