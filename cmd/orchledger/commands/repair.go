package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/identity"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/install"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/printer"
)

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Rewrite the local credit record from the shared ledger",
	Long: `Pulls this instance's record from the shared ledger into the local
credit record. An instance that fell back to default credits at install
time is registered now, without a referrer.

When the ledger is still unreachable an existing local record is kept and
a missing one is replaced by the default grant.`,
	Args: cobra.NoArgs,
	RunE: runRepair,
}

func init() {
	rootCmd.AddCommand(repairCmd)
}

func runRepair(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	e, err := setupDegradable()
	if err != nil {
		return err
	}
	defer e.Close()

	in := &install.Installer{
		Paths: install.Paths{
			Identity: e.cfg.IdentityPath(),
			Referrer: e.cfg.ReferrerPath(),
			Record:   e.cfg.RecordPath(),
		},
		Sync:   e.sync,
		Policy: e.cfg.Policy(),
		Logger: e.logger,
	}

	report, err := in.Repair(ctx)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return printer.Error(
				"instance not installed",
				"No instance identity was found, so there is nothing to repair.",
				[]string{"Run 'orchledger install' first"},
			)
		}
		return printer.Error("repair failed", err.Error(), nil)
	}

	switch report.Source {
	case install.RepairFromLedger:
		printer.Success("Local record updated from the ledger\n")
	case install.RepairRegistered:
		printer.Success("Instance registered in the ledger\n")
	default:
		printer.Warning("%s\n", report.Warning)
	}
	printer.Field("Instance", report.InstanceID)
	printer.Field("Credits", report.Record.ReferralCredits)
	printer.Field("Referrals", report.Record.ReferralCount)
	printer.Field("Tools unlocked", report.Record.ToolsUnlocked)
	return nil
}
