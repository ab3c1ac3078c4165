package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/credit"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/install"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/printer"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Bootstrap this instance's identity and referral credits",
	Long: `Run once per container start. On the first run it:

  1. Issues the instance identity (system_identity.json)
  2. Registers the instance in the shared ledger with the initial credits
  3. Credits the referrer named in referrer.txt, if any
  4. Writes the local credit record (referrals.json)

Later runs find the identity and only restore a missing local record
from the ledger. When the ledger cannot be
reached the default credits are granted locally and 'orchledger repair'
reconciles them later.`,
	Args: cobra.NoArgs,
	RunE: runInstall,
}

func init() {
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
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

	report, err := in.Run(ctx)
	if err != nil {
		var recErr *install.RecordError
		if errors.As(err, &recErr) {
			return printer.ErrorWithContext(
				"failed to write the local credit record",
				err.Error(),
				map[string]string{"Instance": report.InstanceID, "Path": recErr.Path},
				[]string{"Fix the state directory permissions, then run 'orchledger repair'"},
			)
		}
		return printer.ErrorWithContext(
			"failed to bootstrap the instance identity",
			err.Error(),
			map[string]string{"Identity": in.Paths.Identity},
			[]string{fmt.Sprintf("Make sure %s is writable", e.cfg.StateDir)},
		)
	}

	if !report.FirstRun {
		printer.Info("Instance %s is already installed.\n", report.InstanceID)
		if report.Repaired != nil {
			if report.Warning != "" {
				printer.Warning("%s\n", report.Warning)
			}
			printer.Success("Local credit record restored (%s)\n", report.Repaired.Source)
			printer.Field("Credits", report.Record.ReferralCredits)
			printer.Field("Tools unlocked", report.Record.ToolsUnlocked)
		}
		return nil
	}

	printer.Success("Instance identity created: %s\n", report.InstanceID)
	if report.Degraded {
		printer.Warning("%s\n", report.Warning)
	} else {
		switch report.Outcome {
		case credit.OutcomeReferrerCredited:
			printer.Success("Referrer credited\n")
		case credit.OutcomeReferrerNotFound:
			printer.Warning("Referrer not found in the ledger; no referral credit applied\n")
		}
	}
	printer.Field("Credits", report.Record.ReferralCredits)
	printer.Field("Tools unlocked", report.Record.ToolsUnlocked)
	return nil
}
