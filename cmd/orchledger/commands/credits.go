package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/credit"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/identity"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/localrecord"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/printer"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/pkg/ledger"
)

var creditsRemote bool

var creditsCmd = &cobra.Command{
	Use:   "credits",
	Short: "Show this instance's referral credits",
	Long: `Shows the referral count, credits and unlocked tools.

By default the local credit record is read. With --remote the instance's
record is fetched from the shared ledger instead.`,
	Args: cobra.NoArgs,
	RunE: runCredits,
}

func init() {
	creditsCmd.Flags().BoolVar(&creditsRemote, "remote", false, "Read from the shared ledger instead of the local record")
	rootCmd.AddCommand(creditsCmd)
}

func runCredits(cmd *cobra.Command, args []string) error {
	if !creditsRemote {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rec, err := localrecord.Read(cfg.RecordPath())
		if err != nil {
			if errors.Is(err, localrecord.ErrNotFound) {
				return printer.Error(
					"no local credit record",
					fmt.Sprintf("%s does not exist yet.", cfg.RecordPath()),
					[]string{"Run 'orchledger install'", "Run 'orchledger repair' to pull the record from the ledger"},
				)
			}
			return printer.Error("failed to read local credit record", err.Error(), nil)
		}
		printRecord(rec, "")
		return nil
	}

	ctx, cancel := signalContext()
	defer cancel()

	e, err := setup()
	if err != nil {
		return err
	}
	defer e.Close()

	id, err := identity.Load(e.cfg.IdentityPath())
	if err != nil {
		return printer.Error("instance not installed", err.Error(), []string{"Run 'orchledger install' first"})
	}

	rec, version, err := e.sync.Fetch(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, credit.ErrInstanceNotFound) {
			return printer.Error(
				"instance not registered",
				fmt.Sprintf("%s is not in the shared ledger.", id.UserID),
				[]string{"Run 'orchledger repair' to register it"},
			)
		}
		return printer.ErrorWithContext(
			"shared ledger unreachable",
			err.Error(),
			map[string]string{"Store": storeTarget(e.cfg.Store)},
			[]string{"Run without --remote to read the local record"},
		)
	}
	printer.Field("Instance", id.UserID)
	printRecord(rec.Local(), string(version))
	return nil
}

func printRecord(rec ledger.LocalRecord, version string) {
	printer.Field("Credits", rec.ReferralCredits)
	printer.Field("Referrals", rec.ReferralCount)
	printer.Field("Tools unlocked", rec.ToolsUnlocked)
	if version != "" {
		printer.Field("Ledger version", version)
	}
}
