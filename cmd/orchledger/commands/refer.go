package commands

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/identity"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/printer"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/referral"
)

var (
	referOut string
	referZip bool
)

var referCmd = &cobra.Command{
	Use:   "refer",
	Short: "Write a referral file carrying this instance's id",
	Long: `Writes the referrer file a new install reads on its first run. Place it
in the new instance's state directory before 'orchledger install'; this
instance is then credited for the referral.

With --zip the file is packed into a zip bundle instead.`,
	Args: cobra.NoArgs,
	RunE: runRefer,
}

func init() {
	referCmd.Flags().StringVar(&referOut, "out", ".", "Directory to write the referral file or bundle into")
	referCmd.Flags().BoolVar(&referZip, "zip", false, "Write a zip bundle instead of a bare file")
	rootCmd.AddCommand(referCmd)
}

func runRefer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	id, err := identity.Load(cfg.IdentityPath())
	if err != nil {
		return printer.Error("instance not installed", err.Error(), []string{"Run 'orchledger install' first"})
	}
	name := filepath.Base(cfg.ReferrerFile)

	if !referZip {
		path, err := referral.WriteFile(referOut, name, id.UserID)
		if err != nil {
			return printer.Error("failed to write the referral file", err.Error(), nil)
		}
		printer.Success("Referral file written: %s\n", path)
		printer.Info("Copy it into the new instance's state directory before its first install.\n")
		return nil
	}

	if err := os.MkdirAll(referOut, 0o755); err != nil {
		return printer.Error("failed to write the referral bundle", err.Error(), nil)
	}
	path := filepath.Join(referOut, referral.BundleName(id.UserID))
	f, err := os.Create(path)
	if err != nil {
		return printer.Error("failed to write the referral bundle", err.Error(), nil)
	}
	if err := referral.WriteBundle(f, name, id.UserID); err != nil {
		f.Close()
		os.Remove(path)
		return printer.Error("failed to write the referral bundle", err.Error(), nil)
	}
	if err := f.Close(); err != nil {
		return printer.Error("failed to write the referral bundle", err.Error(), nil)
	}
	printer.Success("Referral bundle written: %s\n", path)
	printer.Field("Referrer", id.UserID)
	return nil
}
