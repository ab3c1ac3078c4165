package commands

import (
	"github.com/spf13/cobra"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/printer"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Prints the configuration after defaults and environment overrides.
Secrets are never printed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		printer.Info("%s", cfg.String())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
