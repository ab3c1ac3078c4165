package commands

import (
	"github.com/spf13/cobra"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/printer"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/wizard"
)

var wizardCmd = &cobra.Command{
	Use:   "wizard",
	Short: "Connect a chat assistant to this instance",
	Long: `Interactive setup: enter the public domain of this instance, then
paste the prepared instructions, conversation starter and action schema
into the assistant's configuration. Each text is copied to the clipboard
in turn. The last step checks https://<domain>/healthz.

The texts are read from the files named under wizard: in the
configuration, relative to the state directory.`,
	Args: cobra.NoArgs,
	RunE: runWizard,
}

func init() {
	rootCmd.AddCommand(wizardCmd)
}

func runWizard(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	content, err := wizard.LoadContent(cfg.WizardFiles())
	if err != nil {
		return printer.Error(
			"wizard texts missing",
			err.Error(),
			[]string{"Set wizard.instructions_file, wizard.starter_file and wizard.schema_file in " + configPath},
		)
	}

	m := wizard.NewMachine(content, wizard.SystemClipboard{}, wizard.HTTPChecker{})
	final, err := wizard.Run(ctx, m)
	if err != nil {
		return printer.Error("wizard failed", err.Error(), nil)
	}
	if final.Aborted() {
		printer.Warning("Setup cancelled\n")
		return nil
	}
	printer.Success("Assistant connected to https://%s\n", final.Domain())
	return nil
}
