package commands

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/config"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/printer"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/scaffold"
)

var (
	forceInit    bool
	initStateDir string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration",
	Long: `Writes a starter configuration with a sample tool catalog and
wizard texts.

Creates:
  • orchledger.yml (at --config)
  • <state dir>/catalog.yml
  • <state dir>/wizard/instructions.md, starter.txt, schema.yaml

The state directory is --state-dir, else $ORCH_STATE_DIR, else
/container_state.

Use --force to overwrite existing files.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite existing files")
	initCmd.Flags().StringVar(&initStateDir, "state-dir", "", "State directory to write the catalog and wizard texts into")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	stateDir := initStateDir
	if stateDir == "" {
		stateDir = os.Getenv(config.EnvStateDir)
	}
	if stateDir == "" {
		stateDir = config.Default().StateDir
	}
	abs, err := filepath.Abs(stateDir)
	if err != nil {
		return printer.Error("invalid state directory", err.Error(), nil)
	}

	opts := scaffold.Options{ConfigPath: configPath, StateDir: abs}

	if !forceInit {
		if err := scaffold.CheckExisting(opts); err != nil {
			return printer.Error("already initialized", err.Error(), []string{"orchledger init --force"})
		}
	}

	files, err := scaffold.Initialize(opts, forceInit)
	if err != nil {
		return printer.Error("initialization failed", err.Error(), nil)
	}

	scaffold.PrintSuccess(files)
	return nil
}
