package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/config"
	dockerpkg "github.com/unmistakablecreative/orchestrate-no-bullshit/internal/docker"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/printer"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/pkg/ledger"
)

var (
	storePort      int
	storeImage     string
	storeNamespace string
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Provision a local Redis shared ledger with Docker",
}

var storeUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Start a Redis ledger container",
	Long: `Starts a labelled Redis container published on 127.0.0.1:<port>.
Point installs at it with:

  export ORCH_LEDGER_URL=redis://localhost:<port>`,
	Args: cobra.NoArgs,
	RunE: runStoreUp,
}

var storeDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop and remove the Redis ledger container",
	Long: `Stops and removes the ledger container for the namespace.
The ledger contents are lost.`,
	Args: cobra.NoArgs,
	RunE: runStoreDown,
}

var storeStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show provisioned ledger containers",
	Args:  cobra.NoArgs,
	RunE:  runStoreStatus,
}

func init() {
	storeCmd.PersistentFlags().StringVar(&storeNamespace, "namespace", "", "Ledger namespace (default from configuration)")
	storeUpCmd.Flags().IntVar(&storePort, "port", dockerpkg.DefaultRedisPort, "Host port to publish Redis on")
	storeUpCmd.Flags().StringVar(&storeImage, "image", dockerpkg.DefaultRedisImage, "Redis image")

	storeCmd.AddCommand(storeUpCmd, storeDownCmd, storeStatusCmd)
	rootCmd.AddCommand(storeCmd)
}

func resolveNamespace() (string, error) {
	ns := storeNamespace
	if ns == "" {
		cfg, err := loadConfig()
		if err != nil {
			return "", err
		}
		ns = cfg.Store.Namespace
	}
	if ns == "" {
		ns = ledger.DefaultNamespace
	}
	if err := ledger.ValidateNamespace(ns); err != nil {
		return "", printer.Error("invalid namespace", err.Error(), nil)
	}
	return ns, nil
}

func runStoreUp(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	ns, err := resolveNamespace()
	if err != nil {
		return err
	}

	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		return printer.Error("Docker unavailable", err.Error(), nil)
	}
	defer cli.Close()

	printer.Step("Starting %s on 127.0.0.1:%d...\n", storeImage, storePort)
	c, err := dockerpkg.Up(ctx, cli, dockerpkg.UpOptions{Namespace: ns, Port: storePort, Image: storeImage})
	if err != nil {
		return printer.Error(
			"failed to start the ledger",
			err.Error(),
			[]string{
				fmt.Sprintf("Stop the existing ledger: orchledger store down --namespace %s", ns),
				"Choose a different port: orchledger store up --port 6380",
			},
		)
	}

	printer.Success("Started %s\n", c.Name)
	printer.Field("Namespace", c.Namespace)
	printer.Field("URL", c.URL())
	printer.Info("\nexport %s=%s\n", config.EnvURL, c.URL())
	return nil
}

func runStoreDown(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	ns, err := resolveNamespace()
	if err != nil {
		return err
	}

	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		return printer.Error("Docker unavailable", err.Error(), nil)
	}
	defer cli.Close()

	removed, err := dockerpkg.Down(ctx, cli, ns)
	for _, name := range removed {
		printer.Success("Removed %s\n", name)
	}
	if err != nil {
		return printer.Error("failed to remove the ledger", err.Error(), nil)
	}
	if len(removed) == 0 {
		printer.Info("No ledger container for namespace '%s'\n", ns)
	}
	return nil
}

func runStoreStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		return printer.Error("Docker unavailable", err.Error(), nil)
	}
	defer cli.Close()

	containers, status, err := dockerpkg.Inspect(ctx, cli, storeNamespace)
	if err != nil {
		return printer.Error("failed to query Docker", err.Error(), nil)
	}
	if status == dockerpkg.StatusAbsent {
		printer.Info("No ledger containers. Start one with 'orchledger store up'.\n")
		return nil
	}

	printer.Info("Status: %s\n\n", status)
	for _, c := range containers {
		printer.Info("%s\n", c.Name)
		printer.Field("Namespace", c.Namespace)
		printer.Field("State", c.State)
		printer.Field("URL", c.URL())
		printer.Field("Uptime", time.Since(c.Created).Round(time.Second))
	}
	return nil
}
