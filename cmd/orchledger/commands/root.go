package commands

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/config"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/ledgersync"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/logging"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/printer"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/store"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/pkg/ledger"
)

var (
	version string
	commit  string
	date    string

	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "orchledger",
	Short: "orchledger - OrchestrateOS install identity and referral credits",
	Long: `orchledger bootstraps an OrchestrateOS instance: it issues the instance
identity on first run, registers it in the shared referral ledger, credits
the referring instance and keeps a local copy of the instance's credits.

The shared ledger can be Redis, a ledgerd HTTP endpoint, or a local bbolt,
SQLite or JSON file. Every ledger update is a compare-and-swap, so
simultaneous installs never lose each other's credits.`,
	Version: version,
	// Unknown flags on the root command must not pass silently.
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute runs the root command.
func Execute() error {
	// printer renders errors; cobra must not print them a second time.
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to orchledger.yml (defaults apply when missing)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug events, including conflict retries")
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(configPath)
	if err != nil {
		return nil, printer.Error(
			"invalid configuration",
			err.Error(),
			[]string{fmt.Sprintf("Fix %s or remove it to run with defaults", configPath)},
		)
	}
	return cfg, nil
}

func newLogger() (*zap.Logger, error) {
	logger, err := logging.New(verbose)
	if err != nil {
		return nil, printer.Error("failed to initialise logging", err.Error(), nil)
	}
	return logger, nil
}

// env bundles what most commands need.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	store  ledger.Store
	sync   *ledgersync.Client
	closer io.Closer
}

func (e *env) Close() {
	if e.closer != nil {
		_ = e.closer.Close()
	}
	_ = e.logger.Sync()
}

// setup loads configuration, logging and the ledger client. A store that
// cannot be opened is a command error.
func setup() (*env, error) {
	return setupWith(false)
}

// setupDegradable behaves like setup, but a store that cannot be opened is
// replaced by store.Unavailable so the command takes its offline path.
func setupDegradable() (*env, error) {
	return setupWith(true)
}

func setupWith(degradable bool) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}

	st, closer, err := store.Open(cfg.Store)
	if err != nil {
		if !degradable {
			_ = logger.Sync()
			return nil, printer.ErrorWithContext(
				"failed to open the shared ledger",
				err.Error(),
				map[string]string{"Backend": cfg.Store.Backend},
				[]string{
					fmt.Sprintf("Check store settings in %s", configPath),
					fmt.Sprintf("Override with %s / %s", config.EnvBackend, config.EnvURL),
				},
			)
		}
		logging.EventAt(logging.Component(logger, "store"), zapcore.WarnLevel, logging.EventLedgerUnavailable,
			zap.String("backend", cfg.Store.Backend),
			zap.String("target", storeTarget(cfg.Store)),
			zap.Error(err))
		st, closer = store.Unavailable{Err: err}, nil
	}

	client := ledgersync.New(st,
		ledgersync.WithPolicy(cfg.Policy()),
		ledgersync.WithRetry(cfg.Retry()),
		ledgersync.WithLogger(logger),
	)
	return &env{cfg: cfg, logger: logger, store: st, sync: client, closer: closer}, nil
}

// storeTarget names the ledger location without credentials.
func storeTarget(cfg config.Store) string {
	if cfg.URL != "" {
		if u, err := url.Parse(cfg.URL); err == nil {
			return u.Redacted()
		}
		return cfg.Backend
	}
	if cfg.Path != "" {
		return cfg.Path
	}
	return cfg.Backend
}
