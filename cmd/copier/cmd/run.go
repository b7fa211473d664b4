package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/copier/config"
	"github.com/rustyeddy/copier/engine"
	"github.com/rustyeddy/copier/ledger"
	"github.com/rustyeddy/copier/metrics"
	"github.com/rustyeddy/copier/snapshot"
	"github.com/rustyeddy/copier/terminal"
	"github.com/rustyeddy/copier/terminal/sim"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the reconciliation engine over the follower accounts",
	Long: `Run the reconciliation engine using settings from a configuration file.

The engine reads the master snapshot published by 'copier observe', decides
whether a sync is due, and converges every configured follower account.
It runs until interrupted.

Example:
  copier run -f config.yaml`,
	RunE: runRun,
}

var runConfigPath string

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "f", "", "path to config file (YAML or JSON) (required)")
	runCmd.MarkFlagRequired("config")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	led, err := openLedger(cfg)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer led.Close()

	if cfg.System.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(cfg.System.MetricsAddr); err != nil {
				logrus.WithError(err).Error("metrics listener stopped")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng := engine.New(cfg, newGateway(), led, snapshot.NewStore(cfg.System.SnapshotPath))
	return eng.Run(ctx)
}

// openLedger constructs the configured ledger backend.
func openLedger(cfg *config.Config) (ledger.Ledger, error) {
	if cfg.Ledger.Type == "sqlite" {
		return ledger.NewSQLite(cfg.Ledger.Path)
	}
	return ledger.NewFile(cfg.Ledger.Path)
}

// newGateway returns the venue gateway. The in-memory terminal is the only
// gateway shipped here; a live venue plugs in behind terminal.Gateway.
func newGateway() terminal.Gateway {
	return sim.New()
}
