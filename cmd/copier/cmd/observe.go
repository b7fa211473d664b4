package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/copier/config"
	"github.com/rustyeddy/copier/snapshot"
)

var observeCmd = &cobra.Command{
	Use:   "observe",
	Short: "Publish the master account's book as snapshots",
	Long: `Connect to the master account and publish its positions and pending
orders to the snapshot file at the configured cadence. The engine run by
'copier run' consumes these snapshots. Runs until interrupted.

Example:
  copier observe -f config.yaml`,
	RunE: runObserve,
}

var observeConfigPath string

func init() {
	rootCmd.AddCommand(observeCmd)

	observeCmd.Flags().StringVarP(&observeConfigPath, "config", "f", "", "path to config file (YAML or JSON) (required)")
	observeCmd.MarkFlagRequired("config")
}

func runObserve(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(observeConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pub := snapshot.NewPublisher(newGateway(), snapshot.NewStore(cfg.System.SnapshotPath), cfg.PublishInterval())
	return pub.Run(ctx, cfg.Master.Credentials())
}
