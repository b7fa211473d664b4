package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "copier",
	Short: "Mirror trades from a master account onto follower accounts",
	Long: `Copier mirrors trading activity from one master account onto any number
of follower accounts, with safety guards between the two.

It provides tools for:
  - Publishing the master's positions and pending orders as snapshots
  - Reconciling follower accounts against the latest snapshot
  - Guarding copies with slippage, spread, margin and exposure checks
  - Keeping a durable ledger of every copied trade

Complete documentation is available at https://github.com/rustyeddy/copier`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			level = logrus.InfoLevel
		}
		logrus.SetLevel(level)
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	},
}

var logLevel string

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}
