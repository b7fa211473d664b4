package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/copier/config"
	"github.com/rustyeddy/copier/ledger"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect copied-trade records",
	Long: `Print the copy records kept by the trade ledger.

By default every record is shown; --open restricts the output to trades
still open, and --login restricts it to one follower account.

Examples:
  copier ledger -f config.yaml
  copier ledger -f config.yaml --open --login 5001234`,
	RunE: runLedger,
}

var (
	ledgerConfigPath string
	ledgerOpenOnly   bool
	ledgerLogin      int64
)

func init() {
	rootCmd.AddCommand(ledgerCmd)

	ledgerCmd.Flags().StringVarP(&ledgerConfigPath, "config", "f", "", "path to config file (YAML or JSON) (required)")
	ledgerCmd.Flags().BoolVar(&ledgerOpenOnly, "open", false, "show only open records")
	ledgerCmd.Flags().Int64Var(&ledgerLogin, "login", 0, "restrict to one follower login (0 = all)")
	ledgerCmd.MarkFlagRequired("config")
}

func runLedger(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(ledgerConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	led, err := openLedger(cfg)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer led.Close()

	var records []ledger.CopyRecord
	if ledgerOpenOnly {
		records, err = led.ListOpen(ledgerLogin)
	} else {
		records, err = led.List(ledgerLogin)
	}
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("no records")
		return nil
	}

	fmt.Printf("%-12s %-12s %-10s %-10s %-10s %-8s %-8s\n",
		"MASTER", "FOLLOWER", "LOGIN", "SYMBOL", "SIDE", "VOLUME", "STATUS")
	for _, rec := range records {
		fmt.Printf("%-12d %-12d %-10d %-10s %-10s %-8.2f %-8s\n",
			rec.MasterTicket, rec.FollowerTicket, rec.FollowerLogin,
			rec.Symbol, rec.Side, rec.Volume, rec.Status)
	}
	fmt.Printf("\n%d record(s)\n", len(records))
	return nil
}
