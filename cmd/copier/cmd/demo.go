package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/copier/config"
	"github.com/rustyeddy/copier/engine"
	"github.com/rustyeddy/copier/ledger"
	"github.com/rustyeddy/copier/market"
	"github.com/rustyeddy/copier/snapshot"
	"github.com/rustyeddy/copier/terminal"
	"github.com/rustyeddy/copier/terminal/sim"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the whole pipeline in-process against the simulated venue",
	Long: `Run an end-to-end demonstration of the copier pipeline.

Shows the full workflow in one process:
  1. Seeding a master account with open trades on the simulated venue
  2. Publishing the master's book as a snapshot
  3. Reconciling a follower account against that snapshot
  4. Closing a master trade and watching the follower converge

Example:
  copier demo`,
	RunE: runDemo,
}

func init() {
	rootCmd.AddCommand(demoCmd)
}

func runDemo(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	dir, err := os.MkdirTemp("", "copier-demo")
	if err != nil {
		return fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	cfg := config.Default()
	cfg.System.SnapshotPath = filepath.Join(dir, "master_state.json")
	cfg.Ledger.Path = filepath.Join(dir, "copied_trades.json")
	cfg.Master = config.Account{Login: 100, Password: "demo", Server: "sim"}
	cfg.Followers = []config.Follower{
		{Account: config.Account{Login: 200, Password: "demo", Server: "sim"}},
	}

	gw := sim.New()
	gw.SetSymbolInfo(market.SymbolInfo{
		Name: "EURUSD", Point: 0.0001, Digits: 5,
		FillingModes: market.FillingIOC | market.FillingFOK,
		ContractSize: 100000, VolumeMin: 0.01, VolumeMax: 100, VolumeStep: 0.01,
	})
	gw.SetTick(market.Tick{Symbol: "EURUSD", Bid: 1.1000, Ask: 1.1001})

	masterTicket := gw.AddPosition(100, terminal.Position{
		Symbol: "EURUSD", Type: market.OrderTypeBuy, Volume: 0.10,
		PriceOpen: 1.1001, OpenedAt: time.Now(),
	})
	fmt.Printf("master opened EURUSD buy 0.10 (ticket %d)\n", masterTicket)

	store := snapshot.NewStore(cfg.System.SnapshotPath)
	if err := publishOnce(ctx, gw, store, cfg.Master.Credentials()); err != nil {
		return err
	}
	fmt.Printf("published snapshot to %s\n", store.Path())

	led, err := ledger.NewFile(cfg.Ledger.Path)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer led.Close()

	eng := engine.New(cfg, gw, led, store)
	eng.RunCycle(ctx)
	printBook(gw, 200)

	fmt.Printf("\nmaster closes ticket %d\n", masterTicket)
	if err := gw.Connect(ctx, cfg.Master.Credentials()); err != nil {
		return err
	}
	if _, err := gw.SendOrder(ctx, terminal.OrderRequest{
		Action: terminal.ActionDeal, Symbol: "EURUSD", Type: market.OrderTypeSell,
		Volume: 0.10, Position: masterTicket, Price: 1.1000,
	}); err != nil {
		return err
	}
	if err := publishOnce(ctx, gw, store, cfg.Master.Credentials()); err != nil {
		return err
	}
	eng.RunCycle(ctx)
	printBook(gw, 200)

	records, err := led.List(0)
	if err != nil {
		return err
	}
	fmt.Println("\nledger:")
	for _, rec := range records {
		fmt.Printf("  master %d -> follower %d  %s %s %.2f  %s\n",
			rec.MasterTicket, rec.FollowerTicket, rec.Symbol, rec.Side, rec.Volume, rec.Status)
	}
	return nil
}

// publishOnce captures and writes a single snapshot of the master book.
func publishOnce(ctx context.Context, gw terminal.Gateway, store *snapshot.Store, creds terminal.Credentials) error {
	if err := gw.Connect(ctx, creds); err != nil {
		return fmt.Errorf("connect master: %w", err)
	}
	positions, err := gw.Positions(ctx)
	if err != nil {
		return err
	}
	orders, err := gw.PendingOrders(ctx)
	if err != nil {
		return err
	}
	return store.Write(snapshot.Capture(positions, orders, time.Now()))
}

func printBook(gw *sim.Terminal, login int64) {
	positions := gw.PositionsOf(login)
	if len(positions) == 0 {
		fmt.Printf("follower %d book: flat\n", login)
		return
	}
	fmt.Printf("follower %d book:\n", login)
	for _, p := range positions {
		fmt.Printf("  %d %s %s %.2f @ %.5f (%s)\n",
			p.Ticket, p.Symbol, p.Type, p.Volume, p.PriceOpen, p.Comment)
	}
}
