package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantspot/engine/journal"
)

var flagStatusEvents int

func init() {
	cmdStatus.Flags().IntVar(&flagStatusEvents, "events", 10, "number of recent events to print")
}

var cmdStatus = &cobra.Command{
	Use:   "status",
	Short: "Print journal state: equity, open positions, recent events",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		j, err := journal.Open(cfg.Journal.DBPath)
		if err != nil {
			return err
		}
		defer j.Close()

		snap, ok, err := j.LatestEquity()
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("no equity snapshots yet")
		} else {
			fmt.Printf("equity    %.2f USD (cash %.2f, unrealized %+.2f, realized today %+.2f) at %s\n",
				snap.EquityUSD, snap.CashUSD, snap.UnrealizedPnLUSD, snap.RealizedTodayUSD,
				snap.Time.Format(time.RFC3339))
		}

		open, err := j.OpenTrades()
		if err != nil {
			return err
		}
		fmt.Printf("positions %d open\n", len(open))
		for _, t := range open {
			fmt.Printf("  %-10s qty %.6f entry %.2f stop %.2f tp %.2f mode %s opened %s\n",
				t.Symbol, t.EntryQty, t.EntryPrice, t.StopPrice, t.TakeProfitPrice,
				t.Mode, t.OpenedAt.Format(time.RFC3339))
		}

		events, err := j.LatestEvents(flagStatusEvents)
		if err != nil {
			return err
		}
		fmt.Printf("events    last %d\n", len(events))
		for _, e := range events {
			fmt.Printf("  #%-6d %-5s %-28s %s\n", e.Seq, e.Level, e.Type, e.Symbol)
		}
		return nil
	},
}
