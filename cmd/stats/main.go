package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/krejcif/llmtrader/internal/infrastructure/storage"
)

// Prints aggregate performance of valid closed trades, then the most recent
// strategy runs with their execution reasons.
func main() {
	dbPath := flag.String("db", "trader.db", "path to the trade database")
	symbol := flag.String("symbol", "", "limit stats to one symbol")
	strategy := flag.String("strategy", "", "limit stats to one strategy")
	runs := flag.Int("runs", 10, "recent strategy runs to show (0 to skip)")
	flag.Parse()

	store, err := storage.NewSQLiteStore(*dbPath)
	if err != nil {
		fmt.Printf("Failed to init sqlite: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	stats, err := store.GetTradeStats(ctx, *symbol, *strategy)
	if err != nil {
		fmt.Printf("Failed to load stats: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Closed trades: %d (wins %d, losses %d, win rate %.1f%%)\n",
		stats.Total, stats.Wins, stats.Losses, stats.WinRate)
	fmt.Printf("Total PnL: %.4f (avg %.4f, best %.4f, worst %.4f)\n",
		stats.TotalPnL, stats.AvgPnL, stats.BestPnL, stats.WorstPnL)
	fmt.Printf("Total fees: %.4f\n", stats.TotalFees)

	if *runs <= 0 {
		return
	}
	recent, err := store.ListStrategyRuns(ctx, *strategy, *runs)
	if err != nil {
		fmt.Printf("Failed to list strategy runs: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nRecent strategy runs:\n")
	for _, r := range recent {
		fmt.Printf("- %s %s %s action=%s executed=%t: %s\n",
			r.Timestamp.Format("2006-01-02 15:04"), r.Strategy, r.Symbol, r.Action, r.Executed, r.ExecutionReason)
	}
}
