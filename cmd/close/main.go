package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/krejcif/llmtrader/internal/infrastructure/storage"
	"github.com/krejcif/llmtrader/internal/usecase"
)

// Operator tool for closing a single open leg by hand, outside the normal
// stop/target lifecycle. Without -id it lists the open legs.
func main() {
	dbPath := flag.String("db", "trader.db", "path to the trade database")
	id := flag.String("id", "", "id of the leg to close")
	price := flag.Float64("price", 0, "exit price to record")
	flag.Parse()

	store, err := storage.NewSQLiteStore(*dbPath)
	if err != nil {
		fmt.Printf("Failed to init sqlite: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	ledger := usecase.NewLedger(store, usecase.DefaultLedgerConfig(), zap.NewNop())

	if *id == "" {
		open, err := store.GetOpenTrades(ctx, "")
		if err != nil {
			fmt.Printf("Failed to list open legs: %v\n", err)
			os.Exit(1)
		}
		if len(open) == 0 {
			fmt.Println("No open legs")
			return
		}
		for _, t := range open {
			fmt.Printf("- %s: %s %s entry=%.4f stop=%.4f target=%.4f\n",
				t.ID, t.Side, t.Symbol, t.EntryPrice, t.StopLoss, t.TakeProfit)
		}
		return
	}

	if *price <= 0 {
		fmt.Println("A positive -price is required with -id")
		os.Exit(1)
	}

	closed, err := ledger.CloseManual(ctx, *id, *price, time.Now().UTC())
	if err != nil {
		fmt.Printf("Manual close failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Closed %s at %.4f (pnl %.4f)\n", closed.ID, closed.ExitPrice, closed.PnL)
}
