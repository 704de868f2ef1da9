package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/krejcif/llmtrader/internal/infrastructure/exchange"
	"github.com/krejcif/llmtrader/internal/infrastructure/storage"
	"github.com/krejcif/llmtrader/internal/usecase"
)

// Verifies recorded stop/target exits against candle data and flags trades
// whose exit price was never reachable.
func main() {
	dbPath := flag.String("db", "trader.db", "path to the trade database")
	symbol := flag.String("symbol", "", "limit audit to one symbol")
	strategy := flag.String("strategy", "", "limit audit to one strategy")
	timeframe := flag.String("timeframe", "5m", "candle timeframe used for verification")
	limit := flag.Int("limit", 100, "max closed trades to audit")
	flag.Parse()

	store, err := storage.NewSQLiteStore(*dbPath)
	if err != nil {
		fmt.Printf("Failed to init sqlite: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	log := zap.NewNop()
	binance := exchange.NewBinanceAdapter("", "", "", "", log)
	auditor := usecase.NewTradeAuditor(store, binance, *timeframe, log)

	verdicts, err := auditor.AuditClosed(context.Background(), *symbol, *strategy, *limit)
	if err != nil {
		fmt.Printf("Audit failed: %v\n", err)
		os.Exit(1)
	}

	flagged := 0
	for _, v := range verdicts {
		switch {
		case v.Skipped:
			fmt.Printf("- %s: skipped (%s)\n", v.TradeID, v.Reason)
		case v.Valid:
			fmt.Printf("- %s: ok\n", v.TradeID)
		default:
			flagged++
			fmt.Printf("- %s: INVALID - %s\n", v.TradeID, v.Reason)
		}
	}
	fmt.Printf("Audited %d trades, flagged %d invalid\n", len(verdicts), flagged)
}
