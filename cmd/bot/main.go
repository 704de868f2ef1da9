package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/krejcif/llmtrader/internal/domain"
	"github.com/krejcif/llmtrader/internal/infrastructure/exchange"
	"github.com/krejcif/llmtrader/internal/infrastructure/logger"
	"github.com/krejcif/llmtrader/internal/infrastructure/oracle"
	"github.com/krejcif/llmtrader/internal/infrastructure/storage"
	"github.com/krejcif/llmtrader/internal/usecase"
)

type Config struct {
	Strategies []domain.StrategyDefinition `yaml:"strategies"`
	// Cooldowns maps strategy name to cooldown minutes after any close.
	Cooldowns map[string]int       `yaml:"cooldowns"`
	Risk      usecase.RiskConfig   `yaml:"risk"`
	Ledger    usecase.LedgerConfig `yaml:"ledger"`
	Scheduler struct {
		PollSeconds          int `yaml:"poll_seconds"`
		RunnerTimeoutSeconds int `yaml:"runner_timeout_seconds"`
		ReconcileMinutes     int `yaml:"reconcile_minutes"`
	} `yaml:"scheduler"`
	Exchange struct {
		RESTEndpoint string `yaml:"rest_endpoint"`
		WSEndpoint   string `yaml:"ws_endpoint"`
	} `yaml:"exchange"`
	Oracle struct {
		Endpoint string `yaml:"endpoint"`
	} `yaml:"oracle"`
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
	Logging struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"logging"`
}

func loadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Scheduler.PollSeconds <= 0 {
		cfg.Scheduler.PollSeconds = 5
	}
	if cfg.Scheduler.RunnerTimeoutSeconds <= 0 {
		cfg.Scheduler.RunnerTimeoutSeconds = 120
	}
	if cfg.Scheduler.ReconcileMinutes <= 0 {
		cfg.Scheduler.ReconcileMinutes = 5
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "trader.db"
	}
	return &cfg, nil
}

func cooldownDurations(cfg *Config) map[string]time.Duration {
	out := make(map[string]time.Duration, len(cfg.Cooldowns))
	for name, minutes := range cfg.Cooldowns {
		out[name] = time.Duration(minutes) * time.Minute
	}
	return out
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	oracleKey := os.Getenv("DEEPSEEK_API_KEY")
	if oracleKey == "" {
		log.Fatal("DEEPSEEK_API_KEY is required")
	}

	liveEnabled := false
	for _, def := range cfg.Strategies {
		if def.Enabled && def.Live {
			liveEnabled = true
		}
	}
	apiKey := os.Getenv("BINANCE_API_KEY")
	apiSecret := os.Getenv("BINANCE_API_SECRET")
	if liveEnabled && (apiKey == "" || apiSecret == "") {
		log.Fatal("BINANCE_API_KEY and BINANCE_API_SECRET are required for live strategies")
	}

	store, err := storage.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	binance := exchange.NewBinanceAdapter(apiKey, apiSecret, cfg.Exchange.RESTEndpoint, cfg.Exchange.WSEndpoint, log)
	deepseek := oracle.NewDeepSeekOracle(oracleKey, cfg.Oracle.Endpoint)

	riskEngine := usecase.NewRiskEngine(cfg.Risk, log)
	guard := usecase.NewCooldownGuard(store, cooldownDurations(cfg), log)
	ledger := usecase.NewLedger(store, cfg.Ledger, log)
	runner := usecase.NewStrategyRunner(binance, deepseek, riskEngine, log)
	coordinator := usecase.NewExecutionCoordinator(ledger, guard, store, binance, log)
	runnerTimeout := time.Duration(cfg.Scheduler.RunnerTimeoutSeconds) * time.Second
	scheduler := usecase.NewScheduler(cfg.Strategies, runner, coordinator, runnerTimeout, log)

	symbols := usecase.Symbols(cfg.Strategies)
	scheduler.SetSentimentFn(usecase.NewFundingSentiment(binance, symbols, log))
	monitor := usecase.NewPositionMonitor(binance, ledger, symbols, log)
	reconciler := usecase.NewReconciler(binance, log)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stream ticks close touched stops/targets between monitor polls; the
	// polling pass below stays as the fallback when the stream is down.
	binance.OnPriceUpdate(func(symbol string, price float64) {
		if _, err := ledger.CheckPrices(ctx, symbol, price, time.Now()); err != nil {
			log.Error("stream price check failed", zap.String("symbol", symbol), zap.Error(err))
		}
	})
	if err := binance.Subscribe(symbols); err != nil {
		log.Warn("price stream unavailable, falling back to REST", zap.Error(err))
	}

	log.Info("trader started",
		zap.Int("strategies", len(cfg.Strategies)),
		zap.Strings("symbols", symbols),
		zap.Bool("live", liveEnabled))

	// Control loop: one short poll drives all three activities. Strategy
	// cycles and position monitoring run inline; reconciliation is detached
	// so a slow exchange round-trip never delays a cadence boundary.
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Scheduler.PollSeconds) * time.Second)
		defer ticker.Stop()

		reconcileEvery := time.Duration(cfg.Scheduler.ReconcileMinutes) * time.Minute
		lastReconcile := time.Time{}

		for {
			select {
			case <-ticker.C:
				now := time.Now()

				scheduler.Tick(ctx, now)
				monitor.Check(ctx, now)

				if liveEnabled && now.Sub(lastReconcile) >= reconcileEvery {
					lastReconcile = now
					go reconciler.Run(ctx)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	<-stop
	log.Info("Shutting down...")
	cancel()
}
