package main

import (
	"context"
	"flag"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/tradesim/matchbook/config"
	"github.com/tradesim/matchbook/pkg/logging"
	"github.com/tradesim/matchbook/pkg/metrics"
	"github.com/tradesim/matchbook/pkg/simulator"
)

func main() {
	configFile := flag.String("config", "", "path to yaml config (falls back to CONFIG_FILE)")
	steps := flag.Int("steps", 0, "override simulation steps")
	watch := flag.Bool("watch", false, "hot-reload fee schedule and self-trade prevention from the config file (logging settings are not reloaded)")
	flag.Parse()

	var cfg *config.AppConfig
	if *configFile != "" || os.Getenv("CONFIG_FILE") != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			zap.S().Fatalw("load config", "error", err)
		}
		cfg = loaded
	} else {
		cfg = &config.AppConfig{}
	}
	cfg.ApplyDefaults()

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel))
	defer logger.Sync() //nolint:errcheck
	sugar := logger.Sugar().With("session_id", logging.NewSessionID())

	sim := simulator.NewTradingSimulator(cfg.Engine.Symbol, cfg.Engine.MakerFeeRate)
	sim.SetLogger(sugar)

	router := sim.Book().Router()
	router.SetSelfTradePrevention(cfg.Engine.SelfTradePreventionEnabled())
	router.SetFeeSchedule(cfg.Engine.MakerFeeRate, cfg.Engine.TakerFeeRate)
	if cfg.Engine.LoggingEnabled {
		sim.Book().EnableLogging()
	}

	if cfg.MetricsAddr != "" {
		em := metrics.New()
		sim.SetMetrics(em)
		go func() {
			sugar.Infow("serving metrics", "addr", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, em.Handler()); err != nil {
				sugar.Warnw("metrics server stopped", "error", err)
			}
		}()
	}

	if *watch && *configFile != "" {
		watcher, err := config.NewWatcher(*configFile)
		if err != nil {
			sugar.Warnw("config watch unavailable", "error", err)
		} else {
			go func() {
				_ = watcher.Start(context.Background(), func(updated *config.AppConfig) {
					router.SetFeeSchedule(updated.Engine.MakerFeeRate, updated.Engine.TakerFeeRate)
					router.SetSelfTradePrevention(updated.Engine.SelfTradePreventionEnabled())
					sugar.Infow("config reloaded",
						"maker_fee", updated.Engine.MakerFeeRate,
						"taker_fee", updated.Engine.TakerFeeRate)
				})
			}()
		}
	}

	// Demo accounts and strategies trading against a synthetic feed.
	mustCreate(sim, 1, "momentum", 1_000_000)
	mustCreate(sim, 2, "meanrev", 1_000_000)
	mustCreate(sim, 3, "marketmaker", 1_000_000)

	mustAdd(sim, simulator.NewMomentumStrategy("momentum", 1, 20, 0.002))
	mustAdd(sim, simulator.NewMeanReversionStrategy("meanrev", 2, 30, 1.5))
	mustAdd(sim, simulator.NewMarketMakerStrategy("marketmaker", 3, 10, 50))

	genCfg := simulator.DefaultGeneratorConfig()
	genCfg.Symbol = cfg.Engine.Symbol
	genCfg.StartPrice = cfg.Simulator.StartPrice
	genCfg.Volatility = cfg.Simulator.Volatility
	genCfg.Spread = cfg.Simulator.Spread
	if cfg.Simulator.Seed != 0 {
		genCfg.Seed = cfg.Simulator.Seed
	}
	gen := simulator.NewGenerator(genCfg)

	runSteps := cfg.Simulator.Steps
	if *steps > 0 {
		runSteps = *steps
	}

	sugar.Infow("starting simulation", "symbol", cfg.Engine.Symbol, "steps", runSteps)
	for step := 0; step < runSteps; step++ {
		gen.Step(sim.Book(), cfg.Simulator.MarketOrderProb)
		sim.ProcessStep()
	}

	sim.PrintFinalReport(os.Stdout)

	if cfg.Engine.LoggingEnabled {
		if err := sim.Book().SaveCheckpoint(cfg.Persistence.SnapshotFile, cfg.Persistence.EventsFile); err != nil {
			sugar.Errorw("checkpoint failed", "error", err)
		}
	}
}

func mustCreate(sim *simulator.TradingSimulator, id int64, name string, cash float64) {
	if err := sim.CreateAccount(id, name, cash); err != nil {
		zap.S().Fatalw("create account", "error", err)
	}
}

func mustAdd(sim *simulator.TradingSimulator, s simulator.Strategy) {
	if err := sim.AddStrategy(s); err != nil {
		zap.S().Fatalw("add strategy", "error", err)
	}
}
