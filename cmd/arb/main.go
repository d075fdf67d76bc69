package main

import (
	"context"
	"flag"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"spreadbot-go/internal/config"
	"spreadbot-go/internal/detector"
	"spreadbot-go/internal/engine"
	"spreadbot-go/internal/exchange"
	"spreadbot-go/internal/metrics"
	"spreadbot-go/internal/monitor"
	"spreadbot-go/internal/normalize"
	"spreadbot-go/internal/paper"
	"spreadbot-go/internal/util"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "internal/config/config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := util.NewLogger("info")
		boot.Fatal().Err(err).Msg("load config")
	}
	log := util.NewLogger(cfg.App.LogLevel)

	_ = metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	connectors := make([]exchange.Connector, 0, len(cfg.Exchanges))
	for _, ex := range cfg.Exchanges {
		conn, err := exchange.Build(ex, util.Component(log, ex.Name))
		if err != nil {
			log.Fatal().Err(err).Msg("build connector")
		}
		connectors = append(connectors, conn)
	}

	var recorder paper.TradeRecorder
	if cfg.Paper.TradesPath != "" {
		jsonl, err := paper.NewJSONLRecorder(cfg.Paper.TradesPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Paper.TradesPath).Msg("open trade recorder")
		}
		recorder = jsonl
	}

	sim := paper.NewSimulator(paper.Config{
		StartingCash:  decimal.NewFromFloat(cfg.Paper.StartingCash),
		PositionPct:   decimal.NewFromFloat(cfg.Paper.PositionPct),
		FixedNotional: decimal.NewFromFloat(cfg.Paper.FixedNotional),
		FeePct:        decimal.NewFromFloat(cfg.Paper.FeePct),
		AllowNegative: cfg.Paper.AllowNegative,
	}, util.Component(log, "paper"), recorder)

	eng := engine.New(
		engine.Config{Pairs: cfg.Arbitrage.Pairs},
		util.Component(log, "engine"),
		connectors,
		normalize.New(exchange.SymbolTable(cfg.Exchanges, cfg.Arbitrage.Pairs)),
		detector.New(decimal.NewFromFloat(cfg.Arbitrage.MinSpreadPct), cfg.Arbitrage.MaxTickAge()),
		sim,
		monitor.New(util.Component(log, "monitor"), cfg.Monitor.ReportInterval(), sim.Statistics),
	)

	if err := eng.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("engine start failed")
	}

	// The engine owns shutdown: SIGINT/SIGTERM stop it and exit the process.
	select {}
}
