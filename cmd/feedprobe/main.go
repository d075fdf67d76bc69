// feedprobe connects to a single configured exchange and prints its
// normalized ticks. Handy for checking venue connectivity and symbol
// mappings without running the full engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"spreadbot-go/internal/config"
	"spreadbot-go/internal/exchange"
	"spreadbot-go/internal/normalize"
	"spreadbot-go/internal/util"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "internal/config/config.yaml", "path to the YAML config file")
	venue := flag.String("exchange", "", "exchange name from the config (default: first)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := util.NewLogger("info")
		boot.Fatal().Err(err).Msg("load config")
	}
	log := util.NewLogger(cfg.App.LogLevel)

	target := cfg.Exchanges[0]
	if *venue != "" {
		found := false
		for _, ex := range cfg.Exchanges {
			if ex.Name == *venue {
				target = ex
				found = true
				break
			}
		}
		if !found {
			log.Fatal().Str("exchange", *venue).Msg("exchange not in config")
		}
	}

	conn, err := exchange.Build(target, util.Component(log, target.Name))
	if err != nil {
		log.Fatal().Err(err).Msg("build connector")
	}
	norm := normalize.New(exchange.SymbolTable([]config.Exchange{target}, cfg.Arbitrage.Pairs))

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := conn.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("connect")
	}
	defer conn.Disconnect()
	if err := conn.SubscribePairs(ctx, cfg.Arbitrage.Pairs); err != nil {
		log.Fatal().Err(err).Msg("subscribe")
	}
	log.Info().Str("exchange", target.Name).Strs("pairs", cfg.Arbitrage.Pairs).Msg("probing feed")

	updates := conn.PriceUpdates()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-updates:
			if !ok {
				log.Warn().Msg("feed closed")
				return
			}
			tick, ok := norm.Normalize(raw)
			if !ok {
				log.Debug().Str("symbol", raw.Symbol).Msg("tick rejected")
				continue
			}
			fmt.Printf("%s %s bid=%s ask=%s\n", tick.Exchange, tick.Pair, tick.Bid, tick.Ask)
		}
	}
}
