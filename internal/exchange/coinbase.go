package exchange

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"spreadbot-go/internal/config"
	"spreadbot-go/internal/market"
)

const coinbaseWSURL = "wss://ws-feed.exchange.coinbase.com"

type coinbaseTicker struct {
	Type      string `json:"type"`
	ProductID string `json:"product_id"`
	BestBid   string `json:"best_bid"`
	BestAsk   string `json:"best_ask"`
}

type coinbaseSubscribe struct {
	Type     string            `json:"type"`
	Channels []coinbaseChannel `json:"channels"`
}

type coinbaseChannel struct {
	Name       string   `json:"name"`
	ProductIDs []string `json:"product_ids"`
}

// NewCoinbase builds a connector streaming best bid/ask via the Coinbase
// Exchange ticker channel.
func NewCoinbase(cfg config.Exchange, log zerolog.Logger) Connector {
	return &wsConnector{
		name:      cfg.Name,
		url:       coinbaseWSURL,
		symbols:   cfg.Symbols,
		log:       log,
		parse:     parseCoinbaseTicker,
		subscribe: buildCoinbaseSubscribe,
	}
}

func parseCoinbaseTicker(msg []byte, receivedAt time.Time) (market.RawTick, bool) {
	var tick coinbaseTicker
	if err := json.Unmarshal(msg, &tick); err != nil {
		return market.RawTick{}, false
	}
	if tick.Type != "ticker" || tick.ProductID == "" {
		return market.RawTick{}, false
	}
	return market.RawTick{
		Symbol:     tick.ProductID,
		Bid:        tick.BestBid,
		Ask:        tick.BestAsk,
		ReceivedAt: receivedAt,
	}, true
}

func buildCoinbaseSubscribe(pairs []string, symbols map[string]string) (any, error) {
	products := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		native, ok := symbols[pair]
		if !ok {
			return nil, fmt.Errorf("no coinbase product mapped for pair %s", pair)
		}
		products = append(products, native)
	}
	return coinbaseSubscribe{
		Type:     "subscribe",
		Channels: []coinbaseChannel{{Name: "ticker", ProductIDs: products}},
	}, nil
}
