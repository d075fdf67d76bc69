package exchange

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"spreadbot-go/internal/config"
	"spreadbot-go/internal/market"
)

const binanceWSURL = "wss://stream.binance.com:9443/ws"

type binanceBookTicker struct {
	Symbol string `json:"s"`
	Bid    string `json:"b"`
	Ask    string `json:"a"`
}

type binanceSubscribe struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

// NewBinance builds a connector streaming best bid/ask via the public
// bookTicker websocket channel.
func NewBinance(cfg config.Exchange, log zerolog.Logger) Connector {
	url := binanceWSURL
	return &wsConnector{
		name:      cfg.Name,
		url:       url,
		symbols:   cfg.Symbols,
		log:       log,
		parse:     parseBinanceBookTicker,
		subscribe: buildBinanceSubscribe,
	}
}

func parseBinanceBookTicker(msg []byte, receivedAt time.Time) (market.RawTick, bool) {
	var tick binanceBookTicker
	if err := json.Unmarshal(msg, &tick); err != nil {
		return market.RawTick{}, false
	}
	// Subscribe acks and other control frames carry no symbol.
	if tick.Symbol == "" || tick.Bid == "" || tick.Ask == "" {
		return market.RawTick{}, false
	}
	return market.RawTick{
		Symbol:     tick.Symbol,
		Bid:        tick.Bid,
		Ask:        tick.Ask,
		ReceivedAt: receivedAt,
	}, true
}

func buildBinanceSubscribe(pairs []string, symbols map[string]string) (any, error) {
	params := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		native, ok := symbols[pair]
		if !ok {
			return nil, fmt.Errorf("no binance symbol mapped for pair %s", pair)
		}
		params = append(params, strings.ToLower(native)+"@bookTicker")
	}
	return binanceSubscribe{Method: "SUBSCRIBE", Params: params, ID: 1}, nil
}
