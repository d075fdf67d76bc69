// Package normalize converts exchange-native raw ticks into canonical ticks.
package normalize

import (
	"github.com/shopspring/decimal"

	"spreadbot-go/internal/market"
)

// Normalizer maps native symbols to canonical pairs and validates prices.
// The symbol table is read-only after construction, so Normalize is safe to
// call concurrently from every connector's consumption task.
type Normalizer struct {
	// pairsByExchange: exchange -> native symbol -> canonical pair.
	pairsByExchange map[string]map[string]string
}

// New builds a normalizer from an exchange -> native symbol -> pair table.
func New(pairsByExchange map[string]map[string]string) *Normalizer {
	return &Normalizer{pairsByExchange: pairsByExchange}
}

// Normalize parses and validates a raw tick. Malformed input is dropped,
// not errored: unknown exchange or symbol, unparsable or non-positive
// prices, bid above ask, or a zero receipt timestamp all return false.
func (n *Normalizer) Normalize(raw market.RawTick) (market.Tick, bool) {
	symbols, ok := n.pairsByExchange[raw.Exchange]
	if !ok {
		return market.Tick{}, false
	}
	pair, ok := symbols[raw.Symbol]
	if !ok {
		return market.Tick{}, false
	}

	bid, err := decimal.NewFromString(raw.Bid)
	if err != nil {
		return market.Tick{}, false
	}
	ask, err := decimal.NewFromString(raw.Ask)
	if err != nil {
		return market.Tick{}, false
	}
	if !bid.IsPositive() || !ask.IsPositive() || bid.GreaterThan(ask) {
		return market.Tick{}, false
	}
	if raw.ReceivedAt.IsZero() {
		return market.Tick{}, false
	}

	return market.Tick{
		Exchange: raw.Exchange,
		Pair:     pair,
		Bid:      bid,
		Ask:      ask,
		Ts:       raw.ReceivedAt,
	}, true
}
