package exchange

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"spreadbot-go/internal/config"
)

// Build returns a connector implementation matching the configured venue
// name. Names starting with "sim" produce synthetic connectors whose skew
// is derived from the name, so two sims quote slightly different prices.
func Build(cfg config.Exchange, log zerolog.Logger) (Connector, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Name))
	switch {
	case name == "binance":
		return NewBinance(cfg, log), nil
	case name == "coinbase":
		return NewCoinbase(cfg, log), nil
	case strings.HasPrefix(name, "sim"):
		return NewSim(cfg.Name, WithSimSkewBps(simSkewFor(cfg.Name))), nil
	default:
		return nil, fmt.Errorf("unknown exchange %q", cfg.Name)
	}
}

// SymbolTable inverts per-exchange symbol maps into the native-symbol ->
// canonical-pair form the normalizer consumes. Exchanges with no explicit
// mapping quote canonical pairs directly (the sim connectors do).
func SymbolTable(exchanges []config.Exchange, pairs []string) map[string]map[string]string {
	table := make(map[string]map[string]string, len(exchanges))
	for _, ex := range exchanges {
		byNative := make(map[string]string)
		if len(ex.Symbols) > 0 {
			for pair, native := range ex.Symbols {
				byNative[native] = pair
			}
		} else {
			for _, pair := range pairs {
				byNative[pair] = pair
			}
		}
		table[ex.Name] = byNative
	}
	return table
}

// simSkewFor spreads sim venues over roughly -20..+20 bps deterministically.
func simSkewFor(name string) float64 {
	var h uint32 = 2166136261
	for i := 0; i < len(name); i++ {
		h ^= uint32(name[i])
		h *= 16777619
	}
	return float64(h%41) - 20
}
