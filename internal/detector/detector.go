// Package detector maintains the latest canonical price per (pair, exchange)
// and surfaces profitable cross-exchange spreads.
package detector

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"spreadbot-go/internal/market"
)

var hundred = decimal.NewFromInt(100)

// Detector holds the latest tick per (pair, exchange) and recomputes
// cross-exchange spreads on every ingest. Thresholds are immutable after
// construction. Ingest may be called concurrently from multiple consumption
// tasks; the table update and the spread scan run as one atomic unit under
// a single detector-wide mutex.
type Detector struct {
	minSpreadPct decimal.Decimal
	maxTickAge   time.Duration

	mu    sync.Mutex
	books map[string]map[string]market.Tick // pair -> exchange -> latest tick

	now func() time.Time
}

// New constructs a detector with the given minimum spread percentage and
// maximum tolerated tick age.
func New(minSpreadPct decimal.Decimal, maxTickAge time.Duration) *Detector {
	return &Detector{
		minSpreadPct: minSpreadPct,
		maxTickAge:   maxTickAge,
		books:        make(map[string]map[string]market.Tick),
		now:          time.Now,
	}
}

// Ingest stores the tick and returns any opportunities it uncovers, in
// detection order. A tick not newer than the stored one for the same
// (pair, exchange) is rejected outright: out-of-order network delivery must
// not roll the table backwards.
func (d *Detector) Ingest(tick market.Tick) []market.SpreadOpportunity {
	d.mu.Lock()
	defer d.mu.Unlock()

	byExchange, ok := d.books[tick.Pair]
	if !ok {
		byExchange = make(map[string]market.Tick)
		d.books[tick.Pair] = byExchange
	}
	if prev, ok := byExchange[tick.Exchange]; ok && !tick.Ts.After(prev.Ts) {
		return nil
	}
	byExchange[tick.Exchange] = tick

	now := d.now()
	if now.Sub(tick.Ts) > d.maxTickAge {
		// A spread built on a stale tick is not actionable, however wide.
		return nil
	}

	var opps []market.SpreadOpportunity
	for exch, other := range byExchange {
		if exch == tick.Exchange {
			continue
		}
		if now.Sub(other.Ts) > d.maxTickAge {
			continue
		}
		if opp, ok := d.spread(tick.Pair, other, tick, now); ok {
			opps = append(opps, opp)
		}
		if opp, ok := d.spread(tick.Pair, tick, other, now); ok {
			opps = append(opps, opp)
		}
	}
	return opps
}

// Latest returns the stored tick for a (pair, exchange), if any.
func (d *Detector) Latest(pair, exchange string) (market.Tick, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	tick, ok := d.books[pair][exchange]
	return tick, ok
}

// spread evaluates buying at buy's ask and selling at sell's bid.
func (d *Detector) spread(pair string, buy, sell market.Tick, now time.Time) (market.SpreadOpportunity, bool) {
	buyPx := buy.Ask
	sellPx := sell.Bid
	if !sellPx.GreaterThan(buyPx) {
		return market.SpreadOpportunity{}, false
	}
	pct := sellPx.Sub(buyPx).Div(buyPx).Mul(hundred)
	if pct.LessThan(d.minSpreadPct) {
		return market.SpreadOpportunity{}, false
	}
	return market.SpreadOpportunity{
		Pair:          pair,
		BuyExchange:   buy.Exchange,
		SellExchange:  sell.Exchange,
		BuyPrice:      buyPx,
		SellPrice:     sellPx,
		SpreadPercent: pct,
		DetectedAt:    now,
	}, true
}
