package detector

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"spreadbot-go/internal/market"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func tick(exchange, pair, bid, ask string, ts time.Time) market.Tick {
	return market.Tick{Exchange: exchange, Pair: pair, Bid: dec(bid), Ask: dec(ask), Ts: ts}
}

func newTestDetector(minSpread string, maxAge time.Duration, now time.Time) *Detector {
	d := New(dec(minSpread), maxAge)
	d.now = func() time.Time { return now }
	return d
}

func TestIngestDetectsSpread(t *testing.T) {
	base := time.Unix(1700000000, 0)
	d := newTestDetector("0.5", 2*time.Second, base.Add(100*time.Millisecond))

	if opps := d.Ingest(tick("X", "BTC-USD", "100", "100.1", base)); len(opps) != 0 {
		t.Fatalf("single-exchange tick must not produce opportunities, got %d", len(opps))
	}
	opps := d.Ingest(tick("Y", "BTC-USD", "101", "101.2", base))
	if len(opps) != 1 {
		t.Fatalf("expected exactly one opportunity, got %d", len(opps))
	}
	opp := opps[0]
	if opp.BuyExchange != "X" || opp.SellExchange != "Y" {
		t.Fatalf("unexpected legs: buy=%s sell=%s", opp.BuyExchange, opp.SellExchange)
	}
	if !opp.BuyPrice.Equal(dec("100.1")) || !opp.SellPrice.Equal(dec("101")) {
		t.Fatalf("unexpected prices: buy=%s sell=%s", opp.BuyPrice, opp.SellPrice)
	}
	want := dec("101").Sub(dec("100.1")).Div(dec("100.1")).Mul(decimal.NewFromInt(100))
	if !opp.SpreadPercent.Equal(want) {
		t.Fatalf("unexpected spread: got %s want %s", opp.SpreadPercent, want)
	}
	// ≈0.90%
	if opp.SpreadPercent.Sub(dec("0.90")).Abs().GreaterThan(dec("0.01")) {
		t.Fatalf("spread percent out of expected range: %s", opp.SpreadPercent)
	}
}

func TestIngestOrderIndependent(t *testing.T) {
	base := time.Unix(1700000000, 0)
	d := newTestDetector("0.5", 2*time.Second, base.Add(100*time.Millisecond))

	d.Ingest(tick("Y", "BTC-USD", "101", "101.2", base))
	opps := d.Ingest(tick("X", "BTC-USD", "100", "100.1", base.Add(time.Millisecond)))
	if len(opps) != 1 {
		t.Fatalf("expected exactly one opportunity, got %d", len(opps))
	}
	if opps[0].BuyExchange != "X" || opps[0].SellExchange != "Y" {
		t.Fatalf("unexpected legs: %+v", opps[0])
	}
}

func TestIngestBelowThreshold(t *testing.T) {
	base := time.Unix(1700000000, 0)
	d := newTestDetector("1.5", 2*time.Second, base.Add(100*time.Millisecond))

	d.Ingest(tick("X", "BTC-USD", "100", "100.1", base))
	if opps := d.Ingest(tick("Y", "BTC-USD", "101", "101.2", base)); len(opps) != 0 {
		t.Fatalf("spread under threshold must not emit, got %d", len(opps))
	}
}

func TestIngestRejectsStaleTick(t *testing.T) {
	base := time.Unix(1700000000, 0)
	d := newTestDetector("0.5", 10*time.Second, base.Add(time.Second))

	d.Ingest(tick("X", "BTC-USD", "100", "100.1", base))
	// Older than the stored tick for (BTC-USD, X): rejected, table unchanged.
	if opps := d.Ingest(tick("X", "BTC-USD", "90", "90.1", base.Add(-time.Second))); len(opps) != 0 {
		t.Fatalf("stale tick must not emit, got %d", len(opps))
	}
	stored, ok := d.Latest("BTC-USD", "X")
	if !ok || !stored.Ask.Equal(dec("100.1")) {
		t.Fatalf("stale tick must not replace stored price, got %+v", stored)
	}
	// Equal timestamp is also not newer.
	if opps := d.Ingest(tick("X", "BTC-USD", "90", "90.1", base)); len(opps) != 0 {
		t.Fatalf("equal-timestamp tick must be rejected")
	}
}

func TestIngestLatencyWindow(t *testing.T) {
	base := time.Unix(1700000000, 0)
	d := New(dec("0.5"), time.Second)

	d.now = func() time.Time { return base.Add(100 * time.Millisecond) }
	d.Ingest(tick("X", "BTC-USD", "100", "100.1", base))

	// The counterpart arrives long after X's tick left the window. The
	// numeric spread is huge but must be discarded.
	d.now = func() time.Time { return base.Add(5 * time.Second) }
	if opps := d.Ingest(tick("Y", "BTC-USD", "150", "150.2", base.Add(5*time.Second))); len(opps) != 0 {
		t.Fatalf("spread against an aged tick must not emit, got %d", len(opps))
	}
}

func TestIngestStaleNewTickSuppressed(t *testing.T) {
	base := time.Unix(1700000000, 0)
	d := New(dec("0.5"), time.Second)

	d.now = func() time.Time { return base.Add(100 * time.Millisecond) }
	d.Ingest(tick("X", "BTC-USD", "100", "100.1", base))

	// The incoming tick itself is older than the latency window even though
	// it is the newest seen for (BTC-USD, Y).
	d.now = func() time.Time { return base.Add(3 * time.Second) }
	if opps := d.Ingest(tick("Y", "BTC-USD", "101", "101.2", base.Add(time.Millisecond))); len(opps) != 0 {
		t.Fatalf("aged incoming tick must not emit, got %d", len(opps))
	}
}

func TestIngestThreeExchanges(t *testing.T) {
	base := time.Unix(1700000000, 0)
	d := newTestDetector("0.5", 2*time.Second, base.Add(100*time.Millisecond))

	d.Ingest(tick("X", "BTC-USD", "100", "100.1", base))
	d.Ingest(tick("Y", "BTC-USD", "101", "101.2", base))
	// Z's bid beats both asks; expect opportunities against X and Y.
	opps := d.Ingest(tick("Z", "BTC-USD", "102.5", "102.7", base))
	if len(opps) != 2 {
		t.Fatalf("expected two opportunities, got %d", len(opps))
	}
	for _, opp := range opps {
		if opp.SellExchange != "Z" {
			t.Fatalf("expected Z as sell leg, got %+v", opp)
		}
		if opp.BuyExchange == opp.SellExchange {
			t.Fatalf("buy and sell exchange must differ")
		}
		if !opp.SpreadPercent.IsPositive() {
			t.Fatalf("spread must be positive, got %s", opp.SpreadPercent)
		}
	}
}

func TestIngestSeparatePairsDoNotInteract(t *testing.T) {
	base := time.Unix(1700000000, 0)
	d := newTestDetector("0.5", 2*time.Second, base.Add(100*time.Millisecond))

	d.Ingest(tick("X", "BTC-USD", "100", "100.1", base))
	if opps := d.Ingest(tick("Y", "ETH-USD", "101", "101.2", base)); len(opps) != 0 {
		t.Fatalf("different pairs must not be compared, got %d", len(opps))
	}
}
