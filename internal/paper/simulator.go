// Package paper simulates spread trades against a virtual portfolio.
package paper

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"spreadbot-go/internal/market"
	"spreadbot-go/internal/metrics"
)

// TradeRecorder captures executed paper trades for later inspection.
type TradeRecorder interface {
	Record(TradeRecord)
}

// Config sizes and prices simulated trades. FixedNotional overrides
// PositionPct when positive; FeePct is charged per leg.
type Config struct {
	StartingCash  decimal.Decimal
	PositionPct   decimal.Decimal
	FixedNotional decimal.Decimal
	FeePct        decimal.Decimal
	AllowNegative bool
}

// TradeRecord describes one simulated two-legged spread trade.
type TradeRecord struct {
	Pair          string          `json:"pair"`
	BuyExchange   string          `json:"buy_exchange"`
	SellExchange  string          `json:"sell_exchange"`
	BuyPrice      decimal.Decimal `json:"buy_price"`
	SellPrice     decimal.Decimal `json:"sell_price"`
	Qty           decimal.Decimal `json:"qty"`
	Notional      decimal.Decimal `json:"notional"`
	Fees          decimal.Decimal `json:"fees"`
	Profit        decimal.Decimal `json:"profit"`
	SpreadPercent decimal.Decimal `json:"spread_percent"`
	ExecutedAt    time.Time       `json:"executed_at"`
}

// Statistics is a consistent snapshot of the simulator's accounting.
type Statistics struct {
	TotalTrades      int64
	SuccessfulTrades int64
	SkippedTrades    int64
	TotalProfit      decimal.Decimal
	CurrentBalance   decimal.Decimal
	SuccessRate      float64
}

// Simulator consumes the detector's opportunity stream and applies
// virtual-balance accounting. The engine wires exactly one simulator to the
// stream; all mutation happens under one mutex so Statistics never observes
// a partial update.
type Simulator struct {
	cfg      Config
	log      zerolog.Logger
	recorder TradeRecorder

	mu          sync.Mutex
	balance     decimal.Decimal
	totalProfit decimal.Decimal
	trades      int64
	successful  int64
	skipped     int64
}

// NewSimulator constructs a simulator funded with cfg.StartingCash.
// recorder may be nil.
func NewSimulator(cfg Config, log zerolog.Logger, recorder TradeRecorder) *Simulator {
	return &Simulator{
		cfg:      cfg,
		log:      log,
		recorder: recorder,
		balance:  cfg.StartingCash,
	}
}

// Run consumes opportunities until the context is cancelled or the stream
// closes.
func (s *Simulator) Run(ctx context.Context, opps <-chan market.SpreadOpportunity) {
	for {
		select {
		case <-ctx.Done():
			return
		case opp, ok := <-opps:
			if !ok {
				return
			}
			s.Execute(opp)
		}
	}
}

// Execute applies one opportunity to the virtual portfolio. It returns the
// resulting trade record and false when the trade was skipped because the
// balance could not fund the position (and negative balances are not
// allowed). Skipped trades never touch TotalTrades.
func (s *Simulator) Execute(opp market.SpreadOpportunity) (TradeRecord, bool) {
	s.mu.Lock()

	notional := s.cfg.FixedNotional
	if !notional.IsPositive() {
		notional = s.balance.Mul(s.cfg.PositionPct).Div(hundred)
	}
	if !notional.IsPositive() || (!s.cfg.AllowNegative && notional.GreaterThan(s.balance)) {
		s.skipped++
		s.mu.Unlock()
		metrics.TradesTotal.WithLabelValues(opp.Pair, "skipped").Inc()
		s.log.Debug().Str("pair", opp.Pair).Str("spread_pct", opp.SpreadPercent.String()).Msg("trade skipped, insufficient balance")
		return TradeRecord{}, false
	}

	qty := notional.Div(opp.BuyPrice)
	proceeds := qty.Mul(opp.SellPrice)
	fees := notional.Add(proceeds).Mul(s.cfg.FeePct).Div(hundred)
	profit := proceeds.Sub(notional).Sub(fees)

	s.balance = s.balance.Add(profit)
	s.totalProfit = s.totalProfit.Add(profit)
	s.trades++
	outcome := "loss"
	if profit.IsPositive() {
		s.successful++
		outcome = "success"
	}

	record := TradeRecord{
		Pair:          opp.Pair,
		BuyExchange:   opp.BuyExchange,
		SellExchange:  opp.SellExchange,
		BuyPrice:      opp.BuyPrice,
		SellPrice:     opp.SellPrice,
		Qty:           qty,
		Notional:      notional,
		Fees:          fees,
		Profit:        profit,
		SpreadPercent: opp.SpreadPercent,
		ExecutedAt:    opp.DetectedAt,
	}
	balance := s.balance
	s.mu.Unlock()

	metrics.TradesTotal.WithLabelValues(opp.Pair, outcome).Inc()
	if s.recorder != nil {
		s.recorder.Record(record)
	}
	s.log.Info().
		Str("pair", record.Pair).
		Str("buy", record.BuyExchange).
		Str("sell", record.SellExchange).
		Str("profit", record.Profit.String()).
		Str("balance", balance.String()).
		Msg("simulated trade")
	return record, true
}

// Statistics returns a consistent snapshot of the accounting state.
func (s *Simulator) Statistics() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := Statistics{
		TotalTrades:      s.trades,
		SuccessfulTrades: s.successful,
		SkippedTrades:    s.skipped,
		TotalProfit:      s.totalProfit,
		CurrentBalance:   s.balance,
	}
	if s.trades > 0 {
		stats.SuccessRate = float64(s.successful) / float64(s.trades)
	}
	return stats
}

// CurrentBalance returns the virtual balance.
func (s *Simulator) CurrentBalance() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance
}

var hundred = decimal.NewFromInt(100)
