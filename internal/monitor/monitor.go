// Package monitor emits periodic performance summaries for the engine.
package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"spreadbot-go/internal/paper"
)

// Monitor counts reconnections and logs a periodic summary of uptime,
// reconnect count, and trading statistics. Recording is fire-and-forget and
// never blocks the caller.
type Monitor struct {
	log      zerolog.Logger
	interval time.Duration
	stats    func() paper.Statistics

	reconnects atomic.Int64

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time
}

// New constructs a monitor; stats supplies the trade statistics snapshot
// included in each summary and may be nil.
func New(log zerolog.Logger, interval time.Duration, stats func() paper.Statistics) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{log: log, interval: interval, stats: stats}
}

// Start begins periodic reporting. Calling Start on a running monitor is a
// no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.started = time.Now()
	go m.loop(ctx, m.done)
}

// Stop halts periodic reporting and waits for the reporting loop to exit.
// Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// RecordReconnection increments the reconnect counter.
func (m *Monitor) RecordReconnection() {
	m.reconnects.Add(1)
}

// Reconnections returns the reconnect attempts observed so far.
func (m *Monitor) Reconnections() int64 {
	return m.reconnects.Load()
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.report()
		}
	}
}

func (m *Monitor) report() {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()

	ev := m.log.Info().
		Str("event", "performance_summary").
		Dur("uptime", time.Since(started).Round(time.Second)).
		Int64("reconnects", m.reconnects.Load())
	if m.stats != nil {
		stats := m.stats()
		ev = ev.
			Int64("trades", stats.TotalTrades).
			Int64("successful", stats.SuccessfulTrades).
			Int64("skipped", stats.SkippedTrades).
			Float64("success_rate", stats.SuccessRate).
			Str("total_profit", stats.TotalProfit.String()).
			Str("balance", stats.CurrentBalance.String())
	}
	ev.Msg("periodic report")
}
