package exchange

import (
	"context"
	"strconv"
	"sync"
	"time"

	"spreadbot-go/internal/market"
)

// SimConnector emits deterministic synthetic bid/ask ticks for the
// subscribed pairs. Useful for tests and offline runs; giving two sim
// connectors different skews manufactures cross-exchange spreads.
type SimConnector struct {
	name     string
	interval time.Duration
	base     float64
	step     float64
	skewBps  float64

	mu      sync.Mutex
	pairs   []string
	updates chan market.RawTick
	events  chan market.ConnectionEvent
	cancel  context.CancelFunc
}

// SimOption configures SimConnector construction parameters.
type SimOption func(*SimConnector)

// WithSimInterval overrides the default tick cadence.
func WithSimInterval(d time.Duration) SimOption {
	return func(s *SimConnector) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSimSkewBps shifts this venue's mid price by the given basis points.
func WithSimSkewBps(bps float64) SimOption {
	return func(s *SimConnector) { s.skewBps = bps }
}

// WithSimBasePrice overrides the starting mid price.
func WithSimBasePrice(px float64) SimOption {
	return func(s *SimConnector) {
		if px > 0 {
			s.base = px
		}
	}
}

// NewSim constructs a synthetic connector under the given exchange name.
func NewSim(name string, opts ...SimOption) *SimConnector {
	s := &SimConnector{
		name:     name,
		interval: 100 * time.Millisecond,
		base:     100.0,
		step:     0.05,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SimConnector) Name() string { return s.name }

// Connect starts the synthetic tick generator with fresh sequences.
func (s *SimConnector) Connect(ctx context.Context) error {
	s.Disconnect()

	genCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.updates = make(chan market.RawTick, updateBuffer)
	s.events = make(chan market.ConnectionEvent, eventBuffer)
	s.cancel = cancel
	updates, events := s.updates, s.events
	s.mu.Unlock()

	events <- market.ConnectionEvent{
		Type:   market.EventStatusChanged,
		Status: market.ConnectionStatus{State: market.StateConnected},
		Ts:     time.Now(),
	}
	go s.generate(genCtx, updates, events)
	return nil
}

// SubscribePairs replaces the set of pairs the generator quotes.
func (s *SimConnector) SubscribePairs(_ context.Context, pairs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return &ConnectionError{Exchange: s.name, Reason: "subscribe before connect"}
	}
	s.pairs = append(s.pairs[:0:0], pairs...)
	return nil
}

// Disconnect stops the generator; the generator closes both sequences.
func (s *SimConnector) Disconnect() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *SimConnector) PriceUpdates() <-chan market.RawTick {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

func (s *SimConnector) ConnectionEvents() <-chan market.ConnectionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events
}

func (s *SimConnector) generate(ctx context.Context, updates chan market.RawTick, events chan market.ConnectionEvent) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var count int
	for {
		select {
		case <-ctx.Done():
			close(updates)
			close(events)
			return
		case ts := <-ticker.C:
			count++
			mid := (s.base + float64(count)*s.step) * (1 + s.skewBps/10000)
			bid := strconv.FormatFloat(mid*0.9998, 'f', 4, 64)
			ask := strconv.FormatFloat(mid*1.0002, 'f', 4, 64)
			s.mu.Lock()
			pairs := append([]string(nil), s.pairs...)
			s.mu.Unlock()
			for _, pair := range pairs {
				raw := market.RawTick{
					Exchange:   s.name,
					Symbol:     pair,
					Bid:        bid,
					Ask:        ask,
					ReceivedAt: ts,
				}
				select {
				case updates <- raw:
				case <-ctx.Done():
					close(updates)
					close(events)
					return
				}
			}
		}
	}
}
