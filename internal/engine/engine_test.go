package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"spreadbot-go/internal/detector"
	"spreadbot-go/internal/exchange"
	"spreadbot-go/internal/market"
	"spreadbot-go/internal/monitor"
	"spreadbot-go/internal/normalize"
	"spreadbot-go/internal/paper"
)

// fakeConnector is an in-memory Connector with scriptable connect failures.
// Each successful Connect opens fresh sequences, mirroring the websocket
// connector's behavior.
type fakeConnector struct {
	name string

	mu          sync.Mutex
	updates     chan market.RawTick
	events      chan market.ConnectionEvent
	connectErrs []error
	connects    int
	subscribed  [][]string
	connected   bool
}

func newFakeConnector(name string, connectErrs ...error) *fakeConnector {
	return &fakeConnector{name: name, connectErrs: connectErrs}
}

func (f *fakeConnector) Name() string { return f.name }

func (f *fakeConnector) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if len(f.connectErrs) > 0 {
		err := f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
		if err != nil {
			return err
		}
	}
	f.updates = make(chan market.RawTick, 64)
	f.events = make(chan market.ConnectionEvent, 8)
	f.connected = true
	return nil
}

func (f *fakeConnector) SubscribePairs(ctx context.Context, pairs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return errors.New("not connected")
	}
	f.subscribed = append(f.subscribed, pairs)
	return nil
}

func (f *fakeConnector) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return
	}
	f.connected = false
	close(f.updates)
	close(f.events)
}

func (f *fakeConnector) PriceUpdates() <-chan market.RawTick {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates
}

func (f *fakeConnector) ConnectionEvents() <-chan market.ConnectionEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events
}

func (f *fakeConnector) pushTick(bid, ask string) {
	f.mu.Lock()
	ch := f.updates
	f.mu.Unlock()
	ch <- market.RawTick{
		Exchange:   f.name,
		Symbol:     "BTCUSD",
		Bid:        bid,
		Ask:        ask,
		ReceivedAt: time.Now(),
	}
}

// dropLink simulates the remote end killing the connection: a disconnected
// event followed by closed sequences.
func (f *fakeConnector) dropLink() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return
	}
	f.connected = false
	f.events <- market.ConnectionEvent{Type: market.EventDisconnected, Reason: "link lost", Ts: time.Now()}
	close(f.updates)
	close(f.events)
}

func (f *fakeConnector) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func (f *fakeConnector) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribed)
}

func (f *fakeConnector) isConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

type testHarness struct {
	engine    *Engine
	simulator *paper.Simulator
	monitor   *monitor.Monitor
	ledger    *paper.Ledger
}

func newTestEngine(t *testing.T, connectors ...*fakeConnector) *testHarness {
	t.Helper()

	table := make(map[string]map[string]string)
	for _, c := range connectors {
		table[c.name] = map[string]string{"BTCUSD": "BTC-USD"}
	}

	ledger := paper.NewLedger(16)
	sim := paper.NewSimulator(paper.Config{
		StartingCash:  decimal.NewFromInt(1000),
		FixedNotional: decimal.NewFromInt(100),
	}, zerolog.Nop(), ledger)
	mon := monitor.New(zerolog.Nop(), time.Minute, sim.Statistics)

	eng := New(
		Config{Pairs: []string{"BTC-USD"}, TestMode: true},
		zerolog.Nop(),
		asConnectors(connectors),
		normalize.New(table),
		detector.New(decimal.NewFromFloat(0.5), time.Second),
		sim,
		mon,
	)
	t.Cleanup(eng.Stop)
	return &testHarness{engine: eng, simulator: sim, monitor: mon, ledger: ledger}
}

func asConnectors(fakes []*fakeConnector) []exchange.Connector {
	out := make([]exchange.Connector, len(fakes))
	for i, f := range fakes {
		out[i] = f
	}
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStartConnectsAndSubscribesAll(t *testing.T) {
	alpha := newFakeConnector("alpha")
	beta := newFakeConnector("beta")
	h := newTestEngine(t, alpha, beta)

	if err := h.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	for _, c := range []*fakeConnector{alpha, beta} {
		if c.connectCount() != 1 {
			t.Fatalf("%s: expected 1 connect, got %d", c.name, c.connectCount())
		}
		if c.subscribeCount() != 1 {
			t.Fatalf("%s: expected 1 subscription, got %d", c.name, c.subscribeCount())
		}
	}
	h.engine.Stop()
}

func TestStartFirstErrorAbortsStartup(t *testing.T) {
	alpha := newFakeConnector("alpha")
	beta := newFakeConnector("beta", errors.New("handshake refused"))
	h := newTestEngine(t, alpha, beta)

	err := h.engine.Start(context.Background())
	if err == nil {
		t.Fatalf("expected startup failure")
	}
	if !strings.Contains(err.Error(), "handshake refused") {
		t.Fatalf("caller must receive the failing connector's error, got %v", err)
	}
	if h.engine.state.Running() {
		t.Fatalf("engine must roll back to stopped after a failed start")
	}
	if alpha.isConnected() {
		t.Fatalf("the connector that succeeded must be disconnected on abort")
	}
}

func TestStartWhileRunningIsNoOp(t *testing.T) {
	alpha := newFakeConnector("alpha")
	beta := newFakeConnector("beta")
	h := newTestEngine(t, alpha, beta)

	if err := h.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if err := h.engine.Start(context.Background()); err != nil {
		t.Fatalf("second Start must return nil, got %v", err)
	}
	if alpha.connectCount() != 1 {
		t.Fatalf("second Start must not reconnect, got %d connects", alpha.connectCount())
	}
	h.engine.Stop()
}

func TestTickToTradeFlow(t *testing.T) {
	alpha := newFakeConnector("alpha")
	beta := newFakeConnector("beta")
	h := newTestEngine(t, alpha, beta)

	if err := h.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	alpha.pushTick("100", "100.1")
	beta.pushTick("101", "101.2")

	waitFor(t, 2*time.Second, func() bool {
		return h.simulator.Statistics().TotalTrades >= 1
	}, "a simulated trade")

	trades := h.ledger.Snapshot()
	if len(trades) == 0 {
		t.Fatalf("ledger recorded no trades")
	}
	trade := trades[0]
	if trade.BuyExchange != "alpha" || trade.SellExchange != "beta" {
		t.Fatalf("unexpected trade direction: buy %s sell %s", trade.BuyExchange, trade.SellExchange)
	}
	if !trade.Profit.IsPositive() {
		t.Fatalf("expected a profitable trade, got profit %s", trade.Profit)
	}
	h.engine.Stop()
}

func TestMalformedTicksAreDropped(t *testing.T) {
	alpha := newFakeConnector("alpha")
	beta := newFakeConnector("beta")
	h := newTestEngine(t, alpha, beta)

	if err := h.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	alpha.pushTick("not-a-number", "100.1")
	alpha.pushTick("100.5", "100.1") // bid above ask
	beta.pushTick("101", "101.2")

	time.Sleep(50 * time.Millisecond)
	if got := h.simulator.Statistics().TotalTrades; got != 0 {
		t.Fatalf("malformed ticks must not produce trades, got %d", got)
	}
	h.engine.Stop()
}

func TestReconnectAfterLinkLoss(t *testing.T) {
	alpha := newFakeConnector("alpha")
	beta := newFakeConnector("beta")
	h := newTestEngine(t, alpha, beta)

	if err := h.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	alpha.dropLink()
	waitFor(t, 2*time.Second, func() bool {
		return alpha.connectCount() == 2 && alpha.subscribeCount() == 2
	}, "reconnect and resubscribe")
	if got := h.monitor.Reconnections(); got != 1 {
		t.Fatalf("expected 1 recorded reconnection, got %d", got)
	}

	// The respawned consumer must pick up the fresh sequences.
	alpha.pushTick("100", "100.1")
	beta.pushTick("101", "101.2")
	waitFor(t, 2*time.Second, func() bool {
		return h.simulator.Statistics().TotalTrades >= 1
	}, "a trade after reconnect")
	h.engine.Stop()
}

func TestReconnectMakesSingleAttempt(t *testing.T) {
	alpha := newFakeConnector("alpha", nil, errors.New("still down"))
	beta := newFakeConnector("beta")
	h := newTestEngine(t, alpha, beta)

	if err := h.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	alpha.dropLink()
	waitFor(t, 2*time.Second, func() bool {
		return alpha.connectCount() == 2
	}, "the reconnect attempt")

	time.Sleep(100 * time.Millisecond)
	if got := alpha.connectCount(); got != 2 {
		t.Fatalf("reconnect must try exactly once per disconnect, got %d connects", got)
	}
	if got := h.monitor.Reconnections(); got != 1 {
		t.Fatalf("expected 1 recorded reconnection, got %d", got)
	}
	h.engine.Stop()
}

func TestStopIsIdempotent(t *testing.T) {
	alpha := newFakeConnector("alpha")
	beta := newFakeConnector("beta")
	h := newTestEngine(t, alpha, beta)

	if err := h.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	h.engine.Stop()
	h.engine.Stop() // second Stop must be a no-op
	if h.engine.state.Running() {
		t.Fatalf("engine still running after Stop")
	}
}

func TestStopDuringReconnectDiscardsConnection(t *testing.T) {
	alpha := newFakeConnector("alpha")
	beta := newFakeConnector("beta")
	h := newTestEngine(t, alpha, beta)

	if err := h.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	alpha.dropLink()
	h.engine.Stop()

	// Whatever the reconnect goroutine managed to do, the engine must end
	// stopped and further ticks must not trade.
	time.Sleep(50 * time.Millisecond)
	if h.engine.state.Running() {
		t.Fatalf("engine running after Stop")
	}
	if got := h.simulator.Statistics().TotalTrades; got != 0 {
		t.Fatalf("no trades expected, got %d", got)
	}
}
