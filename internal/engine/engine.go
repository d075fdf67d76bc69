// Package engine wires connectors, normalizer, detector, and simulator into
// one supervised pipeline.
package engine

import (
	"context"
	"os"
	ossignal "os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"spreadbot-go/internal/detector"
	"spreadbot-go/internal/exchange"
	"spreadbot-go/internal/market"
	"spreadbot-go/internal/metrics"
	"spreadbot-go/internal/monitor"
	"spreadbot-go/internal/normalize"
	"spreadbot-go/internal/paper"
)

const (
	opportunityBuffer = 256
	reconnectTimeout  = 30 * time.Second
)

// Config carries the orchestrator's runtime settings.
type Config struct {
	Pairs []string
	// TestMode skips shutdown-signal registration so the engine does not
	// interfere with a test runner's own signal handling.
	TestMode bool
}

// Engine owns the exchange connections and supervises the tick pipeline:
// connector -> normalizer -> detector -> simulator, with connection events
// routed into reconnection handling.
type Engine struct {
	cfg        Config
	log        zerolog.Logger
	connectors []exchange.Connector
	normalizer *normalize.Normalizer
	detector   *detector.Detector
	simulator  *paper.Simulator
	monitor    *monitor.Monitor
	state      *State

	mu   sync.Mutex
	opps chan market.SpreadOpportunity
}

// New assembles an engine from its collaborators.
func New(cfg Config, log zerolog.Logger, connectors []exchange.Connector,
	normalizer *normalize.Normalizer, det *detector.Detector,
	sim *paper.Simulator, mon *monitor.Monitor) *Engine {
	return &Engine{
		cfg:        cfg,
		log:        log,
		connectors: connectors,
		normalizer: normalizer,
		detector:   det,
		simulator:  sim,
		monitor:    mon,
		state:      NewState(),
	}
}

// Start marks the engine running, spawns the simulator task, and starts all
// connectors concurrently. The first connector failure aborts the whole
// startup: the engine rolls back to stopped and that failure is returned.
// Calling Start on a running engine logs an invalid-state event and returns
// nil without touching anything.
func (e *Engine) Start(ctx context.Context) error {
	if !e.state.SetRunning(true) {
		e.log.Warn().Str("event", "invalid_state").Msg("start called while already running")
		return nil
	}

	corr := uuid.NewString()
	log := e.log.With().Str("corr", corr).Logger()
	log.Info().Str("event", "engine_starting").Int("connectors", len(e.connectors)).Msg("starting engine")

	if !e.cfg.TestMode {
		e.registerShutdown(log)
	}
	e.monitor.Start()

	opps := make(chan market.SpreadOpportunity, opportunityBuffer)
	e.mu.Lock()
	e.opps = opps
	e.mu.Unlock()

	simCtx, simCancel := context.WithCancel(context.Background())
	simDone := make(chan struct{})
	go func() {
		defer close(simDone)
		e.simulator.Run(simCtx, opps)
	}()
	e.state.SetSimulatorTask(Task{Name: "simulator", Cancel: simCancel, Done: simDone})

	// Fan out connector startup; the first error wins, the rest finish.
	var wg sync.WaitGroup
	var once sync.Once
	var firstErr error
	for _, conn := range e.connectors {
		wg.Add(1)
		go func(conn exchange.Connector) {
			defer wg.Done()
			if err := e.startConnector(ctx, conn, log); err != nil {
				once.Do(func() { firstErr = err })
			}
		}(conn)
	}
	wg.Wait()

	if firstErr != nil {
		log.Error().Err(firstErr).Str("event", "startup_failed").Msg("aborting start")
		e.Stop()
		return firstErr
	}

	log.Info().Str("event", "engine_started").Strs("pairs", e.cfg.Pairs).Msg("engine running")
	return nil
}

// Stop cancels all tracked tasks, disconnects every connector, stops the
// monitor, and logs final statistics. A stopped engine ignores the call.
// Stop never fails; disconnect errors cannot surface past this point.
func (e *Engine) Stop() {
	if !e.state.SetRunning(false) {
		return
	}
	e.log.Info().Str("event", "engine_stopping").Msg("stopping engine")

	for _, done := range e.state.CancelAll() {
		<-done
	}
	for _, conn := range e.connectors {
		conn.Disconnect()
	}
	e.monitor.Stop()

	stats := e.simulator.Statistics()
	e.log.Info().
		Str("event", "final_statistics").
		Int64("trades", stats.TotalTrades).
		Int64("successful", stats.SuccessfulTrades).
		Int64("skipped", stats.SkippedTrades).
		Float64("success_rate", stats.SuccessRate).
		Str("total_profit", stats.TotalProfit.String()).
		Str("balance", stats.CurrentBalance.String()).
		Int64("reconnects", e.monitor.Reconnections()).
		Msg("engine stopped")
}

func (e *Engine) startConnector(ctx context.Context, conn exchange.Connector, log zerolog.Logger) error {
	if err := conn.Connect(ctx); err != nil {
		log.Error().Str("exchange", conn.Name()).Err(err).Str("event", "connect_failed").Msg("connector startup failed")
		return err
	}
	if err := conn.SubscribePairs(ctx, e.cfg.Pairs); err != nil {
		log.Error().Str("exchange", conn.Name()).Err(err).Str("event", "subscribe_failed").Msg("connector startup failed")
		return err
	}
	e.spawnConsumers(conn, log)
	log.Info().Str("exchange", conn.Name()).Str("event", "connector_started").Msg("connector up")
	return nil
}

// spawnConsumers starts one price task and one event task against the
// connector's current sequences and registers both with the supervisor.
func (e *Engine) spawnConsumers(conn exchange.Connector, log zerolog.Logger) {
	e.mu.Lock()
	opps := e.opps
	e.mu.Unlock()

	updates := conn.PriceUpdates()
	events := conn.ConnectionEvents()

	priceCtx, priceCancel := context.WithCancel(context.Background())
	priceDone := make(chan struct{})
	go func() {
		defer close(priceDone)
		e.consumePrices(priceCtx, updates, opps)
	}()
	e.state.AddConnectorTask(Task{Name: conn.Name() + "/prices", Cancel: priceCancel, Done: priceDone})

	eventCtx, eventCancel := context.WithCancel(context.Background())
	eventDone := make(chan struct{})
	go func() {
		defer close(eventDone)
		e.consumeEvents(eventCtx, conn, events, log)
	}()
	e.state.AddConnectorTask(Task{Name: conn.Name() + "/events", Cancel: eventCancel, Done: eventDone})
}

// consumePrices forwards normalized ticks into the detector and emitted
// opportunities to the simulator stream. Per-connector ordering is
// preserved: one task, sequential calls. The loop ends when the sequence
// closes or the task is cancelled.
func (e *Engine) consumePrices(ctx context.Context, updates <-chan market.RawTick, opps chan<- market.SpreadOpportunity) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-updates:
			if !ok {
				return
			}
			tick, ok := e.normalizer.Normalize(raw)
			if !ok {
				metrics.TicksRejected.WithLabelValues(raw.Exchange).Inc()
				continue
			}
			metrics.TicksTotal.WithLabelValues(tick.Exchange, tick.Pair).Inc()
			for _, opp := range e.detector.Ingest(tick) {
				metrics.OpportunitiesTotal.WithLabelValues(opp.Pair).Inc()
				select {
				case opps <- opp:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// consumeEvents routes a connector's status events into logging and
// reconnection handling.
func (e *Engine) consumeEvents(ctx context.Context, conn exchange.Connector, events <-chan market.ConnectionEvent, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case market.EventStatusChanged:
				log.Info().
					Str("exchange", conn.Name()).
					Str("event", "connector_status").
					Str("status", string(ev.Status.State)).
					Str("reason", ev.Status.Reason).
					Msg("connector status changed")
				if ev.Status.State == market.StateReconnecting && e.state.Running() {
					go e.reconnect(conn, log)
				}
			case market.EventDisconnected:
				log.Warn().
					Str("exchange", conn.Name()).
					Str("event", "connector_disconnected").
					Str("reason", ev.Reason).
					Msg("connector lost")
				if e.state.Running() {
					go e.reconnect(conn, log)
				}
			case market.EventHeartbeat:
				log.Debug().Str("exchange", conn.Name()).Str("event", "heartbeat").Msg("connector heartbeat")
			}
		}
	}
}

// reconnect performs exactly one connect+subscribe attempt for a single
// connector. Failures are logged, never propagated; other connectors are
// untouched.
func (e *Engine) reconnect(conn exchange.Connector, log zerolog.Logger) {
	e.monitor.RecordReconnection()
	metrics.ReconnectsTotal.WithLabelValues(conn.Name()).Inc()
	log.Info().Str("exchange", conn.Name()).Str("event", "reconnect_attempt").Msg("reconnecting")

	ctx, cancel := context.WithTimeout(context.Background(), reconnectTimeout)
	defer cancel()

	if err := conn.Connect(ctx); err != nil {
		log.Error().Str("exchange", conn.Name()).Err(err).Str("event", "reconnect_failed").Msg("reconnect failed")
		return
	}
	if err := conn.SubscribePairs(ctx, e.cfg.Pairs); err != nil {
		log.Error().Str("exchange", conn.Name()).Err(err).Str("event", "reconnect_failed").Msg("resubscribe failed")
		conn.Disconnect()
		return
	}
	if !e.state.Running() {
		// Engine stopped while we were reconnecting.
		conn.Disconnect()
		return
	}
	e.spawnConsumers(conn, log)
	log.Info().Str("exchange", conn.Name()).Str("event", "reconnect_ok").Msg("reconnected")
}

// registerShutdown wires SIGINT/SIGTERM to a graceful stop followed by
// process exit.
func (e *Engine) registerShutdown(log zerolog.Logger) {
	ch := make(chan os.Signal, 1)
	ossignal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		s, ok := <-ch
		if !ok {
			return
		}
		log.Info().Str("event", "shutdown_signal").Str("signal", s.String()).Msg("shutdown signal received")
		e.Stop()
		os.Exit(0)
	}()
	e.state.SetShutdownRegistration(func() {
		ossignal.Stop(ch)
		close(ch)
	})
}
