package exchange

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"spreadbot-go/internal/market"
)

const (
	handshakeTimeout = 10 * time.Second
	readDeadline     = 30 * time.Second
	writeDeadline    = 5 * time.Second
	pingInterval     = 15 * time.Second

	updateBuffer = 1024
	eventBuffer  = 32
)

// wsConnector implements Connector over a single gorilla websocket link.
// Venue-specific behaviour (endpoint, subscribe payload, frame parsing) is
// injected by binance.go and coinbase.go.
type wsConnector struct {
	name    string
	url     string
	symbols map[string]string // canonical pair -> native symbol
	log     zerolog.Logger

	parse     func(msg []byte, receivedAt time.Time) (market.RawTick, bool)
	subscribe func(pairs []string, symbols map[string]string) (any, error)

	mu      sync.Mutex
	conn    *websocket.Conn
	updates chan market.RawTick
	events  chan market.ConnectionEvent
	closing bool
}

func (c *wsConnector) Name() string { return c.name }

// Connect dials the venue endpoint and starts the read/ping loops. Each call
// replaces any previous link and establishes fresh update/event sequences.
func (c *wsConnector) Connect(ctx context.Context) error {
	c.Disconnect()

	c.mu.Lock()
	c.closing = false
	c.updates = make(chan market.RawTick, updateBuffer)
	c.events = make(chan market.ConnectionEvent, eventBuffer)
	updates, events := c.updates, c.events
	c.mu.Unlock()

	c.emit(events, market.ConnectionEvent{
		Type:   market.EventStatusChanged,
		Status: market.ConnectionStatus{State: market.StateConnecting},
		Ts:     time.Now(),
	})

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.emit(events, market.ConnectionEvent{
			Type:   market.EventStatusChanged,
			Status: market.ConnectionStatus{State: market.StateFailed, Reason: err.Error()},
			Ts:     time.Now(),
		})
		close(updates)
		close(events)
		return &ConnectionError{Exchange: c.name, Reason: "dial failed", Err: err}
	}

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
		c.emit(events, market.ConnectionEvent{Type: market.EventHeartbeat, Ts: time.Now()})
		return nil
	})

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.emit(events, market.ConnectionEvent{
		Type:   market.EventStatusChanged,
		Status: market.ConnectionStatus{State: market.StateConnected},
		Ts:     time.Now(),
	})
	c.log.Info().Str("exchange", c.name).Msg("connected market data link")

	go c.pingLoop(conn)
	go c.readLoop(conn, updates, events)
	return nil
}

// SubscribePairs sends the venue's subscribe payload for the given canonical
// pairs over the live link.
func (c *wsConnector) SubscribePairs(ctx context.Context, pairs []string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return &ConnectionError{Exchange: c.name, Reason: "subscribe before connect"}
	}

	payload, err := c.subscribe(pairs, c.symbols)
	if err != nil {
		return &ConnectionError{Exchange: c.name, Reason: "build subscription", Err: err}
	}

	deadline := time.Now().Add(writeDeadline)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(payload); err != nil {
		return &ConnectionError{Exchange: c.name, Reason: "subscribe write failed", Err: err}
	}
	c.log.Info().Str("exchange", c.name).Strs("pairs", pairs).Msg("subscribed")
	return nil
}

// Disconnect closes the link if one is up. The read loop observes the closed
// socket and terminates both sequences without a disconnected event.
func (c *wsConnector) Disconnect() {
	c.mu.Lock()
	c.closing = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeDeadline))
		_ = conn.Close()
	}
}

func (c *wsConnector) PriceUpdates() <-chan market.RawTick {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updates
}

func (c *wsConnector) ConnectionEvents() <-chan market.ConnectionEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events
}

func (c *wsConnector) readLoop(conn *websocket.Conn, updates chan market.RawTick, events chan market.ConnectionEvent) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closing := c.closing
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()

			if !closing {
				c.log.Warn().Str("exchange", c.name).Err(err).Msg("market data link lost")
				c.emit(events, market.ConnectionEvent{
					Type:   market.EventDisconnected,
					Status: market.ConnectionStatus{State: market.StateDisconnected, Reason: err.Error()},
					Reason: err.Error(),
					Ts:     time.Now(),
				})
			}
			close(updates)
			close(events)
			return
		}

		raw, ok := c.parse(msg, time.Now())
		if !ok {
			continue
		}
		raw.Exchange = c.name
		select {
		case updates <- raw:
		default:
			// Consumer is behind or cancelled; dropping beats unbounded
			// buffering. Per-connector ordering of delivered ticks holds.
		}
	}
}

func (c *wsConnector) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for range ticker.C {
		if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
			return
		}
	}
}

// emit delivers a connection event without ever blocking the caller.
func (c *wsConnector) emit(events chan market.ConnectionEvent, ev market.ConnectionEvent) {
	select {
	case events <- ev:
	default:
	}
}
