// Package market standardizes payloads shared between exchange connectors,
// the normalizer, the spread detector, and the trade simulator.
package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawTick is an exchange-native quote as received off the wire. Prices stay
// textual until the normalizer parses and validates them.
type RawTick struct {
	Exchange   string
	Symbol     string // exchange-native symbol, e.g. BTCUSDT
	Bid        string
	Ask        string
	ReceivedAt time.Time
}

// Tick is a normalized bid/ask sample for one (exchange, pair) at a point
// in time. Bid <= Ask and both are strictly positive once a tick has passed
// the normalizer.
type Tick struct {
	Exchange string
	Pair     string // canonical pair, e.g. BTC-USD
	Bid      decimal.Decimal
	Ask      decimal.Decimal
	Ts       time.Time
}

// ConnectionState enumerates the lifecycle states a connector moves through.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
	StateFailed       ConnectionState = "failed"
)

// ConnectionStatus is the current state of a connector plus an optional
// failure reason. Exactly one status is current per connector at any time.
type ConnectionStatus struct {
	State  ConnectionState
	Reason string
}

// EventType enumerates the kinds of events a connector emits.
type EventType string

const (
	EventStatusChanged EventType = "status_changed"
	EventHeartbeat     EventType = "heartbeat"
	EventDisconnected  EventType = "disconnected"
)

// ConnectionEvent is a single item on a connector's event sequence,
// consumed at most once by the engine.
type ConnectionEvent struct {
	Type   EventType
	Status ConnectionStatus
	Reason string
	Ts     time.Time
}

// SpreadOpportunity is a detected, time-bounded price discrepancy: buy at
// BuyExchange's ask, sell at SellExchange's bid. SpreadPercent is
// (SellPrice-BuyPrice)/BuyPrice*100 and is positive by construction;
// BuyExchange never equals SellExchange.
type SpreadOpportunity struct {
	Pair          string
	BuyExchange   string
	SellExchange  string
	BuyPrice      decimal.Decimal
	SellPrice     decimal.Decimal
	SpreadPercent decimal.Decimal
	DetectedAt    time.Time
}
