// Package exchange hosts connectors for centralized venues and tick sources.
package exchange

import (
	"context"
	"fmt"

	"spreadbot-go/internal/market"
)

// Connector owns one venue's network link. After Connect succeeds the
// connector maintains the link autonomously and reports transitions on its
// event sequence; the engine never polls. A new Connect establishes fresh
// PriceUpdates/ConnectionEvents sequences; both are closed when the link
// dies or Disconnect is called.
type Connector interface {
	Name() string
	Connect(ctx context.Context) error
	SubscribePairs(ctx context.Context, pairs []string) error
	// Disconnect tears the link down. Idempotent, never fails.
	Disconnect()
	PriceUpdates() <-chan market.RawTick
	ConnectionEvents() <-chan market.ConnectionEvent
}

// ConnectionError reports a failed connect or subscribe step for a named
// exchange.
type ConnectionError struct {
	Exchange string
	Reason   string
	Err      error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Exchange, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Exchange, e.Reason)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
