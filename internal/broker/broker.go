// Package broker defines the execution contract and its two variants: the
// deterministic in-memory paper broker and the retrying live exchange client.
// Callers dispatch through the interface; nothing downstream knows which
// variant it talks to.
package broker

import (
	"context"

	"trader/internal/schema"
)

// Broker is the common execution surface. All inputs and outputs are the
// typed records from internal/schema, never raw payload maps.
type Broker interface {
	Name() string

	FetchTicker(ctx context.Context, symbol string) (schema.Ticker, error)
	FetchBalance(ctx context.Context) (schema.Balance, error)
	CreateOrder(ctx context.Context, symbol string, typ schema.OrderType, side schema.Side, amount, price float64) (schema.Order, error)
	FetchOrder(ctx context.Context, id, symbol string) (schema.Order, error)
	CancelOrder(ctx context.Context, id, symbol string) (schema.Order, error)
	FetchMyTrades(ctx context.Context, symbol string, sinceMs int64, limit int) ([]schema.Trade, error)
	FetchOpenOrders(ctx context.Context, symbol string) ([]schema.Order, error)
}

// LastPrice fetches the ticker and returns its last price.
func LastPrice(ctx context.Context, b Broker, symbol string) (float64, error) {
	ticker, err := b.FetchTicker(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return ticker.Last, nil
}
