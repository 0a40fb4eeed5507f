package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/yanun0323/logs"

	"trader/internal/schema"
)

// BookFetcher is implemented by brokers that expose order book depth.
type BookFetcher interface {
	FetchOrderBook(ctx context.Context, symbol string, limit int) (schema.OrderBook, error)
}

// LimitSafeOpts tunes the reprice loop of PlaceLimitSafe.
type LimitSafeOpts struct {
	SlipBps      float64       // offset from the touch, crossing the spread slightly
	MaxWait      time.Duration // how long to wait for a fill per attempt
	PollInterval time.Duration
	MaxRetries   int // reprice attempts after the first
}

// DefaultLimitSafeOpts mirrors the conservative live defaults: a small
// crossing offset, short fill windows, two reprices.
func DefaultLimitSafeOpts() LimitSafeOpts {
	return LimitSafeOpts{
		SlipBps:      5,
		MaxWait:      10 * time.Second,
		PollInterval: time.Second,
		MaxRetries:   2,
	}
}

// PlaceLimitSafe places a marketable limit order near the touch and polls it
// until filled. If the fill window elapses the order is cancelled and
// repriced from a fresh book, up to MaxRetries extra attempts. Buys price at
// ask*(1+slip), sells at bid*(1-slip), so the order crosses immediately when
// the book holds still yet never pays more than the configured slip.
func PlaceLimitSafe(ctx context.Context, b Broker, bf BookFetcher, symbol string, side schema.Side, amount float64, opts LimitSafeOpts) (schema.Order, error) {
	if opts.MaxWait <= 0 {
		opts.MaxWait = DefaultLimitSafeOpts().MaxWait
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultLimitSafeOpts().PollInterval
	}

	var lastOrder schema.Order
	attempts := opts.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		book, err := bf.FetchOrderBook(ctx, symbol, 5)
		if err != nil {
			return schema.Order{}, err
		}
		price, err := limitPrice(book, side, opts.SlipBps)
		if err != nil {
			return schema.Order{}, err
		}

		order, err := b.CreateOrder(ctx, symbol, schema.OrderTypeLimit, side, amount, price)
		if err != nil {
			return schema.Order{}, err
		}
		lastOrder = order
		if order.Status.Terminal() {
			return order, nil
		}

		deadline := time.Now().Add(opts.MaxWait)
		for time.Now().Before(deadline) {
			select {
			case <-ctx.Done():
				return lastOrder, ctx.Err()
			case <-time.After(opts.PollInterval):
			}
			order, err = b.FetchOrder(ctx, order.ID, symbol)
			if err != nil {
				return lastOrder, err
			}
			lastOrder = order
			if order.Status.Terminal() {
				return order, nil
			}
		}

		cancelled, err := b.CancelOrder(ctx, order.ID, symbol)
		if err != nil {
			// The cancel may have raced a fill. Re-fetch to find out.
			refreshed, ferr := b.FetchOrder(ctx, order.ID, symbol)
			if ferr == nil && refreshed.Status == schema.OrderStatusClosed {
				return refreshed, nil
			}
			return lastOrder, err
		}
		lastOrder = cancelled
		if cancelled.Filled > 0 {
			// Partial fill before the cancel; surface it rather than
			// stacking another order on top.
			return cancelled, nil
		}
		logs.Warnf("limit order %s unfilled after %s, repricing (attempt %d/%d)",
			cancelled.ID, opts.MaxWait, attempt+1, attempts)
	}
	return lastOrder, newError(KindUnknown, "place limit safe",
		fmt.Errorf("order unfilled after %d attempts", attempts))
}

func limitPrice(book schema.OrderBook, side schema.Side, slipBps float64) (float64, error) {
	slip := slipBps / 10000.0
	switch side {
	case schema.SideBuy:
		ask := book.BestAsk()
		if ask <= 0 {
			return 0, newError(KindUnknown, "limit price", fmt.Errorf("empty ask side for %s", book.Symbol))
		}
		return ask * (1 + slip), nil
	default:
		bid := book.BestBid()
		if bid <= 0 {
			return 0, newError(KindUnknown, "limit price", fmt.Errorf("empty bid side for %s", book.Symbol))
		}
		return bid * (1 - slip), nil
	}
}
