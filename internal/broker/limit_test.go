package broker

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trader/internal/schema"
)

// scriptedBroker plays back canned order states so the reprice loop can be
// driven without timing on a real exchange.
type scriptedBroker struct {
	book schema.OrderBook

	created []schema.Order // orders returned by CreateOrder, in turn
	fetched []schema.Order // orders returned by FetchOrder; last entry repeats

	cancelErr         error
	cancelResult      schema.Order
	closedAfterCancel bool // FetchOrder reports closed once a cancel was attempted

	createCalls int
	fetchCalls  int
	cancelCalls int
}

func (s *scriptedBroker) Name() string { return "scripted" }

func (s *scriptedBroker) FetchOrderBook(ctx context.Context, symbol string, limit int) (schema.OrderBook, error) {
	return s.book, nil
}

func (s *scriptedBroker) FetchTicker(ctx context.Context, symbol string) (schema.Ticker, error) {
	return schema.Ticker{}, stderrors.New("not scripted")
}

func (s *scriptedBroker) FetchBalance(ctx context.Context) (schema.Balance, error) {
	return schema.Balance{}, stderrors.New("not scripted")
}

func (s *scriptedBroker) CreateOrder(ctx context.Context, symbol string, typ schema.OrderType, side schema.Side, amount, price float64) (schema.Order, error) {
	order := s.created[s.createCalls]
	s.createCalls++
	order.Symbol = symbol
	order.Type = typ
	order.Side = side
	order.Amount = amount
	order.Price = price
	return order, nil
}

func (s *scriptedBroker) FetchOrder(ctx context.Context, id, symbol string) (schema.Order, error) {
	if s.closedAfterCancel && s.cancelCalls > 0 {
		return schema.Order{ID: id, Status: schema.OrderStatusClosed, Filled: 2}, nil
	}
	idx := s.fetchCalls
	if idx >= len(s.fetched) {
		idx = len(s.fetched) - 1
	}
	order := s.fetched[idx]
	s.fetchCalls++
	order.ID = id
	return order, nil
}

func (s *scriptedBroker) CancelOrder(ctx context.Context, id, symbol string) (schema.Order, error) {
	s.cancelCalls++
	if s.cancelErr != nil {
		return schema.Order{}, s.cancelErr
	}
	result := s.cancelResult
	result.ID = id
	return result, nil
}

func (s *scriptedBroker) FetchMyTrades(ctx context.Context, symbol string, sinceMs int64, limit int) ([]schema.Trade, error) {
	return nil, nil
}

func (s *scriptedBroker) FetchOpenOrders(ctx context.Context, symbol string) ([]schema.Order, error) {
	return nil, nil
}

func testBook() schema.OrderBook {
	return schema.OrderBook{
		Symbol: "BTC/USDT",
		Bids:   []schema.BookLevel{{Price: 99.9, Qty: 5}},
		Asks:   []schema.BookLevel{{Price: 100.1, Qty: 5}},
	}
}

func fastOpts() LimitSafeOpts {
	return LimitSafeOpts{
		SlipBps:      10,
		MaxWait:      30 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
		MaxRetries:   1,
	}
}

func TestPlaceLimitSafeBuyPricesAboveAsk(t *testing.T) {
	sb := &scriptedBroker{
		book:    testBook(),
		created: []schema.Order{{ID: "o1", Status: schema.OrderStatusClosed, Filled: 2}},
	}
	order, err := PlaceLimitSafe(context.Background(), sb, sb, "BTC/USDT", schema.SideBuy, 2, fastOpts())
	require.NoError(t, err)
	assert.Equal(t, "o1", order.ID)
	assert.InDelta(t, 100.1*(1+0.001), order.Price, 1e-9)
	assert.Equal(t, schema.OrderTypeLimit, order.Type)
}

func TestPlaceLimitSafeSellPricesBelowBid(t *testing.T) {
	sb := &scriptedBroker{
		book:    testBook(),
		created: []schema.Order{{ID: "o1", Status: schema.OrderStatusClosed, Filled: 2}},
	}
	order, err := PlaceLimitSafe(context.Background(), sb, sb, "BTC/USDT", schema.SideSell, 2, fastOpts())
	require.NoError(t, err)
	assert.InDelta(t, 99.9*(1-0.001), order.Price, 1e-9)
}

func TestPlaceLimitSafeFillsAfterPolling(t *testing.T) {
	sb := &scriptedBroker{
		book:    testBook(),
		created: []schema.Order{{ID: "o1", Status: schema.OrderStatusOpen}},
		fetched: []schema.Order{
			{Status: schema.OrderStatusOpen},
			{Status: schema.OrderStatusClosed, Filled: 2},
		},
	}
	order, err := PlaceLimitSafe(context.Background(), sb, sb, "BTC/USDT", schema.SideBuy, 2, fastOpts())
	require.NoError(t, err)
	assert.Equal(t, schema.OrderStatusClosed, order.Status)
	assert.Equal(t, 2, sb.fetchCalls)
	assert.Zero(t, sb.cancelCalls)
}

func TestPlaceLimitSafeRepricesAfterTimeout(t *testing.T) {
	opts := fastOpts()
	opts.MaxWait = 12 * time.Millisecond
	// Every poll of o1 reports it still open, forcing the cancel.
	sb := &scriptedBroker{
		book: testBook(),
		created: []schema.Order{
			{ID: "o1", Status: schema.OrderStatusOpen},
			{ID: "o2", Status: schema.OrderStatusClosed, Filled: 2},
		},
		fetched:      []schema.Order{{Status: schema.OrderStatusOpen}},
		cancelResult: schema.Order{Status: schema.OrderStatusCancelled},
	}
	order, err := PlaceLimitSafe(context.Background(), sb, sb, "BTC/USDT", schema.SideBuy, 2, opts)
	require.NoError(t, err)
	assert.Equal(t, "o2", order.ID)
	assert.Equal(t, 2, sb.createCalls)
	assert.Equal(t, 1, sb.cancelCalls)
}

func TestPlaceLimitSafeReturnsPartialFillOnCancel(t *testing.T) {
	opts := fastOpts()
	opts.MaxWait = 12 * time.Millisecond
	sb := &scriptedBroker{
		book:         testBook(),
		created:      []schema.Order{{ID: "o1", Status: schema.OrderStatusOpen}},
		fetched:      []schema.Order{{Status: schema.OrderStatusOpen}},
		cancelResult: schema.Order{Status: schema.OrderStatusCancelled, Filled: 0.7, Remaining: 1.3},
	}
	order, err := PlaceLimitSafe(context.Background(), sb, sb, "BTC/USDT", schema.SideBuy, 2, opts)
	require.NoError(t, err)
	assert.Equal(t, schema.OrderStatusCancelled, order.Status)
	assert.InDelta(t, 0.7, order.Filled, 1e-9)
	assert.Equal(t, 1, sb.createCalls)
}

func TestPlaceLimitSafeCancelRacesFill(t *testing.T) {
	opts := fastOpts()
	opts.MaxWait = 12 * time.Millisecond
	// The cancel fails because the order just filled; the re-fetch after
	// the failed cancel finds the fill.
	sb := &scriptedBroker{
		book:              testBook(),
		created:           []schema.Order{{ID: "o1", Status: schema.OrderStatusOpen}},
		fetched:           []schema.Order{{Status: schema.OrderStatusOpen}},
		cancelErr:         stderrors.New("order does not exist"),
		closedAfterCancel: true,
	}
	order, err := PlaceLimitSafe(context.Background(), sb, sb, "BTC/USDT", schema.SideBuy, 2, opts)
	require.NoError(t, err)
	assert.Equal(t, schema.OrderStatusClosed, order.Status)
}

func TestPlaceLimitSafeExhaustsRetries(t *testing.T) {
	opts := fastOpts()
	opts.MaxWait = 12 * time.Millisecond
	opts.MaxRetries = 1
	sb := &scriptedBroker{
		book: testBook(),
		created: []schema.Order{
			{ID: "o1", Status: schema.OrderStatusOpen},
			{ID: "o2", Status: schema.OrderStatusOpen},
		},
		fetched:      []schema.Order{{Status: schema.OrderStatusOpen}},
		cancelResult: schema.Order{Status: schema.OrderStatusCancelled},
	}
	_, err := PlaceLimitSafe(context.Background(), sb, sb, "BTC/USDT", schema.SideBuy, 2, opts)
	require.Error(t, err)
	assert.Equal(t, KindUnknown, Classify(err))
	assert.Equal(t, 2, sb.createCalls)
	assert.Equal(t, 2, sb.cancelCalls)
}

func TestPlaceLimitSafeEmptyBookErrors(t *testing.T) {
	sb := &scriptedBroker{book: schema.OrderBook{Symbol: "BTC/USDT"}}
	_, err := PlaceLimitSafe(context.Background(), sb, sb, "BTC/USDT", schema.SideBuy, 1, fastOpts())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty ask side")
}
