package broker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trader/internal/schema"
)

func newTestPaper() *Paper {
	p := NewPaper("BTC", "USDT", 10_000, 0.001)
	p.SetTicker("BTC/USDT", 100, 10, 1_700_000_000_000)
	return p
}

func TestPaperMarketBuyFillsAtAsk(t *testing.T) {
	p := newTestPaper()
	ctx := context.Background()

	order, err := p.CreateOrder(ctx, "BTC/USDT", schema.OrderTypeMarket, schema.SideBuy, 10, 0)
	require.NoError(t, err)

	// 10 bps spread around 100: ask 100.05, bid 99.95.
	assert.Equal(t, "paper_1", order.ID)
	assert.Equal(t, schema.OrderStatusClosed, order.Status)
	assert.InDelta(t, 100.05, order.Price, 1e-9)
	assert.InDelta(t, 1000.5, order.Cost, 1e-9)
	assert.InDelta(t, 1.0005, order.Fee, 1e-9)
	assert.Equal(t, "USDT", order.FeeCurrency)
	assert.InDelta(t, 10, order.Filled, 1e-9)
	assert.Zero(t, order.Remaining)

	bal, err := p.FetchBalance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10_000-1000.5-1.0005, bal.FreeOf("USDT"), 1e-9)
	assert.InDelta(t, 10, bal.FreeOf("BTC"), 1e-9)
}

func TestPaperMarketSellFillsAtBid(t *testing.T) {
	p := newTestPaper()
	ctx := context.Background()

	_, err := p.CreateOrder(ctx, "BTC/USDT", schema.OrderTypeMarket, schema.SideBuy, 10, 0)
	require.NoError(t, err)

	order, err := p.CreateOrder(ctx, "BTC/USDT", schema.OrderTypeMarket, schema.SideSell, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, "paper_2", order.ID)
	assert.InDelta(t, 99.95, order.Price, 1e-9)

	bal, err := p.FetchBalance(ctx)
	require.NoError(t, err)
	assert.Zero(t, bal.FreeOf("BTC"))
	// Round trip loses the spread plus fees on both legs.
	assert.Less(t, bal.FreeOf("USDT"), 10_000.0)
}

func TestPaperRejectsInsufficientFunds(t *testing.T) {
	p := newTestPaper()
	_, err := p.CreateOrder(context.Background(), "BTC/USDT", schema.OrderTypeMarket, schema.SideBuy, 1_000, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient funds")
}

func TestPaperRejectsInsufficientPosition(t *testing.T) {
	p := newTestPaper()
	_, err := p.CreateOrder(context.Background(), "BTC/USDT", schema.OrderTypeMarket, schema.SideSell, 1, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient position")
}

func TestPaperRejectsLimitOrders(t *testing.T) {
	p := newTestPaper()
	_, err := p.CreateOrder(context.Background(), "BTC/USDT", schema.OrderTypeLimit, schema.SideBuy, 1, 99)
	require.Error(t, err)
}

func TestPaperUnsetTickerErrors(t *testing.T) {
	p := newTestPaper()
	_, err := p.FetchTicker(context.Background(), "ETH/USDT")
	require.Error(t, err)
	_, err = p.CreateOrder(context.Background(), "ETH/USDT", schema.OrderTypeMarket, schema.SideBuy, 1, 0)
	require.Error(t, err)
}

func TestPaperImmediateFillSemantics(t *testing.T) {
	p := newTestPaper()
	ctx := context.Background()

	_, err := p.FetchOrder(ctx, "paper_1", "BTC/USDT")
	assert.ErrorIs(t, err, ErrPaperImmediate)
	_, err = p.CancelOrder(ctx, "paper_1", "BTC/USDT")
	assert.ErrorIs(t, err, ErrPaperImmediate)

	open, err := p.FetchOpenOrders(ctx, "BTC/USDT")
	require.NoError(t, err)
	assert.Empty(t, open)

	trades, err := p.FetchMyTrades(ctx, "BTC/USDT", 0, 100)
	require.NoError(t, err)
	assert.Empty(t, trades)
}
