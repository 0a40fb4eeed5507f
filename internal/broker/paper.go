package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/yanun0323/errors"

	"trader/internal/schema"
)

// ErrPaperImmediate marks operations that make no sense against instantly
// filled simulated orders.
var ErrPaperImmediate = errors.New("paper orders fill immediately")

// Paper is the simulated broker: market orders fill instantly at the current
// simulated bid/ask, fees are deducted, and the returned status is always
// closed. It never has open orders and is deterministic given its ticker.
type Paper struct {
	baseAsset  string
	quoteAsset string
	feeRate    float64

	mu      sync.Mutex
	cash    float64
	pos     float64
	tickers map[string]schema.Ticker
	orders  int
}

// NewPaper creates a paper broker with the given starting quote balance.
func NewPaper(baseAsset, quoteAsset string, initialCash, feeRate float64) *Paper {
	return &Paper{
		baseAsset:  baseAsset,
		quoteAsset: quoteAsset,
		feeRate:    feeRate,
		cash:       initialCash,
		tickers:    make(map[string]schema.Ticker),
	}
}

// Name implements Broker.
func (p *Paper) Name() string { return "paper" }

// SetTicker pins the simulated ticker for a symbol. spreadBps is the full
// bid/ask spread, split symmetrically around price.
func (p *Paper) SetTicker(symbol string, price, spreadBps float64, tsMs int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	half := price * spreadBps / 20000
	p.tickers[symbol] = schema.Ticker{
		Symbol:    symbol,
		TsMs:      tsMs,
		Last:      price,
		Bid:       price - half,
		Ask:       price + half,
		BidVolume: 1,
		AskVolume: 1,
	}
}

// FetchTicker implements Broker. An unset symbol returns an error rather
// than a fabricated price.
func (p *Paper) FetchTicker(ctx context.Context, symbol string) (schema.Ticker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tickers[symbol]
	if !ok {
		return schema.Ticker{}, errors.New("paper ticker not set for " + symbol)
	}
	return t, nil
}

// FetchBalance implements Broker.
func (p *Paper) FetchBalance(ctx context.Context) (schema.Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return schema.Balance{
		Free:  map[string]float64{p.quoteAsset: p.cash, p.baseAsset: p.pos},
		Used:  map[string]float64{p.quoteAsset: 0, p.baseAsset: 0},
		Total: map[string]float64{p.quoteAsset: p.cash, p.baseAsset: p.pos},
	}, nil
}

// CreateOrder implements Broker. Only market orders are supported; they fill
// at the simulated bid/ask with the configured fee.
func (p *Paper) CreateOrder(ctx context.Context, symbol string, typ schema.OrderType, side schema.Side, amount, price float64) (schema.Order, error) {
	if typ != schema.OrderTypeMarket {
		return schema.Order{}, errors.New("paper broker supports market orders only")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.tickers[symbol]
	if !ok {
		return schema.Order{}, errors.New("paper ticker not set for " + symbol)
	}

	var execPrice float64
	switch side {
	case schema.SideBuy:
		execPrice = t.Ask
	case schema.SideSell:
		execPrice = t.Bid
	default:
		return schema.Order{}, errors.New("invalid side " + string(side))
	}

	notional := amount * execPrice
	fee := notional * p.feeRate
	switch side {
	case schema.SideBuy:
		if p.cash < notional+fee {
			return schema.Order{}, errors.New("insufficient funds")
		}
		p.cash -= notional + fee
		p.pos += amount
	case schema.SideSell:
		if p.pos < amount {
			return schema.Order{}, errors.New("insufficient position")
		}
		p.pos -= amount
		p.cash += notional - fee
	}
	p.orders++

	return schema.Order{
		ID:          fmt.Sprintf("paper_%d", p.orders),
		TsMs:        t.TsMs,
		Symbol:      symbol,
		Type:        typ,
		Side:        side,
		Amount:      amount,
		Price:       execPrice,
		Cost:        notional,
		AvgPrice:    execPrice,
		Filled:      amount,
		Remaining:   0,
		Fee:         fee,
		FeeCurrency: p.quoteAsset,
		Status:      schema.OrderStatusClosed,
	}, nil
}

// FetchOrder implements Broker. Paper orders close at creation, so there is
// nothing to look up.
func (p *Paper) FetchOrder(ctx context.Context, id, symbol string) (schema.Order, error) {
	return schema.Order{}, ErrPaperImmediate
}

// CancelOrder implements Broker.
func (p *Paper) CancelOrder(ctx context.Context, id, symbol string) (schema.Order, error) {
	return schema.Order{}, ErrPaperImmediate
}

// FetchMyTrades implements Broker. The paper broker reports no exchange-side
// trades; the ledger is the sole record.
func (p *Paper) FetchMyTrades(ctx context.Context, symbol string, sinceMs int64, limit int) ([]schema.Trade, error) {
	return nil, nil
}

// FetchOpenOrders implements Broker. Never any: fills are instant.
func (p *Paper) FetchOpenOrders(ctx context.Context, symbol string) ([]schema.Order, error) {
	return nil, nil
}
