// Package risk gates every proposed order through an ordered set of checks.
// The first failing check wins and its reason string is recorded verbatim on
// the blocked order, so reasons are stable, greppable sentences.
package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"trader/internal/ledger"
	"trader/internal/schema"
)

// Limits holds the hard limits a proposed order is checked against.
// MaxDailyLoss and MaxPositionGuard are denominated in the guard currency;
// MaxPositionQuote in the quote currency. A MaxPositionGuard of zero
// disables the guard-currency position check.
type Limits struct {
	MaxDailyLoss         float64 `json:"max_daily_loss"`
	MaxPositionQuote     float64 `json:"max_position_quote"`
	MaxPositionGuard     float64 `json:"max_position_guard"`
	MaxSpreadBps         float64 `json:"max_spread_bps"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	LossLookback         time.Duration
}

// DefaultLimits returns the conservative defaults used when a limit is left
// unset.
func DefaultLimits() Limits {
	return Limits{
		MaxDailyLoss:         10000,
		MaxPositionQuote:     1000,
		MaxSpreadBps:         30,
		MaxConsecutiveLosses: 3,
		LossLookback:         24 * time.Hour,
	}
}

// Proposal describes an order before it is sent anywhere.
// CurrentNotionalQuote is the quote value of the position already held in
// the symbol's base asset, so the position check sees the projected
// position, not just the new order.
type Proposal struct {
	Symbol               string
	Side                 schema.Side
	NotionalQuote        float64
	CurrentNotionalQuote float64
	Ticker               schema.Ticker
}

// Decision is the outcome of a guard check. Reason is empty when Allowed.
type Decision struct {
	Allowed bool
	Reason  string
}

// Guard evaluates proposals against the limits using the ledger's view of
// realized performance. QuoteToGuard converts quote-currency amounts into the
// guard currency; it is 1 when both currencies match.
type Guard struct {
	limits       Limits
	guardCcy     string
	quoteCcy     string
	quoteToGuard decimal.Decimal
	store        ledger.Store
}

// NewGuard builds a guard. quoteToGuard is the conversion rate from the
// quote currency into the guard currency; pass 1 when they are the same.
func NewGuard(limits Limits, store ledger.Store, quoteCcy, guardCcy string, quoteToGuard float64) *Guard {
	if limits.MaxConsecutiveLosses <= 0 {
		limits.MaxConsecutiveLosses = DefaultLimits().MaxConsecutiveLosses
	}
	if limits.LossLookback <= 0 {
		limits.LossLookback = DefaultLimits().LossLookback
	}
	if quoteToGuard <= 0 {
		quoteToGuard = 1
	}
	return &Guard{
		limits:       limits,
		guardCcy:     guardCcy,
		quoteCcy:     quoteCcy,
		quoteToGuard: decimal.NewFromFloat(quoteToGuard),
		store:        store,
	}
}

// Check runs the guard checks in a fixed order: daily loss, position size,
// spread, consecutive losses. The first violated limit produces the
// decision; later checks are not evaluated.
func (g *Guard) Check(ctx context.Context, p Proposal) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	if d, err := g.checkDailyLoss(); err != nil || !d.Allowed {
		return d, err
	}
	if d := g.checkPositionSize(p); !d.Allowed {
		return d, nil
	}
	if d := g.checkSpread(p); !d.Allowed {
		return d, nil
	}
	if d, err := g.checkConsecutiveLosses(p); err != nil || !d.Allowed {
		return d, err
	}
	return Decision{Allowed: true}, nil
}

func (g *Guard) checkDailyLoss() (Decision, error) {
	pnl, err := g.store.DailyPnL(g.guardCcy)
	if err != nil {
		return Decision{}, err
	}
	limit := decimal.NewFromFloat(g.limits.MaxDailyLoss)
	if pnl.LessThan(limit.Neg()) {
		return Decision{Reason: fmt.Sprintf(
			"Daily loss limit exceeded: %s < -%s %s",
			pnl.StringFixed(2), limit.StringFixed(2), g.guardCcy)}, nil
	}
	return Decision{Allowed: true}, nil
}

// checkPositionSize caps the position a buy would grow into. Sells only
// shrink the position, so they always pass. The quote and guard currency
// limits are independent; whichever trips first produces the reason.
func (g *Guard) checkPositionSize(p Proposal) Decision {
	if p.Side != schema.SideBuy {
		return Decision{Allowed: true}
	}
	projected := decimal.NewFromFloat(p.CurrentNotionalQuote).Add(decimal.NewFromFloat(p.NotionalQuote))
	limitQuote := decimal.NewFromFloat(g.limits.MaxPositionQuote)
	if projected.GreaterThan(limitQuote) {
		return Decision{Reason: fmt.Sprintf(
			"Position size limit exceeded: %s %s > %s %s",
			projected.StringFixed(2), g.quoteCcy, limitQuote.StringFixed(2), g.quoteCcy)}
	}
	if g.limits.MaxPositionGuard > 0 {
		projectedGuard := projected.Mul(g.quoteToGuard)
		limitGuard := decimal.NewFromFloat(g.limits.MaxPositionGuard)
		if projectedGuard.GreaterThan(limitGuard) {
			return Decision{Reason: fmt.Sprintf(
				"Position size limit exceeded: %s %s > %s %s",
				projectedGuard.StringFixed(2), g.guardCcy, limitGuard.StringFixed(2), g.guardCcy)}
		}
	}
	return Decision{Allowed: true}
}

func (g *Guard) checkSpread(p Proposal) Decision {
	if g.limits.MaxSpreadBps <= 0 {
		return Decision{Allowed: true}
	}
	spread := p.Ticker.SpreadBps()
	if spread > g.limits.MaxSpreadBps {
		return Decision{Reason: fmt.Sprintf(
			"Spread too wide: %.1f bps > %.1f bps", spread, g.limits.MaxSpreadBps)}
	}
	return Decision{Allowed: true}
}

// checkConsecutiveLosses pauses new entries after a losing streak. Realized
// results are estimated from round trips in the recent trade history: each
// sell is matched against the closest preceding buy of the same symbol, and
// the trip counts as a loss when net proceeds fall short of net cost. Only
// buys are paused; closing an existing position stays allowed.
func (g *Guard) checkConsecutiveLosses(p Proposal) (Decision, error) {
	if p.Side != schema.SideBuy {
		return Decision{Allowed: true}, nil
	}
	trades, err := g.store.RecentTrades(g.limits.LossLookback)
	if err != nil {
		return Decision{}, err
	}

	losses := 0
	var lastBuy *schema.Trade
	for i := range trades {
		t := trades[i]
		if t.Symbol != p.Symbol {
			continue
		}
		switch t.Side {
		case schema.SideBuy:
			lastBuy = &trades[i]
		case schema.SideSell:
			if lastBuy == nil {
				continue
			}
			proceeds := decimal.NewFromFloat(t.Cost).Sub(decimal.NewFromFloat(t.Fee))
			spent := decimal.NewFromFloat(lastBuy.Cost).Add(decimal.NewFromFloat(lastBuy.Fee))
			if proceeds.LessThan(spent) {
				losses++
			} else {
				losses = 0
			}
			lastBuy = nil
		}
	}
	if losses >= g.limits.MaxConsecutiveLosses {
		logs.Warnf("pausing entries for %s after %d consecutive losing trades", p.Symbol, losses)
		return Decision{Reason: fmt.Sprintf(
			"Consecutive losses: last %d round trips were losing, pausing new entries", losses)}, nil
	}
	return Decision{Allowed: true}, nil
}
