// Package engine drives the per-symbol decision pipeline: signal, risk
// gate, order placement, ledger record, reconciliation. Every denial leaves
// an auditable ledger row; nothing is silently dropped.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"trader/internal/broker"
	"trader/internal/ledger"
	"trader/internal/obs"
	"trader/internal/ops"
	"trader/internal/reconcile"
	"trader/internal/risk"
	"trader/internal/schema"
	"trader/internal/strategy"
)

// CandleSource provides the OHLCV window a strategy evaluates.
type CandleSource interface {
	Candles(symbol string) ([]schema.Candle, error)
}

// CandleSourceFunc adapts a function to a CandleSource.
type CandleSourceFunc func(symbol string) ([]schema.Candle, error)

func (f CandleSourceFunc) Candles(symbol string) ([]schema.Candle, error) { return f(symbol) }

// Runner executes one trading run across all configured symbols.
type Runner struct {
	cfg      ops.Loaded
	store    ledger.Store
	broker   broker.Broker
	guard    *risk.Guard
	registry *strategy.Registry
	kill     *ops.KillSwitch
	alerter  *ops.Alerter
	recon    *reconcile.Reconciler
	metrics  *obs.Metrics
	candles  CandleSource
	now      func() time.Time

	mu         sync.Mutex
	peakEquity float64
}

// NewRunner wires a runner from its collaborators.
func NewRunner(
	cfg ops.Loaded,
	store ledger.Store,
	b broker.Broker,
	guard *risk.Guard,
	registry *strategy.Registry,
	kill *ops.KillSwitch,
	alerter *ops.Alerter,
	recon *reconcile.Reconciler,
	metrics *obs.Metrics,
	candles CandleSource,
) *Runner {
	if metrics == nil {
		metrics = obs.NewMetrics()
	}
	return &Runner{
		cfg:      cfg,
		store:    store,
		broker:   b,
		guard:    guard,
		registry: registry,
		kill:     kill,
		alerter:  alerter,
		recon:    recon,
		metrics:  metrics,
		candles:  candles,
		now:      time.Now,
	}
}

// Run executes one full pass: kill-switch gate, pre-run reconciliation,
// one concurrent cycle per symbol, post-run reconciliation, summary.
func (r *Runner) Run(ctx context.Context) error {
	if r.kill.Engaged() {
		msg := fmt.Sprintf("kill switch engaged at %s, refusing to trade", r.kill.Path())
		r.alertf("kill_switch", "trading halted", msg)
		return errors.New(msg)
	}

	pre := r.recon.Run(ctx)
	r.metrics.Reconciles.WithLabelValues(string(pre.Reason)).Inc()
	if !pre.OK {
		msg := fmt.Sprintf("pre-run reconciliation failed: %s", pre.Reason)
		r.alertf("reconcile_gate", "reconciliation gate failed", msg)
		r.engageKill(msg)
		return errors.New(msg)
	}
	logs.Infof("pre-run reconciliation: %s", pre.Reason)

	var wg sync.WaitGroup
	cycles := make([]*Cycle, len(r.cfg.Symbols))
	errs := make([]error, len(r.cfg.Symbols))
	for i, symbol := range r.cfg.Symbols {
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()
			cycles[i], errs[i] = r.runSymbol(ctx, symbol)
		}(i, symbol)
	}
	wg.Wait()

	post := r.recon.Run(ctx)
	r.metrics.Reconciles.WithLabelValues(string(post.Reason)).Inc()
	if post.OK {
		for _, c := range cycles {
			if c != nil && c.State() == CycleLedgerRecorded {
				_ = c.To(CycleReconciled)
			}
		}
	} else {
		r.alertf("reconcile_post", "post-run reconciliation failed",
			fmt.Sprintf("reason: %s, discrepancies: %d", post.Reason, len(post.Discrepancies)))
	}

	r.logSummary(cycles, errs, post)
	r.writeSummary(cycles, errs, post)
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// runSymbol is one decision cycle. It returns a nil cycle only when the
// candle or signal stage failed before the cycle could start moving.
func (r *Runner) runSymbol(ctx context.Context, symbol string) (*Cycle, error) {
	cycle := NewCycle(symbol)
	start := r.now()
	defer func() {
		r.metrics.CycleDuration.Observe(r.now().Sub(start).Seconds())
	}()

	window, err := r.candles.Candles(symbol)
	if err != nil {
		return cycle, errors.Wrapf(err, "load candles for %s", symbol)
	}
	r.metrics.CandlesPlayed.Add(float64(len(window)))
	res, err := r.registry.Resolve(r.cfg.Strategy.ID, window)
	if err != nil {
		return cycle, errors.Wrapf(err, "resolve strategy for %s", symbol)
	}
	// Configured params belong to the requested strategy; after a fallback
	// the substitute runs on its own defaults.
	params := strategy.Params(r.cfg.Strategy.Params)
	if res.Meta.FellBack() {
		params = nil
	}
	params, err = strategy.ValidateParams(res.Strategy.Schema(), params)
	if err != nil {
		return cycle, errors.Wrapf(err, "strategy params for %s", symbol)
	}
	sig, err := res.Compute(window, params)
	if err != nil {
		return cycle, errors.Wrapf(err, "compute signal for %s", symbol)
	}
	_ = cycle.To(CycleSignalComputed)
	r.metrics.Signals.WithLabelValues(sig.Meta.StrategyID, signalAction(sig.Signal)).Inc()
	if sig.Meta.FellBack() {
		logs.Warnf("%s: strategy %s fell back to %s: %s",
			symbol, sig.Meta.OriginalStrategy, sig.Meta.FallbackStrategy, sig.Meta.FallbackReason)
	}
	if sig.Signal == schema.SignalHold {
		logs.Infof("%s: hold (%s)", symbol, strings.Join(sig.Reasons, "; "))
		return cycle, nil
	}

	ticker, err := r.broker.FetchTicker(ctx, symbol)
	if err != nil {
		return cycle, r.brokerFailure(symbol, "fetch ticker", err)
	}
	bal, err := r.broker.FetchBalance(ctx)
	if err != nil {
		return cycle, r.brokerFailure(symbol, "fetch balance", err)
	}
	if err := r.recordSnapshot(bal, ticker); err != nil {
		return cycle, err
	}

	side, amount, notional, price := r.sizeOrder(sig.Signal, bal, ticker)
	if amount <= 0 {
		logs.Infof("%s: %s signal but nothing to %s, skipping",
			symbol, signalAction(sig.Signal), signalAction(sig.Signal))
		return cycle, nil
	}

	decision, err := r.guard.Check(ctx, risk.Proposal{
		Symbol:               symbol,
		Side:                 side,
		NotionalQuote:        notional,
		CurrentNotionalQuote: bal.TotalOf(r.cfg.BaseCcy) * price,
		Ticker:               ticker,
	})
	if err != nil {
		return cycle, errors.Wrapf(err, "risk check for %s", symbol)
	}
	if !decision.Allowed {
		_ = cycle.To(CycleBlockedRisk)
		r.metrics.Blocks.WithLabelValues(blockCheck(decision.Reason)).Inc()
		logs.Warnf("%s: order blocked by risk guard: %s", symbol, decision.Reason)
		if err := r.recordDenied(cycle, symbol, side, amount, price, schema.OrderStatusBlockedRisk, decision.Reason); err != nil {
			return cycle, err
		}
		return cycle, nil
	}
	_ = cycle.To(CycleRiskChecked)

	if r.cfg.Mode == ops.ModeLive && !r.cfg.Live.Armed {
		_ = cycle.To(CycleBlockedConfirm)
		r.metrics.Blocks.WithLabelValues("confirm").Inc()
		reason := fmt.Sprintf("live trading not confirmed, set live.confirm to %q", ops.LiveConfirmPhrase)
		logs.Warnf("%s: %s", symbol, reason)
		if err := r.recordDenied(cycle, symbol, side, amount, price, schema.OrderStatusBlockedConfirm, reason); err != nil {
			return cycle, err
		}
		return cycle, nil
	}
	if r.cfg.Mode == ops.ModeLive && r.cfg.Live.DryRun {
		_ = cycle.To(CycleDryRun)
		reason := fmt.Sprintf("dry run: would %s %.8f %s at ~%.2f", side, amount, symbol, price)
		logs.Infof("%s: %s", symbol, reason)
		if err := r.recordDenied(cycle, symbol, side, amount, price, schema.OrderStatusDryRun, reason); err != nil {
			return cycle, err
		}
		return cycle, nil
	}

	// Last look before the only mutating call in the cycle.
	if r.kill.Engaged() {
		msg := fmt.Sprintf("%s: kill switch engaged mid-run, order aborted", symbol)
		r.alertf("kill_switch", "order aborted", msg)
		return cycle, errors.New(msg)
	}

	order, err := r.placeOrder(ctx, symbol, side, amount)
	if err != nil {
		_ = cycle.To(CycleFailed)
		return cycle, r.brokerFailure(symbol, "place order", err)
	}
	_ = cycle.To(CycleOrderPlaced)
	switch order.Status {
	case schema.OrderStatusClosed:
		_ = cycle.To(CycleFilled)
	case schema.OrderStatusCancelled:
		_ = cycle.To(CycleCancelled)
	}
	r.metrics.Orders.WithLabelValues(string(r.cfg.Mode), string(side), string(order.Status)).Inc()

	if err := r.recordExecution(ctx, symbol, order); err != nil {
		return cycle, err
	}
	_ = cycle.To(CycleLedgerRecorded)

	// Final snapshot so daily PnL sees the post-trade equity.
	bal, err = r.broker.FetchBalance(ctx)
	if err != nil {
		return cycle, r.brokerFailure(symbol, "fetch final balance", err)
	}
	if err := r.recordSnapshot(bal, ticker); err != nil {
		return cycle, err
	}
	logs.Infof("%s: %s %s %.8f, status %s", symbol, order.Type, side, order.Amount, order.Status)
	return cycle, nil
}

// sizeOrder turns a signal into a side, base amount and quote notional.
// Buys commit a fixed fraction of free quote; sells close the whole free
// base position.
func (r *Runner) sizeOrder(signal int, bal schema.Balance, ticker schema.Ticker) (schema.Side, float64, float64, float64) {
	if signal == schema.SignalBuy {
		price := ticker.Ask
		if price <= 0 {
			price = ticker.Last
		}
		notional := bal.FreeOf(r.cfg.QuoteCcy) * r.cfg.Sim.RiskPct
		if price <= 0 {
			return schema.SideBuy, 0, 0, 0
		}
		return schema.SideBuy, notional / price, notional, price
	}
	price := ticker.Bid
	if price <= 0 {
		price = ticker.Last
	}
	amount := bal.FreeOf(r.cfg.BaseCcy)
	return schema.SideSell, amount, amount * price, price
}

func (r *Runner) placeOrder(ctx context.Context, symbol string, side schema.Side, amount float64) (schema.Order, error) {
	if r.cfg.Mode == ops.ModePaper {
		return r.broker.CreateOrder(ctx, symbol, schema.OrderTypeMarket, side, amount, 0)
	}
	bf, ok := r.broker.(broker.BookFetcher)
	if !ok {
		return schema.Order{}, errors.New("live broker does not expose order book depth")
	}
	return broker.PlaceLimitSafe(ctx, r.broker, bf, symbol, side, amount, r.cfg.Live.Limit)
}

// recordExecution appends the order and its fills to the ledger. Paper fills
// are synthesized from the order itself; live fills come from the
// exchange's own trade history so ledger IDs match what reconciliation
// later reads back.
func (r *Runner) recordExecution(ctx context.Context, symbol string, order schema.Order) error {
	if err := r.store.RecordOrder(order); err != nil {
		return errors.Wrap(err, "record order")
	}
	if order.Filled <= 0 {
		return nil
	}
	if r.cfg.Mode == ops.ModePaper {
		return r.store.RecordTrade(schema.Trade{
			ID:          order.ID + "-1",
			OrderID:     order.ID,
			TsMs:        order.TsMs,
			Symbol:      symbol,
			Side:        order.Side,
			Amount:      order.Filled,
			Price:       order.AvgPrice,
			Cost:        order.Cost,
			Fee:         order.Fee,
			FeeCurrency: order.FeeCurrency,
		})
	}
	trades, err := r.broker.FetchMyTrades(ctx, symbol, order.TsMs-1, 100)
	if err != nil {
		return r.brokerFailure(symbol, "fetch fills", err)
	}
	for _, t := range trades {
		if t.OrderID != order.ID {
			continue
		}
		if err := r.store.RecordTrade(t); err != nil {
			return errors.Wrap(err, "record trade")
		}
	}
	return nil
}

func (r *Runner) recordSnapshot(bal schema.Balance, ticker schema.Ticker) error {
	quote := r.cfg.QuoteCcy
	base := r.cfg.BaseCcy
	equity := bal.TotalOf(quote) + bal.TotalOf(base)*ticker.Last
	snap := schema.BalanceSnapshot{
		TsMs:         r.now().UnixMilli(),
		FreeByAsset:  bal.Free,
		TotalByAsset: bal.Total,
		EquityQuote:  equity,
		EquityGuard:  equity * r.cfg.Live.QuoteToGuard,
	}
	r.metrics.EquityQuote.Set(equity)
	r.mu.Lock()
	if equity > r.peakEquity {
		r.peakEquity = equity
	}
	peak := r.peakEquity
	r.mu.Unlock()
	if peak > 0 {
		r.metrics.DrawdownPct.Set((equity - peak) / peak * 100)
	}
	if err := r.store.RecordBalanceSnapshot(snap); err != nil {
		return errors.Wrap(err, "record balance snapshot")
	}
	return nil
}

// recordDenied writes the audit row for an order that never reached a
// broker.
func (r *Runner) recordDenied(cycle *Cycle, symbol string, side schema.Side, amount, price float64, status schema.OrderStatus, reason string) error {
	order := schema.Order{
		ID:     "denied-" + uuid.NewString()[:8],
		TsMs:   r.now().UnixMilli(),
		Symbol: symbol,
		Type:   schema.OrderTypeMarket,
		Side:   side,
		Amount: amount,
		Price:  price,
		Status: status,
		Reason: reason,
	}
	if err := r.store.RecordOrder(order); err != nil {
		return errors.Wrap(err, "record denied order")
	}
	_ = cycle.To(CycleLedgerRecorded)
	return nil
}

// brokerFailure classifies a broker error, counts it, and alerts when the
// kind halts the run.
func (r *Runner) brokerFailure(symbol, op string, err error) error {
	kind := broker.Classify(err)
	r.metrics.BrokerErrors.WithLabelValues(string(kind)).Inc()
	if kind.Halting() {
		msg := fmt.Sprintf("%s: %s: %v", symbol, op, err)
		r.alertf("broker_"+string(kind), "broker failure halts run", msg)
		r.engageKill(msg)
	}
	return errors.Wrapf(err, "%s for %s", op, symbol)
}

// engageKill pulls the kill switch so the next run refuses to start until
// an operator has looked at what happened and cleared the file.
func (r *Runner) engageKill(reason string) {
	if r.kill == nil {
		return
	}
	if err := r.kill.Engage(reason); err != nil {
		logs.Errorf("engaging kill switch: %+v", err)
	}
}

func (r *Runner) alertf(key, subject, body string) {
	if r.alerter == nil {
		return
	}
	if err := r.alerter.Alert(key, subject, body); err != nil {
		logs.Errorf("sending alert %q: %+v", key, err)
	}
}

func (r *Runner) logSummary(cycles []*Cycle, errs []error, post schema.ReconcileResult) {
	var done, blocked, failed int
	for i, c := range cycles {
		if errs[i] != nil {
			failed++
			continue
		}
		if c == nil {
			continue
		}
		switch c.State() {
		case CycleBlockedRisk, CycleBlockedConfirm, CycleDryRun:
			blocked++
		case CycleLedgerRecorded, CycleReconciled:
			done++
		}
	}
	logs.Infof("run summary: %d symbols, %d recorded, %d blocked, %d failed, reconcile %s",
		len(cycles), done, blocked, failed, post.Reason)
}

// writeSummary leaves a per-run text report next to the other run
// artifacts, so an operator can see the last outcome without a log search.
func (r *Runner) writeSummary(cycles []*Cycle, errs []error, post schema.ReconcileResult) {
	if r.cfg.Paths.DataDir == "" {
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "run at %s (%s mode)\n", r.now().UTC().Format(time.RFC3339), r.cfg.Mode)
	for i, symbol := range r.cfg.Symbols {
		switch {
		case errs[i] != nil:
			fmt.Fprintf(&b, "%s: failed: %v\n", symbol, errs[i])
		case cycles[i] == nil:
			fmt.Fprintf(&b, "%s: no cycle\n", symbol)
		default:
			fmt.Fprintf(&b, "%s: %s\n", symbol, cycles[i].State())
		}
	}
	fmt.Fprintf(&b, "reconcile: %s\n", post.Reason)
	path := filepath.Join(r.cfg.Paths.DataDir, "run_latest.txt")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		logs.Errorf("writing run summary: %+v", err)
	}
}

func signalAction(signal int) string {
	switch signal {
	case schema.SignalBuy:
		return "buy"
	case schema.SignalSell:
		return "sell"
	}
	return "hold"
}

// blockCheck maps a guard reason sentence back to its check label.
func blockCheck(reason string) string {
	switch {
	case strings.HasPrefix(reason, "Daily loss"):
		return "daily_loss"
	case strings.HasPrefix(reason, "Position size"):
		return "position_size"
	case strings.HasPrefix(reason, "Spread"):
		return "spread"
	case strings.HasPrefix(reason, "Consecutive"):
		return "consecutive_losses"
	}
	return "other"
}
