// Package reconcile cross-checks the local ledger against the exchange's
// trade history. It is the gate that decides whether a live run may start
// and the audit that runs after it finishes.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"trader/internal/broker"
	"trader/internal/ledger"
	"trader/internal/schema"
)

const (
	latestJSONName   = "reconcile_latest.json"
	latestReportName = "reconcile_latest.txt"
)

// ConfiguredBroker is implemented by brokers that can tell whether their
// credentials are present without making a network call.
type ConfiguredBroker interface {
	Configured() bool
}

// Reconciler compares ledger trades with exchange trades over a trailing
// window and persists the outcome.
type Reconciler struct {
	store   ledger.Store
	broker  broker.Broker
	symbols []string
	window  time.Duration
	outDir  string
	now     func() time.Time
}

// New builds a reconciler writing its latest result files under outDir.
func New(store ledger.Store, b broker.Broker, symbols []string, window time.Duration, outDir string) *Reconciler {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Reconciler{
		store:   store,
		broker:  b,
		symbols: symbols,
		window:  window,
		outDir:  outDir,
		now:     time.Now,
	}
}

// Run performs one reconciliation. Paper brokers, and live brokers whose
// credentials are absent, are skipped successfully: in both cases there is
// no external source of truth to compare against. Broker failures are
// classified into a reason rather than returned, so the persisted result
// always states why reconciliation did not pass.
func (r *Reconciler) Run(ctx context.Context) schema.ReconcileResult {
	res := r.run(ctx)
	if err := r.persist(res); err != nil {
		logs.Errorf("persisting reconcile result: %+v", err)
	}
	return res
}

func (r *Reconciler) run(ctx context.Context) schema.ReconcileResult {
	ts := r.now().UnixMilli()

	if r.broker.Name() != "live" {
		return schema.ReconcileResult{
			OK:     true,
			TsMs:   ts,
			Reason: schema.ReconcileSkipped,
			Details: map[string]string{
				"broker": r.broker.Name(),
			},
		}
	}
	if cb, ok := r.broker.(ConfiguredBroker); ok && !cb.Configured() {
		return schema.ReconcileResult{
			OK:     true,
			TsMs:   ts,
			Reason: schema.ReconcileSkipped,
			Details: map[string]string{
				"broker": r.broker.Name(),
				"note":   "live credentials not configured",
			},
		}
	}

	ledgerTrades, err := r.store.RecentTrades(r.window)
	if err != nil {
		logs.Errorf("reading ledger trades: %+v", err)
		return schema.ReconcileResult{
			OK:      false,
			TsMs:    ts,
			Reason:  schema.ReconcileUnknown,
			Details: map[string]string{"error": err.Error()},
		}
	}

	sinceMs := r.now().Add(-r.window).UnixMilli()
	var exchangeTrades []schema.Trade
	for _, symbol := range r.symbols {
		trades, err := r.broker.FetchMyTrades(ctx, symbol, sinceMs, 1000)
		if err != nil {
			kind := broker.Classify(err)
			logs.Errorf("fetching %s trades: %+v", symbol, err)
			return schema.ReconcileResult{
				OK:      false,
				TsMs:    ts,
				Reason:  kind.ReconcileReason(),
				Details: map[string]string{"symbol": symbol, "error": err.Error()},
			}
		}
		exchangeTrades = append(exchangeTrades, trades...)
	}

	details := map[string]string{
		"ledger_trades":   fmt.Sprintf("%d", len(ledgerTrades)),
		"exchange_trades": fmt.Sprintf("%d", len(exchangeTrades)),
	}
	if bal := r.exchangeBalance(ctx); bal != "" {
		details["exchange_balance"] = bal
	}

	discrepancies := diffTrades(ledgerTrades, exchangeTrades)
	if len(discrepancies) > 0 {
		return schema.ReconcileResult{
			OK:            false,
			TsMs:          ts,
			Reason:        schema.ReconcileDiscrepancies,
			Discrepancies: discrepancies,
			Details:       details,
		}
	}
	return schema.ReconcileResult{
		OK:      true,
		TsMs:    ts,
		Reason:  schema.ReconcileOK,
		Details: details,
	}
}

// exchangeBalance snapshots the exchange's nonzero totals for the report.
// It is informational: a failed fetch is logged and leaves the field out
// instead of failing a reconciliation whose trades already matched.
func (r *Reconciler) exchangeBalance(ctx context.Context) string {
	bal, err := r.broker.FetchBalance(ctx)
	if err != nil {
		logs.Warnf("fetching exchange balance for report: %+v", err)
		return ""
	}
	assets := make([]string, 0, len(bal.Total))
	for asset := range bal.Total {
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	parts := make([]string, 0, len(assets))
	for _, asset := range assets {
		parts = append(parts, fmt.Sprintf("%s=%.8f", asset, bal.Total[asset]))
	}
	return strings.Join(parts, " ")
}

// diffTrades computes the symmetric difference of trade IDs. A trade known
// to only one side is a discrepancy regardless of direction: missing from
// the ledger means an unrecorded execution, missing from the exchange means
// a phantom record.
func diffTrades(ledgerTrades, exchangeTrades []schema.Trade) []string {
	inLedger := make(map[string]bool, len(ledgerTrades))
	for _, t := range ledgerTrades {
		if t.ID != "" {
			inLedger[t.ID] = true
		}
	}
	inExchange := make(map[string]bool, len(exchangeTrades))
	for _, t := range exchangeTrades {
		if t.ID != "" {
			inExchange[t.ID] = true
		}
	}

	var out []string
	for id := range inExchange {
		if !inLedger[id] {
			out = append(out, fmt.Sprintf("trade %s on exchange but not in ledger", id))
		}
	}
	for id := range inLedger {
		if !inExchange[id] {
			out = append(out, fmt.Sprintf("trade %s in ledger but not on exchange", id))
		}
	}
	sort.Strings(out)
	return out
}

// persist writes both the machine-readable and human-readable latest result.
func (r *Reconciler) persist(res schema.ReconcileResult) error {
	if r.outDir == "" {
		return nil
	}
	if err := os.MkdirAll(r.outDir, 0o755); err != nil {
		return errors.Wrap(err, "create reconcile dir")
	}

	raw, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal reconcile result")
	}
	if err := os.WriteFile(filepath.Join(r.outDir, latestJSONName), raw, 0o644); err != nil {
		return errors.Wrap(err, "write reconcile json")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "reconciliation at %s\n", time.UnixMilli(res.TsMs).UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "ok: %v\nreason: %s\n", res.OK, res.Reason)
	keys := make([]string, 0, len(res.Details))
	for k := range res.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, res.Details[k])
	}
	if len(res.Discrepancies) > 0 {
		fmt.Fprintf(&b, "discrepancies (%d):\n", len(res.Discrepancies))
		for _, d := range res.Discrepancies {
			fmt.Fprintf(&b, "  - %s\n", d)
		}
	}
	if err := os.WriteFile(filepath.Join(r.outDir, latestReportName), []byte(b.String()), 0o644); err != nil {
		return errors.Wrap(err, "write reconcile report")
	}
	return nil
}
