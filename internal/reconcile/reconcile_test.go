package reconcile

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trader/internal/broker"
	"trader/internal/schema"
)

type fakeStore struct {
	trades []schema.Trade
	err    error
}

func (s *fakeStore) RecordOrder(schema.Order) error                     { return nil }
func (s *fakeStore) RecordTrade(schema.Trade) error                     { return nil }
func (s *fakeStore) RecordBalanceSnapshot(schema.BalanceSnapshot) error { return nil }
func (s *fakeStore) RecentTrades(time.Duration) ([]schema.Trade, error) {
	return s.trades, s.err
}
func (s *fakeStore) DailyPnL(string) (decimal.Decimal, error) { return decimal.Zero, nil }

// fakeLive pretends to be the live broker so the reconcile path past the
// paper skip can be exercised without a network.
type fakeLive struct {
	configured bool
	trades     map[string][]schema.Trade
	tradesErr  error
	balance    schema.Balance
}

func (f *fakeLive) Name() string     { return "live" }
func (f *fakeLive) Configured() bool { return f.configured }

func (f *fakeLive) FetchTicker(ctx context.Context, symbol string) (schema.Ticker, error) {
	return schema.Ticker{}, stderrors.New("not implemented")
}

func (f *fakeLive) FetchBalance(ctx context.Context) (schema.Balance, error) {
	if f.balance.Total == nil {
		return schema.Balance{}, stderrors.New("balance unavailable")
	}
	return f.balance, nil
}

func (f *fakeLive) CreateOrder(ctx context.Context, symbol string, typ schema.OrderType, side schema.Side, amount, price float64) (schema.Order, error) {
	return schema.Order{}, stderrors.New("not implemented")
}

func (f *fakeLive) FetchOrder(ctx context.Context, id, symbol string) (schema.Order, error) {
	return schema.Order{}, stderrors.New("not implemented")
}

func (f *fakeLive) CancelOrder(ctx context.Context, id, symbol string) (schema.Order, error) {
	return schema.Order{}, stderrors.New("not implemented")
}

func (f *fakeLive) FetchMyTrades(ctx context.Context, symbol string, sinceMs int64, limit int) ([]schema.Trade, error) {
	if f.tradesErr != nil {
		return nil, f.tradesErr
	}
	return f.trades[symbol], nil
}

func (f *fakeLive) FetchOpenOrders(ctx context.Context, symbol string) ([]schema.Order, error) {
	return nil, nil
}

func trade(id, symbol string) schema.Trade {
	return schema.Trade{ID: id, Symbol: symbol, TsMs: time.Now().UnixMilli()}
}

func TestRunSkipsPaperBroker(t *testing.T) {
	paper := broker.NewPaper("BTC", "USDT", 1000, 0.001)
	r := New(&fakeStore{}, paper, []string{"BTC/USDT"}, time.Hour, t.TempDir())

	res := r.Run(context.Background())
	assert.True(t, res.OK)
	assert.Equal(t, schema.ReconcileSkipped, res.Reason)
	assert.Equal(t, "paper", res.Details["broker"])
}

func TestRunUnconfiguredLiveSkips(t *testing.T) {
	r := New(&fakeStore{}, &fakeLive{configured: false}, []string{"BTC/USDT"}, time.Hour, t.TempDir())

	res := r.Run(context.Background())
	assert.True(t, res.OK)
	assert.Equal(t, schema.ReconcileSkipped, res.Reason)
	assert.Equal(t, "live credentials not configured", res.Details["note"])
}

func TestRunMatchingTradesOK(t *testing.T) {
	trades := []schema.Trade{trade("t1", "BTC/USDT"), trade("t2", "BTC/USDT")}
	store := &fakeStore{trades: trades}
	live := &fakeLive{configured: true, trades: map[string][]schema.Trade{"BTC/USDT": trades}}
	r := New(store, live, []string{"BTC/USDT"}, time.Hour, t.TempDir())

	res := r.Run(context.Background())
	assert.True(t, res.OK)
	assert.Equal(t, schema.ReconcileOK, res.Reason)
	assert.Empty(t, res.Discrepancies)
	assert.Equal(t, "2", res.Details["ledger_trades"])
}

func TestRunRecordsExchangeBalance(t *testing.T) {
	trades := []schema.Trade{trade("t1", "BTC/USDT")}
	live := &fakeLive{
		configured: true,
		trades:     map[string][]schema.Trade{"BTC/USDT": trades},
		balance:    schema.Balance{Total: map[string]float64{"USDT": 950.5, "BTC": 0.25}},
	}
	r := New(&fakeStore{trades: trades}, live, []string{"BTC/USDT"}, time.Hour, t.TempDir())

	res := r.Run(context.Background())
	assert.True(t, res.OK)
	assert.Equal(t, "BTC=0.25000000 USDT=950.50000000", res.Details["exchange_balance"])
}

func TestRunBalanceFetchFailureIsInformational(t *testing.T) {
	// The balance line in the report is a courtesy. Trades matched, so the
	// result stays OK and the field is simply absent.
	trades := []schema.Trade{trade("t1", "BTC/USDT")}
	live := &fakeLive{configured: true, trades: map[string][]schema.Trade{"BTC/USDT": trades}}
	r := New(&fakeStore{trades: trades}, live, []string{"BTC/USDT"}, time.Hour, t.TempDir())

	res := r.Run(context.Background())
	assert.True(t, res.OK)
	assert.Equal(t, schema.ReconcileOK, res.Reason)
	assert.NotContains(t, res.Details, "exchange_balance")
}

func TestRunReportsSymmetricDiscrepancies(t *testing.T) {
	store := &fakeStore{trades: []schema.Trade{trade("t1", "BTC/USDT"), trade("ledger-only", "BTC/USDT")}}
	live := &fakeLive{configured: true, trades: map[string][]schema.Trade{
		"BTC/USDT": {trade("t1", "BTC/USDT"), trade("exchange-only", "BTC/USDT")},
	}}
	r := New(store, live, []string{"BTC/USDT"}, time.Hour, t.TempDir())

	res := r.Run(context.Background())
	assert.False(t, res.OK)
	assert.Equal(t, schema.ReconcileDiscrepancies, res.Reason)
	require.Len(t, res.Discrepancies, 2)
	assert.Contains(t, res.Discrepancies, "trade exchange-only on exchange but not in ledger")
	assert.Contains(t, res.Discrepancies, "trade ledger-only in ledger but not on exchange")
}

func TestRunClassifiesBrokerFailure(t *testing.T) {
	authErr := &broker.Error{Kind: broker.KindAuth, Op: "fetch my trades", Err: stderrors.New("401")}
	live := &fakeLive{configured: true, tradesErr: authErr}
	r := New(&fakeStore{}, live, []string{"BTC/USDT"}, time.Hour, t.TempDir())

	res := r.Run(context.Background())
	assert.False(t, res.OK)
	assert.Equal(t, schema.ReconcileAuth, res.Reason)
	assert.Equal(t, "BTC/USDT", res.Details["symbol"])
}

func TestRunLedgerReadFailure(t *testing.T) {
	store := &fakeStore{err: stderrors.New("corrupt file")}
	live := &fakeLive{configured: true}
	r := New(store, live, []string{"BTC/USDT"}, time.Hour, t.TempDir())

	res := r.Run(context.Background())
	assert.False(t, res.OK)
	assert.Equal(t, schema.ReconcileUnknown, res.Reason)
}

func TestRunPersistsLatestResult(t *testing.T) {
	dir := t.TempDir()
	paper := broker.NewPaper("BTC", "USDT", 1000, 0.001)
	r := New(&fakeStore{}, paper, []string{"BTC/USDT"}, time.Hour, dir)

	res := r.Run(context.Background())
	require.True(t, res.OK)

	raw, err := os.ReadFile(filepath.Join(dir, "reconcile_latest.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"SKIPPED"`)

	report, err := os.ReadFile(filepath.Join(dir, "reconcile_latest.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(report), "ok: true")
	assert.Contains(t, string(report), "reason: SKIPPED")
}

func TestDiffTradesIgnoresEmptyIDs(t *testing.T) {
	out := diffTrades(
		[]schema.Trade{{ID: ""}, {ID: "a"}},
		[]schema.Trade{{ID: "a"}, {ID: ""}},
	)
	assert.Empty(t, out)
}
