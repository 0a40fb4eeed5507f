package ledger

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"trader/internal/schema"
)

const (
	ordersFile    = "live_orders_history.csv"
	tradesFile    = "live_trades_history.csv"
	snapshotsFile = "live_balance_snapshots_history.csv"
)

var ordersHeader = []string{
	"run_id", "timestamp", "order_id", "client_order_id", "symbol", "type",
	"side", "amount", "price", "cost", "filled", "remaining", "avg_price",
	"fee", "status", "reason",
}

var tradesHeader = []string{
	"run_id", "timestamp", "trade_id", "order_id", "symbol", "side",
	"amount", "price", "cost", "fee", "fee_currency",
}

var snapshotsHeader = []string{
	"run_id", "timestamp", "free_by_asset", "total_by_asset",
	"equity_quote", "equity_guard_ccy",
}

// CSVStore appends one CSV file per record kind under a reports directory.
// Headers are written on first write. A single mutex serializes writers so
// concurrent symbol tasks cannot interleave rows.
type CSVStore struct {
	dir      string
	runID    string
	quoteCcy string

	mu  sync.Mutex
	now func() time.Time
}

// NewCSVStore creates a store rooted at dir. quoteCcy names the trading
// quote currency so DailyPnL can pick the right equity column.
func NewCSVStore(dir, quoteCcy string) (*CSVStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create reports dir")
	}
	return &CSVStore{
		dir:      dir,
		runID:    uuid.NewString()[:8],
		quoteCcy: quoteCcy,
		now:      time.Now,
	}, nil
}

// RunID identifies this process's rows in the shared history files.
func (s *CSVStore) RunID() string { return s.runID }

// RecordOrder implements Store.
func (s *CSVStore) RecordOrder(order schema.Order) error {
	ts := order.TsMs
	if ts == 0 {
		ts = s.now().UTC().UnixMilli()
	}
	return s.appendRow(ordersFile, ordersHeader, []string{
		s.runID,
		strconv.FormatInt(ts, 10),
		order.ID,
		order.ClientOrderID,
		order.Symbol,
		string(order.Type),
		string(order.Side),
		formatFloat(order.Amount),
		formatFloat(order.Price),
		formatFloat(order.Cost),
		formatFloat(order.Filled),
		formatFloat(order.Remaining),
		formatFloat(order.AvgPrice),
		formatFloat(order.Fee),
		string(order.Status),
		order.Reason,
	})
}

// RecordTrade implements Store.
func (s *CSVStore) RecordTrade(trade schema.Trade) error {
	ts := trade.TsMs
	if ts == 0 {
		ts = s.now().UTC().UnixMilli()
	}
	return s.appendRow(tradesFile, tradesHeader, []string{
		s.runID,
		strconv.FormatInt(ts, 10),
		trade.ID,
		trade.OrderID,
		trade.Symbol,
		string(trade.Side),
		formatFloat(trade.Amount),
		formatFloat(trade.Price),
		formatFloat(trade.Cost),
		formatFloat(trade.Fee),
		trade.FeeCurrency,
	})
}

// RecordBalanceSnapshot implements Store.
func (s *CSVStore) RecordBalanceSnapshot(snap schema.BalanceSnapshot) error {
	ts := snap.TsMs
	if ts == 0 {
		ts = s.now().UTC().UnixMilli()
	}
	free, err := json.Marshal(snap.FreeByAsset)
	if err != nil {
		return errors.Wrap(err, "marshal free balances")
	}
	total, err := json.Marshal(snap.TotalByAsset)
	if err != nil {
		return errors.Wrap(err, "marshal total balances")
	}
	return s.appendRow(snapshotsFile, snapshotsHeader, []string{
		s.runID,
		strconv.FormatInt(ts, 10),
		string(free),
		string(total),
		formatFloat(snap.EquityQuote),
		formatFloat(snap.EquityGuard),
	})
}

// RecentTrades implements Store.
func (s *CSVStore) RecentTrades(window time.Duration) ([]schema.Trade, error) {
	rows, err := s.readRows(tradesFile)
	if err != nil {
		return nil, err
	}
	cutoff := s.now().UTC().Add(-window).UnixMilli()
	var out []schema.Trade
	for _, row := range rows {
		ts := parseInt(row["timestamp"])
		if ts < cutoff {
			continue
		}
		out = append(out, schema.Trade{
			ID:          row["trade_id"],
			OrderID:     row["order_id"],
			TsMs:        ts,
			Symbol:      row["symbol"],
			Side:        schema.Side(row["side"]),
			Amount:      parseFloat(row["amount"]),
			Price:       parseFloat(row["price"]),
			Cost:        parseFloat(row["cost"]),
			Fee:         parseFloat(row["fee"]),
			FeeCurrency: row["fee_currency"],
		})
	}
	return out, nil
}

// DailyPnL implements Store.
func (s *CSVStore) DailyPnL(guardCcy string) (decimal.Decimal, error) {
	rows, err := s.readRows(snapshotsFile)
	if err != nil {
		return decimal.Zero, err
	}
	dayStart := s.now().UTC().Truncate(24 * time.Hour).UnixMilli()

	column := "equity_guard_ccy"
	if guardCcy == s.quoteCcy {
		column = "equity_quote"
	}

	var first, last decimal.Decimal
	count := 0
	for _, row := range rows {
		if parseInt(row["timestamp"]) < dayStart {
			continue
		}
		v, err := decimal.NewFromString(row[column])
		if err != nil {
			continue
		}
		if count == 0 {
			first = v
		}
		last = v
		count++
	}
	if count < 2 {
		return decimal.Zero, nil
	}
	return last.Sub(first), nil
}

func (s *CSVStore) appendRow(name string, header, row []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, name)
	_, statErr := os.Stat(path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "open ledger file")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(header); err != nil {
			return errors.Wrap(err, "write ledger header")
		}
	}
	if err := w.Write(row); err != nil {
		return errors.Wrap(err, "write ledger row")
	}
	w.Flush()
	return errors.Wrap(w.Error(), "flush ledger row")
}

func (s *CSVStore) readRows(name string) ([]map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(filepath.Join(s.dir, name))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "open ledger file")
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "read ledger file")
	}
	if len(records) < 2 {
		return nil, nil
	}
	header := records[0]
	out := make([]map[string]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]string, len(header))
		for i, key := range header {
			if i < len(rec) {
				row[key] = rec[i]
			}
		}
		out = append(out, row)
	}
	return out, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(v, 64)
	return f
}

func parseInt(v string) int64 {
	i, _ := strconv.ParseInt(v, 10, 64)
	return i
}
