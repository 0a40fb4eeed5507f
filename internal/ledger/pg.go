package ledger

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"gorm.io/gorm"

	"trader/internal/schema"
)

// OrderRow is the insert-only orders table.
type OrderRow struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	RunID         string `gorm:"index"`
	Timestamp     int64  `gorm:"index"`
	OrderID       string
	ClientOrderID string
	Symbol        string
	Type          string
	Side          string
	Amount        float64
	Price         float64
	Cost          float64
	Filled        float64
	Remaining     float64
	AvgPrice      float64
	Fee           float64
	Status        string
	Reason        string
}

// TradeRow is the insert-only trades table.
type TradeRow struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	RunID       string `gorm:"index"`
	Timestamp   int64  `gorm:"index"`
	TradeID     string `gorm:"index"`
	OrderID     string
	Symbol      string
	Side        string
	Amount      float64
	Price       float64
	Cost        float64
	Fee         float64
	FeeCurrency string
}

// SnapshotRow is the insert-only balance snapshots table.
type SnapshotRow struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement"`
	RunID        string `gorm:"index"`
	Timestamp    int64  `gorm:"index"`
	FreeByAsset  string
	TotalByAsset string
	EquityQuote  float64
	EquityGuard  float64
}

// PGStore is the Postgres-backed Store. Tables are insert-only: the store
// issues Create calls and range queries, never updates or deletes.
type PGStore struct {
	db       *gorm.DB
	runID    string
	quoteCcy string
	now      func() time.Time
}

// NewPGStore migrates the ledger tables and returns a store.
func NewPGStore(db *gorm.DB, quoteCcy string) (*PGStore, error) {
	if err := db.AutoMigrate(&OrderRow{}, &TradeRow{}, &SnapshotRow{}); err != nil {
		return nil, errors.Wrap(err, "migrate ledger tables")
	}
	return &PGStore{
		db:       db,
		runID:    uuid.NewString()[:8],
		quoteCcy: quoteCcy,
		now:      time.Now,
	}, nil
}

// RecordOrder implements Store.
func (s *PGStore) RecordOrder(order schema.Order) error {
	ts := order.TsMs
	if ts == 0 {
		ts = s.now().UTC().UnixMilli()
	}
	row := OrderRow{
		RunID:         s.runID,
		Timestamp:     ts,
		OrderID:       order.ID,
		ClientOrderID: order.ClientOrderID,
		Symbol:        order.Symbol,
		Type:          string(order.Type),
		Side:          string(order.Side),
		Amount:        order.Amount,
		Price:         order.Price,
		Cost:          order.Cost,
		Filled:        order.Filled,
		Remaining:     order.Remaining,
		AvgPrice:      order.AvgPrice,
		Fee:           order.Fee,
		Status:        string(order.Status),
		Reason:        order.Reason,
	}
	return errors.Wrap(s.db.Create(&row).Error, "insert order row")
}

// RecordTrade implements Store.
func (s *PGStore) RecordTrade(trade schema.Trade) error {
	ts := trade.TsMs
	if ts == 0 {
		ts = s.now().UTC().UnixMilli()
	}
	row := TradeRow{
		RunID:       s.runID,
		Timestamp:   ts,
		TradeID:     trade.ID,
		OrderID:     trade.OrderID,
		Symbol:      trade.Symbol,
		Side:        string(trade.Side),
		Amount:      trade.Amount,
		Price:       trade.Price,
		Cost:        trade.Cost,
		Fee:         trade.Fee,
		FeeCurrency: trade.FeeCurrency,
	}
	return errors.Wrap(s.db.Create(&row).Error, "insert trade row")
}

// RecordBalanceSnapshot implements Store.
func (s *PGStore) RecordBalanceSnapshot(snap schema.BalanceSnapshot) error {
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
	row := SnapshotRow{
		RunID:        s.runID,
		Timestamp:    ts,
		FreeByAsset:  string(free),
		TotalByAsset: string(total),
		EquityQuote:  snap.EquityQuote,
		EquityGuard:  snap.EquityGuard,
	}
	return errors.Wrap(s.db.Create(&row).Error, "insert snapshot row")
}

// RecentTrades implements Store.
func (s *PGStore) RecentTrades(window time.Duration) ([]schema.Trade, error) {
	cutoff := s.now().UTC().Add(-window).UnixMilli()
	var rows []TradeRow
	if err := s.db.Where("timestamp >= ?", cutoff).Order("timestamp asc").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "query recent trades")
	}
	out := make([]schema.Trade, 0, len(rows))
	for _, row := range rows {
		out = append(out, schema.Trade{
			ID:          row.TradeID,
			OrderID:     row.OrderID,
			TsMs:        row.Timestamp,
			Symbol:      row.Symbol,
			Side:        schema.Side(row.Side),
			Amount:      row.Amount,
			Price:       row.Price,
			Cost:        row.Cost,
			Fee:         row.Fee,
			FeeCurrency: row.FeeCurrency,
		})
	}
	return out, nil
}

// DailyPnL implements Store.
func (s *PGStore) DailyPnL(guardCcy string) (decimal.Decimal, error) {
	dayStart := s.now().UTC().Truncate(24 * time.Hour).UnixMilli()
	var rows []SnapshotRow
	if err := s.db.Where("timestamp >= ?", dayStart).Order("timestamp asc").Find(&rows).Error; err != nil {
		return decimal.Zero, errors.Wrap(err, "query balance snapshots")
	}
	if len(rows) < 2 {
		return decimal.Zero, nil
	}
	pick := func(row SnapshotRow) decimal.Decimal {
		if guardCcy == s.quoteCcy {
			return decimal.NewFromFloat(row.EquityQuote)
		}
		return decimal.NewFromFloat(row.EquityGuard)
	}
	return pick(rows[len(rows)-1]).Sub(pick(rows[0])), nil
}
