// Package ledger is the append-only audit trail of orders, trades and
// balance snapshots. Rows are never updated or deleted; corrections are new,
// dated rows. The reconciler depends on that property.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"trader/internal/schema"
)

// Store is the append-only sink plus the two read paths risk checks need.
type Store interface {
	RecordOrder(order schema.Order) error
	RecordTrade(trade schema.Trade) error
	RecordBalanceSnapshot(snap schema.BalanceSnapshot) error

	// RecentTrades returns trades recorded within the trailing window.
	RecentTrades(window time.Duration) ([]schema.Trade, error)

	// DailyPnL is the difference between the first and last balance-snapshot
	// equity within the current UTC day, expressed in guardCcy. The UTC day
	// boundary is a deliberate, documented choice; it is not localized.
	DailyPnL(guardCcy string) (decimal.Decimal, error)
}
