package schema

// Side is the direction of an order or trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType distinguishes market and limit orders.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus is the lifecycle status of an order as the ledger records it.
// BlockedRisk, BlockedConfirm and DryRun orders were never sent to a broker;
// they exist so that denials are auditable decisions rather than lost events.
type OrderStatus string

const (
	OrderStatusOpen           OrderStatus = "open"
	OrderStatusClosed         OrderStatus = "closed"
	OrderStatusCancelled      OrderStatus = "cancelled"
	OrderStatusBlockedRisk    OrderStatus = "BLOCKED_RISK"
	OrderStatusBlockedConfirm OrderStatus = "BLOCKED_CONFIRM"
	OrderStatusDryRun         OrderStatus = "DRY_RUN"
)

// Terminal reports whether no further status change is possible.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusClosed, OrderStatusCancelled, OrderStatusBlockedRisk,
		OrderStatusBlockedConfirm, OrderStatusDryRun:
		return true
	}
	return false
}

// Order is the normalized view of an exchange (or simulated) order.
type Order struct {
	ID            string      `json:"id"`
	ClientOrderID string      `json:"client_order_id,omitempty"`
	TsMs          int64       `json:"ts_ms"`
	Symbol        string      `json:"symbol"`
	Type          OrderType   `json:"type"`
	Side          Side        `json:"side"`
	Amount        float64     `json:"amount"`
	Price         float64     `json:"price"`
	Cost          float64     `json:"cost"`
	Filled        float64     `json:"filled"`
	Remaining     float64     `json:"remaining"`
	AvgPrice      float64     `json:"avg_price"`
	Fee           float64     `json:"fee"`
	FeeCurrency   string      `json:"fee_currency,omitempty"`
	Status        OrderStatus `json:"status"`
	Reason        string      `json:"reason,omitempty"`
}

// Trade is a single execution reported by a broker.
type Trade struct {
	ID          string  `json:"id"`
	OrderID     string  `json:"order_id"`
	TsMs        int64   `json:"ts_ms"`
	Symbol      string  `json:"symbol"`
	Side        Side    `json:"side"`
	Amount      float64 `json:"amount"`
	Price       float64 `json:"price"`
	Cost        float64 `json:"cost"`
	Fee         float64 `json:"fee"`
	FeeCurrency string  `json:"fee_currency,omitempty"`
}
