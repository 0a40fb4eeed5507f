package schema

// TradeRecord is an applied simulator trade. Records are immutable once
// written; corrections are new rows, never edits.
type TradeRecord struct {
	TimeMs    int64   `json:"time_ms"`
	Symbol    string  `json:"symbol"`
	Side      Side    `json:"side"`
	Price     float64 `json:"price"`
	Qty       float64 `json:"qty"`
	Notional  float64 `json:"notional_quote"`
	Fee       float64 `json:"fee_quote"`
	CashAfter float64 `json:"cash_quote_after"`
	PosAfter  float64 `json:"pos_base_after"`
	Reason    string  `json:"reason"`
}

// BalanceSnapshot captures account equity at a point in time. EquityGuard is
// the equity expressed in the configured guard currency, which may differ
// from the trading quote currency.
type BalanceSnapshot struct {
	TsMs         int64              `json:"ts_ms"`
	FreeByAsset  map[string]float64 `json:"free_by_asset"`
	TotalByAsset map[string]float64 `json:"total_by_asset"`
	EquityQuote  float64            `json:"equity_quote"`
	EquityGuard  float64            `json:"equity_guard_ccy"`
}

// EquityPoint is one sample of the simulated equity curve.
type EquityPoint struct {
	TsMs   int64   `json:"ts_ms"`
	Equity float64 `json:"equity"`
}
