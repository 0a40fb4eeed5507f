package schema

// Ticker is a best bid/ask snapshot for one symbol.
type Ticker struct {
	Symbol    string  `json:"symbol"`
	TsMs      int64   `json:"ts_ms"`
	Last      float64 `json:"last"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	BidVolume float64 `json:"bid_volume"`
	AskVolume float64 `json:"ask_volume"`
}

// SpreadBps returns the bid/ask spread in basis points, or 0 when either
// side is missing.
func (t Ticker) SpreadBps() float64 {
	if t.Bid <= 0 || t.Ask <= 0 {
		return 0
	}
	return (t.Ask - t.Bid) / t.Bid * 10000
}

// BookLevel is one price level of an order book.
type BookLevel struct {
	Price float64 `json:"price"`
	Qty   float64 `json:"qty"`
}

// OrderBook holds the top levels of a symbol's book, best first.
type OrderBook struct {
	Symbol string      `json:"symbol"`
	TsMs   int64       `json:"ts_ms"`
	Bids   []BookLevel `json:"bids"`
	Asks   []BookLevel `json:"asks"`
}

// BestBid returns the highest bid, or 0 when the book side is empty.
func (b OrderBook) BestBid() float64 {
	if len(b.Bids) == 0 {
		return 0
	}
	return b.Bids[0].Price
}

// BestAsk returns the lowest ask, or 0 when the book side is empty.
func (b OrderBook) BestAsk() float64 {
	if len(b.Asks) == 0 {
		return 0
	}
	return b.Asks[0].Price
}

// Balance is a per-asset account balance snapshot from a broker.
type Balance struct {
	TsMs  int64              `json:"ts_ms"`
	Free  map[string]float64 `json:"free"`
	Used  map[string]float64 `json:"used"`
	Total map[string]float64 `json:"total"`
}

// TotalOf returns the total balance for one asset.
func (b Balance) TotalOf(asset string) float64 {
	return b.Total[asset]
}

// FreeOf returns the free balance for one asset.
func (b Balance) FreeOf(asset string) float64 {
	return b.Free[asset]
}
