package broker

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/logs"

	"trader/internal/schema"
)

// LiveConfig configures the live exchange client.
type LiveConfig struct {
	APIKey       string
	APISecret    string
	BaseURL      string // e.g. https://api.binance.com, or the testnet base
	RecvWindowMs int64
	AllowMarket  bool
	Retry        RetryPolicy
}

// Live is the exchange-backed broker: a signed REST client with one-time
// clock-offset correction, kind-classified failures and a declarative retry
// policy. Order-mutating safety (kill switch, confirm phrase) is the
// caller's concern; this type only talks to the exchange.
type Live struct {
	cfg LiveConfig
	hc  *http.Client

	offsetOnce sync.Once
	offsetMs   int64
}

// NewLive builds a live broker. Credentials are validated by the first
// signed call, not here; configuration completeness is checked upstream.
func NewLive(cfg LiveConfig) *Live {
	if cfg.RecvWindowMs <= 0 {
		cfg.RecvWindowMs = 5000
	}
	if cfg.Retry == nil {
		cfg.Retry = DefaultRetryPolicy()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Live{
		cfg: cfg,
		hc:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Name implements Broker.
func (l *Live) Name() string { return "live" }

// Configured reports whether credentials are present.
func (l *Live) Configured() bool {
	return l.cfg.APIKey != "" && l.cfg.APISecret != ""
}

// mapSymbol converts "BTC/USDT" to the exchange form "BTCUSDT".
func mapSymbol(symbol string) string {
	return strings.ToUpper(strings.NewReplacer("/", "", "-", "").Replace(symbol))
}

// syncClock loads the server clock offset once, before the first signed
// call. A failure is logged and left for the exchange to reject as skew; it
// must not block an otherwise healthy run.
func (l *Live) syncClock(ctx context.Context) {
	l.offsetOnce.Do(func() {
		var payload struct {
			ServerTime int64 `json:"serverTime"`
		}
		if err := l.get(ctx, "/api/v3/time", nil, false, &payload); err != nil {
			logs.Warnf("clock sync failed, proceeding without offset: %+v", err)
			return
		}
		l.offsetMs = payload.ServerTime - time.Now().UnixMilli()
		logs.Infof("exchange clock offset: %dms", l.offsetMs)
	})
}

func (l *Live) sign(q url.Values) string {
	mac := hmac.New(sha256.New, []byte(l.cfg.APISecret))
	_, _ = io.WriteString(mac, q.Encode())
	return hex.EncodeToString(mac.Sum(nil))
}

func (l *Live) request(ctx context.Context, method, path string, q url.Values, signed bool, out any) error {
	if q == nil {
		q = url.Values{}
	}
	if signed {
		l.syncClock(ctx)
	}

	op := method + " " + path
	return l.cfg.Retry.Do(ctx, op, func() error {
		// Signing happens per attempt. A backoff longer than the recv
		// window would otherwise turn every retry into a time-skew
		// rejection of the original timestamp.
		if signed {
			q.Del("signature")
			q.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli()+l.offsetMs, 10))
			q.Set("recvWindow", strconv.FormatInt(l.cfg.RecvWindowMs, 10))
			q.Set("signature", l.sign(q))
		}
		req, err := http.NewRequestWithContext(ctx, method, l.cfg.BaseURL+path+"?"+q.Encode(), nil)
		if err != nil {
			return newError(KindUnknown, op, err)
		}
		if signed || l.cfg.APIKey != "" {
			req.Header.Set("X-MBX-APIKEY", l.cfg.APIKey)
		}
		resp, err := l.hc.Do(req)
		if err != nil {
			return newError(KindNetwork, op, err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return newError(KindNetwork, op, err)
		}
		if resp.StatusCode >= 300 {
			return classifyAPIError(op, resp.StatusCode, body)
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return newError(KindUnknown, op, err)
		}
		return nil
	})
}

func (l *Live) get(ctx context.Context, path string, q url.Values, signed bool, out any) error {
	return l.request(ctx, http.MethodGet, path, q, signed, out)
}

// classifyAPIError maps an HTTP failure to a kind using the status code and
// the exchange's vendor error code.
func classifyAPIError(op string, status int, body []byte) *Error {
	var payload struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	_ = json.Unmarshal(body, &payload)
	err := fmt.Errorf("status %d code %d: %s", status, payload.Code, payload.Msg)

	switch {
	case payload.Code == -1021:
		return newError(KindTimeSkew, op, err)
	case payload.Code == -2014 || payload.Code == -2015:
		return newError(KindAuth, op, err)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return newError(KindAuth, op, err)
	case status == http.StatusTooManyRequests || status == 418:
		return newError(KindRateLimit, op, err)
	case status >= 500:
		return newError(KindExchangeDown, op, err)
	default:
		return newError(KindUnknown, op, err)
	}
}

// FetchTicker implements Broker.
func (l *Live) FetchTicker(ctx context.Context, symbol string) (schema.Ticker, error) {
	ex := mapSymbol(symbol)

	var book struct {
		BidPrice string `json:"bidPrice"`
		BidQty   string `json:"bidQty"`
		AskPrice string `json:"askPrice"`
		AskQty   string `json:"askQty"`
	}
	q := url.Values{"symbol": {ex}}
	if err := l.get(ctx, "/api/v3/ticker/bookTicker", q, false, &book); err != nil {
		return schema.Ticker{}, err
	}

	var last struct {
		Price string `json:"price"`
	}
	q = url.Values{"symbol": {ex}}
	if err := l.get(ctx, "/api/v3/ticker/price", q, false, &last); err != nil {
		return schema.Ticker{}, err
	}

	return schema.Ticker{
		Symbol:    symbol,
		TsMs:      time.Now().UnixMilli() + l.offsetMs,
		Last:      parseFloat(last.Price),
		Bid:       parseFloat(book.BidPrice),
		Ask:       parseFloat(book.AskPrice),
		BidVolume: parseFloat(book.BidQty),
		AskVolume: parseFloat(book.AskQty),
	}, nil
}

// FetchOrderBook returns the top levels of the book, used by the safe limit
// algorithm to reprice.
func (l *Live) FetchOrderBook(ctx context.Context, symbol string, limit int) (schema.OrderBook, error) {
	if limit <= 0 {
		limit = 5
	}
	var payload struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	}
	q := url.Values{"symbol": {mapSymbol(symbol)}, "limit": {strconv.Itoa(limit)}}
	if err := l.get(ctx, "/api/v3/depth", q, false, &payload); err != nil {
		return schema.OrderBook{}, err
	}
	book := schema.OrderBook{Symbol: symbol, TsMs: time.Now().UnixMilli() + l.offsetMs}
	for _, lv := range payload.Bids {
		if len(lv) >= 2 {
			book.Bids = append(book.Bids, schema.BookLevel{Price: parseFloat(lv[0]), Qty: parseFloat(lv[1])})
		}
	}
	for _, lv := range payload.Asks {
		if len(lv) >= 2 {
			book.Asks = append(book.Asks, schema.BookLevel{Price: parseFloat(lv[0]), Qty: parseFloat(lv[1])})
		}
	}
	return book, nil
}

// FetchBalance implements Broker.
func (l *Live) FetchBalance(ctx context.Context) (schema.Balance, error) {
	var payload struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := l.get(ctx, "/api/v3/account", url.Values{}, true, &payload); err != nil {
		return schema.Balance{}, err
	}
	bal := schema.Balance{
		TsMs:  time.Now().UnixMilli() + l.offsetMs,
		Free:  make(map[string]float64),
		Used:  make(map[string]float64),
		Total: make(map[string]float64),
	}
	for _, b := range payload.Balances {
		free := parseFloat(b.Free)
		locked := parseFloat(b.Locked)
		if free == 0 && locked == 0 {
			continue
		}
		bal.Free[b.Asset] = free
		bal.Used[b.Asset] = locked
		bal.Total[b.Asset] = free + locked
	}
	return bal, nil
}

type liveOrderPayload struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	TransactTime  int64  `json:"transactTime"`
	Time          int64  `json:"time"`
	Symbol        string `json:"symbol"`
	Type          string `json:"type"`
	Side          string `json:"side"`
	OrigQty       string `json:"origQty"`
	ExecutedQty   string `json:"executedQty"`
	Price         string `json:"price"`
	QuoteQty      string `json:"cummulativeQuoteQty"`
	Status        string `json:"status"`
}

func (p liveOrderPayload) toOrder(symbol string) schema.Order {
	amount := parseFloat(p.OrigQty)
	filled := parseFloat(p.ExecutedQty)
	cost := parseFloat(p.QuoteQty)
	avg := 0.0
	if filled > 0 {
		avg = cost / filled
	}
	ts := p.TransactTime
	if ts == 0 {
		ts = p.Time
	}
	return schema.Order{
		ID:            strconv.FormatInt(p.OrderID, 10),
		ClientOrderID: p.ClientOrderID,
		TsMs:          ts,
		Symbol:        symbol,
		Type:          schema.OrderType(strings.ToLower(p.Type)),
		Side:          schema.Side(strings.ToLower(p.Side)),
		Amount:        amount,
		Price:         parseFloat(p.Price),
		Cost:          cost,
		Filled:        filled,
		Remaining:     amount - filled,
		AvgPrice:      avg,
		Status:        mapOrderStatus(p.Status),
	}
}

func mapOrderStatus(s string) schema.OrderStatus {
	switch s {
	case "FILLED":
		return schema.OrderStatusClosed
	case "CANCELED", "REJECTED", "EXPIRED":
		return schema.OrderStatusCancelled
	default:
		return schema.OrderStatusOpen
	}
}

// CreateOrder implements Broker. Market orders are refused unless the config
// explicitly allows them; the safe limit path is the default for live runs.
func (l *Live) CreateOrder(ctx context.Context, symbol string, typ schema.OrderType, side schema.Side, amount, price float64) (schema.Order, error) {
	if typ == schema.OrderTypeMarket && !l.cfg.AllowMarket {
		return schema.Order{}, newError(KindUnknown, "create order",
			fmt.Errorf("market orders are disabled by configuration"))
	}

	q := url.Values{
		"symbol":           {mapSymbol(symbol)},
		"side":             {strings.ToUpper(string(side))},
		"type":             {strings.ToUpper(string(typ))},
		"quantity":         {formatQty(amount)},
		"newClientOrderId": {"trader-" + uuid.NewString()[:13]},
	}
	if typ == schema.OrderTypeLimit {
		q.Set("timeInForce", "GTC")
		q.Set("price", formatQty(price))
	}
	var payload liveOrderPayload
	if err := l.request(ctx, http.MethodPost, "/api/v3/order", q, true, &payload); err != nil {
		return schema.Order{}, err
	}
	return payload.toOrder(symbol), nil
}

// FetchOrder implements Broker.
func (l *Live) FetchOrder(ctx context.Context, id, symbol string) (schema.Order, error) {
	q := url.Values{"symbol": {mapSymbol(symbol)}, "orderId": {id}}
	var payload liveOrderPayload
	if err := l.get(ctx, "/api/v3/order", q, true, &payload); err != nil {
		return schema.Order{}, err
	}
	return payload.toOrder(symbol), nil
}

// CancelOrder implements Broker.
func (l *Live) CancelOrder(ctx context.Context, id, symbol string) (schema.Order, error) {
	q := url.Values{"symbol": {mapSymbol(symbol)}, "orderId": {id}}
	var payload liveOrderPayload
	if err := l.request(ctx, http.MethodDelete, "/api/v3/order", q, true, &payload); err != nil {
		return schema.Order{}, err
	}
	return payload.toOrder(symbol), nil
}

// FetchMyTrades implements Broker.
func (l *Live) FetchMyTrades(ctx context.Context, symbol string, sinceMs int64, limit int) ([]schema.Trade, error) {
	q := url.Values{"symbol": {mapSymbol(symbol)}}
	if sinceMs > 0 {
		q.Set("startTime", strconv.FormatInt(sinceMs, 10))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var payload []struct {
		ID              int64  `json:"id"`
		OrderID         int64  `json:"orderId"`
		Time            int64  `json:"time"`
		Price           string `json:"price"`
		Qty             string `json:"qty"`
		QuoteQty        string `json:"quoteQty"`
		Commission      string `json:"commission"`
		CommissionAsset string `json:"commissionAsset"`
		IsBuyer         bool   `json:"isBuyer"`
	}
	if err := l.get(ctx, "/api/v3/myTrades", q, true, &payload); err != nil {
		return nil, err
	}
	out := make([]schema.Trade, 0, len(payload))
	for _, t := range payload {
		side := schema.SideSell
		if t.IsBuyer {
			side = schema.SideBuy
		}
		out = append(out, schema.Trade{
			ID:          strconv.FormatInt(t.ID, 10),
			OrderID:     strconv.FormatInt(t.OrderID, 10),
			TsMs:        t.Time,
			Symbol:      symbol,
			Side:        side,
			Amount:      parseFloat(t.Qty),
			Price:       parseFloat(t.Price),
			Cost:        parseFloat(t.QuoteQty),
			Fee:         parseFloat(t.Commission),
			FeeCurrency: t.CommissionAsset,
		})
	}
	return out, nil
}

// FetchOpenOrders implements Broker.
func (l *Live) FetchOpenOrders(ctx context.Context, symbol string) ([]schema.Order, error) {
	q := url.Values{"symbol": {mapSymbol(symbol)}}
	var payload []liveOrderPayload
	if err := l.get(ctx, "/api/v3/openOrders", q, true, &payload); err != nil {
		return nil, err
	}
	out := make([]schema.Order, 0, len(payload))
	for _, p := range payload {
		out = append(out, p.toOrder(symbol))
	}
	return out, nil
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(v, 64)
	return f
}

func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', 8, 64)
}
