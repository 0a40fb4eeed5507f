package sim

import (
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"trader/internal/schema"
	"trader/internal/strategy"
)

// Config are the execution parameters for one simulation run.
type Config struct {
	Symbol      string
	MAShort     int
	MALong      int
	RiskPct     float64 // fraction of cash invested per buy, clamped to [0,1]
	FeeRate     float64 // fee charged on notional
	SlippageBps float64 // adverse execution slippage in basis points
	InitialCash float64 // starting cash for a fresh or reset state
}

// Result is the outcome of a replay.
type Result struct {
	State       State
	Trades      []schema.TradeRecord
	EquityCurve []schema.EquityPoint
}

// Simulator replays candles through the long-only MA-cross rule, applying
// fee and slippage and tracking equity, peak and drawdown.
type Simulator struct {
	cfg Config
}

// NewSimulator validates the config and builds a simulator.
func NewSimulator(cfg Config) (*Simulator, error) {
	if cfg.MAShort <= 0 || cfg.MALong <= 0 || cfg.MAShort >= cfg.MALong {
		return nil, errors.New("ma_short must be > 0 and < ma_long")
	}
	if cfg.RiskPct < 0 {
		cfg.RiskPct = 0
	}
	if cfg.RiskPct > 1 {
		cfg.RiskPct = 1
	}
	if cfg.FeeRate < 0 {
		cfg.FeeRate = 0
	}
	return &Simulator{cfg: cfg}, nil
}

// Run replays candles against state and returns the updated state, the new
// trades and the equity curve.
//
// Already-applied candles (ts <= last_ts) are skipped for trading but still
// feed the rolling averages, so resuming from a persisted state walks the
// indicators through the exact same history as a from-scratch replay.
// A state whose cursor is ahead of the data is stale bookkeeping for a
// different stream: it resets (keeping the trade counter) with a warning.
func (sim *Simulator) Run(state State, candles []schema.Candle) (Result, error) {
	if err := schema.ValidateCandles(candles); err != nil {
		return Result{}, err
	}
	if len(candles) > 0 && state.LastTs != nil && *state.LastTs > candles[len(candles)-1].TsMs {
		logs.Warnf("state for %s is future-dated (last_ts=%d > newest candle %d), resetting",
			sim.cfg.Symbol, *state.LastTs, candles[len(candles)-1].TsMs)
		state = state.Reset(sim.cfg.InitialCash)
	}

	slip := sim.cfg.SlippageBps / 10000
	cursor := strategy.NewMACrossCursor(sim.cfg.MAShort, sim.cfg.MALong)
	res := Result{}

	for _, candle := range candles {
		diff, ready := cursor.Push(candle.Close)

		if state.LastTs != nil && candle.TsMs <= *state.LastTs {
			continue
		}
		if !ready {
			// Insufficient history for the indicators: advance the resume
			// cursor, emit nothing.
			state.LastTs = ptrI64(candle.TsMs)
			continue
		}
		if state.PrevDiff == nil {
			state.PrevDiff = ptrF64(diff)
			state.LastTs = ptrI64(candle.TsMs)
			markEquity(&state, &res, candle, false)
			continue
		}

		crossedUp := *state.PrevDiff <= 0 && diff > 0
		crossedDown := *state.PrevDiff >= 0 && diff < 0

		switch {
		case crossedUp && state.CashQuote > 0 && sim.cfg.RiskPct > 0:
			res.Trades = append(res.Trades, applyBuy(&state, sim.cfg, candle, slip))
		case crossedDown && state.PosBase > 0:
			res.Trades = append(res.Trades, applySell(&state, sim.cfg, candle, slip))
		}

		markEquity(&state, &res, candle, true)
		state.PrevDiff = ptrF64(diff)
		state.LastTs = ptrI64(candle.TsMs)
	}

	res.State = state
	return res, nil
}

func applyBuy(state *State, cfg Config, candle schema.Candle, slip float64) schema.TradeRecord {
	invest := state.CashQuote * cfg.RiskPct
	// Keep cash non-negative when the fee would push the full-allocation
	// buy past available cash.
	if invest*(1+cfg.FeeRate) > state.CashQuote {
		invest = state.CashQuote / (1 + cfg.FeeRate)
	}
	execPrice := candle.Close * (1 + slip)
	var qty float64
	if execPrice > 0 {
		qty = invest / execPrice
	}
	notional := qty * execPrice
	fee := notional * cfg.FeeRate

	state.CashQuote -= notional + fee
	state.PosBase += qty
	state.TradesTotal++

	return schema.TradeRecord{
		TimeMs:    candle.TsMs,
		Symbol:    cfg.Symbol,
		Side:      schema.SideBuy,
		Price:     execPrice,
		Qty:       qty,
		Notional:  notional,
		Fee:       fee,
		CashAfter: state.CashQuote,
		PosAfter:  state.PosBase,
		Reason:    "ma_cross_up_buy",
	}
}

func applySell(state *State, cfg Config, candle schema.Candle, slip float64) schema.TradeRecord {
	qty := state.PosBase
	execPrice := candle.Close * (1 - slip)
	notional := qty * execPrice
	fee := notional * cfg.FeeRate

	state.PosBase = 0
	state.CashQuote += notional - fee
	state.TradesTotal++

	return schema.TradeRecord{
		TimeMs:    candle.TsMs,
		Symbol:    cfg.Symbol,
		Side:      schema.SideSell,
		Price:     execPrice,
		Qty:       qty,
		Notional:  notional,
		Fee:       fee,
		CashAfter: state.CashQuote,
		PosAfter:  state.PosBase,
		Reason:    "ma_cross_down_sell",
	}
}

func markEquity(state *State, res *Result, candle schema.Candle, trackDrawdown bool) {
	eq := state.Equity(candle.Close)
	res.EquityCurve = append(res.EquityCurve, schema.EquityPoint{TsMs: candle.TsMs, Equity: eq})

	if state.PeakEquityQuote == nil || eq > *state.PeakEquityQuote {
		state.PeakEquityQuote = ptrF64(eq)
	}
	if trackDrawdown && state.PeakEquityQuote != nil && *state.PeakEquityQuote > 0 {
		dd := (eq / *state.PeakEquityQuote - 1) * 100
		if dd < state.MaxDrawdownPct {
			state.MaxDrawdownPct = dd
		}
	}
}

func ptrI64(v int64) *int64     { return &v }
func ptrF64(v float64) *float64 { return &v }
