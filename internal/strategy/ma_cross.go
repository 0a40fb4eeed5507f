package strategy

import (
	"fmt"
	"math"

	"trader/internal/schema"
)

// MACross signals on short/long simple-moving-average crossovers: buy when
// the short MA crosses above the long MA, sell on the opposite transition.
type MACross struct{}

// ID implements Strategy.
func (MACross) ID() string { return "ma_cross" }

// RequiresVolume implements Strategy. MA cross works on closes alone.
func (MACross) RequiresVolume() bool { return false }

// DefaultParams implements Strategy.
func (MACross) DefaultParams() Params {
	return Params{"ma_short": 20, "ma_long": 100}
}

// Schema implements Strategy.
func (MACross) Schema() ParamSchema {
	return ParamSchema{
		"ma_short": {Kind: ParamInteger, Default: 20, Min: 1, Max: 200, Description: "short moving average period"},
		"ma_long":  {Kind: ParamInteger, Default: 100, Min: 2, Max: 500, Description: "long moving average period"},
	}
}

// Compute implements Strategy. It evaluates the crossover at the final bar of
// the window.
func (s MACross) Compute(window []schema.Candle, params Params) (schema.SignalResult, error) {
	maShort := params.Int("ma_short")
	maLong := params.Int("ma_long")
	if maShort <= 0 || maLong <= 0 || maShort >= maLong {
		return schema.SignalResult{}, fmt.Errorf("ma_short must be > 0 and < ma_long, got short=%d long=%d", maShort, maLong)
	}
	if len(window) < maLong+1 {
		return hold(s.ID(), "insufficient_data"), nil
	}

	cur := NewMACrossCursor(maShort, maLong)
	diffs := make([]float64, 0, len(window))
	for _, c := range window {
		if d, ready := cur.Push(c.Close); ready {
			diffs = append(diffs, d)
		}
	}
	if len(diffs) < 2 {
		return hold(s.ID(), "insufficient_data"), nil
	}
	prevDiff, diff := diffs[len(diffs)-2], diffs[len(diffs)-1]

	res := schema.SignalResult{
		Signal:  schema.SignalHold,
		Reasons: []string{"no_cross"},
		Meta:    schema.SignalMeta{StrategyID: s.ID()},
	}
	last := window[len(window)-1].Close
	switch {
	case prevDiff <= 0 && diff > 0:
		res.Signal = schema.SignalBuy
		res.Reasons = []string{"ma_cross_up_buy"}
		res.Entry = ptr(last)
	case prevDiff >= 0 && diff < 0:
		res.Signal = schema.SignalSell
		res.Reasons = []string{"ma_cross_down_sell"}
		res.Entry = ptr(last)
	}
	if res.Signal != schema.SignalHold && last > 0 {
		// Confidence from the normalized magnitude of the MA separation.
		res.Confidence = clamp01(math.Abs(diff) / last * 100)
	}
	return res, nil
}

// MACrossCursor is the incremental form of MACross used by candle-by-candle
// replay: O(1) per bar via rolling sums, never a full-window recompute.
type MACrossCursor struct {
	short *RollingSMA
	long  *RollingSMA
}

// NewMACrossCursor creates a cursor with the given periods.
func NewMACrossCursor(maShort, maLong int) *MACrossCursor {
	return &MACrossCursor{
		short: NewRollingSMA(maShort),
		long:  NewRollingSMA(maLong),
	}
}

// Push feeds one close and returns the short-long MA difference. ready is
// false until both windows are full.
func (c *MACrossCursor) Push(close float64) (diff float64, ready bool) {
	c.short.Push(close)
	c.long.Push(close)
	if !c.short.Ready() || !c.long.Ready() {
		return 0, false
	}
	return c.short.Value() - c.long.Value(), true
}

func hold(strategyID, reason string) schema.SignalResult {
	res := schema.Hold(reason)
	res.Meta.StrategyID = strategyID
	return res
}
