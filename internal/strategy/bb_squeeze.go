package strategy

import (
	"fmt"
	"math"

	"trader/internal/schema"
)

// BBSqueeze signals on volatility expansion after a Bollinger Band squeeze:
// band width contracts below its own rolling mean, then expands, and the
// close's position relative to the middle band picks the direction.
type BBSqueeze struct{}

// ID implements Strategy.
func (BBSqueeze) ID() string { return "bb_squeeze" }

// RequiresVolume implements Strategy.
func (BBSqueeze) RequiresVolume() bool { return false }

// DefaultParams implements Strategy.
func (BBSqueeze) DefaultParams() Params {
	return Params{"bb_period": 20, "bb_std": 2.0, "squeeze_threshold": 0.1, "atr_period": 14}
}

// Schema implements Strategy.
func (BBSqueeze) Schema() ParamSchema {
	return ParamSchema{
		"bb_period":         {Kind: ParamInteger, Default: 20, Min: 5, Max: 100, Description: "Bollinger Band period"},
		"bb_std":            {Kind: ParamNumber, Default: 2.0, Min: 0.5, Max: 4.0, Description: "standard deviation multiplier"},
		"squeeze_threshold": {Kind: ParamNumber, Default: 0.1, Min: 0.01, Max: 1.0, Description: "band-width contraction threshold"},
		"atr_period":        {Kind: ParamInteger, Default: 14, Min: 5, Max: 50, Description: "ATR period for stop placement"},
	}
}

// Compute implements Strategy.
func (s BBSqueeze) Compute(window []schema.Candle, params Params) (schema.SignalResult, error) {
	bbPeriod := params.Int("bb_period")
	bbStd := params.Float("bb_std")
	squeezeThreshold := params.Float("squeeze_threshold")
	atrPeriod := params.Int("atr_period")
	if bbPeriod <= 1 || atrPeriod <= 0 {
		return schema.SignalResult{}, fmt.Errorf("invalid bb_squeeze periods: bb=%d atr=%d", bbPeriod, atrPeriod)
	}

	minNeeded := maxInt(bbPeriod, atrPeriod) + 10
	if len(window) < minNeeded {
		return hold(s.ID(), "insufficient_data"), nil
	}

	cl := closes(window)
	middle := SMA(cl, bbPeriod)
	std := RollingStd(cl, bbPeriod)
	atr := ATR(highs(window), lows(window), cl, atrPeriod)

	width := make([]float64, len(cl))
	for i := range cl {
		upper := middle[i] + std[i]*bbStd
		lower := middle[i] - std[i]*bbStd
		width[i] = (upper - lower) / middle[i]
	}
	widthMA := SMA(width, bbPeriod)

	squeeze := func(i int) bool {
		return !math.IsNaN(width[i]) && !math.IsNaN(widthMA[i]) &&
			width[i] < widthMA[i]*(1-squeezeThreshold)
	}

	last := len(window) - 1
	curClose := cl[last]
	curMiddle := middle[last]
	curUpper := curMiddle + std[last]*bbStd
	curLower := curMiddle - std[last]*bbStd
	curATR := atr[last]
	if math.IsNaN(width[last]) || math.IsNaN(widthMA[last]) || math.IsNaN(curATR) {
		return hold(s.ID(), "invalid_indicators"), nil
	}

	wasInSqueeze := squeeze(last-1) || squeeze(last-2)
	if !wasInSqueeze || squeeze(last) {
		return hold(s.ID(), "no_signal"), nil
	}

	res := schema.SignalResult{Meta: schema.SignalMeta{StrategyID: s.ID()}}
	if curClose > curMiddle {
		res.Signal = schema.SignalBuy
		res.Confidence = clamp01((curClose - curMiddle) / (curUpper - curMiddle))
		res.Entry = ptr(curClose)
		res.Stop = ptr(math.Max(curLower, curClose-curATR*2))
		res.Reasons = []string{"bb_squeeze_breakout_bullish"}
	} else {
		res.Signal = schema.SignalSell
		res.Confidence = clamp01((curMiddle - curClose) / (curMiddle - curLower))
		res.Entry = ptr(curClose)
		res.Stop = ptr(math.Min(curUpper, curClose+curATR*2))
		res.Reasons = []string{"bb_squeeze_breakout_bearish"}
	}
	return res, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
