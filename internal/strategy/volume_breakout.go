package strategy

import (
	"fmt"
	"math"

	"trader/internal/schema"
)

// VolumeBreakout signals on range breakouts confirmed by volume: the high
// clears the rolling resistance (or the low breaks the rolling support) while
// volume runs above its rolling mean by a configured ratio.
type VolumeBreakout struct{}

// ID implements Strategy.
func (VolumeBreakout) ID() string { return "breakout_volume" }

// RequiresVolume implements Strategy. Without a usable volume column the
// resolver falls back to a volume-independent strategy.
func (VolumeBreakout) RequiresVolume() bool { return true }

// DefaultParams implements Strategy.
func (VolumeBreakout) DefaultParams() Params {
	return Params{"lookback_period": 20, "volume_threshold": 1.5, "breakout_threshold": 0.002, "atr_period": 14}
}

// Schema implements Strategy.
func (VolumeBreakout) Schema() ParamSchema {
	return ParamSchema{
		"lookback_period":    {Kind: ParamInteger, Default: 20, Min: 5, Max: 200, Description: "support/resistance lookback"},
		"volume_threshold":   {Kind: ParamNumber, Default: 1.5, Min: 1.0, Max: 10.0, Description: "volume ratio confirming a breakout"},
		"breakout_threshold": {Kind: ParamNumber, Default: 0.002, Min: 0.0, Max: 0.1, Description: "fractional margin beyond the level"},
		"atr_period":         {Kind: ParamInteger, Default: 14, Min: 5, Max: 50, Description: "ATR period for stop placement"},
	}
}

// Compute implements Strategy.
func (s VolumeBreakout) Compute(window []schema.Candle, params Params) (schema.SignalResult, error) {
	lookback := params.Int("lookback_period")
	volumeThreshold := params.Float("volume_threshold")
	breakoutThreshold := params.Float("breakout_threshold")
	atrPeriod := params.Int("atr_period")
	if lookback <= 1 || atrPeriod <= 0 {
		return schema.SignalResult{}, fmt.Errorf("invalid breakout_volume periods: lookback=%d atr=%d", lookback, atrPeriod)
	}

	minNeeded := maxInt(lookback, atrPeriod) + 5
	if len(window) < minNeeded {
		return hold(s.ID(), "insufficient_data"), nil
	}

	hi, lo, cl, vol := highs(window), lows(window), closes(window), volumes(window)
	resistance := RollingMax(hi, lookback)
	support := RollingMin(lo, lookback)
	volMA := SMA(vol, lookback)
	atr := ATR(hi, lo, cl, atrPeriod)

	// Levels come from the window ending at the previous bar, so the
	// current bar can actually clear them.
	last := len(window) - 1
	curResistance := resistance[last-1]
	curSupport := support[last-1]
	curATR := atr[last]
	if math.IsNaN(curResistance) || math.IsNaN(curSupport) || math.IsNaN(volMA[last]) || math.IsNaN(curATR) {
		return hold(s.ID(), "invalid_indicators"), nil
	}

	volumeRatio := 0.0
	if volMA[last] > 0 {
		volumeRatio = vol[last] / volMA[last]
	}
	volumeConfirmed := volumeRatio >= volumeThreshold
	volumeStrength := clamp01((volumeRatio - 1) / 2)

	res := schema.SignalResult{Meta: schema.SignalMeta{StrategyID: s.ID()}}
	switch {
	case hi[last] > curResistance*(1+breakoutThreshold) && hi[last-1] <= curResistance && volumeConfirmed:
		strength := (hi[last] - curResistance) / curResistance
		res.Signal = schema.SignalBuy
		res.Confidence = clamp01((strength*10 + volumeStrength) / 2)
		res.Entry = ptr(cl[last])
		res.Stop = ptr(math.Max(curSupport, cl[last]-curATR*2))
		res.Reasons = []string{"resistance_breakout_with_volume"}
	case lo[last] < curSupport*(1-breakoutThreshold) && lo[last-1] >= curSupport && volumeConfirmed:
		strength := (curSupport - lo[last]) / curSupport
		res.Signal = schema.SignalSell
		res.Confidence = clamp01((strength*10 + volumeStrength) / 2)
		res.Entry = ptr(cl[last])
		res.Stop = ptr(math.Min(curResistance, cl[last]+curATR*2))
		res.Reasons = []string{"support_breakout_with_volume"}
	default:
		reason := "no_signal"
		if !volumeConfirmed {
			reason = "volume_not_confirmed"
		}
		return hold(s.ID(), reason), nil
	}
	return res, nil
}
