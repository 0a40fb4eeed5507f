package schema

import "fmt"

// Candle is a single OHLCV bar. Timestamps are unix milliseconds.
type Candle struct {
	TsMs   int64   `json:"ts_ms"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// ValidateCandles checks the strictly-increasing timestamp invariant of a
// candle stream. Rolling indicators are corrupted by reordered or duplicated
// bars, so a violation is an input error, not something to repair.
func ValidateCandles(candles []Candle) error {
	for i := 1; i < len(candles); i++ {
		if candles[i].TsMs <= candles[i-1].TsMs {
			return fmt.Errorf("candle timestamps not strictly increasing at index %d: %d <= %d",
				i, candles[i].TsMs, candles[i-1].TsMs)
		}
	}
	return nil
}

// HasUsableVolume reports whether the stream carries volume information that
// a volume-dependent strategy can rely on. An entirely zero (or NaN-free
// empty) volume column counts as absent.
func HasUsableVolume(candles []Candle) bool {
	for _, c := range candles {
		if c.Volume > 0 {
			return true
		}
	}
	return false
}
