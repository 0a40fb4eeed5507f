package strategy

import "math"

// RollingSMA maintains a simple moving average over a fixed window with O(1)
// updates. Ready returns false until the window is full.
type RollingSMA struct {
	period int
	sum    float64
	buf    []float64
	head   int
	count  int
}

// NewRollingSMA creates a rolling SMA over period samples. period must be > 0.
func NewRollingSMA(period int) *RollingSMA {
	return &RollingSMA{period: period, buf: make([]float64, period)}
}

// Push adds a sample, evicting the oldest when the window is full.
func (s *RollingSMA) Push(v float64) {
	if s.count == s.period {
		s.sum -= s.buf[s.head]
	} else {
		s.count++
	}
	s.buf[s.head] = v
	s.sum += v
	s.head = (s.head + 1) % s.period
}

// Ready reports whether a full window has been seen.
func (s *RollingSMA) Ready() bool {
	return s.count == s.period
}

// Value returns the current average. Only meaningful when Ready.
func (s *RollingSMA) Value() float64 {
	if s.count == 0 {
		return 0
	}
	return s.sum / float64(s.period)
}

// SMA computes the full-window simple moving average series. Entry i is NaN
// until index period-1. Used by tests as the reference for the incremental
// implementation and by window-at-once strategies.
func SMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// RollingStd computes the rolling sample standard deviation, NaN before the
// window is full.
func RollingStd(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if i < period-1 {
			out[i] = math.NaN()
			continue
		}
		window := values[i-period+1 : i+1]
		var sum float64
		for _, v := range window {
			sum += v
		}
		mean := sum / float64(period)
		var ss float64
		for _, v := range window {
			d := v - mean
			ss += d * d
		}
		out[i] = math.Sqrt(ss / float64(period-1))
	}
	return out
}

// TrueRange returns the true range series: max(h-l, |h-prevC|, |l-prevC|).
// The first entry uses the bar's own range.
func TrueRange(highs, lows, closes []float64) []float64 {
	out := make([]float64, len(closes))
	for i := range closes {
		tr := highs[i] - lows[i]
		if i > 0 {
			tr = math.Max(tr, math.Abs(highs[i]-closes[i-1]))
			tr = math.Max(tr, math.Abs(lows[i]-closes[i-1]))
		}
		out[i] = tr
	}
	return out
}

// ATR is the rolling mean of the true range, NaN before the window is full.
func ATR(highs, lows, closes []float64, period int) []float64 {
	return SMA(TrueRange(highs, lows, closes), period)
}

// RollingMax computes the rolling maximum, NaN before the window is full.
func RollingMax(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if i < period-1 {
			out[i] = math.NaN()
			continue
		}
		m := values[i-period+1]
		for _, v := range values[i-period+2 : i+1] {
			if v > m {
				m = v
			}
		}
		out[i] = m
	}
	return out
}

// RollingMin computes the rolling minimum, NaN before the window is full.
func RollingMin(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if i < period-1 {
			out[i] = math.NaN()
			continue
		}
		m := values[i-period+1]
		for _, v := range values[i-period+2 : i+1] {
			if v < m {
				m = v
			}
		}
		out[i] = m
	}
	return out
}
