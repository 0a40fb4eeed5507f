package sim

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trader/internal/schema"
)

func testConfig() Config {
	return Config{
		Symbol:      "BTC/USDT",
		MAShort:     3,
		MALong:      5,
		RiskPct:     0.05,
		FeeRate:     0.001,
		SlippageBps: 5,
		InitialCash: 10000,
	}
}

func candlesAt(closes ...float64) []schema.Candle {
	out := make([]schema.Candle, len(closes))
	for i, c := range closes {
		out[i] = schema.Candle{TsMs: int64(i+1) * 60_000, Open: c, High: c, Low: c, Close: c, Volume: 1}
	}
	return out
}

func TestRunBuysOnCrossUp(t *testing.T) {
	sim, err := NewSimulator(testConfig())
	require.NoError(t, err)

	candles := candlesAt(100, 100, 100, 100, 100, 105, 110, 115)
	res, err := sim.Run(NewState(10000), candles)
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	trade := res.Trades[0]
	assert.Equal(t, schema.SideBuy, trade.Side)
	// The short MA first exceeds the long MA at the 105 close.
	assert.Equal(t, int64(6*60_000), trade.TimeMs)
	assert.InDelta(t, 105*(1+0.0005), trade.Price, 1e-9)
	assert.Greater(t, res.State.PosBase, 0.0)
	assert.Equal(t, uint64(1), res.State.TradesTotal)
}

func TestRunRoundTripConservation(t *testing.T) {
	sim, err := NewSimulator(testConfig())
	require.NoError(t, err)

	// Cross up at 105, then a slide forcing a cross back down.
	candles := candlesAt(100, 100, 100, 100, 100, 105, 110, 115, 110, 100, 90, 85)
	res, err := sim.Run(NewState(10000), candles)
	require.NoError(t, err)

	require.Len(t, res.Trades, 2)
	assert.Equal(t, schema.SideBuy, res.Trades[0].Side)
	assert.Equal(t, schema.SideSell, res.Trades[1].Side)
	assert.Equal(t, 0.0, res.State.PosBase)
	assert.GreaterOrEqual(t, res.State.CashQuote, 0.0)
	// Fees and slippage only remove value from a flat round trip.
	assert.Less(t, res.State.CashQuote, 10000.0)
}

func TestRunCashNeverNegativeAtFullRisk(t *testing.T) {
	cfg := testConfig()
	cfg.RiskPct = 1
	cfg.FeeRate = 0.01
	sim, err := NewSimulator(cfg)
	require.NoError(t, err)

	candles := candlesAt(100, 100, 100, 100, 100, 105, 110, 115)
	res, err := sim.Run(NewState(10000), candles)
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	assert.InDelta(t, 0.0, res.State.CashQuote, 1e-6)
	assert.Greater(t, res.State.PosBase, 0.0)
}

func TestRunResumeMatchesFullReplay(t *testing.T) {
	cfg := testConfig()
	rng := rand.New(rand.NewSource(7))
	closes := make([]float64, 200)
	price := 100.0
	for i := range closes {
		price *= 1 + (rng.Float64()-0.5)*0.04
		closes[i] = price
	}
	candles := candlesAt(closes...)

	simFull, err := NewSimulator(cfg)
	require.NoError(t, err)
	full, err := simFull.Run(NewState(cfg.InitialCash), candles)
	require.NoError(t, err)

	// Same history split at an arbitrary point; the resumed run receives the
	// complete series again, as a restart would.
	simResume, err := NewSimulator(cfg)
	require.NoError(t, err)
	part1, err := simResume.Run(NewState(cfg.InitialCash), candles[:120])
	require.NoError(t, err)
	part2, err := simResume.Run(part1.State, candles)
	require.NoError(t, err)

	assert.InDelta(t, full.State.CashQuote, part2.State.CashQuote, 1e-9)
	assert.InDelta(t, full.State.PosBase, part2.State.PosBase, 1e-9)
	assert.Equal(t, full.State.TradesTotal, part2.State.TradesTotal)
	require.NotNil(t, part2.State.LastTs)
	assert.Equal(t, *full.State.LastTs, *part2.State.LastTs)
	assert.InDelta(t, full.State.MaxDrawdownPct, part2.State.MaxDrawdownPct, 1e-9)
}

func TestRunResumeReplaysNoTrades(t *testing.T) {
	sim, err := NewSimulator(testConfig())
	require.NoError(t, err)

	candles := candlesAt(100, 100, 100, 100, 100, 105, 110, 115)
	first, err := sim.Run(NewState(10000), candles)
	require.NoError(t, err)
	require.Len(t, first.Trades, 1)

	second, err := sim.Run(first.State, candles)
	require.NoError(t, err)
	assert.Empty(t, second.Trades, "already-applied candles must not trade again")
	assert.Equal(t, first.State.CashQuote, second.State.CashQuote)
}

func TestRunPeakAndDrawdown(t *testing.T) {
	sim, err := NewSimulator(testConfig())
	require.NoError(t, err)

	candles := candlesAt(100, 100, 100, 100, 100, 105, 110, 120, 110, 100, 95, 90)
	res, err := sim.Run(NewState(10000), candles)
	require.NoError(t, err)

	require.NotNil(t, res.State.PeakEquityQuote)
	assert.GreaterOrEqual(t, *res.State.PeakEquityQuote, 10000.0)
	assert.Less(t, res.State.MaxDrawdownPct, 0.0)
	assert.GreaterOrEqual(t, res.State.MaxDrawdownPct, -100.0)
}

func TestRunFutureDatedStateResets(t *testing.T) {
	sim, err := NewSimulator(testConfig())
	require.NoError(t, err)

	state := NewState(10000)
	state.LastTs = ptrI64(math.MaxInt64 / 2)
	state.CashQuote = 5
	state.TradesTotal = 9

	candles := candlesAt(100, 100, 100, 100, 100, 105, 110, 115)
	res, err := sim.Run(state, candles)
	require.NoError(t, err)

	// Reset restores cash and keeps the lifetime trade counter.
	require.Len(t, res.Trades, 1)
	assert.Equal(t, uint64(10), res.State.TradesTotal)
}

func TestRunRejectsUnorderedCandles(t *testing.T) {
	sim, err := NewSimulator(testConfig())
	require.NoError(t, err)

	candles := candlesAt(100, 101, 102)
	candles[2].TsMs = candles[1].TsMs
	_, err = sim.Run(NewState(10000), candles)
	require.Error(t, err)
}

func TestNewSimulatorRejectsBadWindows(t *testing.T) {
	_, err := NewSimulator(Config{MAShort: 5, MALong: 3})
	require.Error(t, err)
	_, err = NewSimulator(Config{MAShort: 5, MALong: 5})
	require.Error(t, err)
}
