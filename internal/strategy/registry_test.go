package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trader/internal/schema"
)

func TestRegistryResolveDefault(t *testing.T) {
	r := DefaultRegistry()
	res, err := r.Resolve("", candlesFromCloses(100, 101, 102))
	require.NoError(t, err)
	assert.Equal(t, DefaultStrategyID, res.Strategy.ID())
	assert.Equal(t, DefaultStrategyID, res.Meta.StrategyID)
	assert.False(t, res.Meta.FellBack())
}

func TestRegistryResolveUnknown(t *testing.T) {
	r := DefaultRegistry()
	_, err := r.Resolve("nope", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `strategy "nope" not found`)
}

func TestRegistryVolumeFallback(t *testing.T) {
	r := DefaultRegistry()
	window := candlesFromCloses(100, 101, 102)
	for i := range window {
		window[i].Volume = 0
	}

	res, err := r.Resolve("breakout_volume", window)
	require.NoError(t, err)
	assert.Equal(t, DefaultStrategyID, res.Strategy.ID())
	assert.True(t, res.Meta.FellBack())
	assert.Equal(t, "breakout_volume", res.Meta.OriginalStrategy)
	assert.Equal(t, DefaultStrategyID, res.Meta.FallbackStrategy)
	assert.Equal(t, "missing_volume_data", res.Meta.FallbackReason)
}

func TestResolutionComputeStampsFallbackMeta(t *testing.T) {
	r := DefaultRegistry()
	window := candlesFromCloses(100, 101, 102) // too short for any signal
	for i := range window {
		window[i].Volume = 0
	}

	res, err := r.Resolve("breakout_volume", window)
	require.NoError(t, err)
	sig, err := res.Compute(window, res.Strategy.DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, schema.SignalHold, sig.Signal)
	assert.True(t, sig.Meta.FellBack())
	assert.Equal(t, "breakout_volume", sig.Meta.OriginalStrategy)
}

func TestRegistryListSorted(t *testing.T) {
	infos := DefaultRegistry().List()
	require.Len(t, infos, 3)
	assert.Equal(t, "bb_squeeze", infos[0].ID)
	assert.Equal(t, "breakout_volume", infos[1].ID)
	assert.Equal(t, "ma_cross", infos[2].ID)
}

func TestValidateParamsClampsAndDefaults(t *testing.T) {
	spec := ParamSchema{
		"period": {Kind: ParamInteger, Default: 20, Min: 1, Max: 200},
	}
	out, err := ValidateParams(spec, nil)
	require.NoError(t, err)
	assert.Equal(t, 20, out.Int("period"))

	_, err = ValidateParams(spec, Params{"period": 500})
	require.Error(t, err)
}
