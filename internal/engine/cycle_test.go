package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCycleHappyPath(t *testing.T) {
	c := NewCycle("BTC/USDT")
	assert.Equal(t, CycleIdle, c.State())

	path := []CycleState{
		CycleSignalComputed,
		CycleRiskChecked,
		CycleOrderPlaced,
		CycleFilled,
		CycleLedgerRecorded,
		CycleReconciled,
	}
	for _, next := range path {
		require.NoError(t, c.To(next), "to %s", next)
	}
	assert.Equal(t, CycleReconciled, c.State())
}

func TestCycleBlockedPathsReachLedger(t *testing.T) {
	for _, blocked := range []CycleState{CycleBlockedConfirm, CycleDryRun} {
		c := NewCycle("BTC/USDT")
		require.NoError(t, c.To(CycleSignalComputed))
		require.NoError(t, c.To(CycleRiskChecked))
		require.NoError(t, c.To(blocked))
		require.NoError(t, c.To(CycleLedgerRecorded))
	}

	// A risk denial skips the risk-checked state entirely.
	c := NewCycle("BTC/USDT")
	require.NoError(t, c.To(CycleSignalComputed))
	require.NoError(t, c.To(CycleBlockedRisk))
	require.NoError(t, c.To(CycleLedgerRecorded))
}

func TestCycleRejectsInvalidTransitions(t *testing.T) {
	cases := []struct {
		from CycleState
		to   CycleState
	}{
		{CycleIdle, CycleOrderPlaced},
		{CycleIdle, CycleFilled},
		{CycleSignalComputed, CycleFilled},
		{CycleBlockedRisk, CycleOrderPlaced},
		{CycleFilled, CycleCancelled},
		{CycleReconciled, CycleIdle},
		{CycleLedgerRecorded, CycleSignalComputed},
	}
	for _, tc := range cases {
		c := &Cycle{state: tc.from}
		err := c.To(tc.to)
		assert.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", tc.from, tc.to)
		assert.Equal(t, tc.from, c.State(), "state must not move on rejection")
	}
}

func TestCycleStateStrings(t *testing.T) {
	assert.Equal(t, "idle", CycleIdle.String())
	assert.Equal(t, "blocked_risk", CycleBlockedRisk.String())
	assert.Equal(t, "reconciled", CycleReconciled.String())
	assert.Equal(t, "unknown", CycleState(200).String())
}
