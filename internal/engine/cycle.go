package engine

import (
	"errors"
	"time"
)

var ErrInvalidTransition = errors.New("invalid cycle state transition")

// CycleState tracks one decision cycle for one symbol, from signal to
// reconciled ledger entry. Blocked states are terminal outcomes, not
// failures: a denial that reaches the ledger is a completed cycle.
type CycleState uint8

const (
	CycleIdle CycleState = iota
	CycleSignalComputed
	CycleRiskChecked
	CycleBlockedRisk
	CycleBlockedConfirm
	CycleDryRun
	CycleOrderPlaced
	CycleFilled
	CycleCancelled
	CycleFailed
	CycleLedgerRecorded
	CycleReconciled
)

func (s CycleState) String() string {
	switch s {
	case CycleIdle:
		return "idle"
	case CycleSignalComputed:
		return "signal_computed"
	case CycleRiskChecked:
		return "risk_checked"
	case CycleBlockedRisk:
		return "blocked_risk"
	case CycleBlockedConfirm:
		return "blocked_confirm"
	case CycleDryRun:
		return "dry_run"
	case CycleOrderPlaced:
		return "order_placed"
	case CycleFilled:
		return "filled"
	case CycleCancelled:
		return "cancelled"
	case CycleFailed:
		return "failed"
	case CycleLedgerRecorded:
		return "ledger_recorded"
	case CycleReconciled:
		return "reconciled"
	}
	return "unknown"
}

var cycleTransitions = map[CycleState][]CycleState{
	CycleIdle:           {CycleSignalComputed},
	CycleSignalComputed: {CycleRiskChecked, CycleBlockedRisk},
	CycleRiskChecked:    {CycleOrderPlaced, CycleBlockedConfirm, CycleDryRun, CycleFailed},
	CycleBlockedRisk:    {CycleLedgerRecorded},
	CycleBlockedConfirm: {CycleLedgerRecorded},
	CycleDryRun:         {CycleLedgerRecorded},
	CycleOrderPlaced:    {CycleFilled, CycleCancelled, CycleFailed},
	CycleFilled:         {CycleLedgerRecorded},
	CycleCancelled:      {CycleLedgerRecorded},
	CycleFailed:         {CycleLedgerRecorded},
	CycleLedgerRecorded: {CycleReconciled},
}

// Cycle is one symbol's pass through the decision pipeline.
type Cycle struct {
	Symbol    string
	StartedAt time.Time
	state     CycleState
}

// NewCycle starts a cycle in the idle state.
func NewCycle(symbol string) *Cycle {
	return &Cycle{Symbol: symbol, StartedAt: time.Now(), state: CycleIdle}
}

// State returns the current state.
func (c *Cycle) State() CycleState { return c.state }

// To advances the cycle, rejecting transitions the pipeline never makes.
func (c *Cycle) To(next CycleState) error {
	for _, allowed := range cycleTransitions[c.state] {
		if next == allowed {
			c.state = next
			return nil
		}
	}
	return ErrInvalidTransition
}
