// Package sim is the deterministic paper-trading simulator: per-symbol
// financial state plus the candle replay loop that mutates it. Nothing in
// this package reads the wall clock or randomness; replaying the same candles
// from the same persisted state always produces the same result.
package sim

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// State is the persisted simulation state for one symbol. It is exclusively
// owned by the simulator processing that symbol; symbols never share state.
type State struct {
	CashQuote       float64  `json:"cash_quote"`
	PosBase         float64  `json:"pos_base"`
	LastTs          *int64   `json:"last_ts"`
	PrevDiff        *float64 `json:"prev_diff"`
	PeakEquityQuote *float64 `json:"peak_equity_quote"`
	MaxDrawdownPct  float64  `json:"max_drawdown_pct"`
	TradesTotal     uint64   `json:"trades_total"`
}

// NewState creates a fresh state with the given starting cash.
func NewState(initialCash float64) State {
	return State{CashQuote: initialCash}
}

// Equity marks the state to market at the given price.
func (s State) Equity(price float64) float64 {
	return s.CashQuote + s.PosBase*price
}

// Reset returns a fresh state that keeps the cumulative trade counter, which
// is the audit trail's only surviving link to the discarded history.
func (s State) Reset(initialCash float64) State {
	return State{CashQuote: initialCash, TradesTotal: s.TradesTotal}
}

// LoadState reads a per-symbol state file. A missing file yields a fresh
// state. A corrupt file is recoverable: it resets to a fresh state with a
// logged warning rather than aborting the run, keeping whatever cumulative
// trade counter can still be salvaged from the broken file.
func LoadState(path string, initialCash float64) (State, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewState(initialCash), nil
	}
	if err != nil {
		return State{}, errors.Wrap(err, "read state file")
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		logs.Warnf("state file %s is corrupt, resetting: %+v", path, err)
		fresh := NewState(initialCash)
		fresh.TradesTotal = salvageTradesTotal(data)
		return fresh, nil
	}
	return s, nil
}

var tradesTotalPattern = regexp.MustCompile(`"trades_total"\s*:\s*(\d+)`)

// salvageTradesTotal pulls the cumulative trade counter out of a state file
// that no longer parses as JSON. The counter is the audit trail's only link
// across resets, so truncated or garbled files must not silently zero it.
func salvageTradesTotal(data []byte) uint64 {
	m := tradesTotalPattern.FindSubmatch(data)
	if m == nil {
		return 0
	}
	n, err := strconv.ParseUint(string(m[1]), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// SaveState persists the state atomically: write a temp file in the target
// directory, then rename over the destination.
func SaveState(path string, s State) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal state")
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create state dir")
		}
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create temp state file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "write temp state file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "close temp state file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "rename state file")
	}
	return nil
}
