package schema

// Signal values emitted by strategies.
const (
	SignalSell = -1
	SignalHold = 0
	SignalBuy  = 1
)

// SignalMeta carries provenance for a signal, including strategy fallback
// information. Fallbacks must stay visible to downstream trade records, so
// they travel with the result instead of being logged and dropped.
type SignalMeta struct {
	StrategyID       string `json:"strategy_id"`
	OriginalStrategy string `json:"original_strategy,omitempty"`
	FallbackStrategy string `json:"fallback_strategy,omitempty"`
	FallbackReason   string `json:"fallback_reason,omitempty"`
}

// FellBack reports whether the resolver substituted another strategy.
func (m SignalMeta) FellBack() bool {
	return m.FallbackStrategy != ""
}

// SignalResult is the outcome of one strategy evaluation.
type SignalResult struct {
	Signal     int        `json:"signal"`
	Entry      *float64   `json:"entry,omitempty"`
	Stop       *float64   `json:"stop,omitempty"`
	Confidence float64    `json:"confidence"`
	Reasons    []string   `json:"reasons"`
	Meta       SignalMeta `json:"meta"`
}

// Hold builds a no-signal result with the given reason.
func Hold(reason string) SignalResult {
	return SignalResult{Signal: SignalHold, Reasons: []string{reason}}
}
