package schema

// ReconcileReason classifies the outcome of a reconciliation run. Callers
// branch on the reason, not on a generic error: transient kinds are retried,
// Auth and Unknown halt the run.
type ReconcileReason string

const (
	ReconcileOK            ReconcileReason = "OK"
	ReconcileSkipped       ReconcileReason = "SKIPPED"
	ReconcileDiscrepancies ReconcileReason = "DISCREPANCIES"
	ReconcileAuth          ReconcileReason = "AUTH"
	ReconcileRateLimit     ReconcileReason = "RATE_LIMIT"
	ReconcileTimeSkew      ReconcileReason = "TIME_SKEW"
	ReconcileNetwork       ReconcileReason = "NETWORK"
	ReconcileExchangeDown  ReconcileReason = "EXCHANGE_DOWN"
	ReconcileUnknown       ReconcileReason = "UNKNOWN"
)

// ReconcileResult is the persisted outcome of one reconciliation.
type ReconcileResult struct {
	OK            bool              `json:"ok"`
	TsMs          int64             `json:"ts"`
	Reason        ReconcileReason   `json:"reason"`
	Discrepancies []string          `json:"discrepancies,omitempty"`
	Details       map[string]string `json:"details,omitempty"`
}
