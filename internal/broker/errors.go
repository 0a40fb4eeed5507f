package broker

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"strings"

	"trader/internal/schema"
)

// Kind classifies a broker failure. The caller's retry and alert behavior is
// driven by the kind, never by string matching on a generic error.
type Kind string

const (
	KindAuth         Kind = "AUTH"
	KindRateLimit    Kind = "RATE_LIMIT"
	KindTimeSkew     Kind = "TIME_SKEW"
	KindNetwork      Kind = "NETWORK"
	KindExchangeDown Kind = "EXCHANGE_DOWN"
	KindUnknown      Kind = "UNKNOWN"
)

// Error is a classified broker failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("broker %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Classify returns the failure kind of err. Unwrapped, unrecognized errors
// are Unknown, which is deliberately not retryable.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var be *Error
	if stderrors.As(err, &be) {
		return be.Kind
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return KindNetwork
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	// Exchange time-skew rejections surface as a vendor code.
	if strings.Contains(err.Error(), "-1021") {
		return KindTimeSkew
	}
	return KindUnknown
}

// ReconcileReason maps a failure kind to its reconcile-result reason.
func (k Kind) ReconcileReason() schema.ReconcileReason {
	switch k {
	case KindAuth:
		return schema.ReconcileAuth
	case KindRateLimit:
		return schema.ReconcileRateLimit
	case KindTimeSkew:
		return schema.ReconcileTimeSkew
	case KindNetwork:
		return schema.ReconcileNetwork
	case KindExchangeDown:
		return schema.ReconcileExchangeDown
	default:
		return schema.ReconcileUnknown
	}
}

// Halting reports whether the kind must abort the run instead of retrying.
func (k Kind) Halting() bool {
	return k == KindAuth || k == KindUnknown
}
