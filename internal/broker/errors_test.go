package broker

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"trader/internal/schema"
)

type fakeNetError struct{ msg string }

func (e fakeNetError) Error() string   { return e.msg }
func (e fakeNetError) Timeout() bool   { return true }
func (e fakeNetError) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"broker error", newError(KindRateLimit, "fetch ticker", stderrors.New("429")), KindRateLimit},
		{"wrapped broker error", fmt.Errorf("cycle failed: %w", newError(KindAuth, "create order", stderrors.New("401"))), KindAuth},
		{"net error", fakeNetError{msg: "dial tcp: i/o timeout"}, KindNetwork},
		{"deadline", context.DeadlineExceeded, KindNetwork},
		{"time skew code", stderrors.New(`{"code":-1021,"msg":"Timestamp outside recvWindow"}`), KindTimeSkew},
		{"plain error", stderrors.New("something else"), KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestKindReconcileReason(t *testing.T) {
	assert.Equal(t, schema.ReconcileAuth, KindAuth.ReconcileReason())
	assert.Equal(t, schema.ReconcileRateLimit, KindRateLimit.ReconcileReason())
	assert.Equal(t, schema.ReconcileTimeSkew, KindTimeSkew.ReconcileReason())
	assert.Equal(t, schema.ReconcileNetwork, KindNetwork.ReconcileReason())
	assert.Equal(t, schema.ReconcileExchangeDown, KindExchangeDown.ReconcileReason())
	assert.Equal(t, schema.ReconcileUnknown, KindUnknown.ReconcileReason())
}

func TestKindHalting(t *testing.T) {
	assert.True(t, KindAuth.Halting())
	assert.True(t, KindUnknown.Halting())
	assert.False(t, KindRateLimit.Halting())
	assert.False(t, KindNetwork.Halting())
	assert.False(t, KindTimeSkew.Halting())
	assert.False(t, KindExchangeDown.Halting())
}

func TestErrorFormatAndUnwrap(t *testing.T) {
	inner := stderrors.New("connection refused")
	err := newError(KindNetwork, "fetch balance", inner)
	assert.Equal(t, "broker fetch balance: NETWORK: connection refused", err.Error())
	assert.True(t, stderrors.Is(err, inner))
}
