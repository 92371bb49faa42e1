package alpaca

import (
	"errors"
	"testing"
	"time"

	"github.com/hashicorp/go-metrics"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

func newTestResponder() (*Responder, *TransactionCounter, *metrics.InmemSink) {
	logger, _ := test.NewNullLogger()
	sink := metrics.NewInmemSink(time.Minute, time.Minute)
	counter := &TransactionCounter{}
	return NewResponder(counter, logger, sink), counter, sink
}

func TestResponderValue(t *testing.T) {
	resp, _, _ := newTestResponder()

	ex := &fakeExchange{method: "GET", uri: "/x", args: Args{{"ClientTransactionID", "42"}}}
	resp.Value(ex, false)

	env := ex.envelope(t)
	assert.Len(t, env, 5)
	assert.Equal(t, false, env["Value"])
	assert.Equal(t, "", env["ErrorMessage"])
	assert.Equal(t, float64(0), env["ErrorNumber"])
	assert.Equal(t, float64(42), env["ClientTransactionID"])
	assert.Equal(t, float64(1), env["ServerTransactionID"])
	assert.Equal(t, contentTypeJSON, ex.contentType)
}

func TestResponderServerTransactionIDSequence(t *testing.T) {
	resp, counter, sink := newTestResponder()

	for i := 1; i <= 5; i++ {
		ex := &fakeExchange{method: "GET", uri: "/x"}
		if i%2 == 0 {
			resp.Value(ex, "v")
		} else {
			resp.Error(ex, ErrNotConnected)
		}
		assert.Equal(t, float64(i), ex.envelope(t)["ServerTransactionID"])
	}

	assert.Equal(t, uint32(5), counter.Current())
	assert.Equal(t, 5, counterValue(sink, "alpaca.response.count"))
	assert.Equal(t, 3, counterValue(sink, "alpaca.response.error.count;error_number=1031"))
}

func TestResponderClientTransactionID(t *testing.T) {
	tests := []struct {
		name     string
		args     Args
		expected float64
	}{
		{"absent", nil, 0},
		{"exact", Args{{"ClientID", "1"}, {"ClientTransactionID", "12"}}, 12},
		{"lower camel anywhere", Args{{"Connected", "True"}, {"clientTransactionId", "8"}}, 8},
		{"exact preferred", Args{{"clienttransactionid", "3"}, {"ClientTransactionID", "4"}}, 4},
		{"non numeric", Args{{"ClientTransactionID", "abc"}}, 0},
		{"negative", Args{{"ClientTransactionID", "-5"}}, 0},
		{"overflow", Args{{"ClientTransactionID", "4294967296"}}, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, _, _ := newTestResponder()
			ex := &fakeExchange{method: "GET", uri: "/x", args: tc.args}
			resp.Value(ex, 1)
			assert.Equal(t, tc.expected, ex.envelope(t)["ClientTransactionID"])
		})
	}
}

func TestClientID(t *testing.T) {
	assert.Equal(t, uint32(7), ClientID(Args{{"clientId", "7"}}))
	assert.Equal(t, uint32(2), ClientID(Args{{"clientId", "7"}, {"ClientID", "2"}}))
	assert.Equal(t, uint32(0), ClientID(nil))
}

func TestResponderError(t *testing.T) {
	resp, _, _ := newTestResponder()

	ex := &fakeExchange{method: "PUT", uri: "/x"}
	resp.Error(ex, NewError(ErrCodeInvalidValue, "bad value %d", 3))

	env := ex.envelope(t)
	assert.NotContains(t, env, "Value")
	assert.Equal(t, float64(0x401), env["ErrorNumber"])
	assert.Equal(t, "bad value 3", env["ErrorMessage"])
	assert.Equal(t, float64(1), env["ServerTransactionID"])

	ex = &fakeExchange{method: "PUT", uri: "/x"}
	resp.Error(ex, errors.New("boom"))
	env = ex.envelope(t)
	assert.Equal(t, float64(ErrCodeUnspecified), env["ErrorNumber"])
	assert.Equal(t, "boom", env["ErrorMessage"])
}

func TestResponderValueWithError(t *testing.T) {
	resp, _, _ := newTestResponder()

	ex := &fakeExchange{method: "GET", uri: "/x"}
	resp.ValueWithError(ex, 12, ErrPropertyNotImplemented)
	env := ex.envelope(t)
	assert.Equal(t, float64(12), env["Value"])
	assert.Equal(t, float64(0x400), env["ErrorNumber"])

	ex = &fakeExchange{method: "GET", uri: "/x"}
	resp.ValueWithError(ex, "ok", nil)
	env = ex.envelope(t)
	assert.Equal(t, "ok", env["Value"])
	assert.Equal(t, float64(0), env["ErrorNumber"])
	assert.Equal(t, "", env["ErrorMessage"])
}

func TestResponderUnencodableValue(t *testing.T) {
	resp, counter, _ := newTestResponder()

	ex := &fakeExchange{method: "GET", uri: "/x"}
	resp.Value(ex, make(chan int))

	env := ex.envelope(t)
	assert.NotContains(t, env, "Value")
	assert.Equal(t, float64(ErrCodeUnspecified), env["ErrorNumber"])
	assert.Equal(t, float64(1), env["ServerTransactionID"])
	assert.Equal(t, uint32(1), counter.Current())
}
