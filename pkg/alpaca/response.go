package alpaca

import (
	"encoding/json"
	"strconv"
	"sync/atomic"

	"github.com/hashicorp/go-metrics"
	log "github.com/sirupsen/logrus"
)

// TransactionCounter numbers every Alpaca response sent by one server.
// The zero value is ready to use and starts at 0.
type TransactionCounter struct {
	n atomic.Uint32
}

// Next increments the counter and returns the new value.
func (c *TransactionCounter) Next() uint32 {
	return c.n.Add(1)
}

// Current returns the last value handed out.
func (c *TransactionCounter) Current() uint32 {
	return c.n.Load()
}

type baseResponse struct {
	Value               any    `json:"Value,omitempty"`
	ErrorMessage        string `json:"ErrorMessage"`
	ErrorNumber         int    `json:"ErrorNumber"`
	ClientTransactionID uint32 `json:"ClientTransactionID"`
	ServerTransactionID uint32 `json:"ServerTransactionID"`
}

// Responder builds the standard Alpaca envelope and sends it through an Exchange.
// All devices and the management API of a server share one Responder so that
// server transaction ids form a single sequence.
type Responder struct {
	counter *TransactionCounter
	logger  log.FieldLogger
	msink   metrics.MetricSink
}

// NewResponder creates a Responder that draws ids from counter.
func NewResponder(counter *TransactionCounter, logger log.FieldLogger, sink metrics.MetricSink) *Responder {
	if sink == nil {
		sink = metrics.Default()
	}
	return &Responder{
		counter: counter,
		logger:  logger,
		msink:   sink,
	}
}

// Value reports a successful result.
func (r *Responder) Value(ex Exchange, value any) {
	r.send(ex, baseResponse{Value: value}, true)
}

// Error reports a failure without a value.
func (r *Responder) Error(ex Exchange, err error) {
	resp := baseResponse{}
	code, msg := errorFields(err)
	resp.ErrorNumber, resp.ErrorMessage = int(code), msg
	r.send(ex, resp, false)
}

// ValueWithError reports a value together with an optional error.
func (r *Responder) ValueWithError(ex Exchange, value any, err error) {
	resp := baseResponse{Value: value}
	code, msg := errorFields(err)
	resp.ErrorNumber, resp.ErrorMessage = int(code), msg
	r.send(ex, resp, true)
}

func (r *Responder) send(ex Exchange, resp baseResponse, withValue bool) {
	args := ex.Args()
	resp.ClientTransactionID = ClientTransactionID(args)
	resp.ServerTransactionID = r.counter.Next()

	body, err := json.Marshal(resp)
	if err != nil {
		r.logger.Errorf("Error encoding response for %s: %v", ex.URI(), err)
		fallback := baseResponse{
			ErrorMessage:        "cannot encode value: " + err.Error(),
			ErrorNumber:         int(ErrCodeUnspecified),
			ClientTransactionID: resp.ClientTransactionID,
			ServerTransactionID: resp.ServerTransactionID,
		}
		// Encoding a value-less envelope cannot fail.
		body, _ = json.Marshal(fallback)
		resp = fallback
	}

	if resp.ErrorNumber != 0 {
		r.msink.IncrCounterWithLabels(MetricResponseErrorCount, 1, []metrics.Label{LabelErrorNumber.Int(resp.ErrorNumber)})
	}
	r.msink.IncrCounter(MetricResponseCount, 1)

	r.logger.WithFields(log.Fields{
		"client_id":  ClientID(args),
		"client_tx":  resp.ClientTransactionID,
		"server_tx":  resp.ServerTransactionID,
		"with_value": withValue,
	}).Debugf("    >>>> %s", body)

	if err := ex.SendJSON(body); err != nil {
		r.logger.Debugf("Error writing response: %v", err)
	}
}

// ClientTransactionID returns the ClientTransactionID argument of a request.
// The exact name is preferred; any other casing found among the arguments is
// accepted. Missing or non-numeric values give 0.
func ClientTransactionID(args Args) uint32 {
	return uintArg(args, "ClientTransactionID")
}

// ClientID returns the ClientID argument, resolved the same way as
// ClientTransactionID (so "clientId" is accepted too).
func ClientID(args Args) uint32 {
	return uintArg(args, "ClientID")
}

func uintArg(args Args, name string) uint32 {
	v, ok := args.Resolve(name)
	if !ok {
		return 0
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0
	}
	return uint32(n)
}
