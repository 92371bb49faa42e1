package alpaca

import (
	"strconv"

	"github.com/hashicorp/go-metrics"
)

var (
	MetricResponseCount         = []string{"alpaca", "response", "count"}
	MetricResponseErrorCount    = []string{"alpaca", "response", "error", "count"}
	MetricNotFoundCount         = []string{"alpaca", "http", "notfound", "count"}
	MetricDiscoveryReplyCount   = []string{"alpaca", "discovery", "reply", "count"}
	MetricDiscoveryDroppedCount = []string{"alpaca", "discovery", "dropped", "count"}
)

type TelemetryLabel string

var (
	LabelReason      TelemetryLabel = "reason"
	LabelErrorNumber TelemetryLabel = "error_number"
)

func (lab TelemetryLabel) M(val string) metrics.Label {
	return metrics.Label{Name: string(lab), Value: val}
}

func (lab TelemetryLabel) Int(val int) metrics.Label {
	return lab.M(strconv.Itoa(val))
}
