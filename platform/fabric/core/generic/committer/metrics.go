/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package committer

import (
	"github.com/hyperledger-labs/fabric-gateway-events/platform/view/services/metrics"
)

const (
	resultLabel     = "result"
	resultSuccess   = "success"
	resultFail      = "fail"
	resultTimeout   = "timeout"
	resultCancelled = "cancelled"
)

type Metrics struct {
	Results      metrics.Counter
	WaitDuration metrics.Histogram
}

func NewMetrics(p metrics.Provider) *Metrics {
	return &Metrics{
		Results: p.NewCounter(metrics.CounterOpts{
			Subsystem:  "committer",
			Name:       "commit_results",
			Help:       "Outcome of the commit waits",
			LabelNames: []string{resultLabel},
		}),
		WaitDuration: p.NewHistogram(metrics.HistogramOpts{
			Subsystem: "committer",
			Name:      "commit_wait_seconds",
			Help:      "Time spent waiting for a commit decision",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
}
