/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package delivery

import (
	"github.com/hyperledger-labs/fabric-gateway-events/platform/view/services/metrics"
)

const (
	reasonLabel     = "reason"
	reasonStale     = "stale"
	reasonDuplicate = "duplicate"
)

type Metrics struct {
	Delivered        metrics.Counter
	Dropped          metrics.Counter
	Pending          metrics.Gauge
	ListenerFailures metrics.Counter
}

func NewMetrics(p metrics.Provider) *Metrics {
	return &Metrics{
		Delivered: p.NewCounter(metrics.CounterOpts{
			Subsystem: "delivery",
			Name:      "delivered_blocks",
			Help:      "Number of blocks delivered in order to the listeners",
		}),
		Dropped: p.NewCounter(metrics.CounterOpts{
			Subsystem:  "delivery",
			Name:       "dropped_blocks",
			Help:       "Number of blocks dropped because already delivered or already pending",
			LabelNames: []string{reasonLabel},
		}),
		Pending: p.NewGauge(metrics.GaugeOpts{
			Subsystem: "delivery",
			Name:      "pending_blocks",
			Help:      "Number of blocks waiting for a missing predecessor",
		}),
		ListenerFailures: p.NewCounter(metrics.CounterOpts{
			Subsystem: "delivery",
			Name:      "listener_failures",
			Help:      "Number of block listener invocations that failed",
		}),
	}
}
