/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package prometheus

import (
	"testing"

	"github.com/hyperledger-labs/fabric-gateway-events/platform/view/services/metrics"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterWithLabels(t *testing.T) {
	registry := prom.NewRegistry()
	p := NewProvider(registry)

	c := p.NewCounter(metrics.CounterOpts{Subsystem: "delivery", Name: "dropped_blocks", Help: "h", LabelNames: []string{"reason"}})
	c.With("reason", "stale").Add(2)
	c.With("reason", "duplicate").Add(1)

	vec := c.(*Counter).vec
	assert.Equal(t, 2.0, testutil.ToFloat64(vec.WithLabelValues("stale")))
	assert.Equal(t, 1.0, testutil.ToFloat64(vec.WithLabelValues("duplicate")))
}

func TestGaugeAndHistogram(t *testing.T) {
	registry := prom.NewRegistry()
	p := NewProvider(registry)

	g := p.NewGauge(metrics.GaugeOpts{Name: "pending_blocks", Help: "h"})
	g.Set(3)
	g.Add(-1)
	assert.Equal(t, 2.0, testutil.ToFloat64(g.(*Gauge).vec.WithLabelValues()))

	h := p.NewHistogram(metrics.HistogramOpts{Name: "wait_seconds", Help: "h", Buckets: prom.DefBuckets})
	h.Observe(0.2)
	assert.Equal(t, 1, testutil.CollectAndCount(h.(*Histogram).vec))
}

func TestRegisterTwiceReusesCollector(t *testing.T) {
	registry := prom.NewRegistry()
	p := NewProvider(registry)

	opts := metrics.CounterOpts{Name: "delivered_blocks", Help: "h"}
	c1 := p.NewCounter(opts)
	c2 := p.NewCounter(opts)
	c1.Add(1)
	c2.Add(1)

	require.Same(t, c1.(*Counter).vec, c2.(*Counter).vec)
	assert.Equal(t, 2.0, testutil.ToFloat64(c1.(*Counter).vec.WithLabelValues()))
}
