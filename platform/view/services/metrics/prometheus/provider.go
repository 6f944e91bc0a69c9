/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package prometheus

import (
	"github.com/hyperledger-labs/fabric-gateway-events/platform/view/services/metrics"
	prom "github.com/prometheus/client_golang/prometheus"
)

const defaultNamespace = "fsc"

// Provider creates prometheus collectors and registers them on the given registerer
type Provider struct {
	Registerer      prom.Registerer
	SkipRegisterErr bool
}

func NewProvider(registerer prom.Registerer) *Provider {
	if registerer == nil {
		registerer = prom.DefaultRegisterer
	}
	return &Provider{Registerer: registerer}
}

func applyNamespace(namespace *string) {
	if len(*namespace) == 0 {
		*namespace = defaultNamespace
	}
}

func (p *Provider) NewCounter(o metrics.CounterOpts) metrics.Counter {
	applyNamespace(&o.Namespace)

	cv := prom.NewCounterVec(prom.CounterOpts{
		Namespace: o.Namespace,
		Subsystem: o.Subsystem,
		Name:      o.Name,
		Help:      o.Help,
	}, o.LabelNames)
	cv = p.register(cv).(*prom.CounterVec)
	return &Counter{vec: cv}
}

func (p *Provider) NewGauge(o metrics.GaugeOpts) metrics.Gauge {
	applyNamespace(&o.Namespace)

	gv := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: o.Namespace,
		Subsystem: o.Subsystem,
		Name:      o.Name,
		Help:      o.Help,
	}, o.LabelNames)
	gv = p.register(gv).(*prom.GaugeVec)
	return &Gauge{vec: gv}
}

func (p *Provider) NewHistogram(o metrics.HistogramOpts) metrics.Histogram {
	applyNamespace(&o.Namespace)

	hv := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: o.Namespace,
		Subsystem: o.Subsystem,
		Name:      o.Name,
		Help:      o.Help,
		Buckets:   o.Buckets,
	}, o.LabelNames)
	hv = p.register(hv).(*prom.HistogramVec)
	return &Histogram{vec: hv}
}

// register registers c and returns the collector to use.
// If an identical collector is already registered, the existing one is returned.
func (p *Provider) register(c prom.Collector) prom.Collector {
	err := p.Registerer.Register(c)
	if err == nil {
		return c
	}
	if are, ok := err.(prom.AlreadyRegisteredError); ok {
		return are.ExistingCollector
	}
	if !p.SkipRegisterErr {
		panic(err)
	}
	return c
}

// labels turns key/value pairs into prometheus labels. A trailing key without value is ignored.
func labels(pairs []string) prom.Labels {
	res := make(prom.Labels, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		res[pairs[i]] = pairs[i+1]
	}
	return res
}

func with(current []string, pairs []string) []string {
	res := make([]string, 0, len(current)+len(pairs))
	res = append(res, current...)
	return append(res, pairs...)
}

// Counter is a counter vector bound to a set of label key/value pairs
type Counter struct {
	vec    *prom.CounterVec
	labels []string
}

func (c *Counter) With(labelValues ...string) metrics.Counter {
	return &Counter{vec: c.vec, labels: with(c.labels, labelValues)}
}

func (c *Counter) Add(delta float64) { c.vec.With(labels(c.labels)).Add(delta) }

type Gauge struct {
	vec    *prom.GaugeVec
	labels []string
}

func (g *Gauge) With(labelValues ...string) metrics.Gauge {
	return &Gauge{vec: g.vec, labels: with(g.labels, labelValues)}
}

func (g *Gauge) Add(delta float64) { g.vec.With(labels(g.labels)).Add(delta) }

func (g *Gauge) Set(value float64) { g.vec.With(labels(g.labels)).Set(value) }

type Histogram struct {
	vec    *prom.HistogramVec
	labels []string
}

func (h *Histogram) With(labelValues ...string) metrics.Histogram {
	return &Histogram{vec: h.vec, labels: with(h.labels, labelValues)}
}

func (h *Histogram) Observe(value float64) { h.vec.With(labels(h.labels)).Observe(value) }
