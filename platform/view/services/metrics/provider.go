/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package metrics

// Provider creates the metric instruments used by the event services
type Provider interface {
	NewCounter(opts CounterOpts) Counter
	NewGauge(opts GaugeOpts) Gauge
	NewHistogram(opts HistogramOpts) Histogram
}

type Counter interface {
	// With returns a Counter bound to the given label values
	With(labelValues ...string) Counter
	Add(delta float64)
}

type Gauge interface {
	With(labelValues ...string) Gauge
	Add(delta float64)
	Set(value float64)
}

type Histogram interface {
	With(labelValues ...string) Histogram
	Observe(value float64)
}

type CounterOpts struct {
	Namespace  string
	Subsystem  string
	Name       string
	Help       string
	LabelNames []string
}

type GaugeOpts struct {
	Namespace  string
	Subsystem  string
	Name       string
	Help       string
	LabelNames []string
}

type HistogramOpts struct {
	Namespace  string
	Subsystem  string
	Name       string
	Help       string
	Buckets    []float64
	LabelNames []string
}
