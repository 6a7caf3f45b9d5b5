// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package host

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "fheswap"

// Metrics counts executor calls by name.
type Metrics struct {
	calls    *prometheus.CounterVec
	reverted *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewMetrics registers the executor collectors with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "executor",
			Name:      "calls_total",
			Help:      "Contract calls run by the executor.",
		}, []string{"call"}),
		reverted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "executor",
			Name:      "reverted_total",
			Help:      "Contract calls whose writes were rolled back.",
		}, []string{"call"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "executor",
			Name:      "call_seconds",
			Help:      "Wall time of a contract call including commit.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"call"}),
	}
	for _, c := range []prometheus.Collector{m.calls, m.reverted, m.latency} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(name string, start time.Time, reverted bool) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(name).Inc()
	if reverted {
		m.reverted.WithLabelValues(name).Inc()
	}
	m.latency.WithLabelValues(name).Observe(time.Since(start).Seconds())
}
