// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics implements the typed metrics sink (§4.10): a channel
// of Metric values is translated into Prometheus counters/histograms,
// each package-scoped adapter (StoreMetrics, ForwarderMetrics, ...)
// exposing only the narrow set of metrics that package records.
package metrics

import (
	"context"

	"github.com/plantdata/rtds/pkg/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Name enumerates the metric kinds named in §4.10.
type Name int

const (
	ScanCycleLatency Name = iota
	TagCounter
	ConnectorCounter
	ConnectorDuration
	StoreDuration
	ScriptDuration
	KafkaProducerDuration
)

// Metric is the typed message carried on the sink's input channel.
type Metric struct {
	Name   Name
	Value  float64
	Labels map[string]string
}

var (
	scanCycleLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "rtds",
		Name:      "scan_cycle_latency_seconds",
		Help:      "Duration of one scan-loop cycle (connector drain + script run).",
		Buckets:   prometheus.LinearBuckets(0.01, 0.01, 10), // narrow: cycle budget is 100ms
	})

	tagCounter = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rtds",
		Name:      "tag_count",
		Help:      "Number of tags registered in the snapshot.",
	})

	connectorCounter = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rtds",
		Name:      "connector_count",
		Help:      "Number of connector workers started.",
	})

	connectorDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rtds",
		Name:      "connector_duration_seconds",
		Help:      "Duration of a connector lifecycle step.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // broad: device I/O varies widely
	}, []string{"connector", "method", "status"})

	storeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rtds",
		Name:      "store_duration_seconds",
		Help:      "Duration of a store operation (batch_write, currents_write, delete_old_history).",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // broad
	}, []string{"method", "status"})

	scriptDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rtds",
		Name:      "script_duration_seconds",
		Help:      "Duration of one script execution.",
		Buckets:   prometheus.LinearBuckets(0.001, 0.002, 10), // narrow
	}, []string{"script", "status"})

	kafkaProducerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rtds",
		Name:      "forwarder_duration_seconds",
		Help:      "Duration of one forwarder send-and-commit cycle.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // broad
	}, []string{"status"})
)

// Sink reads Metric values off a channel and forwards each to the
// matching Prometheus collector.
type Sink struct {
	ch chan Metric
}

const sinkBuffer = 4096

// NewSink constructs a sink with its own buffered input channel.
func NewSink() *Sink {
	return &Sink{ch: make(chan Metric, sinkBuffer)}
}

// Chan returns the channel producers should send Metric values on.
func (s *Sink) Chan() chan<- Metric { return s.ch }

// Run drains the channel until ctx is cancelled.
func (s *Sink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-s.ch:
			s.apply(m)
		}
	}
}

func (s *Sink) apply(m Metric) {
	switch m.Name {
	case ScanCycleLatency:
		scanCycleLatency.Observe(m.Value)
	case TagCounter:
		tagCounter.Set(m.Value)
	case ConnectorCounter:
		connectorCounter.Set(m.Value)
	case ConnectorDuration:
		connectorDuration.WithLabelValues(m.Labels["connector"], m.Labels["method"], m.Labels["status"]).Observe(m.Value)
	case StoreDuration:
		storeDuration.WithLabelValues(m.Labels["method"], m.Labels["status"]).Observe(m.Value)
	case ScriptDuration:
		scriptDuration.WithLabelValues(m.Labels["script"], m.Labels["status"]).Observe(m.Value)
	case KafkaProducerDuration:
		kafkaProducerDuration.WithLabelValues(m.Labels["status"]).Observe(m.Value)
	default:
		log.Warnf("metrics: unknown metric name %d", m.Name)
	}
}

// ConnectorMetrics adapts a Sink into connector.MetricsSink without
// internal/connector needing to import this package (it only depends
// on the small interface it declares).
type ConnectorMetrics struct{ Sink *Sink }

func (c ConnectorMetrics) ObserveConnectorDuration(connectorName, method, status string, seconds float64) {
	c.Sink.ch <- Metric{
		Name:   ConnectorDuration,
		Value:  seconds,
		Labels: map[string]string{"connector": connectorName, "method": method, "status": status},
	}
}

// StoreMetrics adapts a Sink into the store package's narrow metrics seam.
type StoreMetrics struct{ Sink *Sink }

func (s StoreMetrics) ObserveStoreDuration(method, status string, seconds float64) {
	s.Sink.ch <- Metric{Name: StoreDuration, Value: seconds, Labels: map[string]string{"method": method, "status": status}}
}

// ScriptMetrics adapts a Sink into the script package's narrow metrics seam.
type ScriptMetrics struct{ Sink *Sink }

func (s ScriptMetrics) ObserveScriptDuration(script, status string, seconds float64) {
	s.Sink.ch <- Metric{Name: ScriptDuration, Value: seconds, Labels: map[string]string{"script": script, "status": status}}
}

// ForwarderMetrics adapts a Sink into the forwarder package's narrow metrics seam.
type ForwarderMetrics struct{ Sink *Sink }

func (f ForwarderMetrics) ObserveForwarderDuration(status string, seconds float64) {
	f.Sink.ch <- Metric{Name: KafkaProducerDuration, Value: seconds, Labels: map[string]string{"status": status}}
}
