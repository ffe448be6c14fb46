// Package metrics exposes index size and write-queue activity as Prometheus
// metrics and renders summary reports of an index.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/standardbeagle/relidx/internal/core"
)

const namespace = "relidx"

// IndexCollector reports the size of a live index at scrape time
type IndexCollector struct {
	index *core.RelationshipIndex

	relationships *prometheus.Desc
	keys          *prometheus.Desc
	units         *prometheus.Desc
	subjects      *prometheus.Desc
	attributes    *prometheus.Desc
}

// NewIndexCollector creates a collector for idx
func NewIndexCollector(idx *core.RelationshipIndex) *IndexCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "index", name), help, nil, nil)
	}
	return &IndexCollector{
		index:         idx,
		relationships: desc("relationships", "Live facts in the index"),
		keys:          desc("keys", "Subjects with at least one fact"),
		units:         desc("units", "Units with live contributions"),
		subjects:      desc("declared_subjects", "Subjects tracked as declared by a unit"),
		attributes:    desc("attributes", "Stored attribute values"),
	}
}

// Describe implements prometheus.Collector
func (c *IndexCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.relationships
	ch <- c.keys
	ch <- c.units
	ch <- c.subjects
	ch <- c.attributes
}

// Collect implements prometheus.Collector
func (c *IndexCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.index.Stats()
	ch <- prometheus.MustNewConstMetric(c.relationships, prometheus.GaugeValue, float64(stats.Relationships))
	ch <- prometheus.MustNewConstMetric(c.keys, prometheus.GaugeValue, float64(stats.Keys))
	ch <- prometheus.MustNewConstMetric(c.units, prometheus.GaugeValue, float64(stats.Units))
	ch <- prometheus.MustNewConstMetric(c.subjects, prometheus.GaugeValue, float64(stats.Subjects))
	ch <- prometheus.MustNewConstMetric(c.attributes, prometheus.GaugeValue, float64(stats.Attributes))
}

// OperationMetrics counts and times operations applied by the write queue.
// It satisfies indexing.Observer.
type OperationMetrics struct {
	// Labels: op (index, remove, retract, retract_declared, clear, query, sync)
	Operations *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
}

// NewOperationMetrics creates unregistered operation metrics
func NewOperationMetrics() *OperationMetrics {
	return &OperationMetrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "queue",
				Name:      "operations_total",
				Help:      "Operations applied by the write queue",
			},
			[]string{"op"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "queue",
				Name:      "operation_duration_seconds",
				Help:      "Time spent applying one operation",
				Buckets:   []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
			},
			[]string{"op"},
		),
	}
}

// ObserveOperation records one applied operation
func (m *OperationMetrics) ObserveOperation(op string, elapsed time.Duration) {
	m.Operations.WithLabelValues(op).Inc()
	m.Duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// Register adds an index collector for idx and the collectors of ops to reg
func Register(reg prometheus.Registerer, idx *core.RelationshipIndex, ops *OperationMetrics) error {
	for _, c := range []prometheus.Collector{NewIndexCollector(idx), ops.Operations, ops.Duration} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
