package core

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder receives one observation per service operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

// PrometheusMetricsRecorder counts operations by outcome and tracks their latency.
type PrometheusMetricsRecorder struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder registers the operation metrics under namespace.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer, namespace string) (*PrometheusMetricsRecorder, error) {
	r := &PrometheusMetricsRecorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Ledger operations by name and outcome.",
		}, []string{"operation", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Ledger operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	for _, c := range []prometheus.Collector{r.operations, r.durations} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return r, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	r.operations.WithLabelValues(operation, status).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

// PoolCapacityCollector exports pool capacity gauges read from the store at
// scrape time.
type PoolCapacityCollector struct {
	store     PersistentStore
	total     *prometheus.Desc
	available *prometheus.Desc
}

// NewPoolCapacityCollector builds a collector over store.
func NewPoolCapacityCollector(store PersistentStore, namespace string) *PoolCapacityCollector {
	labels := []string{"pool", "product"}
	return &PoolCapacityCollector{
		store:     store,
		total:     prometheus.NewDesc(prometheus.BuildFQName(namespace, "pool", "total_quantity"), "Licenses owned by the pool.", labels, nil),
		available: prometheus.NewDesc(prometheus.BuildFQName(namespace, "pool", "available_quantity"), "Licenses not held by an allocation.", labels, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *PoolCapacityCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.total
	ch <- c.available
}

// Collect implements prometheus.Collector.
func (c *PoolCapacityCollector) Collect(ch chan<- prometheus.Metric) {
	_ = c.store.View(context.Background(), func(view TransactionView) error {
		for _, pool := range view.ListPools() {
			product := pool.ProductID
			if p, ok := view.FindProduct(pool.ProductID); ok {
				product = p.Name
			}
			ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(pool.TotalQuantity), pool.ID, product)
			ch <- prometheus.MustNewConstMetric(c.available, prometheus.GaugeValue, float64(pool.AvailableQty), pool.ID, product)
		}
		return nil
	})
}
