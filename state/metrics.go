package state

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "state"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Time spent executing the transactions of a block, in milliseconds.
	BlockProcessingTime metrics.Histogram
	// Number of executed transactions, labeled by result.
	Txs metrics.Counter
	// Number of claims created.
	ClaimsCreated metrics.Counter
	// Number of claims revoked.
	ClaimsRevoked metrics.Counter
	// Number of transactions waiting in the mempool.
	MempoolSize metrics.Gauge
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
// Optionally, labels can be provided along with their values ("foo",
// "fooValue").
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		BlockProcessingTime: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "block_processing_time",
			Help:      "Time spent executing the transactions of a block, in milliseconds.",

			Buckets: stdprometheus.LinearBuckets(1, 10, 10),
		}, labels).With(labelsAndValues...),
		Txs: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "txs",
			Help:      "Number of executed transactions.",
		}, append(labels, "result")).With(labelsAndValues...),
		ClaimsCreated: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "claims_created",
			Help:      "Number of claims created.",
		}, labels).With(labelsAndValues...),
		ClaimsRevoked: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "claims_revoked",
			Help:      "Number of claims revoked.",
		}, labels).With(labelsAndValues...),
		MempoolSize: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "mempool_size",
			Help:      "Number of transactions waiting in the mempool.",
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		BlockProcessingTime: discard.NewHistogram(),
		Txs:                 discard.NewCounter(),
		ClaimsCreated:       discard.NewCounter(),
		ClaimsRevoked:       discard.NewCounter(),
		MempoolSize:         discard.NewGauge(),
	}
}
