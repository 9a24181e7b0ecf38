// Package metrics wires Prometheus collectors for the op-management core
// and storage engine: queue depth, worker busy counts, op completion
// counters, and keyval/bytestream op latency histograms. Grounded on the
// teacher's go.mod dependency on github.com/prometheus/client_golang
// (also present in aistore's go.mod for target-side metrics); no single
// teacher file wires prometheus directly, so the package-level Registry
// plus MustRegister-in-init shape here follows the common idiom for that
// client library rather than one specific file.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var Registry = prometheus.NewRegistry()

var (
	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "parafs",
		Subsystem: "opqueue",
		Name:      "depth",
		Help:      "Current number of ops waiting in a queue.",
	}, []string{"queue"})

	WorkerBusy = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "parafs",
		Subsystem: "worker",
		Name:      "busy_threads",
		Help:      "Number of worker threads currently servicing an op.",
	}, []string{"variant"})

	OpsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parafs",
		Subsystem: "opmgr",
		Name:      "ops_completed_total",
		Help:      "Total ops completed, labeled by outcome.",
	}, []string{"outcome"})

	KeyvalLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "parafs",
		Subsystem: "keyval",
		Name:      "op_duration_seconds",
		Help:      "Latency of keyval store operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	BytestreamLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "parafs",
		Subsystem: "bytestream",
		Name:      "transfer_duration_seconds",
		Help:      "Latency of bytestream read/write transfers.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})

	PurgatorySize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "parafs",
		Subsystem: "collection",
		Name:      "purgatory_handles",
		Help:      "Handles currently held in a collection's purgatory.",
	}, []string{"collection"})
)

func init() {
	Registry.MustRegister(QueueDepth, WorkerBusy, OpsCompleted, KeyvalLatency, BytestreamLatency, PurgatorySize)
}

// Handler returns an http.Handler serving the registry in Prometheus
// text exposition format, for wiring into the metrics.addr listener.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
