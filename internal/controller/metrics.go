package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	reconcileDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "reconcile_duration_seconds",
		Help:    "Reconcile invocation latency.",
		Buckets: prometheus.DefBuckets,
	})

	provisioningFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "provisioning_failures_total",
		Help: "Total fatal pipeline-stage failures, by stage.",
	}, []string{"stage"})

	gateWaiters = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "concurrency_gate_waiters",
		Help: "Reconciles currently queued for a concurrency gate slot.",
	})
)

func init() {
	ctrlmetrics.Registry.MustRegister(reconcileDuration, provisioningFailures, gateWaiters)
}
