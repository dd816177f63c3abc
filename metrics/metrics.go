// Package metrics holds the Prometheus collectors of the bridge.
//
// Collectors are package-level and unregistered; call Register once with the
// registry the embedding process exposes.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wasm_bridge"

var (
	// ContextsPrepared counts execution context assembly by backend and result.
	ContextsPrepared = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "contexts_prepared_total",
		Help:      "Execution contexts assembled, by backend and result (ok, compile, instantiate, link).",
	}, []string{"backend", "result"})

	// ContextsOpen is the number of execution contexts not yet closed.
	ContextsOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "contexts_open",
		Help:      "Execution contexts whose storage guard has not been released.",
	})

	// GuestCalls counts driven guest entry points by outcome.
	GuestCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "guest_calls_total",
		Help:      "Guest entry point calls, by entry point and outcome (ok, guest_error, trap, canceled).",
	}, []string{"entrypoint", "outcome"})

	// GuestPolls observes how many polls a guest call needed to complete.
	GuestPolls = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "guest_polls",
		Help:      "Number of poll calls per guest entry point invocation.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
	}, []string{"entrypoint"})

	// HostFutures counts host futures started by the system API.
	HostFutures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "host_futures_total",
		Help:      "Host futures created for guest state operations.",
	}, []string{"operation"})

	// HostFuturesOutstanding is the number of host futures not yet dropped.
	HostFuturesOutstanding = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "host_futures_outstanding",
		Help:      "Host futures held in handle tables.",
	})

	// StorageFailures counts storage capability errors returned to guests.
	StorageFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "storage_failures_total",
		Help:      "Storage operations that failed and were reported to the guest.",
	}, []string{"operation"})
)

var collectors = []prometheus.Collector{
	ContextsPrepared,
	ContextsOpen,
	GuestCalls,
	GuestPolls,
	HostFutures,
	HostFuturesOutstanding,
	StorageFailures,
}

var registerOnce sync.Once

// Register adds every collector to reg. Only the first call has an effect.
func Register(reg prometheus.Registerer) error {
	var err error
	registerOnce.Do(func() {
		for _, c := range collectors {
			if err = reg.Register(c); err != nil {
				return
			}
		}
	})
	return err
}
