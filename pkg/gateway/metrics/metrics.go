// Package metrics registers the gateway's Prometheus instrumentation,
// using a global-collector-vars-plus-init-registration style. Exposed via
// the HTTP control surface's /metrics route.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SchedulerQueueDepth is the number of tasks currently pending in the
	// scheduler's priority queue.
	SchedulerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "energygateway_scheduler_queue_depth",
			Help: "Number of tasks currently pending in the scheduler queue",
		},
	)

	// DeviceBackoffMs is the current harvest backoff interval, in
	// milliseconds, per device id.
	DeviceBackoffMs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "energygateway_device_backoff_milliseconds",
			Help: "Current harvest backoff interval in milliseconds, by device id",
		},
		[]string{"device_id"},
	)

	// HarvestSamplesTotal counts every successfully read register
	// snapshot, by device id.
	HarvestSamplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "energygateway_harvest_samples_total",
			Help: "Total number of successful harvest reads, by device id",
		},
		[]string{"device_id"},
	)

	// HarvestFailuresTotal counts every failed register read, by device
	// id.
	HarvestFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "energygateway_harvest_failures_total",
			Help: "Total number of failed harvest reads, by device id",
		},
		[]string{"device_id"},
	)

	// TransportsTotal counts every batch upload attempt, by device id and
	// outcome ("ok", "error", "fatal").
	TransportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "energygateway_transports_total",
			Help: "Total number of harvest batch uploads, by device id and outcome",
		},
		[]string{"device_id", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(SchedulerQueueDepth)
	prometheus.MustRegister(DeviceBackoffMs)
	prometheus.MustRegister(HarvestSamplesTotal)
	prometheus.MustRegister(HarvestFailuresTotal)
	prometheus.MustRegister(TransportsTotal)
}

// Handler returns the Prometheus scrape handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
