// Package metrics defines the prometheus collectors of telehub. They live on a
// private registry served at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "telehub"

// Registry holds every telehub collector plus the Go and process collectors.
var Registry = prometheus.NewRegistry()

var (
	// CommandsSubmitted counts submissions by action and outcome
	// (accepted, forbidden, unavailable, not_found, invalid, error).
	CommandsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_submitted_total",
			Help:      "Command submissions by action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	// CommandTransitions counts command status changes by target status.
	CommandTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_transitions_total",
			Help:      "Command status transitions by destination status.",
		},
		[]string{"status"},
	)

	// CommandTransitionsDropped counts transitions refused because the
	// command had already reached a terminal status.
	CommandTransitionsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_transitions_dropped_total",
			Help:      "Transitions ignored because the command was already terminal.",
		},
	)

	RealtimeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_sessions",
			Help:      "Open realtime sessions.",
		},
	)

	RealtimeEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_events_total",
			Help:      "Inbound realtime events by name and result (ok, rejected, error, dropped).",
		},
		[]string{"event", "result"},
	)

	GeofenceAlerts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geofence_alerts_total",
			Help:      "Geofence alerts emitted after debouncing.",
		},
	)

	ScanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connection_scan_duration_seconds",
			Help:      "Duration of a single transport scan.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"transport"},
	)

	DevicesFound = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_devices_found",
			Help:      "Devices reported by the last scan of each transport.",
		},
		[]string{"transport"},
	)

	ActiveConnection = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_active",
			Help:      "1 for the transport of the active gateway connection, 0 otherwise.",
		},
		[]string{"transport"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status code.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "method", "code"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		CommandsSubmitted,
		CommandTransitions,
		CommandTransitionsDropped,
		RealtimeSessions,
		RealtimeEvents,
		GeofenceAlerts,
		ScanDuration,
		DevicesFound,
		ActiveConnection,
		HTTPRequestDuration,
	)
}

// Handler serves the registry in the prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
