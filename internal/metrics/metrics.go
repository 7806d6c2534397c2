// Package metrics exposes UnMTA's runtime counters via Prometheus.
//
// chasquid exports similar counters (commandCount, responseCodeCount,
// tlsCount, hookResults, in internal/smtpsrv/conn.go) through its own
// expvarom wrapper around expvar. UnMTA generalizes the same set of
// counters onto a real Prometheus registry, the metrics stack already
// present in the wider example pack (github.com/prometheus/client_golang,
// used throughout HouzuoGuo/laitos).
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// ConnectionsAccepted counts accepted TCP connections.
	ConnectionsAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "unmta",
		Name:      "connections_accepted_total",
		Help:      "Total number of accepted SMTP connections.",
	})

	// ActiveConnections is the current number of open connections.
	ActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "unmta",
		Name:      "active_connections",
		Help:      "Number of SMTP connections currently open.",
	})

	// CommandsTotal counts parsed SMTP commands, by verb.
	CommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "unmta",
		Name:      "commands_total",
		Help:      "Count of SMTP commands received, by verb.",
	}, []string{"verb"})

	// ResponseCodesTotal counts wire response codes sent to clients.
	ResponseCodesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "unmta",
		Name:      "response_codes_total",
		Help:      "Count of SMTP response codes sent, by code and phase.",
	}, []string{"code", "phase"})

	// HookDispatchSeconds observes how long a hook's full plugin chain took.
	HookDispatchSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "unmta",
		Name:      "hook_dispatch_seconds",
		Help:      "Time spent running a hook's plugin chain.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"hook"})

	// PluginHandlerErrorsTotal counts recovered plugin handler failures.
	PluginHandlerErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "unmta",
		Name:      "plugin_handler_errors_total",
		Help:      "Count of plugin handler panics/errors, swallowed and logged.",
	}, []string{"plugin", "hook"})
)

// Registry is the registry UnMTA serves on /metrics. A dedicated registry
// (rather than the global default) keeps tests and multiple in-process
// servers from colliding on registration.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		ConnectionsAccepted,
		ActiveConnections,
		CommandsTotal,
		ResponseCodesTotal,
		HookDispatchSeconds,
		PluginHandlerErrorsTotal,
	)
}
