package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the global container of exposed Prometheus collectors.
type Metrics struct {
	CommandsTotal    *prometheus.CounterVec
	CommandDuration  *prometheus.HistogramVec
	CommandsInFlight prometheus.Gauge

	PathsFoundTotal     *prometheus.CounterVec
	PathFindDuration    *prometheus.HistogramVec
	TerminalsGauge      prometheus.Gauge
	ContainersGauge     prometheus.Gauge
	CapacityWarnings    *prometheus.CounterVec
	BusReconnectsTotal  prometheus.Counter
	BusConnectionStatus prometheus.Gauge

	ServiceInfo *prometheus.GaugeVec
}

var defaultMetrics *Metrics

// InitMetrics builds and registers the service's collectors.
func InitMetrics(namespace, subsystem string) *Metrics {
	m := &Metrics{
		CommandsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "commands_total",
				Help:      "Total number of dispatched commands",
			},
			[]string{"command", "outcome"},
		),

		CommandDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "command_duration_seconds",
				Help:      "Duration of dispatched commands",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"command"},
		),

		CommandsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "commands_in_flight",
				Help:      "Current number of commands being processed",
			},
		),

		PathsFoundTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "paths_found_total",
				Help:      "Total number of paths returned by path-finding commands",
			},
			[]string{"operation"},
		),

		PathFindDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "path_find_duration_seconds",
				Help:      "Duration of path-finding operations",
				Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"operation"},
		),

		TerminalsGauge: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "terminals_gauge",
				Help:      "Current number of terminals in the graph",
			},
		),

		ContainersGauge: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "containers_gauge",
				Help:      "Current total number of containers across all terminals",
			},
		),

		CapacityWarnings: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "capacity_warnings_total",
				Help:      "Total number of capacity threshold warnings",
			},
			[]string{"terminal"},
		),

		BusReconnectsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "bus_reconnects_total",
				Help:      "Total number of bus adapter reconnect attempts",
			},
		),

		BusConnectionStatus: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "bus_connection_status",
				Help:      "1 if the bus adapter is connected, 0 otherwise",
			},
		),

		ServiceInfo: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "service_info",
				Help:      "Service information",
			},
			[]string{"version", "environment"},
		),
	}

	defaultMetrics = m
	return m
}

// Get returns the global metrics container, initializing it with
// terminalsim defaults if InitMetrics has not been called yet.
func Get() *Metrics {
	if defaultMetrics == nil {
		return InitMetrics("terminalsim", "")
	}
	return defaultMetrics
}

// RecordCommand records the outcome and duration of a dispatched command.
func (m *Metrics) RecordCommand(command string, success bool, duration time.Duration) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	m.CommandsTotal.WithLabelValues(command, outcome).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordPathFind records a path-finding operation's result count and
// duration.
func (m *Metrics) RecordPathFind(operation string, pathCount int, duration time.Duration) {
	m.PathsFoundTotal.WithLabelValues(operation).Add(float64(pathCount))
	m.PathFindDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetGraphSize updates the terminal/container size gauges.
func (m *Metrics) SetGraphSize(terminals, containers int) {
	m.TerminalsGauge.Set(float64(terminals))
	m.ContainersGauge.Set(float64(containers))
}

// RecordCapacityWarning increments the warning counter for a terminal whose
// container count crossed its warning threshold.
func (m *Metrics) RecordCapacityWarning(terminal string) {
	m.CapacityWarnings.WithLabelValues(terminal).Inc()
}

// SetBusConnectionStatus records whether the bus adapter is connected.
func (m *Metrics) SetBusConnectionStatus(connected bool) {
	if connected {
		m.BusConnectionStatus.Set(1)
	} else {
		m.BusConnectionStatus.Set(0)
	}
}

// RecordBusReconnect increments the reconnect-attempt counter.
func (m *Metrics) RecordBusReconnect() {
	m.BusReconnectsTotal.Inc()
}

// SetServiceInfo publishes the service's version/environment labels.
func (m *Metrics) SetServiceInfo(version, environment string) {
	m.ServiceInfo.WithLabelValues(version, environment).Set(1)
}

// Handler returns the HTTP handler serving /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartMetricsServer starts the HTTP server exposing /metrics and /health.
func StartMetricsServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
