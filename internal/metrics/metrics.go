// Package metrics exposes server activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements server.MetricsCollector on top of a Prometheus
// registry.
type Collector struct {
	connections *prometheus.CounterVec
	commands    *prometheus.HistogramVec
	transfers   *prometheus.CounterVec
	bytes       *prometheus.CounterVec
	xferTime    *prometheus.HistogramVec
	logins      *prometheus.CounterVec
}

// NewCollector registers the ftpd metrics with reg. Use
// prometheus.DefaultRegisterer to expose them on the default handler.
func NewCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		connections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ftpd_connection_total",
				Help: "Incoming control connections.",
			},
			[]string{
				"result", // accepted, global_limit_reached
			},
		),
		commands: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ftpd_command_duration_seconds",
				Help:    "FTP command duration and result in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.100, 0.5, 1, 5, 10, 20},
			},
			[]string{
				"cmd",
				"result", // ok, error
			},
		),
		transfers: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ftpd_transfer_total",
				Help: "Completed data transfers.",
			},
			[]string{"operation"},
		),
		bytes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ftpd_transfer_bytes_total",
				Help: "Bytes moved over data connections.",
			},
			[]string{"operation"},
		),
		xferTime: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ftpd_transfer_duration_seconds",
				Help:    "Data transfer duration in seconds.",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"operation"},
		),
		logins: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ftpd_authentication_total",
				Help: "Login attempts.",
			},
			[]string{
				"result", // ok, error
			},
		),
	}
}

func result(success bool) string {
	if success {
		return "ok"
	}
	return "error"
}

// RecordCommand implements server.MetricsCollector.
func (c *Collector) RecordCommand(cmd string, success bool, duration time.Duration) {
	c.commands.WithLabelValues(cmd, result(success)).Observe(duration.Seconds())
}

// RecordTransfer implements server.MetricsCollector.
func (c *Collector) RecordTransfer(operation string, bytes int64, duration time.Duration) {
	c.transfers.WithLabelValues(operation).Inc()
	c.bytes.WithLabelValues(operation).Add(float64(bytes))
	c.xferTime.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordConnection implements server.MetricsCollector.
func (c *Collector) RecordConnection(accepted bool, reason string) {
	c.connections.WithLabelValues(reason).Inc()
}

// RecordAuthentication implements server.MetricsCollector. The user name is
// not used as a label to keep cardinality bounded.
func (c *Collector) RecordAuthentication(success bool, _ string) {
	c.logins.WithLabelValues(result(success)).Inc()
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
