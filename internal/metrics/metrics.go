// Package metrics records statement executions of the database adapters.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder receives one event per executed statement.
type Recorder interface {
	// RecordQuery records a statement execution.
	RecordQuery(ctx context.Context, info QueryInfo)
}

// QueryInfo describes one executed statement.
type QueryInfo struct {
	// Backend is "mysql" or "mongo".
	Backend string

	// Operation is the terminal operation (selectMany, update, count, ...).
	Operation string

	// Duration is how long the statement took.
	Duration time.Duration

	// Success indicates if the statement succeeded.
	Success bool

	// Rows is the number of rows returned or affected.
	Rows int64
}

// Noop discards every event.
type Noop struct{}

// RecordQuery does nothing.
func (Noop) RecordQuery(context.Context, QueryInfo) {}

// Prometheus records events into a private registry.
type Prometheus struct {
	registry      *prometheus.Registry
	queryTotal    *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
	rowsTotal     *prometheus.CounterVec
}

// NewPrometheus creates a recorder with its own registry.
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		queryTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timetask_queries_total",
				Help: "Total number of executed statements",
			},
			[]string{"backend", "operation", "status"},
		),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "timetask_query_duration_seconds",
				Help:    "Statement latency in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"backend", "operation"},
		),
		rowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timetask_rows_total",
				Help: "Rows returned or affected by successful statements",
			},
			[]string{"backend", "operation"},
		),
	}
	p.registry.MustRegister(p.queryTotal, p.queryDuration, p.rowsTotal)
	return p
}

// RecordQuery records a statement execution.
func (p *Prometheus) RecordQuery(_ context.Context, info QueryInfo) {
	status := "success"
	if !info.Success {
		status = "error"
	}
	p.queryTotal.WithLabelValues(info.Backend, info.Operation, status).Inc()
	p.queryDuration.WithLabelValues(info.Backend, info.Operation).Observe(info.Duration.Seconds())
	if info.Success && info.Rows > 0 {
		p.rowsTotal.WithLabelValues(info.Backend, info.Operation).Add(float64(info.Rows))
	}
}

// Registry returns the underlying registry.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// WriteTextfile writes the collected metrics in the text exposition format,
// for node_exporter's textfile collector. The file is replaced atomically.
func (p *Prometheus) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, p.registry)
}

// Ensure both recorders implement Recorder.
var (
	_ Recorder = Noop{}
	_ Recorder = (*Prometheus)(nil)
)
