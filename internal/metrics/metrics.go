// Package metrics exposes monitor counters in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iksnae/mcp-sentinel/internal"
)

const namespace = "mcp_sentinel"

// Monitor holds the counters of one monitor run on its own registry.
// A nil *Monitor records nothing.
type Monitor struct {
	registry     *prometheus.Registry
	requests     *prometheus.CounterVec
	anomalies    *prometheus.CounterVec
	records      *prometheus.CounterVec
	decodeErrors prometheus.Counter
	pollErrors   prometheus.Counter
	trackedFiles prometheus.Gauge
}

// NewMonitor creates the monitor counters
func NewMonitor() *Monitor {
	m := &Monitor{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Subsystem: "monitor", Name: "requests_total", Help: "Tool calls scored, by tool."},
			[]string{"tool"},
		),
		anomalies: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Subsystem: "monitor", Name: "anomalies_total", Help: "Anomalous tool calls, by tool."},
			[]string{"tool"},
		),
		records: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Subsystem: "monitor", Name: "records_total", Help: "Log records consumed, by direction."},
			[]string{"direction"},
		),
		decodeErrors: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: namespace, Subsystem: "monitor", Name: "decode_errors_total", Help: "Log lines that could not be decoded."},
		),
		pollErrors: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: namespace, Subsystem: "monitor", Name: "poll_errors_total", Help: "File read failures during polling."},
		),
		trackedFiles: prometheus.NewGauge(
			prometheus.GaugeOpts{Namespace: namespace, Subsystem: "monitor", Name: "tracked_files", Help: "Log files currently tailed."},
		),
	}
	m.registry.MustRegister(m.requests, m.anomalies, m.records, m.decodeErrors, m.pollErrors, m.trackedFiles)
	return m
}

// Registry returns the registry holding the counters
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRequest counts a scored tool call
func (m *Monitor) ObserveRequest(tool string, anomaly bool) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(tool).Inc()
	if anomaly {
		m.anomalies.WithLabelValues(tool).Inc()
	}
}

// ObserveRecord counts a consumed record
func (m *Monitor) ObserveRecord(direction string) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(direction).Inc()
}

// DecodeError counts an undecodable line
func (m *Monitor) DecodeError() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}

// PollError counts a failed file read
func (m *Monitor) PollError() {
	if m == nil {
		return
	}
	m.pollErrors.Inc()
}

// SetTrackedFiles records how many files are tailed
func (m *Monitor) SetTrackedFiles(n int) {
	if m == nil {
		return
	}
	m.trackedFiles.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled
func (m *Monitor) Serve(ctx context.Context, addr string, logger *internal.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Infof("Serving metrics on %s/metrics", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
