package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hitrun"

// PrometheusExporter keeps test metrics in a private Prometheus registry.
// The registry can be scraped over HTTP or written to a textfile for the
// node exporter textfile collector.
type PrometheusExporter struct {
	mu       sync.Mutex
	registry *prometheus.Registry
	logger   *slog.Logger
	textfile string
	addr     string
	server   *http.Server
	listener net.Listener

	tests     *prometheus.CounterVec
	failures  *prometheus.CounterVec
	durations *prometheus.HistogramVec
	quantiles *prometheus.GaugeVec
}

// PrometheusOption is a functional option for PrometheusExporter
type PrometheusOption func(*PrometheusExporter)

// WithPrometheusHTTP serves /metrics on addr, e.g. ":9464".
func WithPrometheusHTTP(addr string) PrometheusOption {
	return func(p *PrometheusExporter) {
		p.addr = addr
	}
}

// WithPrometheusTextfile writes the registry to path on every Export.
func WithPrometheusTextfile(path string) PrometheusOption {
	return func(p *PrometheusExporter) {
		p.textfile = path
	}
}

func WithPrometheusLogger(logger *slog.Logger) PrometheusOption {
	return func(p *PrometheusExporter) {
		p.logger = logger
	}
}

// NewPrometheusExporter creates the exporter and, when an HTTP address is
// configured, starts serving it.
func NewPrometheusExporter(opts ...PrometheusOption) (*PrometheusExporter, error) {
	p := &PrometheusExporter{
		registry: prometheus.NewRegistry(),
		logger:   slog.Default(),
		tests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tests_total",
			Help:      "Number of finished tests by class and status",
		}, []string{"collection", "class", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "test_failures_total",
			Help:      "Number of failed tests by cause",
		}, []string{"cause"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "test_duration_seconds",
			Help:      "Execution time of tests that ran",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"collection", "class"}),
		quantiles: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "test_duration_quantile_milliseconds",
			Help:      "Test duration percentiles of the last exported run",
		}, []string{"quantile"}),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.registry.MustRegister(p.tests, p.failures, p.durations, p.quantiles)

	if p.addr != "" {
		if err := p.serve(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (p *PrometheusExporter) Registry() *prometheus.Registry {
	return p.registry
}

func (p *PrometheusExporter) serve() error {
	ln, err := net.Listen("tcp", p.addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Handler())

	p.listener = ln
	p.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	p.logger.Info("serving metrics", "addr", ln.Addr().String())

	go func() {
		if err := p.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Error("metrics server stopped", "error", err)
		}
	}()
	return nil
}

// Addr is the address the HTTP endpoint listens on, or "" when not serving.
func (p *PrometheusExporter) Addr() string {
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

// ExportSingle records a single test metric
func (p *PrometheusExporter) ExportSingle(m *TestMetrics) error {
	p.tests.WithLabelValues(m.Collection, m.Class, m.Status).Inc()
	switch m.Status {
	case "failed":
		p.failures.WithLabelValues(m.Cause).Inc()
		fallthrough
	case "passed":
		p.durations.WithLabelValues(m.Collection, m.Class).Observe(m.DurationMs / 1000)
	}
	return nil
}

// Export publishes the aggregate percentiles and writes the textfile.
func (p *PrometheusExporter) Export(agg *AggregateMetrics) error {
	p.quantiles.WithLabelValues("0.5").Set(agg.P50DurationMs)
	p.quantiles.WithLabelValues("0.95").Set(agg.P95DurationMs)
	p.quantiles.WithLabelValues("0.99").Set(agg.P99DurationMs)

	if p.textfile == "" {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := prometheus.WriteToTextfile(p.textfile, p.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// Close shuts down the exporter
func (p *PrometheusExporter) Close() error {
	if p.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.server.Shutdown(ctx)
}
