package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nao1215/doccrawl/internal/model"
)

const namespace = "doccrawl"

// Metrics holds the crawl collectors. A nil *Metrics is valid and records
// nothing, so callers never need to check whether metrics are enabled.
type Metrics struct {
	registry *prometheus.Registry

	PagesTotal    *prometheus.CounterVec
	FetchErrors   *prometheus.CounterVec
	FetchDuration prometheus.Histogram
	FrontierSize  prometheus.Gauge
	SinkFailures  prometheus.Counter
	Retries       prometheus.Counter
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		PagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_total",
			Help:      "Pages processed, by result (saved, failed, sink_error).",
		}, []string{"result"}),
		FetchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Failed page fetches, by error class.",
		}, []string{"class"}),
		FetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Time spent fetching a page, including retries.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		FrontierSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "frontier_size",
			Help:      "URLs waiting in the frontier.",
		}),
		SinkFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_failures_total",
			Help:      "Pages that could not be written.",
		}),
		Retries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_retries_total",
			Help:      "Fetch attempts beyond the first.",
		}),
	}
}

// Registry returns the registry backing the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObservePage records the outcome of one page.
func (m *Metrics) ObservePage(o model.PageOutcome) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(string(o.Status)).Inc()
	if o.Status == model.PageFailed && o.Class != model.ClassNone {
		m.FetchErrors.WithLabelValues(string(o.Class)).Inc()
	}
	if o.Status == model.PageSinkError {
		m.SinkFailures.Inc()
	}
	if o.Attempts > 1 {
		m.Retries.Add(float64(o.Attempts - 1))
	}
}

// ObserveFetch records the duration of a fetch.
func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

// SetFrontierSize updates the frontier gauge.
func (m *Metrics) SetFrontierSize(n int) {
	if m == nil {
		return
	}
	m.FrontierSize.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Server exposes /metrics while a crawl runs.
type Server struct {
	srv    *http.Server
	addr   string
	logger *slog.Logger
	done   chan struct{}
}

// Serve listens on addr and serves /metrics in the background until Close.
// The listener is opened before returning so address errors surface
// immediately.
func Serve(addr string, m *Metrics, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	s := &Server{
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		addr:   ln.Addr().String(),
		logger: logger,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "addr", s.addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", s.addr)
	return s, nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.addr
}

// Close shuts the server down, waiting up to five seconds for scrapes in
// progress.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.srv.Shutdown(ctx)
	<-s.done
	return err
}
