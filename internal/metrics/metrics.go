// Package metrics exports live run counters in the Prometheus text format.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"httpload/internal/core"
)

const namespace = "httpload"

// Metrics is a core.Recorder that counts every transaction before passing it
// on. It owns its registry, so several runs can coexist in one process.
type Metrics struct {
	registry     *prometheus.Registry
	transactions *prometheus.CounterVec
	responseTime prometheus.Histogram
	next         core.Recorder
}

// New wraps next, which may be nil.
func New(next core.Recorder) *Metrics {
	if next == nil {
		next = core.NullRecorder
	}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Executed transactions by outcome",
		}, []string{"outcome"}),
		responseTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "response_time_seconds",
			Help:      "Response time of transactions that were sent",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		next: next,
	}
	for _, o := range core.Outcomes {
		m.transactions.WithLabelValues(o.String())
	}
	m.registry.MustRegister(m.transactions, m.responseTime)
	return m
}

func (m *Metrics) LogTransaction(r core.TransactionResult) {
	m.transactions.WithLabelValues(r.Outcome.String()).Inc()
	if r.Outcome != core.Dropped {
		m.responseTime.Observe(r.ResponseTime.Seconds())
	}
	m.next.LogTransaction(r)
}

// Gauge exports fn, read at scrape time, as namespace_name.
func (m *Metrics) Gauge(name, help string, fn func() float64) error {
	return m.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	return mux
}

// ListenAndServe serves h on addr until ctx is done.
func ListenAndServe(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return Serve(ctx, ln, h, logger)
}

// Serve serves h on ln until ctx is done, then shuts the server down.
func Serve(ctx context.Context, ln net.Listener, h http.Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	logger.Info("metrics listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
