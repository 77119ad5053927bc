package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Metrics tracks the per-sync counters named in SPEC_FULL.md §10.2:
// pages processed/skipped, chunks embedded, and HEAD requests issued by
// the change-detection cascade. Each counter is recorded twice, the way
// the teacher's obs package runs otel metrics and a Prometheus
// exposition surface side by side: an otel instrument (for whatever OTLP
// collector InitOTel points at) and a Prometheus counter (for direct
// scraping via ServePrometheus), so an operator gets a reading either way.
type Metrics struct {
	otelPagesProcessed metric.Int64Counter
	otelPagesSkipped   metric.Int64Counter
	otelChunksEmbedded metric.Int64Counter
	otelHeadRequests   metric.Int64Counter

	promPagesProcessed prometheus.Counter
	promPagesSkipped   prometheus.Counter
	promChunksEmbedded prometheus.Counter
	promHeadRequests   prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics builds the instrument set, registering the Prometheus side
// against its own registry (not the global one) so repeated calls in
// tests don't collide on duplicate registration.
func NewMetrics(meterName string) (*Metrics, error) {
	meter := otel.Meter(meterName)

	pagesProcessed, err := meter.Int64Counter("pages_processed",
		metric.WithDescription("urls whose content was fetched and chunked"))
	if err != nil {
		return nil, fmt.Errorf("observability: pages_processed instrument: %w", err)
	}
	pagesSkipped, err := meter.Int64Counter("pages_skipped",
		metric.WithDescription("urls the change-detection cascade skipped"))
	if err != nil {
		return nil, fmt.Errorf("observability: pages_skipped instrument: %w", err)
	}
	chunksEmbedded, err := meter.Int64Counter("chunks_embedded",
		metric.WithDescription("chunks sent through the embedding oracle"))
	if err != nil {
		return nil, fmt.Errorf("observability: chunks_embedded instrument: %w", err)
	}
	headRequests, err := meter.Int64Counter("head_requests_total",
		metric.WithDescription("HEAD requests issued by the ETag cascade layer"))
	if err != nil {
		return nil, fmt.Errorf("observability: head_requests_total instrument: %w", err)
	}

	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	m := &Metrics{
		otelPagesProcessed: pagesProcessed,
		otelPagesSkipped:   pagesSkipped,
		otelChunksEmbedded: chunksEmbedded,
		otelHeadRequests:   headRequests,
		promPagesProcessed: factory.NewCounter(prometheus.CounterOpts{Name: "corpussync_pages_processed_total"}),
		promPagesSkipped:   factory.NewCounter(prometheus.CounterOpts{Name: "corpussync_pages_skipped_total"}),
		promChunksEmbedded: factory.NewCounter(prometheus.CounterOpts{Name: "corpussync_chunks_embedded_total"}),
		promHeadRequests:   factory.NewCounter(prometheus.CounterOpts{Name: "corpussync_head_requests_total"}),
	}
	m.registry = reg
	return m, nil
}

func (m *Metrics) PagesProcessed(ctx context.Context, n int64) {
	m.otelPagesProcessed.Add(ctx, n)
	m.promPagesProcessed.Add(float64(n))
}

func (m *Metrics) PagesSkipped(ctx context.Context, n int64) {
	m.otelPagesSkipped.Add(ctx, n)
	m.promPagesSkipped.Add(float64(n))
}

func (m *Metrics) ChunksEmbedded(ctx context.Context, n int64) {
	m.otelChunksEmbedded.Add(ctx, n)
	m.promChunksEmbedded.Add(float64(n))
}

func (m *Metrics) HeadRequests(ctx context.Context, n int64) {
	m.otelHeadRequests.Add(ctx, n)
	m.promHeadRequests.Add(float64(n))
}

// ServePrometheus starts a /metrics exposition endpoint on addr and
// returns immediately; the caller is responsible for shutting down the
// returned server. A non-empty addr is the only way an operator opts in
// (internal/config.ObsConfig.PrometheusAddr).
func (m *Metrics) ServePrometheus(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
