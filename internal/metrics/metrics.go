// Package metrics exposes pipeline counters to Prometheus. Metrics is a
// delivery.Observer and a processor.Recorder.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mediarelay/internal/delivery"
	"mediarelay/internal/media"
	"mediarelay/internal/pkg/errors"
)

const namespace = "mediarelay"

type Metrics struct {
	registry *prometheus.Registry

	submits         *prometheus.CounterVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	items           *prometheus.CounterVec
	bytes           prometheus.Counter
	attempts        *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	fallbacks       *prometheus.CounterVec
}

// New registers the pipeline metrics plus the Go and process collectors on a
// private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		submits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submits_total",
			Help:      "Submitted requests by admission result.",
		}, []string{"result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Processed requests by provider and terminal code.",
		}, []string{"provider", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time from pop to terminal outcome.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"provider"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Rendition outcomes by status and strategy.",
		}, []string{"status", "strategy"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reupload_bytes_total",
			Help:      "Bytes moved through the pipeline by re-uploads.",
		}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strategy_attempts_total",
			Help:      "Strategy runs by result code (OK on success).",
		}, []string{"strategy", "code"}),
		attemptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "strategy_duration_seconds",
			Help:      "Duration of one strategy run.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"strategy"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Advancements from one strategy to the next.",
		}, []string{"from", "to"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.submits,
		m.requests,
		m.requestDuration,
		m.items,
		m.bytes,
		m.attempts,
		m.attemptDuration,
		m.fallbacks,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Gauge registers a gauge whose value is read from fn on every scrape.
func (m *Metrics) Gauge(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

func (m *Metrics) Advanced(ev delivery.Advanced) {
	m.fallbacks.WithLabelValues(ev.From, ev.To).Inc()
}

func (m *Metrics) Attempted(strategy string, elapsed time.Duration, err error) {
	m.attempts.WithLabelValues(strategy, codeOf(err)).Inc()
	m.attemptDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
}

func (m *Metrics) Record(_ context.Context, req media.FetchRequest, res media.Result) error {
	provider := string(media.DetectProvider(req.SourceURL))
	if provider == "" {
		provider = "unknown"
	}
	m.requests.WithLabelValues(provider, codeOf(res.Err)).Inc()
	m.requestDuration.WithLabelValues(provider).Observe(res.Duration.Seconds())
	for _, o := range res.Outcomes {
		m.items.WithLabelValues(string(o.Status), o.Strategy).Inc()
	}
	if n := res.Bytes(); n > 0 {
		m.bytes.Add(float64(n))
	}
	return nil
}

// Submitter is the admission entry point counted by WrapSubmitter.
type Submitter interface {
	Submit(ctx context.Context, req media.FetchRequest) (string, error)
}

type countingSubmitter struct {
	next Submitter
	m    *Metrics
}

// WrapSubmitter counts admitted, busy and failed submissions.
func (m *Metrics) WrapSubmitter(next Submitter) Submitter {
	return &countingSubmitter{next: next, m: m}
}

func (s *countingSubmitter) Submit(ctx context.Context, req media.FetchRequest) (string, error) {
	id, err := s.next.Submit(ctx, req)
	switch {
	case err == nil:
		s.m.submits.WithLabelValues("admitted").Inc()
	case errors.IsCode(err, errors.CodeBusy):
		s.m.submits.WithLabelValues("busy").Inc()
	default:
		s.m.submits.WithLabelValues("error").Inc()
	}
	return id, err
}

func codeOf(err error) string {
	if err == nil {
		return "OK"
	}
	return string(errors.GetCode(err))
}
