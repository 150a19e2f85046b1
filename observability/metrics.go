package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MyRustyCage/pp-image-importer/domain"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// Metrics records import outcomes as Prometheus metrics.
type Metrics struct {
	ImportsTotal          *prometheus.CounterVec
	StrategyAttemptsTotal *prometheus.CounterVec
	ImportDuration        prometheus.Histogram
	ImageBytes            prometheus.Histogram
	MIMEWarningsTotal     prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ImportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imports_total",
				Help: "Total imports by result (success or failure kind).",
			},
			[]string{"result"},
		),
		StrategyAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fetch_strategy_attempts_total",
				Help: "Fetch attempts by strategy and result.",
			},
			[]string{"strategy", "result"},
		),
		ImportDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "import_duration_seconds",
				Help:    "End to end import latency in seconds.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		ImageBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "imported_image_bytes",
				Help:    "Size of uploaded images in bytes.",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
			},
		),
		MIMEWarningsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mime_warnings_total",
				Help: "Imports where the server reported a non-image content type.",
			},
		),
	}

	reg.MustRegister(
		m.ImportsTotal,
		m.StrategyAttemptsTotal,
		m.ImportDuration,
		m.ImageBytes,
		m.MIMEWarningsTotal,
	)
	return m
}

// Handler returns the scrape handler for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) ImportStarted(context.Context, string) {}

func (m *Metrics) StrategyAttempted(_ context.Context, kind domain.StrategyKind, err error) {
	result := resultSuccess
	if err != nil {
		result = resultFailure
	}
	m.StrategyAttemptsTotal.WithLabelValues(string(kind), result).Inc()
}

func (m *Metrics) MIMEResolved(_ context.Context, _, _ string, warned bool) {
	if warned {
		m.MIMEWarningsTotal.Inc()
	}
}

func (m *Metrics) MediaUploaded(_ context.Context, _ domain.MediaRef, size int) {
	m.ImageBytes.Observe(float64(size))
}

func (m *Metrics) ShapeCreated(context.Context, domain.ShapeID) {}

func (m *Metrics) ImportFinished(_ context.Context, _ string, elapsed time.Duration, err error) {
	m.ImportDuration.Observe(elapsed.Seconds())
	result := resultSuccess
	if err != nil {
		result = domain.KindName(err)
	}
	m.ImportsTotal.WithLabelValues(result).Inc()
}
