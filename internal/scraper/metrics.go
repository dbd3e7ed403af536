package scraper

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pricewatch/price-scraper/internal/errclass"
	"github.com/pricewatch/price-scraper/internal/fingerprint"
)

// Metrics tracks scrape outcomes for the /metrics endpoint.
type Metrics struct {
	attempts *prometheus.CounterVec
	duration prometheus.Histogram
	retries  prometheus.Counter
	errors   *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pricewatch",
			Name:      "scrape_attempts_total",
			Help:      "Logical scrape calls by final result and browser family.",
		}, []string{"result", "family"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pricewatch",
			Name:      "scrape_duration_seconds",
			Help:      "Wall-clock duration of logical scrape calls.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pricewatch",
			Name:      "scrape_retries_total",
			Help:      "Extra attempts beyond the first, across all scrape calls.",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pricewatch",
			Name:      "scrape_errors_total",
			Help:      "Failed scrape calls by classified error kind.",
		}, []string{"error_type"}),
	}

	if reg != nil {
		reg.MustRegister(m.attempts, m.duration, m.retries, m.errors)
	}
	return m
}

func (m *Metrics) observe(success bool, family fingerprint.Family, kind errclass.Kind, attempts int, seconds float64) {
	if m == nil {
		return
	}

	result := "failure"
	if success {
		result = "success"
	}
	m.attempts.WithLabelValues(result, string(family)).Inc()
	m.duration.Observe(seconds)
	if attempts > 1 {
		m.retries.Add(float64(attempts - 1))
	}
	if !success {
		m.errors.WithLabelValues(string(kind)).Inc()
	}
}
