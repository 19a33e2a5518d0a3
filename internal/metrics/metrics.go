// Package metrics exposes Prometheus instruments for runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hazyhaar/slotwatch/internal/scrape"
)

// RunMetrics observes finished runs. All methods are safe on a nil receiver.
type RunMetrics struct {
	runsTotal   *prometheus.CounterVec
	duration    prometheus.Histogram
	daysFound   prometheus.Gauge
	slotsFound  *prometheus.GaugeVec
	lastSuccess prometheus.Gauge
}

// NewRunMetrics registers the run instruments on reg, or on the default
// registerer when reg is nil.
func NewRunMetrics(reg prometheus.Registerer) *RunMetrics {
	m := &RunMetrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotwatch",
			Name:      "runs_total",
			Help:      "Total scrape runs by final status",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "slotwatch",
			Name:      "run_duration_seconds",
			Help:      "Wall time of scrape runs",
			Buckets:   []float64{5, 15, 30, 60, 120, 240, 480},
		}),
		daysFound: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "slotwatch",
			Name:      "days_found",
			Help:      "Days collected by the last run",
		}),
		slotsFound: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "slotwatch",
			Name:      "slots_found",
			Help:      "Slots collected by the last run per day-part",
		}, []string{"part"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "slotwatch",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that reached the calendar",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.runsTotal, m.duration, m.daysFound, m.slotsFound, m.lastSuccess)
	return m
}

// ObserveRun records one finished run.
func (m *RunMetrics) ObserveRun(res scrape.Result) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(string(res.Status)).Inc()
	m.duration.Observe(res.Duration().Seconds())
	m.daysFound.Set(float64(len(res.Days)))
	for part, n := range res.Slots() {
		m.slotsFound.WithLabelValues(string(part)).Set(float64(n))
	}
	if res.Status == scrape.StatusOK || res.Status == scrape.StatusPartial {
		finished := res.FinishedAt
		if finished.IsZero() {
			finished = time.Now()
		}
		m.lastSuccess.Set(float64(finished.Unix()))
	}
}
