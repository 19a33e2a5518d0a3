package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/slotwatch/appointment"
	"github.com/hazyhaar/slotwatch/internal/scrape"
)

func TestObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRunMetrics(reg)

	started := time.Now().Add(-30 * time.Second)
	res := scrape.Result{
		StartedAt:  started,
		FinishedAt: started.Add(30 * time.Second),
		Status:     scrape.StatusOK,
		Days: []appointment.Day{
			appointment.NewDay(started, map[appointment.DayPart][]string{
				appointment.Morning:   {"9:00 AM", "10:00 AM"},
				appointment.Afternoon: {"1:00 PM"},
			}, nil),
		},
	}
	m.ObserveRun(res)
	m.ObserveRun(scrape.Result{Status: scrape.StatusFailed})

	require.Equal(t, 1.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("failed")))
	require.Equal(t, 0.0, testutil.ToFloat64(m.daysFound), "failed run resets days_found")
	require.Equal(t, float64(res.FinishedAt.Unix()), testutil.ToFloat64(m.lastSuccess))

	m.ObserveRun(res)
	require.Equal(t, 1.0, testutil.ToFloat64(m.daysFound))
	require.Equal(t, 2.0, testutil.ToFloat64(m.slotsFound.WithLabelValues("morning")))
	require.Equal(t, 0.0, testutil.ToFloat64(m.slotsFound.WithLabelValues("evening")))
	require.Equal(t, 3, testutil.CollectAndCount(m.slotsFound))
}

func TestNilMetrics(t *testing.T) {
	var m *RunMetrics
	require.NotPanics(t, func() { m.ObserveRun(scrape.Result{Status: scrape.StatusOK}) })
}
