package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/slotwatch/internal/runlog"
	"github.com/hazyhaar/slotwatch/internal/scrape"
)

type fakeSource struct {
	page     []byte
	result   *scrape.Result
	entries  []runlog.Entry
	err      error
	limit    int
	refresh  int
	queueing bool
}

func (f *fakeSource) LastPage() ([]byte, bool) { return f.page, f.page != nil }

func (f *fakeSource) LastResult() (scrape.Result, bool) {
	if f.result == nil {
		return scrape.Result{}, false
	}
	return *f.result, true
}

func (f *fakeSource) Recent(_ context.Context, n int) ([]runlog.Entry, error) {
	f.limit = n
	return f.entries, f.err
}

func (f *fakeSource) Refresh() bool {
	f.refresh++
	return f.queueing
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestPageBeforeFirstRender(t *testing.T) {
	h := New(&fakeSource{}).Handler()
	rec := do(t, h, http.MethodGet, "/")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/appointments")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPage(t *testing.T) {
	src := &fakeSource{page: []byte("<html>kiosk</html>")}
	rec := do(t, New(src).Handler(), http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	require.Equal(t, "<html>kiosk</html>", rec.Body.String())
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.Contains(t, rec.Header().Get("Content-Security-Policy"), "img-src data:")

	rec = do(t, New(src).Handler(), http.MethodHead, "/")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAppointments(t *testing.T) {
	src := &fakeSource{result: &scrape.Result{RunID: "r1", Status: scrape.StatusPartial}}
	rec := do(t, New(src).Handler(), http.MethodGet, "/api/appointments")
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "r1", got["run_id"])
	require.Equal(t, "partial", got["status"])
}

func TestRuns(t *testing.T) {
	src := &fakeSource{entries: []runlog.Entry{{ID: "a", StartedAt: time.Now(), Status: scrape.StatusOK}}}
	h := New(src).Handler()

	rec := do(t, h, http.MethodGet, "/api/runs?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 5, src.limit)
	require.Contains(t, rec.Body.String(), `"id":"a"`)

	do(t, h, http.MethodGet, "/api/runs?limit=abc")
	require.Equal(t, 20, src.limit)

	src.err = ErrNoHistory
	rec = do(t, h, http.MethodGet, "/api/runs")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefresh(t *testing.T) {
	src := &fakeSource{queueing: true}
	h := New(src).Handler()

	rec := do(t, h, http.MethodPost, "/api/refresh")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.JSONEq(t, `{"queued":true}`, rec.Body.String())
	require.Equal(t, 1, src.refresh)

	rec = do(t, h, http.MethodGet, "/api/refresh")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "slotwatch_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	h := New(&fakeSource{}, WithGatherer(reg)).Handler()
	rec := do(t, h, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "slotwatch_test_total 1"))
}
