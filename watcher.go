// Package slotwatch keeps a kiosk page of open exam appointments current.
// It drives the booking site in a stealth Chrome, walks the calendar a
// bounded number of months and days ahead, and renders what it found as a
// self-contained HTML page with a QR code to the booking site.
//
// Runs are periodic and independent: nothing carries over from one run to
// the next except the run history kept for operators.
package slotwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/slotwatch/internal/browser"
	"github.com/hazyhaar/slotwatch/internal/diag"
	"github.com/hazyhaar/slotwatch/internal/metrics"
	"github.com/hazyhaar/slotwatch/internal/render"
	"github.com/hazyhaar/slotwatch/internal/runlog"
	"github.com/hazyhaar/slotwatch/internal/schedule"
	"github.com/hazyhaar/slotwatch/internal/scrape"
	"github.com/hazyhaar/slotwatch/internal/server"
	"github.com/hazyhaar/slotwatch/internal/surface"
	"github.com/hazyhaar/slotwatch/internal/update"
)

// Watcher is the top-level orchestrator. It owns the runner, the page
// renderer, the run history and the update cycle.
type Watcher struct {
	cfg      *Config
	opener   scrape.Opener
	runner   *scrape.Runner
	renderer *render.Renderer
	diag     *diag.Recorder
	history  *runlog.Store
	metrics  *metrics.RunMetrics
	registry *prometheus.Registry
	updater  *update.Updater
	restart  func() error
	loop     *schedule.Loop
	now      func() time.Time
	logger   *slog.Logger

	mu         sync.RWMutex
	lastPage   []byte
	lastResult *scrape.Result
	runs       int

	ticks int // scheduled cycles attempted; touched only by tick
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithOpener replaces the Chrome session factory.
func WithOpener(o scrape.Opener) Option {
	return func(w *Watcher) { w.opener = o }
}

// WithRegistry sets the Prometheus registry. Default: a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(w *Watcher) { w.registry = reg }
}

// WithUpdateRunner replaces the command runner of the updater.
func WithUpdateRunner(run update.Runner) Option {
	return func(w *Watcher) { w.updater = update.New(w.cfg.Update.Config, run, w.logger) }
}

// WithRestart replaces the process restart after an update.
func WithRestart(fn func() error) Option {
	return func(w *Watcher) { w.restart = fn }
}

// WithClock sets the source of the current time.
func WithClock(now func() time.Time) Option {
	return func(w *Watcher) { w.now = now }
}

// New creates a Watcher from configuration. It opens the run history
// database unless RunLog.Path is "-".
func New(cfg *Config, logger *slog.Logger, opts ...Option) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{
		cfg:     cfg,
		restart: update.Restart,
		now:     time.Now,
		logger:  logger,
	}
	if !cfg.Update.Disabled {
		w.updater = update.New(cfg.Update.Config, nil, logger)
	}
	for _, o := range opts {
		o(w)
	}
	if w.registry == nil {
		w.registry = prometheus.NewRegistry()
	}
	if w.opener == nil {
		w.opener = browser.Opener(browserConfig(cfg, logger))
	}
	if cfg.Update.Disabled {
		w.updater = nil
	}

	w.diag = diag.New(cfg.Diagnostics.Dir, !cfg.Diagnostics.NoMarkdown, logger)
	w.runner = scrape.New(w.opener, runnerConfig(cfg),
		scrape.WithLogger(logger),
		scrape.WithClock(w.now),
		scrape.WithDiagnostics(w.diag),
	)
	w.renderer = render.New(render.Options{
		Title:          cfg.Render.Title,
		Subtitle:       cfg.Render.Subtitle,
		FooterHTML:     cfg.Render.FooterHTML,
		LogoFiles:      cfg.Render.LogoFiles,
		RefreshSeconds: cfg.Render.RefreshSeconds,
		QRSize:         cfg.Render.QRSize,
	})
	w.metrics = metrics.NewRunMetrics(w.registry)
	w.loop = schedule.New(schedule.Options{
		Interval: cfg.Schedule.Interval,
		Window:   cfg.Schedule.Window,
		Now:      w.now,
		Logger:   logger,
	})

	if cfg.RunLog.Path != "-" {
		st, err := runlog.Open(cfg.RunLog.Path)
		if err != nil {
			return nil, fmt.Errorf("slotwatch: %w", err)
		}
		w.history = st
	}
	return w, nil
}

func browserConfig(cfg *Config, logger *slog.Logger) browser.Config {
	return browser.Config{
		Remote:           cfg.Browser.Remote,
		Bin:              cfg.Browser.Bin,
		Headful:          cfg.Browser.Headful,
		XvfbDisplay:      cfg.Browser.XvfbDisplay,
		NoSandbox:        cfg.Browser.NoSandbox,
		WindowWidth:      cfg.Browser.WindowWidth,
		WindowHeight:     cfg.Browser.WindowHeight,
		UserAgent:        cfg.Browser.UserAgent,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		NavTimeout:       cfg.Browser.NavTimeout,
		Logger:           logger,
	}
}

func runnerConfig(cfg *Config) scrape.Config {
	return scrape.Config{
		Budget:           cfg.Budget,
		Markup:           cfg.Markup,
		Intro:            cfg.Timing.Intro,
		Slots:            cfg.Timing.Slots,
		PollInterval:     cfg.Timing.PollInterval,
		CalendarTimeout:  cfg.Timing.CalendarTimeout,
		HeaderWait:       cfg.Timing.HeaderWait,
		MaxFrameDepth:    cfg.Timing.MaxFrameDepth,
		CaptureEmptyDays: cfg.Diagnostics.CaptureEmptyDays,
	}
}

// Close releases the run history.
func (w *Watcher) Close() error {
	if w.history != nil {
		return w.history.Close()
	}
	return nil
}

// RunOnce performs one run, renders and writes the page, and records the
// outcome. The page is written even when the run failed: it then shows
// whatever was collected, possibly nothing.
func (w *Watcher) RunOnce(ctx context.Context) (scrape.Result, error) {
	url := w.cfg.URL()
	res := w.runner.Run(ctx, url)

	now := w.now()
	page, err := w.renderer.Render(render.Page{
		Store:      strconv.Itoa(w.cfg.StoreNumber),
		BookingURL: url,
		Days:       res.Days,
		Today:      now,
		Updated:    now,
		Banner:     w.updater != nil && w.updater.BannerSet(),
		Notice:     notice(res),
	})
	if err != nil {
		return res, fmt.Errorf("slotwatch: %w", err)
	}
	if err := render.WriteFile(w.cfg.Render.Output, page); err != nil {
		return res, fmt.Errorf("slotwatch: %w", err)
	}

	w.mu.Lock()
	w.lastPage = page
	w.lastResult = &res
	w.runs++
	w.mu.Unlock()

	w.metrics.ObserveRun(res)
	if w.history != nil {
		// The run is over; a cancelled ctx must not lose its record.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := w.history.Record(rctx, res); err != nil {
			w.logger.Warn("slotwatch: record run", "error", err)
		}
	}
	w.logger.Info("slotwatch: page written", "path", w.cfg.Render.Output,
		"status", string(res.Status), "days", len(res.Days))
	return res, nil
}

// notice is the small-print line for runs that did not complete.
func notice(res scrape.Result) string {
	switch res.Status {
	case scrape.StatusFailed, scrape.StatusNoCalendar:
		return "Last check did not complete (" + string(res.Status) + "), showing what was found"
	}
	return ""
}

// Replay runs the walker and extractor against saved markup instead of the
// live site. Clicks have no effect on static markup, so at most one day is
// opened: the one the page already shows.
func (w *Watcher) Replay(ctx context.Context, markup string) (scrape.Result, error) {
	st, err := surface.NewStatic(markup)
	if err != nil {
		return scrape.Result{}, fmt.Errorf("slotwatch: replay: %w", err)
	}
	cfg := runnerConfig(w.cfg)
	cfg.Budget.MonthsToScan = 1
	cfg.Budget.MaxDaysPerRun = 1
	cfg.CalendarTimeout = cfg.PollInterval
	cfg.Intro.Cookies = cfg.PollInterval
	runner := scrape.New(scrape.OpenerFunc(func(context.Context) (surface.Session, error) {
		return st, nil
	}), cfg, scrape.WithLogger(w.logger), scrape.WithClock(w.now))
	return runner.Run(ctx, "replay:"), nil
}

// Start checks for an update, then runs on schedule until ctx ends. The
// HTTP server runs alongside when Server.Addr is set.
func (w *Watcher) Start(ctx context.Context) error {
	if w.updateIfAvailable(ctx) {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if addr := w.cfg.Server.Addr; addr != "" {
		srv := &http.Server{Addr: addr, Handler: w.Handler(), ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			w.logger.Info("slotwatch: http listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("slotwatch: http: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}
	if w.cfg.Schedule.StdinRefresh {
		go w.loop.WatchLines(gctx, os.Stdin)
	}
	g.Go(func() error {
		w.loop.Run(gctx, w.tick)
		st := w.loop.Stats()
		w.logger.Info("slotwatch: schedule stopped", "runs", st.Runs, "manual", st.Manual, "skipped", st.Skipped)
		return nil
	})
	return g.Wait()
}

// tick is one scheduled cycle: apply a pending update, run, and check for
// updates every CheckEvery cycles. Cycles count attempts, so a run that
// fails to write its page does not trigger housekeeping on every tick.
func (w *Watcher) tick(ctx context.Context) {
	w.ticks++
	if w.updater != nil && w.updater.BannerSet() {
		if w.applyUpdate(ctx) {
			return
		}
	}
	if _, err := w.RunOnce(ctx); err != nil {
		w.logger.Error("slotwatch: run", "error", err)
	}
	if w.history != nil && w.ticks%50 == 0 {
		if n, err := w.history.Cleanup(ctx, w.cfg.RunLog.Retention); err != nil {
			w.logger.Warn("slotwatch: history cleanup", "error", err)
		} else if n > 0 {
			w.logger.Info("slotwatch: history cleaned", "removed", n)
		}
	}
	if w.updater != nil && w.ticks%w.updater.CheckEvery() == 0 {
		w.updateIfAvailable(ctx)
	}
}

// updateIfAvailable reports true when an update was applied and the
// process should stop.
func (w *Watcher) updateIfAvailable(ctx context.Context) bool {
	if w.updater == nil {
		return false
	}
	avail, err := w.updater.Available(ctx)
	if err != nil {
		w.logger.Warn("slotwatch: update check", "error", err)
		return false
	}
	if !avail {
		if err := w.updater.SetBanner(false); err != nil {
			w.logger.Warn("slotwatch: clear banner", "error", err)
		}
		return false
	}
	w.logger.Warn("slotwatch: update required")
	if err := w.updater.SetBanner(true); err != nil {
		w.logger.Warn("slotwatch: set banner", "error", err)
	}
	return w.applyUpdate(ctx)
}

// applyUpdate shows the banner on the current page, pulls and restarts.
// A failed update leaves the banner set so the next cycle retries.
func (w *Watcher) applyUpdate(ctx context.Context) bool {
	if err := render.InjectBanner(w.cfg.Render.Output); err != nil {
		w.logger.Debug("slotwatch: inject banner", "error", err)
	}
	if err := w.updater.Apply(ctx); err != nil {
		w.logger.Error("slotwatch: update failed", "error", err)
		return false
	}
	w.logger.Info("slotwatch: update complete, restarting")
	if err := w.restart(); err != nil {
		w.logger.Error("slotwatch: restart", "error", err)
	}
	return true
}

// Refresh asks the schedule for an immediate run.
func (w *Watcher) Refresh() bool { return w.loop.Trigger() }

// Runs is the number of runs finished by this process.
func (w *Watcher) Runs() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.runs
}

// LastPage is the most recently rendered page.
func (w *Watcher) LastPage() ([]byte, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastPage, w.lastPage != nil
}

// LastResult is the outcome of the most recent run.
func (w *Watcher) LastResult() (scrape.Result, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.lastResult == nil {
		return scrape.Result{}, false
	}
	return *w.lastResult, true
}

// Recent returns the run history, newest first.
func (w *Watcher) Recent(ctx context.Context, n int) ([]runlog.Entry, error) {
	if w.history == nil {
		return nil, server.ErrNoHistory
	}
	return w.history.Recent(ctx, n)
}

// Handler returns the HTTP surface: the page, run state and metrics.
func (w *Watcher) Handler() http.Handler {
	return server.New(w, server.WithGatherer(w.registry), server.WithLogger(w.logger)).Handler()
}
