// Package scrape runs one complete pass over the scheduling site: open a
// session, get through the intro, walk the calendar within the budget and
// collect each opened day.
package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/hazyhaar/slotwatch/appointment"
	"github.com/hazyhaar/slotwatch/internal/calendar"
	"github.com/hazyhaar/slotwatch/internal/frame"
	"github.com/hazyhaar/slotwatch/internal/intro"
	"github.com/hazyhaar/slotwatch/internal/locate"
	"github.com/hazyhaar/slotwatch/internal/markup"
	"github.com/hazyhaar/slotwatch/internal/slots"
	"github.com/hazyhaar/slotwatch/internal/surface"
)

// Opener acquires a fresh session for one run.
type Opener interface {
	Open(ctx context.Context) (surface.Session, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context) (surface.Session, error)

func (f OpenerFunc) Open(ctx context.Context) (surface.Session, error) { return f(ctx) }

// Diagnostics captures a best-effort snapshot of a session. It returns the
// artifact base path, or "" when nothing was written.
type Diagnostics interface {
	Capture(ctx context.Context, sess surface.Session, name string) string
}

// Config bounds and tunes a run.
type Config struct {
	Budget          appointment.Budget
	Markup          markup.Markup
	Intro           intro.Timing
	Slots           slots.Timing
	PollInterval    time.Duration
	CalendarTimeout time.Duration
	HeaderWait      time.Duration
	MaxFrameDepth   int
	// CaptureEmptyDays writes a diagnostic for every opened day without slots.
	CaptureEmptyDays bool
}

func (c *Config) defaults() {
	if c.Budget.MonthsToScan <= 0 {
		c.Budget.MonthsToScan = 2
	}
	if c.Budget.MaxDaysPerRun <= 0 {
		c.Budget.MaxDaysPerRun = 6
	}
	c.Markup = c.Markup.Merge(markup.Default())
	c.Intro = c.Intro.WithDefaults()
	c.Slots = c.Slots.WithDefaults()
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	if c.CalendarTimeout <= 0 {
		c.CalendarTimeout = 20 * time.Second
	}
	if c.HeaderWait <= 0 {
		c.HeaderWait = calendar.DefaultHeaderWait
	}
	if c.MaxFrameDepth <= 0 {
		c.MaxFrameDepth = frame.DefaultMaxDepth
	}
}

// Runner executes runs. Runs on one Runner must not overlap.
type Runner struct {
	opener Opener
	cfg    Config
	diag   Diagnostics
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithClock sets the source of "today".
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithDiagnostics sets where failure snapshots go.
func WithDiagnostics(d Diagnostics) Option {
	return func(r *Runner) { r.diag = d }
}

// New creates a Runner.
func New(opener Opener, cfg Config, opts ...Option) *Runner {
	cfg.defaults()
	r := &Runner{
		opener: opener,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Config returns the effective configuration after defaults.
func (r *Runner) Config() Config { return r.cfg }

// Run performs one run against url. It never returns an error and never
// panics: failures are reported through Result.Status and Result.Err, and
// the session is always closed.
func (r *Runner) Run(ctx context.Context, url string) (res Result) {
	res = Result{
		RunID:     newRunID(),
		URL:       url,
		StartedAt: r.now(),
		Status:    StatusOK,
		Days:      []appointment.Day{},
	}
	log := r.logger.With("run_id", res.RunID)

	defer func() {
		res.FinishedAt = r.now()
		log.Info("scrape: run finished",
			"status", string(res.Status), "days", len(res.Days), "months", res.Months,
			"duration", res.Duration())
	}()

	sess, err := r.opener.Open(ctx)
	if err != nil {
		res.fail(fmt.Errorf("scrape: open session: %w", err))
		log.Error("scrape: open session", "error", err)
		return res
	}

	defer func() {
		if p := recover(); p != nil {
			res.fail(fmt.Errorf("scrape: panic: %v", p))
			res.Artifact = r.capture(ctx, sess, "last_error_page")
			log.Error("scrape: panic", "panic", p, "stack", string(debug.Stack()))
		}
		if cerr := sess.Close(); cerr != nil {
			log.Warn("scrape: close session", "error", cerr)
		}
	}()

	if err := r.walk(ctx, sess, &res, log); err != nil {
		res.fail(err)
		res.Artifact = r.capture(ctx, sess, "last_error_page")
		log.Error("scrape: run failed", "error", err)
	}
	return res
}

// newRunID returns a time-sortable UUIDv7.
func newRunID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

func (r *Runner) capture(ctx context.Context, sess surface.Session, name string) string {
	if r.diag == nil {
		return ""
	}
	return r.diag.Capture(ctx, sess, name)
}

func (r *Runner) walk(ctx context.Context, sess surface.Session, res *Result, log *slog.Logger) error {
	cfg := r.cfg
	loc := locate.New(cfg.PollInterval, log)
	loc.DisabledClasses = cfg.Markup.DisabledClasses
	resolver := frame.New(cfg.Markup, loc, log)
	resolver.MaxDepth = cfg.MaxFrameDepth
	nav := intro.New(cfg.Markup, loc, resolver, cfg.Intro, log)
	ex := slots.New(cfg.Markup, loc, cfg.Slots, log)

	if err := sess.Navigate(ctx, res.URL); err != nil {
		return fmt.Errorf("scrape: navigate: %w", err)
	}
	top := sess.Top()

	doc, ok := nav.Run(ctx, top)
	if !ok {
		doc, ok = resolver.Await(ctx, top, cfg.CalendarTimeout)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("scrape: %w", err)
	}
	if !ok {
		res.Status = StatusNoCalendar
		res.Artifact = r.capture(ctx, sess, "no_calendar")
		log.Warn("scrape: calendar not found")
		return nil
	}

	today := res.StartedAt
	walker := calendar.New(doc, cfg.Markup, loc, today, log)
	walker.HeaderWait = cfg.HeaderWait
	midnight := walker.Today()
	seen := make(map[string]bool)
	budget := cfg.Budget

months:
	for m := 0; m < budget.MonthsToScan; m++ {
		if m > 0 {
			if len(res.Days) >= budget.MaxDaysPerRun {
				break
			}
			if !walker.AdvanceMonth(ctx) {
				res.Status = StatusPartial
				log.Info("scrape: no further month reachable", "months", res.Months)
				break
			}
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("scrape: %w", err)
		}
		res.Months++
		cursor := walker.Cursor()
		days := walker.EnabledDays()
		log.Debug("scrape: month", "month", cursor.String(), "enabled", len(days))

		for _, n := range days {
			if len(res.Days) >= budget.MaxDaysPerRun {
				res.Status = StatusPartial
				break months
			}
			date := cursor.Date(n, midnight.Location())
			key := date.Format(time.DateOnly)
			if seen[key] || date.Before(midnight) {
				continue
			}

			before := slots.ContentLength(doc)
			if !walker.SelectDay(ctx, n) {
				continue
			}
			if !ex.AwaitSettled(ctx, doc, before) {
				log.Debug("scrape: slot panel did not settle", "date", key)
			}
			out := ex.Extract(ctx, doc)
			day := appointment.NewDay(date, out.Slots, out.Providers)
			if day.Empty() && cfg.CaptureEmptyDays {
				r.capture(ctx, sess, "no_slots_"+key)
			}
			seen[key] = true
			res.Days = append(res.Days, day)
			log.Debug("scrape: day collected", "date", key, "slots", day.Count(), "layout", string(out.Layout))
		}
	}
	return nil
}
