// Package schedule drives periodic runs: a daily run window, a fixed
// interval between runs, and manual triggers that cut the wait short.
//
//	loop := schedule.New(schedule.Options{Interval: 5 * time.Minute, Window: w})
//	go loop.WatchLines(ctx, os.Stdin)
//	loop.Run(ctx, func(ctx context.Context) { watcher.RunOnce(ctx) })
package schedule

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"
)

// Window limits runs to a span of local hours. Start is inclusive from the
// top of the hour, End is inclusive up to the top of the hour. A nil bound
// on either side means always on. Start > End wraps past midnight.
type Window struct {
	Start *int `yaml:"start_hour" json:"start_hour"`
	End   *int `yaml:"end_hour" json:"end_hour"`
}

// Hours builds a Window from two hours.
func Hours(start, end int) Window {
	return Window{Start: &start, End: &end}
}

// Always reports whether the window is unbounded.
func (w Window) Always() bool { return w.Start == nil || w.End == nil }

// Validate rejects hours outside 0-23.
func (w Window) Validate() error {
	for _, h := range []*int{w.Start, w.End} {
		if h != nil && (*h < 0 || *h > 23) {
			return fmt.Errorf("schedule: hour %d out of range 0-23", *h)
		}
	}
	return nil
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if w.Always() {
		return true
	}
	start := time.Duration(*w.Start) * time.Hour
	end := time.Duration(*w.End) * time.Hour
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	now := t.Sub(day)
	if start <= end {
		return start <= now && now <= end
	}
	return now >= start || now <= end
}

func (w Window) String() string {
	if w.Always() {
		return "always"
	}
	return fmt.Sprintf("%02d:00-%02d:00", *w.Start, *w.End)
}

// Options tunes the loop.
type Options struct {
	// Interval is the wait between the end of one run and the next.
	// Default: 5m.
	Interval time.Duration
	// IdleCheck is how often the window is re-checked while outside it.
	// Default: 60s.
	IdleCheck time.Duration
	Window    Window
	// Now overrides the clock used for the window.
	Now    func() time.Time
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = 5 * time.Minute
	}
	if o.IdleCheck <= 0 {
		o.IdleCheck = 60 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Stats are point-in-time counters.
type Stats struct {
	Runs     int64  `json:"runs"`
	Manual   int64  `json:"manual"`
	Skipped  int64  `json:"skipped"`
	LastRun  int64  `json:"last_run_unix"`
	Interval string `json:"interval"`
}

// Loop runs a function periodically. Runs never overlap: fn is always
// called from the goroutine that called Run.
type Loop struct {
	opts    Options
	trigger chan struct{}

	runs    atomic.Int64
	manual  atomic.Int64
	skipped atomic.Int64
	lastRun atomic.Int64
}

// New creates a Loop. Call Run to start it.
func New(opts Options) *Loop {
	opts.defaults()
	return &Loop{opts: opts, trigger: make(chan struct{}, 1)}
}

// Trigger requests a run as soon as the current one (if any) finishes.
// Requests coalesce: it reports false when one is already pending.
func (l *Loop) Trigger() bool {
	select {
	case l.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Stats returns the current counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Runs:     l.runs.Load(),
		Manual:   l.manual.Load(),
		Skipped:  l.skipped.Load(),
		LastRun:  l.lastRun.Load(),
		Interval: l.opts.Interval.String(),
	}
}

// Run blocks until ctx is cancelled. It calls fn immediately when inside
// the window, then again after each Interval or on Trigger.
func (l *Loop) Run(ctx context.Context, fn func(ctx context.Context)) {
	log := l.opts.Logger
	log.Info("schedule: started", "interval", l.opts.Interval, "window", l.opts.Window.String())

	for {
		if ctx.Err() != nil {
			log.Info("schedule: stopped")
			return
		}
		if !l.opts.Window.Contains(l.opts.Now()) {
			l.skipped.Add(1)
			log.Info("schedule: outside run window", "window", l.opts.Window.String(), "recheck", l.opts.IdleCheck)
			if !l.wait(ctx, l.opts.IdleCheck) {
				log.Info("schedule: stopped")
				return
			}
			continue
		}

		fn(ctx)
		l.runs.Add(1)
		l.lastRun.Store(l.opts.Now().Unix())

		timer := time.NewTimer(l.opts.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info("schedule: stopped")
			return
		case <-l.trigger:
			timer.Stop()
			l.manual.Add(1)
			log.Info("schedule: manual refresh")
		case <-timer.C:
		}
	}
}

// wait sleeps for d, returning early on a trigger. It reports false when
// ctx ends first.
func (l *Loop) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-l.trigger:
		return true
	case <-timer.C:
		return true
	}
}

// WatchLines triggers a run for every line read from r, typically stdin,
// until r is exhausted or ctx ends.
func (l *Loop) WatchLines(ctx context.Context, r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		l.Trigger()
	}
}
