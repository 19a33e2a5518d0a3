// Package frame decides which rendering context hosts the calendar: the
// top page or one of its embedded documents.
package frame

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hazyhaar/slotwatch/internal/locate"
	"github.com/hazyhaar/slotwatch/internal/markup"
	"github.com/hazyhaar/slotwatch/internal/poll"
	"github.com/hazyhaar/slotwatch/internal/surface"
)

// DefaultMaxDepth bounds descent into nested frames.
const DefaultMaxDepth = 3

// Resolver locates the calendar context.
type Resolver struct {
	Markup   markup.Markup
	Locator  *locate.Locator
	MaxDepth int
	Logger   *slog.Logger
}

// New returns a Resolver with the default depth bound.
func New(m markup.Markup, loc *locate.Locator, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{Markup: m, Locator: loc, MaxDepth: DefaultMaxDepth, Logger: logger}
}

// Resolve tests top first, then embedded documents depth-first in document
// order. The first qualifying document wins. When none qualifies it
// returns top and false.
func (r *Resolver) Resolve(top surface.Document) (surface.Document, bool) {
	if doc, ok := r.search(top, 0); ok {
		r.Logger.Debug("frame: calendar resolved", "document", doc.Name())
		return doc, true
	}
	return top, false
}

func (r *Resolver) search(doc surface.Document, depth int) (surface.Document, bool) {
	if r.HasCalendar(doc) {
		return doc, true
	}
	if depth >= r.MaxDepth {
		return nil, false
	}
	frames, err := doc.Frames()
	if err != nil {
		r.Logger.Debug("frame: list frames", "document", doc.Name(), "error", err)
		return nil, false
	}
	for _, f := range frames {
		if found, ok := r.search(f, depth+1); ok {
			return found, true
		}
	}
	return nil, false
}

// HasCalendar reports whether doc shows an enabled next-month control or at
// least one enabled day control labelled 1 to 31.
func (r *Resolver) HasCalendar(doc surface.Document) bool {
	return r.NextMonthControl(doc) != nil || r.hasEnabledDay(doc)
}

// NextMonthControl returns the first enabled next-month control found by
// the ranked selectors, or nil.
func (r *Resolver) NextMonthControl(doc surface.Document) surface.Element {
	for _, sel := range r.Markup.NextMonth {
		els, err := doc.Query(sel)
		if err != nil {
			continue
		}
		for _, el := range els {
			if el.Visible() && r.Locator.Enabled(el) {
				return el
			}
		}
	}
	return nil
}

func (r *Resolver) hasEnabledDay(doc surface.Document) bool {
	els, err := doc.Query(r.Markup.DayControl)
	if err != nil {
		return false
	}
	for _, el := range els {
		if _, ok := DayNumber(el.Text()); ok && r.Locator.Enabled(el) {
			return true
		}
	}
	return false
}

// DayNumber parses a day control label in the range 1 to 31.
func DayNumber(text string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 1 || n > 31 {
		return 0, false
	}
	return n, true
}

// Await polls Resolve until a calendar appears or timeout elapses.
func (r *Resolver) Await(ctx context.Context, top surface.Document, timeout time.Duration) (surface.Document, bool) {
	doc, found := top, false
	poll.For(ctx, timeout, r.Locator.Interval, func() bool {
		doc, found = r.Resolve(top)
		return found
	})
	return doc, found
}
