// Package calendar walks the date picker: it lists selectable days of the
// displayed month, opens a day and moves to the next month while keeping
// its own idea of which month is showing.
package calendar

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hazyhaar/slotwatch/internal/frame"
	"github.com/hazyhaar/slotwatch/internal/locate"
	"github.com/hazyhaar/slotwatch/internal/markup"
	"github.com/hazyhaar/slotwatch/internal/poll"
	"github.com/hazyhaar/slotwatch/internal/surface"
)

// DefaultHeaderWait bounds the wait for the header to move after a
// next-month click.
const DefaultHeaderWait = 3 * time.Second

// Walker holds the state of one traversal. It is created per run and
// never shared.
type Walker struct {
	Markup     markup.Markup
	Locator    *locate.Locator
	HeaderWait time.Duration
	Logger     *slog.Logger

	doc    surface.Document
	today  time.Time
	cursor Cursor
}

// New binds a walker to the calendar context doc. The cursor starts at
// the displayed header when it can be read, otherwise at today's month.
func New(doc surface.Document, m markup.Markup, loc *locate.Locator, today time.Time, logger *slog.Logger) *Walker {
	if logger == nil {
		logger = slog.Default()
	}
	y, mo, d := today.Date()
	w := &Walker{
		Markup:     m,
		Locator:    loc,
		HeaderWait: DefaultHeaderWait,
		Logger:     logger,
		doc:        doc,
		today:      time.Date(y, mo, d, 0, 0, 0, 0, today.Location()),
		cursor:     CursorOf(today),
	}
	if c, _, ok := w.readHeader(); ok {
		w.cursor = c
	}
	return w
}

// Cursor returns the month the walker believes is displayed.
func (w *Walker) Cursor() Cursor { return w.cursor }

// Today is the run's reference date, truncated to midnight.
func (w *Walker) Today() time.Time { return w.today }

// readHeader returns the first parseable header and its raw text.
func (w *Walker) readHeader() (Cursor, string, bool) {
	for _, sel := range w.Markup.Header {
		els, err := w.doc.Query(sel)
		if err != nil {
			continue
		}
		for _, el := range els {
			if !el.Visible() {
				continue
			}
			text := el.Text()
			if mo, y, ok := ParseHeader(text); ok {
				return Cursor{Month: mo, Year: y}, text, true
			}
		}
	}
	return Cursor{}, "", false
}

// headerText is the raw header text, parseable or not.
func (w *Walker) headerText() string {
	for _, sel := range w.Markup.Header {
		texts, err := w.doc.Texts(sel)
		if err == nil && len(texts) > 0 {
			return texts[0]
		}
	}
	return ""
}

// dayControls returns the enabled in-month day controls keyed by number,
// in document order.
func (w *Walker) dayControls() ([]int, map[int]surface.Element) {
	els, err := w.doc.Query(w.Markup.DayControl)
	if err != nil {
		w.Logger.Debug("calendar: query days", "error", err)
		return nil, nil
	}
	var order []int
	byDay := make(map[int]surface.Element)
	for _, el := range els {
		n, ok := frame.DayNumber(el.Text())
		if !ok {
			continue
		}
		if !el.Visible() || !w.Locator.Enabled(el) {
			continue
		}
		if w.Markup.OutsideMonthClass != "" && locate.HasClass(el, w.Markup.OutsideMonthClass) {
			continue
		}
		if _, dup := byDay[n]; dup {
			continue
		}
		byDay[n] = el
		order = append(order, n)
	}
	return order, byDay
}

// EnabledDays lists the selectable day numbers of the cursor month in
// ascending order. Days that do not exist in the month, or fall before
// today, are dropped even when the page renders them as selectable.
func (w *Walker) EnabledDays() []int {
	order, _ := w.dayControls()
	days := make([]int, 0, len(order))
	for _, n := range order {
		if !w.cursor.Valid(n) {
			continue
		}
		if w.cursor.Date(n, w.today.Location()).Before(w.today) {
			continue
		}
		days = append(days, n)
	}
	sort.Ints(days)
	return days
}

// SelectDay re-queries the day controls and clicks the one labelled day.
func (w *Walker) SelectDay(ctx context.Context, day int) bool {
	if ctx.Err() != nil {
		return false
	}
	_, byDay := w.dayControls()
	el, ok := byDay[day]
	if !ok {
		w.Logger.Debug("calendar: day control gone", "day", day, "month", w.cursor.String())
		return false
	}
	tier, err := w.Locator.Click(el)
	if err != nil {
		w.Logger.Debug("calendar: day click failed", "day", day, "error", err)
		return false
	}
	w.Logger.Debug("calendar: day selected", "day", day, "tier", tier.String())
	return true
}

// nextControls lists next-month candidates by strategy rank.
func (w *Walker) nextControls(ctx context.Context) []surface.Element {
	var out []surface.Element
	for _, sel := range w.Markup.NextMonth {
		els, err := w.doc.Query(sel)
		if err != nil {
			continue
		}
		for _, el := range els {
			if el.Visible() && w.Locator.Enabled(el) {
				out = append(out, el)
			}
		}
	}
	if el, ok := w.Locator.FindClickable(ctx, w.doc, w.Markup.NextMonthLabels, []string{"button"}, 0); ok {
		out = append(out, el)
	}
	return out
}

// AdvanceMonth activates the next-month control and moves the cursor.
// A parseable header is authoritative: when it does not read a later month
// after the click, the calendar did not move and the walk has reached its
// end. The cursor is incremented only when no header can be parsed. It
// reports false when no control could be activated or the calendar stayed
// put.
func (w *Walker) AdvanceMonth(ctx context.Context) bool {
	before := w.headerText()
	prev := w.cursor
	for _, el := range w.nextControls(ctx) {
		if ctx.Err() != nil {
			return false
		}
		if _, err := w.Locator.Click(el); err != nil {
			continue
		}
		poll.For(ctx, w.HeaderWait, w.Locator.Interval, func() bool {
			t := w.headerText()
			return t != "" && !strings.EqualFold(t, before)
		})
		c, text, ok := w.readHeader()
		switch {
		case !ok:
			w.cursor = prev.Advance()
		case prev.Before(c):
			w.cursor = c
		default:
			w.Logger.Debug("calendar: header did not advance", "month", prev.String(), "header", text)
			return false
		}
		w.Logger.Debug("calendar: month advanced", "from", prev.String(), "to", w.cursor.String())
		return true
	}
	w.Logger.Debug("calendar: no next-month control", "month", prev.String())
	return false
}
