// Package slots reads the time slots of an opened day. It prefers the
// tabbed morning/afternoon/evening panel and falls back to scanning every
// visible text for time tokens.
package slots

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hazyhaar/slotwatch/appointment"
	"github.com/hazyhaar/slotwatch/internal/locate"
	"github.com/hazyhaar/slotwatch/internal/markup"
	"github.com/hazyhaar/slotwatch/internal/poll"
	"github.com/hazyhaar/slotwatch/internal/surface"
)

// Layout names the strategy that produced a Result.
type Layout string

const (
	LayoutTabbed Layout = "tabbed"
	LayoutFlat   Layout = "flat"
)

// Timing bounds the waits of the extractor.
type Timing struct {
	SettleTries int           `yaml:"settle_tries"`
	SettleDelay time.Duration `yaml:"settle_delay"`
	SettleDelta int           `yaml:"settle_delta"` // bytes of markup growth that count as a change
	TabWait     time.Duration `yaml:"tab_wait"`
	TabPause    time.Duration `yaml:"tab_pause"`
	StableTries int           `yaml:"stable_tries"`
}

// DefaultTiming matches the pace of the live site.
func DefaultTiming() Timing {
	return Timing{
		SettleTries: 24,
		SettleDelay: 350 * time.Millisecond,
		SettleDelta: 250,
		TabWait:     3 * time.Second,
		TabPause:    350 * time.Millisecond,
		StableTries: 6,
	}
}

// WithDefaults fills every unset field from DefaultTiming.
func (t Timing) WithDefaults() Timing {
	def := DefaultTiming()
	if t.SettleTries <= 0 {
		t.SettleTries = def.SettleTries
	}
	if t.SettleDelay <= 0 {
		t.SettleDelay = def.SettleDelay
	}
	if t.SettleDelta <= 0 {
		t.SettleDelta = def.SettleDelta
	}
	if t.TabWait <= 0 {
		t.TabWait = def.TabWait
	}
	if t.TabPause <= 0 {
		t.TabPause = def.TabPause
	}
	if t.StableTries <= 0 {
		t.StableTries = def.StableTries
	}
	return t
}

// Result is what one day yielded. Slots has every DayPart key.
type Result struct {
	Slots     map[appointment.DayPart][]string
	Providers []string
	Layout    Layout
}

// Extractor reads slot panels.
type Extractor struct {
	Markup  markup.Markup
	Locator *locate.Locator
	Timing  Timing
	Logger  *slog.Logger
}

// New returns an Extractor. A nil logger falls back to slog.Default().
func New(m markup.Markup, loc *locate.Locator, timing Timing, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{Markup: m, Locator: loc, Timing: timing, Logger: logger}
}

// ContentLength is the size of doc's markup, 0 when unreadable.
func ContentLength(doc surface.Document) int {
	h, err := doc.HTML()
	if err != nil {
		return 0
	}
	return len(h)
}

// AwaitSettled waits for the slot panel after a day was clicked. before is
// the content length measured just before the click. It returns false when
// the attempt budget ran out, in which case the caller extracts anyway.
func (e *Extractor) AwaitSettled(ctx context.Context, doc surface.Document, before int) bool {
	prev := before
	return poll.Until(ctx, e.Timing.SettleTries, e.Timing.SettleDelay, func() bool {
		if els, err := doc.Query(e.Markup.SlotPanel); err == nil && len(els) > 0 {
			return true
		}
		h, err := doc.HTML()
		if err != nil {
			return false
		}
		if appointment.TimePattern.MatchString(h) {
			return true
		}
		delta := len(h) - prev
		prev = len(h)
		return delta > e.Timing.SettleDelta || delta < -e.Timing.SettleDelta
	})
}

// Extract reads the opened day from doc.
func (e *Extractor) Extract(ctx context.Context, doc surface.Document) Result {
	if res, ok := e.tabbed(ctx, doc); ok {
		return res
	}
	return e.flat(doc)
}

func emptySlots() map[appointment.DayPart][]string {
	m := make(map[appointment.DayPart][]string, len(appointment.DayParts))
	for _, p := range appointment.DayParts {
		m[p] = []string{}
	}
	return m
}

// findTab returns the visible tab whose text contains label.
func (e *Extractor) findTab(doc surface.Document, label string) (surface.Element, bool) {
	els, err := doc.Query(e.Markup.Tabs)
	if err != nil {
		return nil, false
	}
	for _, el := range els {
		if strings.Contains(strings.ToUpper(el.Text()), strings.ToUpper(label)) && el.Visible() {
			return el, true
		}
	}
	return nil, false
}

func (e *Extractor) anyTab(doc surface.Document) bool {
	for _, label := range e.Markup.TabLabels {
		if _, ok := e.findTab(doc, label); ok {
			return true
		}
	}
	return false
}

func (e *Extractor) tabbed(ctx context.Context, doc surface.Document) (Result, bool) {
	if !poll.For(ctx, e.Timing.TabWait, e.Locator.Interval, func() bool { return e.anyTab(doc) }) {
		return Result{}, false
	}
	res := Result{Slots: emptySlots(), Layout: LayoutTabbed}
	providers := map[string]bool{}
	for i, part := range appointment.DayParts {
		if i >= len(e.Markup.TabLabels) {
			break
		}
		tab, ok := e.findTab(doc, e.Markup.TabLabels[i])
		if !ok {
			e.Logger.Debug("slots: tab absent", "part", string(part))
			continue
		}
		if _, err := e.Locator.Click(tab); err != nil {
			e.Logger.Debug("slots: tab click failed", "part", string(part), "error", err)
			continue
		}
		poll.Sleep(ctx, e.Timing.TabPause)
		e.awaitStable(ctx, doc)

		times, names := e.readBoxes(doc)
		res.Slots[part] = sortedUnique(times)
		for _, n := range names {
			providers[n] = true
		}
	}
	res.Providers = keys(providers)
	return res, true
}

// awaitStable waits until two consecutive polls see the same number of
// slot boxes.
func (e *Extractor) awaitStable(ctx context.Context, doc surface.Document) {
	last := -1
	poll.Until(ctx, e.Timing.StableTries, e.Timing.TabPause, func() bool {
		els, err := doc.Query(e.Markup.SlotBox)
		if err != nil {
			return false
		}
		n := len(els)
		stable := n == last
		last = n
		return stable
	})
}

func (e *Extractor) readBoxes(doc surface.Document) (times, providers []string) {
	boxes, err := doc.Query(e.Markup.SlotBox)
	if err != nil {
		return nil, nil
	}
	for _, box := range boxes {
		if !box.Visible() {
			continue
		}
		full := box.Text()
		if t, ok := First(TimeMatchers, subText(box, e.Markup.SlotTime), full); ok {
			times = append(times, t)
		}
		if p, ok := First(ProviderMatchers, subText(box, e.Markup.SlotProvider), full); ok {
			providers = append(providers, p)
		}
	}
	return times, providers
}

// subText is the text of the first sub-element matching selector, or ""
// when it is absent or unreadable.
func subText(el surface.Element, selector string) string {
	if selector == "" {
		return ""
	}
	els, err := el.Query(selector)
	if err != nil || len(els) == 0 {
		return ""
	}
	return els[0].Text()
}

func (e *Extractor) flat(doc surface.Document) Result {
	res := Result{Slots: emptySlots(), Layout: LayoutFlat}
	texts, err := doc.Texts(e.Markup.FlatScan)
	if err != nil {
		e.Logger.Debug("slots: flat scan", "error", err)
		return res
	}
	buckets := map[appointment.DayPart][]string{}
	providers := map[string]bool{}
	for _, t := range texts {
		for _, raw := range appointment.TimePattern.FindAllString(t, -1) {
			if label, ok := appointment.NormalizeTime(raw); ok {
				part := appointment.Bucket(label)
				buckets[part] = append(buckets[part], label)
			}
		}
		for _, raw := range appointment.ProviderPattern.FindAllString(t, -1) {
			if name, ok := honorificName(raw); ok {
				providers[name] = true
			}
		}
	}
	for part, labels := range buckets {
		res.Slots[part] = sortedUnique(labels)
	}
	res.Providers = keys(providers)
	return res
}

func sortedUnique(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
