// Package locate finds interactive controls by what they say rather than
// by exact markup, and clicks them through escalating interaction tiers.
package locate

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/slotwatch/internal/poll"
	"github.com/hazyhaar/slotwatch/internal/surface"
)

// DefaultTags is the preference order used when scanning for controls.
var DefaultTags = []string{"button", "div", "span", "a"}

// Tier identifies the interaction that delivered a click.
type Tier int

const (
	TierNone Tier = iota
	TierDirect
	TierScript
	TierPointer
	TierHitTest
)

var tierNames = [...]string{"none", "direct", "script", "pointer", "hittest"}

func (t Tier) String() string {
	if int(t) < len(tierNames) {
		return tierNames[t]
	}
	return "unknown"
}

// Locator holds the matching knobs shared by every lookup in a run.
type Locator struct {
	// Interval between evaluations while waiting for a control.
	Interval time.Duration
	// DisabledClasses mark a control as disabled.
	DisabledClasses []string
	Logger          *slog.Logger
}

// New returns a Locator with the default disabled marker.
func New(interval time.Duration, logger *slog.Logger) *Locator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{Interval: interval, DisabledClasses: []string{"Mui-disabled"}, Logger: logger}
}

func (l *Locator) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

// Enabled reports whether el can be activated.
func (l *Locator) Enabled(el surface.Element) bool {
	if _, ok := el.Attr("disabled"); ok {
		return false
	}
	if v, ok := el.Attr("aria-disabled"); ok && strings.EqualFold(strings.TrimSpace(v), "true") {
		return false
	}
	return !HasClass(el, l.DisabledClasses...)
}

// HasClass reports whether el carries any of the given classes.
func HasClass(el surface.Element, classes ...string) bool {
	attr, ok := el.Attr("class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(attr) {
		for _, want := range classes {
			if c == want {
				return true
			}
		}
	}
	return false
}

// Matches reports whether el's rendered text or aria-label contains any
// of labels, case-insensitively.
func Matches(el surface.Element, labels []string) bool {
	text := strings.ToLower(el.Text())
	aria, _ := el.Attr("aria-label")
	aria = strings.ToLower(aria)
	for _, l := range labels {
		l = strings.ToLower(strings.TrimSpace(l))
		if l == "" {
			continue
		}
		if strings.Contains(text, l) || strings.Contains(aria, l) {
			return true
		}
	}
	return false
}

// candidates returns the visible, enabled elements of doc matching labels,
// tags in preference order, document order within a tag.
func (l *Locator) candidates(doc surface.Document, labels, tags []string) []surface.Element {
	if len(tags) == 0 {
		tags = DefaultTags
	}
	var out []surface.Element
	for _, tag := range tags {
		els, err := doc.Query(tag)
		if err != nil {
			continue
		}
		for _, el := range els {
			if Matches(el, labels) && el.Visible() && l.Enabled(el) && !l.wraps(el, tag, labels) {
				out = append(out, el)
			}
		}
	}
	return out
}

// wraps reports whether el contains a visible, enabled descendant of the
// same tag that also matches, in which case the descendant is the real
// control.
func (l *Locator) wraps(el surface.Element, tag string, labels []string) bool {
	inner, err := el.Query(tag)
	if err != nil {
		return false
	}
	for _, in := range inner {
		if Matches(in, labels) && in.Visible() && l.Enabled(in) {
			return true
		}
	}
	return false
}

// FindClickable waits up to timeout for a visible, enabled control whose
// text or aria-label contains one of labels. The first match in tag
// preference order wins.
func (l *Locator) FindClickable(ctx context.Context, doc surface.Document, labels, tags []string, timeout time.Duration) (surface.Element, bool) {
	var found surface.Element
	poll.For(ctx, timeout, l.Interval, func() bool {
		if c := l.candidates(doc, labels, tags); len(c) > 0 {
			found = c[0]
			return true
		}
		return false
	})
	return found, found != nil
}

// FindExact returns the first visible, enabled control whose trimmed text
// equals text, case-insensitively.
func (l *Locator) FindExact(doc surface.Document, tags []string, text string) (surface.Element, bool) {
	if len(tags) == 0 {
		tags = DefaultTags
	}
	for _, tag := range tags {
		els, err := doc.Query(tag)
		if err != nil {
			continue
		}
		for _, el := range els {
			if strings.EqualFold(strings.TrimSpace(el.Text()), text) && el.Visible() && l.Enabled(el) {
				return el, true
			}
		}
	}
	return nil, false
}

// Click escalates through the interaction tiers and returns the first one
// that did not error. It does not check that the click had any effect.
func (l *Locator) Click(el surface.Element) (Tier, error) {
	tiers := []struct {
		tier Tier
		fn   func() error
	}{
		{TierDirect, el.Click},
		{TierScript, el.ScriptClick},
		{TierPointer, el.PointerClick},
		{TierHitTest, el.HitTestClick},
	}
	var err error
	for _, t := range tiers {
		if err = t.fn(); err == nil {
			return t.tier, nil
		}
		l.logger().Debug("locate: click tier failed", "tier", t.tier.String(), "error", err)
	}
	return TierNone, err
}

// ClickText finds a control matching labels and clicks it. When every tier
// fails on a candidate, the next candidate is tried.
func (l *Locator) ClickText(ctx context.Context, doc surface.Document, labels, tags []string, timeout time.Duration) bool {
	if _, ok := l.FindClickable(ctx, doc, labels, tags, timeout); !ok {
		return false
	}
	for _, el := range l.candidates(doc, labels, tags) {
		if tier, err := l.Click(el); err == nil {
			l.logger().Debug("locate: clicked", "text", el.Text(), "tier", tier.String())
			return true
		}
	}
	return false
}
