// Package intro drives the questionnaire the scheduling site shows before
// its calendar: cookie consent, exam selection, the returning-patient
// question and any number of skippable prompts.
//
// Every step is best effort. A missing control means the step does not
// apply to this visit, never that the run failed.
package intro

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/hazyhaar/slotwatch/internal/frame"
	"github.com/hazyhaar/slotwatch/internal/locate"
	"github.com/hazyhaar/slotwatch/internal/markup"
	"github.com/hazyhaar/slotwatch/internal/poll"
	"github.com/hazyhaar/slotwatch/internal/surface"
)

// Timing bounds each intro step.
type Timing struct {
	Cookies            time.Duration `yaml:"cookies"`
	EntryPoint         time.Duration `yaml:"entry_point"`
	Advance            time.Duration `yaml:"advance"`
	SeenBefore         time.Duration `yaml:"seen_before"`
	Optional           time.Duration `yaml:"optional"`
	OptionalPause      time.Duration `yaml:"optional_pause"`
	MaxOptionalPrompts int           `yaml:"max_optional_prompts"`
}

// DefaultTiming matches the pace of the live site.
func DefaultTiming() Timing {
	return Timing{
		Cookies:            3 * time.Second,
		EntryPoint:         6 * time.Second,
		Advance:            3 * time.Second,
		SeenBefore:         8 * time.Second,
		Optional:           time.Second,
		OptionalPause:      250 * time.Millisecond,
		MaxOptionalPrompts: 4,
	}
}

// WithDefaults fills every unset field from DefaultTiming.
func (t Timing) WithDefaults() Timing {
	def := DefaultTiming()
	if t.Cookies <= 0 {
		t.Cookies = def.Cookies
	}
	if t.EntryPoint <= 0 {
		t.EntryPoint = def.EntryPoint
	}
	if t.Advance <= 0 {
		t.Advance = def.Advance
	}
	if t.SeenBefore <= 0 {
		t.SeenBefore = def.SeenBefore
	}
	if t.Optional <= 0 {
		t.Optional = def.Optional
	}
	if t.OptionalPause <= 0 {
		t.OptionalPause = def.OptionalPause
	}
	if t.MaxOptionalPrompts <= 0 {
		t.MaxOptionalPrompts = def.MaxOptionalPrompts
	}
	return t
}

// Navigator walks the intro flow.
type Navigator struct {
	Markup   markup.Markup
	Locator  *locate.Locator
	Resolver *frame.Resolver
	Timing   Timing
	Logger   *slog.Logger
}

// New returns a Navigator. A nil logger falls back to slog.Default().
func New(m markup.Markup, loc *locate.Locator, res *frame.Resolver, timing Timing, logger *slog.Logger) *Navigator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Navigator{Markup: m, Locator: loc, Resolver: res, Timing: timing, Logger: logger}
}

// Run performs the intro steps against top and returns the calendar
// context. When no calendar can be resolved it returns top and false.
func (n *Navigator) Run(ctx context.Context, top surface.Document) (surface.Document, bool) {
	m := n.Markup

	if !n.Locator.ClickText(ctx, top, m.Cookies, locate.DefaultTags, n.Timing.Cookies) {
		n.skipped("cookies")
	}
	if doc, ok := n.Resolver.Resolve(top); ok {
		n.Logger.Debug("intro: calendar already present")
		return doc, true
	}

	if !n.Locator.ClickText(ctx, top, m.EntryPoints, locate.DefaultTags, n.Timing.EntryPoint) {
		n.skipped("entry point")
	}
	if n.advance(ctx, top) {
		return n.Resolver.Resolve(top)
	}

	if !n.answerSeenBefore(ctx, top) {
		n.skipped("seen before")
	}
	if n.advance(ctx, top) {
		return n.Resolver.Resolve(top)
	}

	for round := 0; round < n.Timing.MaxOptionalPrompts; round++ {
		if !n.Locator.ClickText(ctx, top, m.Optional, locate.DefaultTags, n.Timing.Optional) {
			n.Logger.Debug("intro: optional prompts done", "rounds", round)
			break
		}
		poll.Sleep(ctx, n.Timing.OptionalPause)
		if n.advance(ctx, top) {
			break
		}
	}

	return n.Resolver.Resolve(top)
}

// advance clicks a continue-style control unless the calendar is already
// showing, in which case it reports true and clicks nothing. Advance
// vocabulary includes "next", which would otherwise hit the month control.
func (n *Navigator) advance(ctx context.Context, top surface.Document) bool {
	if _, ok := n.Resolver.Resolve(top); ok {
		return true
	}
	if !n.Locator.ClickText(ctx, top, n.Markup.Advance, []string{"button", "a"}, n.Timing.Advance) {
		n.skipped("advance")
	}
	return false
}

func (n *Navigator) skipped(step string) {
	n.Logger.Debug("intro: step skipped", "step", step)
}

// answerSeenBefore polls for the returning-patient question and answers
// "No" with the first strategy that yields a control. Between polls it
// also tries the explicit new-patient choice some variants show instead.
func (n *Navigator) answerSeenBefore(ctx context.Context, top surface.Document) bool {
	strategies := []func(surface.Document) (surface.Element, bool){
		n.noNearQuestion,
		func(doc surface.Document) (surface.Element, bool) {
			return n.Locator.FindExact(doc, []string{"button"}, n.Markup.No)
		},
		n.buttonWithNoWord,
	}
	answered := false
	poll.For(ctx, n.Timing.SeenBefore, n.Locator.Interval, func() bool {
		for i, s := range strategies {
			el, ok := s(top)
			if !ok {
				continue
			}
			if _, err := n.Locator.Click(el); err == nil {
				n.Logger.Debug("intro: answered seen before", "strategy", i)
				answered = true
				return true
			}
		}
		if n.Locator.ClickText(ctx, top, n.Markup.NewPatient, locate.DefaultTags, 0) {
			answered = true
			return true
		}
		return false
	})
	return answered
}

// noNearQuestion picks the smallest container whose text holds the
// question and which also holds a "No" button.
func (n *Navigator) noNearQuestion(doc surface.Document) (surface.Element, bool) {
	containers, err := doc.Query("div, section, form, fieldset")
	if err != nil {
		return nil, false
	}
	var (
		best    surface.Element
		bestLen int
	)
	for _, c := range containers {
		text := strings.ToLower(c.Text())
		if !containsAny(text, n.Markup.SeenBefore) || !c.Visible() {
			continue
		}
		buttons, err := c.Query("button")
		if err != nil {
			continue
		}
		for _, b := range buttons {
			if strings.EqualFold(strings.TrimSpace(b.Text()), n.Markup.No) && b.Visible() && n.Locator.Enabled(b) {
				if best == nil || len(text) < bestLen {
					best, bestLen = b, len(text)
				}
				break
			}
		}
	}
	return best, best != nil
}

func (n *Navigator) buttonWithNoWord(doc surface.Document) (surface.Element, bool) {
	word := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(n.Markup.No) + `\b`)
	buttons, err := doc.Query("button")
	if err != nil {
		return nil, false
	}
	for _, b := range buttons {
		if word.MatchString(b.Text()) && b.Visible() && n.Locator.Enabled(b) {
			return b, true
		}
	}
	return nil, false
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if p != "" && strings.Contains(text, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
