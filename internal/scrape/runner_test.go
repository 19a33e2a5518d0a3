package scrape

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hazyhaar/slotwatch/appointment"
	"github.com/hazyhaar/slotwatch/internal/intro"
	"github.com/hazyhaar/slotwatch/internal/slots"
	"github.com/hazyhaar/slotwatch/internal/surface"
)

type month struct {
	header string
	days   []int
	next   bool
}

// site emulates the date picker: clicking next shows the following month,
// clicking a day shows its slots as flat buttons.
type site struct {
	s        *surface.Static
	months   []month
	cur      int
	selected int
	slots    map[string][]string // "March 2025/17" -> times
}

func newSite(t *testing.T, months ...month) *site {
	t.Helper()
	st := &site{months: months, slots: map[string][]string{}}
	s, err := surface.NewStatic(st.render())
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}
	st.s = s
	s.OnClick = func(el *surface.StaticElement) {
		if v, _ := el.Attr("aria-label"); v == "Go to next month" {
			st.cur++
			st.selected = 0
		} else if n, err := strconv.Atoi(el.Text()); err == nil {
			st.selected = n
		}
		s.MustLoad(st.render())
	}
	return st
}

func (st *site) render() string {
	m := st.months[st.cur]
	var b strings.Builder
	fmt.Fprintf(&b, `<div class="MuiDateCalendar-root"><div class="MuiPickersCalendarHeader-label">%s</div>`, m.header)
	if m.next && st.cur+1 < len(st.months) {
		b.WriteString(`<button class="MuiButtonBase-root" aria-label="Go to next month">&gt;</button>`)
	}
	for d := 1; d <= 28; d++ {
		enabled := false
		for _, e := range m.days {
			enabled = enabled || e == d
		}
		if enabled {
			fmt.Fprintf(&b, `<button class="MuiButtonBase-root MuiPickersDay-root">%d</button>`, d)
		} else {
			fmt.Fprintf(&b, `<button class="MuiButtonBase-root MuiPickersDay-root Mui-disabled" disabled>%d</button>`, d)
		}
	}
	b.WriteString(`</div>`)
	if st.selected > 0 {
		b.WriteString(`<ul class="times">`)
		for _, tm := range st.slots[fmt.Sprintf("%s/%d", m.header, st.selected)] {
			fmt.Fprintf(&b, `<li><button>%s</button></li>`, tm)
		}
		b.WriteString(`</ul>`)
	}
	return b.String()
}

type fakeDiag struct{ names []string }

func (f *fakeDiag) Capture(_ context.Context, _ surface.Session, name string) string {
	f.names = append(f.names, name)
	return "diag/" + name
}

var march4 = time.Date(2025, time.March, 4, 9, 0, 0, 0, time.Local)

func testConfig(months, days int) Config {
	return Config{
		Budget: appointment.Budget{MonthsToScan: months, MaxDaysPerRun: days},
		Intro: intro.Timing{
			Cookies: time.Millisecond, EntryPoint: time.Millisecond, Advance: time.Millisecond,
			SeenBefore: time.Millisecond, Optional: time.Millisecond, OptionalPause: time.Millisecond,
			MaxOptionalPrompts: 1,
		},
		Slots: slots.Timing{
			SettleTries: 2, SettleDelay: time.Millisecond, SettleDelta: 250,
			TabWait: time.Millisecond, TabPause: time.Millisecond, StableTries: 2,
		},
		PollInterval:    time.Millisecond,
		CalendarTimeout: 5 * time.Millisecond,
		HeaderWait:      5 * time.Millisecond,
	}
}

func newRunner(sess surface.Session, cfg Config, diag *fakeDiag) *Runner {
	open := OpenerFunc(func(context.Context) (surface.Session, error) { return sess, nil })
	return New(open, cfg, WithClock(func() time.Time { return march4 }), WithDiagnostics(diag))
}

func dates(days []appointment.Day) []string {
	out := make([]string, len(days))
	for i, d := range days {
		out[i] = d.Date.Format(time.DateOnly)
	}
	return out
}

// checkInvariants asserts the properties every result must hold.
func checkInvariants(t *testing.T, res Result, cfg Config) {
	t.Helper()
	if len(res.Days) > cfg.Budget.MaxDaysPerRun {
		t.Errorf("days: got %d, budget %d", len(res.Days), cfg.Budget.MaxDaysPerRun)
	}
	months := map[string]bool{}
	seen := map[string]bool{}
	today := time.Date(2025, time.March, 4, 0, 0, 0, 0, time.Local)
	for _, d := range res.Days {
		if d.Date.Before(today) {
			t.Errorf("past date %s", d.Date.Format(time.DateOnly))
		}
		key := d.Date.Format(time.DateOnly)
		if seen[key] {
			t.Errorf("duplicate date %s", key)
		}
		seen[key] = true
		months[d.Date.Format("2006-01")] = true
		for _, p := range appointment.DayParts {
			labels, ok := d.Slots[p]
			if !ok {
				t.Errorf("%s: missing part %s", key, p)
			}
			for i := 1; i < len(labels); i++ {
				if labels[i-1] >= labels[i] {
					t.Errorf("%s/%s not strictly sorted: %q", key, p, labels)
				}
			}
		}
	}
	if len(months) > cfg.Budget.MonthsToScan {
		t.Errorf("months spanned: got %d, budget %d", len(months), cfg.Budget.MonthsToScan)
	}
}

func TestRunDeadEndKeepsCollectedDays(t *testing.T) {
	st := newSite(t, month{header: "March 2025", days: []int{3, 4}})
	st.slots["March 2025/4"] = []string{"9:15 AM", "2:00 PM"}
	cfg := testConfig(2, 6)
	res := newRunner(st.s, cfg, &fakeDiag{}).Run(context.Background(), "https://book.test/?store=2064")

	if res.Status != StatusPartial {
		t.Errorf("Status: got %q, want partial (err %q)", res.Status, res.Err)
	}
	if diff := cmp.Diff([]string{"2025-03-04"}, dates(res.Days)); diff != "" {
		t.Fatalf("dates mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"9:15 AM"}, res.Days[0].Slots[appointment.Morning]); diff != "" {
		t.Errorf("morning mismatch (-want +got):\n%s", diff)
	}
	if !st.s.Closed() {
		t.Error("session not closed")
	}
	if got := st.s.Visited(); len(got) != 1 || got[0] != "https://book.test/?store=2064" {
		t.Errorf("Visited: got %v", got)
	}
	checkInvariants(t, res, cfg)
}

func TestRunRespectsDayBudget(t *testing.T) {
	st := newSite(t,
		month{header: "March 2025", days: []int{4, 17, 20, 25}, next: true},
		month{header: "April 2025", days: []int{1, 2, 3}, next: true},
		month{header: "May 2025", days: []int{5}},
	)
	cfg := testConfig(2, 6)
	res := newRunner(st.s, cfg, &fakeDiag{}).Run(context.Background(), "u")

	want := []string{"2025-03-04", "2025-03-17", "2025-03-20", "2025-03-25", "2025-04-01", "2025-04-02"}
	if diff := cmp.Diff(want, dates(res.Days)); diff != "" {
		t.Errorf("dates mismatch (-want +got):\n%s", diff)
	}
	if res.Status != StatusPartial {
		t.Errorf("Status: got %q, want partial", res.Status)
	}
	if res.Months != 2 {
		t.Errorf("Months: got %d, want 2", res.Months)
	}
	checkInvariants(t, res, cfg)
}

func TestRunRespectsMonthBudget(t *testing.T) {
	st := newSite(t,
		month{header: "March 2025", days: []int{17}, next: true},
		month{header: "April 2025", days: []int{1}},
	)
	cfg := testConfig(1, 6)
	res := newRunner(st.s, cfg, &fakeDiag{}).Run(context.Background(), "u")
	if diff := cmp.Diff([]string{"2025-03-17"}, dates(res.Days)); diff != "" {
		t.Errorf("dates mismatch (-want +got):\n%s", diff)
	}
	if res.Status != StatusOK {
		t.Errorf("Status: got %q, want ok", res.Status)
	}
	for _, c := range st.s.Clicks() {
		if c.Text == ">" {
			t.Error("next month clicked with a one-month budget")
		}
	}
}

func TestRunStaleHeaderStopsWalk(t *testing.T) {
	// Next month is clicked but the picker keeps rendering March.
	st := newSite(t,
		month{header: "March 2025", days: []int{17}, next: true},
		month{header: "March 2025", days: []int{17}},
	)
	st.slots["March 2025/17"] = []string{"10:00 AM"}
	cfg := testConfig(2, 6)
	res := newRunner(st.s, cfg, &fakeDiag{}).Run(context.Background(), "u")

	if diff := cmp.Diff([]string{"2025-03-17"}, dates(res.Days)); diff != "" {
		t.Errorf("dates mismatch (-want +got):\n%s", diff)
	}
	if res.Status != StatusPartial {
		t.Errorf("Status: got %q, want partial", res.Status)
	}
	if res.Months != 1 {
		t.Errorf("Months: got %d, want 1", res.Months)
	}
	checkInvariants(t, res, cfg)
}

func TestRunNoCalendar(t *testing.T) {
	s, _ := surface.NewStatic(`<p>We are down for maintenance</p>`)
	diag := &fakeDiag{}
	res := newRunner(s, testConfig(2, 6), diag).Run(context.Background(), "u")
	if res.Status != StatusNoCalendar {
		t.Errorf("Status: got %q, want no_calendar", res.Status)
	}
	if len(res.Days) != 0 {
		t.Errorf("Days: got %d, want 0", len(res.Days))
	}
	if res.Artifact != "diag/no_calendar" {
		t.Errorf("Artifact: got %q", res.Artifact)
	}
	if !s.Closed() {
		t.Error("session not closed")
	}
}

func TestRunNavigateFailure(t *testing.T) {
	s, _ := surface.NewStatic(`<p>x</p>`)
	s.NavigateErr = errors.New("net::ERR_NAME_NOT_RESOLVED")
	diag := &fakeDiag{}
	res := newRunner(s, testConfig(2, 6), diag).Run(context.Background(), "u")
	if res.Status != StatusFailed {
		t.Errorf("Status: got %q, want failed", res.Status)
	}
	if !strings.Contains(res.Err, "ERR_NAME_NOT_RESOLVED") {
		t.Errorf("Err: got %q", res.Err)
	}
	if diff := cmp.Diff([]string{"last_error_page"}, diag.names); diff != "" {
		t.Errorf("captures mismatch (-want +got):\n%s", diff)
	}
	if !s.Closed() {
		t.Error("session not closed")
	}
}

func TestRunOpenFailure(t *testing.T) {
	open := OpenerFunc(func(context.Context) (surface.Session, error) { return nil, errors.New("chrome not found") })
	res := New(open, testConfig(2, 6)).Run(context.Background(), "u")
	if res.Status != StatusFailed || !strings.Contains(res.Err, "chrome not found") {
		t.Errorf("got status %q err %q", res.Status, res.Err)
	}
	if res.Days == nil {
		t.Error("Days should be empty, not nil")
	}
}

func TestRunRecoversPanic(t *testing.T) {
	st := newSite(t, month{header: "March 2025", days: []int{17}})
	st.s.OnClick = func(*surface.StaticElement) { panic("target closed") }
	diag := &fakeDiag{}
	res := newRunner(st.s, testConfig(2, 6), diag).Run(context.Background(), "u")
	if res.Status != StatusFailed {
		t.Errorf("Status: got %q, want failed", res.Status)
	}
	if !strings.Contains(res.Err, "target closed") {
		t.Errorf("Err: got %q", res.Err)
	}
	if !st.s.Closed() {
		t.Error("session not closed after panic")
	}
	if res.FinishedAt.IsZero() {
		t.Error("FinishedAt not set")
	}
}

func TestRunCapturesEmptyDays(t *testing.T) {
	st := newSite(t, month{header: "March 2025", days: []int{17}})
	cfg := testConfig(1, 6)
	cfg.CaptureEmptyDays = true
	diag := &fakeDiag{}
	res := newRunner(st.s, cfg, diag).Run(context.Background(), "u")
	if len(res.Days) != 1 || !res.Days[0].Empty() {
		t.Fatalf("Days: got %+v", res.Days)
	}
	if diff := cmp.Diff([]string{"no_slots_2025-03-17"}, diag.names); diff != "" {
		t.Errorf("captures mismatch (-want +got):\n%s", diff)
	}
}
