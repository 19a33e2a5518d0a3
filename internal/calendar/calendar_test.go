package calendar

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hazyhaar/slotwatch/internal/locate"
	"github.com/hazyhaar/slotwatch/internal/markup"
	"github.com/hazyhaar/slotwatch/internal/surface"
)

// month renders a minimal MUI date picker.
func month(header string, next bool, days ...string) string {
	var b strings.Builder
	b.WriteString(`<div class="MuiDateCalendar-root"><div class="MuiPickersCalendarHeader-root">`)
	fmt.Fprintf(&b, `<div class="MuiPickersCalendarHeader-label">%s</div>`, header)
	if next {
		b.WriteString(`<button class="MuiButtonBase-root" aria-label="Go to next month">&gt;</button>`)
	}
	b.WriteString(`</div><div role="grid">`)
	for _, d := range days {
		b.WriteString(d)
	}
	b.WriteString(`</div></div>`)
	return b.String()
}

func day(n int) string {
	return fmt.Sprintf(`<button class="MuiButtonBase-root MuiPickersDay-root">%d</button>`, n)
}

func disabled(n int) string {
	return fmt.Sprintf(`<button class="MuiButtonBase-root MuiPickersDay-root Mui-disabled" disabled>%d</button>`, n)
}

func newWalker(t *testing.T, s *surface.Static, today time.Time) *Walker {
	t.Helper()
	w := New(s.Top(), markup.Default(), locate.New(time.Millisecond, nil), today, nil)
	w.HeaderWait = 10 * time.Millisecond
	return w
}

func mustStatic(t *testing.T, page string) *surface.Static {
	t.Helper()
	s, err := surface.NewStatic(page)
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}
	return s
}

var march4 = time.Date(2025, time.March, 4, 10, 30, 0, 0, time.Local)

func TestEnabledDaysFiltersPast(t *testing.T) {
	s := mustStatic(t, month("March 2025", true, day(3), day(4), disabled(5), day(17)))
	w := newWalker(t, s, march4)
	if diff := cmp.Diff([]int{4, 17}, w.EnabledDays()); diff != "" {
		t.Errorf("EnabledDays mismatch (-want +got):\n%s", diff)
	}
}

func TestEnabledDaysInvalidAndOutside(t *testing.T) {
	outside := `<button class="MuiButtonBase-root MuiPickersDay-root MuiPickersDay-dayOutsideMonth">1</button>`
	s := mustStatic(t, month("February 2026", true, day(10), day(10), day(29), day(31), outside, `<button class="MuiButtonBase-root">42</button>`))
	w := newWalker(t, s, march4)
	if diff := cmp.Diff([]int{10}, w.EnabledDays()); diff != "" {
		t.Errorf("EnabledDays mismatch (-want +got):\n%s", diff)
	}
}

func TestNewSyncsCursorFromHeader(t *testing.T) {
	s := mustStatic(t, month("April 2025", true, day(1)))
	if got := newWalker(t, s, march4).Cursor(); got != (Cursor{time.April, 2025}) {
		t.Errorf("Cursor: got %v, want April 2025", got)
	}
	s = mustStatic(t, month("", true, day(1)))
	if got := newWalker(t, s, march4).Cursor(); got != (Cursor{time.March, 2025}) {
		t.Errorf("Cursor without header: got %v, want March 2025", got)
	}
}

func TestSelectDayRequeries(t *testing.T) {
	s := mustStatic(t, month("March 2025", true, day(4), day(17)))
	w := newWalker(t, s, march4)
	// A reflow replaces every node; the walker must not reuse old handles.
	s.MustLoad(month("March 2025", true, day(17)))
	if w.SelectDay(context.Background(), 4) {
		t.Error("day 4 no longer rendered, SelectDay should fail")
	}
	if !w.SelectDay(context.Background(), 17) {
		t.Fatal("SelectDay(17) failed")
	}
	clicks := s.Clicks()
	if len(clicks) != 1 || clicks[0].Text != "17" {
		t.Errorf("Clicks: got %+v", clicks)
	}
}

func TestAdvanceMonthAdoptsHeader(t *testing.T) {
	s := mustStatic(t, month("March 2025", true, day(4)))
	s.OnClick = func(el *surface.StaticElement) {
		if v, _ := el.Attr("aria-label"); v == "Go to next month" {
			s.MustLoad(month("April 2025", true, day(2)))
		}
	}
	w := newWalker(t, s, march4)
	if !w.AdvanceMonth(context.Background()) {
		t.Fatal("AdvanceMonth failed")
	}
	if got := w.Cursor(); got != (Cursor{time.April, 2025}) {
		t.Errorf("Cursor: got %v, want April 2025", got)
	}
	if diff := cmp.Diff([]int{2}, w.EnabledDays()); diff != "" {
		t.Errorf("EnabledDays mismatch (-want +got):\n%s", diff)
	}
}

func TestAdvanceMonthArithmeticFallback(t *testing.T) {
	// The header becomes unreadable after the click: the cursor advances
	// by one month.
	s := mustStatic(t, month("December 2025", true, day(20)))
	s.OnClick = func(el *surface.StaticElement) {
		if v, _ := el.Attr("aria-label"); v == "Go to next month" {
			s.MustLoad(month("loading", true, day(5)))
		}
	}
	w := newWalker(t, s, time.Date(2025, time.December, 1, 0, 0, 0, 0, time.Local))
	if !w.AdvanceMonth(context.Background()) {
		t.Fatal("AdvanceMonth failed")
	}
	if got := w.Cursor(); got != (Cursor{time.January, 2026}) {
		t.Errorf("Cursor: got %v, want January 2026", got)
	}
}

func TestAdvanceMonthStaleHeader(t *testing.T) {
	// The click lands but the calendar keeps showing March.
	s := mustStatic(t, month("March 2025", true, day(17)))
	w := newWalker(t, s, march4)
	if w.AdvanceMonth(context.Background()) {
		t.Fatal("AdvanceMonth should fail when the header still reads the same month")
	}
	if got := w.Cursor(); got != (Cursor{time.March, 2025}) {
		t.Errorf("Cursor moved: got %v, want March 2025", got)
	}
	if n := len(s.Clicks()); n != 1 {
		t.Errorf("Clicks: got %d, want 1", n)
	}
}

func TestAdvanceMonthNoControl(t *testing.T) {
	s := mustStatic(t, month("March 2025", false, day(4)))
	w := newWalker(t, s, march4)
	if w.AdvanceMonth(context.Background()) {
		t.Fatal("AdvanceMonth should fail without a next-month control")
	}
	if got := w.Cursor(); got != (Cursor{time.March, 2025}) {
		t.Errorf("Cursor moved: got %v", got)
	}
}

func TestAdvanceMonthDisabledControl(t *testing.T) {
	page := strings.Replace(month("March 2025", true, day(4)), `aria-label="Go to next month"`, `aria-label="Go to next month" disabled`, 1)
	s := mustStatic(t, page)
	if newWalker(t, s, march4).AdvanceMonth(context.Background()) {
		t.Fatal("disabled next-month control must not count")
	}
}

func TestParseHeader(t *testing.T) {
	tests := []struct {
		text  string
		month time.Month
		year  int
		ok    bool
	}{
		{"March 2025", time.March, 2025, true},
		{"  september 2026 ", time.September, 2026, true},
		{"Sept 2026", time.September, 2026, true},
		{"Dec. 2025", time.December, 2025, true},
		{"Week of 12 2025", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, tt := range tests {
		mo, y, ok := ParseHeader(tt.text)
		if mo != tt.month || y != tt.year || ok != tt.ok {
			t.Errorf("ParseHeader(%q) = %v %d %v; want %v %d %v", tt.text, mo, y, ok, tt.month, tt.year, tt.ok)
		}
	}
}

func TestCursor(t *testing.T) {
	c := Cursor{time.December, 2025}
	if got := c.Advance(); got != (Cursor{time.January, 2026}) {
		t.Errorf("Advance: got %v", got)
	}
	if !c.Before(c.Advance()) || c.Advance().Before(c) {
		t.Error("Before ordering wrong")
	}
	if (Cursor{time.February, 2024}).Valid(30) || !(Cursor{time.February, 2024}).Valid(29) {
		t.Error("Valid wrong for February 2024")
	}
}
