package locate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hazyhaar/slotwatch/internal/surface"
)

func newLocator() *Locator { return New(time.Millisecond, nil) }

func mustStatic(t *testing.T, markup string) *surface.Static {
	t.Helper()
	s, err := surface.NewStatic(markup)
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}
	return s
}

func TestFindClickablePrefersButtons(t *testing.T) {
	s := mustStatic(t, `<div><div>Book Now online</div><span>book now</span><button>Book now</button></div>`)
	el, ok := newLocator().FindClickable(context.Background(), s.Top(), []string{"book now"}, nil, 0)
	if !ok {
		t.Fatal("expected a match")
	}
	if got := el.Text(); got != "Book now" {
		t.Errorf("Text: got %q, want %q", got, "Book now")
	}
}

func TestFindClickableSkipsDisabledAndHidden(t *testing.T) {
	s := mustStatic(t, `
<button disabled>Continue</button>
<button aria-disabled="true">Continue</button>
<button class="MuiButtonBase-root Mui-disabled">Continue</button>
<button style="display:none">Continue</button>
<button id="ok">Continue</button>`)
	el, ok := newLocator().FindClickable(context.Background(), s.Top(), []string{"continue"}, []string{"button"}, 0)
	if !ok {
		t.Fatal("expected a match")
	}
	if id, _ := el.Attr("id"); id != "ok" {
		t.Errorf("matched id %q, want ok", id)
	}
}

func TestFindClickableAriaLabel(t *testing.T) {
	s := mustStatic(t, `<button aria-label="Go to next month"><svg></svg></button>`)
	if _, ok := newLocator().FindClickable(context.Background(), s.Top(), []string{"NEXT MONTH"}, nil, 0); !ok {
		t.Fatal("expected aria-label match")
	}
}

func TestFindClickableInnermostDiv(t *testing.T) {
	s := mustStatic(t, `<div id="outer"><p>Header</p><div id="inner">Skip</div></div>`)
	el, ok := newLocator().FindClickable(context.Background(), s.Top(), []string{"skip"}, []string{"div"}, 0)
	if !ok {
		t.Fatal("expected a match")
	}
	if id, _ := el.Attr("id"); id != "inner" {
		t.Errorf("matched id %q, want inner", id)
	}
}

func TestFindClickableIgnoresHiddenCopy(t *testing.T) {
	s := mustStatic(t, `<div id="outer">Skip<div hidden>Skip</div></div>`)
	el, ok := newLocator().FindClickable(context.Background(), s.Top(), []string{"skip"}, []string{"div"}, 0)
	if !ok {
		t.Fatal("expected a match")
	}
	if id, _ := el.Attr("id"); id != "outer" {
		t.Errorf("matched id %q, want outer", id)
	}
}

func TestFindClickableNotFound(t *testing.T) {
	s := mustStatic(t, `<button>Other</button>`)
	start := time.Now()
	if _, ok := newLocator().FindClickable(context.Background(), s.Top(), []string{"accept"}, nil, 20*time.Millisecond); ok {
		t.Fatal("expected no match")
	}
	if time.Since(start) > time.Second {
		t.Error("FindClickable overran its timeout")
	}
}

func TestFindExact(t *testing.T) {
	s := mustStatic(t, `<button>Not now</button><button> No </button>`)
	el, ok := newLocator().FindExact(s.Top(), []string{"button"}, "no")
	if !ok {
		t.Fatal("expected exact match")
	}
	if got := el.Text(); got != "No" {
		t.Errorf("Text: got %q, want No", got)
	}
}

// flaky fails the first n click tiers.
type flaky struct {
	surface.Element
	failures int
	calls    int
}

func (f *flaky) try() error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("detached")
	}
	return nil
}

func (f *flaky) Click() error        { return f.try() }
func (f *flaky) ScriptClick() error  { return f.try() }
func (f *flaky) PointerClick() error { return f.try() }
func (f *flaky) HitTestClick() error { return f.try() }

func TestClickEscalates(t *testing.T) {
	tests := []struct {
		failures int
		want     Tier
		wantErr  bool
	}{
		{0, TierDirect, false},
		{1, TierScript, false},
		{2, TierPointer, false},
		{3, TierHitTest, false},
		{4, TierNone, true},
	}
	for _, tt := range tests {
		el := &flaky{failures: tt.failures}
		got, err := newLocator().Click(el)
		if got != tt.want {
			t.Errorf("failures=%d: tier got %v, want %v", tt.failures, got, tt.want)
		}
		if (err != nil) != tt.wantErr {
			t.Errorf("failures=%d: err = %v", tt.failures, err)
		}
	}
}

func TestClickText(t *testing.T) {
	s := mustStatic(t, `<button>Accept all cookies</button>`)
	if !newLocator().ClickText(context.Background(), s.Top(), []string{"accept all"}, nil, 0) {
		t.Fatal("expected click")
	}
	clicks := s.Clicks()
	if len(clicks) != 1 || clicks[0].Tier != "direct" {
		t.Errorf("Clicks: got %+v", clicks)
	}
}
