package diag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hazyhaar/slotwatch/internal/surface"
)

func TestCaptureStatic(t *testing.T) {
	dir := t.TempDir()
	s, err := surface.NewStatic(`<h1>No slots</h1><table><tr><td>9:00 AM</td></tr></table>`)
	if err != nil {
		t.Fatal(err)
	}
	prefix := New(dir, true, nil).Capture(context.Background(), s, "no_slots_2025-03-17")
	if prefix != filepath.Join(dir, "no_slots_2025-03-17") {
		t.Fatalf("prefix: got %q", prefix)
	}
	html, err := os.ReadFile(prefix + ".html")
	if err != nil {
		t.Fatalf("html artifact: %v", err)
	}
	if !strings.Contains(string(html), "No slots") {
		t.Errorf("html artifact missing content: %s", html)
	}
	md, err := os.ReadFile(prefix + ".md")
	if err != nil {
		t.Fatalf("markdown artifact: %v", err)
	}
	if !strings.Contains(string(md), "# No slots") {
		t.Errorf("markdown artifact: got %q", md)
	}
	if _, err := os.Stat(prefix + ".png"); !os.IsNotExist(err) {
		t.Error("static session must not produce a screenshot")
	}
}

type brokenSession struct{ surface.Session }

func (brokenSession) Top() surface.Document { panic("target crashed") }
func (brokenSession) Screenshot() ([]byte, error) { return nil, errors.New("closed") }

func TestCaptureNeverFails(t *testing.T) {
	if got := New(t.TempDir(), true, nil).Capture(context.Background(), brokenSession{}, "last_error_page"); got != "" {
		t.Errorf("prefix: got %q, want empty", got)
	}
}

func TestCaptureSanitisesName(t *testing.T) {
	dir := t.TempDir()
	s, _ := surface.NewStatic(`<p>x</p>`)
	prefix := New(dir, false, nil).Capture(context.Background(), s, "../../etc/passwd")
	if filepath.Dir(prefix) != dir {
		t.Errorf("artifact escaped its directory: %q", prefix)
	}
	if _, err := os.Stat(prefix + ".md"); !os.IsNotExist(err) {
		t.Error("markdown written while disabled")
	}
}
