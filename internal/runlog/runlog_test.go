package runlog

import (
	"context"
	"testing"
	"time"

	"github.com/hazyhaar/slotwatch/appointment"
	"github.com/hazyhaar/slotwatch/internal/scrape"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func result(id string, started time.Time, status scrape.Status) scrape.Result {
	day := appointment.NewDay(started, map[appointment.DayPart][]string{
		appointment.Morning: {"9:00 AM", "10:00 AM"},
		appointment.Evening: {"6:00 PM"},
	}, nil)
	return scrape.Result{
		RunID:      id,
		URL:        "https://book.test",
		StartedAt:  started,
		FinishedAt: started.Add(42 * time.Second),
		Days:       []appointment.Day{day},
		Months:     1,
		Status:     status,
	}
}

func TestRecordAndRecent(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	now := time.Now().Truncate(time.Millisecond)

	if err := s.Record(ctx, result("a", now.Add(-time.Hour), scrape.StatusOK)); err != nil {
		t.Fatalf("Record a: %v", err)
	}
	failed := result("b", now, scrape.StatusFailed)
	failed.Err = "scrape: navigate: timeout"
	failed.Artifact = "diagnostics/last_error_page"
	if err := s.Record(ctx, failed); err != nil {
		t.Fatalf("Record b: %v", err)
	}

	entries, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries: got %d, want 2", len(entries))
	}
	got := entries[0]
	if got.ID != "b" || got.Status != scrape.StatusFailed {
		t.Errorf("newest: got %s/%s, want b/failed", got.ID, got.Status)
	}
	if got.Slots != 3 || got.Days != 1 || got.Months != 1 {
		t.Errorf("counts: got days=%d slots=%d months=%d", got.Days, got.Slots, got.Months)
	}
	if got.Error != failed.Err || got.Artifact != failed.Artifact {
		t.Errorf("error/artifact: got %q %q", got.Error, got.Artifact)
	}
	if !got.StartedAt.Equal(now) {
		t.Errorf("StartedAt: got %v, want %v", got.StartedAt, now)
	}
}

func TestRecentLimit(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		if err := s.Record(ctx, result(id, base.Add(time.Duration(i)*time.Minute), scrape.StatusOK)); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].ID != "c" || entries[1].ID != "b" {
		t.Errorf("entries: got %+v", entries)
	}
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	s.Record(ctx, result("old", time.Now().Add(-48*time.Hour), scrape.StatusOK))
	s.Record(ctx, result("new", time.Now(), scrape.StatusOK))

	n, err := s.Cleanup(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if n != 1 {
		t.Errorf("removed: got %d, want 1", n)
	}
	entries, _ := s.Recent(ctx, 10)
	if len(entries) != 1 || entries[0].ID != "new" {
		t.Errorf("entries: got %+v", entries)
	}
}
