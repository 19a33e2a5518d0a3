package scrape

import (
	"time"

	"github.com/hazyhaar/slotwatch/appointment"
)

// Status classifies how a run ended.
type Status string

const (
	StatusOK Status = "ok"
	// StatusPartial means the budget or a dead end cut the walk short.
	// The collected days are still valid.
	StatusPartial    Status = "partial"
	StatusNoCalendar Status = "no_calendar"
	StatusFailed     Status = "failed"
)

// Result is the outcome of one run. Days are in visiting order, which is
// chronological, and hold no date twice.
type Result struct {
	RunID      string            `json:"run_id"`
	URL        string            `json:"url"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Days       []appointment.Day `json:"days"`
	Months     int               `json:"months"`
	Status     Status            `json:"status"`
	Err        string            `json:"error,omitempty"`
	Artifact   string            `json:"artifact,omitempty"`
}

func (r *Result) fail(err error) {
	r.Status = StatusFailed
	r.Err = err.Error()
}

// Duration is the wall time of the run.
func (r Result) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Slots counts slots per day-part across all days.
func (r Result) Slots() map[appointment.DayPart]int {
	out := make(map[appointment.DayPart]int, len(appointment.DayParts))
	for _, p := range appointment.DayParts {
		out[p] = 0
	}
	for _, d := range r.Days {
		for _, p := range appointment.DayParts {
			out[p] += len(d.Slots[p])
		}
	}
	return out
}
