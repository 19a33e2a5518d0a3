// Package appointment defines the records produced by a slotwatch run.
// These are the public contract between the scraper and anything that
// renders or serves its output.
package appointment

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DayPart is a coarse bucket for time-of-day slots.
type DayPart string

const (
	Morning   DayPart = "morning"
	Afternoon DayPart = "afternoon"
	Evening   DayPart = "evening"
)

// DayParts lists every DayPart in display order.
var DayParts = []DayPart{Morning, Afternoon, Evening}

// Day is one calendar day with its available slots. Build it with NewDay;
// a Day is not modified after it has been appended to a result.
type Day struct {
	Date      time.Time
	Slots     map[DayPart][]string
	Providers []string // stored without honorific, sorted, unique
}

// NewDay normalises slots and providers into a Day. Every DayPart key is
// present in the result, labels are canonical, unique and sorted, and
// providers are stripped of their honorific and deduplicated.
func NewDay(date time.Time, slots map[DayPart][]string, providers []string) Day {
	y, m, d := date.Date()
	day := Day{
		Date:  time.Date(y, m, d, 0, 0, 0, 0, date.Location()),
		Slots: make(map[DayPart][]string, len(DayParts)),
	}
	for _, part := range DayParts {
		day.Slots[part] = normalizeLabels(slots[part])
	}

	seen := make(map[string]bool, len(providers))
	for _, p := range providers {
		name := StripHonorific(p)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		day.Providers = append(day.Providers, name)
	}
	sort.Strings(day.Providers)
	return day
}

func normalizeLabels(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, r := range raw {
		label, ok := NormalizeTime(r)
		if !ok || seen[label] {
			continue
		}
		seen[label] = true
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

// Label is the human-readable date, e.g. "Tuesday, March 04".
func (d Day) Label() string {
	return d.Date.Format("Monday, January 02")
}

// Relative returns "Today", "Tomorrow" or the weekday name relative to today.
func (d Day) Relative(today time.Time) string {
	switch {
	case sameDate(d.Date, today):
		return "Today"
	case sameDate(d.Date, today.AddDate(0, 0, 1)):
		return "Tomorrow"
	}
	return d.Date.Weekday().String()
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// ProviderLine is the presentation form of the provider set.
func (d Day) ProviderLine() string {
	if len(d.Providers) == 0 {
		return "Doctor Unavailable"
	}
	names := make([]string, len(d.Providers))
	for i, p := range d.Providers {
		names[i] = WithHonorific(p)
	}
	return strings.Join(names, " & ")
}

// Count is the total number of slots across all day-parts.
func (d Day) Count() int {
	n := 0
	for _, part := range DayParts {
		n += len(d.Slots[part])
	}
	return n
}

// Empty reports whether the day has no slot in any day-part.
func (d Day) Empty() bool { return d.Count() == 0 }

type dayJSON struct {
	Date      string               `json:"date"`
	Label     string               `json:"label"`
	Slots     map[DayPart][]string `json:"slots"`
	Providers []string             `json:"providers"`
}

// MarshalJSON encodes the date as YYYY-MM-DD alongside its label.
func (d Day) MarshalJSON() ([]byte, error) {
	providers := d.Providers
	if providers == nil {
		providers = []string{}
	}
	return json.Marshal(dayJSON{
		Date:      d.Date.Format(time.DateOnly),
		Label:     d.Label(),
		Slots:     d.Slots,
		Providers: providers,
	})
}

// UnmarshalJSON decodes the form produced by MarshalJSON.
func (d *Day) UnmarshalJSON(data []byte) error {
	var raw dayJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	date, err := time.ParseInLocation(time.DateOnly, raw.Date, time.Local)
	if err != nil {
		return fmt.Errorf("appointment: date: %w", err)
	}
	*d = NewDay(date, raw.Slots, raw.Providers)
	return nil
}

// Availability summarises the visited days for the page headline:
// "Today, Tomorrow, Friday" or "No appointments found".
func Availability(days []Day, today time.Time) string {
	if len(days) == 0 {
		return "No appointments found"
	}
	rel := make([]string, len(days))
	for i, d := range days {
		rel[i] = d.Relative(today)
	}
	return strings.Join(rel, ", ")
}

// Budget bounds a single run. Both values are caps, not targets.
type Budget struct {
	MonthsToScan  int `yaml:"months_to_scan" json:"months_to_scan"`
	MaxDaysPerRun int `yaml:"max_days_per_run" json:"max_days_per_run"`
}

// Validate checks both bounds are at least 1.
func (b Budget) Validate() error {
	if b.MonthsToScan < 1 {
		return fmt.Errorf("appointment: months_to_scan must be >= 1, got %d", b.MonthsToScan)
	}
	if b.MaxDaysPerRun < 1 {
		return fmt.Errorf("appointment: max_days_per_run must be >= 1, got %d", b.MaxDaysPerRun)
	}
	return nil
}
