package calendar

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Cursor is the month the walker believes the calendar is showing.
type Cursor struct {
	Month time.Month
	Year  int
}

// CursorOf returns the cursor for the month containing t.
func CursorOf(t time.Time) Cursor {
	return Cursor{Month: t.Month(), Year: t.Year()}
}

// Advance returns the following month, rolling December into January.
func (c Cursor) Advance() Cursor {
	if c.Month == time.December {
		return Cursor{Month: time.January, Year: c.Year + 1}
	}
	return Cursor{Month: c.Month + 1, Year: c.Year}
}

// Before reports whether c is an earlier month than o.
func (c Cursor) Before(o Cursor) bool {
	if c.Year != o.Year {
		return c.Year < o.Year
	}
	return c.Month < o.Month
}

// Date returns midnight of day in c's month.
func (c Cursor) Date(day int, loc *time.Location) time.Time {
	return time.Date(c.Year, c.Month, day, 0, 0, 0, 0, loc)
}

// Valid reports whether day exists in c's month.
func (c Cursor) Valid(day int) bool {
	return day >= 1 && c.Date(day, time.UTC).Month() == c.Month
}

func (c Cursor) String() string {
	return fmt.Sprintf("%s %d", c.Month, c.Year)
}

var (
	headerPattern = regexp.MustCompile(`(?i)\b([a-z]{3,9})\.?,?\s+(\d{4})\b`)
	monthNames    = func() map[string]time.Month {
		m := make(map[string]time.Month, 25)
		for mo := time.January; mo <= time.December; mo++ {
			name := strings.ToLower(mo.String())
			m[name] = mo
			m[name[:3]] = mo
		}
		m["sept"] = time.September
		return m
	}()
)

// ParseHeader reads a month/year label such as "March 2025" or "Sep 2025".
func ParseHeader(text string) (time.Month, int, bool) {
	for _, m := range headerPattern.FindAllStringSubmatch(text, -1) {
		mo, ok := monthNames[strings.ToLower(m[1])]
		if !ok {
			continue
		}
		year, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		return mo, year, true
	}
	return 0, 0, false
}
