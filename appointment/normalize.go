package appointment

import (
	"regexp"
	"strconv"
	"strings"
)

// TimePattern matches a time-of-day token such as "9:15 AM" or "11:30pm".
var TimePattern = regexp.MustCompile(`(?i)\b(\d{1,2}):(\d{2})\s?([AP]M)\b`)

// ProviderPattern matches a provider name carrying the "Dr." honorific.
var ProviderPattern = regexp.MustCompile(`Dr\.?\s+[A-Za-z][\w\- ]+`)

// NormalizeTime returns the canonical "H:MM AM" form of the first time token
// in raw. The hour loses any leading zero and the meridiem is upper-cased.
func NormalizeTime(raw string) (string, bool) {
	m := TimePattern.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	hour, err := strconv.Atoi(m[1])
	if err != nil || hour < 1 || hour > 12 {
		return "", false
	}
	return strconv.Itoa(hour) + ":" + m[2] + " " + strings.ToUpper(m[3]), true
}

// Bucket assigns a time label to a DayPart when the page has no explicit
// day-part tabs: AM before 11 is morning, 11 AM and PM before 5 are
// afternoon, everything else is evening.
func Bucket(label string) DayPart {
	m := TimePattern.FindStringSubmatch(label)
	if m == nil {
		return Afternoon
	}
	hour, _ := strconv.Atoi(m[1])
	am := strings.EqualFold(m[3], "AM")
	switch {
	case am && hour < 11:
		return Morning
	case am && hour == 11, !am && hour < 5:
		return Afternoon
	}
	return Evening
}

var spaces = regexp.MustCompile(`\s+`)

// StripHonorific removes any leading "Dr." or "Dr " prefix and collapses
// whitespace. Applying it twice gives the same result as applying it once.
func StripHonorific(name string) string {
	name = strings.TrimSpace(spaces.ReplaceAllString(name, " "))
	for {
		switch {
		case strings.HasPrefix(name, "Dr."):
			name = strings.TrimSpace(name[len("Dr."):])
		case strings.HasPrefix(name, "Dr "):
			name = strings.TrimSpace(name[len("Dr "):])
		default:
			return name
		}
	}
}

// WithHonorific is the presentation form of a stored provider name.
func WithHonorific(name string) string {
	if name == "" {
		return ""
	}
	return "Dr. " + name
}
