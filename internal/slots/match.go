package slots

import (
	"strings"
	"unicode"

	"github.com/hazyhaar/slotwatch/appointment"
)

// Matcher extracts one value from a text, or reports that it found none.
// Matchers are pure and are tried in order; the first hit wins.
type Matcher func(text string) (string, bool)

// TimeMatchers read a slot time, strictest first.
var TimeMatchers = []Matcher{wholeTime, appointment.NormalizeTime}

// ProviderMatchers read a provider name, strictest first.
var ProviderMatchers = []Matcher{plainName, honorificName}

// First applies matchers in order over texts in order and returns the
// first hit. Each matcher sees every text before the next one is tried.
func First(matchers []Matcher, texts ...string) (string, bool) {
	for _, m := range matchers {
		for _, t := range texts {
			if v, ok := m(t); ok {
				return v, true
			}
		}
	}
	return "", false
}

// wholeTime accepts a text that is nothing but a time token.
func wholeTime(text string) (string, bool) {
	text = strings.TrimSpace(text)
	loc := appointment.TimePattern.FindStringIndex(text)
	if loc == nil || loc[0] != 0 || loc[1] != len(text) {
		return "", false
	}
	return appointment.NormalizeTime(text)
}

// plainName accepts a short text made of capitalised name words only, as
// rendered by a dedicated provider cell.
func plainName(text string) (string, bool) {
	name := cleanName(text)
	if name == "" || name != appointment.StripHonorific(text) {
		return "", false
	}
	words := strings.Fields(name)
	if len(words) > 5 {
		return "", false
	}
	for _, w := range words {
		if !unicode.IsUpper([]rune(w)[0]) {
			return "", false
		}
	}
	return name, true
}

// honorificName finds "Dr. Name" anywhere in a text.
func honorificName(text string) (string, bool) {
	m := appointment.ProviderPattern.FindString(text)
	if m == "" {
		return "", false
	}
	if name := cleanName(m); name != "" {
		return name, true
	}
	return "", false
}

// cleanName strips the honorific and keeps the leading words that are
// free of digits, which cuts names glued to a following time.
func cleanName(text string) string {
	fields := strings.Fields(appointment.StripHonorific(text))
	var out []string
	for _, f := range fields {
		if strings.IndexFunc(f, unicode.IsDigit) >= 0 || !unicode.IsLetter([]rune(f)[0]) {
			break
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}
