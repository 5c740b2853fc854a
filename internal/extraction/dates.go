package extraction

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Date extraction tries an ordered list of patterns; the first match
// wins. Years are optional in month-name forms: a missing year resolves
// to the next occurrence of that day relative to the reference time.
var (
	isoDatePattern = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	// Day-first separator form common in all three markets: 15.03.2025,
	// 15/3/2025.
	sepDatePattern = regexp.MustCompile(`\b(\d{1,2})[./](\d{1,2})[./](\d{4})\b`)
	// Day-first month name: "15. mars", "15 March 2025", "15. März".
	dayMonthPattern = regexp.MustCompile(`\b(\d{1,2})\.?\s+(\p{L}+)\.?(?:\s+(\d{4}))?`)
	// Month-first English form: "March 15" / "March 15, 2025".
	monthDayPattern = regexp.MustCompile(`\b(\p{L}+)\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?`)
)

// extractDate returns the first date found in the text, or nil. The
// result is a UTC calendar date (midnight).
func extractDate(rawText string, lex lexicon, now time.Time) *time.Time {
	lower := strings.ToLower(rawText)

	if m := isoDatePattern.FindStringSubmatch(lower); m != nil {
		return makeDate(atoi(m[1]), time.Month(atoi(m[2])), atoi(m[3]))
	}

	if m := sepDatePattern.FindStringSubmatch(lower); m != nil {
		return makeDate(atoi(m[3]), time.Month(atoi(m[2])), atoi(m[1]))
	}

	// Month-name forms are tried per supported locale, detected
	// language first so ambiguous month words resolve natively.
	if d := findMonthNameDate(lower, lex.monthNames, now); d != nil {
		return d
	}
	for _, lang := range []Language{LangNorwegian, LangEnglish, LangGerman} {
		if d := findMonthNameDate(lower, lexicons[lang].monthNames, now); d != nil {
			return d
		}
	}
	return nil
}

func findMonthNameDate(lower string, months map[string]time.Month, now time.Time) *time.Time {
	for _, m := range dayMonthPattern.FindAllStringSubmatch(lower, -1) {
		month, ok := months[m[2]]
		if !ok {
			continue
		}
		return resolveYear(atoi(m[1]), month, m[3], now)
	}
	for _, m := range monthDayPattern.FindAllStringSubmatch(lower, -1) {
		month, ok := months[m[1]]
		if !ok {
			continue
		}
		return resolveYear(atoi(m[2]), month, m[3], now)
	}
	return nil
}

// resolveYear builds the date, rolling forward one year when no year
// was given and the date has already passed.
func resolveYear(day int, month time.Month, yearStr string, now time.Time) *time.Time {
	if yearStr != "" {
		return makeDate(atoi(yearStr), month, day)
	}
	d := makeDate(now.Year(), month, day)
	if d == nil {
		return nil
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if d.Before(today) {
		return makeDate(now.Year()+1, month, day)
	}
	return d
}

// makeDate validates the calendar date; time.Date normalizes overflow
// (e.g. day 32 becomes the next month), which we reject.
func makeDate(year int, month time.Month, day int) *time.Time {
	if month < time.January || month > time.December || day < 1 || day > 31 {
		return nil
	}
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if d.Month() != month || d.Day() != day {
		return nil
	}
	return &d
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
