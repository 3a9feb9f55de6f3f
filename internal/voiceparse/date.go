package voiceparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const relativeUnit = `(days?|din|weeks?|hafte|hapta|soptaho|months?|mahina|mahine|mash|years?|saal|bochor)`

var (
	// articleUnitRe rewrites "a week", "an year" as "1 week"; "ek" is already
	// handled by Normalize.
	articleUnitRe = regexp.MustCompile(`\b(?:a|an)\s+` + relativeUnit + `\b`)

	relativeAfterRe  = regexp.MustCompile(`\b(?:after|in)\s+(\d+(?:\.\d+)?)\s*` + relativeUnit + `\b`)
	relativeBeforeRe = regexp.MustCompile(`(?:^|[^\d.])(\d+(?:\.\d+)?)\s*` + relativeUnit + `\s+(?:baad|bad|mein|pore)\b`)

	numericDateRe = regexp.MustCompile(`\b(\d{1,2})[\s/.\-](\d{1,2})[\s/.\-](\d{4}|\d{2})\b`)
	dayMonthRe    = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?([a-z]{3,})\b`)
	yearRe        = regexp.MustCompile(`\b(\d{4})\b`)

	dayAfterTomorrowRe = regexp.MustCompile(`\b(?:day\s+after\s+tomorrow|parso|parson|porshu)\b`)
	todayRe            = regexp.MustCompile(`\b(?:today|aaj)\b`)
)

// monthAbbrev maps the first three letters of a month name to its number.
var monthAbbrev = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// dateMatcher returns an ISO date and true when it recognises text.
type dateMatcher func(text string, now time.Time) (string, bool)

// dateMatchers are tried in order; the first match wins.
var dateMatchers = []dateMatcher{
	matchRelativeDate,
	matchNumericDate,
	matchDayMonth,
	matchDateKeyword,
}

// ParseDate parses a spoken date phrase into an ISO YYYY-MM-DD date.
// Relative phrases ("in 3 days", "2 hafte baad", "ek mahina mein") are
// resolved against now. Absolute dates may be numeric ("01 12 26",
// "5/1/2027") or use a month name ("5th December", "21 of march 2027").
//
// Numeric dates are only range checked: "31 02 26" yields "2026-02-31",
// which is left for a human to correct.
func ParseDate(transcript string, now time.Time) (string, bool) {
	text := Normalize(strings.ToLower(strings.TrimSpace(transcript)))
	if text == "" {
		return "", false
	}
	for _, match := range dateMatchers {
		if date, ok := match(text, now); ok {
			return date, true
		}
	}
	return "", false
}

func matchRelativeDate(text string, now time.Time) (string, bool) {
	text = articleUnitRe.ReplaceAllString(text, "1 $1")

	m := relativeAfterRe.FindStringSubmatch(text)
	if m == nil {
		m = relativeBeforeRe.FindStringSubmatch(text)
	}
	if m == nil {
		return "", false
	}
	// Fractional offsets ("1.5 din baad") have no calendar meaning.
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return "", false
	}
	switch unit := m[2]; {
	case strings.HasPrefix(unit, "day"), unit == "din":
		return now.AddDate(0, 0, n).Format(isoDate), true
	case strings.HasPrefix(unit, "week"), unit == "hafte", unit == "hapta", unit == "soptaho":
		return now.AddDate(0, 0, 7*n).Format(isoDate), true
	case strings.HasPrefix(unit, "month"), strings.HasPrefix(unit, "mahin"), unit == "mash":
		return now.AddDate(0, n, 0).Format(isoDate), true
	default:
		return now.AddDate(n, 0, 0).Format(isoDate), true
	}
}

func matchNumericDate(text string, _ time.Time) (string, bool) {
	m := numericDateRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if len(m[3]) == 2 {
		year += 2000
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day), true
}

func matchDayMonth(text string, now time.Time) (string, bool) {
	for _, m := range dayMonthRe.FindAllStringSubmatch(text, -1) {
		month, ok := monthAbbrev[m[2][:3]]
		if !ok {
			continue
		}
		day, err := strconv.Atoi(m[1])
		if err != nil || day < 1 || day > 31 {
			continue
		}
		year := now.Year()
		if y := yearRe.FindStringSubmatch(text); y != nil {
			year, _ = strconv.Atoi(y[1])
		} else if month < now.Month() {
			year++
		}
		return fmt.Sprintf("%04d-%02d-%02d", year, int(month), day), true
	}
	return "", false
}

func matchDateKeyword(text string, now time.Time) (string, bool) {
	switch {
	case dayAfterTomorrowRe.MatchString(text):
		return addDays(now, 2), true
	case tomorrowRe.MatchString(text):
		return addDays(now, 1), true
	case nextWeekRe.MatchString(text):
		return addDays(now, 7), true
	case todayRe.MatchString(text):
		return addDays(now, 0), true
	}
	return "", false
}
