package extract

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

var absoluteDate = regexp.MustCompile(`^(\d{1,2})(?:st|nd|rd|th)?\s+([A-Za-z]+),?\s+(\d{4})`)

// ResolveDate converts a post date label into a time. Labels containing "ago"
// are relative ("2 weeks Ago") and subtracted from now; anything else is an
// absolute "4th March 2013" at UTC midnight.
func ResolveDate(text string, now time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	if strings.Contains(strings.ToLower(text), "ago") {
		return relativeDate(text, now)
	}
	m := absoluteDate.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, fmt.Errorf("unrecognised date %q", text)
	}
	day, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("parse day: %w", err)
	}
	month, err := parseMonth(m[2])
	if err != nil {
		return time.Time{}, err
	}
	year, err := strconv.Atoi(m[3])
	if err != nil {
		return time.Time{}, fmt.Errorf("parse year: %w", err)
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return time.Time{}, fmt.Errorf("day %d out of range for %s %d", day, month, year)
	}
	return t, nil
}

func relativeDate(text string, now time.Time) (time.Time, error) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return time.Time{}, fmt.Errorf("relative date %q has no unit", text)
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("relative date %q: %w", text, err)
	}
	if n > math.MaxInt32 || n < math.MinInt32 {
		return time.Time{}, fmt.Errorf("relative date %q out of range", text)
	}
	switch unit := strings.TrimSuffix(strings.ToLower(fields[1]), "s"); unit {
	case "second":
		return subtractClock(now, n, 24*60*60, time.Second), nil
	case "minute":
		return subtractClock(now, n, 24*60, time.Minute), nil
	case "hour":
		return subtractClock(now, n, 24, time.Hour), nil
	case "day":
		return now.AddDate(0, 0, -n), nil
	case "week":
		return now.AddDate(0, 0, -7*n), nil
	case "month":
		return now.AddDate(0, -n, 0), nil
	case "year":
		return now.AddDate(-n, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("unknown relative date unit %q", fields[1])
	}
}

// subtractClock moves now back n units, taking whole days with AddDate so
// large counts cannot overflow a time.Duration.
func subtractClock(now time.Time, n, perDay int, unit time.Duration) time.Time {
	return now.AddDate(0, 0, -(n / perDay)).Add(-time.Duration(n%perDay) * unit)
}

func parseMonth(name string) (time.Month, error) {
	for m := time.January; m <= time.December; m++ {
		full := m.String()
		if strings.EqualFold(name, full) || (len(name) == 3 && strings.EqualFold(name, full[:3])) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown month %q", name)
}

// Capitalize upper-cases the first letter of s.
func Capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
