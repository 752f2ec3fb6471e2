package timeexpr

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrParserUnavailable is returned when text needs the linguistic date parser
// and none is configured. It is distinct from "no date found".
var ErrParserUnavailable = errors.New("timeexpr: date parser unavailable")

// DateLayout is the canonical calendar-date format.
const DateLayout = "2006-01-02"

// rescheduleGrace is how far in the past an explicit-year date may be in
// reschedule mode before it is clamped to today.
const rescheduleGrace = 30 * 24 * time.Hour

// Mode selects the clamping policy for explicit past years.
type Mode int

const (
	ModeBook Mode = iota
	ModeReschedule
)

// DateParser is the linguistic parsing capability. Implementations must honor
// base as the relative reference and prefer future dates.
type DateParser interface {
	ParseDate(text string, base time.Time) (time.Time, bool, error)
}

// Resolver turns Spanish date expressions into calendar dates that never land
// in the past.
type Resolver struct {
	parser DateParser
}

// NewResolver builds a resolver. A nil parser limits it to relative markers.
func NewResolver(parser DateParser) *Resolver {
	return &Resolver{parser: parser}
}

var (
	reExplicitYear = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	reToday        = regexp.MustCompile(`\bhoy\b`)
	reDayAfter     = regexp.MustCompile(`\bpasado\s+manana\b`)
	reTomorrow     = regexp.MustCompile(`\bmanana\b`)
	reMorning      = regexp.MustCompile(`\b(la|en|por|esta)\s+manana\b`)
	reNextWeek     = regexp.MustCompile(`\b(siguiente|proxima)\s+semana\b`)
	reWeekday      = regexp.MustCompile(`\b(lunes|martes|miercoles|jueves|viernes|sabado|domingo)\b`)
	reNumericDate  = regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})([/-]\d{2,4})?\b`)
)

var weekdays = map[string]time.Weekday{
	"domingo":   time.Sunday,
	"lunes":     time.Monday,
	"martes":    time.Tuesday,
	"miercoles": time.Wednesday,
	"jueves":    time.Thursday,
	"viernes":   time.Friday,
	"sabado":    time.Saturday,
}

// ResolveDate returns the date referenced by text relative to today. ok is
// false when no date is present. The result is midnight in today's location.
func (r *Resolver) ResolveDate(text string, today time.Time, mode Mode) (time.Time, bool, error) {
	today = StartOfDay(today)
	folded := Fold(text)
	if folded == "" {
		return time.Time{}, false, nil
	}

	if d, ok := resolveRelative(folded, today); ok {
		return d, true, nil
	}
	if d, ok := resolveNumeric(folded, today); ok {
		return d, true, nil
	}

	if r == nil || r.parser == nil {
		return time.Time{}, false, ErrParserUnavailable
	}
	parsed, ok, err := r.parser.ParseDate(text, today)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("timeexpr: parse date: %w", err)
	}
	if !ok {
		return time.Time{}, false, nil
	}
	parsed = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, today.Location())

	if !reExplicitYear.MatchString(folded) {
		// a year more than one ahead came from a stray two-digit token
		if parsed.After(today.AddDate(1, 0, 0)) {
			return time.Time{}, false, nil
		}
		if parsed.Before(today) {
			parsed = RollForward(parsed, today)
		}
		return parsed, true, nil
	}

	switch mode {
	case ModeReschedule:
		if parsed.Before(today.Add(-rescheduleGrace)) {
			return today, true, nil
		}
	default:
		if parsed.Before(today) {
			return today, true, nil
		}
	}
	return parsed, true, nil
}

// RollForward moves a past date to the next occurrence of its day and month on
// or after today: the current year first, then the next. A day that does not
// exist in either year (Feb 29) resolves to today.
func RollForward(d, today time.Time) time.Time {
	today = StartOfDay(today)
	if !d.Before(today) {
		return d
	}
	for _, year := range []int{today.Year(), today.Year() + 1} {
		c, ok := dateIn(year, d.Month(), d.Day(), today.Location())
		if ok && !c.Before(today) {
			return c
		}
	}
	return today
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ParseISODate parses YYYY-MM-DD in loc.
func ParseISODate(s string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("timeexpr: invalid date %q: %w", s, err)
	}
	return d, nil
}

// HasRelativeMarker reports whether text contains a relative date expression
// that should always be resolved server-side.
func HasRelativeMarker(text string) bool {
	t := Fold(text)
	for _, marker := range []string{"hoy", "manana", "pasado manana", "proximo", "proxima", "esta semana", "siguiente", "este "} {
		if strings.Contains(t, marker) {
			return true
		}
	}
	return reWeekday.MatchString(t) && strings.Contains(t, "el ")
}

func resolveRelative(t string, today time.Time) (time.Time, bool) {
	if reDayAfter.MatchString(t) {
		return today.AddDate(0, 0, 2), true
	}
	if reToday.MatchString(t) {
		return today, true
	}
	if m := reWeekday.FindStringSubmatch(t); m != nil {
		target := weekdays[m[1]]
		if reNextWeek.MatchString(t) {
			return weekdayOfNextWeek(today, target), true
		}
		return nextWeekday(today, target), true
	}
	if reNextWeek.MatchString(t) {
		return weekdayOfNextWeek(today, time.Monday), true
	}
	if reTomorrow.MatchString(t) && !onlyMorningUsage(t) {
		return today.AddDate(0, 0, 1), true
	}
	return time.Time{}, false
}

// resolveNumeric reads "d/m" day-first, swapping to month/day when the second
// number cannot be a month ("3/15"). Forms carrying a year go to the parser.
func resolveNumeric(t string, today time.Time) (time.Time, bool) {
	if reExplicitYear.MatchString(t) {
		return time.Time{}, false
	}
	m := reNumericDate.FindStringSubmatch(t)
	if m == nil || m[3] != "" {
		return time.Time{}, false
	}
	a, _ := strconv.Atoi(m[1])
	b, _ := strconv.Atoi(m[2])
	dayOfMonth, month := a, b
	if month > 12 && a <= 12 {
		dayOfMonth, month = b, a
	}
	// 2000 is a leap year, so Feb 29 validates here and RollForward decides.
	d, ok := dateIn(2000, time.Month(month), dayOfMonth, today.Location())
	if !ok || month < 1 || month > 12 {
		return time.Time{}, false
	}
	return RollForward(d, today), true
}

// onlyMorningUsage is true when every "mañana" in t means "morning".
func onlyMorningUsage(t string) bool {
	return len(reTomorrow.FindAllStringIndex(t, -1)) == len(reMorning.FindAllStringIndex(t, -1))
}

// nextWeekday returns the next occurrence of wd strictly after today.
func nextWeekday(today time.Time, wd time.Weekday) time.Time {
	delta := (int(wd) - int(today.Weekday()) + 7) % 7
	if delta == 0 {
		delta = 7
	}
	return today.AddDate(0, 0, delta)
}

// weekdayOfNextWeek returns wd inside the Monday-based week after today's.
func weekdayOfNextWeek(today time.Time, wd time.Weekday) time.Time {
	sinceMonday := (int(today.Weekday()) + 6) % 7
	monday := today.AddDate(0, 0, 7-sinceMonday)
	offset := (int(wd) + 6) % 7
	return monday.AddDate(0, 0, offset)
}

func dateIn(year int, month time.Month, day int, loc *time.Location) (time.Time, bool) {
	d := time.Date(year, month, day, 0, 0, 0, 0, loc)
	return d, d.Month() == month && d.Day() == day
}
