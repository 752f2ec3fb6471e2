package timeexpr

import (
	"fmt"
	"regexp"
	"strconv"
)

var (
	reMidnight   = regexp.MustCompile(`\bmedianoche\b`)
	reNoon       = regexp.MustCompile(`\bmediodia\b|\bmedio dia\b`)
	rePM         = regexp.MustCompile(`\b(tarde|noche)\b`)
	reAM         = regexp.MustCompile(`\b(manana|madrugada)\b`)
	reClock      = regexp.MustCompile(`\b([01]?\d|2[0-3])\s*[:.]\s*([0-5]\d)\s*(am|pm)?\b`)
	reMeridiem   = regexp.MustCompile(`\b([1-9]|1[0-2])\s*(am|pm)\b`)
	rePeriod     = regexp.MustCompile(`\b([1-9]|1[0-2])\s*(?:de\s+la\s+)?(manana|tarde|noche|madrugada)\b`)
	reSpelledAdd = regexp.MustCompile(`\b(una|uno|dos|tres|cuatro|cinco|seis|siete|ocho|nueve|diez|once|doce)\s+y\s+(media|cuarto)\b`)
	reSpelledSub = regexp.MustCompile(`\b(una|uno|dos|tres|cuatro|cinco|seis|siete|ocho|nueve|diez|once|doce)\s+menos\s+cuarto\b`)
	reHours      = regexp.MustCompile(`\b(0?\d|1\d|2[0-3])\s*(h|hrs|horas?)\b`)
	reBareHour   = regexp.MustCompile(`\b(0?\d|1\d|2[0-3])\b`)
)

var spelledHours = map[string]int{
	"una": 1, "uno": 1, "dos": 2, "tres": 3, "cuatro": 4, "cinco": 5, "seis": 6,
	"siete": 7, "ocho": 8, "nueve": 9, "diez": 10, "once": 11, "doce": 12,
}

type period int

const (
	periodNone period = iota
	periodAM
	periodPM
)

// ResolveTime extracts a wall-clock time from Spanish free text and returns it
// as HH:MM. The first matching pattern wins.
func ResolveTime(text string) (string, bool) {
	h, m, ok := resolveClock(Fold(text))
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%02d:%02d", h, m), true
}

func resolveClock(t string) (int, int, bool) {
	if reMidnight.MatchString(t) {
		return 0, 0, true
	}
	if reNoon.MatchString(t) {
		return 12, 0, true
	}

	cue := periodNone
	if rePM.MatchString(t) {
		cue = periodPM
	}
	// "mañana" as a period cue overrides tarde/noche
	if reAM.MatchString(t) {
		cue = periodAM
	}

	if m := reClock.FindStringSubmatch(t); m != nil {
		h, mm := atoi(m[1]), atoi(m[2])
		switch m[3] {
		case "pm":
			h = toPM(h)
		case "am":
			h = toAM(h)
		default:
			h = applyCue(h, cue)
		}
		return h, mm, true
	}

	if m := reMeridiem.FindStringSubmatch(t); m != nil {
		h := atoi(m[1])
		if m[2] == "pm" {
			return toPM(h), 0, true
		}
		return toAM(h), 0, true
	}

	if m := rePeriod.FindStringSubmatch(t); m != nil {
		h := atoi(m[1])
		switch m[2] {
		case "tarde", "noche":
			h = toPM(h)
		default:
			h = toAM(h)
		}
		return h, 0, true
	}

	if m := reSpelledAdd.FindStringSubmatch(t); m != nil {
		h := spelledHours[m[1]]
		mm := 15
		if m[2] == "media" {
			mm = 30
		}
		return applyCueSpelled(h, cue), mm, true
	}

	if m := reSpelledSub.FindStringSubmatch(t); m != nil {
		h := spelledHours[m[1]] - 1
		if h <= 0 {
			h = 12
		}
		return applyCueSpelled(h, cue), 45, true
	}

	if m := reHours.FindStringSubmatch(t); m != nil {
		return atoi(m[1]), 0, true
	}

	if m := reBareHour.FindStringSubmatch(t); m != nil {
		return applyCue(atoi(m[1]), cue), 0, true
	}
	return 0, 0, false
}

func toPM(h int) int {
	if h >= 1 && h < 12 {
		return h + 12
	}
	return h
}

func toAM(h int) int {
	if h == 12 {
		return 0
	}
	return h
}

// applyCue only shifts 1-11 to the afternoon; 13-23 are already unambiguous.
func applyCue(h int, cue period) int {
	switch {
	case cue == periodPM && h >= 1 && h <= 11:
		return h + 12
	case cue == periodAM && h == 12:
		return 0
	}
	return h
}

func applyCueSpelled(h int, cue period) int {
	switch cue {
	case periodPM:
		return toPM(h)
	case periodAM:
		return toAM(h)
	}
	return h
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
