package timeexpr

import (
	"fmt"
	"regexp"
	"time"

	dps "github.com/markusmobius/go-dateparser"
	"github.com/markusmobius/go-dateparser/date"
)

const parserLanguage = "es"

var reMonthName = regexp.MustCompile(`\b(enero|febrero|marzo|abril|mayo|junio|julio|agosto|sept?iembre|octubre|noviembre|diciembre)\b`)

// SpanishParser adapts go-dateparser to DateParser with Spanish, day-first
// ordering and a preference for future dates.
type SpanishParser struct {
	parser *dps.Parser
}

// NewSpanishParser returns the production date parser.
func NewSpanishParser() *SpanishParser {
	return &SpanishParser{parser: &dps.Parser{}}
}

func (p *SpanishParser) config(base time.Time) *dps.Configuration {
	return &dps.Configuration{
		Languages:           []string{parserLanguage},
		CurrentTime:         base,
		PreferredDateSource: dps.Future,
		DateOrder:           dps.DMY,
	}
}

// ParseDate implements DateParser. The text is searched for the first
// fragment that carries a calendar date; time-only fragments ("a las 5") are
// skipped. Search failures are faults. A failed whole-string parse only means
// no date was found.
func (p *SpanishParser) ParseDate(text string, base time.Time) (time.Time, bool, error) {
	results, err := p.parser.SearchWithLanguage(p.config(base), parserLanguage, text)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("timeexpr: search dates: %w", err)
	}
	for _, res := range results {
		if carriesDate(res.Date, res.Text) {
			return res.Date.Time, true, nil
		}
	}

	dt, err := p.parser.Parse(p.config(base), text)
	if err != nil || !carriesDate(dt, text) {
		return time.Time{}, false, nil
	}
	return dt.Time, true, nil
}

// carriesDate rejects fragments that only name a time of day. A date with a
// time attached reports a time period, so the fragment text decides.
func carriesDate(d date.Date, text string) bool {
	if d.IsZero() {
		return false
	}
	if !d.Period.IsTime() {
		return true
	}
	folded := Fold(text)
	return reMonthName.MatchString(folded) || reNumericDate.MatchString(folded)
}
