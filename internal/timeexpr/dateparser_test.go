package timeexpr

import (
	"testing"
	"time"

	"github.com/markusmobius/go-dateparser/date"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpanishParserResolvesFreeText(t *testing.T) {
	r := NewResolver(NewSpanishParser())

	tests := []struct {
		name  string
		text  string
		today time.Time
		mode  Mode
		want  time.Time
		found bool
	}{
		{"day and month", "el 20 de junio", day(2025, time.June, 10), ModeBook, day(2025, time.June, 20), true},
		{"inside a sentence", "para el 20 de junio a las 5", day(2025, time.June, 10), ModeBook, day(2025, time.June, 20), true},
		{"bare day and month", "15 de marzo", day(2025, time.January, 10), ModeBook, day(2025, time.March, 15), true},
		{"past month rolls into next year", "el 3 de enero", day(2025, time.June, 10), ModeBook, day(2026, time.January, 3), true},
		{"month first numeric", "3/15", day(2025, time.January, 10), ModeBook, day(2025, time.March, 15), true},
		{"explicit past year clamps", "5 de junio de 2025", day(2025, time.June, 10), ModeBook, day(2025, time.June, 10), true},
		{"reschedule grace keeps recent date", "5 de junio de 2025", day(2025, time.June, 10), ModeReschedule, day(2025, time.June, 5), true},
		{"no date", "hola", day(2025, time.June, 10), ModeBook, time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := r.ResolveDate(tt.text, tt.today.Add(10*time.Hour), tt.mode)
			require.NoError(t, err)
			require.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestCarriesDate(t *testing.T) {
	at := time.Date(2025, time.June, 20, 17, 0, 0, 0, time.UTC)
	assert.True(t, carriesDate(date.Date{Period: date.Day, Time: at}, "20 de junio"))
	assert.True(t, carriesDate(date.Date{Period: date.Hour, Time: at}, "20 de junio a las 5"))
	assert.True(t, carriesDate(date.Date{Period: date.Minute, Time: at}, "20/6 17:00"))
	assert.False(t, carriesDate(date.Date{Period: date.Hour, Time: at}, "a las 5"))
	assert.False(t, carriesDate(date.Date{}, "20 de junio"))
}
