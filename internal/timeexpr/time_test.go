package timeexpr

import "testing"

func TestResolveTime(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{"midnight", "a medianoche", "00:00", true},
		{"noon accent", "al Mediodía", "12:00", true},
		{"noon split", "medio dia", "12:00", true},
		{"clock", "a las 16:30", "16:30", true},
		{"clock dot", "a las 4.30 pm", "16:30", true},
		{"clock with cue", "a las 5:15 de la tarde", "17:15", true},
		{"meridiem", "el próximo lunes a las 8pm", "20:00", true},
		{"meridiem am twelve", "12 am", "00:00", true},
		{"period noche", "a las 9 de la noche", "21:00", true},
		{"period manana", "10 de la mañana", "10:00", true},
		{"period madrugada twelve", "12 de la madrugada", "00:00", true},
		{"spelled half", "a las cinco y media de la tarde", "17:30", true},
		{"spelled quarter", "cuatro y cuarto", "04:15", true},
		{"spelled minus quarter", "una menos cuarto por la tarde", "12:45", true},
		{"spelled minus quarter no cue", "una menos cuarto", "12:45", true},
		{"hours suffix", "18 hrs", "18:00", true},
		{"hours word", "a las 17 horas", "17:00", true},
		{"bare with cue", "en la tarde a las 6", "18:00", true},
		{"bare no cue", "a las 6", "06:00", true},
		{"none", "quiero una cita", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveTime(tt.text)
			if ok != tt.ok || got != tt.want {
				t.Fatalf("ResolveTime(%q) = %q,%v want %q,%v", tt.text, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestFold(t *testing.T) {
	if got := Fold("  Mañana MIÉRCOLES "); got != "manana miercoles" {
		t.Fatalf("unexpected fold %q", got)
	}
}
