package messaging

import (
	"regexp"

	"github.com/wolfman30/clinic-scheduling-assistant/internal/timeexpr"
)

// Replies for consent changes.
const (
	OptOutReply = "Listo, ya no le enviaremos recordatorios por WhatsApp. Si cambia de opinión escriba ALTA."
	OptInReply  = "Listo, volverá a recibir recordatorios de sus citas."
)

// Detector recognizes whole-message opt-out and opt-in keywords. "cancelar"
// is not one of them; it cancels appointments.
type Detector struct {
	stop  *regexp.Regexp
	start *regexp.Regexp
}

// NewDetector returns a detector for Spanish and English keywords.
func NewDetector() *Detector {
	return &Detector{
		stop:  regexp.MustCompile(`^(?:por favor\s+)?(stop|baja|darme de baja|no mas mensajes|no mas recordatorios|unsubscribe)[\s.!]*$`),
		start: regexp.MustCompile(`^(?:por favor\s+)?(start|alta|darme de alta|reanudar|unstop)[\s.!]*$`),
	}
}

// IsStop reports whether body asks to stop reminders.
func (d *Detector) IsStop(body string) bool {
	if d == nil {
		return false
	}
	return d.stop.MatchString(timeexpr.Fold(body))
}

// IsStart reports whether body asks to resume reminders.
func (d *Detector) IsStart(body string) bool {
	if d == nil {
		return false
	}
	return d.start.MatchString(timeexpr.Fold(body))
}
