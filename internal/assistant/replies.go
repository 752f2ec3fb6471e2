package assistant

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/wolfman30/clinic-scheduling-assistant/internal/timeexpr"
)

// ReplyConfig carries the clinic facts used in canned replies.
type ReplyConfig struct {
	ClinicName string
	Address    string
	MapsURL    string
	Prices     string
}

// Replies renders Spanish canned messages. Variants are chosen by a stable
// hash of the seed so the same conversation reads consistently.
type Replies struct {
	cfg ReplyConfig
}

func NewReplies(cfg ReplyConfig) *Replies {
	if strings.TrimSpace(cfg.ClinicName) == "" {
		cfg.ClinicName = "el consultorio"
	}
	return &Replies{cfg: cfg}
}

func pick(options []string, seed string) string {
	if len(options) == 0 {
		return ""
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(seed))
	return options[int(h.Sum32()%uint32(len(options)))]
}

// Daypart maps a local hour to the Spanish greeting word.
func Daypart(hour int) string {
	switch {
	case hour >= 6 && hour < 12:
		return "días"
	case hour >= 12 && hour < 19:
		return "tardes"
	default:
		return "noches"
	}
}

func (r *Replies) Greeting(hour int) string {
	return fmt.Sprintf("Hola, buenas %s. Soy el asistente de %s. ¿En qué puedo ayudarle hoy?", Daypart(hour), r.cfg.ClinicName)
}

func (r *Replies) Prices(seed string) string {
	header := pick([]string{
		"Claro, aquí está la lista de precios:",
		"Con gusto, le comparto los costos:",
		"Sí, le paso la lista de precios:",
	}, seed)
	var lines []string
	for _, item := range strings.FieldsFunc(r.cfg.Prices, func(c rune) bool { return c == ';' || c == '\n' }) {
		if item = strings.TrimSpace(item); item != "" {
			lines = append(lines, "- "+item)
		}
	}
	if len(lines) == 0 {
		lines = []string{"- Consulte a recepción para la lista vigente."}
	}
	closing := pick([]string{
		"¿Tiene alguna otra duda?",
		"¿Desea agendar una cita?",
		"¿Le reservo fecha?",
	}, seed+"p")
	return fmt.Sprintf("%s\n%s\n%s", header, strings.Join(lines, "\n"), closing)
}

func (r *Replies) Location(seed string) string {
	if strings.TrimSpace(r.cfg.Address) == "" {
		return fmt.Sprintf("Con gusto. Para la dirección de %s, por favor comuníquese con recepción.", r.cfg.ClinicName)
	}
	text := pick([]string{
		"Estamos en %s.",
		"La consulta es en %s.",
		"Atendemos en %s.",
	}, seed)
	text = fmt.Sprintf(text, r.cfg.Address)
	if r.cfg.MapsURL != "" {
		text += "\n" + r.cfg.MapsURL
	}
	return text
}

func (r *Replies) Canceled(seed string) string {
	return pick([]string{
		"Listo, su cita quedó cancelada. Si gusta, le propongo nuevos horarios.",
		"Hecho, la cita fue cancelada. Si necesita reagendar, con gusto le ayudo.",
		"Cancelación realizada. ¿Desea ver opciones para otra fecha?",
	}, seed)
}

func (r *Replies) NoActive(seed string) string {
	return pick([]string{
		"No encuentro una cita activa a su nombre. ¿Desea agendar una?",
		"Por ahora no tiene citas activas. ¿Le ayudo a agendar?",
	}, seed)
}

func (r *Replies) AskDate(seed string) string {
	return pick([]string{
		"Claro. Para avanzar, ¿qué fecha le queda mejor?",
		"Perfecto. Empecemos por la fecha, ¿cuál le acomoda?",
		"De acuerdo. Dígame primero la fecha y luego vemos horarios.",
	}, seed)
}

func (r *Replies) AskName(date, hhmm string) string {
	return fmt.Sprintf("Para confirmar el 📅 %s a las ⏰ %s, ¿me comparte el nombre y apellido del paciente, por favor?", displayDate(date), hhmm)
}

func (r *Replies) Slots(date string, slots []string, seed string) string {
	if len(slots) == 0 {
		return r.NoSlots(date, seed)
	}
	header := pick([]string{
		"Para el 📅 %s tengo estos horarios:",
		"El 📅 %s hay disponibilidad a estas horas:",
	}, seed)
	return fmt.Sprintf(header+"\n⏰ %s\n¿Cuál le acomoda?", displayDate(date), strings.Join(slots, " · "))
}

func (r *Replies) NoSlots(date, seed string) string {
	d := displayDate(date)
	return pick([]string{
		fmt.Sprintf("Para el %s ya no tengo espacios. ¿Le propongo fechas cercanas?", d),
		fmt.Sprintf("El %s está lleno. ¿Quiere que revise opciones alrededor?", d),
	}, seed)
}

func (r *Replies) Unavailable(date string, alternatives []string, seed string) string {
	if len(alternatives) == 0 {
		return r.NoSlots(date, seed)
	}
	if len(alternatives) > 8 {
		alternatives = alternatives[:8]
	}
	header := pick([]string{
		"A esa hora no tengo lugar. Para el 📅 %s puedo ofrecerle:",
		"Esa hora no está disponible. El 📅 %s tengo:",
	}, seed)
	return fmt.Sprintf(header+"\n⏰ %s\n¿Alguno le funciona?", displayDate(date), strings.Join(alternatives, " · "))
}

func (r *Replies) Booked(name, date, hhmm string) string {
	return fmt.Sprintf("Quedó para el 📅 %s a las ⏰ %s a nombre de %s.", displayDate(date), hhmm, name)
}

func (r *Replies) Rescheduled(date, hhmm, seed string) string {
	text := pick([]string{
		"Listo, su cita quedó para el 📅 %s a las ⏰ %s.",
		"Perfecto, la movimos al 📅 %s a las ⏰ %s.",
	}, seed)
	return fmt.Sprintf(text, displayDate(date), hhmm)
}

func (r *Replies) Confirmed(date, hhmm string) string {
	return fmt.Sprintf("Gracias, su cita del 📅 %s a las ⏰ %s quedó confirmada.", displayDate(date), hhmm)
}

func (r *Replies) Fallback(seed string) string {
	return pick([]string{
		"Perdón, no alcancé a entenderle bien. ¿Busca agendar, cambiar o confirmar una cita, o información de costos y ubicación?",
		"Creo que me perdí un poco. ¿Quiere agendar, modificar o confirmar una cita, o consultar costos y ubicación?",
	}, seed)
}

// Fixed replies used when the model cannot finish a turn.
const (
	ReplyModelUnavailable = "Tuve un problema con el servicio de IA. ¿Desea que lo intente de nuevo o prefiere hablar con recepción?"
	ReplyEmpty            = "Por ahora no pude completar la acción. ¿Desea que intentemos nuevamente o prefiere hablar con recepción?"
	ReplyLoopExhausted    = "Tuve un problema para cerrar la operación. ¿Desea que lo intente de nuevo o prefiere hablar con recepción?"
	ReplyProcessingError  = "Tuve un problema para procesar su solicitud. ¿Desea que lo intente de nuevo o prefiere hablar con recepción?"
)

func displayDate(iso string) string {
	d, err := time.Parse(timeexpr.DateLayout, iso)
	if err != nil {
		return iso
	}
	return d.Format("02/01/2006")
}
