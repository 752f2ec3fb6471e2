package assistant

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode"

	"github.com/wolfman30/clinic-scheduling-assistant/internal/appointments"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/session"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/timeexpr"
	"github.com/wolfman30/clinic-scheduling-assistant/pkg/logging"
)

var reTimeCue = regexp.MustCompile(`\d{1,2}\s*[:.]\s*\d{2}|\d\s*(am|pm)\b|\b(a las?|hrs?|horas|am|pm|mediodia|medianoche|y media|y cuarto|menos cuarto|de la (manana|tarde|noche))\b`)

var (
	cancelWords     = []string{"cancelar", "cancela", "dar de baja"}
	confirmWords    = []string{"confirmar", "confirmo", "confirmada"}
	rescheduleWords = []string{"cambiar", "reagendar", "reprogramar", "mover", "recorrer"}
	priceWords      = []string{"precio", "costo", "tarifa", "cuanto cuesta", "cuanto cobra"}
	locationWords   = []string{"ubicacion", "direccion", "como llegar", "donde estan", "donde queda"}
	bookWords       = []string{"cita", "agendar", "agenda", "reservar", "consulta"}
)

// offlineReply answers with keyword rules when no model is configured. It
// keeps a pending date and time in the session until a name arrives.
func (a *Assistant) offlineReply(ctx context.Context, contact, text string, state *session.State) string {
	t := timeexpr.Fold(text)
	seed := contact + "|" + t

	switch {
	case containsAny(t, cancelWords):
		state.PendingTime = ""
		res, err := a.tools.scheduler.Cancel(ctx, appointments.CancelRequest{Contact: contact})
		if err != nil {
			return a.offlineError(contact, err)
		}
		if !res.OK {
			return a.replies.NoActive(seed)
		}
		return a.replies.Canceled(seed)

	case containsAny(t, confirmWords):
		res, err := a.tools.scheduler.Confirm(ctx, contact, "")
		if err != nil {
			return a.offlineError(contact, err)
		}
		if !res.OK {
			return a.replies.NoActive(seed)
		}
		return a.replies.Confirmed(res.Date, res.Time)

	case containsAny(t, priceWords):
		return a.replies.Prices(seed)

	case containsAny(t, locationWords):
		return a.replies.Location(seed)
	}

	reschedule := containsAny(t, rescheduleWords)
	mode := timeexpr.ModeBook
	if reschedule {
		mode = timeexpr.ModeReschedule
	}
	dateResolved := false
	if dateMentioned(t) {
		date, ok, err := a.tools.resolver.ResolveDate(text, a.tools.scheduler.Today(), mode)
		switch {
		case err != nil && !errors.Is(err, timeexpr.ErrParserUnavailable):
			a.logger.Warn("date resolution failed", "error", err)
		case err == nil && ok:
			state.LastDate = date.Format(timeexpr.DateLayout)
			state.PendingTime = ""
			dateResolved = true
		}
	}

	hhmm, hasTime := "", false
	if reTimeCue.MatchString(t) {
		hhmm, hasTime = timeexpr.ResolveTime(text)
	}

	switch {
	case hasTime && state.LastDate != "" && reschedule:
		res, err := a.tools.scheduler.Reschedule(ctx, appointments.RescheduleRequest{
			Contact: contact, Date: state.LastDate, Time: hhmm, RequestID: requestID(contact, ""),
		})
		if err != nil {
			return a.offlineError(contact, err)
		}
		return a.describe(res, state, seed, func() string { return a.replies.Rescheduled(res.Date, res.Time, seed) })

	case hasTime && state.LastDate != "":
		state.PendingTime = hhmm
		return a.replies.AskName(state.LastDate, hhmm)

	case dateResolved:
		list, err := a.tools.scheduler.ListSlots(ctx, state.LastDate)
		if err != nil {
			return a.offlineError(contact, err)
		}
		state.LastSlotQuery = list.Date
		return a.replies.Slots(list.Date, list.Slots, seed)

	case state.PendingTime != "" && looksLikeName(text):
		res, err := a.tools.scheduler.Book(ctx, appointments.BookRequest{
			Contact:   contact,
			Date:      state.LastDate,
			Time:      state.PendingTime,
			Name:      text,
			Channel:   appointments.ChannelWhatsApp,
			RequestID: requestID(contact, ""),
		})
		if err != nil {
			return a.offlineError(contact, err)
		}
		if res.Reason != appointments.ReasonNeedName {
			state.PendingTime = ""
		}
		return a.describe(res, state, seed, func() string { return a.replies.Booked(res.PatientName, res.Date, res.Time) })

	case reschedule || hasTime || containsAny(t, bookWords):
		return a.replies.AskDate(seed)
	}
	return a.replies.Fallback(seed)
}

func (a *Assistant) describe(res appointments.Result, state *session.State, seed string, success func() string) string {
	if res.OK {
		return success()
	}
	switch res.Reason {
	case appointments.ReasonNoActive:
		return a.replies.NoActive(seed)
	case appointments.ReasonSlotUnavailable:
		return a.replies.Unavailable(state.LastDate, res.Alternatives, seed)
	case appointments.ReasonNeedName:
		return a.replies.AskName(state.LastDate, state.PendingTime)
	}
	return a.replies.Fallback(seed)
}

func (a *Assistant) offlineError(contact string, err error) string {
	a.logger.Error("keyword assistant failed", "contact", logging.MaskContact(contact), "error", err)
	return ReplyProcessingError
}

// dateMentioned reports whether folded text carries a date cue. Bare numbers
// are left to the time resolver.
func dateMentioned(t string) bool {
	return timeexpr.HasRelativeMarker(t) || reDateCue.MatchString(t)
}

var reDateCue = regexp.MustCompile(`\b\d{1,2}\s*/\s*\d{1,2}\b|\b\d{1,2}\s+de\s+(enero|febrero|marzo|abril|mayo|junio|julio|agosto|septiembre|setiembre|octubre|noviembre|diciembre)\b|\b(lunes|martes|miercoles|jueves|viernes|sabado|domingo)\b`)

func looksLikeName(text string) bool {
	fields := strings.Fields(text)
	if len(fields) < 2 || len(fields) > 5 {
		return false
	}
	for _, r := range text {
		if !unicode.IsLetter(r) && !unicode.IsSpace(r) && r != '.' && r != '\'' && r != '-' {
			return false
		}
	}
	t := timeexpr.Fold(text)
	return !containsAny(t, bookWords) && !containsAny(t, rescheduleWords) && !containsAny(t, greetingWords)
}
