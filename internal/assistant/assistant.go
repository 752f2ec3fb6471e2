// Package assistant turns WhatsApp messages into scheduling actions, either
// through an LLM tool loop or, without a model, through keyword rules.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-scheduling-assistant/internal/session"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/timeexpr"
	"github.com/wolfman30/clinic-scheduling-assistant/pkg/logging"
)

var tracer = otel.Tracer("clinic.internal.assistant")

const systemPromptTemplate = `Eres el asistente virtual de %s. Tu objetivo es agendar, reagendar o cancelar citas y responder precios y ubicación.
Hoy es %s (zona horaria %s).

TONO: español de México, trato de "usted", amable, breve y profesional.

REGLAS
1) Jamás inventes disponibilidad: consulta siempre check_slots.
2) Para "hoy", "mañana", "próximo lunes" o fechas sueltas usa parse_date y trabaja con YYYY-MM-DD.
3) Normaliza horas como "8 pm" u "ocho y media" a HH:MM de 24 horas (parse_time si lo necesitas).
4) Nunca confirmes sin repetir FECHA + HORA + NOMBRE. Si no tienes nombre pide primero: "Para confirmar, ¿me comparte el nombre y apellido del paciente, por favor?"
   Al confirmar usa: "Quedó para el 📅 DD/MM/AAAA a las ⏰ HH:MM a nombre de NOMBRE."
5) Si el servidor responde slot_unavailable ofrece de 4 a 8 alternativas del mismo día.
6) Antes de mover o cancelar verifica que exista una cita activa; si no existe explícalo con cortesía.
7) Solo usa los emojis 📅 y ⏰. No uses el separador "|". Para listar horarios: "⏰ 16:00 · 16:30 · 17:00".`

// Config tunes the assistant loop.
type Config struct {
	ClinicName  string
	MaxToolHops int
	Timeout     time.Duration
}

// Assistant answers one inbound message at a time per contact.
type Assistant struct {
	model    ChatModel
	tools    *Tools
	sessions session.Store
	replies  *Replies
	cfg      Config
	now      func() time.Time
	logger   *logging.Logger
}

// Option customizes the assistant.
type Option func(*Assistant)

// WithClock overrides the wall clock used for greetings.
func WithClock(now func() time.Time) Option {
	return func(a *Assistant) {
		if now != nil {
			a.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(a *Assistant) {
		if l != nil {
			a.logger = l
		}
	}
}

// New builds an assistant. model may be nil, in which case keyword rules
// answer instead of an LLM.
func New(model ChatModel, tools *Tools, sessions session.Store, replies *Replies, cfg Config, opts ...Option) *Assistant {
	if tools == nil {
		panic("assistant: tools cannot be nil")
	}
	if sessions == nil {
		sessions = session.NewMemoryStore(0)
	}
	if replies == nil {
		replies = tools.replies
	}
	if cfg.MaxToolHops <= 0 {
		cfg.MaxToolHops = 8
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.ClinicName == "" {
		cfg.ClinicName = replies.cfg.ClinicName
	}
	a := &Assistant{
		model:    model,
		tools:    tools,
		sessions: sessions,
		replies:  replies,
		cfg:      cfg,
		now:      time.Now,
		logger:   logging.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Sessions exposes the session store for admin operations.
func (a *Assistant) Sessions() session.Store { return a.sessions }

// Reply handles one inbound message and returns the text to send back. It
// always returns something sendable; failures degrade to canned replies.
func (a *Assistant) Reply(ctx context.Context, contact, text string) string {
	ctx, span := tracer.Start(ctx, "assistant.reply")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	state, err := a.sessions.Get(ctx, contact)
	if err != nil {
		a.logger.Warn("session load failed, starting fresh", "contact", logging.MaskContact(contact), "error", err)
	}
	if state == nil {
		state = &session.State{}
	}

	if !state.Greeted && IsPureGreeting(text) {
		greeting := a.replies.Greeting(a.now().In(a.tools.scheduler.Location()).Hour())
		state.Append(
			session.Message{Role: session.RoleUser, Content: text},
			session.Message{Role: session.RoleAssistant, Content: greeting},
		)
		state.Greeted = true
		a.save(ctx, contact, state)
		span.SetAttributes(attribute.String("clinic.assistant.path", "greeting"))
		return greeting
	}

	var reply string
	if a.model == nil {
		span.SetAttributes(attribute.String("clinic.assistant.path", "keywords"))
		reply = a.offlineReply(ctx, contact, text, state)
		state.Append(
			session.Message{Role: session.RoleUser, Content: text},
			session.Message{Role: session.RoleAssistant, Content: reply},
		)
	} else {
		span.SetAttributes(attribute.String("clinic.assistant.path", "model"))
		reply = a.modelReply(ctx, contact, text, state)
	}
	state.Greeted = true
	a.save(ctx, contact, state)
	return reply
}

func (a *Assistant) modelReply(ctx context.Context, contact, text string, state *session.State) string {
	state.Append(session.Message{Role: session.RoleUser, Content: text})

	today := a.tools.scheduler.Today().Format(timeexpr.DateLayout)
	if timeexpr.HasRelativeMarker(text) {
		args, _ := json.Marshal(map[string]string{"text": text, "today_iso": today})
		call := session.ToolCall{ID: "force-parse-" + shortuuid.New()[:8], Name: string(OpParseDate), Arguments: string(args)}
		state.Append(session.Message{Role: session.RoleAssistant, ToolCalls: []session.ToolCall{call}})
		state.Append(a.runTool(ctx, contact, call, state))
	}

	specs := Specs()
	for hop := 0; hop < a.cfg.MaxToolHops; hop++ {
		messages := append([]session.Message{a.systemMessage(today)}, state.Messages...)
		msg, err := a.model.Complete(ctx, messages, specs)
		if err != nil {
			a.logger.Error("model completion failed", "model", a.model.Name(), "contact", logging.MaskContact(contact), "error", err)
			return ReplyModelUnavailable
		}
		if len(msg.ToolCalls) > 0 {
			state.Append(msg)
			for _, call := range msg.ToolCalls {
				state.Append(a.runTool(ctx, contact, call, state))
			}
			continue
		}
		final := strings.TrimSpace(msg.Content)
		if final == "" {
			final = ReplyEmpty
		}
		state.Append(session.Message{Role: session.RoleAssistant, Content: final})
		return final
	}
	a.logger.Warn("tool loop exhausted", "contact", logging.MaskContact(contact), "hops", a.cfg.MaxToolHops)
	return ReplyLoopExhausted
}

func (a *Assistant) runTool(ctx context.Context, contact string, call session.ToolCall, state *session.State) session.Message {
	content := a.tools.Execute(ctx, contact, call, state)
	a.logger.Debug("tool executed", "tool", call.Name, "contact", logging.MaskContact(contact))
	return session.Message{Role: session.RoleTool, ToolCallID: call.ID, Name: call.Name, Content: content}
}

func (a *Assistant) systemMessage(today string) session.Message {
	loc := a.tools.scheduler.Location()
	return session.Message{
		Role:    session.RoleSystem,
		Content: fmt.Sprintf(systemPromptTemplate, a.cfg.ClinicName, today, loc.String()),
	}
}

func (a *Assistant) save(ctx context.Context, contact string, state *session.State) {
	if err := a.sessions.Put(context.WithoutCancel(ctx), contact, state); err != nil {
		a.logger.Warn("session save failed", "contact", logging.MaskContact(contact), "error", err)
	}
}

var greetingWords = []string{"hola", "buenos dias", "buenas", "buenas tardes", "buenas noches", "que tal", "saludos"}

var intentHints = []string{
	"cita", "agendar", "reagendar", "cambiar", "mover", "cancelar", "confirmar",
	"precio", "costo", "tarifa", "ubicacion", "direccion", "como llegar", "horario", "disponibilidad",
	"manana", "hoy", "pasado", "lunes", "martes", "miercoles", "jueves", "viernes", "sabado", "domingo",
}

// IsPureGreeting reports whether text is a short greeting with no request.
func IsPureGreeting(text string) bool {
	t := timeexpr.Fold(text)
	if t == "" || len([]rune(t)) > 40 {
		return false
	}
	return containsAny(t, greetingWords) && !containsAny(t, intentHints)
}

func containsAny(t string, words []string) bool {
	for _, w := range words {
		if strings.Contains(t, w) {
			return true
		}
	}
	return false
}
