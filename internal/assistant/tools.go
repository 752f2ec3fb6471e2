package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/wolfman30/clinic-scheduling-assistant/internal/appointments"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/session"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/timeexpr"
	"github.com/wolfman30/clinic-scheduling-assistant/pkg/logging"
)

// Operation is the closed set of tools the model may call.
type Operation string

const (
	OpCheckSlots  Operation = "check_slots"
	OpBook        Operation = "book_appointment"
	OpReschedule  Operation = "reschedule_appointment"
	OpCancel      Operation = "cancel_appointment"
	OpGetPrices   Operation = "get_prices"
	OpGetLocation Operation = "get_location"
	OpParseTime   Operation = "parse_time"
	OpParseDate   Operation = "parse_date"
)

// Operations lists every tool in the order it is offered to the model.
var Operations = []Operation{
	OpCheckSlots, OpBook, OpReschedule, OpCancel,
	OpGetPrices, OpGetLocation, OpParseTime, OpParseDate,
}

// Param is one string argument of a tool.
type Param struct {
	Name     string
	Enum     []string
	Required bool
}

// ToolSpec describes a tool independent of the model provider.
type ToolSpec struct {
	Name        Operation
	Description string
	Params      []Param
}

// JSONSchema renders the parameters as a JSON schema object.
func (t ToolSpec) JSONSchema() map[string]any {
	props := make(map[string]any, len(t.Params))
	required := []string{}
	for _, p := range t.Params {
		prop := map[string]any{"type": "string"}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{"type": "object", "properties": props, "required": required}
}

// Specs returns the definition of every operation.
func Specs() []ToolSpec {
	specs := make([]ToolSpec, 0, len(Operations))
	for _, op := range Operations {
		specs = append(specs, specFor(op))
	}
	return specs
}

func specFor(op Operation) ToolSpec {
	switch op {
	case OpCheckSlots:
		return ToolSpec{Name: op, Description: "Lista horarios disponibles para una fecha local (YYYY-MM-DD).",
			Params: []Param{{Name: "date_iso", Required: true}}}
	case OpBook:
		return ToolSpec{Name: op, Description: "Reserva o actualiza la cita del paciente. Valida disponibilidad del lado servidor.",
			Params: []Param{
				{Name: "date_iso", Required: true},
				{Name: "time_hhmm", Required: true},
				{Name: "patient_name", Required: true},
				{Name: "channel", Enum: []string{"whatsapp"}},
				{Name: "client_request_id"},
			}}
	case OpReschedule:
		return ToolSpec{Name: op, Description: "Mueve la última cita activa a una nueva fecha y hora.",
			Params: []Param{
				{Name: "date_iso", Required: true},
				{Name: "time_hhmm", Required: true},
				{Name: "client_request_id"},
			}}
	case OpCancel:
		return ToolSpec{Name: op, Description: "Cancela la última cita activa."}
	case OpGetPrices:
		return ToolSpec{Name: op, Description: "Tabla de precios vigente."}
	case OpGetLocation:
		return ToolSpec{Name: op, Description: "Dirección y referencias del consultorio."}
	case OpParseTime:
		return ToolSpec{Name: op, Description: "Normaliza una hora libre a formato HH:MM (24h).",
			Params: []Param{{Name: "text", Required: true}}}
	case OpParseDate:
		return ToolSpec{Name: op, Description: "Normaliza una fecha libre en español a formato YYYY-MM-DD, prefiriendo fechas futuras.",
			Params: []Param{
				{Name: "text", Required: true},
				{Name: "today_iso"},
				{Name: "mode", Enum: []string{"book", "reschedule"}},
			}}
	}
	panic(fmt.Sprintf("assistant: no spec for operation %q", op))
}

// Scheduler is the slice of the appointment manager the tools use.
type Scheduler interface {
	Today() time.Time
	Location() *time.Location
	ListSlots(ctx context.Context, dateISO string) (appointments.SlotList, error)
	Book(ctx context.Context, req appointments.BookRequest) (appointments.Result, error)
	Reschedule(ctx context.Context, req appointments.RescheduleRequest) (appointments.Result, error)
	Cancel(ctx context.Context, req appointments.CancelRequest) (appointments.Result, error)
	Confirm(ctx context.Context, contact, requestID string) (appointments.Result, error)
}

// Tools executes tool calls against the scheduler.
type Tools struct {
	scheduler Scheduler
	resolver  *timeexpr.Resolver
	replies   *Replies
	logger    *logging.Logger
}

// NewTools wires the executor.
func NewTools(scheduler Scheduler, resolver *timeexpr.Resolver, replies *Replies, logger *logging.Logger) *Tools {
	if scheduler == nil {
		panic("assistant: scheduler cannot be nil")
	}
	if resolver == nil {
		resolver = timeexpr.NewResolver(nil)
	}
	if replies == nil {
		replies = NewReplies(ReplyConfig{})
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Tools{scheduler: scheduler, resolver: resolver, replies: replies, logger: logger}
}

type toolArgs struct {
	DateISO         string `json:"date_iso"`
	TimeHHMM        string `json:"time_hhmm"`
	PatientName     string `json:"patient_name"`
	Channel         string `json:"channel"`
	ClientRequestID string `json:"client_request_id"`
	Text            string `json:"text"`
	TodayISO        string `json:"today_iso"`
	Mode            string `json:"mode"`
}

var (
	reHHMM       = regexp.MustCompile(`^\d{1,2}:\d{2}$`)
	meridiemDots = strings.NewReplacer("p. m.", "pm", "a. m.", "am", "p.m.", "pm", "a.m.", "am")
)

// Execute runs one tool call and returns the JSON payload handed back to the
// model. Hints learned along the way are written into state.
func (t *Tools) Execute(ctx context.Context, contact string, call session.ToolCall, state *session.State) string {
	args := toolArgs{}
	if strings.TrimSpace(call.Arguments) != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			t.logger.Warn("tool arguments not valid json", "tool", call.Name, "error", err)
		}
	}
	out, err := t.dispatch(ctx, contact, Operation(call.Name), args, state)
	if err != nil {
		t.logger.Error("tool failed", "tool", call.Name, "contact", logging.MaskContact(contact), "error", err)
		out = map[string]any{"ok": false, "error": "tool_exception:" + call.Name}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return `{"ok":false,"error":"encode"}`
	}
	return string(data)
}

func (t *Tools) dispatch(ctx context.Context, contact string, op Operation, args toolArgs, state *session.State) (map[string]any, error) {
	switch op {
	case OpCheckSlots:
		list, err := t.scheduler.ListSlots(ctx, args.DateISO)
		if errors.Is(err, appointments.ErrBadDate) {
			return map[string]any{"ok": false, "reason": "bad_date"}, nil
		}
		if err != nil {
			return nil, err
		}
		if state != nil {
			state.LastDate = list.Date
			state.LastSlotQuery = list.Date
		}
		return map[string]any{"date_iso": list.Date, "slots": nonNil(list.Slots)}, nil

	case OpBook:
		channel := args.Channel
		if channel == "" {
			channel = string(appointments.ChannelWhatsApp)
		}
		res, err := t.scheduler.Book(ctx, appointments.BookRequest{
			Contact:   contact,
			Date:      args.DateISO,
			Time:      normalizeTimeArg(args.TimeHHMM),
			Name:      args.PatientName,
			Channel:   appointments.ParseChannel(channel),
			RequestID: requestID(contact, args.ClientRequestID),
		})
		if err != nil {
			return nil, err
		}
		return resultPayload(res), nil

	case OpReschedule:
		res, err := t.scheduler.Reschedule(ctx, appointments.RescheduleRequest{
			Contact:   contact,
			Date:      args.DateISO,
			Time:      normalizeTimeArg(args.TimeHHMM),
			RequestID: requestID(contact, args.ClientRequestID),
		})
		if err != nil {
			return nil, err
		}
		return resultPayload(res), nil

	case OpCancel:
		res, err := t.scheduler.Cancel(ctx, appointments.CancelRequest{Contact: contact})
		if err != nil {
			return nil, err
		}
		return resultPayload(res), nil

	case OpGetPrices:
		return map[string]any{"text": t.replies.Prices(contact)}, nil

	case OpGetLocation:
		return map[string]any{"text": t.replies.Location(contact)}, nil

	case OpParseTime:
		hhmm, ok := timeexpr.ResolveTime(args.Text)
		if !ok {
			return map[string]any{"hhmm": nil}, nil
		}
		return map[string]any{"hhmm": hhmm}, nil

	case OpParseDate:
		today := t.scheduler.Today()
		if args.TodayISO != "" {
			if parsed, err := timeexpr.ParseISODate(args.TodayISO, t.scheduler.Location()); err == nil {
				today = parsed
			}
		}
		mode := timeexpr.ModeBook
		if args.Mode == "reschedule" {
			mode = timeexpr.ModeReschedule
		}
		date, ok, err := t.resolver.ResolveDate(args.Text, today, mode)
		if errors.Is(err, timeexpr.ErrParserUnavailable) {
			return map[string]any{"date_iso": nil, "error": "dateparser_unavailable"}, nil
		}
		if err != nil {
			return nil, err
		}
		if !ok {
			return map[string]any{"date_iso": nil}, nil
		}
		iso := date.Format(timeexpr.DateLayout)
		if state != nil {
			state.LastDate = iso
		}
		return map[string]any{"date_iso": iso}, nil
	}
	return map[string]any{"error": "unknown_tool:" + string(op)}, nil
}

func resultPayload(res appointments.Result) map[string]any {
	out := map[string]any{"ok": res.OK}
	if res.Reason != "" {
		out["reason"] = res.Reason
	}
	if len(res.Alternatives) > 0 {
		out["alternatives"] = res.Alternatives
	}
	if res.PatientName != "" {
		out["patient_name"] = res.PatientName
	}
	if res.Date != "" {
		out["date_iso"] = res.Date
	}
	if res.Time != "" {
		out["time_hhmm"] = res.Time
	}
	if res.Provisional {
		out["provisional"] = true
	}
	return out
}

// normalizeTimeArg converts "8 pm" style arguments to HH:MM.
func normalizeTimeArg(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || reHHMM.MatchString(v) {
		return v
	}
	if hhmm, ok := timeexpr.ResolveTime(meridiemDots.Replace(strings.ToLower(v))); ok {
		return hhmm
	}
	return v
}

func requestID(contact, given string) string {
	if strings.TrimSpace(given) != "" {
		return given
	}
	return fmt.Sprintf("%s-%s", contact, shortuuid.New()[:8])
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
