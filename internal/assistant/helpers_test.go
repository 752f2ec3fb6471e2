package assistant

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-scheduling-assistant/internal/appointments"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/session"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/slots"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/timeexpr"
)

const testContact = "whatsapp:+5218110000001"

type scriptedModel struct {
	mu       sync.Mutex
	replies  []session.Message
	err      error
	repeat   *session.Message
	requests [][]session.Message
}

func (m *scriptedModel) Name() string { return "scripted" }

func (m *scriptedModel) Complete(_ context.Context, messages []session.Message, _ []ToolSpec) (session.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, append([]session.Message(nil), messages...))
	if m.err != nil {
		return session.Message{}, m.err
	}
	if m.repeat != nil {
		return *m.repeat, nil
	}
	if len(m.replies) == 0 {
		return session.Message{}, errors.New("script exhausted")
	}
	next := m.replies[0]
	m.replies = m.replies[1:]
	return next, nil
}

func toolCall(id string, op Operation, args string) session.Message {
	return session.Message{
		Role:      session.RoleAssistant,
		ToolCalls: []session.ToolCall{{ID: id, Name: string(op), Arguments: args}},
	}
}

type fixture struct {
	manager  *appointments.Manager
	tools    *Tools
	sessions *session.MemoryStore
	replies  *Replies
	loc      *time.Location
	now      time.Time
}

// newFixture builds a manager over an in-memory repository with evening
// hours. The clinic clock reads 2025-06-10 at the given local hour.
func newFixture(t *testing.T, hour int) *fixture {
	t.Helper()
	loc, err := time.LoadLocation("America/Mexico_City")
	require.NoError(t, err)
	blocks, err := slots.ParseBlocks([]string{"16:00-22:00"})
	require.NoError(t, err)
	calc, err := slots.NewCalculator(blocks, 30*time.Minute, loc)
	require.NoError(t, err)
	repo := appointments.NewMemoryRepository(loc)
	reconciler := slots.NewReconciler(calc, repo, nil, nil)
	now := time.Date(2025, time.June, 10, hour, 0, 0, 0, loc)
	manager := appointments.NewManager(repo, reconciler, nil, appointments.ManagerConfig{ClinicName: "Consultorio"},
		appointments.WithClock(func() time.Time { return now }))
	replies := NewReplies(ReplyConfig{
		ClinicName: "Consultorio",
		Address:    "Av. Siempre Viva 1, Monterrey",
		Prices:     "Consulta: $500; Ecocardiograma: $3,000",
	})
	return &fixture{
		manager:  manager,
		tools:    NewTools(manager, timeexpr.NewResolver(nil), replies, nil),
		sessions: session.NewMemoryStore(0),
		replies:  replies,
		loc:      loc,
		now:      now,
	}
}

func (f *fixture) assistant(model ChatModel) *Assistant {
	return New(model, f.tools, f.sessions, f.replies, Config{}, WithClock(func() time.Time { return f.now }))
}
