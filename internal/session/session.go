// Package session keeps short-lived conversation hints per contact. Nothing in
// here is authoritative; bookings always go through the appointments package.
package session

import (
	"context"
	"time"
)

// MaxMessages bounds the history kept per contact.
const MaxMessages = 50

// DefaultTTL is how long an idle conversation is remembered.
const DefaultTTL = 20 * time.Minute

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is a model request to run one tool.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one turn of the conversation as the model sees it.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// State is what we remember about a contact between messages.
type State struct {
	Messages      []Message `json:"messages"`
	Greeted       bool      `json:"greeted"`
	LastDate      string    `json:"last_date,omitempty"`
	LastSlotQuery string    `json:"last_slot_query,omitempty"`
	PendingTime   string    `json:"pending_time,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Append adds messages and drops the oldest ones past MaxMessages. The kept
// history always starts at a user turn so no tool result loses its call.
func (s *State) Append(msgs ...Message) {
	s.Messages = append(s.Messages, msgs...)
	if len(s.Messages) <= MaxMessages {
		return
	}
	kept := s.Messages[len(s.Messages)-MaxMessages:]
	for len(kept) > 0 && kept[0].Role != RoleUser {
		kept = kept[1:]
	}
	s.Messages = append([]Message(nil), kept...)
}

// Store persists State per contact with a TTL. Get returns nil when nothing is
// stored or the entry expired.
type Store interface {
	Get(ctx context.Context, contact string) (*State, error)
	Put(ctx context.Context, contact string, state *State) error
	Delete(ctx context.Context, contact string) error
	Clear(ctx context.Context) (int, error)
	Count(ctx context.Context) (int, error)
}
