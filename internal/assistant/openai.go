package assistant

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-scheduling-assistant/internal/session"
)

type chatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIModel calls the chat completions API with tool definitions.
type OpenAIModel struct {
	client chatClient
	model  string
}

// NewOpenAIModel creates a model; model defaults to gpt-4o-mini.
func NewOpenAIModel(apiKey, model string) *OpenAIModel {
	return newOpenAIModel(openai.NewClient(apiKey), model)
}

func newOpenAIModel(client chatClient, model string) *OpenAIModel {
	if client == nil {
		panic("assistant: chat client cannot be nil")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIModel{client: client, model: model}
}

func (m *OpenAIModel) Name() string { return "openai:" + m.model }

func (m *OpenAIModel) Complete(ctx context.Context, messages []session.Message, tools []ToolSpec) (session.Message, error) {
	ctx, span := tracer.Start(ctx, "assistant.openai")
	defer span.End()

	req := openai.ChatCompletionRequest{
		Model:       m.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: 0.2,
	}
	if len(tools) > 0 {
		req.Tools = toOpenAITools(tools)
		req.ToolChoice = "auto"
	}

	resp, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		span.RecordError(err)
		return session.Message{}, fmt.Errorf("assistant: openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		err := errors.New("assistant: openai returned no choices")
		span.RecordError(err)
		return session.Message{}, err
	}
	msg := resp.Choices[0].Message
	span.SetAttributes(attribute.Int("clinic.openai.tool_calls", len(msg.ToolCalls)))

	out := session.Message{Role: session.RoleAssistant, Content: msg.Content}
	for _, call := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, session.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return out, nil
}

func toOpenAIMessages(messages []session.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		m := openai.ChatCompletionMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			Name:       msg.Name,
			ToolCallID: msg.ToolCallID,
		}
		for _, call := range msg.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
				ID:   call.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      call.Name,
					Arguments: call.Arguments,
				},
			})
		}
		out = append(out, m)
	}
	return out
}

func toOpenAITools(specs []ToolSpec) []openai.Tool {
	tools := make([]openai.Tool, 0, len(specs))
	for _, spec := range specs {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        string(spec.Name),
				Description: spec.Description,
				Parameters:  spec.JSONSchema(),
			},
		})
	}
	return tools
}
