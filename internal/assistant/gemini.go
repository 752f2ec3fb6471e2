package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/wolfman30/clinic-scheduling-assistant/internal/session"
)

// GeminiModel calls Gemini with function declarations.
type GeminiModel struct {
	client  *genai.Client
	modelID string
}

// NewGeminiModel creates a Gemini-backed model.
func NewGeminiModel(ctx context.Context, apiKey, modelID string) (*GeminiModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("assistant: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-1.5-flash"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("assistant: failed to create gemini client: %w", err)
	}
	return &GeminiModel{client: client, modelID: modelID}, nil
}

func (g *GeminiModel) Name() string { return "gemini:" + g.modelID }

func (g *GeminiModel) Complete(ctx context.Context, messages []session.Message, tools []ToolSpec) (session.Message, error) {
	ctx, span := tracer.Start(ctx, "assistant.gemini")
	defer span.End()

	model := g.client.GenerativeModel(g.modelID)
	model.SetTemperature(0.2)
	if len(tools) > 0 {
		model.Tools = []*genai.Tool{toGeminiTool(tools)}
	}

	system, history := toGeminiHistory(messages)
	if system != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(system))
	}
	if len(history) == 0 {
		return session.Message{}, errors.New("assistant: gemini requires at least one message")
	}

	cs := model.StartChat()
	cs.History = history[:len(history)-1]
	resp, err := cs.SendMessage(ctx, history[len(history)-1].Parts...)
	if err != nil {
		span.RecordError(err)
		return session.Message{}, fmt.Errorf("assistant: gemini completion failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		err := errors.New("assistant: gemini returned no candidates")
		span.RecordError(err)
		return session.Message{}, err
	}
	return fromGeminiContent(resp.Candidates[0].Content), nil
}

// Close releases resources held by the Gemini client.
func (g *GeminiModel) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func toGeminiTool(specs []ToolSpec) *genai.Tool {
	tool := &genai.Tool{}
	for _, spec := range specs {
		decl := &genai.FunctionDeclaration{
			Name:        string(spec.Name),
			Description: spec.Description,
		}
		if len(spec.Params) > 0 {
			schema := &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{}}
			for _, p := range spec.Params {
				schema.Properties[p.Name] = &genai.Schema{Type: genai.TypeString, Enum: p.Enum}
				if p.Required {
					schema.Required = append(schema.Required, p.Name)
				}
			}
			decl.Parameters = schema
		}
		tool.FunctionDeclarations = append(tool.FunctionDeclarations, decl)
	}
	return tool
}

// toGeminiHistory splits out the system prompt and converts the rest.
// Consecutive tool results are merged into one function-response turn.
func toGeminiHistory(messages []session.Message) (string, []*genai.Content) {
	var (
		system  []string
		history []*genai.Content
	)
	for _, msg := range messages {
		switch msg.Role {
		case session.RoleSystem:
			system = append(system, msg.Content)
		case session.RoleUser:
			if strings.TrimSpace(msg.Content) == "" {
				continue
			}
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(msg.Content)}})
		case session.RoleAssistant:
			content := &genai.Content{Role: "model"}
			if strings.TrimSpace(msg.Content) != "" {
				content.Parts = append(content.Parts, genai.Text(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				args := map[string]any{}
				_ = json.Unmarshal([]byte(call.Arguments), &args)
				content.Parts = append(content.Parts, genai.FunctionCall{Name: call.Name, Args: args})
			}
			if len(content.Parts) > 0 {
				history = append(history, content)
			}
		case session.RoleTool:
			resp := map[string]any{}
			if err := json.Unmarshal([]byte(msg.Content), &resp); err != nil {
				resp = map[string]any{"text": msg.Content}
			}
			part := genai.FunctionResponse{Name: msg.Name, Response: resp}
			if n := len(history); n > 0 && history[n-1].Role == "function" {
				history[n-1].Parts = append(history[n-1].Parts, part)
				continue
			}
			history = append(history, &genai.Content{Role: "function", Parts: []genai.Part{part}})
		}
	}
	return strings.Join(system, "\n\n"), history
}

func fromGeminiContent(content *genai.Content) session.Message {
	out := session.Message{Role: session.RoleAssistant}
	var text strings.Builder
	for i, part := range content.Parts {
		switch p := part.(type) {
		case genai.Text:
			text.WriteString(string(p))
		case genai.FunctionCall:
			args, _ := json.Marshal(p.Args)
			out.ToolCalls = append(out.ToolCalls, session.ToolCall{
				ID:        fmt.Sprintf("gemini-%d-%s", i, p.Name),
				Name:      p.Name,
				Arguments: string(args),
			})
		}
	}
	out.Content = strings.TrimSpace(text.String())
	return out
}
