package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/clinic-scheduling-assistant/internal/session"
	"github.com/wolfman30/clinic-scheduling-assistant/pkg/logging"
)

// ChatModel produces the next assistant message, which is either final text or
// a set of tool calls.
type ChatModel interface {
	Name() string
	Complete(ctx context.Context, messages []session.Message, tools []ToolSpec) (session.Message, error)
}

// ProviderConfig selects and configures the chat model.
type ProviderConfig struct {
	Provider     string // auto, openai, gemini, none
	OpenAIAPIKey string
	OpenAIModel  string
	GeminiAPIKey string
	GeminiModel  string
}

// NewChatModel builds the configured model. A nil model with a nil error means
// the assistant runs on keyword rules only.
func NewChatModel(ctx context.Context, cfg ProviderConfig, logger *logging.Logger) (ChatModel, error) {
	if logger == nil {
		logger = logging.Default()
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" || provider == "auto" {
		switch {
		case cfg.OpenAIAPIKey != "":
			provider = "openai"
		case cfg.GeminiAPIKey != "":
			provider = "gemini"
		default:
			provider = "none"
		}
	}
	switch provider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("assistant: OPENAI_API_KEY is required for provider openai")
		}
		logger.Info("assistant model configured", "provider", provider, "model", cfg.OpenAIModel)
		return NewOpenAIModel(cfg.OpenAIAPIKey, cfg.OpenAIModel), nil
	case "gemini":
		model, err := NewGeminiModel(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		logger.Info("assistant model configured", "provider", provider, "model", cfg.GeminiModel)
		return model, nil
	case "none", "offline":
		logger.Warn("no LLM configured, using keyword assistant")
		return nil, nil
	default:
		return nil, fmt.Errorf("assistant: unknown LLM provider %q", cfg.Provider)
	}
}
