package bootstrap

import (
	"context"
	"fmt"

	"github.com/wolfman30/clinic-scheduling-assistant/internal/assistant"
	appconfig "github.com/wolfman30/clinic-scheduling-assistant/internal/config"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/session"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/timeexpr"
	"github.com/wolfman30/clinic-scheduling-assistant/pkg/logging"
)

// BuildAssistant wires the conversational assistant over the scheduler. With
// no LLM configured the keyword assistant answers instead.
func BuildAssistant(ctx context.Context, cfg *appconfig.Config, scheduler assistant.Scheduler, sessions session.Store, logger *logging.Logger) (*assistant.Assistant, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	model, err := assistant.NewChatModel(ctx, assistant.ProviderConfig{
		Provider:     cfg.LLMProvider,
		OpenAIAPIKey: cfg.OpenAIAPIKey,
		OpenAIModel:  cfg.OpenAIModel,
		GeminiAPIKey: cfg.GeminiAPIKey,
		GeminiModel:  cfg.GeminiModel,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: chat model: %w", err)
	}

	replies := assistant.NewReplies(assistant.ReplyConfig{
		ClinicName: cfg.ClinicName,
		Address:    cfg.ClinicAddress,
		MapsURL:    cfg.ClinicMapsURL,
		Prices:     cfg.ClinicPrices,
	})
	tools := assistant.NewTools(scheduler, timeexpr.NewResolver(timeexpr.NewSpanishParser()), replies, logger)

	return assistant.New(model, tools, sessions, replies, assistant.Config{
		ClinicName:  cfg.ClinicName,
		MaxToolHops: cfg.LLMMaxToolHop,
		Timeout:     cfg.LLMTimeout,
	}, assistant.WithLogger(logger)), nil
}
