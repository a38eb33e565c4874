package ai

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"whybot/internal/config"
	"whybot/internal/service/answer"
)

// Client описывает всё, что нужно сервису ответов от провайдера. Реализации взаимозаменяемы.
type Client interface {
	answer.TextGenerator
	answer.ImageGenerator
}

// New выбирает провайдера по конфигурации: gemini|openai|stub.
func New(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.AIProvider)) {
	case "openai":
		return NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.TextModel, cfg.OpenAI.ImageModel, logger)
	case "stub":
		return NewStubClient(), nil
	case "", "gemini":
		return NewGeminiClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.TextModel, cfg.Gemini.ImageModel, logger)
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.AIProvider)
	}
}
