// Package provider выбирает реализацию синтеза речи по конфигурации.
package provider

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"whybot/internal/config"
	"whybot/internal/service/tts"
	"whybot/internal/service/tts/gemini"
	"whybot/internal/service/tts/google"
)

// New возвращает синтезатор и функцию освобождения ресурсов.
// Для TTS_SERVICE=none синтезатор nil: бот отвечает без голоса.
func New(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (tts.Synthesizer, func() error, error) {
	noop := func() error { return nil }
	switch strings.ToLower(cfg.TTSService) {
	case "google":
		c, err := google.New(ctx, logger)
		if err != nil {
			return nil, noop, fmt.Errorf("google tts: %w", err)
		}
		return c, c.Close, nil
	case "gemini":
		return gemini.New(nil, cfg.GeminiTTS.Endpoint, cfg.GeminiTTS.ModelName, logger), noop, nil
	case "none", "":
		return nil, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown tts service %q", cfg.TTSService)
	}
}

// Params параметры синтеза из конфигурации. Голос: значение по умолчанию до выбора эвристикой.
func Params(cfg *config.Config) tts.Params {
	p := tts.Params{
		Language:     cfg.GoogleTTS.Language,
		Voice:        cfg.GoogleTTS.Voice,
		SpeakingRate: cfg.GoogleTTS.SpeakingRate,
		Pitch:        cfg.GoogleTTS.Pitch,
		VolumeGainDb: cfg.GoogleTTS.VolumeGainDb,
	}
	if strings.EqualFold(cfg.TTSService, "gemini") {
		p.Prompt = cfg.GeminiTTS.Prompt
	}
	return p
}
