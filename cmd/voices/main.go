package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"whybot/internal/config"
	"whybot/internal/service/tts/provider"
	"whybot/internal/service/voice"
)

// Небольшая утилита: печатает голоса TTS для языка и голос, который выберет эвристика.
// Использование: voices [флаги конфигурации] [en-US]
func main() {
	cfg, args, err := config.LoadArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	lang := cfg.GoogleTTS.Language
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		lang = strings.TrimSpace(args[0])
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	sugar := logger.Sugar()
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeoutCause(context.Background(), 15*time.Second, errors.New("tts voices request timeout"))
	defer cancel()

	synth, closeSynth, err := provider.New(ctx, cfg, sugar)
	if err != nil {
		sugar.Errorw("Failed to create TTS client", "error", err)
		os.Exit(1)
	}
	defer func() { _ = closeSynth() }()
	if synth == nil {
		fmt.Println("TTS_SERVICE=none: нет голосов")
		return
	}

	voices, err := synth.Voices(ctx, lang)
	if err != nil {
		sugar.Errorw("Failed to list voices", "language", lang, "error", err)
		os.Exit(1)
	}
	for _, v := range voices {
		fmt.Printf("%-28s %-8s %s\n", v.Name, v.Gender, strings.Join(v.LanguageCodes, ","))
	}
	fmt.Printf("\nВсего: %d\n", len(voices))
	fmt.Printf("Выбран: %s (подсказки: %s)\n",
		voice.SelectVoice(voices, lang, cfg.GoogleTTS.VoiceHints, cfg.GoogleTTS.Voice),
		strings.Join(cfg.GoogleTTS.VoiceHints, "; "))
}
