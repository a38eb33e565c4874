package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"whybot/internal/ai"
	"whybot/internal/config"
	"whybot/internal/service/answer"
)

// Одноразовый вопрос без сервера: печатает ответ и сохраняет картинку.
// Использование: askbot [флаги конфигурации] "Why is the sky blue?" [answer.png]
func main() {
	// Озвучка здесь не нужна, проверка учётных данных TTS тоже
	if os.Getenv("TTS_SERVICE") == "" {
		_ = os.Setenv("TTS_SERVICE", "none")
	}
	cfg, args, err := config.LoadArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		fmt.Fprintln(os.Stderr, `usage: askbot [flags] "question" [out.png]`)
		os.Exit(2)
	}
	out := "answer.png"
	if len(args) > 1 {
		out = args[1]
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	sugar := logger.Sugar()
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeoutCause(context.Background(), cfg.RequestTimeout, errors.New("askbot request timeout"))
	defer cancel()

	client, err := ai.New(ctx, cfg, sugar)
	if err != nil {
		sugar.Errorw("Failed to create AI client", "error", err)
		os.Exit(1)
	}
	svc := answer.New(client, client, answer.Options{
		Safety: answer.DefaultSafety(answer.BlockThreshold(strings.ToLower(cfg.SafetyThreshold))),
	}, sugar)

	res, err := svc.Answer(ctx, args[0], nil)
	if err != nil {
		sugar.Errorw("Answer failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Answer: %s\n", res.Answer)
	fmt.Printf("Image prompt: %s\n", res.ImagePrompt)
	if res.Redirected {
		fmt.Println("(question was redirected by the safety filter)")
	}

	img, err := decodeDataURI(res.ImageURL)
	if err != nil {
		sugar.Errorw("Failed to decode image", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(out, img, 0o644); err != nil {
		sugar.Errorw("Failed to write image", "path", out, "error", err)
		os.Exit(1)
	}
	fmt.Printf("Image saved to %s\n", out)
}

func decodeDataURI(uri string) ([]byte, error) {
	_, data, ok := strings.Cut(uri, ";base64,")
	if !ok {
		return nil, errors.New("not a base64 data URI")
	}
	return base64.StdEncoding.DecodeString(data)
}
