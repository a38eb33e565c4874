package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"whybot/internal/ai"
	"whybot/internal/app/orchestrator"
	"whybot/internal/config"
	"whybot/internal/handler"
	"whybot/internal/middleware"
	"whybot/internal/service/answer"
	"whybot/internal/service/conversation"
	"whybot/internal/service/stt"
	"whybot/internal/service/stt/yandex"
	"whybot/internal/service/tts/player"
	"whybot/internal/service/tts/provider"
	"whybot/internal/service/voice"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		// Без ключа и валидной конфигурации не стартуем вовсе
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.DebugMode)
	if err != nil {
		panic(err)
	}
	sugar := logger.Sugar()
	defer func() {
		// Sync для stderr на Linux возвращает EINVAL, это не ошибка
		_ = logger.Sync()
	}()

	if err := run(cfg, sugar); err != nil {
		sugar.Errorw("Application stopped with error", "error", err)
		os.Exit(1)
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg *config.Config, logger *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infow("Starting app",
		"DebugMode", cfg.DebugMode,
		"AIProvider", cfg.AIProvider,
		"TTSService", cfg.TTSService,
		"VoiceSink", cfg.VoiceSink,
		"HTTPAddr", cfg.HTTPAddr,
	)

	client, err := ai.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("ai client: %w", err)
	}
	answers := answer.New(client, client, answer.Options{
		Safety: answer.DefaultSafety(answer.BlockThreshold(strings.ToLower(cfg.SafetyThreshold))),
	}, logger)

	synth, closeSynth, err := provider.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeSynth(); err != nil {
			logger.Warnw("TTS client close failed", "error", err)
		}
	}()

	var recognizer stt.Recognizer
	if strings.TrimSpace(cfg.YandexSTT.APIKey) != "" {
		rec, err := yandex.NewRecognizer(yandex.Config{
			APIKey:     cfg.YandexSTT.APIKey,
			Language:   cfg.YandexSTT.Language,
			SampleRate: cfg.YandexSTT.SampleRate,
			Partials:   cfg.YandexSTT.Partials,
		})
		if err != nil {
			return fmt.Errorf("yandex stt: %w", err)
		}
		recognizer = rec
	}

	hub := handler.NewHub(logger)
	var sink voice.Sink = voice.NewBrowserSink(hub)
	if strings.EqualFold(cfg.VoiceSink, "speaker") {
		sink = voice.NewSpeakerSink(player.New())
	}
	bridge := voice.NewBridge(synth, sink, recognizer, hub, voice.Options{
		Params: provider.Params(cfg),
		Hints:  cfg.GoogleTTS.VoiceHints,
	}, logger)

	orch := orchestrator.New(conversation.New(), answers, bridge, orchestrator.Options{Timeout: cfg.RequestTimeout}, logger)
	bridge.Bind(orch)

	if cfg.DebugMode {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.RequestLogger(logger), gin.Recovery())
	handler.New(orch, bridge, hub, logger).Register(r)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	statuses, unsubscribe := orch.Subscribe()
	defer unsubscribe()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Forward(gctx, statuses)
		return nil
	})
	g.Go(func() error {
		logger.Infow("HTTP server listening", "addr", "http://"+cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Infow("Shutting down")

		shutdownCtx, cancel := context.WithTimeoutCause(context.Background(), shutdownTimeout, errors.New("shutdown timeout"))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warnw("Graceful shutdown failed", "error", err)
			_ = srv.Close()
		}

		// Дожидаемся запроса в полёте, чтобы не оборвать запись в разговор
		done := make(chan struct{})
		go func() {
			orch.Wait()
			bridge.Cancel()
			bridge.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-shutdownCtx.Done():
			logger.Warnw("In-flight request did not finish before shutdown", "cause", context.Cause(shutdownCtx))
		}
		return nil
	})

	err = g.Wait()
	logger.Infow("Server stopped")
	return err
}
