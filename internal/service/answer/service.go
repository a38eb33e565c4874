package answer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"whybot/internal/service/conversation"
)

// HarmCategory категория вредного контента, для которой задаётся порог блокировки.
type HarmCategory string

const (
	HarmHarassment       HarmCategory = "harassment"
	HarmHateSpeech       HarmCategory = "hate_speech"
	HarmSexuallyExplicit HarmCategory = "sexually_explicit"
	HarmDangerous        HarmCategory = "dangerous_content"
)

// BlockThreshold порог, начиная с которого бэкенд блокирует ответ.
type BlockThreshold string

const (
	BlockLowAndAbove    BlockThreshold = "low_and_above"
	BlockMediumAndAbove BlockThreshold = "medium_and_above"
	BlockOnlyHigh       BlockThreshold = "only_high"
	BlockNone           BlockThreshold = "none"
)

// SafetySetting порог для одной категории.
type SafetySetting struct {
	Category  HarmCategory
	Threshold BlockThreshold
}

// SchemaField поле структурированного ответа.
type SchemaField struct {
	Name        string
	Description string
}

// TextRequest запрос к текстовой модели со строгой схемой ответа.
type TextRequest struct {
	SystemInstruction string
	Prompt            string
	Fields            []SchemaField
	Safety            []SafetySetting
}

// TextReply ответ текстовой модели. Blocked: признак классификации как небезопасного
// (причина блокировки, finish reason по политике контента, модерация, отказ).
type TextReply struct {
	Raw         string
	Blocked     bool
	BlockReason string
}

// ImageRequest запрос к модели генерации изображений.
type ImageRequest struct {
	Prompt      string
	Count       int
	MIMEType    string
	AspectRatio string
}

// TextGenerator текстовая модель со структурированным выводом.
type TextGenerator interface {
	GenerateStructured(ctx context.Context, req TextRequest) (TextReply, error)
}

// ImageGenerator модель генерации изображений. Возвращает сырые байты картинок.
type ImageGenerator interface {
	GenerateImages(ctx context.Context, req ImageRequest) ([][]byte, error)
}

// Result готовый ответ для ребёнка.
type Result struct {
	Answer      string
	ImagePrompt string
	ImageURL    string
	Redirected  bool
}

// Options настройки сервиса.
type Options struct {
	Safety []SafetySetting
}

// DefaultSafety одинаковый порог для всех четырёх категорий.
func DefaultSafety(t BlockThreshold) []SafetySetting {
	return []SafetySetting{
		{Category: HarmHarassment, Threshold: t},
		{Category: HarmHateSpeech, Threshold: t},
		{Category: HarmSexuallyExplicit, Threshold: t},
		{Category: HarmDangerous, Threshold: t},
	}
}

// Service двухэтапный конвейер ответа: текст, затем картинка.
type Service struct {
	text   TextGenerator
	images ImageGenerator
	opts   Options
	logger *zap.SugaredLogger
}

func New(text TextGenerator, images ImageGenerator, opts Options, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{text: text, images: images, opts: opts, logger: logger}
}

// Answer отвечает на вопрос с учётом истории. Повторов нет: любая ошибка возвращается как *ServiceError.
func (s *Service) Answer(ctx context.Context, question string, history []conversation.Message) (Result, error) {
	if strings.TrimSpace(question) == "" {
		return Result{}, ErrBlankQuestion
	}

	start := time.Now()
	reply, err := s.text.GenerateStructured(ctx, TextRequest{
		SystemInstruction: SystemInstruction,
		Prompt:            BuildPrompt(history, question),
		Fields: []SchemaField{
			{Name: FieldAnswer, Description: AnswerFieldDescription},
			{Name: FieldImagePrompt, Description: ImagePromptFieldDescription},
		},
		Safety: s.opts.Safety,
	})
	if err != nil {
		s.logger.Errorw("Text generation failed", "duration", time.Since(start).String(), "error", err)
		return Result{}, transportError(ctx, MsgTextTransport, err)
	}
	s.logger.Infow("Text generation completed", "duration", time.Since(start).String(), "blocked", reply.Blocked)

	var res Result
	if reply.Blocked {
		// Содержимое заблокированного ответа не разбираем вовсе.
		s.logger.Warnw("Request classified as unsafe, using redirect", "reason", reply.BlockReason)
		res = Result{Answer: RedirectAnswer, ImagePrompt: NeutralImagePrompt, Redirected: true}
	} else {
		a, p, perr := ParseReply(reply.Raw)
		if perr != nil {
			return Result{}, perr
		}
		res = Result{Answer: a, ImagePrompt: p}
	}

	start = time.Now()
	images, err := s.images.GenerateImages(ctx, ImageRequest{
		Prompt:      ImageGenerationPrompt(res.ImagePrompt),
		Count:       1,
		MIMEType:    "image/png",
		AspectRatio: "1:1",
	})
	if err != nil {
		s.logger.Errorw("Image generation failed", "duration", time.Since(start).String(), "error", err)
		return Result{}, transportError(ctx, MsgImageTransport, err)
	}
	if len(images) == 0 || len(images[0]) == 0 {
		return Result{}, newServiceError(MsgImageFailed, nil)
	}
	s.logger.Infow("Image generation completed", "duration", time.Since(start).String())

	res.ImageURL = DataURI("image/png", images[0])
	return res, nil
}

// ParseReply разбирает JSON {answer, imagePrompt}. Оба поля обязательны и непусты после trim.
func ParseReply(raw string) (answer, imagePrompt string, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", newServiceError(MsgEmptyResponse, nil)
	}
	var payload struct {
		Answer      string `json:"answer"`
		ImagePrompt string `json:"imagePrompt"`
	}
	if uerr := json.Unmarshal([]byte(raw), &payload); uerr != nil {
		return "", "", newServiceError(MsgInvalidStructure, uerr)
	}
	answer = strings.TrimSpace(payload.Answer)
	imagePrompt = strings.TrimSpace(payload.ImagePrompt)
	if answer == "" || imagePrompt == "" {
		return "", "", newServiceError(MsgInvalidStructure, nil)
	}
	return answer, imagePrompt, nil
}

// transportError превращает ошибку вызова в ServiceError; истёкший дедлайн: отдельный случай.
func transportError(ctx context.Context, msg string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return newServiceError(MsgTimeout, err)
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return newServiceError(msg, err)
}
