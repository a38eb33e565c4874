package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"go.uber.org/zap"

	"whybot/internal/service/answer"
)

// OpenAIClient альтернативный провайдер: модерация + Responses API со строгой JSON-схемой + Images API.
// Сигнал безопасности: флаг модерации вопроса либо отказ модели (refusal).
type OpenAIClient struct {
	client     *openai.Client
	model      openai.ChatModel
	imageModel string
	logger     *zap.SugaredLogger
}

func NewOpenAIClient(apiKey string, model, imageModel string, logger *zap.SugaredLogger) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("openai: empty api key")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	c := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIClient{client: &c, model: openai.ChatModel(model), imageModel: imageModel, logger: logger}, nil
}

func (c *OpenAIClient) GenerateStructured(ctx context.Context, req answer.TextRequest) (answer.TextReply, error) {
	// Модерацию прогоняем по всему промпту: в нём и история, и новый вопрос.
	mod, err := c.client.Moderations.New(ctx, openai.ModerationNewParams{
		Input: openai.ModerationNewParamsInputUnion{OfString: openai.String(req.Prompt)},
	})
	if err != nil {
		return answer.TextReply{}, fmt.Errorf("moderation: %w", err)
	}
	for _, r := range mod.Results {
		if r.Flagged {
			return answer.TextReply{Blocked: true, BlockReason: "moderation"}, nil
		}
	}

	start := time.Now()
	resp, err := c.client.Responses.New(ctx, responses.ResponseNewParams{
		Model:        c.model,
		Instructions: openai.String(req.SystemInstruction),
		Input:        responses.ResponseNewParamsInputUnion{OfString: openai.String(req.Prompt)},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:   "why_bot_answer",
					Schema: openAISchema(req.Fields),
					Strict: openai.Bool(true),
				},
			},
		},
	})
	if err != nil {
		return answer.TextReply{}, err
	}
	c.logger.Debugw("OpenAI text response", "model", c.model, "took", time.Since(start).String())

	if refusal := openAIRefusal(resp); refusal != "" {
		return answer.TextReply{Blocked: true, BlockReason: "refusal"}, nil
	}
	return answer.TextReply{Raw: resp.OutputText()}, nil
}

func (c *OpenAIClient) GenerateImages(ctx context.Context, req answer.ImageRequest) ([][]byte, error) {
	// Images API не принимает соотношение сторон: квадрат задаём размером.
	start := time.Now()
	resp, err := c.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:       req.Prompt,
		Model:        openai.ImageModel(c.imageModel),
		N:            openai.Int(int64(req.Count)),
		Size:         openai.ImageGenerateParamsSize1024x1024,
		OutputFormat: openai.ImageGenerateParamsOutputFormatPNG,
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debugw("OpenAI image response", "model", c.imageModel, "images", len(resp.Data), "took", time.Since(start).String())

	out := make([][]byte, 0, len(resp.Data))
	for _, img := range resp.Data {
		if strings.TrimSpace(img.B64JSON) == "" {
			continue
		}
		b, derr := base64.StdEncoding.DecodeString(img.B64JSON)
		if derr != nil {
			return nil, fmt.Errorf("openai: decode image: %w", derr)
		}
		out = append(out, b)
	}
	return out, nil
}

// openAISchema строгая схема: все поля строковые и обязательные, лишние запрещены.
func openAISchema(fields []answer.SchemaField) map[string]any {
	props := make(map[string]any, len(fields))
	required := make([]string, 0, len(fields))
	for _, f := range fields {
		props[f.Name] = map[string]any{"type": "string", "description": f.Description}
		required = append(required, f.Name)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

// openAIRefusal возвращает текст отказа модели, если он есть в выходных сообщениях.
func openAIRefusal(resp *responses.Response) string {
	if resp == nil {
		return ""
	}
	for _, item := range resp.Output {
		if item.Type != "message" {
			continue
		}
		for _, part := range item.Content {
			if part.Type == "refusal" && part.Refusal != "" {
				return part.Refusal
			}
		}
	}
	return ""
}
