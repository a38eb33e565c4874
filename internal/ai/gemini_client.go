package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"whybot/internal/service/answer"
)

// GeminiClient реализует answer.TextGenerator и answer.ImageGenerator поверх Gemini API.
type GeminiClient struct {
	client     *genai.Client
	textModel  string
	imageModel string
	logger     *zap.SugaredLogger
}

// NewGeminiClient создаёт SDK-клиента по API-ключу.
func NewGeminiClient(ctx context.Context, apiKey, textModel, imageModel string, logger *zap.SugaredLogger) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &GeminiClient{client: c, textModel: textModel, imageModel: imageModel, logger: logger}, nil
}

func (c *GeminiClient) GenerateStructured(ctx context.Context, req answer.TextRequest) (answer.TextReply, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemInstruction, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    geminiSchema(req.Fields),
		SafetySettings:    geminiSafety(req.Safety),
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.textModel, genai.Text(req.Prompt), cfg)
	if err != nil {
		return answer.TextReply{}, err
	}
	c.logger.Debugw("Gemini text response", "model", c.textModel, "took", time.Since(start).String())

	if blocked, reason := geminiBlocked(resp); blocked {
		return answer.TextReply{Blocked: true, BlockReason: reason}, nil
	}
	return answer.TextReply{Raw: resp.Text()}, nil
}

func (c *GeminiClient) GenerateImages(ctx context.Context, req answer.ImageRequest) ([][]byte, error) {
	start := time.Now()
	resp, err := c.client.Models.GenerateImages(ctx, c.imageModel, req.Prompt, &genai.GenerateImagesConfig{
		NumberOfImages: int32(req.Count),
		OutputMIMEType: req.MIMEType,
		AspectRatio:    req.AspectRatio,
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debugw("Gemini image response", "model", c.imageModel, "images", len(resp.GeneratedImages), "took", time.Since(start).String())
	return geminiImageBytes(resp), nil
}

// geminiSchema строит объект со строковыми обязательными полями.
func geminiSchema(fields []answer.SchemaField) *genai.Schema {
	s := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(fields)),
		Required:   make([]string, 0, len(fields)),
	}
	for _, f := range fields {
		s.Properties[f.Name] = &genai.Schema{Type: genai.TypeString, Description: f.Description}
		s.Required = append(s.Required, f.Name)
	}
	return s
}

func geminiSafety(settings []answer.SafetySetting) []*genai.SafetySetting {
	out := make([]*genai.SafetySetting, 0, len(settings))
	for _, s := range settings {
		cat, ok := geminiCategories[s.Category]
		if !ok {
			continue
		}
		out = append(out, &genai.SafetySetting{Category: cat, Threshold: geminiThreshold(s.Threshold)})
	}
	return out
}

var geminiCategories = map[answer.HarmCategory]genai.HarmCategory{
	answer.HarmHarassment:       genai.HarmCategoryHarassment,
	answer.HarmHateSpeech:       genai.HarmCategoryHateSpeech,
	answer.HarmSexuallyExplicit: genai.HarmCategorySexuallyExplicit,
	answer.HarmDangerous:        genai.HarmCategoryDangerousContent,
}

func geminiThreshold(t answer.BlockThreshold) genai.HarmBlockThreshold {
	switch t {
	case answer.BlockMediumAndAbove:
		return genai.HarmBlockThresholdBlockMediumAndAbove
	case answer.BlockOnlyHigh:
		return genai.HarmBlockThresholdBlockOnlyHigh
	case answer.BlockNone:
		return genai.HarmBlockThresholdBlockNone
	default:
		return genai.HarmBlockThresholdBlockLowAndAbove
	}
}

// geminiBlocked ищет признак блокировки: причину в PromptFeedback или finish reason по политике.
func geminiBlocked(resp *genai.GenerateContentResponse) (bool, string) {
	if resp == nil {
		return false, ""
	}
	if pf := resp.PromptFeedback; pf != nil && pf.BlockReason != "" && pf.BlockReason != genai.BlockedReasonUnspecified {
		return true, string(pf.BlockReason)
	}
	for _, cand := range resp.Candidates {
		if cand == nil {
			continue
		}
		switch cand.FinishReason {
		case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist, genai.FinishReasonSPII:
			return true, string(cand.FinishReason)
		}
	}
	return false, ""
}

func geminiImageBytes(resp *genai.GenerateImagesResponse) [][]byte {
	if resp == nil {
		return nil
	}
	out := make([][]byte, 0, len(resp.GeneratedImages))
	for _, gi := range resp.GeneratedImages {
		if gi == nil || gi.Image == nil || len(gi.Image.ImageBytes) == 0 {
			continue
		}
		out = append(out, gi.Image.ImageBytes)
	}
	return out
}
