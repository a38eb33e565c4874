package google

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gctts "cloud.google.com/go/texttospeech/apiv1"
	ttspb "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"go.uber.org/zap"

	"whybot/internal/service/tts"
)

// Client реализует синтез речи через Google Cloud Text-to-Speech.
type Client struct {
	tts    *gctts.Client
	logger *zap.SugaredLogger
}

// New создаёт клиента SDK. Учётные данные берутся из GOOGLE_APPLICATION_CREDENTIALS (ADC).
func New(ctx context.Context, logger *zap.SugaredLogger) (*Client, error) {
	c, err := gctts.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("google tts: create client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Client{tts: c, logger: logger}, nil
}

func (c *Client) Close() error { return c.tts.Close() }

// Synthesize выполняет запрос к Google TTS и возвращает MP3.
func (c *Client) Synthesize(ctx context.Context, text string, p tts.Params) (tts.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return tts.Audio{}, errors.New("google tts: empty input text")
	}
	req := &ttspb.SynthesizeSpeechRequest{
		Input: &ttspb.SynthesisInput{InputSource: &ttspb.SynthesisInput_Text{Text: text}},
		Voice: &ttspb.VoiceSelectionParams{
			LanguageCode: p.Language,
			Name:         p.Voice,
		},
		// Только MP3
		AudioConfig: &ttspb.AudioConfig{
			AudioEncoding: ttspb.AudioEncoding_MP3,
			SpeakingRate:  p.SpeakingRate,
			Pitch:         p.Pitch,
			VolumeGainDb:  p.VolumeGainDb,
		},
	}
	started := time.Now()
	resp, err := c.tts.SynthesizeSpeech(ctx, req)
	if err != nil {
		return tts.Audio{}, err
	}
	c.logger.Infow("Google TTS synthesize completed", "voice", p.Voice, "took", time.Since(started).String())
	return tts.Audio{Format: "mp3", MIMEType: "audio/mpeg", Data: resp.GetAudioContent()}, nil
}

// Voices возвращает голоса для языка (например, en-US).
func (c *Client) Voices(ctx context.Context, language string) ([]tts.Voice, error) {
	resp, err := c.tts.ListVoices(ctx, &ttspb.ListVoicesRequest{LanguageCode: language})
	if err != nil {
		return nil, err
	}
	out := make([]tts.Voice, 0, len(resp.GetVoices()))
	for _, v := range resp.GetVoices() {
		out = append(out, tts.Voice{
			Name:          v.GetName(),
			LanguageCodes: v.GetLanguageCodes(),
			Gender:        gender(v.GetSsmlGender()),
		})
	}
	return out, nil
}

func gender(g ttspb.SsmlVoiceGender) string {
	switch g {
	case ttspb.SsmlVoiceGender_FEMALE:
		return "female"
	case ttspb.SsmlVoiceGender_MALE:
		return "male"
	case ttspb.SsmlVoiceGender_NEUTRAL:
		return "neutral"
	default:
		return ""
	}
}
