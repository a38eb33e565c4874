package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2/google"

	"whybot/internal/service/tts"
)

// По умолчанию используем Cloud TTS v1beta1 text:synthesize, совместимый с Generative AI TTS.
const defaultEndpoint = "https://texttospeech.googleapis.com/v1beta1/text:synthesize"

// Голоса Gemini-TTS мультиязычные; пол указан по описанию провайдера.
var geminiVoices = []tts.Voice{
	{Name: "Leda", Gender: "female"},
	{Name: "Aoede", Gender: "female"},
	{Name: "Kore", Gender: "female"},
	{Name: "Zephyr", Gender: "female"},
	{Name: "Puck", Gender: "male"},
	{Name: "Charon", Gender: "male"},
	{Name: "Fenrir", Gender: "male"},
}

// Client реализует синтез речи через Cloud Text-to-Speech: Gemini-TTS.
type Client struct {
	http      *http.Client
	endpoint  string
	modelName string
	logger    *zap.SugaredLogger
}

// New создаёт клиента. httpClient == nil: OAuth2 HTTP-клиент через ADC создаётся при первом запросе.
func New(httpClient *http.Client, endpoint, modelName string, logger *zap.SugaredLogger) *Client {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = defaultEndpoint
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Client{http: httpClient, endpoint: endpoint, modelName: modelName, logger: logger}
}

// requestPayload максимально нейтральная структура, покрывающая input.prompt и voice.model_name.
type requestPayload struct {
	Input struct {
		Prompt string `json:"prompt,omitempty"`
		Text   string `json:"text,omitempty"`
	} `json:"input"`
	Voice struct {
		ModelName    string `json:"modelName,omitempty"`
		LanguageCode string `json:"languageCode,omitempty"`
		VoiceName    string `json:"name,omitempty"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding string  `json:"audioEncoding,omitempty"`
		SpeakingRate  float64 `json:"speakingRate,omitempty"`
		Pitch         float64 `json:"pitch,omitempty"`
		VolumeGainDb  float64 `json:"volumeGainDb,omitempty"`
	} `json:"audioConfig"`
}

type jsonAudioResponse struct {
	AudioContent string `json:"audioContent"`
}

// Synthesize выполняет запрос к Gemini-TTS и возвращает MP3.
func (c *Client) Synthesize(ctx context.Context, text string, p tts.Params) (tts.Audio, error) {
	// Cloud TTS ожидает непустой text. Пустой ввод приведёт к 400.
	if strings.TrimSpace(text) == "" {
		return tts.Audio{}, errors.New("gemini tts: empty input text")
	}

	var rp requestPayload
	rp.Input.Text = text
	// Промпт пустым не отправляем.
	if pr := strings.TrimSpace(p.Prompt); pr != "" {
		rp.Input.Prompt = pr
	}
	rp.Voice.ModelName = strings.TrimSpace(c.modelName)
	rp.Voice.LanguageCode = strings.TrimSpace(p.Language)
	rp.Voice.VoiceName = strings.TrimSpace(p.Voice)
	rp.AudioConfig.AudioEncoding = "MP3"
	rp.AudioConfig.SpeakingRate = p.SpeakingRate
	rp.AudioConfig.Pitch = p.Pitch
	rp.AudioConfig.VolumeGainDb = p.VolumeGainDb

	body, err := json.Marshal(&rp)
	if err != nil {
		return tts.Audio{}, err
	}

	httpClient, err := c.client(ctx)
	if err != nil {
		return tts.Audio{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return tts.Audio{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := httpClient.Do(req)
	if err != nil {
		return tts.Audio{}, err
	}
	defer resp.Body.Close()

	c.logger.Infow("Gemini TTS request completed", "status", resp.StatusCode, "took", time.Since(started).String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if len(b) == 0 {
			b = []byte(resp.Status)
		}
		return tts.Audio{}, fmt.Errorf("gemini tts error: status=%d, body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	// JSON с base64 полем audioContent
	var jr jsonAudioResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 5<<20)).Decode(&jr); err != nil {
		return tts.Audio{}, fmt.Errorf("gemini tts: decode json response: %w", err)
	}
	if strings.TrimSpace(jr.AudioContent) == "" {
		return tts.Audio{}, errors.New("gemini tts: empty audioContent in response")
	}
	data, err := base64.StdEncoding.DecodeString(jr.AudioContent)
	if err != nil {
		return tts.Audio{}, fmt.Errorf("gemini tts: base64 decode: %w", err)
	}
	return tts.Audio{Format: "mp3", MIMEType: "audio/mpeg", Data: data}, nil
}

// Voices голоса Gemini-TTS не зависят от языка, поэтому каждому проставляется запрошенный язык.
func (c *Client) Voices(_ context.Context, language string) ([]tts.Voice, error) {
	out := make([]tts.Voice, 0, len(geminiVoices))
	for _, v := range geminiVoices {
		v.LanguageCodes = []string{language}
		out = append(out, v)
	}
	return out, nil
}

// client возвращает HTTP-клиента; OAuth2 только через ADC/metadata, API Key не используется.
func (c *Client) client(ctx context.Context) (*http.Client, error) {
	if c.http != nil {
		return c.http, nil
	}
	hc, err := google.DefaultClient(ctx, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		return nil, errors.New("gemini tts: ADC credentials not found. Set GOOGLE_APPLICATION_CREDENTIALS to a service account JSON")
	}
	c.http = hc
	return hc, nil
}
