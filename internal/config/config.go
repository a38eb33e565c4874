package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// ErrMissingAPIKey без ключа провайдера приложение не стартует.
var ErrMissingAPIKey = errors.New("API key is not set")

type Config struct {
	DebugMode      bool          `env:"DEBUG_MODE"`      // Режим дебага: development-логгер, debug-уровень
	HTTPAddr       string        `env:"HTTP_ADDR"`       // Адрес HTTP/WebSocket сервера
	AIProvider     string        `env:"AI_PROVIDER"`     // gemini|openai|stub
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"` // Таймаут одного запроса к сервису ответов
	// Порог блокировки для всех категорий: low_and_above|medium_and_above|only_high|none
	SafetyThreshold string `env:"SAFETY_THRESHOLD"`

	Gemini GeminiConfig
	OpenAI OpenAIConfig

	// Голос
	TTSService string `env:"TTS_SERVICE"` // google|gemini|none
	VoiceSink  string `env:"VOICE_SINK"`  // browser|speaker
	GoogleTTS  GoogleTTSConfig
	GeminiTTS  GeminiTTSConfig
	YandexSTT  YandexSTTConfig
}

// GeminiConfig доступ к Gemini API (текст + Imagen).
type GeminiConfig struct {
	APIKey     string `env:"API_KEY"`
	TextModel  string `env:"GEMINI_TEXT_MODEL"`
	ImageModel string `env:"GEMINI_IMAGE_MODEL"`
}

// OpenAIConfig доступ к OpenAI (альтернативный провайдер).
type OpenAIConfig struct {
	APIKey     string `env:"OPENAI_API_KEY"`
	TextModel  string `env:"OPENAI_TEXT_MODEL"`
	ImageModel string `env:"OPENAI_IMAGE_MODEL"`
}

// GoogleTTSConfig конфигурация для синтеза речи через Google Cloud Text-to-Speech.
type GoogleTTSConfig struct {
	// Путь к файлу ключа сервисного аккаунта. Фактически читается из ENV GOOGLE_APPLICATION_CREDENTIALS.
	CredentialsPath string  `env:"GOOGLE_APPLICATION_CREDENTIALS"`
	Language        string  `env:"GOOGLE_TTS_LANGUAGE"`
	Voice           string  `env:"GOOGLE_TTS_VOICE"` // Голос по умолчанию, если эвристика ничего не нашла
	SpeakingRate    float64 `env:"GOOGLE_TTS_SPEAKING_RATE"`
	Pitch           float64 `env:"GOOGLE_TTS_PITCH"`
	VolumeGainDb    float64 `env:"GOOGLE_TTS_VOLUME_DB"`
	// Подсказки для выбора «детского» голоса, по убыванию приоритета
	VoiceHints []string `env:"GOOGLE_TTS_VOICE_HINTS" envSeparator:";"`
}

// GeminiTTSConfig конфигурация Cloud TTS с моделями Gemini (REST, ADC).
type GeminiTTSConfig struct {
	Endpoint  string `env:"GEMINI_TTS_ENDPOINT"`
	ModelName string `env:"GEMINI_TTS_MODEL"`
	Prompt    string `env:"GEMINI_TTS_PROMPT"` // Стилевая подсказка для озвучки
}

// YandexSTTConfig потоковое распознавание речи из PCM, присланного клиентом. Пустой ключ: выключено.
type YandexSTTConfig struct {
	APIKey     string `env:"YC_STT_API_KEY"`
	Language   string `env:"YC_STT_LANGUAGE"`
	SampleRate int    `env:"YC_STT_SAMPLE_RATE"`
	Partials   bool   `env:"YC_STT_PARTIALS"` // промежуточные гипотезы для живой расшифровки
}

// Defaults возвращает конфигурацию с предустановленными значениями по умолчанию.
// Эти значения перекрываются .env, переменными окружения и флагами CLI.
func Defaults() *Config {
	return &Config{
		DebugMode:       false,
		HTTPAddr:        "127.0.0.1:8080",
		AIProvider:      "gemini",
		RequestTimeout:  60 * time.Second,
		SafetyThreshold: "low_and_above",
		Gemini: GeminiConfig{
			TextModel:  "gemini-2.5-flash",
			ImageModel: "imagen-3.0-generate-002",
		},
		OpenAI: OpenAIConfig{
			TextModel:  "gpt-4o",
			ImageModel: "gpt-image-1",
		},
		TTSService: "google",
		VoiceSink:  "browser",
		GoogleTTS: GoogleTTSConfig{
			Language:     "en-US",
			Voice:        "en-US-Standard-C",
			SpeakingRate: 0.9, // чуть медленнее для ребёнка
			Pitch:        2.0, // полутоны, выше обычного
			VolumeGainDb: 0.0,
			VoiceHints:   []string{"child", "kid", "junior", "Neural2-F", "Wavenet-F", "female"},
		},
		GeminiTTS: GeminiTTSConfig{
			ModelName: "gemini-2.5-flash-preview-tts",
			Prompt:    "Speak slowly, warmly and cheerfully, like a kind teacher talking to a five-year-old.",
		},
		YandexSTT: YandexSTTConfig{
			Language:   "en-US",
			SampleRate: 16000,
			Partials:   true,
		},
	}
}

// NewConfig загружает конфигурацию приложения из .env, окружения и os.Args.
func NewConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load делает то же, что NewConfig, но с явными аргументами командной строки.
func Load(args []string) (*Config, error) {
	cfg, _, err := LoadArgs(args)
	return cfg, err
}

// LoadArgs разбирает конфигурацию и возвращает позиционные аргументы, оставшиеся после флагов.
func LoadArgs(args []string) (*Config, []string, error) {
	_ = godotenv.Load()

	// Стартуем с дефолтов, затем перекрываем .env/окружением и флагами
	cfg := Defaults()
	if err := env.Parse(cfg); err != nil {
		return nil, nil, fmt.Errorf("parse env: %w", err)
	}

	fs := flag.NewFlagSet("whybot", flag.ContinueOnError)
	fs.BoolVar(&cfg.DebugMode, "debug-mode", cfg.DebugMode, "включить режим дебага")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "адрес HTTP сервера, напр. 127.0.0.1:8080")
	fs.StringVar(&cfg.AIProvider, "ai-provider", cfg.AIProvider, "провайдер генерации: gemini|openai|stub")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "таймаут запроса к сервису ответов, напр. 60s")
	fs.StringVar(&cfg.SafetyThreshold, "safety-threshold", cfg.SafetyThreshold, "порог блокировки: low_and_above|medium_and_above|only_high|none")
	fs.StringVar(&cfg.Gemini.TextModel, "gemini-text-model", cfg.Gemini.TextModel, "текстовая модель Gemini")
	fs.StringVar(&cfg.Gemini.ImageModel, "gemini-image-model", cfg.Gemini.ImageModel, "модель генерации изображений (Imagen)")
	fs.StringVar(&cfg.OpenAI.TextModel, "openai-text-model", cfg.OpenAI.TextModel, "текстовая модель OpenAI")
	fs.StringVar(&cfg.OpenAI.ImageModel, "openai-image-model", cfg.OpenAI.ImageModel, "модель изображений OpenAI")
	fs.StringVar(&cfg.TTSService, "tts-service", cfg.TTSService, "сервис TTS: google|gemini|none")
	fs.StringVar(&cfg.VoiceSink, "voice-sink", cfg.VoiceSink, "куда отдавать звук: browser|speaker")
	fs.StringVar(&cfg.GoogleTTS.Language, "google-tts-language", cfg.GoogleTTS.Language, "язык синтеза, напр. en-US")
	fs.StringVar(&cfg.GoogleTTS.Voice, "google-tts-voice", cfg.GoogleTTS.Voice, "голос по умолчанию, напр. en-US-Standard-C")
	fs.Float64Var(&cfg.GoogleTTS.SpeakingRate, "google-tts-speaking-rate", cfg.GoogleTTS.SpeakingRate, "скорость речи (1.0: обычная)")
	fs.Float64Var(&cfg.GoogleTTS.Pitch, "google-tts-pitch", cfg.GoogleTTS.Pitch, "тон (полутоны), может быть отрицательным")
	fs.Float64Var(&cfg.GoogleTTS.VolumeGainDb, "google-tts-volume-db", cfg.GoogleTTS.VolumeGainDb, "усиление громкости (дБ), от -96.0 до +16.0")
	// Подсказки голоса принимаем одной строкой, разделённой ';'
	voiceHintsFlag := strings.Join(cfg.GoogleTTS.VoiceHints, ";")
	fs.StringVar(&voiceHintsFlag, "google-tts-voice-hints", voiceHintsFlag, "подсказки для выбора голоса, разделённые ';'")
	fs.StringVar(&cfg.YandexSTT.Language, "yc-stt-language", cfg.YandexSTT.Language, "язык распознавания Yandex STT")
	fs.BoolVar(&cfg.YandexSTT.Partials, "yc-stt-partials", cfg.YandexSTT.Partials, "получать промежуточные гипотезы Yandex STT")
	fs.IntVar(&cfg.YandexSTT.SampleRate, "yc-stt-sample-rate", cfg.YandexSTT.SampleRate, "частота PCM от клиента, Гц")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	cfg.GoogleTTS.VoiceHints = parseListFlag(voiceHintsFlag, Defaults().GoogleTTS.VoiceHints)

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, fs.Args(), nil
}

// Validate проверяет обязательные параметры. Отсутствие ключа выбранного провайдера: фатально.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.AIProvider)) {
	case "", "gemini", "stub":
		// stub нужен только для разработки, но правило старта то же: без ключа не работаем
		if strings.TrimSpace(c.Gemini.APIKey) == "" {
			return fmt.Errorf("%w: set API_KEY", ErrMissingAPIKey)
		}
	case "openai":
		if strings.TrimSpace(c.OpenAI.APIKey) == "" {
			return fmt.Errorf("%w: set OPENAI_API_KEY", ErrMissingAPIKey)
		}
	default:
		return fmt.Errorf("unknown ai provider %q", c.AIProvider)
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request timeout must be positive")
	}
	switch strings.ToLower(c.SafetyThreshold) {
	case "low_and_above", "medium_and_above", "only_high", "none":
	default:
		return fmt.Errorf("unknown safety threshold %q", c.SafetyThreshold)
	}
	switch strings.ToLower(c.TTSService) {
	case "google", "gemini", "none":
	default:
		return fmt.Errorf("unknown tts service %q", c.TTSService)
	}
	switch strings.ToLower(c.VoiceSink) {
	case "browser", "speaker":
	default:
		return fmt.Errorf("unknown voice sink %q", c.VoiceSink)
	}

	// Если выбран сервис google, убеждаемся, что путь к cred-файлу задан и файл существует.
	// Если ENV пуст, но в конфиге указан путь: устанавливаем ENV.
	if strings.EqualFold(c.TTSService, "google") {
		cred := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
		if cred == "" {
			if cp := strings.TrimSpace(c.GoogleTTS.CredentialsPath); cp != "" {
				_ = os.Setenv("GOOGLE_APPLICATION_CREDENTIALS", cp)
				cred = cp
			}
		}
		if cred == "" {
			return errors.New("google tts: GOOGLE_APPLICATION_CREDENTIALS is not set; use TTS_SERVICE=none to run without voice")
		}
		if _, err := os.Stat(cred); err != nil {
			return fmt.Errorf("google tts: credentials file not found: %s", cred)
		}
	}
	return nil
}

// parseListFlag разбирает значение флага со списком, разделённым ';'
func parseListFlag(v string, def []string) []string {
	// Пустая строка → дефолт
	if v == "" {
		return def
	}
	parts := strings.Split(v, ";")
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) == 0 {
		return def
	}
	return cleaned
}
