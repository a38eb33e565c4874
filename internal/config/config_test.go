package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// clearEnv убирает переменные, которые могут прийти из окружения разработчика.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"API_KEY", "OPENAI_API_KEY", "AI_PROVIDER", "TTS_SERVICE", "VOICE_SINK", "REQUEST_TIMEOUT",
		"GOOGLE_APPLICATION_CREDENTIALS", "GOOGLE_TTS_VOICE_HINTS", "HTTP_ADDR", "SAFETY_THRESHOLD", "YC_STT_PARTIALS",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_MissingAPIKeyIsFatal(t *testing.T) {
	clearEnv(t)
	t.Setenv("TTS_SERVICE", "none")

	_, err := Load(nil)
	require.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestLoad_OpenAIRequiresItsOwnKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("TTS_SERVICE", "none")
	t.Setenv("API_KEY", "gemini-key")

	_, err := Load([]string{"-ai-provider", "openai"})
	require.ErrorIs(t, err, ErrMissingAPIKey)

	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, err := Load([]string{"-ai-provider", "openai"})
	require.NoError(t, err)
	require.Equal(t, "sk-test", cfg.OpenAI.APIKey)
}

func TestLoad_EnvAndFlagsOverrideDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_KEY", "key")
	t.Setenv("TTS_SERVICE", "none")
	t.Setenv("REQUEST_TIMEOUT", "15s")
	t.Setenv("GOOGLE_TTS_VOICE_HINTS", "Kid; Junior ;")

	cfg, err := Load([]string{"-http-addr", "0.0.0.0:9000", "-google-tts-pitch", "3.5"})
	require.NoError(t, err)

	require.Equal(t, "key", cfg.Gemini.APIKey)
	require.Equal(t, 15*time.Second, cfg.RequestTimeout)
	require.Equal(t, "0.0.0.0:9000", cfg.HTTPAddr)
	require.Equal(t, 3.5, cfg.GoogleTTS.Pitch)
	require.Equal(t, []string{"Kid", "Junior"}, cfg.GoogleTTS.VoiceHints)
	require.Equal(t, "gemini-2.5-flash", cfg.Gemini.TextModel)
	require.Equal(t, "imagen-3.0-generate-002", cfg.Gemini.ImageModel)
	require.True(t, cfg.YandexSTT.Partials)
}

func TestLoad_YandexPartialsCanBeDisabled(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_KEY", "key")
	t.Setenv("TTS_SERVICE", "none")

	cfg, err := Load([]string{"-yc-stt-partials=false"})
	require.NoError(t, err)
	require.False(t, cfg.YandexSTT.Partials)
}

func TestLoadArgs_ReturnsPositional(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_KEY", "key")
	t.Setenv("TTS_SERVICE", "none")

	cfg, rest, err := LoadArgs([]string{"-ai-provider", "stub", "Why is the sky blue?", "out.png"})
	require.NoError(t, err)
	require.Equal(t, "stub", cfg.AIProvider)
	require.Equal(t, []string{"Why is the sky blue?", "out.png"}, rest)
}

func TestLoad_UnknownProvider(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_KEY", "key")
	t.Setenv("TTS_SERVICE", "none")

	_, err := Load([]string{"-ai-provider", "llama"})
	require.Error(t, err)
}

func TestValidate_Enums(t *testing.T) {
	clearEnv(t)
	base := func() *Config {
		cfg := Defaults()
		cfg.Gemini.APIKey = "key"
		cfg.TTSService = "none"
		return cfg
	}
	require.NoError(t, base().Validate())

	cfg := base()
	cfg.SafetyThreshold = "sometimes"
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.TTSService = "yandex"
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.VoiceSink = "radio"
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.RequestTimeout = 0
	require.Error(t, cfg.Validate())
}

func TestValidate_GoogleTTSCredentials(t *testing.T) {
	clearEnv(t)
	cfg := Defaults()
	cfg.Gemini.APIKey = "key"

	require.Error(t, cfg.Validate())

	cfg.GoogleTTS.CredentialsPath = filepath.Join(t.TempDir(), "missing.json")
	require.Error(t, cfg.Validate())

	// Validate уже выставил ENV на несуществующий файл
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	path := filepath.Join(t.TempDir(), "sa.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
	cfg.GoogleTTS.CredentialsPath = path
	require.NoError(t, cfg.Validate())
	require.Equal(t, path, os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
}

func TestParseListFlag(t *testing.T) {
	def := []string{"x"}
	require.Equal(t, def, parseListFlag("", def))
	require.Equal(t, def, parseListFlag(" ; ;", def))
	require.Equal(t, []string{"a", "b"}, parseListFlag("a; b", def))
}
