package tts

import "context"

// Audio синтезированная речь.
type Audio struct {
	Format   string // mp3|wav, для плеера
	MIMEType string // для data URI в браузере
	Data     []byte
}

// Voice описание голоса провайдера.
type Voice struct {
	Name          string
	LanguageCodes []string
	Gender        string // male|female|neutral, пусто: неизвестно
}

// Params параметры синтеза. Prompt используется только Gemini; для остальных пустой.
type Params struct {
	Language     string
	Voice        string
	SpeakingRate float64
	Pitch        float64
	VolumeGainDb float64
	Prompt       string
}

// Synthesizer абстракция TTS: синтез возвращает аудио, воспроизведение: забота вызывающего.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, p Params) (Audio, error)
	Voices(ctx context.Context, language string) ([]Voice, error)
}
