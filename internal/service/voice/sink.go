package voice

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"

	"github.com/google/uuid"

	"whybot/internal/service/tts"
)

// Типы событий, которые голосовой мост отправляет клиентам.
const (
	EventSpeech       = "speech"
	EventSpeechCancel = "speech_cancel"
	EventVoice        = "voice"
	EventTranscript   = "transcript"
)

// Publisher рассылает события подключённым клиентам.
type Publisher interface {
	Publish(eventType string, payload any)
}

// Sink воспроизводит готовое аудио. Play может блокироваться до конца звучания.
type Sink interface {
	Play(ctx context.Context, audio tts.Audio) error
	Stop()
}

// SpeechEvent аудио для воспроизведения в браузере.
type SpeechEvent struct {
	ID    string `json:"id"`
	Audio string `json:"audio"` // data:audio/mpeg;base64,...
}

// BrowserSink отдаёт звук клиентам через Publisher, играет его браузер.
type BrowserSink struct {
	pub Publisher
}

func NewBrowserSink(pub Publisher) *BrowserSink { return &BrowserSink{pub: pub} }

func (s *BrowserSink) Play(ctx context.Context, audio tts.Audio) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.pub.Publish(EventSpeech, SpeechEvent{
		ID:    uuid.NewString(),
		Audio: "data:" + audio.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(audio.Data),
	})
	return nil
}

func (s *BrowserSink) Stop() { s.pub.Publish(EventSpeechCancel, nil) }

// Player локальное воспроизведение, например player.Default.
type Player interface {
	Play(ctx context.Context, format string, r io.ReadCloser) error
	Stop()
}

// SpeakerSink играет звук локально через колонки сервера.
type SpeakerSink struct {
	p Player
}

func NewSpeakerSink(p Player) *SpeakerSink { return &SpeakerSink{p: p} }

func (s *SpeakerSink) Play(ctx context.Context, audio tts.Audio) error {
	return s.p.Play(ctx, audio.Format, io.NopCloser(bytes.NewReader(audio.Data)))
}

func (s *SpeakerSink) Stop() { s.p.Stop() }
