package voice

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"whybot/internal/service/stt"
	"whybot/internal/service/tts"
)

var (
	// ErrBusy: запись нельзя начать, пока ждём ответ.
	ErrBusy = errors.New("voice: request in progress")
	// ErrNotRecording: аудио пришло вне сессии записи.
	ErrNotRecording = errors.New("voice: not recording")
)

// Asker принимает распознанный вопрос.
type Asker interface {
	Ask(question string) bool
	Pending() bool
}

// Options параметры синтеза и выбора голоса.
type Options struct {
	Params tts.Params // Voice: голос по умолчанию, если эвристика ничего не нашла
	Hints  []string
}

// VoiceState событие о состоянии записи.
type VoiceState struct {
	Recording bool `json:"recording"`
}

// TranscriptEvent накопленная расшифровка текущей записи.
type TranscriptEvent struct {
	Text    string `json:"text"`
	Interim string `json:"interim,omitempty"`
}

// Bridge связывает ответы бота с синтезом речи и голосовой ввод с вопросами.
// Одновременно звучит не больше одной реплики.
type Bridge struct {
	synth  tts.Synthesizer // nil: озвучка выключена
	sink   Sink
	rec    stt.Recognizer // nil: распознавание только на стороне браузера
	pub    Publisher
	opts   Options
	logger *zap.SugaredLogger

	speaking sync.WaitGroup

	mu     sync.Mutex
	cancel context.CancelFunc
	gen    uint64

	voice         string
	voiceResolved bool

	asker Asker

	recording bool
	session   uint64
	finals    []string
	interim   string
	stream    stt.Stream
}

// NewBridge создаёт мост. synth, rec и pub могут быть nil.
func NewBridge(synth tts.Synthesizer, sink Sink, rec stt.Recognizer, pub Publisher, opts Options, logger *zap.SugaredLogger) *Bridge {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Bridge{synth: synth, sink: sink, rec: rec, pub: pub, opts: opts, logger: logger}
}

// Bind подключает получателя распознанных вопросов.
func (b *Bridge) Bind(a Asker) {
	b.mu.Lock()
	b.asker = a
	b.mu.Unlock()
}

// Speak прерывает текущую реплику и озвучивает text в фоне.
func (b *Bridge) Speak(text string) {
	text = strings.TrimSpace(text)
	if text == "" || b.synth == nil || b.sink == nil {
		return
	}

	b.mu.Lock()
	b.stopLocked()
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.gen++
	gen := b.gen
	b.speaking.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.speaking.Done()
		defer b.finish(gen, cancel)
		b.say(ctx, gen, text)
	}()
}

// Replay озвучивает текст повторно, например по кнопке у ответа.
func (b *Bridge) Replay(text string) { b.Speak(text) }

// Cancel останавливает текущую реплику, не дожидаясь завершения.
func (b *Bridge) Cancel() {
	b.mu.Lock()
	b.stopLocked()
	b.mu.Unlock()
}

// Wait ждёт завершения всех фоновых озвучек.
func (b *Bridge) Wait() { b.speaking.Wait() }

func (b *Bridge) say(ctx context.Context, gen uint64, text string) {
	params := b.opts.Params
	params.Voice = b.resolveVoice(ctx)

	audio, err := b.synth.Synthesize(ctx, text, params)
	if err != nil {
		if ctx.Err() == nil {
			b.logger.Warnw("Speech synthesis failed", "error", err)
		}
		return
	}

	b.mu.Lock()
	current := b.gen == gen && ctx.Err() == nil
	b.mu.Unlock()
	if !current {
		return
	}
	if err := b.sink.Play(ctx, audio); err != nil && ctx.Err() == nil {
		b.logger.Warnw("Speech playback failed", "error", err)
	}
}

func (b *Bridge) finish(gen uint64, cancel context.CancelFunc) {
	cancel()
	b.mu.Lock()
	if b.gen == gen {
		b.cancel = nil
	}
	b.mu.Unlock()
}

func (b *Bridge) stopLocked() {
	if b.cancel == nil {
		return
	}
	b.cancel()
	b.cancel = nil
	b.sink.Stop()
}

// resolveVoice выбирает голос один раз; при ошибке списка голосов используем голос по умолчанию
// и пробуем снова в следующий раз.
func (b *Bridge) resolveVoice(ctx context.Context) string {
	b.mu.Lock()
	if b.voiceResolved {
		v := b.voice
		b.mu.Unlock()
		return v
	}
	b.mu.Unlock()

	fallback := b.opts.Params.Voice
	voices, err := b.synth.Voices(ctx, b.opts.Params.Language)
	if err != nil {
		b.logger.Warnw("Voice list unavailable, using default voice", "voice", fallback, "error", err)
		return fallback
	}
	v := SelectVoice(voices, b.opts.Params.Language, b.opts.Hints, fallback)

	b.mu.Lock()
	if !b.voiceResolved {
		b.voice, b.voiceResolved = v, true
		b.logger.Infow("Voice selected", "voice", v, "candidates", len(voices))
	}
	v = b.voice
	b.mu.Unlock()
	return v
}

// Recording сообщает, идёт ли запись.
func (b *Bridge) Recording() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.recording
}

// StartTranscription начинает запись. Пока бот думает, запись не начинается.
func (b *Bridge) StartTranscription() error {
	b.mu.Lock()
	asker := b.asker
	b.mu.Unlock()
	if asker != nil && asker.Pending() {
		return ErrBusy
	}

	b.mu.Lock()
	if b.recording {
		b.mu.Unlock()
		return nil
	}
	// Бот замолкает, чтобы не слушать сам себя.
	b.stopLocked()
	b.recording = true
	b.session++
	session := b.session
	b.finals, b.interim = nil, ""
	b.mu.Unlock()

	if b.rec != nil {
		stream, err := b.rec.Open(context.Background())
		if err != nil {
			b.logger.Warnw("Speech recognizer unavailable, relying on client transcripts", "error", err)
		} else {
			b.mu.Lock()
			if b.session == session && b.recording {
				b.stream = stream
				b.mu.Unlock()
				go b.consume(session, stream)
			} else {
				b.mu.Unlock()
				_ = stream.Close()
			}
		}
	}

	b.publish(EventVoice, VoiceState{Recording: true})
	return nil
}

func (b *Bridge) consume(session uint64, stream stt.Stream) {
	for res := range stream.Results() {
		b.mu.Lock()
		stale := b.session != session || !b.recording
		b.mu.Unlock()
		if stale {
			return
		}
		b.AddTranscript(res.Text, res.Final)
	}
}

// AddTranscript добавляет гипотезу распознавания в текущую запись.
func (b *Bridge) AddTranscript(text string, final bool) {
	b.mu.Lock()
	if !b.recording {
		b.mu.Unlock()
		return
	}
	text = strings.TrimSpace(text)
	if final {
		if text != "" {
			b.finals = append(b.finals, text)
		}
		b.interim = ""
	} else {
		b.interim = text
	}
	ev := TranscriptEvent{Text: strings.Join(b.finals, " "), Interim: b.interim}
	b.mu.Unlock()

	b.publish(EventTranscript, ev)
}

// WriteAudio передаёт PCM16 распознавателю. Без распознавателя аудио отбрасывается.
func (b *Bridge) WriteAudio(pcm []byte) error {
	b.mu.Lock()
	recording, stream := b.recording, b.stream
	b.mu.Unlock()
	if !recording {
		return ErrNotRecording
	}
	if stream == nil {
		return nil
	}
	return stream.WriteAudio(pcm)
}

// StopTranscription завершает запись и задаёт непустую расшифровку как вопрос.
// Возвращает текст и признак того, что вопрос принят.
func (b *Bridge) StopTranscription() (string, bool) {
	text, ok := b.endSession()
	if !ok {
		return "", false
	}
	b.mu.Lock()
	asker := b.asker
	b.mu.Unlock()
	if text == "" || asker == nil {
		return text, false
	}
	return text, asker.Ask(text)
}

// CancelTranscription завершает запись без вопроса.
func (b *Bridge) CancelTranscription() {
	b.endSession()
}

// ToggleTranscription начинает или завершает запись. Возвращает новое состояние записи.
func (b *Bridge) ToggleTranscription() (bool, error) {
	if b.Recording() {
		b.StopTranscription()
		return false, nil
	}
	if err := b.StartTranscription(); err != nil {
		return false, err
	}
	return true, nil
}

func (b *Bridge) endSession() (string, bool) {
	b.mu.Lock()
	if !b.recording {
		b.mu.Unlock()
		return "", false
	}
	parts := b.finals
	// Незавершённая гипотеза тоже считается: пользователь остановил запись посреди фразы.
	if b.interim != "" {
		parts = append(parts, b.interim)
	}
	text := strings.TrimSpace(strings.Join(parts, " "))
	stream := b.stream
	b.recording, b.stream = false, nil
	b.finals, b.interim = nil, ""
	b.session++
	b.mu.Unlock()

	if stream != nil {
		if err := stream.Close(); err != nil {
			b.logger.Warnw("Speech recognizer close failed", "error", err)
		}
	}
	b.publish(EventVoice, VoiceState{Recording: false})
	return text, true
}

func (b *Bridge) publish(eventType string, payload any) {
	if b.pub != nil {
		b.pub.Publish(eventType, payload)
	}
}
