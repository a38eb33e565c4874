package voice

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"whybot/internal/app/orchestrator"
	"whybot/internal/service/answer"
	"whybot/internal/service/conversation"
	"whybot/internal/service/stt"
	"whybot/internal/service/tts"
)

type fakeSynth struct {
	mu          sync.Mutex
	voices      []tts.Voice
	voicesErr   error
	voiceCalls  int
	synthesized []tts.Params
	texts       []string
	err         error
}

func (f *fakeSynth) Synthesize(_ context.Context, text string, p tts.Params) (tts.Audio, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	f.synthesized = append(f.synthesized, p)
	if f.err != nil {
		return tts.Audio{}, f.err
	}
	return tts.Audio{Format: "mp3", MIMEType: "audio/mpeg", Data: []byte(text)}, nil
}

func (f *fakeSynth) Voices(context.Context, string) ([]tts.Voice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voiceCalls++
	return f.voices, f.voicesErr
}

// blockingSink держит Play до отмены контекста, как локальные колонки.
type blockingSink struct {
	mu      sync.Mutex
	played  []string
	stops   int
	started chan string
}

func newBlockingSink() *blockingSink { return &blockingSink{started: make(chan string, 8)} }

func (s *blockingSink) Play(ctx context.Context, a tts.Audio) error {
	s.mu.Lock()
	s.played = append(s.played, string(a.Data))
	s.mu.Unlock()
	s.started <- string(a.Data)
	<-ctx.Done()
	return ctx.Err()
}

func (s *blockingSink) Stop() {
	s.mu.Lock()
	s.stops++
	s.mu.Unlock()
}

type recordedEvent struct {
	typ     string
	payload any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *fakePublisher) Publish(t string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{t, payload})
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.typ)
	}
	return out
}

type fakeAsker struct {
	mu      sync.Mutex
	pending bool
	asked   []string
}

func (a *fakeAsker) Ask(q string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.asked = append(a.asked, q)
	return true
}

func (a *fakeAsker) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending
}

type fakeStream struct {
	results chan stt.Result
	mu      sync.Mutex
	audio   [][]byte
	closed  bool
}

func (s *fakeStream) WriteAudio(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = append(s.audio, pcm)
	return nil
}

func (s *fakeStream) Results() <-chan stt.Result { return s.results }

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type fakeRecognizer struct{ stream *fakeStream }

func (r *fakeRecognizer) Open(context.Context) (stt.Stream, error) { return r.stream, nil }

func TestSelectVoice(t *testing.T) {
	voices := []tts.Voice{
		{Name: "de-DE-Kid-A", LanguageCodes: []string{"de-DE"}, Gender: "female"},
		{Name: "en-GB-Standard-B", LanguageCodes: []string{"en-GB"}, Gender: "male"},
		{Name: "en-US-Standard-C", LanguageCodes: []string{"en-US"}, Gender: "female"},
		{Name: "en-US-Neural2-F", LanguageCodes: []string{"en-US"}, Gender: "female"},
		{Name: "en-GB-Neural2-F", LanguageCodes: []string{"en-GB"}, Gender: "female"},
	}
	hints := []string{"child", "kid", "Neural2-F", "female"}

	cases := []struct {
		name   string
		voices []tts.Voice
		lang   string
		hints  []string
		want   string
	}{
		{"name hint wins, exact language breaks tie", voices, "en-US", hints, "en-US-Neural2-F"},
		{"other language ignored", voices, "en-GB", []string{"kid"}, "en-GB-Standard-B"},
		{"gender only", voices, "en-US", []string{"female"}, "en-US-Standard-C"},
		{"no hints: exact language preferred", voices, "en-US", nil, "en-US-Standard-C"},
		{"no language match: fallback", voices, "fr-FR", hints, "fallback"},
		{"empty list: fallback", nil, "en-US", hints, "fallback"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, SelectVoice(tc.voices, tc.lang, tc.hints, "fallback"))
		})
	}
}

func TestSpeakUsesSelectedVoiceAndCachesIt(t *testing.T) {
	synth := &fakeSynth{voices: []tts.Voice{
		{Name: "en-US-Standard-B", LanguageCodes: []string{"en-US"}, Gender: "male"},
		{Name: "en-US-Wavenet-F", LanguageCodes: []string{"en-US"}, Gender: "female"},
	}}
	pub := &fakePublisher{}
	b := NewBridge(synth, NewBrowserSink(pub), nil, pub, Options{
		Params: tts.Params{Language: "en-US", Voice: "en-US-Standard-C", SpeakingRate: 0.9, Pitch: 2},
		Hints:  []string{"Wavenet-F"},
	}, nil)

	b.Speak("The sky is blue.")
	b.Wait()
	b.Speak("Because of sunlight.")
	b.Wait()

	require.Equal(t, 1, synth.voiceCalls)
	require.Len(t, synth.synthesized, 2)
	for _, p := range synth.synthesized {
		require.Equal(t, "en-US-Wavenet-F", p.Voice)
		require.Equal(t, 0.9, p.SpeakingRate)
		require.Equal(t, 2.0, p.Pitch)
	}

	require.Equal(t, []string{EventSpeech, EventSpeech}, pub.types())
	ev, ok := pub.events[0].payload.(SpeechEvent)
	require.True(t, ok)
	require.NotEmpty(t, ev.ID)
	require.True(t, strings.HasPrefix(ev.Audio, "data:audio/mpeg;base64,"))
}

func TestVoiceListFailureFallsBackWithoutCaching(t *testing.T) {
	synth := &fakeSynth{voicesErr: errors.New("unavailable")}
	b := NewBridge(synth, NewBrowserSink(&fakePublisher{}), nil, nil, Options{
		Params: tts.Params{Language: "en-US", Voice: "en-US-Standard-C"},
	}, nil)

	b.Speak("one")
	b.Wait()
	b.Speak("two")
	b.Wait()

	require.Equal(t, 2, synth.voiceCalls)
	require.Equal(t, "en-US-Standard-C", synth.synthesized[1].Voice)
}

func TestSpeakInterruptsPreviousUtterance(t *testing.T) {
	synth := &fakeSynth{}
	sink := newBlockingSink()
	b := NewBridge(synth, sink, nil, nil, Options{}, nil)

	b.Speak("first")
	require.Equal(t, "first", <-sink.started)

	b.Speak("second")
	require.Equal(t, "second", <-sink.started)

	b.Cancel()
	b.Wait()

	require.Equal(t, []string{"first", "second"}, sink.played)
	require.Equal(t, 2, sink.stops)
}

func TestSpeakIgnoresBlankTextAndMissingSynth(t *testing.T) {
	synth := &fakeSynth{}
	b := NewBridge(synth, newBlockingSink(), nil, nil, Options{}, nil)
	b.Speak("   ")
	b.Wait()
	require.Empty(t, synth.texts)

	silent := NewBridge(nil, newBlockingSink(), nil, nil, Options{}, nil)
	silent.Speak("hello")
	silent.Wait()
	silent.Cancel()
}

func TestCancelWithoutSpeechDoesNotStopSink(t *testing.T) {
	sink := newBlockingSink()
	b := NewBridge(&fakeSynth{}, sink, nil, nil, Options{}, nil)
	b.Cancel()
	require.Zero(t, sink.stops)
}

func TestTranscriptionAsksAccumulatedText(t *testing.T) {
	pub := &fakePublisher{}
	asker := &fakeAsker{}
	b := NewBridge(nil, nil, nil, pub, Options{}, nil)
	b.Bind(asker)

	recording, err := b.ToggleTranscription()
	require.NoError(t, err)
	require.True(t, recording)
	require.True(t, b.Recording())

	b.AddTranscript("why is", true)
	b.AddTranscript("the sky", false)
	b.AddTranscript("the sky blue", true)

	text, accepted := b.StopTranscription()
	require.Equal(t, "why is the sky blue", text)
	require.True(t, accepted)
	require.Equal(t, []string{"why is the sky blue"}, asker.asked)
	require.False(t, b.Recording())

	require.Equal(t, []string{EventVoice, EventTranscript, EventTranscript, EventTranscript, EventVoice}, pub.types())
}

func TestTranscriptionIncludesTrailingInterim(t *testing.T) {
	asker := &fakeAsker{}
	b := NewBridge(nil, nil, nil, nil, Options{}, nil)
	b.Bind(asker)

	require.NoError(t, b.StartTranscription())
	b.AddTranscript("why do cats purr", false)
	recording, err := b.ToggleTranscription()
	require.NoError(t, err)
	require.False(t, recording)
	require.Equal(t, []string{"why do cats purr"}, asker.asked)
}

func TestBlankTranscriptDoesNotAsk(t *testing.T) {
	asker := &fakeAsker{}
	b := NewBridge(nil, nil, nil, nil, Options{}, nil)
	b.Bind(asker)

	require.NoError(t, b.StartTranscription())
	b.AddTranscript("   ", true)
	text, accepted := b.StopTranscription()
	require.Empty(t, text)
	require.False(t, accepted)
	require.Empty(t, asker.asked)
}

func TestCancelTranscriptionDiscardsText(t *testing.T) {
	asker := &fakeAsker{}
	b := NewBridge(nil, nil, nil, nil, Options{}, nil)
	b.Bind(asker)

	require.NoError(t, b.StartTranscription())
	b.AddTranscript("never mind", true)
	b.CancelTranscription()
	require.False(t, b.Recording())
	require.Empty(t, asker.asked)

	// транскрипт вне записи игнорируется
	b.AddTranscript("late", true)
	_, accepted := b.StopTranscription()
	require.False(t, accepted)
}

func TestStartRefusedWhilePending(t *testing.T) {
	asker := &fakeAsker{pending: true}
	b := NewBridge(nil, nil, nil, nil, Options{}, nil)
	b.Bind(asker)

	require.ErrorIs(t, b.StartTranscription(), ErrBusy)
	recording, err := b.ToggleTranscription()
	require.ErrorIs(t, err, ErrBusy)
	require.False(t, recording)
	require.False(t, b.Recording())
}

func TestStartSilencesSpeech(t *testing.T) {
	sink := newBlockingSink()
	b := NewBridge(&fakeSynth{}, sink, nil, nil, Options{}, nil)

	b.Speak("a long answer")
	<-sink.started
	require.NoError(t, b.StartTranscription())
	b.Wait()
	require.Equal(t, 1, sink.stops)
}

func TestRecognizerFeedsSession(t *testing.T) {
	stream := &fakeStream{results: make(chan stt.Result, 4)}
	pub := &fakePublisher{}
	asker := &fakeAsker{}
	b := NewBridge(nil, nil, &fakeRecognizer{stream: stream}, pub, Options{}, nil)
	b.Bind(asker)

	require.ErrorIs(t, b.WriteAudio([]byte{0, 1}), ErrNotRecording)

	require.NoError(t, b.StartTranscription())
	require.NoError(t, b.WriteAudio([]byte{0, 1}))
	require.Equal(t, [][]byte{{0, 1}}, stream.audio)

	stream.results <- stt.Result{Text: "why is snow white", Final: true}
	close(stream.results)
	require.Eventually(t, func() bool {
		for _, typ := range pub.types() {
			if typ == EventTranscript {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	text, accepted := b.StopTranscription()
	require.True(t, accepted)
	require.Equal(t, "why is snow white", text)
	require.True(t, stream.closed)
}

type instantAnswerer struct{}

func (instantAnswerer) Answer(context.Context, string, []conversation.Message) (answer.Result, error) {
	return answer.Result{Answer: "Because it is."}, nil
}

func TestResetDiscardsRecording(t *testing.T) {
	b := NewBridge(nil, nil, nil, nil, Options{}, nil)
	o := orchestrator.New(conversation.New(), instantAnswerer{}, b, orchestrator.Options{}, nil)
	b.Bind(o)

	require.NoError(t, b.StartTranscription())
	b.AddTranscript("why is grass green", true)

	o.Reset()
	require.False(t, b.Recording())

	text, accepted := b.StopTranscription()
	require.Empty(t, text)
	require.False(t, accepted)
	o.Wait()
	require.Empty(t, o.Status().Turns)
}

type recordingPlayer struct {
	format string
	data   []byte
	stops  int
}

func (p *recordingPlayer) Play(_ context.Context, format string, r io.ReadCloser) error {
	defer r.Close()
	p.format = format
	b, err := io.ReadAll(r)
	p.data = b
	return err
}

func (p *recordingPlayer) Stop() { p.stops++ }

func TestSpeakerSink(t *testing.T) {
	p := &recordingPlayer{}
	s := NewSpeakerSink(p)
	require.NoError(t, s.Play(context.Background(), tts.Audio{Format: "mp3", Data: []byte("abc")}))
	require.Equal(t, "mp3", p.format)
	require.Equal(t, []byte("abc"), p.data)
	s.Stop()
	require.Equal(t, 1, p.stops)
}
