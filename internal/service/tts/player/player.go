package player

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

// Player воспроизводит аудио потоком в зависимости от формата.
type Player interface {
	Play(ctx context.Context, format string, r io.ReadCloser) error
	Stop()
}

// Default реализует Player и поддерживает mp3 и wav.
type Default struct {
	volumeDB float64

	mu   sync.Mutex
	rate beep.SampleRate // частота, с которой инициализирован speaker; 0: не инициализирован
}

// New создаёт плеер без изменения громкости (0 dB).
func New() *Default { return &Default{volumeDB: 0} }

// Play блокируется до конца воспроизведения или отмены ctx; при отмене звук обрывается.
func (d *Default) Play(ctx context.Context, format string, r io.ReadCloser) error {
	var (
		streamer beep.StreamSeekCloser
		f        beep.Format
		err      error
	)
	switch format {
	case "wav", "WAV":
		streamer, f, err = wav.Decode(r)
	case "mp3", "MP3":
		streamer, f, err = mp3.Decode(r)
	default:
		return errors.New("unsupported format for direct playback; use mp3 or wav")
	}
	if err != nil {
		return err
	}
	defer streamer.Close()

	if err := d.init(f.SampleRate); err != nil {
		return err
	}
	vol := &effects.Volume{
		Streamer: streamer,
		Base:     2,
		Volume:   d.volumeDB,
		Silent:   false,
	}
	done := make(chan struct{})
	speaker.Play(beep.Seq(vol, beep.Callback(func() { close(done) })))
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return context.Cause(ctx)
	}
}

// Stop обрывает всё, что сейчас играет.
func (d *Default) Stop() {
	d.mu.Lock()
	inited := d.rate != 0
	d.mu.Unlock()
	if inited {
		speaker.Clear()
	}
}

// init инициализирует speaker заново только при смене частоты.
func (d *Default) init(rate beep.SampleRate) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rate == rate {
		return nil
	}
	if err := speaker.Init(rate, rate.N(time.Second/10)); err != nil {
		return err
	}
	d.rate = rate
	return nil
}
