package stt

import (
	"context"
	"time"
)

// Result единица результата распознавания.
type Result struct {
	Text      string
	Final     bool
	Timestamp time.Time
}

// Stream открытая сессия распознавания: принимает PCM16 LE mono и отдаёт гипотезы.
type Stream interface {
	WriteAudio(pcm []byte) error
	// Results закрывается, когда сессия завершена.
	Results() <-chan Result
	Close() error
}

// Recognizer открывает сессии распознавания речи.
type Recognizer interface {
	Open(ctx context.Context) (Stream, error)
}
