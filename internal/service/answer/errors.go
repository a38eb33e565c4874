package answer

import (
	"errors"
	"fmt"
)

// ErrBlankQuestion пустой вопрос; вызывающая сторона должна отсекать его до сервиса.
var ErrBlankQuestion = errors.New("blank question")

// ServiceError ошибка сервиса ответов. Msg: человекочитаемый текст для пользователя,
// Err исходная причина (транспорт, разбор JSON и т.п.).
type ServiceError struct {
	Msg string
	Err error
}

func (e *ServiceError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

func newServiceError(msg string, err error) *ServiceError {
	return &ServiceError{Msg: msg, Err: err}
}

// Сообщения ServiceError.
const (
	MsgEmptyResponse    = "empty response"
	MsgInvalidStructure = "invalid structure"
	MsgImageFailed      = "image generation failed"
	MsgTimeout          = "timeout"
	MsgTextTransport    = "text generation request failed"
	MsgImageTransport   = "image generation request failed"
)
