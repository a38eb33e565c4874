package yandex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"whybot/internal/service/stt"
)

const defaultEndpoint = "wss://stt.api.cloud.yandex.net/speech/v1/stt:streaming"

// ErrClosed запись в завершённую сессию.
var ErrClosed = errors.New("yandex stt: session closed")

// Config настройки SpeechKit Streaming (WebSocket).
type Config struct {
	Endpoint   string // пусто: публичный endpoint SpeechKit v1
	APIKey     string // YC_STT_API_KEY
	Language   string // en-US по умолчанию
	SampleRate int    // частота PCM от клиента, 16000 по умолчанию
	// Partials включает промежуточные гипотезы; без них приходят только финальные фразы.
	Partials bool
}

// Recognizer открывает по одной WebSocket-сессии на каждую запись.
type Recognizer struct {
	cfg    Config
	dialer websocket.Dialer
}

// NewRecognizer проверяет конфигурацию заранее, чтобы ошибка была видна при старте.
func NewRecognizer(cfg Config) (*Recognizer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("yandex stt: пустой API key (ожидается YC_STT_API_KEY)")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	return &Recognizer{
		cfg: cfg,
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 15 * time.Second,
		},
	}, nil
}

// sessionParams параметры распознавания: SpeechKit принимает их и в URL, и первым текстовым фреймом.
type sessionParams struct {
	Lang           string `json:"lang"`
	Format         string `json:"format"`
	SampleRate     int    `json:"sampleRateHertz"`
	Topic          string `json:"topic"`
	PartialResults bool   `json:"partialResults"`
}

func (r *Recognizer) params() sessionParams {
	return sessionParams{
		Lang:           r.cfg.Language,
		Format:         "lpcm",
		SampleRate:     r.cfg.SampleRate,
		Topic:          "general",
		PartialResults: r.cfg.Partials,
	}
}

func (r *Recognizer) url() (string, error) {
	u, err := url.Parse(r.cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("yandex stt: неверный endpoint: %w", err)
	}
	p := r.params()
	q := u.Query()
	q.Set("lang", p.Lang)
	q.Set("format", p.Format)
	q.Set("sampleRateHertz", strconv.Itoa(p.SampleRate))
	q.Set("topic", p.Topic)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Open подключается к SpeechKit и возвращает сессию. ctx ограничивает только рукопожатие.
func (r *Recognizer) Open(ctx context.Context) (stt.Stream, error) {
	target, err := r.url()
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("Authorization", "Api-Key "+r.cfg.APIKey)

	conn, resp, err := r.dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("yandex stt: подключение к %s: HTTP %d: %w", target, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("yandex stt: подключение к %s: %w", target, err)
	}
	if err := conn.WriteJSON(r.params()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("yandex stt: отправка параметров: %w", err)
	}

	s := &session{conn: conn, partials: r.cfg.Partials, results: make(chan stt.Result, 32), done: make(chan struct{})}
	go s.readLoop()
	return s, nil
}

// session одна запись: PCM уходит бинарными фреймами, гипотезы приходят JSON.
type session struct {
	conn     *websocket.Conn
	partials bool
	results  chan stt.Result

	mu     sync.Mutex // единственный писатель в conn
	closed bool
	done   chan struct{}
}

func (s *session) WriteAudio(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.conn.WriteMessage(websocket.BinaryMessage, pcm)
}

func (s *session) Results() <-chan stt.Result { return s.results }

// Close просит сервер закрыть поток и рвёт соединение. Повторный вызов безопасен.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "eof"), time.Now().Add(time.Second))
	return s.conn.Close()
}

func (s *session) readLoop() {
	defer close(s.results)
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		res, ok := parseServerMessage(data)
		if !ok || (!res.Final && !s.partials) {
			continue
		}
		select {
		case s.results <- res:
		case <-s.done:
			return
		}
	}
}

// serverMessage объединяет варианты ответа, которые встречаются у SpeechKit v1.
type serverMessage struct {
	Result       string `json:"result"`
	Text         string `json:"text"`
	Partial      string `json:"partial"`
	Alternatives []struct {
		Text string `json:"text"`
	} `json:"alternatives"`
	Final   bool `json:"final"`
	IsFinal bool `json:"is_final"`
}

// parseServerMessage вытаскивает текст и признак финальности. Служебные сообщения отбрасываются.
func parseServerMessage(data []byte) (stt.Result, bool) {
	var m serverMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return stt.Result{}, false
	}
	final := m.Final || m.IsFinal
	var text string
	switch {
	case m.Result != "":
		text = m.Result
	case len(m.Alternatives) > 0:
		text = m.Alternatives[0].Text
	case m.Text != "":
		text = m.Text
	case m.Partial != "":
		text, final = m.Partial, false
	}
	if text == "" && !final {
		return stt.Result{}, false
	}
	return stt.Result{Text: text, Final: final, Timestamp: time.Now()}, true
}
