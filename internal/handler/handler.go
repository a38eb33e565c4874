// Package handler HTTP и WebSocket API для веб-клиента.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"whybot/internal/app/orchestrator"
	"whybot/internal/service/voice"
)

// Conversation операции оркестратора, доступные клиенту.
type Conversation interface {
	Ask(question string) bool
	RepeatLast() bool
	Reset()
	Status() orchestrator.Status
}

// Voice голосовой ввод и повтор озвучки.
type Voice interface {
	ToggleTranscription() (bool, error)
	AddTranscript(text string, final bool)
	WriteAudio(pcm []byte) error
	Replay(text string)
	Recording() bool
}

// Handler обработчики API.
type Handler struct {
	conv     Conversation
	voice    Voice
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *zap.SugaredLogger
}

func New(conv Conversation, v Voice, hub *Hub, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{
		conv:  conv,
		voice: v,
		hub:   hub,
		upgrader: websocket.Upgrader{
			// Клиент раздаётся с того же локального адреса
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Register навешивает маршруты на роутер.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", h.Health)
	r.GET("/ws", h.WebSocket)

	api := r.Group("/api")
	{
		api.GET("/conversation", h.GetConversation)
		api.POST("/ask", h.Ask)
		api.POST("/why", h.Why)
		api.POST("/reset", h.Reset)

		v := api.Group("/voice")
		v.POST("/toggle", h.ToggleVoice)
		v.POST("/transcript", h.Transcript)
		v.POST("/replay", h.Replay)
	}
}

type askRequest struct {
	Question string `json:"question"`
}

type transcriptRequest struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

type replayRequest struct {
	Text string `json:"text"`
}

// acceptedResponse вопрос мог быть молча проигнорирован: пустой или бот ещё думает.
type acceptedResponse struct {
	Accepted bool                `json:"accepted"`
	Status   orchestrator.Status `json:"status"`
}

func respond(c *gin.Context, code int, message string, data any) {
	c.JSON(code, gin.H{"code": code, "message": message, "data": data})
}

func (h *Handler) Health(c *gin.Context) {
	respond(c, http.StatusOK, "success", gin.H{"clients": h.hub.Len()})
}

func (h *Handler) GetConversation(c *gin.Context) {
	respond(c, http.StatusOK, "success", h.conv.Status())
}

func (h *Handler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	h.accepted(c, h.conv.Ask(req.Question))
}

func (h *Handler) Why(c *gin.Context) {
	h.accepted(c, h.conv.RepeatLast())
}

func (h *Handler) accepted(c *gin.Context, ok bool) {
	code := http.StatusOK
	if !ok {
		code = http.StatusAccepted
	}
	respond(c, code, "success", acceptedResponse{Accepted: ok, Status: h.conv.Status()})
}

func (h *Handler) Reset(c *gin.Context) {
	h.conv.Reset()
	respond(c, http.StatusOK, "success", h.conv.Status())
}

func (h *Handler) ToggleVoice(c *gin.Context) {
	recording, err := h.voice.ToggleTranscription()
	if errors.Is(err, voice.ErrBusy) {
		respond(c, http.StatusConflict, err.Error(), gin.H{"recording": false})
		return
	}
	if err != nil {
		respond(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	respond(c, http.StatusOK, "success", gin.H{"recording": recording})
}

func (h *Handler) Transcript(c *gin.Context) {
	var req transcriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if !h.voice.Recording() {
		respond(c, http.StatusConflict, voice.ErrNotRecording.Error(), nil)
		return
	}
	h.voice.AddTranscript(req.Text, req.Final)
	respond(c, http.StatusOK, "success", nil)
}

func (h *Handler) Replay(c *gin.Context) {
	var req replayRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		respond(c, http.StatusBadRequest, "text is required", nil)
		return
	}
	h.voice.Replay(req.Text)
	respond(c, http.StatusOK, "success", nil)
}

// command сообщение клиента по WebSocket.
type command struct {
	Type     string `json:"type"`
	Question string `json:"question,omitempty"`
	Text     string `json:"text,omitempty"`
	Final    bool   `json:"final,omitempty"`
}

// WebSocket поднимает соединение: текстовые фреймы: команды, бинарные: PCM16 с микрофона.
func (h *Handler) WebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnw("WebSocket upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(maxFrameSize)

	cl := h.hub.add(conn)
	go cl.writeLoop()
	defer h.hub.remove(cl)

	// Новый клиент сразу получает текущее состояние
	if b, err := json.Marshal(Event{Type: EventState, Data: h.conv.Status()}); err == nil {
		cl.send <- b
	}

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		switch msgType {
		case websocket.BinaryMessage:
			if err := h.voice.WriteAudio(data); err != nil && !errors.Is(err, voice.ErrNotRecording) {
				h.logger.Warnw("Audio forward failed", "client", cl.id, "error", err)
			}
		case websocket.TextMessage:
			var cmd command
			if err := json.Unmarshal(data, &cmd); err != nil {
				h.logger.Warnw("Malformed client command", "client", cl.id, "error", err)
				continue
			}
			h.dispatch(cl, cmd)
		}
	}
}

func (h *Handler) dispatch(cl *client, cmd command) {
	switch cmd.Type {
	case "ask":
		h.conv.Ask(cmd.Question)
	case "why":
		h.conv.RepeatLast()
	case "reset":
		h.conv.Reset()
	case "voice_toggle":
		if _, err := h.voice.ToggleTranscription(); err != nil {
			h.logger.Infow("Voice toggle refused", "client", cl.id, "error", err)
		}
	case "transcript":
		h.voice.AddTranscript(cmd.Text, cmd.Final)
	case "replay":
		h.voice.Replay(cmd.Text)
	default:
		h.logger.Warnw("Unknown client command", "client", cl.id, "type", cmd.Type)
	}
}
