// Package middleware middleware для gin.
package middleware

import (
	"bytes"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxLoggedBody ответы с картинками огромные, в лог пишем только начало тела.
const maxLoggedBody = 512

// RequestIDHeader заголовок с идентификатором запроса.
const RequestIDHeader = "X-Request-ID"

// RequestLogger пишет в лог каждый HTTP-запрос: статус, время, тело запроса и начало ответа.
func RequestLogger(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)

		var requestBody []byte
		if c.Request.Body != nil {
			requestBody, _ = io.ReadAll(c.Request.Body)
		}
		// Возвращаем тело обратно, чтобы обработчик смог его прочитать
		c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))

		c.Next()

		// Соединение ушло в WebSocket, статус и размер ответа не имеют смысла
		if c.IsWebsocket() {
			logger.Infow("WebSocket session closed", "requestId", requestID, "took", time.Since(startTime).String())
			return
		}

		logger.Infow("HTTP request",
			"requestId", requestID,
			"status", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"requestBody", truncate(requestBody),
			"responseSize", c.Writer.Size(),
		)
	}
}

func truncate(b []byte) string {
	if len(b) > maxLoggedBody {
		return string(b[:maxLoggedBody]) + "..."
	}
	return string(b)
}
