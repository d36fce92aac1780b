package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	oderrors "github.com/Aman-CERP/onedesk/internal/errors"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

// requestID reuses a caller-supplied ID or assigns a new UUID.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func requestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// accessLog writes one slog record per request.
func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.Int64("latency_ms", time.Since(start).Milliseconds()),
			slog.String("client_ip", c.ClientIP()),
			slog.String("request_id", requestIDFrom(c)),
		}
		switch {
		case status >= http.StatusInternalServerError:
			slog.Error("http_request", attrs...)
		case status >= http.StatusBadRequest:
			slog.Warn("http_request", attrs...)
		default:
			slog.Info("http_request", attrs...)
		}
	}
}

// recovery turns a handler panic into an internal error response.
func recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		slog.Error("http_panic_recovered",
			slog.String("path", c.Request.URL.Path),
			slog.String("panic", fmt.Sprint(recovered)),
			slog.String("request_id", requestIDFrom(c)))
		writeError(c, oderrors.InternalError("internal server error", nil))
	})
}

// writeError aborts the request with the error envelope and its mapped status.
func writeError(c *gin.Context, err error) {
	status := oderrors.HTTPStatus(err)
	body := oderrors.ToBody(err)
	body.RequestID = requestIDFrom(c)

	if status >= http.StatusInternalServerError {
		slog.Error("request_failed", append(oderrors.FormatForLog(err), "request_id", body.RequestID)...)
	}
	c.AbortWithStatusJSON(status, body)
}
