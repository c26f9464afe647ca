// Package middleware holds the Gin middleware shared by the public, webhook
// and operator routes.
//
// Recommended order: RequestID, then Logger or RedactingLogger, then
// Recovery, so panics are logged with the correlation id. Handlers reach the
// request-scoped logger through LoggerFrom.
package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	loggerKey       = "logger"

	// maxQueryLogLength caps the raw query bytes written to a log line.
	maxQueryLogLength = 2048
)

// RequestID reuses the caller's X-Request-ID or mints a UUID, stores it on
// the context and echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// Logger writes one access line per request and attaches a request-scoped
// logger for LoggerFrom. Values are logged verbatim; see RedactingLogger.
func Logger() gin.HandlerFunc {
	return accessLog(nil)
}

// accessLog backs Logger and RedactingLogger. A nil scrubber leaves values
// untouched and omits request headers.
//
// The completion line carries status, latency and sizes, plus the customer
// and channel once a handler resolved them and the agent on operator routes.
// Level is error for 5xx or recorded gin errors, warn for 4xx, info otherwise.
func accessLog(s *scrubber) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		fields := log.With().
			Str("request_id", requestID(c)).
			Str("method", c.Request.Method).
			Str("path", routePath(c)).
			Str("remote_ip", c.ClientIP()).
			Str("user_agent", s.clean(c.Request.UserAgent())).
			Str("query", s.clean(truncate(c.Request.URL.RawQuery, maxQueryLogLength))).
			Int64("bytes_in", c.Request.ContentLength)
		l := fields.Logger()
		c.Set(loggerKey, &l)

		c.Next()

		status := c.Writer.Status()
		done := l.With().
			Int("status", status).
			Dur("latency", time.Since(start)).
			Int("bytes_out", c.Writer.Size())
		if id := c.GetString(ctxKeyCustomer); id != "" {
			done = done.Str("customer_id", s.clean(id)).Str("channel", c.GetString(ctxKeyChannel))
		}
		if agent := AgentName(c); agent != "" {
			done = done.Str("agent", agent)
		}
		if s != nil {
			done = done.Interface("headers", s.headers(c.Request.Header))
		}
		out := done.Logger()

		var ev *zerolog.Event
		switch {
		case len(c.Errors) > 0:
			ev = out.Error().Str("errors", s.clean(c.Errors.String()))
		case status >= http.StatusInternalServerError:
			ev = out.Error()
		case status >= http.StatusBadRequest:
			ev = out.Warn()
		default:
			ev = out.Info()
		}
		ev.Msg("request")
	}
}

// Recovery turns a panic into a JSON 500 when nothing has been written yet,
// and logs the panic with its stack on the request logger.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			lg := LoggerFrom(c)
			lg.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("request_id", requestID(c)).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			abortError(c, http.StatusInternalServerError, "internal_error", "internal server error")
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger, or a copy of the global
// logger when no access logger ran.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

// abortError writes the API error envelope ({request_id, code, message}) and
// stops the chain.
func abortError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": requestID(c),
		"code":       code,
		"message":    msg,
	})
}

// requestID prefers the id RequestID stored, then the response and request
// headers.
func requestID(c *gin.Context) string {
	if rid := c.GetString(requestIDKey); rid != "" {
		return rid
	}
	if rid := c.Writer.Header().Get(requestIDHeader); rid != "" {
		return rid
	}
	return c.GetHeader(requestIDHeader)
}

// routePath is the matched route pattern, or the raw path for unmatched
// requests.
func routePath(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}

// truncate cuts s to max bytes plus an ellipsis; max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
