package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/comanda/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const headerRequestID = "X-Request-Id"

// MiddlewareConfig controls request logging behavior.
type MiddlewareConfig struct {
	Debug           bool
	ErrorClassifier func(err error) (string, string)
}

// Table pages and staff dashboards poll these every few seconds, so a
// successful hit is only worth a debug line.
var quietRoutes = map[string]struct{}{
	"/health":                   {},
	"/metrics":                  {},
	"/api/menu":                 {},
	"/api/tables/:table/tab":    {},
	"/admin/dashboard":          {},
	"/admin/tabs":               {},
	"/admin/tabs/bill-requests": {},
	"/admin/orders":             {},
	"/admin/notifications/next": {},
}

// GinMiddleware tags the request context with its request id and table
// number, then writes one http_request line once the handler returns.
// Event streams log http_stream instead, with the time the client stayed
// connected.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		ctx := obscontext.WithRequestID(c.Request.Context(), requestIDFor(c))
		if table := strings.TrimSpace(c.Param("table")); table != "" {
			ctx = obscontext.WithTable(ctx, table)
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		fields := requestFields(c, route, status, time.Since(start))

		errorType := ""
		if last := c.Errors.Last(); last != nil {
			var errorCode string
			if cfg.ErrorClassifier != nil {
				errorType, errorCode = cfg.ErrorClassifier(last.Err)
			}
			fields = append(fields, zap.String("error_type", errorType), zap.String("error_code", errorCode))
			if cfg.Debug {
				fields = append(fields, zap.Stack("stack"))
			}
		}

		msg := "http_request"
		if strings.HasSuffix(route, "/events") {
			msg = "http_stream"
		}
		if ce := FromContext(c.Request.Context()).Check(requestLevel(route, status), msg); ce != nil {
			ce.Write(fields...)
		}
	}
}

func requestIDFor(c *gin.Context) string {
	requestID := strings.TrimSpace(c.GetHeader(headerRequestID))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set("request_id", requestID)
	c.Header(headerRequestID, requestID)
	return requestID
}

func requestFields(c *gin.Context, route string, status int, elapsed time.Duration) []zap.Field {
	fields := []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("route", route),
		zap.Int("status", status),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
		zap.String("client_ip", c.ClientIP()),
		zap.Int64("bytes_in", max(c.Request.ContentLength, 0)),
		zap.Int("bytes_out", max(c.Writer.Size(), 0)),
	}
	if orderNumber := strings.TrimSpace(c.GetString("order_number")); orderNumber != "" {
		fields = append(fields, zap.String("order_number", orderNumber))
	}
	return fields
}

func requestLevel(route string, status int) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case status < http.StatusBadRequest && isQuiet(route):
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

func isQuiet(route string) bool {
	_, ok := quietRoutes[route]
	return ok
}
