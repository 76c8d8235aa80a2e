package middlewares

import (
	"bytes"

	logger "go-wa-campaign-api/src/infrastructure/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxLoggedBody = 2048

type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyLogWriter) Write(b []byte) (int, error) {
	if room := maxLoggedBody - w.body.Len(); room > 0 {
		if len(b) < room {
			room = len(b)
		}
		w.body.Write(b[:room])
	}
	return w.ResponseWriter.Write(b)
}

// GinBodyLogMiddleware logs the response body of failed requests at debug level
func GinBodyLogMiddleware(loggerInstance *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		writer := &bodyLogWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = writer
		c.Next()

		if c.Writer.Status() >= 400 {
			loggerInstance.Debug("Error response",
				zap.String("path", c.Request.URL.Path),
				zap.Int("status", c.Writer.Status()),
				zap.String("body", writer.body.String()))
		}
	}
}
