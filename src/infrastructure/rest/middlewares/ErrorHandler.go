package middlewares

import (
	"errors"
	"net/http"

	domainErrors "go-wa-campaign-api/src/domain/errors"

	"github.com/gin-gonic/gin"
)

// ErrorHandler renders the first error a handler attached with ctx.Error
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors[0].Err
		var appErr *domainErrors.AppError
		if errors.As(err, &appErr) {
			status, message := domainErrors.AppErrorToHTTP(appErr)
			c.JSON(status, gin.H{"error": message})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
	}
}
