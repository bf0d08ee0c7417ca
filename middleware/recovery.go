package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Recovery converts handler panics into a 500 response instead of
// tearing down the connection.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			log.Error("handler panicked",
				zap.Any("panic", r),
				zap.String("path", c.Request.URL.Path),
				zap.String("trace_id", GetTraceID(c)),
				zap.Stack("stack"),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				gin.H{"error": "internal server error"})
		}()
		c.Next()
	}
}
