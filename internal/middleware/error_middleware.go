package middleware

import (
	"github.com/gin-gonic/gin"

	"courier-relay/internal/services"
	"courier-relay/internal/transport/httpdto"
	"courier-relay/pkg/logger"
)

// ErrorHandler turns errors handlers attach via c.Error into a JSON
// response with the sentinel-mapped status.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		if l != nil {
			l.Errorf("request error: %s", err.Error())
		}
		if c.Writer.Written() {
			return
		}
		c.JSON(services.HTTPStatus(err), httpdto.NewErrorResponse(err.Error(), "REQUEST_FAILED"))
	}
}
