package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Harsh-BH/execrelay/internal/domain"
)

// BodySizeLimit returns a middleware that limits the maximum request body size.
// Bodies that declare a larger Content-Length are rejected with 413 up front;
// others are cut off by http.MaxBytesReader while the handler decodes them.
func BodySizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, domain.ErrorResponse{
				Code:    domain.KindCodeTooLarge,
				Message: "request body too large",
			})
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
