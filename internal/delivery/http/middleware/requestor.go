package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Harsh-BH/execrelay/internal/domain"
)

const (
	requestorHeader = "X-Requestor-ID"

	// RequestorKey is the gin context key holding the authenticated requestor.
	RequestorKey = "requestor_id"
)

// Requestor reads the requestor identity set by the upstream auth gateway.
// Requests without one are rejected as malformed.
func Requestor() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestorHeader))
		if id == "" || len(id) > 256 {
			c.AbortWithStatusJSON(http.StatusBadRequest, domain.ErrorResponse{
				Code:    domain.KindMalformedRequest,
				Message: "missing or invalid " + requestorHeader + " header",
			})
			return
		}
		c.Set(RequestorKey, id)
		c.Next()
	}
}
