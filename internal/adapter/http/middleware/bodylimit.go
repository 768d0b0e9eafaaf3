package middleware

import (
	"net/http"

	"tradie-marketplace/pkg/apperror"
	"tradie-marketplace/pkg/response"

	"github.com/gin-gonic/gin"
)

// MaxBodySize rejects declared oversize bodies up front and caps the rest,
// so binding fails once the limit is crossed.
func MaxBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			response.Error(c, apperror.ErrBodyTooLarge())
			c.Abort()
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
