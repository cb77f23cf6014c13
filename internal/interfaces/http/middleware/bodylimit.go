package middleware

import (
	"errors"
	"net/http"

	"github.com/erp/refundtracker/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// BodyLimit rejects requests whose declared Content-Length exceeds maxBytes with 413
// and caps chunked bodies, so a handler reading past the limit sees an error
// for which IsBodyTooLarge reports true. maxBytes <= 0 disables the limit.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes <= 0 {
			c.Next()
			return
		}
		if c.Request.ContentLength > maxBytes {
			resp := dto.NewErrorResponse(dto.ErrCodeRequestTooLarge,
				"Request body exceeds maximum allowed size", requestIDFromContext(c))
			resp.Error.Details = map[string]any{"limit_bytes": maxBytes}
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, resp)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// IsBodyTooLarge reports whether err came from reading past the BodyLimit cap
func IsBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
