package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/erp/refundtracker/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
)

// corsAllowHeaders lists the request headers the refund API reads
var corsAllowHeaders = []string{
	"Content-Type", "Authorization", "Accept", "Origin",
	logger.RequestIDHeader, UserIDHeader,
}

const corsMaxAge = 12 * time.Hour

// CORS allows browser clients from the given origins. "*" allows any origin without credentials.
// With no origins configured no CORS headers are written, so browsers refuse cross-origin calls.
// Preflight requests are answered with 204 either way.
func CORS(origins []string) gin.HandlerFunc {
	wildcard := slices.Contains(origins, "*")
	allowHeaders := strings.Join(corsAllowHeaders, ", ")
	allowMethods := strings.Join([]string{
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
	}, ", ")
	maxAge := strconv.Itoa(int(corsMaxAge.Seconds()))

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowed := ""
		switch {
		case wildcard:
			allowed = "*"
		case origin != "" && slices.Contains(origins, origin):
			allowed = origin
		}

		if allowed != "" {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", allowed)
			h.Set("Access-Control-Allow-Headers", allowHeaders)
			h.Set("Access-Control-Allow-Methods", allowMethods)
			h.Set("Access-Control-Expose-Headers", logger.RequestIDHeader)
			h.Set("Access-Control-Max-Age", maxAge)
			if allowed != "*" {
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Add("Vary", "Origin")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Secure writes the security headers of a JSON API. Responses are never framed,
// sniffed or allowed to load content. hstsMaxAge > 0 also sends Strict-Transport-Security.
func Secure(hstsMaxAge time.Duration) gin.HandlerFunc {
	hsts := ""
	if hstsMaxAge > 0 {
		hsts = "max-age=" + strconv.Itoa(int(hstsMaxAge.Seconds())) + "; includeSubDomains"
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Cache-Control", "no-store")
		if hsts != "" {
			h.Set("Strict-Transport-Security", hsts)
		}
		c.Next()
	}
}
