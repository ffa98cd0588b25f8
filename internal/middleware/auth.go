package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/letterspace/core/internal/pkg/response"
)

// AdminKey returns a middleware that guards operator-only routes (issue
// publishing, subscriber listing) with a static bearer key from the config.
// An unset key disables the surface entirely rather than leaving it open.
func AdminKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			response.Forbidden(c, "admin surface is not configured")
			return
		}
		provided := NormalizeToken(c.GetHeader("Authorization"))
		if provided == "" {
			provided = NormalizeToken(c.Query("key"))
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
			response.Unauthorized(c, "invalid admin key")
			return
		}
		c.Next()
	}
}

// NormalizeToken trims spaces and strips an optional Bearer prefix.
func NormalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}
