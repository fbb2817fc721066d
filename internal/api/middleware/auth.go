package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// AdminAuth returns a Gin middleware that requires a bearer token
// matching the configured admin token. Comparison is constant-time over
// digests so token length is not observable.
func AdminAuth(token string, logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "admin_auth").Logger()

	if token == "" {
		// No token configured: admin surface is disabled rather than open.
		return func(c *gin.Context) {
			log.Warn().Str("path", c.Request.URL.Path).Msg("admin request rejected, no admin token configured")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin API is disabled"})
		}
	}

	want := sha256.Sum256([]byte(token))

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		supplied, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || supplied == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		got := sha256.Sum256([]byte(supplied))
		if subtle.ConstantTimeCompare(want[:], got[:]) != 1 {
			log.Debug().Str("path", c.Request.URL.Path).Msg("admin token mismatch")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Next()
	}
}
