// Package auth guards the staff-facing API surface with a single
// deployment-wide key. Health, readiness and metrics stay open.
package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// apiKeyHeader carries the deployment key on every authenticated request.
const apiKeyHeader = "X-API-Key"

// APIKeyMiddleware rejects requests whose key header does not match key.
// An empty key disables the check, for local development.
func APIKeyMiddleware(key string) gin.HandlerFunc {
	want := []byte(key)
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}

		got := []byte(c.GetHeader(apiKeyHeader))
		if len(got) == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing API key",
			})
			return
		}
		if subtle.ConstantTimeCompare(got, want) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "invalid API key",
			})
			return
		}

		c.Next()
	}
}
