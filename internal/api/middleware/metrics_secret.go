package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// MetricsSecretMiddleware guards the scrape endpoint. The secret travels in
// X-Metrics-Secret or as a bearer token; an empty secret leaves the endpoint open.
func MetricsSecretMiddleware(secret string) gin.HandlerFunc {
	secret = strings.TrimSpace(secret)
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		token := strings.TrimSpace(c.GetHeader("X-Metrics-Secret"))
		if token == "" {
			token, _ = BearerToken(c.GetHeader("Authorization"))
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
