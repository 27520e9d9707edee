package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/openscholar/veritas/core"
	"github.com/openscholar/veritas/service"
)

const sessionContextKey = "veritas_session"

// AuthMiddleware validates the bearer session token and records the use.
func AuthMiddleware(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header is required"})
			return
		}

		token := strings.TrimPrefix(header, "Bearer ")
		session, err := auth.ValidateSession(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set(sessionContextKey, session)
		c.Next()
	}
}

// sessionFromContext returns the session placed by AuthMiddleware, or nil.
func sessionFromContext(c *gin.Context) *core.Session {
	value, ok := c.Get(sessionContextKey)
	if !ok {
		return nil
	}
	session, ok := value.(*core.Session)
	if !ok {
		return nil
	}
	return session
}
