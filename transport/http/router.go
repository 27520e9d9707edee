package http

import (
	"github.com/gin-gonic/gin"

	"github.com/openscholar/veritas/service"
)

// SetupRouter sets up the Gin router.
func SetupRouter(auth *service.AuthService, credentials *service.CredentialService) *gin.Engine {
	router := gin.Default()

	handlers := NewHandlers(auth, credentials)

	router.GET("/healthz", handlers.Healthz)

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/challenge", handlers.Challenge)
		authGroup.POST("/verify", handlers.Verify)
		authGroup.POST("/logout", handlers.Logout)
	}

	// Credential submission carries its optional session token in the
	// body, so it sits outside the bearer middleware.
	router.POST("/credentials", handlers.SubmitCredential)

	api := router.Group("/api")
	api.Use(AuthMiddleware(auth))
	{
		api.GET("/session", handlers.Session)
		api.GET("/users/:id/credentials", handlers.ListCredentials)
	}

	return router
}
