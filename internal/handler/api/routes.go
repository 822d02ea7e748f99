package api

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/trimline/trimline/internal/ws"
	authpkg "github.com/trimline/trimline/pkg/auth"
	"github.com/trimline/trimline/pkg/logger"
	"github.com/trimline/trimline/pkg/xresponse"
)

// SetupRoutes configures all API routes
func SetupRoutes(
	router *gin.Engine,
	queueHandler *QueueHandler,
	authService authpkg.AuthService,
	hub *ws.Hub,
) {
	roleGuard := NewRoleGuard()

	v1 := router.Group("/api/v1")
	{
		shops := v1.Group("/shops/:shopId")
		{
			// Public queue summary, no auth required.
			shops.GET("/queue/status", queueHandler.QueueStatus)

			shops.POST("/queue", authMiddleware(authService), queueHandler.JoinQueue)
			shops.POST("/queue/next", authMiddleware(authService), roleGuard.RequireQueueOperator(), queueHandler.CallNext)
			shops.GET("/queue", authMiddleware(authService), roleGuard.RequireQueueOperator(), queueHandler.ShopQueue)
		}

		queue := v1.Group("/queue")
		queue.Use(authMiddleware(authService))
		{
			queue.GET("/me", queueHandler.MyQueues)
			queue.DELETE("/:entryId", queueHandler.LeaveQueue)
			queue.PATCH("/:entryId/notes", queueHandler.UpdateNotes)
			queue.POST("/:entryId/complete", roleGuard.RequireQueueOperator(), queueHandler.Complete)
			queue.POST("/:entryId/no-show", roleGuard.RequireQueueOperator(), queueHandler.MarkNoShow)
		}
	}

	if hub != nil {
		router.GET("/ws/shops/:shopId/queue", hub.Handler())
	}

	logger.Info("API routes configured successfully")
}

// authMiddleware validates JWT token and sets user context
func authMiddleware(authService authpkg.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authService == nil {
			xresponse.InternalServerError(c, "Auth service not available")
			c.Abort()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			xresponse.Unauthorized(c, "Authorization header with Bearer token required")
			c.Abort()
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			xresponse.Unauthorized(c, "Token is empty")
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			switch {
			case errors.Is(err, authpkg.ErrExpiredToken):
				xresponse.Unauthorized(c, "Token expired")
			case errors.Is(err, authpkg.ErrInvalidToken):
				xresponse.Unauthorized(c, "Invalid token")
			default:
				xresponse.InternalServerError(c, "Failed to validate token")
			}
			c.Abort()
			return
		}

		userID := strings.TrimSpace(claims.UserID)
		if userID == "" {
			xresponse.Unauthorized(c, "Invalid token payload")
			c.Abort()
			return
		}

		role := strings.ToUpper(strings.TrimSpace(claims.Role))

		c.Set("user_id", userID)
		c.Set("user_role", role)
		c.Set("token_issued_at", claims.IssuedAt)
		c.Set("token_expires_at", claims.ExpiresAt)

		c.Next()
	}
}

// corsMiddleware handles CORS
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
