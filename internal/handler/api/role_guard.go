package api

import (
	"github.com/gin-gonic/gin"

	"github.com/trimline/trimline/internal/domain"
	"github.com/trimline/trimline/pkg/logger"
	"github.com/trimline/trimline/pkg/xresponse"
)

// RoleGuard provides helper functions for role-based access control in handlers
type RoleGuard struct{}

// NewRoleGuard creates a new role guard instance
func NewRoleGuard() *RoleGuard {
	return &RoleGuard{}
}

// GetCurrentUser extracts user information from context
func (rg *RoleGuard) GetCurrentUser(c *gin.Context) (userID, role string, exists bool) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		return "", "", false
	}

	roleVal, exists := c.Get("user_role")
	if !exists {
		return "", "", false
	}

	userIDStr, ok := userIDVal.(string)
	if !ok {
		return "", "", false
	}

	roleStr, ok := roleVal.(string)
	if !ok {
		return "", "", false
	}

	return userIDStr, roleStr, true
}

// RequireQueueOperator restricts a route to provider, owner and admin
// roles.
func (rg *RoleGuard) RequireQueueOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		_, role, exists := rg.GetCurrentUser(c)
		if !exists {
			logger.Warn("Access denied - user not authenticated",
				logger.String("ip", c.ClientIP()),
			)
			xresponse.Unauthorized(c, "Authentication required")
			c.Abort()
			return
		}

		if !domain.CanOperateQueue(role) {
			logger.Warn("Access denied - insufficient role",
				logger.String("user_role", role),
				logger.String("ip", c.ClientIP()),
			)
			xresponse.Forbidden(c, "Provider access required")
			c.Abort()
			return
		}

		c.Next()
	}
}

// LogAccess logs access with user information
func (rg *RoleGuard) LogAccess(c *gin.Context, action string, resource string) {
	userID, role, exists := rg.GetCurrentUser(c)
	if exists {
		logger.Info("User action",
			logger.String("user_id", userID),
			logger.String("role", role),
			logger.String("action", action),
			logger.String("resource", resource),
			logger.String("ip", c.ClientIP()),
		)
	}
}
