package api

import (
	"net/http"
	"strings"

	"artwork-orders/internal/models"

	"github.com/gin-gonic/gin"
)

// Identity headers set by the authenticating edge
const (
	headerProfileID = "X-Profile-ID"
	headerUserID    = "X-User-ID"
	headerRole      = "X-User-Role"
	headerEmail     = "X-User-Email"

	actorKey = "actor"
)

// actorMiddleware reads the caller identity forwarded by the edge
func actorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := models.Actor{
			ProfileID: strings.TrimSpace(c.GetHeader(headerProfileID)),
			UserID:    strings.TrimSpace(c.GetHeader(headerUserID)),
			Role:      strings.ToUpper(strings.TrimSpace(c.GetHeader(headerRole))),
			Email:     strings.TrimSpace(c.GetHeader(headerEmail)),
		}
		if actor.ProfileID == "" && actor.UserID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing caller identity"})
			return
		}
		if actor.Role == "" {
			actor.Role = models.RoleCustomer
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

func actorFrom(c *gin.Context) models.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(models.Actor); ok {
			return actor
		}
	}
	return models.Actor{}
}
