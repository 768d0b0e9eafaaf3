package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"tradie-marketplace/internal/core/domain"
	"tradie-marketplace/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuditLog records write attempts rejected for identity or permission
// reasons. Successful mutations are audited by the services themselves.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status != http.StatusUnauthorized && status != http.StatusForbidden {
			return
		}
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead || c.Request.Method == http.MethodOptions {
			return
		}

		resourceType := resourceFromRoute(c.FullPath())
		if resourceType == "" {
			return
		}

		entry := &domain.AuditLog{
			ID:           uuid.New(),
			Action:       domain.AuditActionAccessDenied,
			ResourceType: resourceType,
			ResourceID:   c.Param("id"),
			IPAddress:    c.ClientIP(),
			CreatedAt:    time.Now().UTC(),
		}
		if caller, ok := CallerFrom(c); ok {
			id := caller.UserID
			entry.ActorID = &id
			entry.ActorRole = caller.Role
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method": c.Request.Method,
			"route":  c.FullPath(),
			"status": status,
		})
		entry.Details = string(details)

		auditSvc.Log(c.Request.Context(), entry)
	}
}

// resourceFromRoute maps a route template to the audited resource type.
func resourceFromRoute(route string) string {
	switch {
	case strings.HasPrefix(route, "/api/v1/requests/:id/quotes"), strings.HasPrefix(route, "/api/v1/quotes/"):
		return "quote"
	case strings.HasPrefix(route, "/api/v1/requests/:id/unlock"):
		return "unlock"
	case strings.HasPrefix(route, "/api/v1/requests"):
		return "service_request"
	case strings.HasPrefix(route, "/api/v1/wallet"):
		return "wallet"
	}
	return ""
}
