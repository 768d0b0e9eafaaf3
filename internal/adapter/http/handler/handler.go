package handler

import (
	"context"

	"tradie-marketplace/internal/adapter/http/dto"
	"tradie-marketplace/internal/adapter/http/middleware"
	"tradie-marketplace/internal/core/ports"
	"tradie-marketplace/internal/service"
	"tradie-marketplace/pkg/apperror"
	"tradie-marketplace/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// callerScope resolves the authenticated caller and a context carrying the
// client IP for audit records. It writes the error response itself.
func callerScope(c *gin.Context) (ports.Caller, context.Context, bool) {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		response.Error(c, apperror.ErrUnauthenticated())
		return ports.Caller{}, nil, false
	}
	return caller, service.WithClientIP(c.Request.Context(), c.ClientIP()), true
}

// pathID parses the :id route parameter.
func pathID(c *gin.Context, entity string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.ErrInvalidArgument("Invalid "+entity+" id"))
		return uuid.Nil, false
	}
	return id, true
}

// bindJSON binds and sanitizes a request body.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return false
	}
	dto.SanitizeStruct(req)
	return true
}
