package handler

import (
	"tradie-marketplace/internal/core/ports"
	"tradie-marketplace/pkg/response"

	"github.com/gin-gonic/gin"
)

// ProfileHandler serves public tradie reputation.
type ProfileHandler struct {
	ratings ports.RatingService
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(ratings ports.RatingService) *ProfileHandler {
	return &ProfileHandler{ratings: ratings}
}

// Get handles GET /api/v1/tradies/:id/profile.
func (h *ProfileHandler) Get(c *gin.Context) {
	_, ctx, ok := callerScope(c)
	if !ok {
		return
	}
	tradieID, ok := pathID(c, "tradie")
	if !ok {
		return
	}

	profile, err := h.ratings.GetProfile(ctx, tradieID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, profile)
}
