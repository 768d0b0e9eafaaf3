package handler

import (
	"tradie-marketplace/internal/core/ports"
	"tradie-marketplace/pkg/response"

	"github.com/gin-gonic/gin"
)

// QuoteHandler handles quote endpoints addressed by quote id.
type QuoteHandler struct {
	lifecycle ports.LifecycleService
}

// NewQuoteHandler creates a new QuoteHandler.
func NewQuoteHandler(lifecycle ports.LifecycleService) *QuoteHandler {
	return &QuoteHandler{lifecycle: lifecycle}
}

// Accept handles POST /api/v1/quotes/:id/accept.
func (h *QuoteHandler) Accept(c *gin.Context) {
	caller, ctx, ok := callerScope(c)
	if !ok {
		return
	}
	quoteID, ok := pathID(c, "quote")
	if !ok {
		return
	}

	result, err := h.lifecycle.AcceptQuote(ctx, caller.UserID, quoteID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, result)
}
