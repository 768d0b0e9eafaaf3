package handler

import (
	"tradie-marketplace/internal/adapter/http/dto"
	"tradie-marketplace/internal/core/domain"
	"tradie-marketplace/internal/core/ports"
	"tradie-marketplace/pkg/response"

	"github.com/gin-gonic/gin"
)

// RequestHandler handles job request endpoints.
type RequestHandler struct {
	lifecycle ports.LifecycleService
}

// NewRequestHandler creates a new RequestHandler.
func NewRequestHandler(lifecycle ports.LifecycleService) *RequestHandler {
	return &RequestHandler{lifecycle: lifecycle}
}

// Create handles POST /api/v1/requests.
func (h *RequestHandler) Create(c *gin.Context) {
	caller, ctx, ok := callerScope(c)
	if !ok {
		return
	}

	var req dto.CreateRequestRequest
	if !bindJSON(c, &req) {
		return
	}

	created, err := h.lifecycle.CreateRequest(ctx, caller.UserID, ports.CreateRequestInput{
		TradeType:   req.TradeType,
		Description: req.Description,
		Postcode:    req.Postcode,
		Urgency:     domain.Urgency(req.Urgency),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, created)
}

// Get handles GET /api/v1/requests/:id.
func (h *RequestHandler) Get(c *gin.Context) {
	caller, ctx, ok := callerScope(c)
	if !ok {
		return
	}
	requestID, ok := pathID(c, "request")
	if !ok {
		return
	}

	req, err := h.lifecycle.GetRequest(ctx, caller, requestID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, req)
}

// Unlock handles POST /api/v1/requests/:id/unlock.
func (h *RequestHandler) Unlock(c *gin.Context) {
	caller, ctx, ok := callerScope(c)
	if !ok {
		return
	}
	requestID, ok := pathID(c, "request")
	if !ok {
		return
	}

	unlock, err := h.lifecycle.Unlock(ctx, caller.UserID, requestID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, unlock)
}

// SubmitQuote handles POST /api/v1/requests/:id/quotes.
func (h *RequestHandler) SubmitQuote(c *gin.Context) {
	caller, ctx, ok := callerScope(c)
	if !ok {
		return
	}
	requestID, ok := pathID(c, "request")
	if !ok {
		return
	}

	var req dto.SubmitQuoteRequest
	if !bindJSON(c, &req) {
		return
	}

	quote, err := h.lifecycle.SubmitQuote(ctx, caller.UserID, requestID, ports.SubmitQuoteInput{
		Amount:                  req.Amount,
		Materials:               req.Breakdown.Materials,
		Labour:                  req.Breakdown.Labour,
		EstimatedStartDate:      req.EstimatedStartDate,
		EstimatedCompletionDate: req.EstimatedCompletionDate,
		Notes:                   req.Notes,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, quote)
}

// ListQuotes handles GET /api/v1/requests/:id/quotes.
func (h *RequestHandler) ListQuotes(c *gin.Context) {
	caller, ctx, ok := callerScope(c)
	if !ok {
		return
	}
	requestID, ok := pathID(c, "request")
	if !ok {
		return
	}

	quotes, err := h.lifecycle.ListQuotes(ctx, caller, requestID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if quotes == nil {
		quotes = []*domain.Quote{}
	}

	response.OK(c, quotes)
}

// Intelligence handles GET /api/v1/requests/:id/intelligence.
func (h *RequestHandler) Intelligence(c *gin.Context) {
	caller, ctx, ok := callerScope(c)
	if !ok {
		return
	}
	requestID, ok := pathID(c, "request")
	if !ok {
		return
	}

	intel, err := h.lifecycle.GetIntelligence(ctx, caller, requestID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, intel)
}

// Complete handles POST /api/v1/requests/:id/complete.
func (h *RequestHandler) Complete(c *gin.Context) {
	caller, ctx, ok := callerScope(c)
	if !ok {
		return
	}
	requestID, ok := pathID(c, "request")
	if !ok {
		return
	}

	var req dto.CompleteRequestRequest
	if !bindJSON(c, &req) {
		return
	}

	completed, err := h.lifecycle.CompleteRequest(ctx, caller.UserID, requestID, *req.Rating, req.Review)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, completed)
}

// Cancel handles POST /api/v1/requests/:id/cancel.
func (h *RequestHandler) Cancel(c *gin.Context) {
	caller, ctx, ok := callerScope(c)
	if !ok {
		return
	}
	requestID, ok := pathID(c, "request")
	if !ok {
		return
	}

	result, err := h.lifecycle.CancelRequest(ctx, caller.UserID, requestID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, result)
}
