package handler

import (
	"strconv"

	"tradie-marketplace/internal/adapter/http/dto"
	"tradie-marketplace/internal/core/ports"
	"tradie-marketplace/pkg/apperror"
	"tradie-marketplace/pkg/response"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey makes a recharge safe to retry.
const HeaderIdempotencyKey = "Idempotency-Key"

const maxIdempotencyKeyLen = 128

// WalletHandler handles wallet-related endpoints.
type WalletHandler struct {
	wallet    ports.WalletService
	lifecycle ports.LifecycleService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(wallet ports.WalletService, lifecycle ports.LifecycleService) *WalletHandler {
	return &WalletHandler{
		wallet:    wallet,
		lifecycle: lifecycle,
	}
}

// GetBalance handles GET /api/v1/wallet.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	caller, ctx, ok := callerScope(c)
	if !ok {
		return
	}

	wallet, err := h.wallet.GetWallet(ctx, caller.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.NewWalletBalanceResponse(wallet))
}

// ListTransactions handles GET /api/v1/wallet/transactions?cursor=&limit=.
func (h *WalletHandler) ListTransactions(c *gin.Context) {
	caller, ctx, ok := callerScope(c)
	if !ok {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, apperror.ErrInvalidArgument("limit must be an integer"))
			return
		}
		limit = n
	}

	page, err := h.wallet.ListTransactions(ctx, caller.UserID, c.Query("cursor"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.TransactionResponse, 0, len(page.Items))
	for _, t := range page.Items {
		items = append(items, dto.NewTransactionResponse(t))
	}

	response.OK(c, dto.TransactionListResponse{
		Items:      items,
		NextCursor: page.NextCursor,
	})
}

// Recharge handles POST /api/v1/wallet/recharge.
func (h *WalletHandler) Recharge(c *gin.Context) {
	caller, ctx, ok := callerScope(c)
	if !ok {
		return
	}

	key := c.GetHeader(HeaderIdempotencyKey)
	if len(key) > maxIdempotencyKeyLen {
		response.Error(c, apperror.ErrInvalidArgument("Idempotency-Key is too long"))
		return
	}

	var req dto.RechargeRequest
	if !bindJSON(c, &req) {
		return
	}

	entry, err := h.lifecycle.RechargeWallet(ctx, caller.UserID, req.Amount, req.Method, key)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.NewTransactionResponse(entry))
}
