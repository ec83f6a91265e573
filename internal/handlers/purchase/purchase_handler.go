// internal/handlers/purchase/purchase_handler.go
package purchase

import (
	"net/http"

	"vaspay-service/internal/domain/transaction"
	"vaspay-service/internal/middleware"
	xerrors "vaspay-service/internal/pkg/errors"
	"vaspay-service/internal/pkg/response"
	service "vaspay-service/internal/service/purchase"

	"github.com/gin-gonic/gin"
)

type PurchaseHandler struct {
	purchaseService *service.Service
}

func NewPurchaseHandler(purchaseService *service.Service) *PurchaseHandler {
	return &PurchaseHandler{purchaseService: purchaseService}
}

// BuyAirtime vends airtime to a phone number, debiting the wallet.
func (h *PurchaseHandler) BuyAirtime(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	var req transaction.BuyAirtimeInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	result, err := h.purchaseService.BuyAirtime(c.Request.Context(), identityID, &req)
	if err != nil {
		respondPurchaseError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "airtime purchase successful", result)
}

// BuyData vends a data bundle to a phone number, debiting the wallet.
func (h *PurchaseHandler) BuyData(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	var req transaction.BuyDataInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	result, err := h.purchaseService.BuyData(c.Request.Context(), identityID, &req)
	if err != nil {
		respondPurchaseError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "data purchase successful", result)
}

// BuyBill pays a bill for a customer account, debiting the wallet.
func (h *PurchaseHandler) BuyBill(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	var req transaction.BuyBillInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	result, err := h.purchaseService.BuyBill(c.Request.Context(), identityID, &req)
	if err != nil {
		respondPurchaseError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "bill payment successful", result)
}

// respondPurchaseError maps service errors to status codes and a
// display-ready user message for the known money conditions.
func respondPurchaseError(c *gin.Context, err error) {
	switch {
	case xerrors.Is(err, xerrors.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, "invalid purchase request", err)

	case xerrors.Is(err, xerrors.ErrInsufficientBalance):
		response.ErrorWithUserMessage(c, http.StatusPaymentRequired, "insufficient balance", err, &response.UserMessage{
			Title:   "Insufficient Balance",
			Message: "Your wallet balance is too low for this purchase. Please fund your wallet and try again.",
			Type:    "insufficient_balance",
		})

	case xerrors.Is(err, xerrors.ErrWalletSuspended):
		response.ErrorWithUserMessage(c, http.StatusForbidden, "wallet suspended", err, &response.UserMessage{
			Title:   "Wallet Suspended",
			Message: "Your wallet is suspended. Please contact support.",
			Type:    "wallet_suspended",
		})

	case xerrors.Is(err, xerrors.ErrWalletNotFound):
		response.NotFound(c, "wallet not found")

	case xerrors.Is(err, xerrors.ErrDuplicateRequest):
		response.ErrorWithUserMessage(c, http.StatusConflict, "duplicate transaction", err, &response.UserMessage{
			Title:   "Transaction In Progress",
			Message: "A similar transaction is already being processed. Please wait a moment before retrying.",
			Type:    "duplicate_transaction",
		})

	case xerrors.Is(err, xerrors.ErrProvider):
		response.ErrorWithUserMessage(c, http.StatusBadGateway, "purchase failed", err, &response.UserMessage{
			Title:   "Purchase Failed",
			Message: "We could not complete your purchase right now. Your wallet was not charged. Please try again shortly.",
			Type:    "provider_failure",
		})

	default:
		response.Error(c, http.StatusInternalServerError, "purchase failed", err)
	}
}
