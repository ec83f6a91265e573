// internal/handlers/wallet/wallet_handler.go
package wallet

import (
	"net/http"
	"strconv"
	"time"

	"vaspay-service/internal/domain/transaction"
	"vaspay-service/internal/middleware"
	xerrors "vaspay-service/internal/pkg/errors"
	"vaspay-service/internal/pkg/response"
	service "vaspay-service/internal/service/wallet"

	"github.com/gin-gonic/gin"
)

type WalletHandler struct {
	walletService *service.Service
}

func NewWalletHandler(walletService *service.Service) *WalletHandler {
	return &WalletHandler{walletService: walletService}
}

// Provision creates the caller's wallet. Safe to call repeatedly: an
// existing wallet is returned unchanged.
func (h *WalletHandler) Provision(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	w, err := h.walletService.Provision(c.Request.Context(), identityID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to provision wallet", err)
		return
	}

	response.Success(c, http.StatusOK, "wallet ready", w)
}

func (h *WalletHandler) GetWallet(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	w, err := h.walletService.Get(c.Request.Context(), identityID)
	if err != nil {
		respondWalletError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "wallet retrieved", w)
}

func (h *WalletHandler) GetBalance(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	b, err := h.walletService.Balance(c.Request.Context(), identityID)
	if err != nil {
		respondWalletError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "balance retrieved", b)
}

// GetFundingAccount returns the virtual account details bank transfers
// should be sent to for wallet funding.
func (h *WalletHandler) GetFundingAccount(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	acct, err := h.walletService.FundingAccount(c.Request.Context(), identityID)
	if err != nil {
		respondWalletError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "funding account retrieved", acct)
}

func (h *WalletHandler) ListTransactions(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	var filters transaction.ListFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid filters", err)
		return
	}

	list, err := h.walletService.ListTransactions(c.Request.Context(), identityID, filters)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to list transactions", err)
		return
	}

	response.Success(c, http.StatusOK, "transactions retrieved", list)
}

func (h *WalletHandler) GetReceipt(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	txnID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid transaction id", err)
		return
	}

	receipt, err := h.walletService.Receipt(c.Request.Context(), identityID, txnID)
	if err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			response.NotFound(c, "transaction not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, "failed to load receipt", err)
		return
	}

	response.Success(c, http.StatusOK, "receipt retrieved", receipt)
}

// GetReceiptByReference resolves a receipt by its purchase reference
// instead of the row id. ?reference=VASPAY_...
func (h *WalletHandler) GetReceiptByReference(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	receipt, err := h.walletService.ReceiptByReference(c.Request.Context(), identityID, c.Query("reference"))
	if err != nil {
		switch {
		case xerrors.Is(err, xerrors.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, "reference is required", err)
		case xerrors.Is(err, xerrors.ErrNotFound):
			response.NotFound(c, "transaction not found")
		default:
			response.Error(c, http.StatusInternalServerError, "failed to load receipt", err)
		}
		return
	}

	response.Success(c, http.StatusOK, "receipt retrieved", receipt)
}

// GetStats aggregates the caller's transactions over a trailing window,
// 30 days by default.
func (h *WalletHandler) GetStats(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
	if err != nil || days < 1 || days > 365 {
		days = 30
	}
	since := time.Now().AddDate(0, 0, -days)

	stats, err := h.walletService.Stats(c.Request.Context(), identityID, since)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to load stats", err)
		return
	}

	response.Success(c, http.StatusOK, "stats retrieved", stats)
}

func respondWalletError(c *gin.Context, err error) {
	switch {
	case xerrors.Is(err, xerrors.ErrWalletNotFound), xerrors.Is(err, xerrors.ErrNotFound):
		response.NotFound(c, xerrors.MessageOrDefault(err, "wallet not found"))
	default:
		response.Error(c, http.StatusInternalServerError, "wallet lookup failed", err)
	}
}
