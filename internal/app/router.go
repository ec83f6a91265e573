// internal/app/router.go
package app

import (
	"time"

	notifyHandler "vaspay-service/internal/handlers/notification"
	purchaseHandler "vaspay-service/internal/handlers/purchase"
	recoveryHandler "vaspay-service/internal/handlers/recovery"
	walletHandler "vaspay-service/internal/handlers/wallet"
	webhookHandler "vaspay-service/internal/handlers/webhook"
	wsHandler "vaspay-service/internal/handlers/websocket"
	"vaspay-service/internal/middleware"
	"vaspay-service/internal/pkg/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handlers struct {
	PurchaseHandler *purchaseHandler.PurchaseHandler
	WalletHandler   *walletHandler.WalletHandler
	WebhookHandler  *webhookHandler.WebhookHandler
	RecoveryHandler *recoveryHandler.RecoveryHandler
	NotifHandler    *notifyHandler.NotificationHandler
	WSHandler       *wsHandler.WebSocketHandler
	AuthMiddleware  *middleware.AuthMiddleware
	RateLimiter     *session.RateLimiter
}

func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})

	// ==================== WebSocket ====================
	r.GET("/ws", h.WSHandler.HandleConnection)

	// ==================== Funding Webhook (public) ====================
	// Authenticated by HMAC signature over the raw body, not by JWT.
	api.POST("/vas/wallet/webhook", h.WebhookHandler.HandleMonnify)

	// ==================== Wallet ====================
	wallet := api.Group("/wallet")
	wallet.Use(h.AuthMiddleware.Auth())
	{
		wallet.POST("", h.WalletHandler.Provision)
		wallet.GET("", h.WalletHandler.GetWallet)
		wallet.GET("/balance", h.WalletHandler.GetBalance)
		wallet.GET("/funding-account", h.WalletHandler.GetFundingAccount)
	}

	// ==================== Purchases ====================
	// Money endpoints carry a per-user rate limit on top of auth.
	purchase := api.Group("/vas/purchase")
	purchase.Use(
		h.AuthMiddleware.Auth(),
		middleware.RateLimitMiddleware(h.RateLimiter, "purchase", 10, time.Minute),
	)
	{
		purchase.POST("/buy-airtime", h.PurchaseHandler.BuyAirtime)
		purchase.POST("/buy-data", h.PurchaseHandler.BuyData)
	}

	bills := api.Group("/vas/bills")
	bills.Use(
		h.AuthMiddleware.Auth(),
		middleware.RateLimitMiddleware(h.RateLimiter, "bills", 10, time.Minute),
	)
	{
		bills.POST("/buy", h.PurchaseHandler.BuyBill)
	}

	// ==================== Transaction History ====================
	transactions := api.Group("/vas/transactions")
	transactions.Use(h.AuthMiddleware.Auth())
	{
		transactions.GET("", h.WalletHandler.ListTransactions)
		transactions.GET("/stats", h.WalletHandler.GetStats)
		transactions.GET("/receipt", h.WalletHandler.GetReceiptByReference)
		transactions.GET("/:id", h.WalletHandler.GetReceipt)
	}

	// ==================== Notifications ====================
	notifications := api.Group("/notifications")
	notifications.Use(h.AuthMiddleware.Auth())
	{
		notifications.GET("", h.NotifHandler.GetNotifications)
		notifications.GET("/latest", h.NotifHandler.GetLatestNotifications)
		notifications.GET("/:id", h.NotifHandler.GetNotification)
		notifications.GET("/count/unread", h.NotifHandler.GetUnreadCount)
		notifications.GET("/summary", h.NotifHandler.GetSummary)
		notifications.PUT("/:id/read", h.NotifHandler.MarkAsRead)
		notifications.PUT("/read-all", h.NotifHandler.MarkAllAsRead)
		notifications.DELETE("/:id", h.NotifHandler.DeleteNotification)
	}

	// ==================== ADMIN ROUTES ====================
	admin := api.Group("/admin")
	admin.Use(h.AuthMiddleware.AdminOnly()...)
	{
		// Reconciliation & pricing recovery
		adminRecovery := admin.Group("/recovery")
		{
			adminRecovery.POST("/process", h.RecoveryHandler.ProcessDue)
			adminRecovery.GET("/stats", h.RecoveryHandler.GetStats)
			adminRecovery.GET("/anomalies", h.RecoveryHandler.GetAnomalies)
			adminRecovery.POST("/anomalies/:id/resolve", h.RecoveryHandler.ResolveAnomaly)
		}

		// Notifications Management
		admin.POST("/notifications", h.NotifHandler.CreateNotification)

		admin.GET("/ws/stats", h.WSHandler.GetStats)
	}
}
