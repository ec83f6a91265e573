// internal/handlers/webhook/webhook_handler.go
package webhook

import (
	"net/http"

	xerrors "vaspay-service/internal/pkg/errors"
	"vaspay-service/internal/pkg/response"
	service "vaspay-service/internal/service/webhook"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const signatureHeader = "monnify-signature"

type WebhookHandler struct {
	webhookService *service.Service
	logger         *zap.Logger
}

func NewWebhookHandler(webhookService *service.Service, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{webhookService: webhookService, logger: logger}
}

// HandleMonnify receives funding-provider events. The signature is
// computed over the raw body, so the body must be read before any
// binding touches it. Processed or not, matched events are acknowledged
// with 200 so the provider stops redelivering.
func (h *WebhookHandler) HandleMonnify(c *gin.Context) {
	rawBody, err := c.GetRawData()
	if err != nil {
		response.Error(c, http.StatusBadRequest, "failed to read request body", err)
		return
	}

	ack, err := h.webhookService.Process(c.Request.Context(), rawBody, c.GetHeader(signatureHeader))
	if err != nil {
		switch {
		case xerrors.Is(err, xerrors.ErrSignatureInvalid):
			h.logger.Warn("webhook signature rejected", zap.String("ip", c.ClientIP()))
			response.Error(c, http.StatusUnauthorized, "invalid signature", err)
		case xerrors.Is(err, xerrors.ErrInvalidInput), xerrors.Is(err, xerrors.ErrBadRequest):
			response.Error(c, http.StatusBadRequest, "invalid webhook payload", err)
		default:
			h.logger.Error("webhook processing failed", zap.Error(err))
			response.Error(c, http.StatusInternalServerError, "webhook processing failed", err)
		}
		return
	}

	response.Success(c, http.StatusOK, ack.Message, ack)
}
