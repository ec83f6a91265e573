// internal/handlers/recovery/recovery_handler.go
package recovery

import (
	"net/http"
	"strconv"

	xerrors "vaspay-service/internal/pkg/errors"
	"vaspay-service/internal/pkg/response"
	service "vaspay-service/internal/service/recovery"

	"github.com/gin-gonic/gin"
)

// RecoveryHandler exposes the admin surface for the pricing-recovery
// worker: manual sweeps, sweep stats, and reconciliation anomalies.
type RecoveryHandler struct {
	recoveryService *service.Service
}

func NewRecoveryHandler(recoveryService *service.Service) *RecoveryHandler {
	return &RecoveryHandler{recoveryService: recoveryService}
}

// ProcessDue triggers a sweep immediately instead of waiting for the
// next scheduled run.
func (h *RecoveryHandler) ProcessDue(c *gin.Context) {
	result, err := h.recoveryService.ProcessDue(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "recovery sweep failed", err)
		return
	}

	response.Success(c, http.StatusOK, "recovery sweep complete", result)
}

func (h *RecoveryHandler) GetStats(c *gin.Context) {
	stats, err := h.recoveryService.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to load recovery stats", err)
		return
	}

	response.Success(c, http.StatusOK, "recovery stats retrieved", stats)
}

func (h *RecoveryHandler) GetAnomalies(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	anomalies, err := h.recoveryService.OpenAnomalies(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to load anomalies", err)
		return
	}

	response.Success(c, http.StatusOK, "anomalies retrieved", gin.H{
		"anomalies": anomalies,
		"count":     len(anomalies),
	})
}

func (h *RecoveryHandler) ResolveAnomaly(c *gin.Context) {
	if err := h.recoveryService.ResolveAnomaly(c.Request.Context(), c.Param("id")); err != nil {
		switch {
		case xerrors.Is(err, xerrors.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, "anomaly id is required", err)
		case xerrors.Is(err, xerrors.ErrNotFound):
			response.NotFound(c, "anomaly not found")
		default:
			response.Error(c, http.StatusInternalServerError, "failed to resolve anomaly", err)
		}
		return
	}

	response.Success(c, http.StatusOK, "anomaly resolved", nil)
}
