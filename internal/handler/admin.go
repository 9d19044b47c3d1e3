package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lstlabs/vaultgate/internal/middleware"
	"github.com/lstlabs/vaultgate/internal/model"
	"github.com/lstlabs/vaultgate/internal/pkg/apperrors"
	"github.com/lstlabs/vaultgate/internal/vault"
)

// AdminHandler serves the operator surface. Role enforcement lives in the
// vault core, not here: every call passes the resolved principal through
// and lets the capability check decide.
type AdminHandler struct {
	vault *vault.Vault
}

func NewAdminHandler(v *vault.Vault) *AdminHandler {
	return &AdminHandler{vault: v}
}

func (h *AdminHandler) InjectYield(c *gin.Context) {
	var req model.YieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewValidation(err.Error()))
		return
	}
	source, err := parseAddress(req.Source)
	if err != nil {
		c.Error(err)
		return
	}

	newTarget, fee, err := h.vault.InjectYield(middleware.Principal(c), source, req.Amount, req.FeePercent)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, model.YieldResponse{NewTargetRate: newTarget, Fee: fee})
}

func (h *AdminHandler) MarkForProcessing(c *gin.Context) {
	var req model.MarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewValidation(err.Error()))
		return
	}
	affected, err := h.vault.MarkForProcessing(middleware.Principal(c), req.IDs)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, model.MarkResponse{Affected: affected})
}

func (h *AdminHandler) ProcessBatch(c *gin.Context) {
	var req model.ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewValidation(err.Error()))
		return
	}
	processed, remaining, err := h.vault.ProcessBatch(middleware.Principal(c), req.BatchSize)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, model.ProcessResponse{Processed: processed, Remaining: remaining})
}

func (h *AdminHandler) ProcessSingle(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.Error(apperrors.NewValidation("invalid request id"))
		return
	}
	if err := h.vault.ProcessSingle(middleware.Principal(c), id); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "processed"})
}

func (h *AdminHandler) SetCustodian(c *gin.Context) {
	var req model.CustodianRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewValidation(err.Error()))
		return
	}
	wallet, err := parseAddress(req.Wallet)
	if err != nil {
		c.Error(err)
		return
	}
	if err := h.vault.SetCustodian(middleware.Principal(c), wallet, req.Percent); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *AdminHandler) RemoveCustodian(c *gin.Context) {
	wallet, err := parseAddress(c.Param("wallet"))
	if err != nil {
		c.Error(err)
		return
	}
	if err := h.vault.RemoveCustodian(middleware.Principal(c), wallet); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

func (h *AdminHandler) ListCustodians(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"custodians":  h.vault.Custodians(),
		"total_funds": h.vault.TotalCustodianFunds(),
	})
}

func (h *AdminHandler) SetEmergencyMode(c *gin.Context) {
	var req model.EmergencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewValidation(err.Error()))
		return
	}
	if err := h.vault.SetEmergencyMode(middleware.Principal(c), req.Mode); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": req.Mode})
}

func (h *AdminHandler) TriggerCircuitBreaker(c *gin.Context) {
	if err := h.vault.TriggerCircuitBreaker(middleware.Principal(c)); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": model.ModeFullPause})
}

func (h *AdminHandler) ScheduleRecovery(c *gin.Context) {
	if err := h.vault.ScheduleRecovery(middleware.Principal(c)); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "scheduled"})
}

func (h *AdminHandler) ActivateRecovery(c *gin.Context) {
	if err := h.vault.ActivateRecovery(middleware.Principal(c)); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "active"})
}

func (h *AdminHandler) DeactivateRecovery(c *gin.Context) {
	if err := h.vault.DeactivateRecovery(middleware.Principal(c)); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deactivated"})
}

func (h *AdminHandler) ResumeOperations(c *gin.Context) {
	if err := h.vault.ResumeOperations(middleware.Principal(c)); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": model.ModeNormal})
}
