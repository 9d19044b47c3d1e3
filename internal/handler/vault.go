package handler

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/lstlabs/vaultgate/internal/middleware"
	"github.com/lstlabs/vaultgate/internal/model"
	"github.com/lstlabs/vaultgate/internal/pkg/apperrors"
	"github.com/lstlabs/vaultgate/internal/vault"
	"github.com/shopspring/decimal"
)

// VaultHandler serves the permissionless holder surface: deposits, unstake
// requests, claims and the read endpoints.
type VaultHandler struct {
	vault *vault.Vault
}

func NewVaultHandler(v *vault.Vault) *VaultHandler {
	return &VaultHandler{vault: v}
}

func parseAddress(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, apperrors.NewValidation("invalid address: " + raw)
	}
	return common.HexToAddress(raw), nil
}

func (h *VaultHandler) Deposit(c *gin.Context) {
	var req model.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewValidation(err.Error()))
		return
	}
	owner, err := parseAddress(req.Owner)
	if err != nil {
		c.Error(err)
		return
	}

	minted, err := h.vault.Deposit(middleware.Principal(c), owner, req.Amount, req.MinReceiptOut)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, model.DepositResponse{
		ReceiptMinted: minted,
		Rate:          h.vault.RateStatus().TargetRate,
	})
}

func (h *VaultHandler) RequestUnstake(c *gin.Context) {
	var req model.UnstakeRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewValidation(err.Error()))
		return
	}
	owner, err := parseAddress(req.Owner)
	if err != nil {
		c.Error(err)
		return
	}

	r, err := h.vault.RequestUnstake(middleware.Principal(c), owner, req.LSAmount, req.MinUnderlying)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, model.UnstakeResponse{
		RequestID:        r.ID,
		UnderlyingAmount: r.UnderlyingAmount,
		Rate:             h.vault.CurrentRate(),
	})
}

func (h *VaultHandler) CancelUnstake(c *gin.Context) {
	var req model.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewValidation(err.Error()))
		return
	}
	owner, err := parseAddress(req.Owner)
	if err != nil {
		c.Error(err)
		return
	}

	if err := h.vault.CancelUnstake(middleware.Principal(c), owner); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (h *VaultHandler) Claim(c *gin.Context) {
	var req model.ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewValidation(err.Error()))
		return
	}
	owner, err := parseAddress(req.Owner)
	if err != nil {
		c.Error(err)
		return
	}

	amount, err := h.vault.Claim(middleware.Principal(c), owner)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, model.ClaimResponse{Amount: amount})
}

func (h *VaultHandler) EarlyWithdraw(c *gin.Context) {
	var req model.EarlyWithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewValidation(err.Error()))
		return
	}
	owner, err := parseAddress(req.Owner)
	if err != nil {
		c.Error(err)
		return
	}

	paid, fee, err := h.vault.EarlyWithdraw(middleware.Principal(c), owner, req.Amount)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, model.EarlyWithdrawResponse{Paid: paid, Fee: fee})
}

func (h *VaultHandler) Rate(c *gin.Context) {
	c.JSON(http.StatusOK, h.vault.RateStatus())
}

func (h *VaultHandler) Silo(c *gin.Context) {
	c.JSON(http.StatusOK, h.vault.SiloStatus())
}

func (h *VaultHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"emergency_mode": h.vault.EmergencyMode(),
		"queue_length":   h.vault.QueueLength(),
		"rate":           h.vault.RateStatus(),
	})
}

func (h *VaultHandler) Requests(c *gin.Context) {
	owner, err := parseAddress(c.Param("owner"))
	if err != nil {
		c.Error(err)
		return
	}
	reqs := h.vault.RequestsFor(owner)
	if reqs == nil {
		reqs = []*model.UnstakeRequest{}
	}
	c.JSON(http.StatusOK, reqs)
}

func (h *VaultHandler) PreviewDeposit(c *gin.Context) {
	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil {
		c.Error(apperrors.NewValidation("invalid amount"))
		return
	}
	quote, err := h.vault.PreviewDeposit(amount)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipt_out": quote})
}

func (h *VaultHandler) PreviewRedeem(c *gin.Context) {
	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil {
		c.Error(apperrors.NewValidation("invalid amount"))
		return
	}
	quote, err := h.vault.PreviewRedeem(amount)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"underlying_out": quote})
}
