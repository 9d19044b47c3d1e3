package model

import "github.com/shopspring/decimal"

// HTTP request/response shapes. Amounts travel as decimal strings.

type DepositRequest struct {
	Owner         string          `json:"owner" binding:"required"`
	Amount        decimal.Decimal `json:"amount" binding:"required"`
	MinReceiptOut decimal.Decimal `json:"min_receipt_out"`
}

type DepositResponse struct {
	ReceiptMinted decimal.Decimal `json:"receipt_minted"`
	Rate          decimal.Decimal `json:"rate"`
}

type UnstakeRequestBody struct {
	Owner         string          `json:"owner" binding:"required"`
	LSAmount      decimal.Decimal `json:"ls_amount" binding:"required"`
	MinUnderlying decimal.Decimal `json:"min_underlying"`
}

type UnstakeResponse struct {
	RequestID        uint64          `json:"request_id"`
	UnderlyingAmount decimal.Decimal `json:"underlying_amount"`
	Rate             decimal.Decimal `json:"rate"`
}

type CancelRequest struct {
	Owner string `json:"owner" binding:"required"`
}

type ClaimRequest struct {
	Owner string `json:"owner" binding:"required"`
}

type ClaimResponse struct {
	Amount decimal.Decimal `json:"amount"`
}

type EarlyWithdrawRequest struct {
	Owner  string          `json:"owner" binding:"required"`
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

type EarlyWithdrawResponse struct {
	Paid decimal.Decimal `json:"paid"`
	Fee  decimal.Decimal `json:"fee"`
}

type YieldRequest struct {
	// Source is the funded address the yield is pulled from.
	Source     string          `json:"source" binding:"required"`
	Amount     decimal.Decimal `json:"amount" binding:"required"`
	FeePercent decimal.Decimal `json:"fee_percent"`
}

type YieldResponse struct {
	NewTargetRate decimal.Decimal `json:"new_target_rate"`
	Fee           decimal.Decimal `json:"fee"`
}

type MarkRequest struct {
	IDs []uint64 `json:"ids" binding:"required"`
}

type MarkResponse struct {
	Affected int `json:"affected"`
}

type ProcessRequest struct {
	BatchSize int `json:"batch_size"`
}

type ProcessResponse struct {
	Processed int `json:"processed"`
	Remaining int `json:"remaining"`
}

type CustodianRequest struct {
	Wallet  string          `json:"wallet" binding:"required"`
	Percent decimal.Decimal `json:"percent" binding:"required"`
}

type EmergencyRequest struct {
	Mode EmergencyMode `json:"mode" binding:"required"`
}

type RateResponse struct {
	CurrentRate decimal.Decimal `json:"current_rate"`
	TargetRate  decimal.Decimal `json:"target_rate"`
	Vesting     bool            `json:"vesting"`
}

type SiloResponse struct {
	Balance        decimal.Decimal `json:"balance"`
	PendingClaims  decimal.Decimal `json:"pending_claims"`
	CollectedFees  decimal.Decimal `json:"collected_fees"`
	TotalWithdrawn decimal.Decimal `json:"total_withdrawn"`
	LiquidityRatio int64           `json:"liquidity_ratio_bps"`
	ClaimsPaused   bool            `json:"claims_paused"`
}
