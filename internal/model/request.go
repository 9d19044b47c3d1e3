package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// RequestStatus is the unstake request lifecycle state.
type RequestStatus string

const (
	StatusNone       RequestStatus = "NONE"
	StatusQueued     RequestStatus = "QUEUED"
	StatusProcessing RequestStatus = "PROCESSING"
	StatusProcessed  RequestStatus = "PROCESSED"
	StatusCancelled  RequestStatus = "CANCELLED"
)

// Terminal reports whether the status admits no further queue transitions.
// PROCESSED requests linger until claimed; CANCELLED ones are deleted
// immediately.
func (s RequestStatus) Terminal() bool {
	return s == StatusProcessed || s == StatusCancelled
}

// UnstakeRequest tracks one pending exit. UnderlyingAmount is fixed at
// request time from the vested rate; it never changes afterwards except
// when an early withdrawal partially consumes a PROCESSED request.
type UnstakeRequest struct {
	ID               uint64          `json:"id"`
	Owner            common.Address  `json:"owner"`
	LSAmount         decimal.Decimal `json:"ls_amount"`
	UnderlyingAmount decimal.Decimal `json:"underlying_amount"`
	// Forfeited is the unvested value given up at request time. Kept so a
	// cancellation can pull the same value back out of the carry.
	Forfeited   decimal.Decimal `json:"forfeited"`
	RequestedAt time.Time       `json:"requested_at"`
	Status      RequestStatus   `json:"status"`
}

// CustodianAllocation routes a percentage of every deposit to an off-chain
// controlled wallet. Percent is 0-100 with up to 16 fractional digits.
type CustodianAllocation struct {
	Wallet  common.Address  `json:"wallet"`
	Percent decimal.Decimal `json:"percent"`
}

// EmergencyMode is the mutually-exclusive global gating state.
type EmergencyMode string

const (
	ModeNormal            EmergencyMode = "NORMAL"
	ModeDepositsPaused    EmergencyMode = "DEPOSITS_PAUSED"
	ModeWithdrawalsPaused EmergencyMode = "WITHDRAWALS_PAUSED"
	ModeFullPause         EmergencyMode = "FULL_PAUSE"
)

func (m EmergencyMode) Valid() bool {
	switch m {
	case ModeNormal, ModeDepositsPaused, ModeWithdrawalsPaused, ModeFullPause:
		return true
	}
	return false
}
