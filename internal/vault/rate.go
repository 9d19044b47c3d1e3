package vault

import (
	"time"

	"github.com/lstlabs/vaultgate/internal/pkg/apperrors"
	"github.com/shopspring/decimal"
)

// Money math runs on shopspring decimals with explicit rounding; division
// results are fixed at 18 fractional digits.
const rateScale = 18

var (
	ErrVestingInProgress  = apperrors.NewStateConflict("yield injection rejected: previous epoch still vesting")
	ErrZeroSupply         = apperrors.NewValidation("cannot inject yield with zero receipt supply")
	ErrYieldTooHigh       = apperrors.NewLimitExceeded("yield injection exceeds max rate increase per epoch")
	ErrYieldTooLow        = apperrors.NewValidation("yield too low to register a rate change")
	ErrPriceImpactTooHigh = apperrors.NewLimitExceeded("yield injection exceeds max price impact")
)

var (
	hundred = decimal.NewFromInt(100)
	tenK    = decimal.NewFromInt(10000)
)

// RateEngine holds the time-vested exchange rate between underlying and
// receipt tokens. Yield injections raise targetRate; the published rate
// walks linearly from lastRate to targetRate over the vesting window so
// holders cannot arbitrage an instantaneous price jump.
//
// The engine is not safe for concurrent use; the owning Vault serializes
// all access.
type RateEngine struct {
	lastRate   decimal.Decimal
	targetRate decimal.Decimal
	lastUpdate time.Time
	vestingEnd time.Time

	vestingDuration time.Duration
	maxIncreaseBps  int64
	maxImpactBps    int64

	// carry accumulates redemption value forfeited by holders who exit
	// mid-vest. It is folded into the next injection fee-free.
	carry decimal.Decimal

	now func() time.Time
}

func NewRateEngine(vesting time.Duration, maxIncreaseBps, maxImpactBps int64, now func() time.Time) *RateEngine {
	if now == nil {
		now = time.Now
	}
	one := decimal.NewFromInt(1)
	return &RateEngine{
		lastRate:        one,
		targetRate:      one,
		vestingDuration: vesting,
		maxIncreaseBps:  maxIncreaseBps,
		maxImpactBps:    maxImpactBps,
		now:             now,
	}
}

// CurrentRate returns the vested exchange rate at call time. Outside an
// active vesting window it is exactly targetRate; inside, it interpolates
// linearly and is clamped so interpolation rounding can never push it
// outside [lastRate, targetRate].
func (e *RateEngine) CurrentRate() decimal.Decimal {
	now := e.now()
	if e.vestingEnd.IsZero() || !now.Before(e.vestingEnd) {
		return e.targetRate
	}
	if !now.After(e.lastUpdate) {
		return e.lastRate
	}

	window := decimal.NewFromInt(e.vestingEnd.Sub(e.lastUpdate).Nanoseconds())
	elapsed := decimal.NewFromInt(now.Sub(e.lastUpdate).Nanoseconds())
	span := e.targetRate.Sub(e.lastRate)

	increase := span.Mul(elapsed).DivRound(window, rateScale)
	if increase.GreaterThan(span) {
		increase = span
	}
	return e.lastRate.Add(increase)
}

// TargetRate is the fully-vested rate. Deposits mint against this value.
func (e *RateEngine) TargetRate() decimal.Decimal {
	return e.targetRate
}

func (e *RateEngine) LastRate() decimal.Decimal {
	return e.lastRate
}

// Vesting reports whether a vesting window is currently active.
func (e *RateEngine) Vesting() bool {
	return !e.vestingEnd.IsZero() && e.now().Before(e.vestingEnd)
}

func (e *RateEngine) VestingEnd() time.Time {
	return e.vestingEnd
}

func (e *RateEngine) Carry() decimal.Decimal {
	return e.carry
}

// InjectYield starts a new vesting epoch. The fee is taken from the gross
// amount; the forfeited-yield carry is added after the fee so recycled
// value is never charged twice. Epochs are strictly sequential: a second
// injection while one is vesting is rejected.
func (e *RateEngine) InjectYield(amount, feePercent, totalSupply decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	if !totalSupply.IsPositive() {
		return decimal.Zero, decimal.Zero, ErrZeroSupply
	}
	if !amount.IsPositive() {
		return decimal.Zero, decimal.Zero, apperrors.NewValidation("yield amount must be positive")
	}
	if feePercent.IsNegative() || feePercent.GreaterThan(hundred) {
		return decimal.Zero, decimal.Zero, apperrors.NewValidation("fee percent must be within [0, 100]")
	}
	if e.Vesting() {
		return decimal.Zero, decimal.Zero, ErrVestingInProgress
	}

	fee := amount.Mul(feePercent).DivRound(hundred, rateScale)
	distributable := amount.Sub(fee).Add(e.carry)

	deltaRate := distributable.DivRound(totalSupply, rateScale)
	if deltaRate.IsZero() {
		return decimal.Zero, decimal.Zero, ErrYieldTooLow
	}

	cur := e.CurrentRate()
	if e.maxIncreaseBps > 0 {
		maxDelta := cur.Mul(decimal.NewFromInt(e.maxIncreaseBps)).DivRound(tenK, rateScale)
		if deltaRate.GreaterThan(maxDelta) {
			return decimal.Zero, decimal.Zero, ErrYieldTooHigh
		}
	}
	if e.maxImpactBps > 0 {
		poolValue := totalSupply.Mul(cur)
		maxInject := poolValue.Mul(decimal.NewFromInt(e.maxImpactBps)).DivRound(tenK, rateScale)
		if amount.GreaterThan(maxInject) {
			return decimal.Zero, decimal.Zero, ErrPriceImpactTooHigh
		}
	}

	now := e.now()
	e.lastRate = cur
	e.targetRate = cur.Add(deltaRate)
	e.lastUpdate = now
	e.vestingEnd = now.Add(e.vestingDuration)
	e.carry = decimal.Zero

	return e.targetRate, fee, nil
}

// CreditForfeited records the redemption value a holder gives up by burning
// lsAmount receipts before the current epoch fully vests. Returns the
// credited amount (zero when nothing is vesting).
func (e *RateEngine) CreditForfeited(lsAmount decimal.Decimal) decimal.Decimal {
	diff := e.targetRate.Sub(e.CurrentRate())
	if !diff.IsPositive() {
		return decimal.Zero
	}
	forfeited := diff.Mul(lsAmount)
	e.carry = e.carry.Add(forfeited)
	return forfeited
}

// DebitCarry removes previously credited forfeited value, for a cancelled
// exit whose receipts are restored at full target value. Clamped at the
// remaining carry: an injection in between already distributed it.
func (e *RateEngine) DebitCarry(amount decimal.Decimal) {
	e.carry = e.carry.Sub(amount)
	if e.carry.IsNegative() {
		e.carry = decimal.Zero
	}
}
