package vault

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/lstlabs/vaultgate/internal/model"
	"github.com/lstlabs/vaultgate/internal/pkg/apperrors"
	"github.com/lstlabs/vaultgate/internal/pkg/metrics"
	"github.com/shopspring/decimal"
)

var ErrStakingDisabled = apperrors.NewStateConflict("staking disabled: deposits are paused")

// Deposit validates and executes a stake. Receipts are minted at the fully
// vested target rate, never the interpolated one: a depositor entering
// mid-vest must not capture yield still vesting to existing holders, and
// conversely cannot be diluted by yield earned before entry. The per-user
// ceiling is valued at the current rate so it reflects real present value.
func (v *Vault) Deposit(p *model.Principal, user common.Address, amount, minReceiptOut decimal.Decimal) (decimal.Decimal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.emergency.DepositsAllowed() {
		metrics.DepositsTotal.WithLabelValues("rejected").Inc()
		return decimal.Zero, ErrStakingDisabled
	}
	if !amount.IsPositive() {
		return decimal.Zero, apperrors.NewValidation("deposit amount must be positive")
	}
	if v.params.MinDeposit.IsPositive() && amount.LessThan(v.params.MinDeposit) {
		return decimal.Zero, apperrors.Newf(apperrors.ErrValidation,
			"deposit below minimum %s", v.params.MinDeposit)
	}

	cur := v.rate.CurrentRate()
	target := v.rate.TargetRate()
	poolValue := v.receipts.TotalSupply().Mul(cur)

	if v.params.MaxGlobalDeposit.IsPositive() && poolValue.Add(amount).GreaterThan(v.params.MaxGlobalDeposit) {
		metrics.LimitRejects.WithLabelValues("global_cap").Inc()
		return decimal.Zero, apperrors.Newf(apperrors.ErrLimitExceeded,
			"global deposit cap exceeded (pool %s, cap %s)", poolValue, v.params.MaxGlobalDeposit)
	}
	if v.params.MaxUserDeposit.IsPositive() {
		held := v.receipts.BalanceOf(user).Mul(cur)
		if held.Add(amount).GreaterThan(v.params.MaxUserDeposit) {
			metrics.LimitRejects.WithLabelValues("user_cap").Inc()
			return decimal.Zero, apperrors.Newf(apperrors.ErrLimitExceeded,
				"per-user deposit cap exceeded (held %s, cap %s)", held, v.params.MaxUserDeposit)
		}
	}
	if err := v.txCap.Check(amount, poolValue); err != nil {
		return decimal.Zero, err
	}
	if err := v.depositLimit.Check(amount); err != nil {
		return decimal.Zero, err
	}

	minted := amount.DivRound(target, rateScale)
	if minReceiptOut.IsPositive() && minted.LessThan(minReceiptOut) {
		return decimal.Zero, apperrors.Newf(apperrors.ErrValidation,
			"slippage exceeded: would mint %s, minimum %s", minted, minReceiptOut)
	}

	// Gates passed: commit bookkeeping, then touch the ledgers. A refused
	// ledger leg unwinds it all, so a failed attempt consumes no window
	// capacity and does not re-arm the fairness lock.
	v.depositLimit.Record(amount)
	prevDepositAt, hadDeposit := v.lastDepositAt[user]
	v.lastDepositAt[user] = v.now()
	unwind := func() {
		v.depositLimit.Refund(amount)
		if hadDeposit {
			v.lastDepositAt[user] = prevDepositAt
		} else {
			delete(v.lastDepositAt, user)
		}
	}

	if err := v.underlying.Transfer(user, v.accounts.Vault, amount); err != nil {
		unwind()
		metrics.DepositsTotal.WithLabelValues("failed").Inc()
		return decimal.Zero, apperrors.Wrap(err)
	}
	if err := v.receipts.Mint(user, minted); err != nil {
		unwind()
		if rErr := v.underlying.Transfer(v.accounts.Vault, user, amount); rErr != nil {
			v.log.Error("failed to return funds after mint failure",
				"owner", user.Hex(), "error", rErr.Error())
		}
		metrics.DepositsTotal.WithLabelValues("failed").Inc()
		return decimal.Zero, apperrors.Wrap(err)
	}

	v.splitToCustodians(amount)

	metrics.DepositsTotal.WithLabelValues("accepted").Inc()
	v.emit(model.NewEvent(model.EventDepositAccepted, p.ID, map[string]string{
		"owner":  user.Hex(),
		"amount": amount.String(),
		"minted": minted.String(),
		"rate":   target.String(),
	}))
	v.log.Info("deposit accepted", "owner", user.Hex(), "amount", amount.String(),
		"minted", minted.String())
	return minted, nil
}

// splitToCustodians forwards each custodian's share of a fresh deposit; the
// remainder stays on hand as float. A failed custodian leg keeps its share
// in the float rather than failing the deposit.
func (v *Vault) splitToCustodians(amount decimal.Decimal) {
	for _, c := range v.custodians {
		share := amount.Mul(c.Percent).DivRound(hundred, rateScale)
		if !share.IsPositive() {
			continue
		}
		if err := v.sink.Transfer(c.Wallet, share); err != nil {
			v.log.Warn("custodian transfer failed, share retained as float",
				"wallet", c.Wallet.Hex(), "error", err.Error())
			continue
		}
		v.totalCustodianFunds = v.totalCustodianFunds.Add(share)
		v.emit(model.NewEvent(model.EventCustodianTransfer, "", map[string]string{
			"wallet": c.Wallet.Hex(),
			"amount": share.String(),
		}))
	}
}

// PreviewDeposit quotes the receipts a deposit would mint right now.
func (v *Vault) PreviewDeposit(amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, apperrors.NewValidation("amount must be positive")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return amount.DivRound(v.rate.TargetRate(), rateScale), nil
}

// PreviewRedeem quotes the underlying a receipt burn would currently owe.
// Redemptions settle at the vested rate, so a mid-vest preview is lower
// than the deposit-side target-rate quote by exactly the unvested portion.
func (v *Vault) PreviewRedeem(lsAmount decimal.Decimal) (decimal.Decimal, error) {
	if !lsAmount.IsPositive() {
		return decimal.Zero, apperrors.NewValidation("amount must be positive")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return lsAmount.Mul(v.rate.CurrentRate()), nil
}
