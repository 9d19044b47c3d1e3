package vault

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/lstlabs/vaultgate/internal/model"
	"github.com/lstlabs/vaultgate/internal/pkg/apperrors"
	"github.com/lstlabs/vaultgate/internal/pkg/metrics"
	"github.com/shopspring/decimal"
)

var ErrWithdrawalsPaused = apperrors.NewStateConflict("withdrawals are paused")

// RequestUnstake burns receipts and queues an exit priced at the vested
// rate of this instant. A holder exiting mid-vest forfeits the unvested
// remainder, which is recycled into the next yield epoch.
func (v *Vault) RequestUnstake(p *model.Principal, owner common.Address, lsAmount, minUnderlying decimal.Decimal) (*model.UnstakeRequest, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.emergency.WithdrawalsAllowed() {
		return nil, ErrWithdrawalsPaused
	}
	if !lsAmount.IsPositive() {
		return nil, apperrors.NewValidation("unstake amount must be positive")
	}
	if v.params.MinUnstake.IsPositive() && lsAmount.LessThan(v.params.MinUnstake) {
		return nil, apperrors.Newf(apperrors.ErrValidation,
			"unstake below minimum %s", v.params.MinUnstake)
	}
	if last, ok := v.lastDepositAt[owner]; ok {
		if v.now().Sub(last) < v.params.VestingDuration {
			return nil, apperrors.NewStateConflict(
				"withdrawal locked: own deposit's fairness window has not elapsed")
		}
	}
	if v.receipts.BalanceOf(owner).LessThan(lsAmount) {
		return nil, apperrors.Newf(apperrors.ErrValidation,
			"insufficient receipt balance: have %s, want %s", v.receipts.BalanceOf(owner), lsAmount)
	}

	cur := v.rate.CurrentRate()
	underlying := lsAmount.Mul(cur)
	if minUnderlying.IsPositive() && underlying.LessThan(minUnderlying) {
		return nil, apperrors.Newf(apperrors.ErrValidation,
			"slippage exceeded: would redeem %s, minimum %s", underlying, minUnderlying)
	}
	if err := v.txCap.Check(underlying, v.receipts.TotalSupply().Mul(cur)); err != nil {
		return nil, err
	}
	if err := v.withdrawLimit.Check(underlying); err != nil {
		return nil, err
	}

	req, err := v.queue.Enqueue(owner, lsAmount, underlying)
	if err != nil {
		return nil, err
	}
	v.withdrawLimit.Record(underlying)

	if err := v.receipts.BurnFrom(owner, lsAmount); err != nil {
		// Unwind the enqueue and the window record; the burn is the first
		// external effect.
		if _, cErr := v.queue.Cancel(owner); cErr != nil {
			v.log.Error("failed to unwind enqueue after burn failure", "error", cErr.Error())
		}
		v.withdrawLimit.Refund(underlying)
		return nil, apperrors.Wrap(err)
	}

	forfeited := v.rate.CreditForfeited(lsAmount)
	req.Forfeited = forfeited

	metrics.UnstakesTotal.WithLabelValues("requested").Inc()
	v.syncGauges()
	fields := map[string]string{
		"id":         decimal.NewFromUint64(req.ID).String(),
		"owner":      owner.Hex(),
		"ls_amount":  lsAmount.String(),
		"underlying": underlying.String(),
	}
	if forfeited.IsPositive() {
		fields["forfeited"] = forfeited.String()
	}
	v.emit(model.NewEvent(model.EventUnstakeRequested, p.ID, fields))
	v.log.Info("unstake requested", "id", req.ID, "owner", owner.Hex(),
		"underlying", underlying.String())
	out := *req
	return &out, nil
}

// CancelUnstake refunds a QUEUED request and pulls its forfeited-value
// credit back out of the carry, since the restored receipts redeem at full
// target value again. Cancellation is rejected while a yield epoch is
// vesting: mid-epoch the carry cannot be cleanly unwound.
func (v *Vault) CancelUnstake(p *model.Principal, owner common.Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.emergency.Mode() == model.ModeFullPause {
		return apperrors.NewStateConflict("vault fully paused")
	}
	if v.rate.Vesting() {
		return apperrors.NewStateConflict("cannot cancel while yield is vesting")
	}

	req, err := v.queue.Cancel(owner)
	if err != nil {
		return err
	}
	if req.Forfeited.IsPositive() {
		v.rate.DebitCarry(req.Forfeited)
	}
	if err := v.receipts.Mint(owner, req.LSAmount); err != nil {
		return apperrors.Wrap(err)
	}

	metrics.UnstakesTotal.WithLabelValues("cancelled").Inc()
	v.syncGauges()
	v.emit(model.NewEvent(model.EventUnstakeCancelled, p.ID, map[string]string{
		"id":    decimal.NewFromUint64(req.ID).String(),
		"owner": owner.Hex(),
	}))
	return nil
}

// MarkForProcessing stages QUEUED requests for the next batch. Idempotent;
// invalid ids are skipped silently.
func (v *Vault) MarkForProcessing(p *model.Principal, ids []uint64) (int, error) {
	if err := v.requireRole(p, model.RoleManager, model.RoleAdmin); err != nil {
		return 0, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.emergency.Mode() == model.ModeFullPause {
		return 0, apperrors.NewStateConflict("vault fully paused")
	}
	affected := v.queue.MarkForProcessing(ids)
	for _, id := range ids {
		if r := v.queue.Get(id); r != nil && r.Status == model.StatusProcessing {
			v.emit(model.NewEvent(model.EventUnstakeMarked, p.ID, map[string]string{
				"id": decimal.NewFromUint64(id).String(),
			}))
		}
	}
	metrics.UnstakesTotal.WithLabelValues("marked").Add(float64(affected))
	return affected, nil
}

// ProcessBatch settles up to batchSize PROCESSING requests. The cumulative
// underlying is pulled from the funding source once; each request is then
// deposited into the silo individually. A failed silo deposit leaves that
// request in PROCESSING and returns its funds to the reserve; the rest of
// the batch still settles.
func (v *Vault) ProcessBatch(p *model.Principal, batchSize int) (int, int, error) {
	if err := v.requireRole(p, model.RoleManager, model.RoleAdmin); err != nil {
		return 0, 0, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.emergency.Mode() == model.ModeFullPause {
		return 0, 0, apperrors.NewStateConflict("vault fully paused")
	}
	if batchSize <= 0 {
		return 0, 0, apperrors.NewValidation("batch size must be positive")
	}

	available := v.underlying.BalanceOf(v.accounts.Reserve)
	selected := v.queue.SelectProcessing(batchSize, available)
	if len(selected) == 0 {
		return 0, v.queue.CountProcessing(), nil
	}

	total := decimal.Zero
	for _, r := range selected {
		total = total.Add(r.UnderlyingAmount)
	}
	if err := v.funding.Pull(total); err != nil {
		return 0, v.queue.CountProcessing(), apperrors.Wrap(err)
	}

	processed := 0
	for _, r := range selected {
		transition, err := v.silo.DepositFor(r.Owner, r.UnderlyingAmount)
		if err != nil {
			// Per-item isolation: surface the failure, push the funds back,
			// leave the request in PROCESSING for a later batch.
			metrics.UnstakesTotal.WithLabelValues("failed").Inc()
			v.emit(model.NewEvent(model.EventUnstakeFailed, p.ID, map[string]string{
				"id":    decimal.NewFromUint64(r.ID).String(),
				"error": err.Error(),
			}))
			v.log.Error("silo deposit failed for request", "id", r.ID, "error", err.Error())
			if rErr := v.underlying.Transfer(v.accounts.Vault, v.accounts.Reserve, r.UnderlyingAmount); rErr != nil {
				v.log.Error("failed to return funds to reserve", "id", r.ID, "error", rErr.Error())
			}
			continue
		}
		if err := v.queue.MarkProcessed(r.ID); err != nil {
			v.log.Error("mark processed failed", "id", r.ID, "error", err.Error())
			continue
		}
		processed++
		metrics.UnstakesTotal.WithLabelValues("processed").Inc()
		v.emit(model.NewEvent(model.EventUnstakeProcessed, p.ID, map[string]string{
			"id":     decimal.NewFromUint64(r.ID).String(),
			"amount": r.UnderlyingAmount.String(),
		}))
		v.emitLiquidity(transition)
	}
	v.syncGauges()
	return processed, v.queue.CountProcessing(), nil
}

// ProcessSingle is the manager fast path: a QUEUED request jumps straight
// to PROCESSED without an intermediate PROCESSING mark.
func (v *Vault) ProcessSingle(p *model.Principal, id uint64) error {
	if err := v.requireRole(p, model.RoleManager, model.RoleAdmin); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.emergency.Mode() == model.ModeFullPause {
		return apperrors.NewStateConflict("vault fully paused")
	}
	r := v.queue.Get(id)
	if r == nil {
		return apperrors.New(apperrors.ErrNotFound, "unknown unstake request", nil)
	}
	if r.Status != model.StatusQueued && r.Status != model.StatusProcessing {
		return apperrors.Newf(apperrors.ErrStateConflict, "cannot process request in status %s", r.Status)
	}

	if err := v.funding.Pull(r.UnderlyingAmount); err != nil {
		return apperrors.Wrap(err)
	}
	transition, err := v.silo.DepositFor(r.Owner, r.UnderlyingAmount)
	if err != nil {
		if rErr := v.underlying.Transfer(v.accounts.Vault, v.accounts.Reserve, r.UnderlyingAmount); rErr != nil {
			v.log.Error("failed to return funds to reserve", "id", id, "error", rErr.Error())
		}
		return apperrors.Wrap(err)
	}
	if err := v.queue.MarkProcessed(id); err != nil {
		return err
	}
	metrics.UnstakesTotal.WithLabelValues("processed").Inc()
	v.syncGauges()
	v.emit(model.NewEvent(model.EventUnstakeProcessed, p.ID, map[string]string{
		"id":     decimal.NewFromUint64(id).String(),
		"amount": r.UnderlyingAmount.String(),
	}))
	v.emitLiquidity(transition)
	return nil
}

// Claim pays out every PROCESSED request of the owner whose cooldown has
// elapsed.
func (v *Vault) Claim(p *model.Principal, owner common.Address) (decimal.Decimal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.emergency.WithdrawalsAllowed() {
		return decimal.Zero, ErrWithdrawalsPaused
	}
	eligible := v.queue.ClaimEligible(owner, v.params.CooldownPeriod)
	if len(eligible) == 0 {
		return decimal.Zero, apperrors.New(apperrors.ErrNotFound, "nothing claimable yet", nil)
	}

	total := decimal.Zero
	for _, r := range eligible {
		total = total.Add(r.UnderlyingAmount)
	}
	transition, err := v.silo.WithdrawTo(owner, total)
	if err != nil {
		return decimal.Zero, err
	}
	for _, r := range eligible {
		v.queue.Drop(r.ID)
	}
	swept := v.queue.RecordClaim()
	if swept > 0 {
		v.log.Info("queue housekeeping sweep", "removed", swept)
	}

	metrics.UnstakesTotal.WithLabelValues("claimed").Inc()
	v.syncGauges()
	v.emit(model.NewEvent(model.EventUnstakeClaimed, p.ID, map[string]string{
		"owner":  owner.Hex(),
		"amount": total.String(),
	}))
	v.emitLiquidity(transition)
	return total, nil
}

// EarlyWithdraw releases silo funds before cooldown for a fee, consuming
// the owner's PROCESSED requests oldest-first (the last one partially when
// the amount does not line up).
func (v *Vault) EarlyWithdraw(p *model.Principal, owner common.Address, amount decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.emergency.WithdrawalsAllowed() {
		return decimal.Zero, decimal.Zero, ErrWithdrawalsPaused
	}
	paid, fee, transition, err := v.silo.EarlyWithdraw(owner, amount)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	remaining := amount
	for _, r := range v.queue.ProcessedFor(owner) {
		if !remaining.IsPositive() {
			break
		}
		if r.UnderlyingAmount.LessThanOrEqual(remaining) {
			remaining = remaining.Sub(r.UnderlyingAmount)
			v.queue.Drop(r.ID)
		} else {
			r.UnderlyingAmount = r.UnderlyingAmount.Sub(remaining)
			remaining = decimal.Zero
		}
	}

	v.syncGauges()
	v.emit(model.NewEvent(model.EventEarlyWithdraw, p.ID, map[string]string{
		"owner":  owner.Hex(),
		"amount": amount.String(),
		"fee":    fee.String(),
	}))
	v.emitLiquidity(transition)
	return paid, fee, nil
}
