package pool

import (
	"context"
	"fmt"
	"math/big"

	"givepool/core/events"
)

// Contribute credits amount to the pool on behalf of user. The paid value must
// match the declared amount exactly; there is no implicit rounding or partial
// payment. The quota charge is consumed even when a later check rejects the
// call.
func (e *Engine) Contribute(user [20]byte, amount, paidValue *big.Int) error {
	if isZeroAddr(user) {
		return ErrZeroAddress
	}
	if amount == nil || amount.Cmp(e.params.MinContributionWei) < 0 || amount.Cmp(e.params.MaxContributionWei) > 0 {
		return ErrAmountBounds
	}
	if paidValue == nil || paidValue.Cmp(amount) != 0 {
		return ErrValueMismatch
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireIdle(); err != nil {
		return err
	}
	isRecv, err := e.store.IsReceiver(user)
	if err != nil {
		return err
	}
	if isRecv {
		return ErrAlreadyReceiver
	}

	now := e.now()
	epoch := e.policy.Epoch(now)
	rec, err := e.loadRecord(user, epoch)
	if err != nil {
		return err
	}
	if err := e.chargeQuota(rec, actionContribute, now); err != nil {
		return err
	}
	if err := e.store.PutUserRecord(user, rec); err != nil {
		return err
	}

	newDaily := new(big.Int).Add(rec.ContributionWei, amount)
	if newDaily.Cmp(e.params.MaxDailyContributionWei) > 0 {
		return ErrDailyContributionCap
	}

	userAcc, err := e.store.Account(user)
	if err != nil {
		return err
	}
	if userAcc.BalanceGive.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	vaultAcc, err := e.store.Account(e.vault)
	if err != nil {
		return err
	}
	userAcc.BalanceGive = new(big.Int).Sub(userAcc.BalanceGive, amount)
	vaultAcc.BalanceGive = new(big.Int).Add(vaultAcc.BalanceGive, amount)
	if err := e.store.PutAccount(user, userAcc); err != nil {
		return err
	}
	if err := e.store.PutAccount(e.vault, vaultAcc); err != nil {
		return err
	}

	rec.ContributionWei = newDaily
	if err := e.store.PutUserRecord(user, rec); err != nil {
		return err
	}
	agg, err := e.store.Aggregate()
	if err != nil {
		return err
	}
	agg.PoolTotalWei = new(big.Int).Add(agg.PoolTotalWei, amount)
	if err := e.store.SetAggregate(agg); err != nil {
		return err
	}

	e.stats.Update(user, true, new(big.Int).Set(amount))
	e.emit(events.ContributionRecorded{
		User:      user,
		Amount:    new(big.Int).Set(amount),
		PoolTotal: new(big.Int).Set(agg.PoolTotalWei),
		Epoch:     epoch,
	})
	e.telemetry.ObserveContribution()
	e.syncGauges(agg)
	return nil
}

// Withdraw pays back part of the user's same-day contribution. The ledger is
// decremented before the payout leg runs; if delivery fails the decrement is
// rolled back in full and a transfer error is reported. The quota charge and
// withdrawal cooldown stay consumed either way.
func (e *Engine) Withdraw(user [20]byte, amount *big.Int) error {
	if isZeroAddr(user) {
		return ErrZeroAddress
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireIdle(); err != nil {
		return err
	}
	now := e.now()
	epoch := e.policy.Epoch(now)
	rec, err := e.loadRecord(user, epoch)
	if err != nil {
		return err
	}
	if amount == nil || amount.Cmp(e.params.MinWithdrawalWei) < 0 {
		return ErrBelowMinWithdrawal
	}
	if amount.Cmp(rec.ContributionWei) > 0 {
		return ErrExceedsDaily
	}
	if rec.WithdrawalCount >= e.params.MaxDailyWithdrawals {
		return ErrWithdrawalQuota
	}
	vaultAcc, err := e.store.Account(e.vault)
	if err != nil {
		return err
	}
	if vaultAcc.BalanceGive.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	// The vault also holds value reserved for failed-transfer retries, so the
	// pool total gates withdrawals independently of the raw vault balance. A
	// same-day contribution stops being withdrawable once a distribution has
	// swept it.
	agg, err := e.store.Aggregate()
	if err != nil {
		return err
	}
	if agg.PoolTotalWei.Cmp(amount) < 0 {
		return ErrInsufficientPool
	}
	if err := e.chargeQuota(rec, actionWithdraw, now); err != nil {
		return err
	}
	if err := e.store.PutUserRecord(user, rec); err != nil {
		return err
	}

	// Optimistic decrement ahead of the payout leg.
	rec.ContributionWei = new(big.Int).Sub(rec.ContributionWei, amount)
	agg.PoolTotalWei = new(big.Int).Sub(agg.PoolTotalWei, amount)
	if err := e.store.PutUserRecord(user, rec); err != nil {
		return err
	}
	if err := e.store.SetAggregate(agg); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.params.PayoutBudget)
	payErr := e.transport.Pay(ctx, user, amount)
	cancel()
	if payErr != nil {
		// Full rollback: a single-user withdrawal has no remaining batch to
		// protect, so the decrement is undone rather than recorded as a
		// failed transfer.
		rec.ContributionWei = new(big.Int).Add(rec.ContributionWei, amount)
		agg.PoolTotalWei = new(big.Int).Add(agg.PoolTotalWei, amount)
		if err := e.store.PutUserRecord(user, rec); err != nil {
			return err
		}
		if err := e.store.SetAggregate(agg); err != nil {
			return err
		}
		return fmt.Errorf("%w: %v", ErrTransferFailed, payErr)
	}

	e.emit(events.ContributionWithdrawn{
		User:      user,
		Amount:    new(big.Int).Set(amount),
		PoolTotal: new(big.Int).Set(agg.PoolTotalWei),
	})
	e.telemetry.ObserveWithdrawal()
	e.syncGauges(agg)
	return nil
}
