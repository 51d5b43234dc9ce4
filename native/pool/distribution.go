package pool

import (
	"context"
	"math/big"

	"givepool/core/events"
)

// StartDistribution snapshots the receiver set and begins paying out the pool
// in bounded batches. Before committing to a new snapshot it runs a bounded,
// half-backoff retry pass over outstanding failed transfers to maximise clean
// delivery.
func (e *Engine) StartDistribution(caller [20]byte) error {
	if err := e.requireRole(caller, RoleDistributor); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	agg, err := e.store.Aggregate()
	if err != nil {
		return err
	}
	if err := e.checkStartPreconditions(now, agg); err != nil {
		return err
	}

	// Opportunistic pre-pass: half the normal backoff, capped iterations.
	if err := e.sweepRetries(now, int64(e.params.RetryCooldownSeconds/2), "prepass", agg); err != nil {
		return err
	}

	snap, err := e.takeSnapshot(now, agg)
	if err != nil {
		return err
	}
	e.telemetry.ObserveDistribution("started")
	return e.runBatch(snap, agg, e.params.BatchSize)
}

// ContinueDistribution advances the cursor by one batch. Calling it without an
// in-progress run is a state error; there is no silent no-op and no receiver
// is ever paid twice.
func (e *Engine) ContinueDistribution(caller [20]byte) error {
	if err := e.requireRole(caller, RoleDistributor); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	snap, ok, err := e.store.Snapshot()
	if err != nil {
		return err
	}
	if !ok || !snap.InProgress || snap.Cursor >= snap.size() {
		return ErrNotInProgress
	}
	agg, err := e.store.Aggregate()
	if err != nil {
		return err
	}
	return e.runBatch(snap, agg, e.params.BatchSize)
}

// EmergencyStopDistribution aborts an in-progress run. Unprocessed receivers
// simply remain unpaid this epoch; their value stays in the pool total for a
// future attempt. Completion is sacrificed, never correctness.
func (e *Engine) EmergencyStopDistribution(caller [20]byte) error {
	if err := e.requireRole(caller, RoleDistributor); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	snap, ok, err := e.store.Snapshot()
	if err != nil {
		return err
	}
	if !ok || !snap.InProgress {
		return ErrNotInProgress
	}
	if err := e.store.ClearSnapshot(); err != nil {
		return err
	}
	e.emit(events.DistributionStopped{Epoch: snap.Epoch, Cursor: snap.Cursor})
	e.telemetry.ObserveDistribution("stopped")
	e.telemetry.SetCursor(0)
	return nil
}

// DistributeAll processes the entire snapshot synchronously. It predates the
// batched path and is kept for small receiver sets; unlike StartDistribution
// it does not piggyback a retry pre-pass.
func (e *Engine) DistributeAll(caller [20]byte) error {
	if err := e.requireRole(caller, RoleDistributor); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	agg, err := e.store.Aggregate()
	if err != nil {
		return err
	}
	if err := e.checkStartPreconditions(now, agg); err != nil {
		return err
	}
	snap, err := e.takeSnapshot(now, agg)
	if err != nil {
		return err
	}
	e.telemetry.ObserveDistribution("started")
	return e.runBatch(snap, agg, snap.size())
}

func (e *Engine) checkStartPreconditions(now int64, agg *PoolAggregate) error {
	snap, ok, err := e.store.Snapshot()
	if err != nil {
		return err
	}
	if ok && snap.InProgress {
		return ErrDistributionInProgress
	}
	if !e.policy.InWindow(now) {
		return ErrOutsideWindow
	}
	if agg.distributedThisEpoch(e.policy.Epoch(now)) {
		return ErrAlreadyDistributed
	}
	if agg.PoolTotalWei.Sign() <= 0 {
		return ErrEmptyPool
	}
	count, err := e.store.ReceiverCount()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNoReceivers
	}
	if count > e.params.MaxReceivers {
		return ErrTooManyReceivers
	}
	vaultAcc, err := e.store.Account(e.vault)
	if err != nil {
		return err
	}
	if vaultAcc.BalanceGive.Cmp(agg.PoolTotalWei) < 0 {
		return ErrInsufficientBalance
	}
	if agg.PoolTotalWei.Cmp(e.params.MinDistributableWei) < 0 {
		return ErrBelowMinDistributable
	}
	return nil
}

// takeSnapshot freezes the receiver set, clears the live set so the snapshot
// stays fixed for the whole run, and computes the equal share. The floor
// remainder is deliberately left behind as rounding dust; it is never lost,
// just carried.
func (e *Engine) takeSnapshot(now int64, agg *PoolAggregate) (*distributionSnapshot, error) {
	receivers, err := e.store.Receivers()
	if err != nil {
		return nil, err
	}
	if err := e.store.ClearReceivers(); err != nil {
		return nil, err
	}
	share := new(big.Int).Quo(agg.PoolTotalWei, big.NewInt(int64(len(receivers))))
	snap := &distributionSnapshot{
		Epoch:           e.policy.Epoch(now),
		Receivers:       receivers,
		ShareWei:        share,
		InProgress:      true,
		FailedAmountWei: big.NewInt(0),
	}
	if err := e.store.SetSnapshot(snap); err != nil {
		return nil, err
	}
	e.emit(events.DistributionStarted{
		Epoch:     snap.Epoch,
		Receivers: snap.size(),
		Share:     new(big.Int).Set(share),
		PoolTotal: new(big.Int).Set(agg.PoolTotalWei),
	})
	e.telemetry.SetReceiverCount(0)
	return snap, nil
}

// runBatch processes up to limit receivers from the cursor, strictly in
// snapshot order. The advanced cursor is persisted before each payout leg
// runs: a storage failure mid-batch can cost a receiver one delivery attempt,
// but a resumed run can never pay anyone twice. A failed delivery becomes a
// FailedTransfer record and never rolls back bookkeeping already applied to
// other receivers.
func (e *Engine) runBatch(snap *distributionSnapshot, agg *PoolAggregate, limit uint64) error {
	now := e.now()
	end := snap.Cursor + limit
	if size := snap.size(); end > size {
		end = size
	}
	for i := snap.Cursor; i < end; i++ {
		receiver := snap.Receivers[i]

		// The receiver has used their slot for this epoch.
		rec, err := e.loadRecord(receiver, snap.Epoch)
		if err != nil {
			return err
		}
		rec.ContributionWei = big.NewInt(0)
		rec.ReceiverEntries = 0
		rec.ReceiverExits = 0
		if err := e.store.PutUserRecord(receiver, rec); err != nil {
			return err
		}
		snap.Cursor = i + 1
		if err := e.store.SetSnapshot(snap); err != nil {
			return err
		}
		e.stats.Update(receiver, false, new(big.Int).Set(snap.ShareWei))

		if payErr := e.deliver(receiver, snap.ShareWei); payErr != nil {
			failed := &FailedTransfer{
				Receiver:   receiver,
				AmountWei:  new(big.Int).Set(snap.ShareWei),
				FailedAt:   now,
				RetryCount: 0,
			}
			if err := e.store.PutFailedTransfer(failed); err != nil {
				return err
			}
			snap.FailedAmountWei = new(big.Int).Add(snap.FailedAmountWei, snap.ShareWei)
			agg.UnclaimedWei = new(big.Int).Add(agg.UnclaimedWei, snap.ShareWei)
			if err := e.store.SetSnapshot(snap); err != nil {
				return err
			}
			if err := e.store.SetAggregate(agg); err != nil {
				return err
			}
			e.emit(events.PayoutFailed{Receiver: receiver, Amount: new(big.Int).Set(snap.ShareWei)})
			e.telemetry.ObservePayoutFailed()
			continue
		}
		snap.Delivered++
		if err := e.store.SetSnapshot(snap); err != nil {
			return err
		}
		e.emit(events.PayoutDelivered{Receiver: receiver, Amount: new(big.Int).Set(snap.ShareWei)})
		e.telemetry.ObservePayoutDelivered("batch")
	}

	if snap.Cursor == snap.size() {
		return e.finalize(snap, agg)
	}
	e.telemetry.SetCursor(float64(snap.Cursor))
	e.syncGauges(agg)
	return nil
}

func (e *Engine) finalize(snap *distributionSnapshot, agg *PoolAggregate) error {
	allocated := new(big.Int).Mul(snap.ShareWei, new(big.Int).SetUint64(snap.size()))
	remainder := new(big.Int).Sub(agg.PoolTotalWei, allocated)
	if remainder.Sign() < 0 {
		remainder = big.NewInt(0)
	}
	agg.LastDistributionEpoch = snap.Epoch
	agg.DistributedOnce = true
	agg.PoolTotalWei = big.NewInt(0)
	if err := e.store.SetAggregate(agg); err != nil {
		return err
	}
	if err := e.store.ClearSnapshot(); err != nil {
		return err
	}
	e.emit(events.DistributionCompleted{
		Epoch:        snap.Epoch,
		Delivered:    snap.Delivered,
		FailedAmount: new(big.Int).Set(snap.FailedAmountWei),
		Remainder:    remainder,
	})
	e.telemetry.ObserveDistribution("completed")
	e.telemetry.SetCursor(0)
	e.syncGauges(agg)
	return nil
}

// deliver attempts a single payout under the fixed budget. The deadline is
// independent of the caller's context so one hostile receiver cannot consume
// more than its slice of the run.
func (e *Engine) deliver(receiver [20]byte, amount *big.Int) error {
	ctx, cancel := context.WithTimeout(context.Background(), e.params.PayoutBudget)
	defer cancel()
	return e.transport.Pay(ctx, receiver, amount)
}
