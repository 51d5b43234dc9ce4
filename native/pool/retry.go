package pool

import (
	"math/big"

	"givepool/core/events"
)

// RetryFailedTransfer attempts redelivery of a single failed payout once its
// exponential backoff has elapsed. The returned bool reports whether the value
// actually reached the receiver; a fresh delivery failure is not an error, it
// just pushes the next eligible time further out.
func (e *Engine) RetryFailedTransfer(caller, receiver [20]byte) (bool, error) {
	if err := e.requireRole(caller, RoleDistributor); err != nil {
		return false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	agg, err := e.store.Aggregate()
	if err != nil {
		return false, err
	}
	delivered, err := e.attemptRetry(receiver, e.now(), int64(e.params.RetryCooldownSeconds), false, "manual", agg)
	if err != nil {
		return false, err
	}
	e.syncGauges(agg)
	return delivered, nil
}

// AutoRetrySweep walks the failure index and retries every eligible entry, up
// to a fixed number of attempts per call. The cap is a circuit breaker
// bounding per-call cost; anyone may call this.
func (e *Engine) AutoRetrySweep() (attempted, delivered uint32, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	agg, err := e.store.Aggregate()
	if err != nil {
		return 0, 0, err
	}
	attempted, delivered, err = e.sweep(e.now(), int64(e.params.RetryCooldownSeconds), "sweep", agg)
	if err != nil {
		return attempted, delivered, err
	}
	e.syncGauges(agg)
	return attempted, delivered, nil
}

// ForceFlush retries a failed transfer outside its backoff schedule, e.g.
// after external remediation of the receiver. Accounting matches a normal
// retry.
func (e *Engine) ForceFlush(caller, receiver [20]byte) (bool, error) {
	if err := e.requireRole(caller, RoleDistributor); err != nil {
		return false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	agg, err := e.store.Aggregate()
	if err != nil {
		return false, err
	}
	delivered, err := e.attemptRetry(receiver, e.now(), int64(e.params.RetryCooldownSeconds), true, "flush", agg)
	if err != nil {
		return false, err
	}
	e.syncGauges(agg)
	return delivered, nil
}

// sweepRetries is the shared pre-pass used by StartDistribution. Lock held.
func (e *Engine) sweepRetries(now, backoffBase int64, trigger string, agg *PoolAggregate) error {
	_, _, err := e.sweep(now, backoffBase, trigger, agg)
	return err
}

func (e *Engine) sweep(now, backoffBase int64, trigger string, agg *PoolAggregate) (attempted, delivered uint32, err error) {
	index, err := e.store.FailedIndex()
	if err != nil {
		return 0, 0, err
	}
	for _, receiver := range index {
		if attempted >= e.params.MaxAutoRetriesPerSweep {
			break
		}
		rec, ok, err := e.store.FailedTransfer(receiver)
		if err != nil {
			return attempted, delivered, err
		}
		if !ok || !retryEligible(rec, now, backoffBase, e.params.MaxRetries) {
			continue
		}
		attempted++
		ok, err = e.attemptRetry(receiver, now, backoffBase, false, trigger, agg)
		if err != nil {
			return attempted, delivered, err
		}
		if ok {
			delivered++
		}
	}
	return attempted, delivered, nil
}

func retryEligible(rec *FailedTransfer, now, backoffBase int64, maxRetries uint32) bool {
	if rec.RetryCount >= maxRetries {
		return false
	}
	return now-rec.FailedAt >= backoffWait(backoffBase, rec.RetryCount)
}

// backoffWait returns backoffBase * 2^retryCount.
func backoffWait(backoffBase int64, retryCount uint32) int64 {
	wait := backoffBase
	for i := uint32(0); i < retryCount; i++ {
		wait *= 2
	}
	return wait
}

// attemptRetry removes the record optimistically and redelivers under the
// bounded payout budget. On failure the record is reinserted with an
// incremented retry count and a fresh failure time. Lock held; the caller
// persists gauges.
func (e *Engine) attemptRetry(receiver [20]byte, now, backoffBase int64, bypassSchedule bool, trigger string, agg *PoolAggregate) (bool, error) {
	rec, ok, err := e.store.FailedTransfer(receiver)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrNoFailedTransfer
	}
	if !bypassSchedule {
		if rec.RetryCount >= e.params.MaxRetries {
			return false, ErrRetriesExhausted
		}
		if now-rec.FailedAt < backoffWait(backoffBase, rec.RetryCount) {
			return false, ErrRetryTooEarly
		}
	}
	e.telemetry.ObserveRetryAttempt(trigger)

	if err := e.store.DeleteFailedTransfer(receiver); err != nil {
		return false, err
	}
	if payErr := e.deliver(receiver, rec.AmountWei); payErr != nil {
		refreshed := &FailedTransfer{
			Receiver:   receiver,
			AmountWei:  new(big.Int).Set(rec.AmountWei),
			FailedAt:   now,
			RetryCount: rec.RetryCount + 1,
		}
		if err := e.store.PutFailedTransfer(refreshed); err != nil {
			return false, err
		}
		e.emit(events.PayoutFailed{Receiver: receiver, Amount: new(big.Int).Set(rec.AmountWei), RetryCount: refreshed.RetryCount})
		e.telemetry.ObservePayoutFailed()
		return false, nil
	}

	agg.UnclaimedWei = new(big.Int).Sub(agg.UnclaimedWei, rec.AmountWei)
	if agg.UnclaimedWei.Sign() < 0 {
		agg.UnclaimedWei = big.NewInt(0)
	}
	if err := e.store.SetAggregate(agg); err != nil {
		return false, err
	}
	e.emit(events.PayoutDelivered{Receiver: receiver, Amount: new(big.Int).Set(rec.AmountWei), Retry: true})
	e.telemetry.ObservePayoutDelivered("retry")
	return true, nil
}
