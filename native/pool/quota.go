package pool

// actionKind selects which cooldown policies apply to a mutating call.
type actionKind int

const (
	actionContribute actionKind = iota
	actionWithdraw
	actionEnterPool
	actionLeavePool
)

// chargeQuota verifies and atomically consumes one unit of capacity for the
// action. All kinds share the general cooldown and the daily transaction
// quota; receiver pool moves and withdrawals carry an extra, separate
// cooldown. On success the record is updated in place BEFORE the caller's
// effect is applied: a downstream validation failure still leaves the charge
// consumed, so flooding the pool with invalid requests costs the attacker
// quota all the same. The caller persists the record.
func (e *Engine) chargeQuota(rec *UserDailyRecord, kind actionKind, now int64) error {
	if rec.LastActionAt > 0 && now < rec.LastActionAt+int64(e.params.ActionCooldownSeconds) {
		return ErrCooldownActive
	}
	if rec.TransactionCount >= e.params.MaxDailyTransactions {
		return ErrDailyTxQuota
	}
	switch kind {
	case actionEnterPool, actionLeavePool:
		if rec.LastReceiverPoolActionAt > 0 && now < rec.LastReceiverPoolActionAt+int64(e.params.ReceiverPoolCooldownSeconds) {
			return ErrReceiverCooldownActive
		}
	case actionWithdraw:
		if rec.LastWithdrawalAt > 0 && now < rec.LastWithdrawalAt+int64(e.params.WithdrawalCooldownSeconds) {
			return ErrWithdrawalCooldownActive
		}
	}

	rec.LastActionAt = now
	rec.TransactionCount++
	switch kind {
	case actionEnterPool:
		rec.LastReceiverPoolActionAt = now
		rec.ReceiverEntries++
	case actionLeavePool:
		rec.LastReceiverPoolActionAt = now
		rec.ReceiverExits++
	case actionWithdraw:
		rec.LastWithdrawalAt = now
		rec.WithdrawalCount++
	}
	return nil
}
