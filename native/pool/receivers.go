package pool

import "givepool/core/events"

// EnterReceiverPool registers the user for the next distribution. Contributors
// are excluded for the rest of the epoch: a user either gives or receives on a
// given day, never both.
func (e *Engine) EnterReceiverPool(user [20]byte) error {
	if isZeroAddr(user) {
		return ErrZeroAddress
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	isRecv, err := e.store.IsReceiver(user)
	if err != nil {
		return err
	}
	if isRecv {
		return ErrAlreadyReceiver
	}

	now := e.now()
	rec, err := e.loadRecord(user, e.policy.Epoch(now))
	if err != nil {
		return err
	}
	if rec.ContributionWei.Sign() > 0 {
		return ErrContributedToday
	}
	if rec.ReceiverEntries >= e.params.MaxDailyEntries {
		return ErrEntryQuota
	}
	if err := e.chargeQuota(rec, actionEnterPool, now); err != nil {
		return err
	}
	if err := e.store.PutUserRecord(user, rec); err != nil {
		return err
	}

	count, err := e.store.ReceiverCount()
	if err != nil {
		return err
	}
	if count >= e.params.MaxReceivers {
		return ErrTooManyReceivers
	}
	if err := e.store.AddReceiver(user); err != nil {
		return err
	}

	e.stats.Update(user, false, nil)
	e.emit(events.ReceiverEntered{User: user, Count: count + 1})
	e.telemetry.SetReceiverCount(float64(count + 1))
	return nil
}

// LeaveReceiverPool removes the user from the live set. Removal swaps the last
// entry into the vacated slot, so iteration order is not stable across
// removals.
func (e *Engine) LeaveReceiverPool(user [20]byte) error {
	if isZeroAddr(user) {
		return ErrZeroAddress
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	isRecv, err := e.store.IsReceiver(user)
	if err != nil {
		return err
	}
	if !isRecv {
		return ErrNotReceiver
	}

	now := e.now()
	rec, err := e.loadRecord(user, e.policy.Epoch(now))
	if err != nil {
		return err
	}
	if rec.ReceiverExits >= e.params.MaxDailyExits {
		return ErrExitQuota
	}
	if err := e.chargeQuota(rec, actionLeavePool, now); err != nil {
		return err
	}
	if err := e.store.PutUserRecord(user, rec); err != nil {
		return err
	}

	if err := e.store.RemoveReceiver(user); err != nil {
		return err
	}
	count, err := e.store.ReceiverCount()
	if err != nil {
		return err
	}

	e.stats.Update(user, false, nil)
	e.emit(events.ReceiverLeft{User: user, Count: count})
	e.telemetry.SetReceiverCount(float64(count))
	return nil
}

// EmergencyExit forcibly removes a stuck or malicious entrant. It bypasses
// quotas and cooldowns entirely and requires the steward role.
func (e *Engine) EmergencyExit(caller, user [20]byte) error {
	if err := e.requireRole(caller, RoleSteward); err != nil {
		return err
	}
	if isZeroAddr(user) {
		return ErrZeroAddress
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	isRecv, err := e.store.IsReceiver(user)
	if err != nil {
		return err
	}
	if !isRecv {
		return ErrNotReceiver
	}
	if err := e.store.RemoveReceiver(user); err != nil {
		return err
	}
	count, err := e.store.ReceiverCount()
	if err != nil {
		return err
	}

	e.stats.Update(user, false, nil)
	e.emit(events.ReceiverLeft{User: user, Count: count, Forced: true})
	e.telemetry.SetReceiverCount(float64(count))
	return nil
}
