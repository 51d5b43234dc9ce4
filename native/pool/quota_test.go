package pool

import (
	"errors"
	"testing"
)

func TestActionCooldownPacesAllCalls(t *testing.T) {
	env := newTestEnv(t)
	user := addr(1)
	env.fund(t, user, 5000)

	env.contribute(t, user, 100)
	if err := env.engine.Contribute(user, give(t, 100), give(t, 100)); !errors.Is(err, ErrCooldownActive) {
		t.Fatalf("expected ErrCooldownActive, got %v", err)
	}
	// The cooldown applies across action kinds, not per kind.
	if err := env.engine.Withdraw(user, give(t, 100)); !errors.Is(err, ErrCooldownActive) {
		t.Fatalf("withdraw during cooldown: expected ErrCooldownActive, got %v", err)
	}
	env.advance(60)
	env.contribute(t, user, 100)
}

func TestDailyTransactionQuota(t *testing.T) {
	params := DefaultParams()
	params.MaxDailyTransactions = 2
	params.ActionCooldownSeconds = 1
	env := newTestEnvWith(t, params)
	user := addr(1)
	env.fund(t, user, 5000)

	env.contribute(t, user, 100)
	env.advance(2)
	env.contribute(t, user, 100)
	env.advance(2)
	if err := env.engine.Contribute(user, give(t, 100), give(t, 100)); !errors.Is(err, ErrDailyTxQuota) {
		t.Fatalf("expected ErrDailyTxQuota, got %v", err)
	}

	// The quota resets with the epoch.
	env.advance(86400)
	env.contribute(t, user, 100)
}

func TestEpochResetIsLazy(t *testing.T) {
	env := newTestEnv(t)
	user := addr(1)
	env.fund(t, user, 5000)

	// Land 5 seconds before the epoch boundary.
	day := int64(DefaultTimePolicy().DayLengthSeconds)
	env.now = (env.now/day)*day + day - 5
	env.contribute(t, user, 300)

	// Crossing the boundary zeroes the daily counters on the next read.
	env.advance(10)
	stats, err := env.engine.DailyStatsOf(user)
	if err != nil {
		t.Fatalf("daily stats: %v", err)
	}
	if stats.ContributionWei.Sign() != 0 || stats.TransactionCount != 0 {
		t.Fatalf("expected zeroed daily record, got %+v", stats)
	}
	// Cooldown timestamps survive the reset.
	if err := env.engine.Contribute(user, give(t, 100), give(t, 100)); !errors.Is(err, ErrCooldownActive) {
		t.Fatalf("expected ErrCooldownActive across boundary, got %v", err)
	}
	env.advance(60)
	env.contribute(t, user, 100)

	// Yesterday's contribution is no longer withdrawable.
	withdrawable, err := env.engine.Withdrawable(user)
	if err != nil {
		t.Fatalf("withdrawable: %v", err)
	}
	if withdrawable.Cmp(give(t, 100)) != 0 {
		t.Fatalf("expected withdrawable 0.1, got %s", withdrawable)
	}
}

func TestReceiverPoolCooldown(t *testing.T) {
	params := DefaultParams()
	params.ActionCooldownSeconds = 1
	env := newTestEnvWith(t, params)
	user := addr(1)

	env.enter(t, user)
	env.advance(2)
	if err := env.engine.LeaveReceiverPool(user); !errors.Is(err, ErrReceiverCooldownActive) {
		t.Fatalf("expected ErrReceiverCooldownActive, got %v", err)
	}
	env.advance(28)
	if err := env.engine.LeaveReceiverPool(user); err != nil {
		t.Fatalf("leave after cooldown: %v", err)
	}
}

func TestDailyEntryAndExitQuotas(t *testing.T) {
	params := DefaultParams()
	params.ActionCooldownSeconds = 1
	params.ReceiverPoolCooldownSeconds = 1
	params.MaxDailyEntries = 2
	params.MaxDailyExits = 1
	env := newTestEnvWith(t, params)
	user := addr(1)

	env.enter(t, user)
	env.advance(2)
	if err := env.engine.LeaveReceiverPool(user); err != nil {
		t.Fatalf("leave: %v", err)
	}
	env.advance(2)
	env.enter(t, user)
	env.advance(2)
	if err := env.engine.LeaveReceiverPool(user); !errors.Is(err, ErrExitQuota) {
		t.Fatalf("expected ErrExitQuota, got %v", err)
	}
	// Force the user back out so a third entry attempt is possible.
	if err := env.engine.EmergencyExit(stewardAddr, user); err != nil {
		t.Fatalf("emergency exit: %v", err)
	}
	env.advance(2)
	if err := env.engine.EnterReceiverPool(user); !errors.Is(err, ErrEntryQuota) {
		t.Fatalf("expected ErrEntryQuota, got %v", err)
	}
}
