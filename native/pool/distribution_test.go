package pool

import (
	"errors"
	"math/big"
	"testing"

	"givepool/core/events"
	"givepool/storage"
)

func TestDistributionPaysEqualShares(t *testing.T) {
	env := newTestEnv(t)
	giver := addr(1)
	env.fund(t, giver, 300)
	env.contribute(t, giver, 300)
	for i := byte(2); i <= 4; i++ {
		env.enter(t, addr(i))
	}

	if err := env.engine.StartDistribution(distributorAddr); err != nil {
		t.Fatalf("start: %v", err)
	}

	for i := byte(2); i <= 4; i++ {
		if got := env.balance(t, addr(i)); got.Cmp(give(t, 100)) != 0 {
			t.Fatalf("receiver %d: expected 0.1, got %s", i, got)
		}
	}
	if env.poolTotal(t).Sign() != 0 {
		t.Fatalf("expected drained pool, got %s", env.poolTotal(t))
	}
	count, err := env.engine.ReceiverCount()
	if err != nil {
		t.Fatalf("receiver count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected cleared receiver set, got %d", count)
	}
	evt := env.events.last(events.TypeDistributionCompleted)
	if evt == nil {
		t.Fatal("missing completed event")
	}
	if evt.Attributes["delivered"] != "3" || evt.Attributes["remainder"] != "0" {
		t.Fatalf("unexpected completed event: %+v", evt.Attributes)
	}
}

func TestDistributionRunsInBatches(t *testing.T) {
	params := DefaultParams()
	params.BatchSize = 2
	env := newTestEnvWith(t, params)
	giver := addr(1)
	env.fund(t, giver, 500)
	env.contribute(t, giver, 500)
	for i := byte(2); i <= 6; i++ {
		env.enter(t, addr(i))
	}

	if err := env.engine.StartDistribution(distributorAddr); err != nil {
		t.Fatalf("start: %v", err)
	}
	info, err := env.engine.DistributionInfoOf()
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if !info.InProgress || info.Cursor != 2 || info.SnapshotSize != 5 {
		t.Fatalf("unexpected run state: %+v", info)
	}

	// Ledger mutations are rejected mid-run.
	env.advance(61)
	if err := env.engine.Contribute(giver, give(t, 100), give(t, 100)); !errors.Is(err, ErrDistributionInProgress) {
		t.Fatalf("contribute mid-run: expected ErrDistributionInProgress, got %v", err)
	}
	if err := env.engine.StartDistribution(distributorAddr); !errors.Is(err, ErrDistributionInProgress) {
		t.Fatalf("restart mid-run: expected ErrDistributionInProgress, got %v", err)
	}
	// New entrants register for the next epoch without touching the snapshot.
	env.enter(t, addr(9))

	for i := 0; i < 2; i++ {
		if err := env.engine.ContinueDistribution(distributorAddr); err != nil {
			t.Fatalf("continue %d: %v", i, err)
		}
	}
	for i := byte(2); i <= 6; i++ {
		if got := env.balance(t, addr(i)); got.Cmp(give(t, 100)) != 0 {
			t.Fatalf("receiver %d: expected 0.1, got %s", i, got)
		}
	}
	if err := env.engine.ContinueDistribution(distributorAddr); !errors.Is(err, ErrNotInProgress) {
		t.Fatalf("continue after drain: expected ErrNotInProgress, got %v", err)
	}
	count, err := env.engine.ReceiverCount()
	if err != nil {
		t.Fatalf("receiver count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected mid-run entrant to survive, got %d receivers", count)
	}
}

func TestDistributionIsolatesFailedDeliveries(t *testing.T) {
	env := newTestEnv(t)
	giver := addr(1)
	env.fund(t, giver, 300)
	env.contribute(t, giver, 300)
	for i := byte(2); i <= 4; i++ {
		env.enter(t, addr(i))
	}
	env.transport.reject[addr(3)] = true

	if err := env.engine.StartDistribution(distributorAddr); err != nil {
		t.Fatalf("start: %v", err)
	}

	// The run completed despite the failure.
	if env.poolTotal(t).Sign() != 0 {
		t.Fatalf("expected drained pool, got %s", env.poolTotal(t))
	}
	if got := env.balance(t, addr(2)); got.Cmp(give(t, 100)) != 0 {
		t.Fatalf("receiver 2: expected 0.1, got %s", got)
	}
	if got := env.balance(t, addr(4)); got.Cmp(give(t, 100)) != 0 {
		t.Fatalf("receiver 4: expected 0.1, got %s", got)
	}
	if got := env.balance(t, addr(3)); got.Sign() != 0 {
		t.Fatalf("receiver 3: expected nothing, got %s", got)
	}

	failed, err := env.engine.FailedTransferOf(addr(3))
	if err != nil {
		t.Fatalf("failed transfer: %v", err)
	}
	if failed == nil {
		t.Fatal("expected failed transfer record")
	}
	if failed.RetryCount != 0 || failed.AmountWei.Cmp(give(t, 100)) != 0 {
		t.Fatalf("unexpected record: %+v", failed)
	}
	unclaimed, err := env.engine.UnclaimedFunds()
	if err != nil {
		t.Fatalf("unclaimed: %v", err)
	}
	if unclaimed.Cmp(give(t, 100)) != 0 {
		t.Fatalf("expected unclaimed 0.1, got %s", unclaimed)
	}
	if n := env.events.count(events.TypePayoutFailed); n != 1 {
		t.Fatalf("expected 1 failed event, got %d", n)
	}
}

func TestDistributionCarriesFloorRemainder(t *testing.T) {
	env := newTestEnv(t)
	giver := addr(1)
	env.fund(t, giver, 100)
	env.contribute(t, giver, 100)
	for i := byte(2); i <= 4; i++ {
		env.enter(t, addr(i))
	}

	if err := env.engine.StartDistribution(distributorAddr); err != nil {
		t.Fatalf("start: %v", err)
	}

	share := new(big.Int).Quo(give(t, 100), big.NewInt(3))
	paid := new(big.Int).Mul(share, big.NewInt(3))
	remainder := new(big.Int).Sub(give(t, 100), paid)
	if remainder.Sign() <= 0 {
		t.Fatalf("test pool must not divide evenly, remainder %s", remainder)
	}
	for i := byte(2); i <= 4; i++ {
		if got := env.balance(t, addr(i)); got.Cmp(share) != 0 {
			t.Fatalf("receiver %d: expected %s, got %s", i, share, got)
		}
	}
	// Dust stays in the vault, never lost and never over-allocated.
	if got := env.balance(t, vaultAddr); got.Cmp(remainder) != 0 {
		t.Fatalf("expected vault dust %s, got %s", remainder, got)
	}
	evt := env.events.last(events.TypeDistributionCompleted)
	if evt == nil || evt.Attributes["remainder"] != remainder.String() {
		t.Fatalf("expected remainder %s in completed event, got %+v", remainder, evt)
	}
}

func TestDistributionStartPreconditions(t *testing.T) {
	env := newTestEnv(t)
	giver := addr(1)
	env.fund(t, giver, 2000)

	if err := env.engine.StartDistribution(distributorAddr); !errors.Is(err, ErrEmptyPool) {
		t.Fatalf("expected ErrEmptyPool, got %v", err)
	}

	env.contribute(t, giver, 1)
	if err := env.engine.StartDistribution(distributorAddr); !errors.Is(err, ErrNoReceivers) {
		t.Fatalf("expected ErrNoReceivers, got %v", err)
	}

	env.enter(t, addr(2))
	if err := env.engine.StartDistribution(distributorAddr); !errors.Is(err, ErrBelowMinDistributable) {
		t.Fatalf("expected ErrBelowMinDistributable, got %v", err)
	}

	env.advance(61)
	env.contribute(t, giver, 100)
	if err := env.engine.StartDistribution(distributorAddr); err != nil {
		t.Fatalf("start: %v", err)
	}

	// One run per epoch.
	env.advance(61)
	env.contribute(t, giver, 100)
	env.enter(t, addr(3))
	if err := env.engine.StartDistribution(distributorAddr); !errors.Is(err, ErrAlreadyDistributed) {
		t.Fatalf("expected ErrAlreadyDistributed, got %v", err)
	}
	env.advance(86400)
	if err := env.engine.StartDistribution(distributorAddr); err != nil {
		t.Fatalf("start next epoch: %v", err)
	}
}

func TestDistributionWindowEnforced(t *testing.T) {
	policy := DefaultTimePolicy()
	store := NewStore(storage.NewMemDB())
	engine, err := NewEngine(store, DefaultParams(), policy, vaultAddr)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	// Noon, well outside the final-hour window.
	day := int64(policy.DayLengthSeconds)
	now := (int64(1_700_000_000)/day)*day + day/2
	engine.SetNowFunc(func() int64 { return now })
	engine.SetRoleChecker(roleTable{distributorAddr: {RoleDistributor: true}})

	if err := engine.Credit(addr(1), giveMilli(300)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := engine.Contribute(addr(1), giveMilli(300), giveMilli(300)); err != nil {
		t.Fatalf("contribute: %v", err)
	}
	now += 61
	if err := engine.EnterReceiverPool(addr(2)); err != nil {
		t.Fatalf("enter: %v", err)
	}

	if err := engine.StartDistribution(distributorAddr); !errors.Is(err, ErrOutsideWindow) {
		t.Fatalf("expected ErrOutsideWindow, got %v", err)
	}
	// Inside the window the same call goes through.
	now = (now/day)*day + int64(policy.WindowOffsetSeconds) + 1
	if err := engine.StartDistribution(distributorAddr); err != nil {
		t.Fatalf("start in window: %v", err)
	}
}

func TestEmergencyStopAbandonsRun(t *testing.T) {
	params := DefaultParams()
	params.BatchSize = 2
	env := newTestEnvWith(t, params)
	giver := addr(1)
	env.fund(t, giver, 400)
	env.contribute(t, giver, 400)
	for i := byte(2); i <= 5; i++ {
		env.enter(t, addr(i))
	}

	if err := env.engine.StartDistribution(distributorAddr); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := env.engine.EmergencyStopDistribution(distributorAddr); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := env.engine.ContinueDistribution(distributorAddr); !errors.Is(err, ErrNotInProgress) {
		t.Fatalf("continue after stop: expected ErrNotInProgress, got %v", err)
	}
	if err := env.engine.EmergencyStopDistribution(distributorAddr); !errors.Is(err, ErrNotInProgress) {
		t.Fatalf("double stop: expected ErrNotInProgress, got %v", err)
	}
	info, err := env.engine.DistributionInfoOf()
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.InProgress || info.Distributed {
		t.Fatalf("expected idle, undistributed epoch, got %+v", info)
	}
	if n := env.events.count(events.TypeDistributionStopped); n != 1 {
		t.Fatalf("expected 1 stopped event, got %d", n)
	}
}

func TestDistributeAllDrainsInOneCall(t *testing.T) {
	params := DefaultParams()
	params.BatchSize = 2
	env := newTestEnvWith(t, params)
	giver := addr(1)
	env.fund(t, giver, 500)
	env.contribute(t, giver, 500)
	for i := byte(2); i <= 6; i++ {
		env.enter(t, addr(i))
	}

	if err := env.engine.DistributeAll(distributorAddr); err != nil {
		t.Fatalf("distribute all: %v", err)
	}
	info, err := env.engine.DistributionInfoOf()
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.InProgress || !info.Distributed {
		t.Fatalf("expected completed epoch, got %+v", info)
	}
	for i := byte(2); i <= 6; i++ {
		if got := env.balance(t, addr(i)); got.Cmp(give(t, 100)) != 0 {
			t.Fatalf("receiver %d: expected 0.1, got %s", i, got)
		}
	}
}

// faultDB fails the first Put against a chosen key and behaves normally
// afterwards.
type faultDB struct {
	storage.Database
	failKey string
	fired   bool
}

func (d *faultDB) Put(key, value []byte) error {
	if !d.fired && string(key) == d.failKey {
		d.fired = true
		return errors.New("write failed")
	}
	return d.Database.Put(key, value)
}

// A storage failure mid-batch aborts the call after the cursor has moved past
// every receiver already handled, so resuming the run skips them instead of
// paying them again.
func TestDistributionResumeNeverPaysTwice(t *testing.T) {
	db := &faultDB{Database: storage.NewMemDB()}
	store := NewStore(db)
	policy := DefaultTimePolicy()
	policy.TestMode = true
	engine, err := NewEngine(store, DefaultParams(), policy, vaultAddr)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	now := int64(1_700_000_000)
	engine.SetNowFunc(func() int64 { return now })
	engine.SetRoleChecker(roleTable{distributorAddr: {RoleDistributor: true}})

	giver := addr(1)
	if err := engine.Credit(giver, giveMilli(300)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := engine.Contribute(giver, giveMilli(300), giveMilli(300)); err != nil {
		t.Fatalf("contribute: %v", err)
	}
	for i := byte(2); i <= 4; i++ {
		if err := engine.EnterReceiverPool(addr(i)); err != nil {
			t.Fatalf("enter %d: %v", i, err)
		}
	}

	// The second snapshot receiver's daily record write fails after the first
	// receiver has already been paid.
	db.failKey = string(userKey(addr(3)))
	if err := engine.StartDistribution(distributorAddr); err == nil {
		t.Fatal("expected mid-batch store failure")
	}
	if got, err := engine.BalanceOf(addr(2)); err != nil || got.Cmp(giveMilli(100)) != 0 {
		t.Fatalf("receiver 2 after abort: expected 0.1, got %s (%v)", got, err)
	}

	if err := engine.ContinueDistribution(distributorAddr); err != nil {
		t.Fatalf("continue: %v", err)
	}
	for i := byte(2); i <= 4; i++ {
		got, err := engine.BalanceOf(addr(i))
		if err != nil {
			t.Fatalf("balance %d: %v", i, err)
		}
		if got.Cmp(giveMilli(100)) != 0 {
			t.Fatalf("receiver %d: expected exactly one share, got %s", i, got)
		}
	}
	info, err := engine.DistributionInfoOf()
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.InProgress || !info.Distributed {
		t.Fatalf("expected completed run, got %+v", info)
	}
}

// Value conservation: delivered shares plus failed amount plus remainder must
// equal the pool total that entered the run.
func TestDistributionConservesValue(t *testing.T) {
	env := newTestEnv(t)
	giver := addr(1)
	env.fund(t, giver, 1000)
	env.contribute(t, giver, 1000)
	for i := byte(2); i <= 8; i++ {
		env.enter(t, addr(i))
	}
	env.transport.reject[addr(4)] = true
	env.transport.reject[addr(7)] = true

	poolBefore := env.poolTotal(t)
	if err := env.engine.StartDistribution(distributorAddr); err != nil {
		t.Fatalf("start: %v", err)
	}

	share := new(big.Int).Quo(poolBefore, big.NewInt(7))
	delivered := new(big.Int).Mul(share, big.NewInt(5))
	failed := new(big.Int).Mul(share, big.NewInt(2))
	remainder := new(big.Int).Sub(poolBefore, new(big.Int).Mul(share, big.NewInt(7)))

	total := new(big.Int).Add(delivered, failed)
	total.Add(total, remainder)
	if total.Cmp(poolBefore) != 0 {
		t.Fatalf("value not conserved: %s != %s", total, poolBefore)
	}
	unclaimed, err := env.engine.UnclaimedFunds()
	if err != nil {
		t.Fatalf("unclaimed: %v", err)
	}
	if unclaimed.Cmp(failed) != 0 {
		t.Fatalf("expected unclaimed %s, got %s", failed, unclaimed)
	}
	// Failed shares stay in the vault until a retry delivers them.
	vaultWant := new(big.Int).Add(failed, remainder)
	if got := env.balance(t, vaultAddr); got.Cmp(vaultWant) != 0 {
		t.Fatalf("expected vault balance %s, got %s", vaultWant, got)
	}
}
