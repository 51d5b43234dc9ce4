package pool

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"givepool/core/events"
	"givepool/core/types"
	"givepool/storage"
)

func addr(index byte) [20]byte {
	var out [20]byte
	out[19] = index
	return out
}

var (
	vaultAddr       = addr(0xFF)
	distributorAddr = addr(0xFE)
	stewardAddr     = addr(0xFD)
)

type roleTable map[[20]byte]map[string]bool

func (t roleTable) HasRole(addr [20]byte, role string) bool {
	roles, ok := t[addr]
	if !ok {
		return false
	}
	return roles[role]
}

type eventRecorder struct {
	events []*types.Event
}

func (r *eventRecorder) Emit(evt events.Event) {
	typed, ok := evt.(interface{ Event() *types.Event })
	if !ok {
		return
	}
	r.events = append(r.events, typed.Event())
}

func (r *eventRecorder) count(eventType string) int {
	n := 0
	for _, evt := range r.events {
		if evt.Type == eventType {
			n++
		}
	}
	return n
}

func (r *eventRecorder) last(eventType string) *types.Event {
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == eventType {
			return r.events[i]
		}
	}
	return nil
}

// rejectTransport fails delivery for flagged receivers and delegates the rest
// to the ledger transport.
type rejectTransport struct {
	inner  PayoutTransport
	reject map[[20]byte]bool
}

func (t *rejectTransport) Pay(ctx context.Context, to [20]byte, amount *big.Int) error {
	if t.reject[to] {
		return errors.New("receiver rejected payment")
	}
	return t.inner.Pay(ctx, to, amount)
}

type testEnv struct {
	engine    *Engine
	store     *Store
	events    *eventRecorder
	transport *rejectTransport
	now       int64
}

func (env *testEnv) advance(seconds int64) {
	env.now += seconds
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, DefaultParams())
}

func newTestEnvWith(t *testing.T, params Params) *testEnv {
	t.Helper()
	store := NewStore(storage.NewMemDB())
	policy := DefaultTimePolicy()
	policy.TestMode = true
	engine, err := NewEngine(store, params, policy, vaultAddr)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	env := &testEnv{
		engine: engine,
		store:  store,
		events: &eventRecorder{},
		now:    1_700_000_000,
	}
	env.transport = &rejectTransport{
		inner:  NewLedgerTransport(store, vaultAddr),
		reject: make(map[[20]byte]bool),
	}
	engine.SetEmitter(env.events)
	engine.SetTransport(env.transport)
	engine.SetNowFunc(func() int64 { return env.now })
	engine.SetRoleChecker(roleTable{
		distributorAddr: {RoleDistributor: true},
		stewardAddr:     {RoleSteward: true},
	})
	return env
}

func give(t *testing.T, milli int64) *big.Int {
	t.Helper()
	return giveMilli(milli)
}

func (env *testEnv) fund(t *testing.T, user [20]byte, milli int64) {
	t.Helper()
	if err := env.engine.Credit(user, giveMilli(milli)); err != nil {
		t.Fatalf("credit %x: %v", user, err)
	}
}

func (env *testEnv) contribute(t *testing.T, user [20]byte, milli int64) {
	t.Helper()
	amount := giveMilli(milli)
	if err := env.engine.Contribute(user, amount, amount); err != nil {
		t.Fatalf("contribute %x: %v", user, err)
	}
}

func (env *testEnv) enter(t *testing.T, user [20]byte) {
	t.Helper()
	if err := env.engine.EnterReceiverPool(user); err != nil {
		t.Fatalf("enter %x: %v", user, err)
	}
}

func (env *testEnv) poolTotal(t *testing.T) *big.Int {
	t.Helper()
	agg, err := env.store.Aggregate()
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	return agg.PoolTotalWei
}

func (env *testEnv) balance(t *testing.T, user [20]byte) *big.Int {
	t.Helper()
	got, err := env.engine.BalanceOf(user)
	if err != nil {
		t.Fatalf("balance of %x: %v", user, err)
	}
	return got
}

func TestEngineRejectsInvalidParams(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	params := DefaultParams()
	params.BatchSize = 0
	if _, err := NewEngine(store, params, DefaultTimePolicy(), vaultAddr); err == nil {
		t.Fatal("expected params validation error")
	}
	policy := DefaultTimePolicy()
	policy.WindowOffsetSeconds = policy.DayLengthSeconds
	if _, err := NewEngine(store, DefaultParams(), policy, vaultAddr); err == nil {
		t.Fatal("expected policy validation error")
	}
}

func TestPrivilegedCallsRequireRoles(t *testing.T) {
	env := newTestEnv(t)
	nobody := addr(9)

	if err := env.engine.StartDistribution(nobody); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("start: expected ErrUnauthorized, got %v", err)
	}
	if err := env.engine.EmergencyExit(nobody, addr(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("emergency exit: expected ErrUnauthorized, got %v", err)
	}
	if _, err := env.engine.RetryFailedTransfer(nobody, addr(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("retry: expected ErrUnauthorized, got %v", err)
	}
	// The distributor role does not grant steward powers.
	if err := env.engine.EmergencyExit(distributorAddr, addr(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("cross-role: expected ErrUnauthorized, got %v", err)
	}
}

func TestStatePersistsAcrossEngineRestart(t *testing.T) {
	db := storage.NewMemDB()
	store := NewStore(db)
	policy := DefaultTimePolicy()
	policy.TestMode = true
	engine, err := NewEngine(store, DefaultParams(), policy, vaultAddr)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	now := int64(1_700_000_000)
	engine.SetNowFunc(func() int64 { return now })

	user := addr(1)
	if err := engine.Credit(user, giveMilli(500)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	amount := giveMilli(500)
	if err := engine.Contribute(user, amount, amount); err != nil {
		t.Fatalf("contribute: %v", err)
	}

	// A fresh store over the same database sees the same state.
	reloaded, err := NewEngine(NewStore(db), DefaultParams(), policy, vaultAddr)
	if err != nil {
		t.Fatalf("reload engine: %v", err)
	}
	reloaded.SetNowFunc(func() int64 { return now })
	total, err := reloaded.UnclaimedFunds()
	if err != nil {
		t.Fatalf("unclaimed: %v", err)
	}
	if total.Sign() != 0 {
		t.Fatalf("expected zero unclaimed, got %s", total)
	}
	stats, err := reloaded.DailyStatsOf(user)
	if err != nil {
		t.Fatalf("daily stats: %v", err)
	}
	if stats.ContributionWei.Cmp(amount) != 0 {
		t.Fatalf("expected contribution %s, got %s", amount, stats.ContributionWei)
	}
}
