package pool

import (
	"math/big"
	"sync"
	"time"

	"givepool/core/events"
	"givepool/core/types"
	"givepool/observability/metrics"
)

// Roles consumed from the injected authorization capability.
const (
	RoleDistributor = "ROLE_DISTRIBUTOR"
	RoleSteward     = "ROLE_STEWARD"
)

// RoleChecker answers the yes/no capability question for privileged calls.
type RoleChecker interface {
	HasRole(addr [20]byte, role string) bool
}

// StatsSink receives opaque notifications about giving and receiving activity.
// The pool treats it as a black box.
type StatsSink interface {
	Update(user [20]byte, isGiving bool, amount *big.Int)
}

// NoopStats discards all notifications.
type NoopStats struct{}

// Update implements StatsSink.
func (NoopStats) Update([20]byte, bool, *big.Int) {}

type poolEvent struct {
	evt *types.Event
}

func (e poolEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e poolEvent) Event() *types.Event { return e.evt }

// Engine serialises every mutating pool operation. Each call executes to
// completion under the engine lock; validation, authorization and quota
// failures leave no partial state behind.
type Engine struct {
	mu        sync.Mutex
	store     *Store
	params    Params
	policy    TimePolicy
	vault     [20]byte
	emitter   events.Emitter
	nowFn     func() int64
	auth      RoleChecker
	stats     StatsSink
	transport PayoutTransport
	telemetry *metrics.PoolMetrics
}

// NewEngine constructs a pool engine over the supplied store. The default
// transport moves value between ledger accounts; collaborators can be swapped
// via the setters before the engine is put to work.
func NewEngine(store *Store, params Params, policy TimePolicy, vault [20]byte) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		store:     store,
		params:    params,
		policy:    policy,
		vault:     vault,
		emitter:   events.NoopEmitter{},
		nowFn:     func() int64 { return time.Now().Unix() },
		stats:     NoopStats{},
		transport: NewLedgerTransport(store, vault),
		telemetry: metrics.Pool(),
	}, nil
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetRoleChecker configures the authorization capability. With none set every
// privileged call is rejected.
func (e *Engine) SetRoleChecker(auth RoleChecker) { e.auth = auth }

// SetStatsSink configures the stats collaborator. Passing nil resets to a
// no-op.
func (e *Engine) SetStatsSink(sink StatsSink) {
	if sink == nil {
		e.stats = NoopStats{}
		return
	}
	e.stats = sink
}

// SetTransport overrides the payout transport. Passing nil restores the
// ledger-backed default.
func (e *Engine) SetTransport(t PayoutTransport) {
	if t == nil {
		e.transport = NewLedgerTransport(e.store, e.vault)
		return
	}
	e.transport = t
}

// Vault returns the pool vault address.
func (e *Engine) Vault() [20]byte { return e.vault }

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emit(evt interface {
	EventType() string
	Event() *types.Event
}) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(poolEvent{evt: evt.Event()})
}

func (e *Engine) requireRole(caller [20]byte, role string) error {
	if e.auth == nil || !e.auth.HasRole(caller, role) {
		return ErrUnauthorized
	}
	return nil
}

func isZeroAddr(addr [20]byte) bool {
	return addr == ([20]byte{})
}

// requireIdle rejects ledger mutations while a distribution run holds a
// snapshot; pool totals are in flux until finalize or emergency stop. Lock
// held.
func (e *Engine) requireIdle() error {
	snap, ok, err := e.store.Snapshot()
	if err != nil {
		return err
	}
	if ok && snap.InProgress {
		return ErrDistributionInProgress
	}
	return nil
}

// loadRecord fetches a user's daily record, creating it lazily and applying
// the epoch reset when the stored record is stale.
func (e *Engine) loadRecord(user [20]byte, epoch uint64) (*UserDailyRecord, error) {
	rec, ok, err := e.store.UserRecord(user)
	if err != nil {
		return nil, err
	}
	if !ok {
		return newUserDailyRecord(epoch), nil
	}
	rec.resetForEpoch(epoch)
	return rec, nil
}

func weiGauge(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}

func (e *Engine) syncGauges(agg *PoolAggregate) {
	if agg != nil {
		e.telemetry.SetPoolTotal(weiGauge(agg.PoolTotalWei))
		e.telemetry.SetUnclaimed(weiGauge(agg.UnclaimedWei))
	}
	if n, err := e.store.ReceiverCount(); err == nil {
		e.telemetry.SetReceiverCount(float64(n))
	}
	if idx, err := e.store.FailedIndex(); err == nil {
		e.telemetry.SetFailedOutstanding(float64(len(idx)))
	}
}

// --- Read-only queries ---

// DailyStats reports the caller-visible view of a user's daily record. A
// record from a previous epoch reads as zeroed without being rewritten.
type DailyStats struct {
	Epoch            uint64
	ContributionWei  *big.Int
	ReceiverEntries  uint32
	ReceiverExits    uint32
	WithdrawalCount  uint32
	TransactionCount uint32
	IsReceiver       bool
}

// DailyStatsOf returns the user's activity for the current epoch.
func (e *Engine) DailyStatsOf(user [20]byte) (*DailyStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	epoch := e.policy.Epoch(e.now())
	rec, err := e.loadRecord(user, epoch)
	if err != nil {
		return nil, err
	}
	isRecv, err := e.store.IsReceiver(user)
	if err != nil {
		return nil, err
	}
	return &DailyStats{
		Epoch:            epoch,
		ContributionWei:  new(big.Int).Set(rec.ContributionWei),
		ReceiverEntries:  rec.ReceiverEntries,
		ReceiverExits:    rec.ReceiverExits,
		WithdrawalCount:  rec.WithdrawalCount,
		TransactionCount: rec.TransactionCount,
		IsReceiver:       isRecv,
	}, nil
}

// Withdrawable returns how much the user could withdraw right now, which is
// whatever remains of today's contribution.
func (e *Engine) Withdrawable(user [20]byte) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, err := e.loadRecord(user, e.policy.Epoch(e.now()))
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(rec.ContributionWei), nil
}

// WithdrawalStats reports quota and cooldown standing for withdrawals.
type WithdrawalStats struct {
	WithdrawalCount uint32
	DailyLimit      uint32
	LastWithdrawal  int64
	NextEligibleAt  int64
}

// WithdrawalStatsOf returns the user's withdrawal standing.
func (e *Engine) WithdrawalStatsOf(user [20]byte) (*WithdrawalStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, err := e.loadRecord(user, e.policy.Epoch(e.now()))
	if err != nil {
		return nil, err
	}
	next := int64(0)
	if rec.LastWithdrawalAt > 0 {
		next = rec.LastWithdrawalAt + int64(e.params.WithdrawalCooldownSeconds)
	}
	return &WithdrawalStats{
		WithdrawalCount: rec.WithdrawalCount,
		DailyLimit:      e.params.MaxDailyWithdrawals,
		LastWithdrawal:  rec.LastWithdrawalAt,
		NextEligibleAt:  next,
	}, nil
}

// UnclaimedFunds returns the running total owed to receivers with failed
// payouts.
func (e *Engine) UnclaimedFunds() (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	agg, err := e.store.Aggregate()
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(agg.UnclaimedWei), nil
}

// DistributionInfo summarises the distribution state machine for operators.
type DistributionInfo struct {
	Epoch           uint64
	WindowOpen      bool
	Distributed     bool
	NextWindowStart int64
	InProgress      bool
	Cursor          uint64
	SnapshotSize    uint64
	PoolTotalWei    *big.Int
}

// DistributionInfoOf reports the current window, epoch and run state.
func (e *Engine) DistributionInfoOf() (*DistributionInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	agg, err := e.store.Aggregate()
	if err != nil {
		return nil, err
	}
	epoch := e.policy.Epoch(now)
	info := &DistributionInfo{
		Epoch:           epoch,
		WindowOpen:      e.policy.InWindow(now),
		Distributed:     agg.distributedThisEpoch(epoch),
		NextWindowStart: e.policy.NextWindowStart(now),
		PoolTotalWei:    new(big.Int).Set(agg.PoolTotalWei),
	}
	snap, ok, err := e.store.Snapshot()
	if err != nil {
		return nil, err
	}
	if ok && snap.InProgress {
		info.InProgress = true
		info.Cursor = snap.Cursor
		info.SnapshotSize = snap.size()
	}
	return info, nil
}

// FailedTransferOf returns a copy of the outstanding failed transfer for the
// receiver, or nil when none exists.
func (e *Engine) FailedTransferOf(receiver [20]byte) (*FailedTransfer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok, err := e.store.FailedTransfer(receiver)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return rec.Clone(), nil
}

// ReceiverCount returns the live receiver set size.
func (e *Engine) ReceiverCount() (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.ReceiverCount()
}

// BalanceOf returns the ledger balance for an address.
func (e *Engine) BalanceOf(addr [20]byte) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	acc, err := e.store.Account(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(acc.BalanceGive), nil
}

// Credit adds balance to an address outside the pool accounting. Used for
// genesis-style allocations on test networks.
func (e *Engine) Credit(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrAmountBounds
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	acc, err := e.store.Account(addr)
	if err != nil {
		return err
	}
	acc.BalanceGive = new(big.Int).Add(acc.BalanceGive, amount)
	return e.store.PutAccount(addr, acc)
}
