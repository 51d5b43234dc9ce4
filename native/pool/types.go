package pool

import "math/big"

// UserDailyRecord tracks a single user's pool activity within one epoch day.
// Records are created lazily on first touch; counters are zeroed when the
// record is first seen in a new epoch. Cooldown timestamps survive the reset
// so a fresh day never shortens a running cooldown.
type UserDailyRecord struct {
	ContributionWei  *big.Int `json:"contributionWei"`
	ReceiverEntries  uint32   `json:"receiverEntries"`
	ReceiverExits    uint32   `json:"receiverExits"`
	WithdrawalCount  uint32   `json:"withdrawalCount"`
	TransactionCount uint32   `json:"transactionCount"`
	LastResetDay     uint64   `json:"lastResetDay"`

	LastActionAt             int64 `json:"lastActionAt"`
	LastWithdrawalAt         int64 `json:"lastWithdrawalAt"`
	LastReceiverPoolActionAt int64 `json:"lastReceiverPoolActionAt"`
}

func newUserDailyRecord(epoch uint64) *UserDailyRecord {
	return &UserDailyRecord{
		ContributionWei: big.NewInt(0),
		LastResetDay:    epoch,
	}
}

func (r *UserDailyRecord) normalize() {
	if r.ContributionWei == nil {
		r.ContributionWei = big.NewInt(0)
	}
}

// resetForEpoch zeroes the daily counters when the record is stale. The
// transaction counter resets with the rest; leaving it behind would lock the
// user out permanently once the daily cap was hit.
func (r *UserDailyRecord) resetForEpoch(epoch uint64) {
	r.normalize()
	if r.LastResetDay == epoch {
		return
	}
	r.ContributionWei = big.NewInt(0)
	r.ReceiverEntries = 0
	r.ReceiverExits = 0
	r.WithdrawalCount = 0
	r.TransactionCount = 0
	r.LastResetDay = epoch
}

// Clone returns a deep copy of the record.
func (r *UserDailyRecord) Clone() *UserDailyRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.ContributionWei = big.NewInt(0)
	if r.ContributionWei != nil {
		out.ContributionWei.Set(r.ContributionWei)
	}
	return &out
}

// PoolAggregate holds the pool-wide accounting totals.
type PoolAggregate struct {
	PoolTotalWei          *big.Int `json:"poolTotalWei"`
	UnclaimedWei          *big.Int `json:"unclaimedWei"`
	LastDistributionEpoch uint64   `json:"lastDistributionEpoch"`
	DistributedOnce       bool     `json:"distributedOnce"`
}

func newPoolAggregate() *PoolAggregate {
	return &PoolAggregate{PoolTotalWei: big.NewInt(0), UnclaimedWei: big.NewInt(0)}
}

func (a *PoolAggregate) normalize() {
	if a.PoolTotalWei == nil {
		a.PoolTotalWei = big.NewInt(0)
	}
	if a.UnclaimedWei == nil {
		a.UnclaimedWei = big.NewInt(0)
	}
}

// Clone returns a deep copy of the aggregate.
func (a *PoolAggregate) Clone() *PoolAggregate {
	if a == nil {
		return nil
	}
	out := *a
	out.PoolTotalWei = big.NewInt(0)
	out.UnclaimedWei = big.NewInt(0)
	if a.PoolTotalWei != nil {
		out.PoolTotalWei.Set(a.PoolTotalWei)
	}
	if a.UnclaimedWei != nil {
		out.UnclaimedWei.Set(a.UnclaimedWei)
	}
	return &out
}

// distributedThisEpoch reports whether a distribution already finalized in the
// supplied epoch.
func (a *PoolAggregate) distributedThisEpoch(epoch uint64) bool {
	return a.DistributedOnce && a.LastDistributionEpoch == epoch
}

// FailedTransfer records a payout that could not be delivered. One record per
// receiver; a fresh failure for the same receiver overwrites the old record.
type FailedTransfer struct {
	Receiver   [20]byte `json:"receiver"`
	AmountWei  *big.Int `json:"amountWei"`
	FailedAt   int64    `json:"failedAt"`
	RetryCount uint32   `json:"retryCount"`
}

// Clone returns a deep copy of the record.
func (f *FailedTransfer) Clone() *FailedTransfer {
	if f == nil {
		return nil
	}
	out := *f
	out.AmountWei = big.NewInt(0)
	if f.AmountWei != nil {
		out.AmountWei.Set(f.AmountWei)
	}
	return &out
}

// distributionSnapshot is the immutable receiver list a distribution run works
// through, plus the cursor and running totals for the final summary.
type distributionSnapshot struct {
	Epoch           uint64     `json:"epoch"`
	Receivers       [][20]byte `json:"receivers"`
	Cursor          uint64     `json:"cursor"`
	ShareWei        *big.Int   `json:"shareWei"`
	InProgress      bool       `json:"inProgress"`
	Delivered       uint64     `json:"delivered"`
	FailedAmountWei *big.Int   `json:"failedAmountWei"`
}

func (s *distributionSnapshot) normalize() {
	if s.ShareWei == nil {
		s.ShareWei = big.NewInt(0)
	}
	if s.FailedAmountWei == nil {
		s.FailedAmountWei = big.NewInt(0)
	}
}

func (s *distributionSnapshot) size() uint64 {
	if s == nil {
		return 0
	}
	return uint64(len(s.Receivers))
}
