package pool

import (
	"errors"
	"fmt"
	"math/big"
	"time"
)

// Base unit scale: 1 GIVE = 1e18 wei.
var weiPerGive = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

func giveMilli(n int64) *big.Int {
	out := new(big.Int).Mul(big.NewInt(n), weiPerGive)
	return out.Quo(out, big.NewInt(1000))
}

// Params controls the limits and pacing applied to every pool interaction.
type Params struct {
	// Contribution bounds per call and per user per day.
	MinContributionWei      *big.Int
	MaxContributionWei      *big.Int
	MaxDailyContributionWei *big.Int

	// Withdrawal floor. The ceiling is whatever the user gave today.
	MinWithdrawalWei *big.Int

	// Distribution thresholds and batching.
	MinDistributableWei *big.Int
	MaxReceivers        uint64
	BatchSize           uint64

	// Daily action quotas per user.
	MaxDailyTransactions uint32
	MaxDailyEntries      uint32
	MaxDailyExits        uint32
	MaxDailyWithdrawals  uint32

	// Cooldown intervals in seconds.
	ActionCooldownSeconds       uint64
	ReceiverPoolCooldownSeconds uint64
	WithdrawalCooldownSeconds   uint64

	// Failed transfer retry schedule. The wait before attempt k is
	// RetryCooldownSeconds * 2^k.
	RetryCooldownSeconds   uint64
	MaxRetries             uint32
	MaxAutoRetriesPerSweep uint32

	// PayoutBudget caps the time any single delivery attempt may consume,
	// independent of the caller's own deadline.
	PayoutBudget time.Duration
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	return Params{
		MinContributionWei:          giveMilli(1),     // 0.001 GIVE
		MaxContributionWei:          giveMilli(1000),  // 1 GIVE
		MaxDailyContributionWei:     giveMilli(10000), // 10 GIVE
		MinWithdrawalWei:            giveMilli(1),
		MinDistributableWei:         giveMilli(10), // 0.01 GIVE
		MaxReceivers:                100,
		BatchSize:                   10,
		MaxDailyTransactions:        20,
		MaxDailyEntries:             3,
		MaxDailyExits:               3,
		MaxDailyWithdrawals:         3,
		ActionCooldownSeconds:       60,
		ReceiverPoolCooldownSeconds: 30,
		WithdrawalCooldownSeconds:   300,
		RetryCooldownSeconds:        3600,
		MaxRetries:                  5,
		MaxAutoRetriesPerSweep:      5,
		PayoutBudget:                50 * time.Millisecond,
	}
}

// Validate ensures the supplied parameters fall within safe operating ranges.
func (p Params) Validate() error {
	if p.MinContributionWei == nil || p.MinContributionWei.Sign() <= 0 {
		return errors.New("min contribution must be positive")
	}
	if p.MaxContributionWei == nil || p.MaxContributionWei.Cmp(p.MinContributionWei) < 0 {
		return errors.New("max contribution must be >= min contribution")
	}
	if p.MaxDailyContributionWei == nil || p.MaxDailyContributionWei.Cmp(p.MaxContributionWei) < 0 {
		return errors.New("daily contribution cap must be >= max contribution")
	}
	if p.MinWithdrawalWei == nil || p.MinWithdrawalWei.Sign() <= 0 {
		return errors.New("min withdrawal must be positive")
	}
	if p.MinDistributableWei == nil || p.MinDistributableWei.Sign() <= 0 {
		return errors.New("min distributable must be positive")
	}
	if p.MaxReceivers == 0 {
		return errors.New("max receivers must be positive")
	}
	if p.BatchSize == 0 {
		return errors.New("batch size must be positive")
	}
	if p.MaxDailyTransactions == 0 {
		return errors.New("daily transaction quota must be positive")
	}
	if p.MaxDailyEntries == 0 || p.MaxDailyExits == 0 || p.MaxDailyWithdrawals == 0 {
		return errors.New("daily action quotas must be positive")
	}
	if p.RetryCooldownSeconds == 0 {
		return errors.New("retry cooldown must be positive")
	}
	if p.MaxRetries == 0 {
		return errors.New("max retries must be positive")
	}
	if p.MaxAutoRetriesPerSweep == 0 {
		return errors.New("auto retry cap must be positive")
	}
	if p.PayoutBudget <= 0 {
		return errors.New("payout budget must be positive")
	}
	return nil
}

// TimePolicy derives epochs from wall-clock time and decides when the
// distribution window is open. TestMode keeps the window permanently open for
// test networks; it is a configuration toggle, never hardcoded.
type TimePolicy struct {
	DayLengthSeconds      uint64
	WindowOffsetSeconds   uint64
	WindowDurationSeconds uint64
	TestMode              bool
}

// DefaultTimePolicy opens the distribution window for the final hour of each
// UTC day.
func DefaultTimePolicy() TimePolicy {
	return TimePolicy{
		DayLengthSeconds:      86400,
		WindowOffsetSeconds:   82800,
		WindowDurationSeconds: 3600,
	}
}

// Validate ensures the window fits inside the epoch day.
func (p TimePolicy) Validate() error {
	if p.DayLengthSeconds == 0 {
		return errors.New("day length must be positive")
	}
	if p.WindowDurationSeconds == 0 {
		return errors.New("window duration must be positive")
	}
	if p.WindowOffsetSeconds >= p.DayLengthSeconds {
		return fmt.Errorf("window offset %d outside day length %d", p.WindowOffsetSeconds, p.DayLengthSeconds)
	}
	if p.WindowOffsetSeconds+p.WindowDurationSeconds > p.DayLengthSeconds {
		return errors.New("window must not cross the epoch boundary")
	}
	return nil
}

// Epoch returns the day counter for the supplied unix timestamp.
func (p TimePolicy) Epoch(now int64) uint64 {
	if now < 0 {
		return 0
	}
	return uint64(now) / p.DayLengthSeconds
}

// InWindow reports whether the distribution window is open at the supplied
// unix timestamp.
func (p TimePolicy) InWindow(now int64) bool {
	if p.TestMode {
		return true
	}
	if now < 0 {
		return false
	}
	offset := uint64(now) % p.DayLengthSeconds
	return offset >= p.WindowOffsetSeconds && offset < p.WindowOffsetSeconds+p.WindowDurationSeconds
}

// NextWindowStart returns the unix timestamp at which the next distribution
// window opens. When the window is currently open it returns the start of the
// ongoing window.
func (p TimePolicy) NextWindowStart(now int64) int64 {
	if p.TestMode {
		return now
	}
	if now < 0 {
		now = 0
	}
	dayStart := uint64(now) / p.DayLengthSeconds * p.DayLengthSeconds
	windowStart := dayStart + p.WindowOffsetSeconds
	if uint64(now) >= windowStart+p.WindowDurationSeconds {
		windowStart += p.DayLengthSeconds
	}
	return int64(windowStart)
}
