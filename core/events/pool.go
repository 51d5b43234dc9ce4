package events

import (
	"math/big"
	"strconv"

	"givepool/core/types"
	"givepool/crypto"
)

const (
	TypeContributionRecorded  = "pool.contribution.recorded"
	TypeContributionWithdrawn = "pool.contribution.withdrawn"
	TypeReceiverEntered       = "pool.receiver.entered"
	TypeReceiverLeft          = "pool.receiver.left"
	TypeDistributionStarted   = "pool.distribution.started"
	TypeDistributionCompleted = "pool.distribution.completed"
	TypeDistributionStopped   = "pool.distribution.stopped"
	TypePayoutDelivered       = "pool.payout.delivered"
	TypePayoutFailed          = "pool.payout.failed"
)

func formatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}

func formatAddr(addr [20]byte) string {
	return crypto.NewAddress(crypto.GivePrefix, addr[:]).String()
}

func uintToString(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func boolToString(v bool) string {
	return strconv.FormatBool(v)
}

// ContributionRecorded is emitted when a contribution is credited to the pool.
type ContributionRecorded struct {
	User      [20]byte
	Amount    *big.Int
	PoolTotal *big.Int
	Epoch     uint64
}

func (ContributionRecorded) EventType() string { return TypeContributionRecorded }

func (e ContributionRecorded) Event() *types.Event {
	return &types.Event{
		Type: TypeContributionRecorded,
		Attributes: map[string]string{
			"user":      formatAddr(e.User),
			"amount":    formatAmount(e.Amount),
			"poolTotal": formatAmount(e.PoolTotal),
			"epoch":     uintToString(e.Epoch),
		},
	}
}

// ContributionWithdrawn is emitted when a same-day contribution is paid back out.
type ContributionWithdrawn struct {
	User      [20]byte
	Amount    *big.Int
	PoolTotal *big.Int
}

func (ContributionWithdrawn) EventType() string { return TypeContributionWithdrawn }

func (e ContributionWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeContributionWithdrawn,
		Attributes: map[string]string{
			"user":      formatAddr(e.User),
			"amount":    formatAmount(e.Amount),
			"poolTotal": formatAmount(e.PoolTotal),
		},
	}
}

// ReceiverEntered is emitted when a user registers for the receiver pool.
type ReceiverEntered struct {
	User  [20]byte
	Count uint64
}

func (ReceiverEntered) EventType() string { return TypeReceiverEntered }

func (e ReceiverEntered) Event() *types.Event {
	return &types.Event{
		Type: TypeReceiverEntered,
		Attributes: map[string]string{
			"user":  formatAddr(e.User),
			"count": uintToString(e.Count),
		},
	}
}

// ReceiverLeft is emitted when a user leaves the receiver pool. Forced marks a
// privileged emergency exit.
type ReceiverLeft struct {
	User   [20]byte
	Count  uint64
	Forced bool
}

func (ReceiverLeft) EventType() string { return TypeReceiverLeft }

func (e ReceiverLeft) Event() *types.Event {
	return &types.Event{
		Type: TypeReceiverLeft,
		Attributes: map[string]string{
			"user":   formatAddr(e.User),
			"count":  uintToString(e.Count),
			"forced": boolToString(e.Forced),
		},
	}
}

// DistributionStarted is emitted once a snapshot has been taken and the first
// batch is about to run.
type DistributionStarted struct {
	Epoch     uint64
	Receivers uint64
	Share     *big.Int
	PoolTotal *big.Int
}

func (DistributionStarted) EventType() string { return TypeDistributionStarted }

func (e DistributionStarted) Event() *types.Event {
	return &types.Event{
		Type: TypeDistributionStarted,
		Attributes: map[string]string{
			"epoch":     uintToString(e.Epoch),
			"receivers": uintToString(e.Receivers),
			"share":     formatAmount(e.Share),
			"poolTotal": formatAmount(e.PoolTotal),
		},
	}
}

// DistributionCompleted is emitted when the cursor drains the snapshot.
type DistributionCompleted struct {
	Epoch        uint64
	Delivered    uint64
	FailedAmount *big.Int
	Remainder    *big.Int
}

func (DistributionCompleted) EventType() string { return TypeDistributionCompleted }

func (e DistributionCompleted) Event() *types.Event {
	return &types.Event{
		Type: TypeDistributionCompleted,
		Attributes: map[string]string{
			"epoch":        uintToString(e.Epoch),
			"delivered":    uintToString(e.Delivered),
			"failedAmount": formatAmount(e.FailedAmount),
			"remainder":    formatAmount(e.Remainder),
		},
	}
}

// DistributionStopped is emitted on an emergency stop before the snapshot is
// drained.
type DistributionStopped struct {
	Epoch  uint64
	Cursor uint64
}

func (DistributionStopped) EventType() string { return TypeDistributionStopped }

func (e DistributionStopped) Event() *types.Event {
	return &types.Event{
		Type: TypeDistributionStopped,
		Attributes: map[string]string{
			"epoch":  uintToString(e.Epoch),
			"cursor": uintToString(e.Cursor),
		},
	}
}

// PayoutDelivered is emitted whenever a share reaches a receiver, either in a
// batch or through the retry registry.
type PayoutDelivered struct {
	Receiver [20]byte
	Amount   *big.Int
	Retry    bool
}

func (PayoutDelivered) EventType() string { return TypePayoutDelivered }

func (e PayoutDelivered) Event() *types.Event {
	return &types.Event{
		Type: TypePayoutDelivered,
		Attributes: map[string]string{
			"receiver": formatAddr(e.Receiver),
			"amount":   formatAmount(e.Amount),
			"retry":    boolToString(e.Retry),
		},
	}
}

// PayoutFailed is emitted when a delivery attempt fails and a failed transfer
// record is written or refreshed.
type PayoutFailed struct {
	Receiver   [20]byte
	Amount     *big.Int
	RetryCount uint32
}

func (PayoutFailed) EventType() string { return TypePayoutFailed }

func (e PayoutFailed) Event() *types.Event {
	return &types.Event{
		Type: TypePayoutFailed,
		Attributes: map[string]string{
			"receiver":   formatAddr(e.Receiver),
			"amount":     formatAmount(e.Amount),
			"retryCount": uintToString(uint64(e.RetryCount)),
		},
	}
}
