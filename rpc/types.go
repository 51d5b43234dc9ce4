package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"givepool/crypto"
)

type contributeParams struct {
	User      string `json:"user"`
	Amount    string `json:"amount"`
	PaidValue string `json:"paidValue"`
}

type withdrawParams struct {
	User   string `json:"user"`
	Amount string `json:"amount"`
}

type userParams struct {
	User string `json:"user"`
}

type callerParams struct {
	Caller string `json:"caller"`
}

type callerUserParams struct {
	Caller string `json:"caller"`
	User   string `json:"user"`
}

type callerReceiverParams struct {
	Caller   string `json:"caller"`
	Receiver string `json:"receiver"`
}

type receiverParams struct {
	Receiver string `json:"receiver"`
}

type addressParams struct {
	Address string `json:"address"`
}

type retryResult struct {
	Delivered bool `json:"delivered"`
}

type sweepResult struct {
	Attempted uint32 `json:"attempted"`
	Delivered uint32 `json:"delivered"`
}

type dailyStatsResult struct {
	Epoch            uint64 `json:"epoch"`
	ContributionWei  string `json:"contributionWei"`
	ReceiverEntries  uint32 `json:"receiverEntries"`
	ReceiverExits    uint32 `json:"receiverExits"`
	WithdrawalCount  uint32 `json:"withdrawalCount"`
	TransactionCount uint32 `json:"transactionCount"`
	IsReceiver       bool   `json:"isReceiver"`
}

type withdrawableResult struct {
	Address         string `json:"address"`
	WithdrawableWei string `json:"withdrawableWei"`
}

type withdrawalStatsResult struct {
	WithdrawalCount uint32 `json:"withdrawalCount"`
	DailyLimit      uint32 `json:"dailyLimit"`
	LastWithdrawal  int64  `json:"lastWithdrawal"`
	NextEligibleAt  int64  `json:"nextEligibleAt"`
}

type unclaimedResult struct {
	UnclaimedWei string `json:"unclaimedWei"`
}

type distributionInfoResult struct {
	Epoch           uint64 `json:"epoch"`
	WindowOpen      bool   `json:"windowOpen"`
	Distributed     bool   `json:"distributed"`
	NextWindowStart int64  `json:"nextWindowStart"`
	InProgress      bool   `json:"inProgress"`
	Cursor          uint64 `json:"cursor"`
	SnapshotSize    uint64 `json:"snapshotSize"`
	PoolTotalWei    string `json:"poolTotalWei"`
}

type failedTransferResult struct {
	Receiver   string `json:"receiver"`
	AmountWei  string `json:"amountWei"`
	FailedAt   int64  `json:"failedAt"`
	RetryCount uint32 `json:"retryCount"`
}

type receiverCountResult struct {
	Count uint64 `json:"count"`
}

type balanceResult struct {
	Address    string `json:"address"`
	BalanceWei string `json:"balanceWei"`
}

// decodeParams unmarshals the single object parameter every pool method takes.
func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected a single params object")
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

func parseAddr(field, value string) ([20]byte, error) {
	var out [20]byte
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return out, fmt.Errorf("%s: %w", field, err)
	}
	copy(out[:], addr.Bytes())
	return out, nil
}

func parseAmount(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("%s: amount required", field)
	}
	out, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%s: invalid wei amount %q", field, value)
	}
	return out, nil
}

func formatAddr(addr [20]byte) string {
	return crypto.NewAddress(crypto.GivePrefix, addr[:]).String()
}

func formatWei(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
