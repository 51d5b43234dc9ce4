package pool

import (
	"context"
	"errors"
	"math/big"
)

// PayoutTransport attempts to move value to a receiver and may fail. Batch and
// retry callers run every attempt under a fixed deadline so a hostile or
// broken receiver cannot stall the rest of the run.
type PayoutTransport interface {
	Pay(ctx context.Context, to [20]byte, amount *big.Int) error
}

// LedgerTransport delivers payouts by moving balance from the vault account to
// the receiver account inside the same ledger.
type LedgerTransport struct {
	store *Store
	vault [20]byte
}

// NewLedgerTransport builds the default transport over the pool store.
func NewLedgerTransport(store *Store, vault [20]byte) *LedgerTransport {
	return &LedgerTransport{store: store, vault: vault}
}

// Pay implements PayoutTransport. The vault account is debited only when the
// receiver credit succeeds, so a failure leaves both balances untouched.
func (t *LedgerTransport) Pay(ctx context.Context, to [20]byte, amount *big.Int) error {
	if t == nil || t.store == nil {
		return errors.New("pool transport: not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return errors.New("pool transport: amount must be positive")
	}
	vaultAcc, err := t.store.Account(t.vault)
	if err != nil {
		return err
	}
	if vaultAcc.BalanceGive.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	recvAcc, err := t.store.Account(to)
	if err != nil {
		return err
	}
	vaultAcc.BalanceGive = new(big.Int).Sub(vaultAcc.BalanceGive, amount)
	recvAcc.BalanceGive = new(big.Int).Add(recvAcc.BalanceGive, amount)
	if err := t.store.PutAccount(t.vault, vaultAcc); err != nil {
		return err
	}
	return t.store.PutAccount(to, recvAcc)
}
