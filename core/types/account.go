package types

import "math/big"

// Account tracks the spendable balance held for a pool participant or the
// pool vault itself. Balances are denominated in base units (1e18 = 1 GIVE).
type Account struct {
	Nonce       uint64   `json:"nonce"`
	BalanceGive *big.Int `json:"balanceGive"`
}

// EnsureBalances normalises nil balance pointers so callers can mutate freely.
func (a *Account) EnsureBalances() {
	if a == nil {
		return
	}
	if a.BalanceGive == nil {
		a.BalanceGive = big.NewInt(0)
	}
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := &Account{Nonce: a.Nonce, BalanceGive: big.NewInt(0)}
	if a.BalanceGive != nil {
		out.BalanceGive = new(big.Int).Set(a.BalanceGive)
	}
	return out
}
