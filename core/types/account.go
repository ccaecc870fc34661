package types

import "math/big"

// Account tracks the base-asset holdings for one protocol participant or
// module treasury. Balances are denominated in wei-scale integers to keep the
// accounting exact.
type Account struct {
	Nonce   uint64   `json:"nonce"`
	Balance *big.Int `json:"balance"`
}

// NewAccount returns an account with a zeroed balance.
func NewAccount() *Account {
	return &Account{Balance: big.NewInt(0)}
}
