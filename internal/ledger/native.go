// Package ledger models the external ledgers the options protocol settles
// against: the native value ledger, a fungible token ledger, the option
// ownership (NFT) ledger and the role registry. The accounting core treats
// these as collaborators — every payout, fee and stake movement goes through
// them, and a failed transfer rejects the enclosing operation.
package ledger

import (
	"errors"

	"github.com/holiman/uint256"
)

var (
	// ErrInsufficientBalance is returned when a transfer or burn exceeds the
	// sender's balance.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")

	// ErrZeroAccount is returned when an operation names an empty account.
	ErrZeroAccount = errors.New("ledger: empty account")
)

// Native is the base-asset ledger (the chain's own coin). Options premiums,
// pool collateral and native staking profit all settle here.
type Native struct {
	balances map[string]*uint256.Int
}

// NewNative creates an empty native ledger.
func NewNative() *Native {
	return &Native{balances: make(map[string]*uint256.Int)}
}

// Mint credits freshly created value to an account. Used by genesis/test
// funding and by deposits entering the system from outside.
func (n *Native) Mint(to string, amount *uint256.Int) error {
	if to == "" {
		return ErrZeroAccount
	}
	n.credit(to, amount)
	return nil
}

// BalanceOf returns a copy of the account's balance.
func (n *Native) BalanceOf(acct string) *uint256.Int {
	if b, ok := n.balances[acct]; ok {
		return new(uint256.Int).Set(b)
	}
	return new(uint256.Int)
}

// Transfer moves value between accounts, rejecting on insufficient balance.
func (n *Native) Transfer(from, to string, amount *uint256.Int) error {
	if from == "" || to == "" {
		return ErrZeroAccount
	}
	b, ok := n.balances[from]
	if !ok || b.Lt(amount) {
		return ErrInsufficientBalance
	}
	b.Sub(b, amount)
	n.credit(to, amount)
	return nil
}

func (n *Native) credit(to string, amount *uint256.Int) {
	if b, ok := n.balances[to]; ok {
		b.Add(b, amount)
		return
	}
	n.balances[to] = new(uint256.Int).Set(amount)
}
