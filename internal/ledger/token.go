package ledger

import (
	"errors"

	"github.com/holiman/uint256"
)

var (
	// ErrInsufficientAllowance is returned when transferFrom exceeds the
	// spender's approved allowance.
	ErrInsufficientAllowance = errors.New("ledger: insufficient allowance")

	// ErrBurnExceedsBalance preserves the contract's revert wording for burns that
	// exceed the holder's balance.
	ErrBurnExceedsBalance = errors.New("ledger: burn amount exceeds balance")
)

// Token is a fungible token ledger with allowance semantics. The protocol
// token and the pool's share token both expose this shape.
type Token struct {
	symbol      string
	balances    map[string]*uint256.Int
	allowances  map[string]map[string]*uint256.Int
	totalSupply *uint256.Int
}

// NewToken creates an empty token ledger.
func NewToken(symbol string) *Token {
	return &Token{
		symbol:      symbol,
		balances:    make(map[string]*uint256.Int),
		allowances:  make(map[string]map[string]*uint256.Int),
		totalSupply: new(uint256.Int),
	}
}

// Symbol returns the token's symbol.
func (t *Token) Symbol() string { return t.symbol }

// TotalSupply returns a copy of the total supply.
func (t *Token) TotalSupply() *uint256.Int {
	return new(uint256.Int).Set(t.totalSupply)
}

// BalanceOf returns a copy of the holder's balance.
func (t *Token) BalanceOf(acct string) *uint256.Int {
	if b, ok := t.balances[acct]; ok {
		return new(uint256.Int).Set(b)
	}
	return new(uint256.Int)
}

// Mint credits new tokens to an account and grows the supply.
func (t *Token) Mint(to string, amount *uint256.Int) error {
	if to == "" {
		return ErrZeroAccount
	}
	t.credit(to, amount)
	t.totalSupply.Add(t.totalSupply, amount)
	return nil
}

// Burn destroys tokens held by an account, shrinking the supply.
func (t *Token) Burn(from string, amount *uint256.Int) error {
	b, ok := t.balances[from]
	if !ok || b.Lt(amount) {
		return ErrBurnExceedsBalance
	}
	b.Sub(b, amount)
	t.totalSupply.Sub(t.totalSupply, amount)
	return nil
}

// Transfer moves tokens from the caller's balance.
func (t *Token) Transfer(from, to string, amount *uint256.Int) error {
	if from == "" || to == "" {
		return ErrZeroAccount
	}
	b, ok := t.balances[from]
	if !ok || b.Lt(amount) {
		return ErrInsufficientBalance
	}
	b.Sub(b, amount)
	t.credit(to, amount)
	return nil
}

// Approve sets the spender's allowance over the owner's tokens.
func (t *Token) Approve(owner, spender string, amount *uint256.Int) error {
	if owner == "" || spender == "" {
		return ErrZeroAccount
	}
	m, ok := t.allowances[owner]
	if !ok {
		m = make(map[string]*uint256.Int)
		t.allowances[owner] = m
	}
	m[spender] = new(uint256.Int).Set(amount)
	return nil
}

// Allowance returns a copy of the spender's remaining allowance.
func (t *Token) Allowance(owner, spender string) *uint256.Int {
	if m, ok := t.allowances[owner]; ok {
		if a, ok := m[spender]; ok {
			return new(uint256.Int).Set(a)
		}
	}
	return new(uint256.Int)
}

// TransferFrom moves tokens on behalf of the owner, consuming allowance.
// The enclosing protocol operation reverts if this fails.
func (t *Token) TransferFrom(spender, from, to string, amount *uint256.Int) error {
	a := t.allowanceRef(from, spender)
	if a == nil || a.Lt(amount) {
		return ErrInsufficientAllowance
	}
	if err := t.Transfer(from, to, amount); err != nil {
		return err
	}
	a.Sub(a, amount)
	return nil
}

func (t *Token) allowanceRef(owner, spender string) *uint256.Int {
	if m, ok := t.allowances[owner]; ok {
		return m[spender]
	}
	return nil
}

func (t *Token) credit(to string, amount *uint256.Int) {
	if b, ok := t.balances[to]; ok {
		b.Add(b, amount)
		return
	}
	t.balances[to] = new(uint256.Int).Set(amount)
}
