// Package fixedmath implements the fixed-point integer arithmetic primitives
// shared by option pricing and the staking profit accumulator.
//
// All monetary values use holiman/uint256 — never float64 for money. The
// ledger this engine mirrors has no non-integer types, so every ratio is an
// explicit multiply-then-divide over scaled integers, with the division
// performed last to keep truncation loss below one unit of the smallest
// denomination.
package fixedmath

import (
	"errors"

	"github.com/holiman/uint256"
)

var (
	// ErrOverflow is returned when a checked 256-bit multiply or add would wrap.
	ErrOverflow = errors.New("fixedmath: arithmetic overflow")

	// ErrDivisionByZero is returned when a divisor is zero.
	ErrDivisionByZero = errors.New("fixedmath: division by zero")
)

// PriceDecimals is the scale of oracle spot prices (8 decimal places).
var PriceDecimals = uint256.NewInt(1e8)

// Accuracy is the profit-per-share accumulator scale (1e30). Large enough
// that integer division error stays below one wei per share.
var Accuracy = MustFromDecimal("1000000000000000000000000000000")

// MustFromDecimal parses a base-10 integer literal into a uint256, panicking
// on malformed input. Intended for package-level constants.
func MustFromDecimal(s string) *uint256.Int {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Sqrt computes the integer square root of x using Newton's method with the
// exact iteration scheme the pricing formulas are pinned to:
//
//	result = x
//	k = x/2 + 1
//	while k < result { result = k; k = (x/k + k) / 2 }
//
// The iteration count on edge inputs affects premiums by design, so this must
// not be replaced by a library sqrt that rounds differently.
func Sqrt(x *uint256.Int) *uint256.Int {
	result := new(uint256.Int).Set(x)
	k := new(uint256.Int).Rsh(x, 1)
	k.AddUint64(k, 1)

	quo := new(uint256.Int)
	for k.Lt(result) {
		result.Set(k)
		quo.Div(x, k)
		k.Add(quo, k)
		k.Rsh(k, 1)
	}
	return result
}

// Mul returns a*b, failing with ErrOverflow if the product does not fit in
// 256 bits. The on-chain ledger reverts on overflow rather than wrapping,
// and fee chains rely on that.
func Mul(a, b *uint256.Int) (*uint256.Int, error) {
	p, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return p, nil
}

// Add returns a+b with the same overflow discipline as Mul.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	s, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return s, nil
}

// Div returns a/b truncated toward zero.
func Div(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, ErrDivisionByZero
	}
	return new(uint256.Int).Div(a, b), nil
}

// DivCeil returns ceil(a/b). Used when burning pool shares so rounding never
// favors the withdrawer over remaining shareholders.
func DivCeil(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, ErrDivisionByZero
	}
	q := new(uint256.Int)
	m := new(uint256.Int)
	q.DivMod(a, b, m)
	if !m.IsZero() {
		q.AddUint64(q, 1)
	}
	return q, nil
}

// MulDiv returns a*b/den with the multiply performed first at full 256-bit
// width and checked for overflow, then a single truncating division.
func MulDiv(a, b, den *uint256.Int) (*uint256.Int, error) {
	p, err := Mul(a, b)
	if err != nil {
		return nil, err
	}
	return Div(p, den)
}
