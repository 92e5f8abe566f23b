// Package options implements the option lifecycle engine: closed-form
// premium pricing, creation, exercise and expiry against the liquidity pool.
package options

import (
	"errors"
	"time"

	"github.com/holiman/uint256"

	"github.com/hedgex/options-engine/internal/fixedmath"
)

// OptionType distinguishes calls and puts. The numeric values follow the
// on-chain contract's enum, where 0 is invalid.
type OptionType uint8

const (
	TypeCall OptionType = 1
	TypePut  OptionType = 2
)

// Valid reports whether the type is a known option type.
func (t OptionType) Valid() bool {
	return t == TypeCall || t == TypePut
}

func (t OptionType) String() string {
	switch t {
	case TypeCall:
		return "call"
	case TypePut:
		return "put"
	default:
		return "invalid"
	}
}

// ErrInvalidType is returned for option types outside {call, put}.
var ErrInvalidType = errors.New("options: invalid option type")

// Fees is the premium breakdown for one option quote.
type Fees struct {
	SettlementFee *uint256.Int // percentage of notional, split admin/staking
	StrikeFee     *uint256.Int // intrinsic value when created in-the-money
	PeriodFee     *uint256.Int // time value, scales with sqrt(duration)
	Total         *uint256.Int
}

// Fees quotes the exact premium required to create an option. The truncation
// order of every term is pinned; do not reorder multiplications and
// divisions.
func (e *Engine) Fees(period time.Duration, amount, strike *uint256.Int, typ OptionType) (Fees, error) {
	if !typ.Valid() {
		return Fees{}, ErrInvalidType
	}
	round, err := e.provider.LatestRoundData()
	if err != nil {
		return Fees{}, err
	}
	return computeFees(period, amount, strike, round.Answer, typ, e.cfg)
}

func computeFees(period time.Duration, amount, strike, spot *uint256.Int, typ OptionType, cfg Config) (Fees, error) {
	if !typ.Valid() {
		return Fees{}, ErrInvalidType
	}
	settlement, err := settlementFee(amount, cfg.SettlementFeePercentage)
	if err != nil {
		return Fees{}, err
	}
	strikeF, err := strikeFee(amount, strike, spot, typ)
	if err != nil {
		return Fees{}, err
	}
	periodF, err := periodFee(period, amount, strike, spot, typ, cfg.ImpliedVolRate)
	if err != nil {
		return Fees{}, err
	}

	total, err := fixedmath.Add(settlement, strikeF)
	if err != nil {
		return Fees{}, err
	}
	total, err = fixedmath.Add(total, periodF)
	if err != nil {
		return Fees{}, err
	}
	return Fees{
		SettlementFee: settlement,
		StrikeFee:     strikeF,
		PeriodFee:     periodF,
		Total:         total,
	}, nil
}

// settlementFee = amount * pct / 100.
func settlementFee(amount *uint256.Int, pct uint64) (*uint256.Int, error) {
	return fixedmath.MulDiv(amount, uint256.NewInt(pct), uint256.NewInt(100))
}

// strikeFee is the intrinsic value charged when the option is created
// in-the-money: (strike-spot)*amount/spot for calls above spot,
// (spot-strike)*amount/spot for puts below spot, zero otherwise.
func strikeFee(amount, strike, spot *uint256.Int, typ OptionType) (*uint256.Int, error) {
	switch {
	case typ == TypeCall && strike.Gt(spot):
		diff := new(uint256.Int).Sub(strike, spot)
		return fixedmath.MulDiv(diff, amount, spot)
	case typ == TypePut && strike.Lt(spot):
		diff := new(uint256.Int).Sub(spot, strike)
		return fixedmath.MulDiv(diff, amount, spot)
	default:
		return new(uint256.Int), nil
	}
}

// periodFee is the time-value component:
//
//	call: amount * sqrt(period) * ivRate * strike / (spot  * PRICE_DECIMALS)
//	put:  amount * sqrt(period) * ivRate * spot   / (strike * PRICE_DECIMALS)
//
// The square-root-of-duration scaling is the standard diffusion heuristic;
// multiplications run left to right with one trailing division.
func periodFee(period time.Duration, amount, strike, spot *uint256.Int, typ OptionType, ivRate *uint256.Int) (*uint256.Int, error) {
	seconds := uint256.NewInt(uint64(period / time.Second))
	sqrtPeriod := fixedmath.Sqrt(seconds)

	num, den := strike, spot
	if typ == TypePut {
		num, den = spot, strike
	}

	v, err := fixedmath.Mul(amount, sqrtPeriod)
	if err != nil {
		return nil, err
	}
	v, err = fixedmath.Mul(v, ivRate)
	if err != nil {
		return nil, err
	}
	v, err = fixedmath.Mul(v, num)
	if err != nil {
		return nil, err
	}
	d, err := fixedmath.Mul(den, fixedmath.PriceDecimals)
	if err != nil {
		return nil, err
	}
	return fixedmath.Div(v, d)
}
