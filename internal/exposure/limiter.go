// Package exposure implements write-side risk limits for option creation.
//
// A single account writing against most of the pool concentrates settlement
// risk: one deep in-the-money exercise drains liquidity every other provider
// believed was shared. This package caps the notional any one holder may
// have locked and the overall share of pool value that may be reserved.
package exposure

import (
	"errors"

	"github.com/holiman/uint256"
)

var (
	// ErrAccountLimitExceeded is returned when a create would push a single
	// holder's aggregate locked notional beyond the per-account maximum.
	ErrAccountLimitExceeded = errors.New("exposure: per-account notional limit exceeded")

	// ErrUtilizationExceeded is returned when a create would push the pool's
	// locked share beyond the utilization ceiling.
	ErrUtilizationExceeded = errors.New("exposure: pool utilization limit exceeded")
)

// Limiter enforces notional exposure limits at option creation.
type Limiter struct {
	// MaxPerAccount is the maximum aggregate locked notional for any single
	// holder across their active options. Nil disables the check.
	MaxPerAccount *uint256.Int

	// MaxUtilizationPct is the ceiling on locked/total pool value, in
	// percent. Zero disables the check.
	MaxUtilizationPct uint64
}

// NewLimiter creates a limiter with the given per-account and utilization
// limits.
func NewLimiter(maxPerAccount *uint256.Int, maxUtilizationPct uint64) *Limiter {
	if maxUtilizationPct > 100 {
		maxUtilizationPct = 100
	}
	return &Limiter{
		MaxPerAccount:     maxPerAccount,
		MaxUtilizationPct: maxUtilizationPct,
	}
}

// CheckLimit validates whether locking amount more notional respects the
// limits.
//
// Parameters:
//   - amount: notional the new option would lock
//   - holderLocked: the holder's current aggregate locked notional
//   - totalLocked: pool-wide locked notional before this option
//   - poolTotal: total pool value
//
// Returns nil if the create is within limits, or an error naming the
// violated limit.
func (l *Limiter) CheckLimit(amount, holderLocked, totalLocked, poolTotal *uint256.Int) error {
	// 1. Per-account limit.
	if l.MaxPerAccount != nil {
		newHolder := new(uint256.Int).Add(holderLocked, amount)
		if newHolder.Gt(l.MaxPerAccount) {
			return ErrAccountLimitExceeded
		}
	}

	// 2. Utilization ceiling: (totalLocked + amount) * 100 <= poolTotal * pct.
	// Cross-multiplied to stay in integers.
	if l.MaxUtilizationPct > 0 {
		newLocked := new(uint256.Int).Add(totalLocked, amount)
		lhs := new(uint256.Int)
		if _, overflow := lhs.MulOverflow(newLocked, uint256.NewInt(100)); overflow {
			return ErrUtilizationExceeded
		}
		rhs := new(uint256.Int)
		if _, overflow := rhs.MulOverflow(poolTotal, uint256.NewInt(l.MaxUtilizationPct)); overflow {
			return nil
		}
		if lhs.Gt(rhs) {
			return ErrUtilizationExceeded
		}
	}

	return nil
}
