// Package model defines the wire and persistence representations of protocol
// state. Raw 256-bit ledger amounts travel as decimal strings; display fields
// use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Option is the persisted snapshot of one option position. Amounts are wei
// strings (18 decimals); Strike and display fields are converted decimals.
type Option struct {
	ID           uint64          `json:"id" db:"id"`
	Holder       string          `json:"holder" db:"holder"`
	Type         string          `json:"type" db:"type"`   // "call" or "put"
	State        string          `json:"state" db:"state"` // "active", "exercised", "expired"
	Strike       decimal.Decimal `json:"strike" db:"strike"`
	Amount       string          `json:"amount" db:"amount"`
	LockedAmount string          `json:"locked_amount" db:"locked_amount"`
	Premium      string          `json:"premium" db:"premium"`
	Expiration   time.Time       `json:"expiration" db:"expiration"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// Event is an immutable journal record. Once written, never modified or
// deleted.
type Event struct {
	ID            string    `json:"id" db:"id"`
	Type          string    `json:"type" db:"type"`
	OptionID      uint64    `json:"option_id" db:"option_id"`
	Account       string    `json:"account,omitempty" db:"account"`
	From          string    `json:"from,omitempty" db:"from_account"`
	To            string    `json:"to,omitempty" db:"to_account"`
	Amount        string    `json:"amount,omitempty" db:"amount"`
	SettlementFee string    `json:"settlement_fee,omitempty" db:"settlement_fee"`
	TotalFee      string    `json:"total_fee,omitempty" db:"total_fee"`
	Timestamp     time.Time `json:"timestamp" db:"timestamp"`
}

// PoolStatus is the liquidity pool snapshot returned by the API.
type PoolStatus struct {
	TotalBalance     string          `json:"total_balance"`
	LockedAmount     string          `json:"locked_amount"`
	UnlockedBalance  string          `json:"unlocked_balance"`
	ShareSupply      string          `json:"share_supply"`
	Utilization      decimal.Decimal `json:"utilization"` // locked / total, percent
	TotalBalanceUnit decimal.Decimal `json:"total_balance_unit"`
}

// StakingStatus is a reward distributor snapshot.
type StakingStatus struct {
	Pool        string `json:"pool"` // "protocol" or "shares"
	TotalLots   string `json:"total_lots"`
	LotPrice    string `json:"lot_price"`
	TotalProfit string `json:"total_profit"` // scaled accumulator
}

// Quote is a premium quote for prospective option parameters.
type Quote struct {
	Type          string          `json:"type"`
	Strike        decimal.Decimal `json:"strike"`
	Amount        string          `json:"amount"`
	PeriodSeconds int64           `json:"period_seconds"`
	SettlementFee string          `json:"settlement_fee"`
	StrikeFee     string          `json:"strike_fee"`
	PeriodFee     string          `json:"period_fee"`
	Total         string          `json:"total"`
	TotalUnit     decimal.Decimal `json:"total_unit"`
}

// weiScale converts between 18-decimal ledger amounts and whole units.
const weiScale = -18

// priceScale converts between 8-decimal feed prices and quote units.
const priceScale = -8

// WeiToUnit renders a wei decimal string as whole coins. Invalid input
// renders as zero; callers pass ledger output, which is always well formed.
func WeiToUnit(wei string) decimal.Decimal {
	d, err := decimal.NewFromString(wei)
	if err != nil {
		return decimal.Zero
	}
	return d.Shift(weiScale)
}

// PriceToUnit renders an 8-decimal feed price as quote-currency units.
func PriceToUnit(raw string) decimal.Decimal {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d.Shift(priceScale)
}
