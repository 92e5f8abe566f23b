// Package staking implements the accumulator-based profit-sharing pool fed
// by option settlement fees. Stakers buy whole lots of the staked asset for
// distributor shares; profit arrives through SendProfit and is later pulled
// pro-rata by each staker, with a per-holder snapshot banking accrued profit
// before any balance change so nothing leaks or double-counts.
//
// Two instances coexist: one stakes the protocol token and pays profit in
// native value, the other stakes pool shares and pays profit in the protocol
// token. The asset movements are parameterized through the Asset interface.
package staking

import (
	"errors"
	"time"

	"github.com/holiman/uint256"

	"github.com/hedgex/options-engine/internal/events"
	"github.com/hedgex/options-engine/internal/fixedmath"
	"github.com/hedgex/options-engine/internal/ledger"
)

var (
	// ErrLockup is returned when selling within the lockup window of the
	// holder's last buy.
	ErrLockup = errors.New("staking: action suspended due to lockup")

	// ErrZeroProfit is returned when claiming with nothing owed.
	ErrZeroProfit = errors.New("staking: zero profit")

	// ErrZeroAmount is returned for zero-lot buys and zero-amount moves.
	ErrZeroAmount = errors.New("staking: amount is zero")
)

// Asset abstracts the two ledgers profit and stakes move across. Pull draws
// value from an external account (consuming allowance on token ledgers);
// Push pays value out of a distributor-controlled account.
type Asset interface {
	Pull(from, to string, amount *uint256.Int) error
	Push(from, to string, amount *uint256.Int) error
}

// NativeAsset adapts the native value ledger.
type NativeAsset struct {
	Ledger *ledger.Native
}

func (a NativeAsset) Pull(from, to string, amount *uint256.Int) error {
	return a.Ledger.Transfer(from, to, amount)
}

func (a NativeAsset) Push(from, to string, amount *uint256.Int) error {
	return a.Ledger.Transfer(from, to, amount)
}

// TokenAsset adapts a fungible token ledger. Pull spends the recipient's
// allowance, mirroring an ERC20 transferFrom.
type TokenAsset struct {
	Token *ledger.Token
}

func (a TokenAsset) Pull(from, to string, amount *uint256.Int) error {
	return a.Token.TransferFrom(to, from, to, amount)
}

func (a TokenAsset) Push(from, to string, amount *uint256.Int) error {
	return a.Token.Transfer(from, to, amount)
}

// Config carries the distributor parameters.
type Config struct {
	// LotPrice is the amount of staked asset one distributor share costs.
	LotPrice *uint256.Int

	// LockupPeriod is the minimum dwell time between a holder's last buy
	// and a sell.
	LockupPeriod time.Duration

	// FallbackRecipient receives the entire profit when nobody is staked,
	// so value is never stranded in the accumulator.
	FallbackRecipient string
}

// DefaultConfig returns the mainnet protocol parameters: 24h lockup, 1000-unit
// (18 decimals) lot price.
func DefaultConfig(fallback string) Config {
	lot := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(18))
	lot.Mul(lot, uint256.NewInt(1000))
	return Config{
		LotPrice:          lot,
		LockupPeriod:      24 * time.Hour,
		FallbackRecipient: fallback,
	}
}

// Distributor is one staking pool instance. Not safe for concurrent use;
// the service layer serializes mutating operations.
type Distributor struct {
	cfg     Config
	account string // distributor's account on both asset ledgers
	staked  Asset
	payout  Asset
	emitter events.Emitter

	shares       *ledger.Token
	totalProfit  *uint256.Int // profit per share, scaled by ACCURACY
	lastProfit   map[string]*uint256.Int
	savedProfit  map[string]*uint256.Int
	lastBoughtAt map[string]time.Time
	nowFn        func() time.Time
}

// New creates a distributor holding stakes and undistributed profit on the
// given account.
func New(cfg Config, account string, staked, payout Asset, emitter events.Emitter) *Distributor {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Distributor{
		cfg:          cfg,
		account:      account,
		staked:       staked,
		payout:       payout,
		emitter:      emitter,
		shares:       ledger.NewToken("sHGX"),
		totalProfit:  new(uint256.Int),
		lastProfit:   make(map[string]*uint256.Int),
		savedProfit:  make(map[string]*uint256.Int),
		lastBoughtAt: make(map[string]time.Time),
		nowFn:        time.Now,
	}
}

// SetNowFunc overrides the distributor clock. Intended for tests.
func (d *Distributor) SetNowFunc(now func() time.Time) {
	if now == nil {
		d.nowFn = time.Now
		return
	}
	d.nowFn = now
}

// Account returns the distributor's ledger account.
func (d *Distributor) Account() string { return d.account }

// LotPrice returns the staked-asset cost of one share.
func (d *Distributor) LotPrice() *uint256.Int {
	return new(uint256.Int).Set(d.cfg.LotPrice)
}

// TotalSupply returns the outstanding share count.
func (d *Distributor) TotalSupply() *uint256.Int {
	return d.shares.TotalSupply()
}

// BalanceOf returns the holder's share count.
func (d *Distributor) BalanceOf(acct string) *uint256.Int {
	return d.shares.BalanceOf(acct)
}

// TotalProfit returns the scaled profit-per-share accumulator.
func (d *Distributor) TotalProfit() *uint256.Int {
	return new(uint256.Int).Set(d.totalProfit)
}

// Buy converts lots * LotPrice of the staked asset into shares. Accrued
// profit is banked against the old balance before the balance changes.
func (d *Distributor) Buy(account string, lots *uint256.Int) error {
	if lots.IsZero() {
		return ErrZeroAmount
	}
	cost, err := fixedmath.Mul(lots, d.cfg.LotPrice)
	if err != nil {
		return err
	}
	if err := d.staked.Pull(account, d.account, cost); err != nil {
		return err
	}
	if err := d.saveProfit(account); err != nil {
		return err
	}
	if err := d.shares.Mint(account, lots); err != nil {
		return err
	}
	d.lastBoughtAt[account] = d.nowFn()
	return nil
}

// Sell burns shares and returns amount * LotPrice of the staked asset.
// Rejected inside the lockup window and when amount exceeds the balance.
func (d *Distributor) Sell(account string, amount *uint256.Int) error {
	if amount.IsZero() {
		return ErrZeroAmount
	}
	if last, ok := d.lastBoughtAt[account]; ok {
		if d.nowFn().Before(last.Add(d.cfg.LockupPeriod)) {
			return ErrLockup
		}
	}
	if d.shares.BalanceOf(account).Lt(amount) {
		return ledger.ErrBurnExceedsBalance
	}
	if err := d.saveProfit(account); err != nil {
		return err
	}
	if err := d.shares.Burn(account, amount); err != nil {
		return err
	}
	refund, err := fixedmath.Mul(amount, d.cfg.LotPrice)
	if err != nil {
		return err
	}
	return d.staked.Push(d.account, account, refund)
}

// Transfer moves shares between holders. Both sides bank accrued profit
// first so nothing is lost or gained by the move.
func (d *Distributor) Transfer(from, to string, amount *uint256.Int) error {
	if amount.IsZero() {
		return ErrZeroAmount
	}
	if d.shares.BalanceOf(from).Lt(amount) {
		return ledger.ErrInsufficientBalance
	}
	if err := d.saveProfit(from); err != nil {
		return err
	}
	if err := d.saveProfit(to); err != nil {
		return err
	}
	return d.shares.Transfer(from, to, amount)
}

// SendProfit distributes value across current stakers by bumping the scaled
// accumulator. With nobody staked the whole value is routed to the fallback
// recipient and the accumulator is untouched.
func (d *Distributor) SendProfit(from string, value *uint256.Int) error {
	supply := d.shares.TotalSupply()
	if supply.IsZero() {
		// Pull through the distributor account so the payer's allowance
		// target is the same with and without stakers, then forward.
		if err := d.payout.Pull(from, d.account, value); err != nil {
			return err
		}
		return d.payout.Push(d.account, d.cfg.FallbackRecipient, value)
	}
	if err := d.payout.Pull(from, d.account, value); err != nil {
		return err
	}
	delta, err := fixedmath.MulDiv(value, fixedmath.Accuracy, supply)
	if err != nil {
		return err
	}
	d.totalProfit.Add(d.totalProfit, delta)
	d.emitter.Emit(events.NewProfit(value))
	return nil
}

// ProfitOf returns the holder's claimable profit: banked profit plus the
// accumulator delta since the holder's snapshot, prorated by balance.
func (d *Distributor) ProfitOf(account string) (*uint256.Int, error) {
	unsaved, err := d.unsavedProfit(account)
	if err != nil {
		return nil, err
	}
	if saved, ok := d.savedProfit[account]; ok {
		unsaved.Add(unsaved, saved)
	}
	return unsaved, nil
}

// ClaimProfit pays out the holder's full profit and zeroes the bank.
// Claiming with nothing owed rejects.
func (d *Distributor) ClaimProfit(account string) (*uint256.Int, error) {
	if err := d.saveProfit(account); err != nil {
		return nil, err
	}
	saved, ok := d.savedProfit[account]
	if !ok || saved.IsZero() {
		return nil, ErrZeroProfit
	}
	profit := new(uint256.Int).Set(saved)
	saved.Clear()
	// Payout runs last, after the bank is zeroed.
	if err := d.payout.Push(d.account, account, profit); err != nil {
		return nil, err
	}
	d.emitter.Emit(events.NewClaim(account, profit))
	return profit, nil
}

// unsavedProfit = (totalProfit - snapshot) * balance / ACCURACY, in that
// exact order.
func (d *Distributor) unsavedProfit(account string) (*uint256.Int, error) {
	delta := new(uint256.Int).Set(d.totalProfit)
	if last, ok := d.lastProfit[account]; ok {
		delta.Sub(delta, last)
	}
	return fixedmath.MulDiv(delta, d.shares.BalanceOf(account), fixedmath.Accuracy)
}

// saveProfit banks accrued profit and advances the holder's snapshot.
// Must run before every balance change.
func (d *Distributor) saveProfit(account string) error {
	unsaved, err := d.unsavedProfit(account)
	if err != nil {
		return err
	}
	if saved, ok := d.savedProfit[account]; ok {
		saved.Add(saved, unsaved)
	} else {
		d.savedProfit[account] = unsaved
	}
	d.lastProfit[account] = new(uint256.Int).Set(d.totalProfit)
	return nil
}
