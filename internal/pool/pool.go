// Package pool implements the share-based liquidity vault backing option
// payouts. Providers deposit native collateral for shares; the option engine
// (holding OPTION_ISSUER_ROLE) locks collateral against each option's
// worst-case payout and releases it on exercise or expiry. Premiums received
// at lock time count toward pool value immediately, so share price reflects
// written-but-unsettled business.
package pool

import (
	"errors"
	"time"

	"github.com/holiman/uint256"

	"github.com/hedgex/options-engine/internal/events"
	"github.com/hedgex/options-engine/internal/fixedmath"
	"github.com/hedgex/options-engine/internal/ledger"
)

var (
	// ErrAmountTooSmall is returned when a deposit or withdrawal rounds to
	// zero shares.
	ErrAmountTooSmall = errors.New("pool: amount is too small")

	// ErrMintSlippage is returned when a deposit would mint fewer shares
	// than the provider's minimum.
	ErrMintSlippage = errors.New("pool: minted shares below limit")

	// ErrBurnSlippage is returned when a withdrawal would burn more shares
	// than the provider's maximum.
	ErrBurnSlippage = errors.New("pool: burned shares above limit")

	// ErrWithdrawLockup is returned when withdrawing before the lockup
	// period since the last deposit has elapsed.
	ErrWithdrawLockup = errors.New("pool: withdrawal is locked up")

	// ErrInsufficientUnlocked is returned when a withdrawal would draw on
	// collateral reserved against active options.
	ErrInsufficientUnlocked = errors.New("pool: insufficient unlocked funds")

	// ErrAmountTooLarge is returned when a lock exceeds the unlocked balance.
	ErrAmountTooLarge = errors.New("pool: amount is too large to lock")

	// ErrAlreadyLocked is returned when locking an option id twice.
	ErrAlreadyLocked = errors.New("pool: liquidity already locked for id")

	// ErrNotLocked is returned when releasing an id that has no live lock.
	ErrNotLocked = errors.New("pool: liquidity is not locked")
)

// Config carries the pool parameters.
type Config struct {
	// ReferralRewardPercentage scales the instant referral reward:
	// reward = value * pct / 100 / Accuracy.
	ReferralRewardPercentage uint64

	// Accuracy is the referral reward scale divisor.
	Accuracy *uint256.Int

	// LockupPeriod is the minimum dwell time between a provider's last
	// deposit and a withdrawal.
	LockupPeriod time.Duration
}

// DefaultConfig returns the mainnet protocol parameters: 14-day lockup, referral
// reward of 25/100/1e4 of the deposit.
func DefaultConfig() Config {
	return Config{
		ReferralRewardPercentage: 25,
		Accuracy:                 uint256.NewInt(1e4),
		LockupPeriod:             14 * 24 * time.Hour,
	}
}

type lockedLiquidity struct {
	amount  *uint256.Int
	premium *uint256.Int
}

// Pool is the liquidity vault state. Not safe for concurrent use; the
// service layer serializes mutating operations.
type Pool struct {
	cfg     Config
	account string
	native  *ledger.Native
	shares  *ledger.Token
	roles   *ledger.RoleSet
	emitter events.Emitter

	locked            map[uint64]lockedLiquidity
	totalLockedAmount *uint256.Int
	lastProvideAt     map[string]time.Time
	nowFn             func() time.Time
}

// New creates a pool holding collateral on the given native-ledger account.
// The role set is injected late so the option engine can be authorized after
// both components exist.
func New(cfg Config, account string, native *ledger.Native, roles *ledger.RoleSet, emitter events.Emitter) *Pool {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Pool{
		cfg:               cfg,
		account:           account,
		native:            native,
		shares:            ledger.NewToken("rHGX"),
		roles:             roles,
		emitter:           emitter,
		locked:            make(map[uint64]lockedLiquidity),
		totalLockedAmount: new(uint256.Int),
		lastProvideAt:     make(map[string]time.Time),
		nowFn:             time.Now,
	}
}

// SetNowFunc overrides the pool clock. Intended for tests.
func (p *Pool) SetNowFunc(now func() time.Time) {
	if now == nil {
		p.nowFn = time.Now
		return
	}
	p.nowFn = now
}

// Account returns the pool's native-ledger account.
func (p *Pool) Account() string { return p.account }

// ShareToken exposes the share ledger; shares are a fungible token and can
// be staked in the reward distributor.
func (p *Pool) ShareToken() *ledger.Token { return p.shares }

// TotalBalance returns the pool's full value, locked plus unlocked.
func (p *Pool) TotalBalance() *uint256.Int {
	return p.native.BalanceOf(p.account)
}

// LockedAmount returns the collateral currently reserved against options.
func (p *Pool) LockedAmount() *uint256.Int {
	return new(uint256.Int).Set(p.totalLockedAmount)
}

// UnlockedBalance returns the withdrawable portion of the pool value.
func (p *Pool) UnlockedBalance() *uint256.Int {
	total := p.TotalBalance()
	if total.Lt(p.totalLockedAmount) {
		return new(uint256.Int)
	}
	return total.Sub(total, p.totalLockedAmount)
}

// LockedLiquidity returns the reservation recorded for an option id.
func (p *Pool) LockedLiquidity(id uint64) (amount, premium *uint256.Int, ok bool) {
	ll, found := p.locked[id]
	if !found {
		return nil, nil, false
	}
	return new(uint256.Int).Set(ll.amount), new(uint256.Int).Set(ll.premium), true
}

// ShareOf converts the holder's share balance into current collateral value.
func (p *Pool) ShareOf(acct string) *uint256.Int {
	supply := p.shares.TotalSupply()
	if supply.IsZero() {
		return new(uint256.Int)
	}
	v, err := fixedmath.MulDiv(p.shares.BalanceOf(acct), p.TotalBalance(), supply)
	if err != nil {
		return new(uint256.Int)
	}
	return v
}

// Provide deposits native collateral and mints shares. The first deposit
// mints 1:1; later deposits mint value*supply/poolValue computed on the
// value before the deposit lands. The referrer receives an instant reward
// paid from the pool, on top of shares minted against the gross value.
func (p *Pool) Provide(account string, value, minShares *uint256.Int, referrer string) (*uint256.Int, error) {
	if value.IsZero() {
		return nil, ErrAmountTooSmall
	}

	supply := p.shares.TotalSupply()
	mint := new(uint256.Int).Set(value)
	if !supply.IsZero() {
		var err error
		mint, err = fixedmath.MulDiv(value, supply, p.TotalBalance())
		if err != nil {
			return nil, err
		}
	}
	if mint.IsZero() {
		return nil, ErrAmountTooSmall
	}
	if mint.Lt(minShares) {
		return nil, ErrMintSlippage
	}

	if err := p.native.Transfer(account, p.account, value); err != nil {
		return nil, err
	}
	if err := p.shares.Mint(account, mint); err != nil {
		return nil, err
	}
	p.lastProvideAt[account] = p.nowFn()

	// Outward referral payment happens after all ledger state is final.
	if referrer != "" && referrer != account {
		reward, err := p.referralReward(value)
		if err == nil && !reward.IsZero() {
			if err := p.native.Transfer(p.account, referrer, reward); err != nil {
				return nil, err
			}
		}
	}

	p.emitter.Emit(events.NewProvide(account, value))
	return mint, nil
}

// referralReward computes value * pct / 100 / Accuracy in that exact order.
func (p *Pool) referralReward(value *uint256.Int) (*uint256.Int, error) {
	r, err := fixedmath.Mul(value, uint256.NewInt(p.cfg.ReferralRewardPercentage))
	if err != nil {
		return nil, err
	}
	r, err = fixedmath.Div(r, uint256.NewInt(100))
	if err != nil {
		return nil, err
	}
	return fixedmath.Div(r, p.cfg.Accuracy)
}

// Withdraw burns shares for value worth of collateral. Rejected inside the
// lockup period, when value exceeds the unlocked balance, or when the share
// burn (rounded up) exceeds maxShares.
func (p *Pool) Withdraw(account string, value, maxShares *uint256.Int) (*uint256.Int, error) {
	if value.IsZero() {
		return nil, ErrAmountTooSmall
	}
	if last, ok := p.lastProvideAt[account]; ok {
		if p.nowFn().Before(last.Add(p.cfg.LockupPeriod)) {
			return nil, ErrWithdrawLockup
		}
	}
	if p.UnlockedBalance().Lt(value) {
		return nil, ErrInsufficientUnlocked
	}

	supply := p.shares.TotalSupply()
	product, err := fixedmath.Mul(value, supply)
	if err != nil {
		return nil, err
	}
	burn, err := fixedmath.DivCeil(product, p.TotalBalance())
	if err != nil {
		return nil, err
	}
	if burn.IsZero() {
		return nil, ErrAmountTooSmall
	}
	if burn.Gt(maxShares) {
		return nil, ErrBurnSlippage
	}

	if err := p.shares.Burn(account, burn); err != nil {
		return nil, err
	}
	if err := p.native.Transfer(p.account, account, value); err != nil {
		return nil, err
	}

	p.emitter.Emit(events.NewWithdraw(account, value))
	return burn, nil
}

// Lock reserves amount of pool value against an option and takes the
// premium payment from the caller. Only OPTION_ISSUER_ROLE holders may
// lock; the authorization check runs before any state change. The premium
// joins pool value immediately.
func (p *Pool) Lock(caller string, id uint64, premium, amount *uint256.Int) error {
	if !p.roles.Has(ledger.RoleOptionIssuer, caller) {
		return ledger.ErrMissingRole
	}
	if _, exists := p.locked[id]; exists {
		return ErrAlreadyLocked
	}
	if p.UnlockedBalance().Lt(amount) {
		return ErrAmountTooLarge
	}
	if !premium.IsZero() {
		if err := p.native.Transfer(caller, p.account, premium); err != nil {
			return err
		}
	}
	p.locked[id] = lockedLiquidity{
		amount:  new(uint256.Int).Set(amount),
		premium: new(uint256.Int).Set(premium),
	}
	p.totalLockedAmount.Add(p.totalLockedAmount, amount)
	return nil
}

// Unlock releases a reservation back to the unlocked balance. The premium
// stays with the pool as profit. Paired exactly once per Lock; a second
// release rejects with ErrNotLocked.
func (p *Pool) Unlock(caller string, id uint64) error {
	if !p.roles.Has(ledger.RoleOptionIssuer, caller) {
		return ledger.ErrMissingRole
	}
	ll, ok := p.locked[id]
	if !ok {
		return ErrNotLocked
	}
	delete(p.locked, id)
	p.totalLockedAmount.Sub(p.totalLockedAmount, ll.amount)
	return nil
}

// Send releases the reservation for id and pays out at most the locked
// amount to the recipient. Anything left of the reservation stays in the
// pool as shareholder profit. The transfer is the final step, after all
// reservation state is settled.
func (p *Pool) Send(caller string, id uint64, to string, amount *uint256.Int) error {
	if !p.roles.Has(ledger.RoleOptionIssuer, caller) {
		return ledger.ErrMissingRole
	}
	ll, ok := p.locked[id]
	if !ok {
		return ErrNotLocked
	}
	delete(p.locked, id)
	p.totalLockedAmount.Sub(p.totalLockedAmount, ll.amount)

	payout := new(uint256.Int).Set(amount)
	if payout.Gt(ll.amount) {
		payout.Set(ll.amount)
	}
	if payout.IsZero() {
		return nil
	}
	return p.native.Transfer(p.account, to, payout)
}
