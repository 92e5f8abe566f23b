package options

import (
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/hedgex/options-engine/internal/events"
	"github.com/hedgex/options-engine/internal/fixedmath"
	"github.com/hedgex/options-engine/internal/ledger"
	"github.com/hedgex/options-engine/internal/oracle"
	"github.com/hedgex/options-engine/internal/pool"
)

var (
	// ErrWrongValue is returned when the attached payment does not equal the
	// quoted premium exactly.
	ErrWrongValue = errors.New("options: wrong value attached")

	// ErrPeriodTooShort / ErrPeriodTooLong bound the option duration.
	ErrPeriodTooShort = errors.New("options: period is too short")
	ErrPeriodTooLong  = errors.New("options: period is too long")

	// ErrAmountTooSmall is returned for a zero notional.
	ErrAmountTooSmall = errors.New("options: amount is too small")

	// ErrNotFound is returned for option ids that were never created.
	ErrNotFound = errors.New("options: option not found")

	// ErrNotActive is returned when an option already reached a terminal state.
	ErrNotActive = errors.New("options: option is not active")

	// ErrExpired is returned when exercising after expiration.
	ErrExpired = errors.New("options: option has expired")

	// ErrNotExpired is returned when expiring an option that is still live.
	ErrNotExpired = errors.New("options: option has not expired yet")

	// ErrNotEligible is returned when the caller may not exercise the option.
	ErrNotEligible = errors.New("options: caller is not eligible to exercise the option")

	// ErrPriceTooLow / ErrPriceTooHigh reject exercises that are not in a
	// payable state for the option's direction.
	ErrPriceTooLow  = errors.New("options: current price is too low")
	ErrPriceTooHigh = errors.New("options: current price is too high")

	// ErrNotAdmin guards the engine's parameter setters.
	ErrNotAdmin = errors.New("options: caller is not the admin")

	// ErrPercentageTooHigh bounds fee percentage setters.
	ErrPercentageTooHigh = errors.New("options: percentage exceeds 100")
)

// State is the option lifecycle state. Transitions are one-way:
// Active -> Exercised or Active -> Expired, both terminal.
type State uint8

const (
	StateActive State = iota
	StateExercised
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateExercised:
		return "exercised"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Option is the persistent record of one option position. The record
// survives the terminal transition as history; only the ownership token is
// burned.
type Option struct {
	ID           uint64
	Holder       string // original recipient; current holder per NFT ledger
	Strike       *uint256.Int
	Amount       *uint256.Int
	LockedAmount *uint256.Int
	Premium      *uint256.Int
	Type         OptionType
	Expiration   time.Time
	State        State
	CreatedAt    time.Time
}

// Config carries the engine parameters.
type Config struct {
	// ImpliedVolRate is the protocol-configured implied volatility constant
	// feeding the period fee.
	ImpliedVolRate *uint256.Int

	// SettlementFeePercentage of the notional is charged at creation and
	// split between the staking pool and the admin.
	SettlementFeePercentage uint64

	// StakingFeePercentage of the settlement fee is forwarded to the staking
	// distributor; the remainder goes to the admin account.
	StakingFeePercentage uint64

	// MinPeriod and MaxPeriod bound option durations.
	MinPeriod time.Duration
	MaxPeriod time.Duration

	// AutoExerciseWindow is the span before expiration in which any caller
	// may exercise on behalf of an opted-in holder.
	AutoExerciseWindow time.Duration
}

// DefaultConfig returns the mainnet protocol parameters.
func DefaultConfig() Config {
	return Config{
		ImpliedVolRate:          uint256.NewInt(4500),
		SettlementFeePercentage: 1,
		StakingFeePercentage:    50,
		MinPeriod:               24 * time.Hour,
		MaxPeriod:               4 * 7 * 24 * time.Hour,
		AutoExerciseWindow:      30 * time.Minute,
	}
}

// ProfitSink receives the staking share of settlement fees. Satisfied by the
// staking reward distributor.
type ProfitSink interface {
	SendProfit(from string, value *uint256.Int) error
}

// Engine is the option lifecycle state machine. Not safe for concurrent
// use; the service layer serializes mutating operations.
type Engine struct {
	cfg      Config
	account  string // engine's native-ledger account, holds fees in flight
	admin    string // receives the non-staking share of settlement fees
	native   *ledger.Native
	nft      *ledger.OptionToken
	pool     *pool.Pool
	staking  ProfitSink
	provider oracle.PriceProvider
	emitter  events.Emitter

	options      map[uint64]*Option
	nextID       uint64
	autoExercise map[string]bool
	nowFn        func() time.Time
}

// New wires the engine against its collaborators. The pool must separately
// grant the engine's account OPTION_ISSUER_ROLE; that binding is late so the
// two components can reference each other without construction cycles.
func New(cfg Config, account, admin string, native *ledger.Native, nft *ledger.OptionToken,
	p *pool.Pool, staking ProfitSink, provider oracle.PriceProvider, emitter events.Emitter) *Engine {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Engine{
		cfg:          cfg,
		account:      account,
		admin:        admin,
		native:       native,
		nft:          nft,
		pool:         p,
		staking:      staking,
		provider:     provider,
		emitter:      emitter,
		options:      make(map[uint64]*Option),
		autoExercise: make(map[string]bool),
		nowFn:        time.Now,
	}
}

// SetNowFunc overrides the engine clock. Intended for tests.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		e.nowFn = time.Now
		return
	}
	e.nowFn = now
}

// Account returns the engine's native-ledger account.
func (e *Engine) Account() string { return e.account }

// Option returns a copy of the record for id.
func (e *Engine) Option(id uint64) (Option, error) {
	opt, ok := e.options[id]
	if !ok {
		return Option{}, ErrNotFound
	}
	return e.cloneOption(opt), nil
}

// Options returns copies of all option records in id order.
func (e *Engine) Options() []Option {
	out := make([]Option, 0, len(e.options))
	for id := uint64(0); id < e.nextID; id++ {
		if opt, ok := e.options[id]; ok {
			out = append(out, e.cloneOption(opt))
		}
	}
	return out
}

func (e *Engine) cloneOption(opt *Option) Option {
	c := *opt
	c.Strike = new(uint256.Int).Set(opt.Strike)
	c.Amount = new(uint256.Int).Set(opt.Amount)
	c.LockedAmount = new(uint256.Int).Set(opt.LockedAmount)
	c.Premium = new(uint256.Int).Set(opt.Premium)
	return c
}

// SetAutoExerciseStatus lets a holder opt in or out of third-party exercise
// during the final window before expiry.
func (e *Engine) SetAutoExerciseStatus(holder string, status bool) {
	e.autoExercise[holder] = status
}

// AutoExerciseStatus reports the holder's opt-in flag.
func (e *Engine) AutoExerciseStatus(holder string) bool {
	return e.autoExercise[holder]
}

// SetImpliedVolRate updates the implied volatility constant. Admin only.
func (e *Engine) SetImpliedVolRate(caller string, rate *uint256.Int) error {
	if caller != e.admin {
		return ErrNotAdmin
	}
	e.cfg.ImpliedVolRate = new(uint256.Int).Set(rate)
	return nil
}

// SetSettlementFeePercentage updates the settlement fee share of notional.
// Admin only.
func (e *Engine) SetSettlementFeePercentage(caller string, pct uint64) error {
	if caller != e.admin {
		return ErrNotAdmin
	}
	if pct > 100 {
		return ErrPercentageTooHigh
	}
	e.cfg.SettlementFeePercentage = pct
	return nil
}

// SetStakingFeePercentage updates the staking share of the settlement fee.
// Admin only; zero routes the whole settlement fee to the admin.
func (e *Engine) SetStakingFeePercentage(caller string, pct uint64) error {
	if caller != e.admin {
		return ErrNotAdmin
	}
	if pct > 100 {
		return ErrPercentageTooHigh
	}
	e.cfg.StakingFeePercentage = pct
	return nil
}

// Create opens a new option. The caller must attach exactly the quoted
// premium as value; the notional is reserved in the pool, the settlement fee
// is split between staking and admin, and the ownership token is minted to
// the recipient.
func (e *Engine) Create(caller string, period time.Duration, amount, strike *uint256.Int,
	typ OptionType, recipient string, value *uint256.Int) (Option, error) {
	if period < e.cfg.MinPeriod {
		return Option{}, ErrPeriodTooShort
	}
	if period > e.cfg.MaxPeriod {
		return Option{}, ErrPeriodTooLong
	}
	if amount.IsZero() {
		return Option{}, ErrAmountTooSmall
	}
	if !typ.Valid() {
		return Option{}, ErrInvalidType
	}
	if recipient == "" {
		return Option{}, ledger.ErrZeroAccount
	}

	fees, err := e.Fees(period, amount, strike, typ)
	if err != nil {
		return Option{}, err
	}
	if !value.Eq(fees.Total) {
		return Option{}, ErrWrongValue
	}
	// The notional must fit in the unlocked pool balance before any value
	// moves; this keeps a rejected create free of side effects.
	if e.pool.UnlockedBalance().Lt(amount) {
		return Option{}, pool.ErrAmountTooLarge
	}

	if err := e.native.Transfer(caller, e.account, value); err != nil {
		return Option{}, err
	}

	id := e.nextID
	premiumToPool := new(uint256.Int).Sub(fees.Total, fees.SettlementFee)
	if err := e.pool.Lock(e.account, id, premiumToPool, amount); err != nil {
		// Undo the payment so a rejected create leaves no trace.
		_ = e.native.Transfer(e.account, caller, value)
		return Option{}, err
	}

	now := e.nowFn()
	opt := &Option{
		ID:           id,
		Holder:       recipient,
		Strike:       new(uint256.Int).Set(strike),
		Amount:       new(uint256.Int).Set(amount),
		LockedAmount: new(uint256.Int).Set(amount),
		Premium:      new(uint256.Int).Set(fees.Total),
		Type:         typ,
		Expiration:   now.Add(period),
		State:        StateActive,
		CreatedAt:    now,
	}
	e.options[id] = opt
	e.nextID++

	if err := e.nft.Mint(recipient, id); err != nil {
		return Option{}, fmt.Errorf("options: mint ownership token: %w", err)
	}

	// Fee distribution happens after all option and pool state is final.
	stakingShare, err := fixedmath.MulDiv(fees.SettlementFee, uint256.NewInt(e.cfg.StakingFeePercentage), uint256.NewInt(100))
	if err != nil {
		return Option{}, err
	}
	if !stakingShare.IsZero() {
		if err := e.staking.SendProfit(e.account, stakingShare); err != nil {
			return Option{}, err
		}
	}
	adminShare := new(uint256.Int).Sub(fees.SettlementFee, stakingShare)
	if !adminShare.IsZero() {
		if err := e.native.Transfer(e.account, e.admin, adminShare); err != nil {
			return Option{}, err
		}
	}

	e.emitter.Emit(events.NewCreate(id, recipient, stakingShare, fees.Total))
	return e.cloneOption(opt), nil
}

// Exercise settles an in-the-money option before expiry. The current token
// holder may exercise at any time; once the holder has opted into
// auto-exercise, any caller may trigger it inside the final window, with the
// payout still routed to the holder. Profit is capped at the locked amount.
func (e *Engine) Exercise(caller string, id uint64) (*uint256.Int, error) {
	opt, ok := e.options[id]
	if !ok {
		return nil, ErrNotFound
	}
	now := e.nowFn()
	if now.After(opt.Expiration) {
		return nil, ErrExpired
	}
	if opt.State != StateActive {
		return nil, ErrNotActive
	}
	holder, err := e.nft.OwnerOf(id)
	if err != nil {
		return nil, ErrNotActive
	}
	if caller != holder {
		inWindow := !now.Before(opt.Expiration.Add(-e.cfg.AutoExerciseWindow))
		if !e.autoExercise[holder] || !inWindow {
			return nil, ErrNotEligible
		}
	}

	round, err := e.provider.LatestRoundData()
	if err != nil {
		return nil, err
	}
	profit, err := exerciseProfit(opt, round.Answer)
	if err != nil {
		return nil, err
	}
	if profit.Gt(opt.LockedAmount) {
		profit.Set(opt.LockedAmount)
	}

	opt.State = StateExercised
	if err := e.nft.Burn(id); err != nil {
		return nil, err
	}
	// The payout transfer runs last, after the option record, token and
	// reservation are all settled.
	if err := e.pool.Send(e.account, id, holder, profit); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.NewExercise(id, profit))
	return profit, nil
}

// exerciseProfit computes the uncapped payout for the current price,
// rejecting options that are not in a payable state for their direction.
// A price exactly at strike exercises with zero profit.
func exerciseProfit(opt *Option, price *uint256.Int) (*uint256.Int, error) {
	switch opt.Type {
	case TypeCall:
		if price.Lt(opt.Strike) {
			return nil, ErrPriceTooLow
		}
		diff := new(uint256.Int).Sub(price, opt.Strike)
		return fixedmath.MulDiv(diff, opt.Amount, price)
	case TypePut:
		if price.Gt(opt.Strike) {
			return nil, ErrPriceTooHigh
		}
		diff := new(uint256.Int).Sub(opt.Strike, price)
		return fixedmath.MulDiv(diff, opt.Amount, price)
	default:
		return nil, ErrInvalidType
	}
}

// Unlock expires a single option strictly after its expiration, releasing
// the reservation back to the pool as profit and burning the token. The
// premium is forfeit. Callable by anyone.
func (e *Engine) Unlock(id uint64) error {
	if err := e.checkUnlockable(id); err != nil {
		return err
	}
	e.applyUnlock(id)
	return nil
}

// UnlockAll expires a batch. Every id must already satisfy the expiry
// precondition or the whole batch is rejected; on success one Expire event
// is emitted per id in input order.
func (e *Engine) UnlockAll(ids []uint64) error {
	seen := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return ErrNotActive
		}
		seen[id] = true
		if err := e.checkUnlockable(id); err != nil {
			return err
		}
	}
	for _, id := range ids {
		e.applyUnlock(id)
	}
	return nil
}

func (e *Engine) checkUnlockable(id uint64) error {
	opt, ok := e.options[id]
	if !ok {
		return ErrNotFound
	}
	if !e.nowFn().After(opt.Expiration) {
		return ErrNotExpired
	}
	if opt.State != StateActive {
		return ErrNotActive
	}
	return nil
}

func (e *Engine) applyUnlock(id uint64) {
	opt := e.options[id]
	opt.State = StateExpired
	// Reservation release and token burn cannot fail once the checks above
	// have passed; the lock exists for every active option.
	_ = e.pool.Unlock(e.account, id)
	_ = e.nft.Burn(id)
	e.emitter.Emit(events.NewExpire(id, opt.Premium))
}
