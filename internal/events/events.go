// Package events provides the append-only protocol event journal and the
// emitter fan-out used by the pool, option engine and staking distributors.
// Every successful mutating operation emits exactly its documented events;
// rejected operations emit nothing.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// Type identifies a protocol event.
type Type string

const (
	TypeCreate   Type = "Create"
	TypeExercise Type = "Exercise"
	TypeExpire   Type = "Expire"
	TypeClaim    Type = "Claim"
	TypeTransfer Type = "Transfer"
	TypeProvide  Type = "Provide"
	TypeWithdraw Type = "Withdraw"
	TypeProfit   Type = "Profit"
)

// ZeroAddress marks mint (From) and burn (To) sides of ownership transfers.
const ZeroAddress = "0x0"

// Event is a single journal record. Only the fields relevant to the event
// type are populated; amounts are exact 256-bit values.
type Event struct {
	ID            string
	Type          Type
	OptionID      uint64
	Account       string
	From          string
	To            string
	Amount        *uint256.Int
	SettlementFee *uint256.Int
	TotalFee      *uint256.Int
	Timestamp     time.Time
}

// Emitter receives protocol events. Implementations must not retain or
// mutate amount pointers after Emit returns.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards events.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}

// Multi fans a single emission out to several emitters in order.
type Multi []Emitter

func (m Multi) Emit(e Event) {
	for _, em := range m {
		em.Emit(e)
	}
}

// NewCreate builds a Create event. The settlementFee field carries the
// staking share of the settlement fee, matching the on-chain event payload.
func NewCreate(id uint64, account string, settlementFee, totalFee *uint256.Int) Event {
	return Event{
		ID:            uuid.New().String(),
		Type:          TypeCreate,
		OptionID:      id,
		Account:       account,
		SettlementFee: new(uint256.Int).Set(settlementFee),
		TotalFee:      new(uint256.Int).Set(totalFee),
	}
}

// NewExercise builds an Exercise event carrying the capped profit paid out.
func NewExercise(id uint64, profit *uint256.Int) Event {
	return Event{
		ID:       uuid.New().String(),
		Type:     TypeExercise,
		OptionID: id,
		Amount:   new(uint256.Int).Set(profit),
	}
}

// NewExpire builds an Expire event carrying the forfeited premium.
func NewExpire(id uint64, premium *uint256.Int) Event {
	return Event{
		ID:       uuid.New().String(),
		Type:     TypeExpire,
		OptionID: id,
		Amount:   new(uint256.Int).Set(premium),
	}
}

// NewClaim builds a Claim event for a staking profit payout.
func NewClaim(account string, amount *uint256.Int) Event {
	return Event{
		ID:      uuid.New().String(),
		Type:    TypeClaim,
		Account: account,
		Amount:  new(uint256.Int).Set(amount),
	}
}

// NewTransfer builds an ownership Transfer event. Mint uses ZeroAddress as
// From, burn uses ZeroAddress as To.
func NewTransfer(from, to string, id uint64) Event {
	return Event{
		ID:       uuid.New().String(),
		Type:     TypeTransfer,
		OptionID: id,
		From:     from,
		To:       to,
	}
}

// NewProvide builds a pool deposit event.
func NewProvide(account string, amount *uint256.Int) Event {
	return Event{
		ID:      uuid.New().String(),
		Type:    TypeProvide,
		Account: account,
		Amount:  new(uint256.Int).Set(amount),
	}
}

// NewWithdraw builds a pool withdrawal event.
func NewWithdraw(account string, amount *uint256.Int) Event {
	return Event{
		ID:      uuid.New().String(),
		Type:    TypeWithdraw,
		Account: account,
		Amount:  new(uint256.Int).Set(amount),
	}
}

// NewProfit builds a staking profit distribution event.
func NewProfit(amount *uint256.Int) Event {
	return Event{
		ID:     uuid.New().String(),
		Type:   TypeProfit,
		Amount: new(uint256.Int).Set(amount),
	}
}

// Log is an in-memory append-only journal. Safe for concurrent readers.
type Log struct {
	mu      sync.RWMutex
	entries []Event
	nowFn   func() time.Time
}

// NewLog creates an empty journal.
func NewLog() *Log {
	return &Log{nowFn: time.Now}
}

// SetNowFunc overrides the timestamp source. Intended for tests.
func (l *Log) SetNowFunc(now func() time.Time) {
	if now == nil {
		l.nowFn = time.Now
		return
	}
	l.nowFn = now
}

// Emit appends the event, stamping it with the journal clock.
func (l *Log) Emit(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.Timestamp = l.nowFn()
	l.entries = append(l.entries, e)
}

// All returns a copy of the journal in emission order.
func (l *Log) All() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Event, len(l.entries))
	copy(out, l.entries)
	return out
}

// ByType returns all events of one type in emission order.
func (l *Log) ByType(t Type) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Event
	for _, e := range l.entries {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// ByOption returns all events referencing the given option id.
func (l *Log) ByOption(id uint64) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Event
	for _, e := range l.entries {
		if e.OptionID == id && e.Type != TypeClaim && e.Type != TypeProvide && e.Type != TypeWithdraw && e.Type != TypeProfit {
			out = append(out, e)
		}
	}
	return out
}
