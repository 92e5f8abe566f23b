package ledger

import (
	"errors"

	"github.com/hedgex/options-engine/internal/events"
)

var (
	// ErrTokenNotFound is returned for ids that were never minted or are
	// already burned.
	ErrTokenNotFound = errors.New("ledger: token does not exist")

	// ErrTokenExists is returned when minting an id twice.
	ErrTokenExists = errors.New("ledger: token already minted")

	// ErrNotOwnerNorApproved is returned when the caller may not move the token.
	ErrNotOwnerNorApproved = errors.New("ledger: caller is not owner nor approved")
)

// OptionToken is the non-fungible ownership ledger for option positions.
// Each option id corresponds 1:1 to a token; burning the token retires the
// position while the option record survives as history.
type OptionToken struct {
	owners   map[uint64]string
	approved map[uint64]string
	emitter  events.Emitter
}

// NewOptionToken creates an empty ownership ledger emitting Transfer events
// to the given emitter.
func NewOptionToken(emitter events.Emitter) *OptionToken {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &OptionToken{
		owners:   make(map[uint64]string),
		approved: make(map[uint64]string),
		emitter:  emitter,
	}
}

// Mint assigns a fresh token id to the recipient.
func (o *OptionToken) Mint(to string, id uint64) error {
	if to == "" {
		return ErrZeroAccount
	}
	if _, ok := o.owners[id]; ok {
		return ErrTokenExists
	}
	o.owners[id] = to
	o.emitter.Emit(events.NewTransfer(events.ZeroAddress, to, id))
	return nil
}

// Burn retires the token and clears any approval.
func (o *OptionToken) Burn(id uint64) error {
	owner, ok := o.owners[id]
	if !ok {
		return ErrTokenNotFound
	}
	delete(o.owners, id)
	delete(o.approved, id)
	o.emitter.Emit(events.NewTransfer(owner, events.ZeroAddress, id))
	return nil
}

// OwnerOf returns the current holder.
func (o *OptionToken) OwnerOf(id uint64) (string, error) {
	owner, ok := o.owners[id]
	if !ok {
		return "", ErrTokenNotFound
	}
	return owner, nil
}

// Approve lets the owner designate one account allowed to transfer the token.
func (o *OptionToken) Approve(caller, to string, id uint64) error {
	owner, ok := o.owners[id]
	if !ok {
		return ErrTokenNotFound
	}
	if caller != owner {
		return ErrNotOwnerNorApproved
	}
	o.approved[id] = to
	return nil
}

// GetApproved returns the approved account for the token, if any.
func (o *OptionToken) GetApproved(id uint64) (string, error) {
	if _, ok := o.owners[id]; !ok {
		return "", ErrTokenNotFound
	}
	return o.approved[id], nil
}

// TransferFrom moves the token when the caller is the owner or the approved
// account. Approval is consumed by the transfer.
func (o *OptionToken) TransferFrom(caller, from, to string, id uint64) error {
	owner, ok := o.owners[id]
	if !ok {
		return ErrTokenNotFound
	}
	if owner != from || to == "" {
		return ErrNotOwnerNorApproved
	}
	if caller != owner && caller != o.approved[id] {
		return ErrNotOwnerNorApproved
	}
	o.owners[id] = to
	delete(o.approved, id)
	o.emitter.Emit(events.NewTransfer(from, to, id))
	return nil
}
