// Package slots grows the registry's storage slots.
//
// A slot is created lazily, at its derived address, with exactly the size of
// the record it is about to hold and exactly the collateral that size
// requires. As the record grows the slot is topped up, by the difference
// between the new minimum balance and what it already holds, and then
// resized in place. The host's resize primitive preserves the existing prefix,
// so bytes already written are never lost.
package slots

import (
	"errors"
	"fmt"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/forestrie/go-programregistry/address"
	"github.com/forestrie/go-programregistry/host"
	"github.com/forestrie/go-programregistry/keys"
)

var (
	ErrTruncateGrows = errors.New("truncate can not grow a slot")
	ErrSizeNotValid  = errors.New("slot size must not be negative")
)

type Allocator struct {
	Host      host.Host
	ProgramID keys.Key
	Log       logger.Logger
}

func NewAllocator(h host.Host, programID keys.Key, log logger.Logger) *Allocator {
	return &Allocator{
		Host:      h,
		ProgramID: programID,
		Log:       log,
	}
}

// EnsureCapacity makes slot at least newSize bytes long and funds it for that
// size.
//
// There are 3 states to consider here
//  1. the slot is unallocated -> create it at newSize, funded by payer
//  2. the slot is allocated and smaller than newSize -> top up and grow
//  3. the slot is already large enough -> nothing to do
//
// Creation is the only path that establishes ownership. Growing a slot this
// program does not own fails with address.ErrOwnershipMismatch. Insufficient
// payer funds abort the operation with host.ErrInsufficientFunds.
//
// Returns true if the slot was created by this call.
func (a *Allocator) EnsureCapacity(slot, payer *host.Account, newSize int) (bool, error) {
	if newSize < 0 {
		return false, ErrSizeNotValid
	}

	if !slot.Allocated() {
		a.Log.Debugf("creating slot %s with %d bytes", slot.Key, newSize)
		if err := a.Host.Create(payer, slot, newSize, a.ProgramID); err != nil {
			a.Log.Infof("Error @ slot creation %s: %v", slot.Key, err)
			return false, err
		}
		return true, nil
	}

	if err := address.VerifyOwner(slot, a.ProgramID); err != nil {
		a.Log.Infof("Error @ slot owner assertion: %v", err)
		return false, err
	}

	if newSize <= len(slot.Data) {
		return false, nil
	}

	if err := a.topUp(slot, payer, newSize); err != nil {
		return false, err
	}

	if err := a.Host.Resize(slot, newSize); err != nil {
		a.Log.Infof("Error @ reallocation of slot %s: %v", slot.Key, err)
		return false, err
	}
	return false, nil
}

// Truncate shrinks slot to size. It is only used when a reset reinitialises a
// page; the collateral already held by the slot is left in place.
func (a *Allocator) Truncate(slot *host.Account, size int) error {
	if size < 0 {
		return ErrSizeNotValid
	}
	if err := address.VerifyOwner(slot, a.ProgramID); err != nil {
		a.Log.Infof("Error @ slot owner assertion: %v", err)
		return err
	}
	if size > len(slot.Data) {
		return fmt.Errorf("%w: %s from %d to %d", ErrTruncateGrows, slot.Key, len(slot.Data), size)
	}
	if size == len(slot.Data) {
		return nil
	}
	return a.Host.Resize(slot, size)
}

// TopUpAmount returns the additional collateral slot needs to stay valid at
// newSize. It is zero when the current balance already suffices.
func TopUpAmount(rent host.Rent, slot *host.Account, newSize int) uint64 {
	need := rent.MinimumBalance(newSize)
	if need <= slot.Balance {
		return 0
	}
	return need - slot.Balance
}

func (a *Allocator) topUp(slot, payer *host.Account, newSize int) error {
	amount := TopUpAmount(a.Host.Rent(), slot, newSize)
	if amount == 0 {
		return nil
	}
	a.Log.Debugf("topping up slot %s by %d for %d bytes", slot.Key, amount, newSize)
	if err := a.Host.Transfer(payer, slot, amount); err != nil {
		a.Log.Infof("Error @ slot top up %s: %v", slot.Key, err)
		return err
	}
	return nil
}
