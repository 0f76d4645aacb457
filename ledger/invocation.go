package ledger

import (
	"context"
	"fmt"
	"slices"

	"github.com/forestrie/go-programregistry/host"
	"github.com/forestrie/go-programregistry/keys"
	"github.com/google/uuid"
)

// invocation is the host.Host handed to one Invoke call. Every account it
// loads is a private copy; the copies are only published by Ledger.commit.
type invocation struct {
	ctx     context.Context
	id      uuid.UUID
	ledger  *Ledger
	signers []keys.Key
	touched map[keys.Key]*host.Account
	base    map[keys.Key]*committed
	done    bool
}

func (tx *invocation) Rent() host.Rent { return tx.ledger.rent }

func (tx *invocation) Load(key keys.Key) (*host.Account, error) {
	if tx.done {
		return nil, ErrLedgerClosed
	}
	if a, ok := tx.touched[key]; ok {
		return a, nil
	}
	c, err := tx.ledger.get(tx.ctx, key)
	if err != nil {
		return nil, err
	}
	a := c.account.Clone()
	a.Signer = slices.Contains(tx.signers, key)
	tx.base[key] = c
	tx.touched[key] = a
	return a, nil
}

func (tx *invocation) Create(payer, slot *host.Account, size int, owner keys.Key) error {
	if slot.Allocated() {
		return fmt.Errorf("%w: %s", host.ErrAccountExists, slot.Key)
	}
	if size < 0 || size > host.MaxAccountBytes {
		return fmt.Errorf("%w: %d", host.ErrResizeTooLarge, size)
	}
	// A slot may already hold lamports sent to its address before creation,
	// only the shortfall is taken from the payer.
	need := tx.ledger.rent.MinimumBalance(size)
	if slot.Balance < need {
		if err := tx.Transfer(payer, slot, need-slot.Balance); err != nil {
			return err
		}
	}
	slot.Data = make([]byte, size)
	slot.Owner = owner
	return nil
}

func (tx *invocation) Transfer(from, to *host.Account, amount uint64) error {
	if !from.Signer {
		return fmt.Errorf("%w: %s", host.ErrMissingSignature, from.Key)
	}
	if from.Balance < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", host.ErrInsufficientFunds, from.Key, from.Balance, amount)
	}
	if from == to {
		return nil
	}
	from.Balance -= amount
	to.Balance += amount
	return nil
}

func (tx *invocation) Resize(slot *host.Account, size int) error {
	if size < 0 || size > host.MaxAccountBytes {
		return fmt.Errorf("%w: %d", host.ErrResizeTooLarge, size)
	}
	if size <= len(slot.Data) {
		slot.Data = append([]byte(nil), slot.Data[:size]...)
		return nil
	}
	slot.Data = append(slot.Data, make([]byte, size-len(slot.Data))...)
	return nil
}

// checkRent requires every allocated account the invocation touched to hold
// at least the minimum balance for its size.
func (tx *invocation) checkRent() error {
	for _, a := range tx.touched {
		if len(a.Data) == 0 {
			continue
		}
		if need := tx.ledger.rent.MinimumBalance(len(a.Data)); a.Balance < need {
			return fmt.Errorf("%w: %s holds %d, needs %d", host.ErrRentNotExempt, a.Key, a.Balance, need)
		}
	}
	return nil
}
