// Package host describes the execution environment the registry runs inside.
//
// The host owns the storage slots. It guarantees that one invocation either
// commits all of its slot mutations or none of them, that no other invocation
// observes a slot while it is being mutated, and that invocations touching the
// same slots are serialized. The registry core relies on those guarantees and
// carries no locks of its own.
package host

import (
	"errors"

	"github.com/forestrie/go-programregistry/keys"
)

var (
	ErrInsufficientFunds = errors.New("the payer balance does not cover the transfer")
	ErrAccountExists     = errors.New("the account is already allocated")
	ErrAccountNotFound   = errors.New("the account does not exist")
	ErrMissingSignature  = errors.New("a required signature is missing")
	ErrRentNotExempt     = errors.New("the account balance is below the minimum for its size")
	ErrResizeTooLarge    = errors.New("the requested account size exceeds the host limit")
)

const (
	// AccountStorageOverhead is charged on top of the data length when
	// computing the collateral for a slot.
	AccountStorageOverhead = 128

	DefaultLamportsPerByteYear = 3480
	DefaultExemptionYears      = 2

	// MaxAccountBytes bounds any single slot.
	MaxAccountBytes = 10 * 1024 * 1024
)

// Account is the host's view of one slot. Data is the live buffer for the
// current invocation: writes to it are visible to the host. Signer is set by
// the host for the accounts that signed the current invocation.
type Account struct {
	Key        keys.Key
	Owner      keys.Key
	Balance    uint64
	Data       []byte
	Executable bool
	Signer     bool
}

// Allocated is false for slots nobody has created yet.
func (a *Account) Allocated() bool {
	return a.Owner != keys.SystemProgram || len(a.Data) != 0
}

// Clone returns a deep copy that shares no buffers with a.
func (a *Account) Clone() *Account {
	c := *a
	if a.Data != nil {
		c.Data = append([]byte(nil), a.Data...)
	}
	return &c
}

// Rent is the storage collateral model: every slot must hold at least
// MinimumBalance(len(Data)) to remain valid.
type Rent struct {
	LamportsPerByteYear uint64
	ExemptionYears      uint64
}

func DefaultRent() Rent {
	return Rent{
		LamportsPerByteYear: DefaultLamportsPerByteYear,
		ExemptionYears:      DefaultExemptionYears,
	}
}

func (r Rent) MinimumBalance(size int) uint64 {
	return (uint64(size) + AccountStorageOverhead) * r.LamportsPerByteYear * r.ExemptionYears
}

// Host is the set of primitives the registry core needs from its execution
// environment. Accounts returned by Load remain valid, and mutable, for the
// remainder of the invocation.
type Host interface {
	// Load returns the account for key. Unknown keys yield an unallocated,
	// system owned account with a zero balance.
	Load(key keys.Key) (*Account, error)

	// Create allocates slot with size zeroed bytes, assigns it to owner and
	// funds it, from payer, up to the minimum balance for size.
	Create(payer, slot *Account, size int, owner keys.Key) error

	// Transfer moves amount from one account to another. from must be a
	// signer.
	Transfer(from, to *Account, amount uint64) error

	// Resize sets the data length of slot, preserving the common prefix and
	// zero filling any growth.
	Resize(slot *Account, size int) error

	Rent() Rent
}
