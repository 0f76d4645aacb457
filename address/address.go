// Package address derives the deterministic slot addresses the registry
// stores its records at, and checks that a presented slot is the one it
// claims to be.
//
// A derived address is a sha256 digest of the namespace tag, the seeds, a one
// byte nonce, the owning program id and a fixed marker. The canonical nonce is
// the largest one, counting down from 255, whose digest is *not* a valid
// ed25519 point. Rejecting curve points guarantees that no private key exists
// for the address, so only the owning program can ever act for it.
package address

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/forestrie/go-programregistry/host"
	"github.com/forestrie/go-programregistry/keys"
)

const (
	MaxSeeds     = 16
	MaxSeedBytes = 32

	derivedAddressMarker = "ProgramDerivedAddress"
)

// Namespace tags. Each kind of record lives under its own tag so that page n
// of one collection can never collide with page n of another.
const (
	NamespaceConfig      = "config"
	NamespacePrograms    = "storage"
	NamespaceNames       = "name_storage"
	NamespaceMarketplace = "marketplace_storage"
)

var (
	ErrAddressMismatch   = errors.New("the slot address does not match its derived address")
	ErrOwnershipMismatch = errors.New("the slot is not owned by the expected program")
	ErrTooManySeeds      = errors.New("too many seeds for a derived address")
	ErrSeedTooLong       = errors.New("a derived address seed exceeds 32 bytes")
	ErrNoViableNonce     = errors.New("no nonce produces an off curve address")
	ErrOnCurve           = errors.New("the derived address is a valid curve point")
)

// PageSeed is the big-endian page index suffix used for paginated
// collections.
func PageSeed(pageIndex uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], pageIndex)
	return b[:]
}

// PageSeeds is shorthand for the seeds of page pageIndex in a paginated
// collection.
func PageSeeds(pageIndex uint32) [][]byte {
	return [][]byte{PageSeed(pageIndex)}
}

// Create computes the address for an explicit nonce.
func Create(programID keys.Key, namespace string, nonce uint8, seeds ...[]byte) (keys.Key, error) {
	if len(seeds)+2 > MaxSeeds {
		return keys.Key{}, ErrTooManySeeds
	}
	if len(namespace) > MaxSeedBytes {
		return keys.Key{}, fmt.Errorf("%w: namespace %q", ErrSeedTooLong, namespace)
	}

	h := sha256.New()
	h.Write([]byte(namespace))
	for _, s := range seeds {
		if len(s) > MaxSeedBytes {
			return keys.Key{}, ErrSeedTooLong
		}
		h.Write(s)
	}
	h.Write([]byte{nonce})
	h.Write(programID[:])
	h.Write([]byte(derivedAddressMarker))

	var k keys.Key
	copy(k[:], h.Sum(nil))
	if onCurve(k) {
		return keys.Key{}, ErrOnCurve
	}
	return k, nil
}

// Derive finds the canonical address and nonce for namespace and seeds.
func Derive(programID keys.Key, namespace string, seeds ...[]byte) (keys.Key, uint8, error) {
	for n := 255; n >= 0; n-- {
		k, err := Create(programID, namespace, uint8(n), seeds...)
		if errors.Is(err, ErrOnCurve) {
			continue
		}
		if err != nil {
			return keys.Key{}, 0, err
		}
		return k, uint8(n), nil
	}
	return keys.Key{}, 0, ErrNoViableNonce
}

// MustDerive is Derive for callers whose seeds are known to be well formed.
func MustDerive(programID keys.Key, namespace string, seeds ...[]byte) keys.Key {
	k, _, err := Derive(programID, namespace, seeds...)
	if err != nil {
		panic(err)
	}
	return k
}

// VerifySlot checks that slot sits at the canonical address for namespace and
// seeds and returns the nonce.
func VerifySlot(slot *host.Account, programID keys.Key, namespace string, seeds ...[]byte) (uint8, error) {
	k, nonce, err := Derive(programID, namespace, seeds...)
	if err != nil {
		return 0, err
	}
	if slot.Key != k {
		return 0, fmt.Errorf("%w: %s is not %s/%x", ErrAddressMismatch, slot.Key, namespace, seeds)
	}
	return nonce, nil
}

// VerifyOwner checks that slot is currently owned by owner. For the registry's
// own slots this also tells "not created yet" apart from "created".
func VerifyOwner(slot *host.Account, owner keys.Key) error {
	if slot.Owner != owner {
		return fmt.Errorf("%w: %s owned by %s, want %s", ErrOwnershipMismatch, slot.Key, slot.Owner, owner)
	}
	return nil
}

// VerifyKey checks that slot is exactly the expected fixed key.
func VerifyKey(slot *host.Account, want keys.Key) error {
	if slot.Key != want {
		return fmt.Errorf("%w: %s, want %s", ErrAddressMismatch, slot.Key, want)
	}
	return nil
}

func onCurve(k keys.Key) bool {
	_, err := new(edwards25519.Point).SetBytes(k[:])
	return err == nil
}
