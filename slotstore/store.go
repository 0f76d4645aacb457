// Package slotstore persists host accounts outside of process memory.
//
// Writes are guarded optimistically: creating an account requires that it does
// not exist yet, updating one requires the etag returned by the read (or the
// previous write) that produced the caller's copy. Two processes racing on the
// same account therefore can not silently overwrite each other.
package slotstore

import (
	"context"
	"errors"
	"strings"

	"github.com/forestrie/go-programregistry/host"
	"github.com/forestrie/go-programregistry/keys"
)

var (
	ErrNotFound  = errors.New("account not found in the store")
	ErrExistsOC  = errors.New("optimistic concurrency failure, account already exists")
	ErrContentOC = errors.New("optimistic concurrency failure, account content does not match the expected etag")
)

const (
	SlotExt = ".slot"
)

// Store reads and writes persisted accounts.
type Store interface {
	// Read returns the account and its current etag, or ErrNotFound.
	Read(ctx context.Context, key keys.Key) (*host.Account, string, error)

	// Write stores a. An empty etag means create, and fails with ErrExistsOC
	// if the account is present. Otherwise the stored etag must equal etag or
	// the write fails with ErrContentOC. Returns the new etag.
	Write(ctx context.Context, a *host.Account, etag string) (string, error)

	// List returns the keys of every stored account.
	List(ctx context.Context) ([]keys.Key, error)
}

// SlotName is the object base name for key.
func SlotName(key keys.Key) string {
	return key.String() + SlotExt
}

// KeyFromSlotName recovers the key from an object base name.
func KeyFromSlotName(name string) (keys.Key, bool) {
	if !strings.HasSuffix(name, SlotExt) {
		return keys.Key{}, false
	}
	k, err := keys.Parse(strings.TrimSuffix(name, SlotExt))
	if err != nil {
		return keys.Key{}, false
	}
	return k, true
}
