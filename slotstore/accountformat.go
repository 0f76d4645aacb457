package slotstore

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/forestrie/go-programregistry/host"
	"github.com/forestrie/go-programregistry/keys"
)

// Persisted account layout
//
// .         | owner  | balance | flags | reserved | data length | data ...
// .         | 0   31 | 32   39 |  40   | 41    43 | 44       47 | 48 ...
// bytes     |   32   |    8    |   1   |    3     |      4      |
//
// Integers are big-endian. The data that follows is the slot's raw bytes,
// exactly as the registry encoded them.

const (
	AccountOwnerFirstByte   = 0
	AccountOwnerEnd         = AccountOwnerFirstByte + keys.KeyBytes
	AccountBalanceFirstByte = AccountOwnerEnd
	AccountBalanceEnd       = AccountBalanceFirstByte + 8
	AccountFlagsByte        = AccountBalanceEnd
	// gap 41 - 43
	AccountDataLenFirstByte = 44
	AccountDataLenEnd       = AccountDataLenFirstByte + 4

	AccountHeaderBytes = AccountDataLenEnd

	flagExecutable = 1 << 0
)

var (
	ErrAccountHeaderShort = errors.New("the persisted account is shorter than its header")
	ErrAccountDataLength  = errors.New("the persisted account data length does not match its header")
)

// EncodeAccount serializes the durable part of an account. The signer flag is
// per invocation and is not persisted.
func EncodeAccount(a *host.Account) []byte {
	b := make([]byte, AccountHeaderBytes+len(a.Data))
	copy(b[AccountOwnerFirstByte:AccountOwnerEnd], a.Owner[:])
	binary.BigEndian.PutUint64(b[AccountBalanceFirstByte:AccountBalanceEnd], a.Balance)
	if a.Executable {
		b[AccountFlagsByte] |= flagExecutable
	}
	binary.BigEndian.PutUint32(b[AccountDataLenFirstByte:AccountDataLenEnd], uint32(len(a.Data)))
	copy(b[AccountHeaderBytes:], a.Data)
	return b
}

// DecodeAccount is the inverse of EncodeAccount. The key is not part of the
// persisted form, it is the storage location.
func DecodeAccount(key keys.Key, b []byte) (*host.Account, error) {
	if len(b) < AccountHeaderBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrAccountHeaderShort, len(b))
	}
	n := binary.BigEndian.Uint32(b[AccountDataLenFirstByte:AccountDataLenEnd])
	if uint64(len(b)-AccountHeaderBytes) != uint64(n) {
		return nil, fmt.Errorf("%w: header %d, have %d", ErrAccountDataLength, n, len(b)-AccountHeaderBytes)
	}
	a := &host.Account{
		Key:        key,
		Balance:    binary.BigEndian.Uint64(b[AccountBalanceFirstByte:AccountBalanceEnd]),
		Executable: b[AccountFlagsByte]&flagExecutable != 0,
	}
	copy(a.Owner[:], b[AccountOwnerFirstByte:AccountOwnerEnd])
	if n > 0 {
		a.Data = append([]byte(nil), b[AccountHeaderBytes:]...)
	}
	return a, nil
}
