// Package keys provides the 32 byte identifiers used for programs, slots and
// payers, and their base58 text form.
package keys

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

const (
	// KeyBytes is the fixed width of every key.
	KeyBytes = 32
)

var (
	ErrKeyText   = errors.New("the key text is not valid base58")
	ErrKeyLength = errors.New("the decoded key is not 32 bytes")
)

// Key identifies a program, a storage slot or a funding account.
type Key [KeyBytes]byte

var (
	// SystemProgram owns every slot that has not been allocated yet.
	SystemProgram = Key{}

	// UpgradeableLoader owns deployed, executable programs.
	UpgradeableLoader = MustParse("BPFLoaderUpgradeab1e11111111111111111111111")
)

// Parse decodes the base58 text form of a key.
func Parse(s string) (Key, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return Key{}, fmt.Errorf("%w: %s: %v", ErrKeyText, s, err)
	}
	return FromBytes(b)
}

// MustParse is Parse for package level constants.
func MustParse(s string) Key {
	k, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return k
}

// FromBytes copies b into a Key. b must be exactly KeyBytes long.
func FromBytes(b []byte) (Key, error) {
	var k Key
	if len(b) != KeyBytes {
		return k, fmt.Errorf("%w: got %d", ErrKeyLength, len(b))
	}
	copy(k[:], b)
	return k, nil
}

func (k Key) String() string {
	return base58.Encode(k[:])
}

func (k Key) IsZero() bool {
	return k == Key{}
}

func (k Key) Bytes() []byte {
	return k[:]
}

// MarshalText supports config files and CBOR/JSON text fields.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Key) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}
