package bloom

import (
	"crypto/sha256"
	"encoding/binary"
)

const bloomDomainV1 = 0xB1

// InitV1 initializes region as an empty filter of mBits bits with k probes.
// region must be at least RegionBytesV1(mBits) long.
func InitV1(region []byte, mBits uint32, k uint8) error {
	if mBits == 0 {
		return ErrBadMBits
	}
	need := RegionBytesV1(mBits)
	if len(region) < need {
		return ErrBadRegionSize
	}
	// Ensure clean initialization even if region is reused.
	clear(region[:need])

	return EncodeHeaderV1(region, HeaderV1{
		BitOrder: BitOrderLSB0,
		K:        k,
		MBits:    mBits,
	})
}

// NewV1 allocates and initializes a region sized for n elements.
func NewV1(n uint64, bitsPerElement uint64, k uint8) ([]byte, error) {
	mBits := MBitsV1(n, bitsPerElement)
	if mBits == 0 {
		return nil, ErrMBitsOverflow
	}
	region := make([]byte, RegionBytesV1(mBits))
	if err := InitV1(region, mBits, k); err != nil {
		return nil, err
	}
	return region, nil
}

// InsertV1 adds elem and increments Count in the header.
func InsertV1(region []byte, elem []byte) error {
	h, bitset, err := openV1(region, elem)
	if err != nil {
		return err
	}
	h1, h2 := hashPairV1(elem)
	setBitsLSB0(bitset, uint64(h.MBits), h.K, h1, h2)

	h.Count++
	return EncodeHeaderV1(region, h)
}

// MaybeContainsV1 returns false only when elem was never inserted.
func MaybeContainsV1(region []byte, elem []byte) (bool, error) {
	h, bitset, err := openV1(region, elem)
	if err != nil {
		return false, err
	}
	h1, h2 := hashPairV1(elem)
	return testBitsLSB0(bitset, uint64(h.MBits), h.K, h1, h2), nil
}

func openV1(region []byte, elem []byte) (HeaderV1, []byte, error) {
	if len(elem) == 0 {
		return HeaderV1{}, nil, ErrEmptyElement
	}
	h, ok, err := DecodeHeaderV1(region)
	if err != nil {
		return HeaderV1{}, nil, err
	}
	if !ok {
		return HeaderV1{}, nil, ErrNotInitialized
	}
	end := RegionBytesV1(h.MBits)
	if len(region) < end {
		return HeaderV1{}, nil, ErrBadRegionSize
	}
	return h, region[HeaderBytesV1:end], nil
}

func hashPairV1(elem []byte) (h1 uint64, h2 uint64) {
	// SHA-256( 0xB1 || elem )
	d := sha256.New()
	d.Write([]byte{bloomDomainV1})
	d.Write(elem)
	sum := d.Sum(nil)
	h1 = binary.BigEndian.Uint64(sum[0:8])
	h2 = binary.BigEndian.Uint64(sum[8:16])
	if h2 == 0 {
		h2 = 1
	}
	return h1, h2
}

func setBitsLSB0(bitset []byte, mBits uint64, k uint8, h1, h2 uint64) {
	for i := uint64(0); i < uint64(k); i++ {
		j := (h1 + i*h2) % mBits
		bitset[j>>3] |= 1 << uint8(j&7)
	}
}

func testBitsLSB0(bitset []byte, mBits uint64, k uint8, h1, h2 uint64) bool {
	for i := uint64(0); i < uint64(k); i++ {
		j := (h1 + i*h2) % mBits
		if bitset[j>>3]&(1<<uint8(j&7)) == 0 {
			return false
		}
	}
	return true
}
