package bloom

import (
	"encoding/binary"
	"errors"
)

// Header layout
//
// .         | magic | version | bit order | k | reserved | mBits | count | reserved
// .         | 0   3 |    4    |     5     | 6 |    7     | 8  11 | 12 15 | 16    31
// bytes     |   4   |    1    |     1     | 1 |    1     |   4   |   4   |    16
//
// Integers are big-endian. A region whose magic is all zero has never been
// initialized.
const (
	HeaderMagicFirstByte = 0
	HeaderMagicEnd       = HeaderMagicFirstByte + 4
	HeaderVersionByte    = HeaderMagicEnd
	HeaderBitOrderByte   = HeaderVersionByte + 1
	HeaderKByte          = HeaderBitOrderByte + 1
	// gap 7
	HeaderMBitsFirstByte = 8
	HeaderMBitsEnd       = HeaderMBitsFirstByte + 4
	HeaderCountFirstByte = HeaderMBitsEnd
	HeaderCountEnd       = HeaderCountFirstByte + 4

	HeaderBytesV1 = 32

	MagicV1         = "BLN1"
	VersionV1 uint8 = 1

	// BitOrderLSB0 means bit 0 is the least-significant bit of byte 0.
	BitOrderLSB0 uint8 = 0
)

var (
	ErrBadRegionSize  = errors.New("bloom: region buffer too small")
	ErrNotInitialized = errors.New("bloom: header not initialized")
	ErrEmptyElement   = errors.New("bloom: element must not be empty")

	ErrBadMagic    = errors.New("bloom: header magic invalid")
	ErrBadVersion  = errors.New("bloom: header version invalid")
	ErrBadBitOrder = errors.New("bloom: header bitOrder unsupported")
	ErrBadK        = errors.New("bloom: header k invalid")
	ErrBadMBits    = errors.New("bloom: header mBits invalid")

	ErrMBitsOverflow = errors.New("bloom: mBits overflows supported range")
)

type HeaderV1 struct {
	BitOrder uint8
	K        uint8
	MBits    uint32
	// Count is the number of elements inserted so far.
	Count uint32
}

func (h HeaderV1) validate() error {
	switch {
	case h.BitOrder != BitOrderLSB0:
		return ErrBadBitOrder
	case h.K == 0:
		return ErrBadK
	case h.MBits == 0:
		return ErrBadMBits
	}
	return nil
}

// DecodeHeaderV1 decodes a V1 header from region. ok is false, with no error,
// for a region that was never initialized.
func DecodeHeaderV1(region []byte) (h HeaderV1, ok bool, err error) {
	if len(region) < HeaderBytesV1 {
		return HeaderV1{}, false, ErrBadRegionSize
	}
	magic := region[HeaderMagicFirstByte:HeaderMagicEnd]
	switch string(magic) {
	case MagicV1:
	case "\x00\x00\x00\x00":
		return HeaderV1{}, false, nil
	default:
		return HeaderV1{}, false, ErrBadMagic
	}
	if region[HeaderVersionByte] != VersionV1 {
		return HeaderV1{}, false, ErrBadVersion
	}

	h = HeaderV1{
		BitOrder: region[HeaderBitOrderByte],
		K:        region[HeaderKByte],
		MBits:    binary.BigEndian.Uint32(region[HeaderMBitsFirstByte:HeaderMBitsEnd]),
		Count:    binary.BigEndian.Uint32(region[HeaderCountFirstByte:HeaderCountEnd]),
	}
	if err = h.validate(); err != nil {
		return HeaderV1{}, false, err
	}
	return h, true, nil
}

// EncodeHeaderV1 writes h into the first HeaderBytesV1 bytes of region,
// zeroing the reserved bytes.
func EncodeHeaderV1(region []byte, h HeaderV1) error {
	if len(region) < HeaderBytesV1 {
		return ErrBadRegionSize
	}
	if err := h.validate(); err != nil {
		return err
	}
	clear(region[:HeaderBytesV1])
	copy(region[HeaderMagicFirstByte:HeaderMagicEnd], MagicV1)
	region[HeaderVersionByte] = VersionV1
	region[HeaderBitOrderByte] = h.BitOrder
	region[HeaderKByte] = h.K
	binary.BigEndian.PutUint32(region[HeaderMBitsFirstByte:HeaderMBitsEnd], h.MBits)
	binary.BigEndian.PutUint32(region[HeaderCountFirstByte:HeaderCountEnd], h.Count)
	return nil
}
