package bloom

// MBitsV1 returns the bitset size for n elements at bitsPerElement, or 0 if
// the product does not fit the header's 32 bit field.
func MBitsV1(n uint64, bitsPerElement uint64) uint32 {
	if n == 0 || bitsPerElement == 0 || bitsPerElement > uint64(^uint32(0)) {
		return 0
	}
	m := n * bitsPerElement
	if m/n != bitsPerElement || m > uint64(^uint32(0)) {
		return 0
	}
	return uint32(m)
}

// BitsetBytesV1 returns ceil(mBits/8).
func BitsetBytesV1(mBits uint32) uint32 {
	return uint32((uint64(mBits) + 7) / 8)
}

// RegionBytesV1 returns HeaderBytesV1 + ceil(mBits/8).
func RegionBytesV1(mBits uint32) int {
	return HeaderBytesV1 + int(BitsetBytesV1(mBits))
}
