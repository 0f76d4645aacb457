package records

// Every record starts with the same 8 byte header
//
// .         | schema tag | count  | entries ...
// .         | 0        3 | 4    7 | 8 ...
// bytes     |     4      |   4    |
//
// Integers are little-endian. The count is the number of entries that follow,
// except for the GlobalCounter where it *is* the payload. The schema tag is a
// fixed sentinel per record kind and generation; it is checked on every
// decode and a mismatch is treated as corruption.
//
// Entry layouts
//
//	program page, vector generation   count x 32 byte key
//	program page, positional          count x 32 byte key (fixed slots)
//	name page, set generation         count x (u32 length, bytes), strictly ascending
//	name page, fixed-slot generation  count x 12 byte zero padded name
//	marketplace page                  as the program vector generation
//
// A record never carries slack: the slot holding it is sized to exactly
// RequiredSize() bytes.

const (
	TagFirstByte   = 0
	TagSize        = 4
	TagEnd         = TagFirstByte + TagSize
	CountFirstByte = TagEnd
	CountSize      = 4
	CountEnd       = CountFirstByte + CountSize

	HeaderBytes = CountEnd

	// KeyBytes is the width of a program or marketplace entry.
	KeyBytes = 32
	// NameBytes is the width of a fixed-slot name entry.
	NameBytes = 12
	// MaxNameLength bounds a normalized name in every generation.
	MaxNameLength = NameBytes
	// NameLengthPrefixBytes precedes each name in the set generation.
	NameLengthPrefixBytes = 4
)

// Schema tags. Values for the counter and the vector program page are the
// ones the deployed registry has always written.
const (
	CounterTag       uint32 = 373_836_823
	ProgramVectorTag uint32 = 332_049_381
	ProgramPackedTag uint32 = 332_049_397
	NameSetTag       uint32 = 418_224_163
	NameFixedTag     uint32 = 418_224_179
	MarketplaceTag   uint32 = 509_117_027
)

// the counter has no entries, its count field is the payload
const counterRecordSize = HeaderBytes
