// Package records encodes and decodes the registry's persisted records.
//
// There is one decode entry point, Decode, keyed by the schema tag in the
// record header. Several generations of the page layouts coexist in the same
// address space, so callers never assume a single physical layout: they ask
// for a ProgramPage or a NamePage and get whichever generation the slot holds.
package records

import (
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/forestrie/go-programregistry/keys"
)

var (
	ErrSchemaTagMismatch = errors.New("the record schema tag does not match the expected record kind")
	ErrRecordTruncated   = errors.New("the record data is shorter than its header declares")
	ErrRecordCorrupt     = errors.New("the record entries violate the layout invariants")
	ErrBufferSize        = errors.New("the buffer is not exactly the size the record requires")
	ErrNameExists        = errors.New("the name is already present in the page")
	ErrNameTooLong       = errors.New("the name does not fit the page layout")
	ErrUnknownLayout     = errors.New("unknown record layout")
)

// Record is implemented by every persisted record kind.
type Record interface {
	SchemaTag() uint32
	// RequiredSize is the exact byte size of the encoded record.
	RequiredSize() int

	encodeEntries(buf []byte)
	count() int
}

// Encode writes r into buf. buf must already be exactly r.RequiredSize()
// bytes; Encode never resizes.
func Encode(r Record, buf []byte) error {
	if len(buf) != r.RequiredSize() {
		return fmt.Errorf("%w: have %d, need %d", ErrBufferSize, len(buf), r.RequiredSize())
	}
	binary.LittleEndian.PutUint32(buf[TagFirstByte:TagEnd], r.SchemaTag())
	binary.LittleEndian.PutUint32(buf[CountFirstByte:CountEnd], uint32(r.count()))
	r.encodeEntries(buf[HeaderBytes:])
	return nil
}

// Marshal allocates an exactly sized buffer and encodes r into it. It panics
// if r reports a size its own encoding does not fill.
func Marshal(r Record) []byte {
	buf := make([]byte, r.RequiredSize())
	if err := Encode(r, buf); err != nil {
		panic(err)
	}
	return buf
}

// PeekTag reads the schema tag without decoding the record.
func PeekTag(data []byte) (uint32, error) {
	if len(data) < HeaderBytes {
		return 0, fmt.Errorf("%w: %d byte header", ErrRecordTruncated, len(data))
	}
	return binary.LittleEndian.Uint32(data[TagFirstByte:TagEnd]), nil
}

// Decode decodes any record kind, selected by its schema tag.
func Decode(data []byte) (Record, error) {
	tag, err := PeekTag(data)
	if err != nil {
		return nil, err
	}
	n := int(binary.LittleEndian.Uint32(data[CountFirstByte:CountEnd]))
	entries := data[HeaderBytes:]

	switch tag {
	case CounterTag:
		return &GlobalCounter{Tag: tag, Count: uint32(n)}, nil
	case ProgramVectorTag, MarketplaceTag:
		return decodeVector(tag, n, entries)
	case ProgramPackedTag:
		return decodePacked(n, entries)
	case NameSetTag:
		return decodeNameSet(n, entries)
	case NameFixedTag:
		return decodeNameFixed(n, entries)
	}
	return nil, fmt.Errorf("%w: unknown tag %d", ErrSchemaTagMismatch, tag)
}

// DecodeCounter decodes data that must hold the GlobalCounter.
func DecodeCounter(data []byte) (*GlobalCounter, error) {
	r, err := Decode(data)
	if err != nil {
		return nil, err
	}
	c, ok := r.(*GlobalCounter)
	if !ok {
		return nil, fmt.Errorf("%w: tag %d is not the counter", ErrSchemaTagMismatch, r.SchemaTag())
	}
	return c, nil
}

// DecodeProgramPage decodes a program page of any generation.
func DecodeProgramPage(data []byte) (ProgramPage, error) {
	r, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if r.SchemaTag() == MarketplaceTag {
		return nil, fmt.Errorf("%w: marketplace page where a program page was expected", ErrSchemaTagMismatch)
	}
	p, ok := r.(ProgramPage)
	if !ok {
		return nil, fmt.Errorf("%w: tag %d is not a program page", ErrSchemaTagMismatch, r.SchemaTag())
	}
	return p, nil
}

// DecodeMarketplacePage decodes a marketplace page.
func DecodeMarketplacePage(data []byte) (*ProgramVector, error) {
	r, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if r.SchemaTag() != MarketplaceTag {
		return nil, fmt.Errorf("%w: tag %d is not a marketplace page", ErrSchemaTagMismatch, r.SchemaTag())
	}
	return r.(*ProgramVector), nil
}

// DecodeNamePage decodes a name page of any generation.
func DecodeNamePage(data []byte) (NamePage, error) {
	r, err := Decode(data)
	if err != nil {
		return nil, err
	}
	p, ok := r.(NamePage)
	if !ok {
		return nil, fmt.Errorf("%w: tag %d is not a name page", ErrSchemaTagMismatch, r.SchemaTag())
	}
	return p, nil
}

// GlobalCounter is the single source of truth for how many programs have been
// registered. Page indices are always recomputed from it.
type GlobalCounter struct {
	Tag   uint32
	Count uint32
}

func NewGlobalCounter() *GlobalCounter {
	return &GlobalCounter{Tag: CounterTag}
}

func (c *GlobalCounter) SchemaTag() uint32        { return c.Tag }
func (c *GlobalCounter) RequiredSize() int        { return counterRecordSize }
func (c *GlobalCounter) count() int               { return int(c.Count) }
func (c *GlobalCounter) encodeEntries(buf []byte) {}

// ProgramPage is one page of registered program keys, in any generation.
type ProgramPage interface {
	Record
	Len() int
	At(i int) keys.Key
	Index(k keys.Key) int
	Append(k keys.Key)
	RemoveAt(i int)
	// Empty returns a fresh, empty page of the same generation.
	Empty() ProgramPage
}

// DuplicateChecked is implemented by the page generations that keep their
// entries cheap enough to search on every append.
type DuplicateChecked interface {
	ChecksDuplicates() bool
}

// ProgramVector is the unbounded-vector generation. It is also the layout of
// marketplace pages, which differ only in their tag.
type ProgramVector struct {
	Tag      uint32
	Programs []keys.Key
}

func NewProgramVector() *ProgramVector {
	return &ProgramVector{Tag: ProgramVectorTag}
}

func NewMarketplacePage() *ProgramVector {
	return &ProgramVector{Tag: MarketplaceTag}
}

func (p *ProgramVector) SchemaTag() uint32 { return p.Tag }
func (p *ProgramVector) RequiredSize() int { return HeaderBytes + len(p.Programs)*KeyBytes }
func (p *ProgramVector) count() int        { return len(p.Programs) }
func (p *ProgramVector) Len() int          { return len(p.Programs) }
func (p *ProgramVector) At(i int) keys.Key { return p.Programs[i] }
func (p *ProgramVector) Append(k keys.Key) { p.Programs = append(p.Programs, k) }
func (p *ProgramVector) ChecksDuplicates() bool {
	return true
}

func (p *ProgramVector) Index(k keys.Key) int {
	return slices.Index(p.Programs, k)
}

func (p *ProgramVector) RemoveAt(i int) {
	p.Programs = slices.Delete(p.Programs, i, i+1)
}

func (p *ProgramVector) Empty() ProgramPage {
	return &ProgramVector{Tag: p.Tag}
}

func (p *ProgramVector) encodeEntries(buf []byte) {
	for i, k := range p.Programs {
		copy(buf[i*KeyBytes:(i+1)*KeyBytes], k[:])
	}
}

func decodeVector(tag uint32, n int, entries []byte) (*ProgramVector, error) {
	if len(entries) < n*KeyBytes {
		return nil, fmt.Errorf("%w: %d keys in %d bytes", ErrRecordTruncated, n, len(entries))
	}
	p := &ProgramVector{Tag: tag}
	if n > 0 {
		p.Programs = make([]keys.Key, n)
	}
	for i := range p.Programs {
		copy(p.Programs[i][:], entries[i*KeyBytes:(i+1)*KeyBytes])
	}
	return p, nil
}

// ProgramPacked is the positional generation: an explicit count followed by
// fixed 32 byte slots.
type ProgramPacked struct {
	Entries FixedSlots
}

func NewProgramPacked() *ProgramPacked {
	return &ProgramPacked{Entries: FixedSlots{width: KeyBytes}}
}

func (p *ProgramPacked) SchemaTag() uint32 { return ProgramPackedTag }
func (p *ProgramPacked) RequiredSize() int { return HeaderBytes + len(p.Entries.Bytes()) }
func (p *ProgramPacked) count() int        { return p.Entries.Len() }
func (p *ProgramPacked) Len() int          { return p.Entries.Len() }
func (p *ProgramPacked) Empty() ProgramPage {
	return NewProgramPacked()
}

// At panics if i is out of range, as indexing a slice does.
func (p *ProgramPacked) At(i int) keys.Key {
	b, err := p.Entries.At(i)
	if err != nil {
		panic(err)
	}
	return keys.Key(b)
}

func (p *ProgramPacked) Index(k keys.Key) int {
	return p.Entries.Index(k[:])
}

// Append panics if the entries are not key wide, which only a hand built
// ProgramPacked can get wrong.
func (p *ProgramPacked) Append(k keys.Key) {
	if err := p.Entries.Append(k[:]); err != nil {
		panic(err)
	}
}

// RemoveAt panics if i is out of range.
func (p *ProgramPacked) RemoveAt(i int) {
	if err := p.Entries.Remove(i); err != nil {
		panic(err)
	}
}

func (p *ProgramPacked) encodeEntries(buf []byte) {
	copy(buf, p.Entries.Bytes())
}

func decodePacked(n int, entries []byte) (*ProgramPacked, error) {
	if len(entries) < n*KeyBytes {
		return nil, fmt.Errorf("%w: %d keys in %d bytes", ErrRecordTruncated, n, len(entries))
	}
	p := NewProgramPacked()
	if n > 0 {
		p.Entries.data = append([]byte(nil), entries[:n*KeyBytes]...)
	}
	return p, nil
}

// NamePage is one page of normalized names, in any generation.
type NamePage interface {
	Record
	Len() int
	// Names returns the names in storage order.
	Names() []string
	Contains(name string) bool
	// Insert adds name, which must already be normalized.
	Insert(name string) error
	Empty() NamePage
}

// NameSet is the set generation: length prefixed names kept in strictly
// ascending order.
type NameSet struct {
	Set []string
}

func NewNameSet() *NameSet {
	return &NameSet{}
}

func (p *NameSet) SchemaTag() uint32 { return NameSetTag }
func (p *NameSet) count() int        { return len(p.Set) }
func (p *NameSet) Len() int          { return len(p.Set) }
func (p *NameSet) Names() []string   { return slices.Clone(p.Set) }
func (p *NameSet) Empty() NamePage   { return NewNameSet() }

func (p *NameSet) RequiredSize() int {
	size := HeaderBytes
	for _, name := range p.Set {
		size += NameLengthPrefixBytes + len(name)
	}
	return size
}

func (p *NameSet) Contains(name string) bool {
	i := sort.SearchStrings(p.Set, name)
	return i < len(p.Set) && p.Set[i] == name
}

func (p *NameSet) Insert(name string) error {
	i := sort.SearchStrings(p.Set, name)
	if i < len(p.Set) && p.Set[i] == name {
		return fmt.Errorf("%w: %q", ErrNameExists, name)
	}
	p.Set = slices.Insert(p.Set, i, name)
	return nil
}

func (p *NameSet) encodeEntries(buf []byte) {
	off := 0
	for _, name := range p.Set {
		binary.LittleEndian.PutUint32(buf[off:off+NameLengthPrefixBytes], uint32(len(name)))
		off += NameLengthPrefixBytes
		off += copy(buf[off:], name)
	}
}

func decodeNameSet(n int, entries []byte) (*NameSet, error) {
	p := NewNameSet()
	off := 0
	for i := 0; i < n; i++ {
		if len(entries)-off < NameLengthPrefixBytes {
			return nil, fmt.Errorf("%w: name %d length", ErrRecordTruncated, i)
		}
		l := int(binary.LittleEndian.Uint32(entries[off : off+NameLengthPrefixBytes]))
		off += NameLengthPrefixBytes
		if l > len(entries)-off {
			return nil, fmt.Errorf("%w: name %d body", ErrRecordTruncated, i)
		}
		name := string(entries[off : off+l])
		off += l
		if len(p.Set) > 0 && p.Set[len(p.Set)-1] >= name {
			return nil, fmt.Errorf("%w: names out of order at %d", ErrRecordCorrupt, i)
		}
		p.Set = append(p.Set, name)
	}
	return p, nil
}

// NameFixed is the fixed-slot generation: an explicit count followed by 12
// byte, zero padded, name slots.
type NameFixed struct {
	Entries FixedSlots
}

func NewNameFixed() *NameFixed {
	return &NameFixed{Entries: FixedSlots{width: NameBytes}}
}

func (p *NameFixed) SchemaTag() uint32 { return NameFixedTag }
func (p *NameFixed) RequiredSize() int { return HeaderBytes + len(p.Entries.Bytes()) }
func (p *NameFixed) count() int        { return p.Entries.Len() }
func (p *NameFixed) Len() int          { return p.Entries.Len() }
func (p *NameFixed) Empty() NamePage   { return NewNameFixed() }

func (p *NameFixed) Names() []string {
	names := make([]string, 0, p.Entries.Len())
	for i := 0; i < p.Entries.Len(); i++ {
		b, _ := p.Entries.At(i)
		names = append(names, trimPadding(b))
	}
	return names
}

func (p *NameFixed) Contains(name string) bool {
	if len(name) == 0 {
		return false
	}
	return p.Entries.Index([]byte(name)) >= 0
}

func (p *NameFixed) Insert(name string) error {
	if len(name) > NameBytes {
		return fmt.Errorf("%w: %q", ErrNameTooLong, name)
	}
	if p.Contains(name) {
		return fmt.Errorf("%w: %q", ErrNameExists, name)
	}
	return p.Entries.Append([]byte(name))
}

func (p *NameFixed) encodeEntries(buf []byte) {
	copy(buf, p.Entries.Bytes())
}

func decodeNameFixed(n int, entries []byte) (*NameFixed, error) {
	if len(entries) < n*NameBytes {
		return nil, fmt.Errorf("%w: %d names in %d bytes", ErrRecordTruncated, n, len(entries))
	}
	p := NewNameFixed()
	if n > 0 {
		p.Entries.data = append([]byte(nil), entries[:n*NameBytes]...)
	}
	return p, nil
}

func trimPadding(b []byte) string {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return string(b[:end])
}
