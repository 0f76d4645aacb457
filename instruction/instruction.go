// Package instruction is the wire form of the requests the processor
// accepts. Instructions are CBOR maps with small integer keys, encoded
// deterministically so the same request always produces the same bytes.
package instruction

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	ErrInvalidInstructionData = errors.New("the instruction data is not valid")
)

type Kind uint8

const (
	// KindUndefined is never valid on the wire.
	KindUndefined Kind = iota
	KindInitConfig
	KindAddProgram
	KindRemovePrograms
	KindAddMarketplaceProgram
	KindReset
)

func (k Kind) String() string {
	switch k {
	case KindInitConfig:
		return "InitConfig"
	case KindAddProgram:
		return "AddProgram"
	case KindRemovePrograms:
		return "RemovePrograms"
	case KindAddMarketplaceProgram:
		return "AddMarketplaceProgram"
	case KindReset:
		return "Reset"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ResetArgs says how far to rewind the counter and how many pages of each
// kind follow the config slot in the account list.
//
// With Floor false the supplied pages of each kind are pages 0, 1, ... and
// the counter returns to 0. With Floor true the counter returns to the start
// of its current program page and the supplied pages of each kind start at
// the page holding that floor.
type ResetArgs struct {
	Floor            bool   `cbor:"1,keyasint,omitempty"`
	ProgramPages     uint32 `cbor:"2,keyasint,omitempty"`
	NamePages        uint32 `cbor:"3,keyasint,omitempty"`
	MarketplacePages uint32 `cbor:"4,keyasint,omitempty"`
}

type Instruction struct {
	Kind Kind `cbor:"1,keyasint"`
	// Name is the optional display name for AddProgram.
	Name string `cbor:"2,keyasint,omitempty"`
	// Count is the RemovePrograms argument.
	Count uint32     `cbor:"3,keyasint,omitempty"`
	Reset *ResetArgs `cbor:"4,keyasint,omitempty"`
}

func InitConfig() Instruction { return Instruction{Kind: KindInitConfig} }

func AddProgram(name string) Instruction {
	return Instruction{Kind: KindAddProgram, Name: name}
}

func AddMarketplaceProgram() Instruction {
	return Instruction{Kind: KindAddMarketplaceProgram}
}

func RemovePrograms(count uint32) Instruction {
	return Instruction{Kind: KindRemovePrograms, Count: count}
}

func Reset(args ResetArgs) Instruction {
	return Instruction{Kind: KindReset, Reset: &args}
}

// Codec holds the deterministic encode and strict decode modes.
type Codec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func NewDeterministicEncOpts() cbor.EncOptions {
	return cbor.CoreDetEncOptions()
}

// NewStrictDecOpts rejects duplicate map keys and keys the Instruction does
// not define.
func NewStrictDecOpts() cbor.DecOptions {
	return cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		IndefLength:       cbor.IndefLengthForbidden,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}
}

func NewCodec() (Codec, error) {
	enc, err := NewDeterministicEncOpts().EncMode()
	if err != nil {
		return Codec{}, err
	}
	dec, err := NewStrictDecOpts().DecMode()
	if err != nil {
		return Codec{}, err
	}
	return Codec{enc: enc, dec: dec}, nil
}

func (c Codec) Encode(in Instruction) ([]byte, error) {
	return c.enc.Marshal(in)
}

// Decode parses data and checks the instruction is well formed for its
// kind. Every failure matches ErrInvalidInstructionData.
func (c Codec) Decode(data []byte) (Instruction, error) {
	var in Instruction
	if len(data) == 0 {
		return in, fmt.Errorf("%w: empty", ErrInvalidInstructionData)
	}
	if err := c.dec.Unmarshal(data, &in); err != nil {
		return Instruction{}, fmt.Errorf("%w: %v", ErrInvalidInstructionData, err)
	}
	if err := in.Validate(); err != nil {
		return Instruction{}, err
	}
	return in, nil
}

// Validate checks the fields present are the ones the kind takes.
func (in Instruction) Validate() error {
	switch in.Kind {
	case KindInitConfig, KindAddMarketplaceProgram:
		if in.Name != "" || in.Count != 0 || in.Reset != nil {
			return fmt.Errorf("%w: %s takes no arguments", ErrInvalidInstructionData, in.Kind)
		}
	case KindAddProgram:
		if in.Count != 0 || in.Reset != nil {
			return fmt.Errorf("%w: %s takes only a name", ErrInvalidInstructionData, in.Kind)
		}
	case KindRemovePrograms:
		if in.Name != "" || in.Reset != nil {
			return fmt.Errorf("%w: %s takes only a count", ErrInvalidInstructionData, in.Kind)
		}
	case KindReset:
		if in.Reset == nil || in.Name != "" || in.Count != 0 {
			return fmt.Errorf("%w: %s requires its reset arguments", ErrInvalidInstructionData, in.Kind)
		}
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidInstructionData, uint8(in.Kind))
	}
	return nil
}
