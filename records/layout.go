package records

import "fmt"

// ProgramLayout selects the generation new program pages are created in.
// Existing pages keep whatever generation they were written with.
type ProgramLayout uint8

const (
	ProgramLayoutVector ProgramLayout = iota
	ProgramLayoutPacked
)

// NameLayout selects the generation new name pages are created in.
type NameLayout uint8

const (
	NameLayoutSet NameLayout = iota
	NameLayoutFixed
)

func ParseProgramLayout(s string) (ProgramLayout, error) {
	switch s {
	case "", "vector":
		return ProgramLayoutVector, nil
	case "packed":
		return ProgramLayoutPacked, nil
	}
	return 0, fmt.Errorf("%w: program layout %q", ErrUnknownLayout, s)
}

func (l ProgramLayout) String() string {
	if l == ProgramLayoutPacked {
		return "packed"
	}
	return "vector"
}

// NewPage returns an empty program page in this layout.
func (l ProgramLayout) NewPage() ProgramPage {
	if l == ProgramLayoutPacked {
		return NewProgramPacked()
	}
	return NewProgramVector()
}

func ParseNameLayout(s string) (NameLayout, error) {
	switch s {
	case "", "set":
		return NameLayoutSet, nil
	case "fixed":
		return NameLayoutFixed, nil
	}
	return 0, fmt.Errorf("%w: name layout %q", ErrUnknownLayout, s)
}

func (l NameLayout) String() string {
	if l == NameLayoutFixed {
		return "fixed"
	}
	return "set"
}

// NewPage returns an empty name page in this layout.
func (l NameLayout) NewPage() NamePage {
	if l == NameLayoutFixed {
		return NewNameFixed()
	}
	return NewNameSet()
}
