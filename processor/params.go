package processor

import (
	"errors"
	"fmt"

	"github.com/forestrie/go-programregistry/keys"
	"github.com/forestrie/go-programregistry/records"
)

const (
	DefaultFeeLamports     = 1_000_000_000
	DefaultProgramsPerPage = 625
	DefaultNamesPerPage    = 625
)

var (
	DefaultProgramID = keys.MustParse("38pfsot7kCZkrttx1THEDXEz4JJXmCCcaDoDieRtVuy5")
	DefaultTreasury  = keys.MustParse("Team111111111111111111111111111111111111111")

	ErrParamsNotValid = errors.New("the registry parameters are not valid")
)

// Params fixes the deployment a Processor serves. Every key and capacity here
// is part of the address space: changing one after records exist orphans
// them.
type Params struct {
	ProgramID keys.Key
	Treasury  keys.Key
	// Admin is the only key allowed to sign a Reset.
	Admin           keys.Key
	FeeLamports     uint64
	ProgramsPerPage uint32
	NamesPerPage    uint32
	ProgramLayout   records.ProgramLayout
	NameLayout      records.NameLayout
}

// DefaultParams has no admin, so Reset is refused until one is set.
func DefaultParams() Params {
	return Params{
		ProgramID:       DefaultProgramID,
		Treasury:        DefaultTreasury,
		FeeLamports:     DefaultFeeLamports,
		ProgramsPerPage: DefaultProgramsPerPage,
		NamesPerPage:    DefaultNamesPerPage,
		ProgramLayout:   records.ProgramLayoutVector,
		NameLayout:      records.NameLayoutSet,
	}
}

func (p Params) Validate() error {
	if p.ProgramID.IsZero() {
		return fmt.Errorf("%w: program id is required", ErrParamsNotValid)
	}
	if p.ProgramsPerPage == 0 || p.NamesPerPage == 0 {
		return fmt.Errorf("%w: page capacities must be greater than zero", ErrParamsNotValid)
	}
	return nil
}
