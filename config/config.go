// Package config loads the deployment description of a registry from an HCL
// file:
//
//	program_id        = "38pfsot7kCZkrttx1THEDXEz4JJXmCCcaDoDieRtVuy5"
//	treasury          = "Team111111111111111111111111111111111111111"
//	admin             = "..."
//	fee_lamports      = 1000000000
//	programs_per_page = 625
//	names_per_page    = 625
//	program_layout    = "vector"
//	name_layout       = "set"
//	log_level         = "INFO"
//
//	rent {
//	  lamports_per_byte_year = 3480
//	  exemption_years        = 2
//	}
//
//	store {
//	  kind = "dir"
//	  path = "./slots"
//	}
//
// Every attribute and block is optional.
package config

import (
	"errors"
	"fmt"

	"github.com/forestrie/go-programregistry/host"
	"github.com/forestrie/go-programregistry/keys"
	"github.com/forestrie/go-programregistry/processor"
	"github.com/forestrie/go-programregistry/records"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

const (
	StoreMemory = "memory"
	StoreDir    = "dir"
	StoreBlob   = "blob"

	DefaultLogLevel  = "INFO"
	DefaultStorePath = "registry-slots"
	DefaultContainer = "registry"
)

var (
	ErrConfigNotValid = errors.New("the registry configuration is not valid")
)

// StoreConfig says where committed accounts are kept between runs.
type StoreConfig struct {
	Kind string `hcl:"kind"`
	// Path is the directory for the dir store.
	Path string `hcl:"path,optional"`
	// Container is the blob container for the blob store.
	Container string `hcl:"container,optional"`
}

type RentConfig struct {
	LamportsPerByteYear uint64 `hcl:"lamports_per_byte_year,optional"`
	ExemptionYears      uint64 `hcl:"exemption_years,optional"`
}

// fileConfig is the decoding target. Fields are pre-filled with defaults and
// gohcl leaves absent optional attributes untouched.
type fileConfig struct {
	ProgramID       string       `hcl:"program_id,optional"`
	Treasury        string       `hcl:"treasury,optional"`
	Admin           string       `hcl:"admin,optional"`
	FeeLamports     uint64       `hcl:"fee_lamports,optional"`
	ProgramsPerPage uint32       `hcl:"programs_per_page,optional"`
	NamesPerPage    uint32       `hcl:"names_per_page,optional"`
	ProgramLayout   string       `hcl:"program_layout,optional"`
	NameLayout      string       `hcl:"name_layout,optional"`
	LogLevel        string       `hcl:"log_level,optional"`
	Rent            *RentConfig  `hcl:"rent,block"`
	Store           *StoreConfig `hcl:"store,block"`
}

type Config struct {
	Params   processor.Params
	Rent     host.Rent
	LogLevel string
	Store    StoreConfig
}

// Default is the configuration used when no file is given.
func Default() Config {
	return Config{
		Params:   processor.DefaultParams(),
		Rent:     host.DefaultRent(),
		LogLevel: DefaultLogLevel,
		Store:    StoreConfig{Kind: StoreDir, Path: DefaultStorePath},
	}
}

func defaultFile() fileConfig {
	d := processor.DefaultParams()
	return fileConfig{
		ProgramID:       d.ProgramID.String(),
		Treasury:        d.Treasury.String(),
		FeeLamports:     d.FeeLamports,
		ProgramsPerPage: d.ProgramsPerPage,
		NamesPerPage:    d.NamesPerPage,
		ProgramLayout:   d.ProgramLayout.String(),
		NameLayout:      d.NameLayout.String(),
		LogLevel:        DefaultLogLevel,
	}
}

// Load reads and validates the HCL file at path.
func Load(path string) (Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, diags)
	}
	return decode(file, path)
}

// Parse is Load for in-memory source; filename is only used in diagnostics.
func Parse(src []byte, filename string) (Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", filename, diags)
	}
	return decode(file, filename)
}

func decode(file *hcl.File, filename string) (Config, error) {
	fc := defaultFile()
	if diags := gohcl.DecodeBody(file.Body, nil, &fc); diags.HasErrors() {
		return Config{}, fmt.Errorf("failed to decode config %s: %w", filename, diags)
	}
	cfg, err := fc.resolve()
	if err != nil {
		return Config{}, err
	}
	if err = cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (fc fileConfig) resolve() (Config, error) {
	cfg := Default()
	cfg.LogLevel = fc.LogLevel

	var err error
	parseKey := func(field, s string) keys.Key {
		if err != nil || s == "" {
			return keys.Key{}
		}
		var k keys.Key
		if k, err = keys.Parse(s); err != nil {
			err = fmt.Errorf("%w: %s: %v", ErrConfigNotValid, field, err)
		}
		return k
	}
	cfg.Params.ProgramID = parseKey("program_id", fc.ProgramID)
	cfg.Params.Treasury = parseKey("treasury", fc.Treasury)
	cfg.Params.Admin = parseKey("admin", fc.Admin)
	if err != nil {
		return Config{}, err
	}

	cfg.Params.FeeLamports = fc.FeeLamports
	cfg.Params.ProgramsPerPage = fc.ProgramsPerPage
	cfg.Params.NamesPerPage = fc.NamesPerPage
	if cfg.Params.ProgramLayout, err = records.ParseProgramLayout(fc.ProgramLayout); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfigNotValid, err)
	}
	if cfg.Params.NameLayout, err = records.ParseNameLayout(fc.NameLayout); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfigNotValid, err)
	}

	if fc.Rent != nil {
		if fc.Rent.LamportsPerByteYear != 0 {
			cfg.Rent.LamportsPerByteYear = fc.Rent.LamportsPerByteYear
		}
		if fc.Rent.ExemptionYears != 0 {
			cfg.Rent.ExemptionYears = fc.Rent.ExemptionYears
		}
	}
	if fc.Store != nil {
		cfg.Store = *fc.Store
		if cfg.Store.Kind == StoreDir && cfg.Store.Path == "" {
			cfg.Store.Path = DefaultStorePath
		}
		if cfg.Store.Kind == StoreBlob && cfg.Store.Container == "" {
			cfg.Store.Container = DefaultContainer
		}
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := c.Params.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigNotValid, err)
	}
	if c.Params.Treasury.IsZero() {
		return fmt.Errorf("%w: treasury is required", ErrConfigNotValid)
	}
	switch c.Store.Kind {
	case StoreMemory, StoreDir, StoreBlob:
	default:
		return fmt.Errorf("%w: unknown store kind %q", ErrConfigNotValid, c.Store.Kind)
	}
	return nil
}
