// Package processor is the dispatch shell of the registry. It decodes an
// instruction, checks every presented slot against its derived address, and
// drives the codec, the allocator, the pagination engine and the registry
// mutators in that order.
//
// Process relies on the host for atomicity. Any error it returns aborts the
// invocation and the host discards every mutation made so far, so the code
// here never unwinds partial work.
package processor

import (
	"errors"
	"fmt"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/forestrie/go-programregistry/address"
	"github.com/forestrie/go-programregistry/host"
	"github.com/forestrie/go-programregistry/instruction"
	"github.com/forestrie/go-programregistry/keys"
	"github.com/forestrie/go-programregistry/paging"
	"github.com/forestrie/go-programregistry/records"
	"github.com/forestrie/go-programregistry/registry"
	"github.com/forestrie/go-programregistry/slots"
)

var (
	ErrNotEnoughAccounts    = errors.New("not enough accounts for the instruction")
	ErrAlreadyInitialized   = errors.New("the registry config is already initialized")
	ErrUninitialized        = errors.New("the registry config is not initialized")
	ErrTreasuryMismatch     = errors.New("the treasury account is not the configured treasury")
	ErrProgramNotExecutable = errors.New("the program to register is not an executable program")
	ErrUnauthorized         = errors.New("the reset authority is not the configured admin signer")
	ErrResetMisaligned      = errors.New("the reset floor does not start a name page")
	ErrResetIncomplete      = errors.New("the reset does not cover every page past the floor")

	// ErrNotImplemented is returned for instructions that are declared but
	// have no behaviour. It also matches instruction.ErrInvalidInstructionData.
	ErrNotImplemented = fmt.Errorf("%w: not implemented", instruction.ErrInvalidInstructionData)
)

type Processor struct {
	Params
	Log logger.Logger

	codec    instruction.Codec
	programs paging.Engine
	names    paging.Engine
}

func New(log logger.Logger, params Params) (*Processor, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	codec, err := instruction.NewCodec()
	if err != nil {
		return nil, err
	}
	return &Processor{
		Params:   params,
		Log:      log,
		codec:    codec,
		programs: paging.Engine{Capacity: params.ProgramsPerPage},
		names:    paging.Engine{Capacity: params.NamesPerPage},
	}, nil
}

func (p *Processor) Codec() instruction.Codec { return p.codec }

// Process executes one encoded instruction against accounts, which are
// consumed in the order documented for each instruction kind.
func (p *Processor) Process(h host.Host, accounts []keys.Key, data []byte) error {
	in, err := p.codec.Decode(data)
	if err != nil {
		p.Log.Infof("Error @ instruction decode: %v", err)
		return err
	}
	p.Log.Debugf("processing %s with %d accounts", in.Kind, len(accounts))

	list := &accountList{h: h, keys: accounts}
	switch in.Kind {
	case instruction.KindInitConfig:
		err = p.initConfig(h, list)
	case instruction.KindAddProgram:
		err = p.addProgram(h, list, in.Name)
	case instruction.KindAddMarketplaceProgram:
		err = p.addMarketplaceProgram(h, list)
	case instruction.KindRemovePrograms:
		err = fmt.Errorf("%w: %s", ErrNotImplemented, in.Kind)
	case instruction.KindReset:
		err = p.reset(h, list, *in.Reset)
	}
	if err != nil {
		p.Log.Infof("Error @ %s: %v", in.Kind, err)
		return err
	}
	return nil
}

func (p *Processor) initConfig(h host.Host, list *accountList) error {
	payer, err := list.signer("payer")
	if err != nil {
		return err
	}
	config, err := list.next("config")
	if err != nil {
		return err
	}
	if _, err = address.VerifySlot(config, p.ProgramID, address.NamespaceConfig); err != nil {
		return err
	}
	if config.Allocated() {
		return fmt.Errorf("%w: %s", ErrAlreadyInitialized, config.Key)
	}
	return p.store(h, config, payer, records.NewGlobalCounter())
}

func (p *Processor) addProgram(h host.Host, list *accountList, rawName string) error {
	payer, config, counter, err := p.loadConfig(list)
	if err != nil {
		return err
	}
	program, treasury, err := p.loadProgramAndTreasury(list)
	if err != nil {
		return err
	}

	pageIndex, _ := p.programs.Target(counter)
	pageSlot, err := list.next("program page")
	if err != nil {
		return err
	}
	if _, err = address.VerifySlot(pageSlot, p.ProgramID, address.NamespacePrograms, address.PageSeed(pageIndex)); err != nil {
		return err
	}

	// Names are validated and checked for uniqueness across every page before
	// anything is allocated.
	var nameSlots []*host.Account
	var namePages []records.NamePage
	if rawName != "" {
		if nameSlots, namePages, err = p.loadNamePages(list, counter); err != nil {
			return err
		}
		if _, err = registry.CheckName(rawName, namePages); err != nil {
			return err
		}
	}

	page, err := p.loadProgramPage(pageSlot)
	if err != nil {
		return err
	}
	if err = registry.AddProgram(page, program.Key, p.ProgramsPerPage); err != nil {
		return err
	}
	if err = p.store(h, pageSlot, payer, page); err != nil {
		return err
	}

	if rawName != "" {
		if _, err = registry.AddName(rawName, namePages, p.NamesPerPage); err != nil {
			return err
		}
		last := len(namePages) - 1
		if err = p.store(h, nameSlots[last], payer, namePages[last]); err != nil {
			return err
		}
	}

	return p.chargeAndAdvance(h, payer, treasury, config, counter)
}

func (p *Processor) addMarketplaceProgram(h host.Host, list *accountList) error {
	payer, config, counter, err := p.loadConfig(list)
	if err != nil {
		return err
	}
	program, treasury, err := p.loadProgramAndTreasury(list)
	if err != nil {
		return err
	}

	pageIndex, _ := p.programs.Target(counter)
	pageSlot, err := list.next("marketplace page")
	if err != nil {
		return err
	}
	if _, err = address.VerifySlot(pageSlot, p.ProgramID, address.NamespaceMarketplace, address.PageSeed(pageIndex)); err != nil {
		return err
	}

	var page records.ProgramPage = records.NewMarketplacePage()
	if pageSlot.Allocated() {
		if err = address.VerifyOwner(pageSlot, p.ProgramID); err != nil {
			return err
		}
		if page, err = records.DecodeMarketplacePage(pageSlot.Data); err != nil {
			return err
		}
	}
	if err = registry.AddProgram(page, program.Key, p.ProgramsPerPage); err != nil {
		return err
	}
	if err = p.store(h, pageSlot, payer, page); err != nil {
		return err
	}
	return p.chargeAndAdvance(h, payer, treasury, config, counter)
}

func (p *Processor) reset(h host.Host, list *accountList, args instruction.ResetArgs) error {
	authority, err := list.next("authority")
	if err != nil {
		return err
	}
	if !authority.Signer || p.Admin.IsZero() || authority.Key != p.Admin {
		return fmt.Errorf("%w: %s", ErrUnauthorized, authority.Key)
	}
	config, err := list.next("config")
	if err != nil {
		return err
	}
	counter, err := p.loadCounter(config)
	if err != nil {
		return err
	}

	// A floor inside a name page would strand the names of the discarded
	// registrations on a page that is kept.
	var floor uint32
	if args.Floor {
		floor = p.programs.Floor(counter)
		if !paging.IsPageBoundary(floor, p.NamesPerPage) {
			return fmt.Errorf("%w: floor %d, %d names per page", ErrResetMisaligned, floor, p.NamesPerPage)
		}
	}

	kinds := []struct {
		namespace string
		capacity  uint32
		n         uint32
	}{
		{address.NamespacePrograms, p.ProgramsPerPage, args.ProgramPages},
		{address.NamespaceNames, p.NamesPerPage, args.NamePages},
		{address.NamespaceMarketplace, p.ProgramsPerPage, args.MarketplacePages},
	}
	// Every page holding an entry at or past the floor must be reset, or the
	// pages would disagree with the rewound counter.
	for _, kind := range kinds {
		if need := paging.PagesSpanned(floor, counter.Count, kind.capacity); kind.n < need {
			return fmt.Errorf("%w: %d %s pages supplied, %d needed", ErrResetIncomplete, kind.n, kind.namespace, need)
		}
	}
	p.Log.Infof("reset of %s from %d to %d", config.Key, counter.Count, floor)

	alloc := slots.NewAllocator(h, p.ProgramID, p.Log)
	for _, kind := range kinds {
		first := paging.PageIndex(floor, kind.capacity)
		for i := range kind.n {
			slot, err := list.next(kind.namespace)
			if err != nil {
				return err
			}
			if _, err = address.VerifySlot(slot, p.ProgramID, kind.namespace, address.PageSeed(first+i)); err != nil {
				return err
			}
			if err = p.reinitialise(alloc, slot, kind.namespace); err != nil {
				return err
			}
		}
	}

	counter.Count = floor
	return records.Encode(counter, config.Data)
}

// reinitialise replaces the page held by slot with an empty page of the same
// generation. Slots nobody created are left alone.
func (p *Processor) reinitialise(alloc *slots.Allocator, slot *host.Account, namespace string) error {
	if !slot.Allocated() {
		return nil
	}
	if err := address.VerifyOwner(slot, p.ProgramID); err != nil {
		return err
	}
	var empty records.Record
	switch namespace {
	case address.NamespacePrograms:
		page, err := records.DecodeProgramPage(slot.Data)
		if err != nil {
			return err
		}
		empty = page.Empty()
	case address.NamespaceNames:
		page, err := records.DecodeNamePage(slot.Data)
		if err != nil {
			return err
		}
		empty = page.Empty()
	case address.NamespaceMarketplace:
		page, err := records.DecodeMarketplacePage(slot.Data)
		if err != nil {
			return err
		}
		empty = page.Empty()
	}
	if err := alloc.Truncate(slot, empty.RequiredSize()); err != nil {
		return err
	}
	return records.Encode(empty, slot.Data)
}

// loadConfig consumes the payer and config accounts.
func (p *Processor) loadConfig(list *accountList) (*host.Account, *host.Account, *records.GlobalCounter, error) {
	payer, err := list.signer("payer")
	if err != nil {
		return nil, nil, nil, err
	}
	config, err := list.next("config")
	if err != nil {
		return nil, nil, nil, err
	}
	counter, err := p.loadCounter(config)
	if err != nil {
		return nil, nil, nil, err
	}
	return payer, config, counter, nil
}

func (p *Processor) loadCounter(config *host.Account) (*records.GlobalCounter, error) {
	if _, err := address.VerifySlot(config, p.ProgramID, address.NamespaceConfig); err != nil {
		return nil, err
	}
	if !config.Allocated() {
		return nil, fmt.Errorf("%w: %s", ErrUninitialized, config.Key)
	}
	if err := address.VerifyOwner(config, p.ProgramID); err != nil {
		return nil, err
	}
	return records.DecodeCounter(config.Data)
}

// loadProgramAndTreasury consumes the program to register and the treasury.
func (p *Processor) loadProgramAndTreasury(list *accountList) (*host.Account, *host.Account, error) {
	program, err := list.next("program")
	if err != nil {
		return nil, nil, err
	}
	if err = address.VerifyOwner(program, keys.UpgradeableLoader); err != nil {
		return nil, nil, err
	}
	if !program.Executable {
		return nil, nil, fmt.Errorf("%w: %s", ErrProgramNotExecutable, program.Key)
	}
	treasury, err := list.next("treasury")
	if err != nil {
		return nil, nil, err
	}
	if treasury.Key != p.Treasury {
		return nil, nil, fmt.Errorf("%w: got %s, want %s", ErrTreasuryMismatch, treasury.Key, p.Treasury)
	}
	return program, treasury, nil
}

func (p *Processor) loadProgramPage(slot *host.Account) (records.ProgramPage, error) {
	if !slot.Allocated() {
		return p.ProgramLayout.NewPage(), nil
	}
	if err := address.VerifyOwner(slot, p.ProgramID); err != nil {
		return nil, err
	}
	return records.DecodeProgramPage(slot.Data)
}

// loadNamePages consumes name pages 0 through the page the counter points at.
// Pages that were never created read as empty pages of the configured layout.
func (p *Processor) loadNamePages(list *accountList, counter *records.GlobalCounter) ([]*host.Account, []records.NamePage, error) {
	current, _ := p.names.Target(counter)
	var slotList []*host.Account
	var pages []records.NamePage
	for q := range current + 1 {
		slot, err := list.next("name page")
		if err != nil {
			return nil, nil, err
		}
		if _, err = address.VerifySlot(slot, p.ProgramID, address.NamespaceNames, address.PageSeed(q)); err != nil {
			return nil, nil, err
		}
		page := p.NameLayout.NewPage()
		if slot.Allocated() {
			if err = address.VerifyOwner(slot, p.ProgramID); err != nil {
				return nil, nil, err
			}
			if page, err = records.DecodeNamePage(slot.Data); err != nil {
				return nil, nil, err
			}
		}
		slotList = append(slotList, slot)
		pages = append(pages, page)
	}
	return slotList, pages, nil
}

// store grows slot to fit r, creating it if needed, and encodes r into it.
func (p *Processor) store(h host.Host, slot, payer *host.Account, r records.Record) error {
	alloc := slots.NewAllocator(h, p.ProgramID, p.Log)
	size := r.RequiredSize()
	if _, err := alloc.EnsureCapacity(slot, payer, size); err != nil {
		return err
	}
	if err := records.Encode(r, slot.Data[:size]); err != nil {
		return err
	}
	clear(slot.Data[size:])
	return nil
}

// chargeAndAdvance takes the registration fee and then, last of all, counts
// the registration.
func (p *Processor) chargeAndAdvance(h host.Host, payer, treasury, config *host.Account, counter *records.GlobalCounter) error {
	if p.FeeLamports > 0 {
		if err := h.Transfer(payer, treasury, p.FeeLamports); err != nil {
			return err
		}
	}
	p.programs.Advance(counter)
	return records.Encode(counter, config.Data)
}

// accountList hands out the instruction's accounts in order.
type accountList struct {
	h    host.Host
	keys []keys.Key
	pos  int
}

func (l *accountList) next(what string) (*host.Account, error) {
	if l.pos >= len(l.keys) {
		return nil, fmt.Errorf("%w: missing %s at position %d", ErrNotEnoughAccounts, what, l.pos)
	}
	a, err := l.h.Load(l.keys[l.pos])
	if err != nil {
		return nil, err
	}
	l.pos++
	return a, nil
}

func (l *accountList) signer(what string) (*host.Account, error) {
	a, err := l.next(what)
	if err != nil {
		return nil, err
	}
	if !a.Signer {
		return nil, fmt.Errorf("%w: %s %s", host.ErrMissingSignature, what, a.Key)
	}
	return a, nil
}
