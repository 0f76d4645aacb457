package processor

import (
	"github.com/forestrie/go-programregistry/address"
	"github.com/forestrie/go-programregistry/instruction"
	"github.com/forestrie/go-programregistry/keys"
	"github.com/forestrie/go-programregistry/paging"
)

// The helpers below build the account lists the processor expects, in order,
// for a caller that knows the current counter value.

func (p Params) ConfigKey() keys.Key {
	return address.MustDerive(p.ProgramID, address.NamespaceConfig)
}

func (p Params) ProgramPageKey(page uint32) keys.Key {
	return address.MustDerive(p.ProgramID, address.NamespacePrograms, address.PageSeed(page))
}

func (p Params) NamePageKey(page uint32) keys.Key {
	return address.MustDerive(p.ProgramID, address.NamespaceNames, address.PageSeed(page))
}

func (p Params) MarketplacePageKey(page uint32) keys.Key {
	return address.MustDerive(p.ProgramID, address.NamespaceMarketplace, address.PageSeed(page))
}

func (p Params) InitConfigAccounts(payer keys.Key) []keys.Key {
	return []keys.Key{payer, p.ConfigKey()}
}

// AddProgramAccounts lists the accounts for registering program when the
// counter reads count. Name pages are only included when named is true.
func (p Params) AddProgramAccounts(payer, program keys.Key, count uint32, named bool) []keys.Key {
	accounts := []keys.Key{
		payer, p.ConfigKey(), program, p.Treasury,
		p.ProgramPageKey(paging.PageIndex(count, p.ProgramsPerPage)),
	}
	if !named {
		return accounts
	}
	for q := range paging.PageIndex(count, p.NamesPerPage) + 1 {
		accounts = append(accounts, p.NamePageKey(q))
	}
	return accounts
}

func (p Params) AddMarketplaceAccounts(payer, program keys.Key, count uint32) []keys.Key {
	return []keys.Key{
		payer, p.ConfigKey(), program, p.Treasury,
		p.MarketplacePageKey(paging.PageIndex(count, p.ProgramsPerPage)),
	}
}

// ResetAccounts lists the accounts for a reset of every page in use when the
// counter reads count, and returns the matching reset arguments.
func (p Params) ResetAccounts(authority keys.Key, count uint32, floor bool) ([]keys.Key, instruction.ResetArgs) {
	args := instruction.ResetArgs{Floor: floor}
	accounts := []keys.Key{authority, p.ConfigKey()}

	var from uint32
	if floor {
		from = paging.ResetFloor(count, p.ProgramsPerPage)
	}
	lastProgram := paging.PageIndex(count, p.ProgramsPerPage)
	for i := paging.PageIndex(from, p.ProgramsPerPage); i <= lastProgram; i++ {
		accounts = append(accounts, p.ProgramPageKey(i))
		args.ProgramPages++
	}
	for i := paging.PageIndex(from, p.NamesPerPage); i <= paging.PageIndex(count, p.NamesPerPage); i++ {
		accounts = append(accounts, p.NamePageKey(i))
		args.NamePages++
	}
	for i := paging.PageIndex(from, p.ProgramsPerPage); i <= lastProgram; i++ {
		accounts = append(accounts, p.MarketplacePageKey(i))
		args.MarketplacePages++
	}
	return accounts, args
}
