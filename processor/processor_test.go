package processor

import (
	"context"
	"fmt"
	"testing"

	"github.com/forestrie/go-programregistry/address"
	"github.com/forestrie/go-programregistry/host"
	"github.com/forestrie/go-programregistry/instruction"
	"github.com/forestrie/go-programregistry/keys"
	"github.com/forestrie/go-programregistry/ledger"
	"github.com/forestrie/go-programregistry/paging"
	"github.com/forestrie/go-programregistry/records"
	"github.com/forestrie/go-programregistry/registry"
	"github.com/forestrie/go-programregistry/registrytesting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testPayer = keys.MustParse("4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T")
	testAdmin = keys.MustParse("8qbHbw2BbbTHBW1sbeqakYXVKRQM8Ne7pLK7m6CVfeR")
)

const testFunds = 10_000_000_000_000

type fixture struct {
	t      *testing.T
	ctx    context.Context
	l      *ledger.Ledger
	proc   *Processor
	params Params
}

func newFixture(t *testing.T, mutate func(*Params)) *fixture {
	tc := registrytesting.NewTestContext(t, registrytesting.TestConfig{TestLabelPrefix: "processortest"})
	params := DefaultParams()
	params.Admin = testAdmin
	if mutate != nil {
		mutate(&params)
	}
	proc, err := New(tc.Log, params)
	require.NoError(t, err)

	f := &fixture{t: t, ctx: context.Background(), l: ledger.New(tc.Log), proc: proc, params: params}
	require.NoError(t, f.l.Airdrop(f.ctx, testPayer, testFunds))
	require.NoError(t, f.process(testPayer, params.InitConfigAccounts(testPayer), instruction.InitConfig()))
	return f
}

func (f *fixture) process(signer keys.Key, accounts []keys.Key, in instruction.Instruction) error {
	data, err := f.proc.Codec().Encode(in)
	require.NoError(f.t, err)
	return f.l.Invoke(f.ctx, []keys.Key{signer}, func(h host.Host) error {
		return f.proc.Process(h, accounts, data)
	})
}

func (f *fixture) deploy(i int) keys.Key {
	k := registrytesting.ProgramKey(i)
	require.NoError(f.t, f.l.Deploy(f.ctx, k, []byte{byte(i)}))
	return k
}

func (f *fixture) account(k keys.Key) *host.Account {
	a, err := f.l.Snapshot(f.ctx, k)
	require.NoError(f.t, err)
	return a
}

func (f *fixture) count() uint32 {
	c, err := records.DecodeCounter(f.account(f.params.ConfigKey()).Data)
	require.NoError(f.t, err)
	return c.Count
}

// setCount writes the counter directly, standing in for a long history of
// registrations.
func (f *fixture) setCount(n uint32) {
	require.NoError(f.t, f.l.Invoke(f.ctx, nil, func(h host.Host) error {
		config, err := h.Load(f.params.ConfigKey())
		require.NoError(f.t, err)
		return records.Encode(&records.GlobalCounter{Tag: records.CounterTag, Count: n}, config.Data)
	}))
}

func (f *fixture) register(program keys.Key, name string) error {
	accounts := f.params.AddProgramAccounts(testPayer, program, f.count(), name != "")
	return f.process(testPayer, accounts, instruction.AddProgram(name))
}

func (f *fixture) programPage(i uint32) records.ProgramPage {
	page, err := records.DecodeProgramPage(f.account(f.params.ProgramPageKey(i)).Data)
	require.NoError(f.t, err)
	return page
}

func (f *fixture) namePage(i uint32) records.NamePage {
	page, err := records.DecodeNamePage(f.account(f.params.NamePageKey(i)).Data)
	require.NoError(f.t, err)
	return page
}

// requireFunded checks the slot holds exactly the collateral for its size.
func (f *fixture) requireFunded(k keys.Key) {
	a := f.account(k)
	require.Equal(f.t, f.l.Rent().MinimumBalance(len(a.Data)), a.Balance, "slot %s", k)
}

func TestInitConfig(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, uint32(0), f.count())
	config := f.account(f.params.ConfigKey())
	assert.Equal(t, f.params.ProgramID, config.Owner)
	f.requireFunded(config.Key)

	err := f.process(testPayer, f.params.InitConfigAccounts(testPayer), instruction.InitConfig())
	assert.ErrorIs(t, err, ErrAlreadyInitialized)

	err = f.process(testPayer, []keys.Key{testPayer, f.params.ProgramPageKey(0)}, instruction.InitConfig())
	assert.ErrorIs(t, err, address.ErrAddressMismatch)
}

func TestRegistrationsSpanPages(t *testing.T) {
	f := newFixture(t, nil)

	const n = DefaultProgramsPerPage + 1
	for i := range n {
		require.NoError(t, f.register(f.deploy(i), ""), "registration %d", i)
	}

	assert.Equal(t, uint32(n), f.count())

	first := f.programPage(0)
	require.Equal(t, DefaultProgramsPerPage, first.Len())
	for i := range DefaultProgramsPerPage {
		assert.Equal(t, registrytesting.ProgramKey(i), first.At(i))
	}
	second := f.programPage(1)
	require.Equal(t, 1, second.Len())
	assert.Equal(t, registrytesting.ProgramKey(DefaultProgramsPerPage), second.At(0))

	assert.False(t, f.account(f.params.ProgramPageKey(2)).Allocated())

	f.requireFunded(f.params.ProgramPageKey(0))
	f.requireFunded(f.params.ProgramPageKey(1))
	assert.Equal(t, uint64(n)*DefaultFeeLamports, f.account(f.params.Treasury).Balance)
}

func TestAddProgramNames(t *testing.T) {
	f := newFixture(t, func(p *Params) {
		p.ProgramsPerPage = 2
		p.NamesPerPage = 2
	})

	require.NoError(t, f.register(f.deploy(0), "Abc-1"))
	require.NoError(t, f.register(f.deploy(1), ""))
	require.NoError(t, f.register(f.deploy(2), "second"))

	assert.Equal(t, []string{"abc1"}, f.namePage(0).Names())
	assert.Equal(t, []string{"second"}, f.namePage(1).Names())
	f.requireFunded(f.params.NamePageKey(1))

	payerBefore := f.account(testPayer).Balance
	err := f.register(f.deploy(3), "abc1")
	require.ErrorIs(t, err, registry.ErrDuplicateName)

	// nothing moved
	assert.Equal(t, uint32(3), f.count())
	assert.Equal(t, payerBefore, f.account(testPayer).Balance)
	assert.Equal(t, 1, f.programPage(1).Len())

	err = f.register(registrytesting.ProgramKey(3), "thirteenchars")
	require.ErrorIs(t, err, registry.ErrInvalidNameLength)
	err = f.register(registrytesting.ProgramKey(3), "--")
	require.ErrorIs(t, err, registry.ErrInvalidNameLength)

	require.NoError(t, f.register(registrytesting.ProgramKey(3), "Third"))
	assert.Equal(t, []string{"second", "third"}, f.namePage(1).Names())
}

func TestAddProgramDuplicateEntry(t *testing.T) {
	f := newFixture(t, nil)
	k := f.deploy(0)
	require.NoError(t, f.register(k, ""))
	err := f.register(k, "")
	require.ErrorIs(t, err, registry.ErrDuplicateEntry)
	assert.Equal(t, uint32(1), f.count())
}

func TestAddProgramRejects(t *testing.T) {
	f := newFixture(t, nil)
	program := f.deploy(0)
	notDeployed := registrytesting.ProgramKey(1)
	config := f.params.ConfigKey()

	tests := []struct {
		name     string
		signer   keys.Key
		accounts []keys.Key
		wantErr  error
	}{
		{
			name:     "unsigned payer",
			signer:   testAdmin,
			accounts: f.params.AddProgramAccounts(testPayer, program, 0, false),
			wantErr:  host.ErrMissingSignature,
		},
		{
			name:     "too few accounts",
			signer:   testPayer,
			accounts: []keys.Key{testPayer, config, program},
			wantErr:  ErrNotEnoughAccounts,
		},
		{
			name:     "wrong treasury",
			signer:   testPayer,
			accounts: []keys.Key{testPayer, config, program, testAdmin, f.params.ProgramPageKey(0)},
			wantErr:  ErrTreasuryMismatch,
		},
		{
			name:     "program not deployed",
			signer:   testPayer,
			accounts: f.params.AddProgramAccounts(testPayer, notDeployed, 0, false),
			wantErr:  address.ErrOwnershipMismatch,
		},
		{
			name:     "wrong page",
			signer:   testPayer,
			accounts: f.params.AddProgramAccounts(testPayer, program, DefaultProgramsPerPage, false),
			wantErr:  address.ErrAddressMismatch,
		},
		{
			name:     "marketplace page for program page",
			signer:   testPayer,
			accounts: []keys.Key{testPayer, config, program, f.params.Treasury, f.params.MarketplacePageKey(0)},
			wantErr:  address.ErrAddressMismatch,
		},
		{
			name:     "missing name pages",
			signer:   testPayer,
			accounts: f.params.AddProgramAccounts(testPayer, program, 0, false),
			wantErr:  ErrNotEnoughAccounts,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name := ""
			if tt.name == "missing name pages" {
				name = "named"
			}
			err := f.process(tt.signer, tt.accounts, instruction.AddProgram(name))
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, uint32(0), f.count())
			assert.False(t, f.account(f.params.ProgramPageKey(0)).Allocated())
		})
	}
}

func TestAddProgramFeeFailureRollsBack(t *testing.T) {
	f := newFixture(t, nil)
	program := f.deploy(0)

	poor := registrytesting.NumberedKey("payer", 1)
	// enough for the page but not the fee
	require.NoError(t, f.l.Airdrop(f.ctx, poor, f.l.Rent().MinimumBalance(records.HeaderBytes+records.KeyBytes)))

	accounts := f.params.AddProgramAccounts(poor, program, 0, false)
	err := f.process(poor, accounts, instruction.AddProgram(""))
	require.ErrorIs(t, err, host.ErrInsufficientFunds)

	assert.False(t, f.account(f.params.ProgramPageKey(0)).Allocated())
	assert.Equal(t, uint32(0), f.count())
	assert.Equal(t, uint64(0), f.account(f.params.Treasury).Balance)
}

func TestAddMarketplaceProgram(t *testing.T) {
	f := newFixture(t, func(p *Params) { p.ProgramsPerPage = 2 })

	require.NoError(t, f.register(f.deploy(0), ""))
	for i := 1; i < 4; i++ {
		program := f.deploy(i)
		accounts := f.params.AddMarketplaceAccounts(testPayer, program, f.count())
		require.NoError(t, f.process(testPayer, accounts, instruction.AddMarketplaceProgram()))
	}
	assert.Equal(t, uint32(4), f.count())

	// the counter is shared, so marketplace entries land by global ordinal
	page0, err := records.DecodeMarketplacePage(f.account(f.params.MarketplacePageKey(0)).Data)
	require.NoError(t, err)
	assert.Equal(t, []keys.Key{registrytesting.ProgramKey(1)}, page0.Programs)
	page1, err := records.DecodeMarketplacePage(f.account(f.params.MarketplacePageKey(1)).Data)
	require.NoError(t, err)
	assert.Equal(t, []keys.Key{registrytesting.ProgramKey(2), registrytesting.ProgramKey(3)}, page1.Programs)
	f.requireFunded(f.params.MarketplacePageKey(1))

	_, err = records.DecodeProgramPage(f.account(f.params.MarketplacePageKey(0)).Data)
	assert.ErrorIs(t, err, records.ErrSchemaTagMismatch)
}

func TestAlternateLayouts(t *testing.T) {
	f := newFixture(t, func(p *Params) {
		p.ProgramLayout = records.ProgramLayoutPacked
		p.NameLayout = records.NameLayoutFixed
	})
	require.NoError(t, f.register(f.deploy(0), "Zeta"))
	require.NoError(t, f.register(f.deploy(1), "alpha"))

	page := f.programPage(0)
	assert.IsType(t, &records.ProgramPacked{}, page)
	assert.Equal(t, 2, page.Len())

	names := f.namePage(0)
	assert.IsType(t, &records.NameFixed{}, names)
	assert.Equal(t, []string{"zeta", "alpha"}, names.Names())
	assert.Len(t, f.account(f.params.NamePageKey(0)).Data, records.HeaderBytes+2*records.NameBytes)

	err := f.register(f.deploy(2), "ZETA")
	assert.ErrorIs(t, err, registry.ErrDuplicateName)
}

func TestRemoveProgramsNotImplemented(t *testing.T) {
	f := newFixture(t, nil)
	err := f.process(testPayer, nil, instruction.RemovePrograms(1))
	assert.ErrorIs(t, err, ErrNotImplemented)
	assert.ErrorIs(t, err, instruction.ErrInvalidInstructionData)
}

func TestProcessRejectsBadData(t *testing.T) {
	f := newFixture(t, nil)
	err := f.l.Invoke(f.ctx, []keys.Key{testPayer}, func(h host.Host) error {
		return f.proc.Process(h, nil, []byte{0xde, 0xad})
	})
	assert.ErrorIs(t, err, instruction.ErrInvalidInstructionData)
}

func TestResetRequiresAdmin(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.register(f.deploy(0), ""))

	accounts, args := f.params.ResetAccounts(testAdmin, f.count(), false)
	// the admin key is listed but did not sign
	err := f.process(testPayer, accounts, instruction.Reset(args))
	require.ErrorIs(t, err, ErrUnauthorized)

	accounts, args = f.params.ResetAccounts(testPayer, f.count(), false)
	err = f.process(testPayer, accounts, instruction.Reset(args))
	require.ErrorIs(t, err, ErrUnauthorized)

	assert.Equal(t, uint32(1), f.count())
}

func TestResetFull(t *testing.T) {
	f := newFixture(t, func(p *Params) {
		p.ProgramsPerPage = 2
		p.NamesPerPage = 2
	})
	for i := range 3 {
		require.NoError(t, f.register(f.deploy(i), fmt.Sprintf("name%d", i)))
	}

	accounts, args := f.params.ResetAccounts(testAdmin, f.count(), false)
	assert.Equal(t, uint32(2), args.ProgramPages)
	require.NoError(t, f.process(testAdmin, accounts, instruction.Reset(args)))

	assert.Equal(t, uint32(0), f.count())
	for i := range uint32(2) {
		assert.Equal(t, 0, f.programPage(i).Len())
		assert.Equal(t, 0, f.namePage(i).Len())
		assert.Len(t, f.account(f.params.ProgramPageKey(i)).Data, records.HeaderBytes)
	}

	// names are free again
	require.NoError(t, f.register(registrytesting.ProgramKey(0), "name2"))
	assert.Equal(t, []string{"name2"}, f.namePage(0).Names())
}

func TestResetToFloor(t *testing.T) {
	f := newFixture(t, func(p *Params) {
		p.ProgramsPerPage = 4
		p.NamesPerPage = 4
	})
	for i := range 6 {
		require.NoError(t, f.register(f.deploy(i), fmt.Sprintf("name%d", i)))
	}

	accounts, args := f.params.ResetAccounts(testAdmin, f.count(), true)
	require.NoError(t, f.process(testAdmin, accounts, instruction.Reset(args)))

	assert.Equal(t, uint32(4), f.count())
	assert.Equal(t, 4, f.programPage(0).Len())
	assert.Equal(t, 0, f.programPage(1).Len())
	assert.Equal(t, 4, f.namePage(0).Len())
	assert.Equal(t, 0, f.namePage(1).Len())

	require.NoError(t, f.register(registrytesting.ProgramKey(4), "name5"))
	err := f.register(registrytesting.ProgramKey(5), "name0")
	assert.ErrorIs(t, err, registry.ErrDuplicateName)
}

func TestResetFloorFromLargeCount(t *testing.T) {
	f := newFixture(t, nil)
	f.setCount(1500)

	// pages at the floor were never created, resetting them is a no-op
	accounts, args := f.params.ResetAccounts(testAdmin, f.count(), true)
	require.NoError(t, f.process(testAdmin, accounts, instruction.Reset(args)))
	assert.Equal(t, uint32(1250), f.count())
	assert.Equal(t, paging.ResetFloor(1500, DefaultProgramsPerPage), f.count())
}

func TestResetFloorMisaligned(t *testing.T) {
	f := newFixture(t, func(p *Params) {
		p.ProgramsPerPage = 4
		p.NamesPerPage = 3
	})
	for i := range 6 {
		require.NoError(t, f.register(f.deploy(i), fmt.Sprintf("name%d", i)))
	}

	// floor 4 is inside name page 1, which also holds name3
	accounts, args := f.params.ResetAccounts(testAdmin, f.count(), true)
	err := f.process(testAdmin, accounts, instruction.Reset(args))
	require.ErrorIs(t, err, ErrResetMisaligned)

	// leaving the name pages out is refused the same way
	accounts = []keys.Key{testAdmin, f.params.ConfigKey(), f.params.ProgramPageKey(1), f.params.MarketplacePageKey(1)}
	err = f.process(testAdmin, accounts, instruction.Reset(instruction.ResetArgs{Floor: true, ProgramPages: 1, MarketplacePages: 1}))
	require.ErrorIs(t, err, ErrResetMisaligned)

	assert.Equal(t, uint32(6), f.count())
	assert.Equal(t, 2, f.programPage(1).Len())
	assert.Equal(t, []string{"name3", "name4", "name5"}, f.namePage(1).Names())

	// registration carries on from where it was
	require.NoError(t, f.register(f.deploy(6), "name6"))
	assert.Equal(t, []string{"name6"}, f.namePage(2).Names())

	// a full reset is always aligned and frees every name
	accounts, args = f.params.ResetAccounts(testAdmin, f.count(), false)
	require.NoError(t, f.process(testAdmin, accounts, instruction.Reset(args)))
	assert.Equal(t, uint32(0), f.count())
	for i := range 7 {
		require.NoError(t, f.register(registrytesting.ProgramKey(i), fmt.Sprintf("name%d", 6-i)))
	}
	assert.Equal(t, uint32(7), f.count())
	assert.Equal(t, []string{"name0"}, f.namePage(2).Names())
}

func TestResetAlignedFloorFreesNames(t *testing.T) {
	f := newFixture(t, func(p *Params) {
		p.ProgramsPerPage = 4
		p.NamesPerPage = 2
	})
	for i := range 6 {
		require.NoError(t, f.register(f.deploy(i), fmt.Sprintf("name%d", i)))
	}

	accounts, args := f.params.ResetAccounts(testAdmin, f.count(), true)
	require.NoError(t, f.process(testAdmin, accounts, instruction.Reset(args)))
	assert.Equal(t, uint32(4), f.count())
	assert.Equal(t, 2, f.namePage(1).Len())
	assert.Equal(t, 0, f.namePage(2).Len())

	// the discarded names are free and the kept ones are not
	require.NoError(t, f.register(registrytesting.ProgramKey(4), "name5"))
	require.NoError(t, f.register(registrytesting.ProgramKey(5), "name4"))
	err := f.register(f.deploy(6), "name3")
	assert.ErrorIs(t, err, registry.ErrDuplicateName)
	assert.Equal(t, []string{"name4", "name5"}, f.namePage(2).Names())
	assert.Equal(t, uint32(6), f.count())
}

func TestResetIncomplete(t *testing.T) {
	tests := []struct {
		name  string
		args  instruction.ResetArgs
		pages func(f *fixture) []keys.Key
	}{
		{
			name: "full reset without pages",
			args: instruction.ResetArgs{},
			pages: func(f *fixture) []keys.Key {
				return nil
			},
		},
		{
			name: "full reset missing the last program page",
			args: instruction.ResetArgs{ProgramPages: 1, NamePages: 3, MarketplacePages: 2},
			pages: func(f *fixture) []keys.Key {
				return []keys.Key{
					f.params.ProgramPageKey(0),
					f.params.NamePageKey(0), f.params.NamePageKey(1), f.params.NamePageKey(2),
					f.params.MarketplacePageKey(0), f.params.MarketplacePageKey(1),
				}
			},
		},
		{
			name: "full reset missing name pages",
			args: instruction.ResetArgs{ProgramPages: 2, NamePages: 1, MarketplacePages: 2},
			pages: func(f *fixture) []keys.Key {
				return []keys.Key{
					f.params.ProgramPageKey(0), f.params.ProgramPageKey(1),
					f.params.NamePageKey(0),
					f.params.MarketplacePageKey(0), f.params.MarketplacePageKey(1),
				}
			},
		},
		{
			name: "floor reset missing the current program page",
			args: instruction.ResetArgs{Floor: true, NamePages: 1, MarketplacePages: 1},
			pages: func(f *fixture) []keys.Key {
				return []keys.Key{f.params.NamePageKey(2), f.params.MarketplacePageKey(1)}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(p *Params) {
				p.ProgramsPerPage = 4
				p.NamesPerPage = 2
			})
			for i := range 6 {
				require.NoError(t, f.register(f.deploy(i), fmt.Sprintf("name%d", i)))
			}

			accounts := append([]keys.Key{testAdmin, f.params.ConfigKey()}, tt.pages(f)...)
			err := f.process(testAdmin, accounts, instruction.Reset(tt.args))
			require.ErrorIs(t, err, ErrResetIncomplete)

			assert.Equal(t, uint32(6), f.count())
			assert.Equal(t, 2, f.programPage(1).Len())
			assert.Equal(t, 2, f.namePage(2).Len())

			// the next registration still lands where the counter says
			require.NoError(t, f.register(f.deploy(6), "name6"))
			assert.Equal(t, 3, f.programPage(1).Len())
		})
	}
}

func TestResetRejectsWrongPage(t *testing.T) {
	f := newFixture(t, nil)
	accounts := []keys.Key{testAdmin, f.params.ConfigKey(), f.params.ProgramPageKey(1)}
	err := f.process(testAdmin, accounts, instruction.Reset(instruction.ResetArgs{ProgramPages: 1}))
	assert.ErrorIs(t, err, address.ErrAddressMismatch)
}

func TestParamsValidate(t *testing.T) {
	p := DefaultParams()
	require.NoError(t, p.Validate())
	p.NamesPerPage = 0
	assert.ErrorIs(t, p.Validate(), ErrParamsNotValid)
	p = DefaultParams()
	p.ProgramID = keys.Key{}
	assert.ErrorIs(t, p.Validate(), ErrParamsNotValid)
}
