package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/forestrie/go-programregistry/directory"
	"github.com/forestrie/go-programregistry/host"
	"github.com/forestrie/go-programregistry/instruction"
	"github.com/forestrie/go-programregistry/keys"
	"github.com/forestrie/go-programregistry/records"
)

type command func(e *env, args []string) error

var commands = map[string]command{
	"init":            cmdInit,
	"airdrop":         cmdAirdrop,
	"deploy":          cmdDeploy,
	"add":             cmdAdd,
	"add-marketplace": cmdAddMarketplace,
	"reset":           cmdReset,
	"list":            cmdList,
	"lookup":          cmdLookup,
}

// keyFlag is a flag.Value for base58 keys.
type keyFlag struct {
	key keys.Key
	set bool
}

func (f *keyFlag) String() string {
	if !f.set {
		return ""
	}
	return f.key.String()
}

func (f *keyFlag) Set(s string) error {
	k, err := keys.Parse(s)
	if err != nil {
		return err
	}
	f.key, f.set = k, true
	return nil
}

func (e *env) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.out)
	return fs
}

func parse(fs *flag.FlagSet, args []string, required ...*keyFlag) error {
	if err := fs.Parse(args); err != nil {
		return &ExitError{Code: 2, Message: err.Error()}
	}
	for _, k := range required {
		if !k.set {
			return &ExitError{Code: 2, Message: fmt.Sprintf("%s: missing a required key option", fs.Name())}
		}
	}
	return nil
}

// submit encodes in and runs it as one invocation signed by signer.
func (e *env) submit(signer keys.Key, accounts []keys.Key, in instruction.Instruction) error {
	data, err := e.proc.Codec().Encode(in)
	if err != nil {
		return err
	}
	return e.ledger.Invoke(e.ctx, []keys.Key{signer}, func(h host.Host) error {
		return e.proc.Process(h, accounts, data)
	})
}

func (e *env) count() (uint32, error) {
	config, err := e.ledger.Snapshot(e.ctx, e.cfg.Params.ConfigKey())
	if err != nil {
		return 0, err
	}
	c, err := records.DecodeCounter(config.Data)
	if err != nil {
		return 0, err
	}
	return c.Count, nil
}

func cmdInit(e *env, args []string) error {
	fs := e.flags("init")
	var payer keyFlag
	fs.Var(&payer, "payer", "The funding account.")
	if err := parse(fs, args, &payer); err != nil {
		return err
	}
	if err := e.submit(payer.key, e.cfg.Params.InitConfigAccounts(payer.key), instruction.InitConfig()); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "initialized %s\n", e.cfg.Params.ConfigKey())
	return nil
}

func cmdAirdrop(e *env, args []string) error {
	if len(args) != 2 {
		return &ExitError{Code: 2, Message: "airdrop: expected KEY LAMPORTS"}
	}
	k, err := keys.Parse(args[0])
	if err != nil {
		return &ExitError{Code: 2, Message: err.Error()}
	}
	lamports, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return &ExitError{Code: 2, Message: err.Error()}
	}
	if err = e.ledger.Airdrop(e.ctx, k, lamports); err != nil {
		return err
	}
	a, err := e.ledger.Snapshot(e.ctx, k)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "%s balance %d\n", k, a.Balance)
	return nil
}

func cmdDeploy(e *env, args []string) error {
	fs := e.flags("deploy")
	codeFile := fs.String("code", "", "File holding the program image.")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return &ExitError{Code: 2, Message: "deploy: expected KEY"}
	}
	k, err := keys.Parse(fs.Arg(0))
	if err != nil {
		return &ExitError{Code: 2, Message: err.Error()}
	}
	code := []byte{0}
	if *codeFile != "" {
		if code, err = os.ReadFile(*codeFile); err != nil {
			return err
		}
	}
	if err = e.ledger.Deploy(e.ctx, k, code); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "deployed %s (%d bytes)\n", k, len(code))
	return nil
}

func cmdAdd(e *env, args []string) error {
	fs := e.flags("add")
	var payer, program keyFlag
	fs.Var(&payer, "payer", "The funding account, charged the fee and any slot collateral.")
	fs.Var(&program, "program", "The deployed program to register.")
	name := fs.String("name", "", "Optional display name.")
	if err := parse(fs, args, &payer, &program); err != nil {
		return err
	}
	count, err := e.count()
	if err != nil {
		return err
	}
	accounts := e.cfg.Params.AddProgramAccounts(payer.key, program.key, count, *name != "")
	if err = e.submit(payer.key, accounts, instruction.AddProgram(*name)); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "registered %s as entry %d\n", program.key, count)
	return nil
}

func cmdAddMarketplace(e *env, args []string) error {
	fs := e.flags("add-marketplace")
	var payer, program keyFlag
	fs.Var(&payer, "payer", "The funding account.")
	fs.Var(&program, "program", "The deployed program to register.")
	if err := parse(fs, args, &payer, &program); err != nil {
		return err
	}
	count, err := e.count()
	if err != nil {
		return err
	}
	accounts := e.cfg.Params.AddMarketplaceAccounts(payer.key, program.key, count)
	if err = e.submit(payer.key, accounts, instruction.AddMarketplaceProgram()); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "registered %s in the marketplace as entry %d\n", program.key, count)
	return nil
}

func cmdReset(e *env, args []string) error {
	fs := e.flags("reset")
	var authority keyFlag
	fs.Var(&authority, "authority", "The configured admin.")
	floor := fs.Bool("floor", false, "Rewind to the start of the current program page instead of to zero.")
	if err := parse(fs, args, &authority); err != nil {
		return err
	}
	count, err := e.count()
	if err != nil {
		return err
	}
	accounts, resetArgs := e.cfg.Params.ResetAccounts(authority.key, count, *floor)
	if err = e.submit(authority.key, accounts, instruction.Reset(resetArgs)); err != nil {
		return err
	}
	after, err := e.count()
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "reset from %d to %d\n", count, after)
	return nil
}

func cmdList(e *env, args []string) error {
	d, err := directory.Load(e.ctx, e.log, e.ledger, e.cfg.Params)
	if err != nil {
		return err
	}
	entries, err := d.Programs()
	if err != nil {
		return err
	}
	for _, entry := range entries {
		fmt.Fprintf(e.out, "%-11s page %d #%d %s\n", entry.Kind, entry.Page, entry.Index, entry.Key)
	}
	names, err := d.Names()
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintf(e.out, "name %s\n", name)
	}
	fmt.Fprintf(e.out, "count %d\n", d.Count())
	return nil
}

func cmdLookup(e *env, args []string) error {
	fs := e.flags("lookup")
	var program keyFlag
	fs.Var(&program, "program", "Find where this program is registered.")
	if err := parse(fs, args); err != nil {
		return err
	}
	d, err := directory.Load(e.ctx, e.log, e.ledger, e.cfg.Params)
	if err != nil {
		return err
	}

	if program.set {
		loc, ok, err := d.FindProgram(program.key)
		if err != nil {
			return err
		}
		if !ok {
			return &ExitError{Code: 1, Message: fmt.Sprintf("%s is not registered", program.key)}
		}
		fmt.Fprintf(e.out, "%s %s page %d #%d\n", program.key, loc.Kind, loc.Page, loc.Index)
		return nil
	}

	if fs.NArg() != 1 {
		return &ExitError{Code: 2, Message: "lookup: expected NAME or -program KEY"}
	}
	page, ok, err := d.LookupName(fs.Arg(0))
	if err != nil {
		return err
	}
	if !ok {
		return &ExitError{Code: 1, Message: fmt.Sprintf("%q is not registered", fs.Arg(0))}
	}
	fmt.Fprintf(e.out, "%q on name page %d\n", fs.Arg(0), page)
	return nil
}
