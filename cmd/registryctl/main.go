// registryctl drives a program registry over a local ledger whose accounts
// persist in a directory or a blob container between runs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/datatrails/go-datatrails-common/azblob"
	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/forestrie/go-programregistry/config"
	"github.com/forestrie/go-programregistry/ledger"
	"github.com/forestrie/go-programregistry/processor"
	"github.com/forestrie/go-programregistry/slotstore"
)

// ExitError carries the process exit code for a failure.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

func main() {
	if err := run(context.Background(), os.Stdout, os.Args[1:]); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

const usage = `
registryctl - register programs and names in a program registry.

Usage:
  registryctl [options] COMMAND [command options]

Commands:
  init             -payer KEY
  airdrop          KEY LAMPORTS
  deploy           [-code FILE] KEY
  add              -payer KEY -program KEY [-name NAME]
  add-marketplace  -payer KEY -program KEY
  reset            -authority KEY [-floor]
  list
  lookup           NAME | -program KEY

Options:
`

// env is everything a command needs.
type env struct {
	ctx    context.Context
	out    io.Writer
	log    logger.Logger
	cfg    config.Config
	ledger *ledger.Ledger
	proc   *processor.Processor
}

func run(ctx context.Context, out io.Writer, args []string) error {
	flagSet := flag.NewFlagSet("registryctl", flag.ContinueOnError)
	flagSet.SetOutput(out)
	flagSet.Usage = func() {
		fmt.Fprint(out, usage)
		flagSet.PrintDefaults()
	}
	configFlag := flagSet.String("config", "", "Path to the registry HCL configuration. Defaults apply when omitted.")
	logLevelFlag := flagSet.String("log-level", "", "Override the configured log level.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return &ExitError{Code: 2, Message: err.Error()}
	}
	if flagSet.NArg() == 0 {
		flagSet.Usage()
		return nil
	}

	cfg := config.Default()
	if *configFlag != "" {
		var err error
		if cfg, err = config.Load(*configFlag); err != nil {
			return &ExitError{Code: 2, Message: err.Error()}
		}
	}
	if *logLevelFlag != "" {
		cfg.LogLevel = *logLevelFlag
	}

	logger.New(cfg.LogLevel)
	defer logger.OnExit()
	log := logger.Sugar.WithServiceName("registryctl")

	e, err := newEnv(ctx, out, log, cfg)
	if err != nil {
		return err
	}

	name, rest := flagSet.Arg(0), flagSet.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		return &ExitError{Code: 2, Message: fmt.Sprintf("unknown command %q", name)}
	}
	return cmd(e, rest)
}

func newEnv(ctx context.Context, out io.Writer, log logger.Logger, cfg config.Config) (*env, error) {
	opts := []ledger.Option{ledger.WithRent(cfg.Rent)}
	switch cfg.Store.Kind {
	case config.StoreDir:
		store, err := slotstore.NewDirStore(log, cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		opts = append(opts, ledger.WithStore(store))
	case config.StoreBlob:
		storer, err := azblob.NewDev(azblob.NewDevConfigFromEnv(), cfg.Store.Container)
		if err != nil {
			log.Infof("Error @ blob store connect: %v", err)
			return nil, err
		}
		opts = append(opts, ledger.WithStore(slotstore.NewBlobStore(log, storer, cfg.Params.ProgramID)))
	}

	proc, err := processor.New(log, cfg.Params)
	if err != nil {
		return nil, err
	}
	return &env{
		ctx:    ctx,
		out:    out,
		log:    log,
		cfg:    cfg,
		ledger: ledger.New(log, opts...),
		proc:   proc,
	}, nil
}
