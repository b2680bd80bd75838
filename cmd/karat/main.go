// Command karat runs the jewelry-store inventory ledger.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/erazemk/karat/internal/config"
	"github.com/erazemk/karat/internal/logging"
)

const usage = `Usage: karat <command> [flags]

Commands:
  init    create the schema, a tenant and its admin account
  serve   run the HTTP API

Settings come from KARAT_* environment variables (and .env); flags override them.
Run "karat <command> -h" for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch cmd := os.Args[1]; cmd {
	case "init":
		err = runInit(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	case "-h", "-help", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if err == flag.ErrHelp {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// databaseFlags registers the flags shared by every command.
func databaseFlags(fs *flag.FlagSet, cfg *config.Config) {
	fs.StringVar(&cfg.Database.Driver, "db-driver", cfg.Database.Driver, "database driver: sqlite or postgres")
	fs.StringVar(&cfg.Database.DSN, "db-dsn", cfg.Database.DSN, "database file path or connection string")
	fs.StringVar(&cfg.Logger.File, "log", cfg.Logger.File, "also append logs to this file")
}

// loadConfig reads the environment, then applies flags registered by
// register on top of it.
func loadConfig(name string, args []string, register func(*flag.FlagSet, *config.Config)) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	fs := flag.NewFlagSet("karat "+name, flag.ContinueOnError)
	databaseFlags(fs, cfg)
	if register != nil {
		register(fs, cfg)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg *config.Config) (*zap.Logger, func(), error) {
	return logging.New(logging.Config{
		Level:       cfg.Logger.Level,
		Encoding:    cfg.Logger.Encoding,
		File:        cfg.Logger.File,
		Development: cfg.IsDevelopment(),
	})
}
