package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"github.com/eventreg/eventreg/logging"
	"github.com/eventreg/eventreg/server"
)

// Binary version.
// It should be passed during the build with '-ldflags "-X main.version="'.
var version = "unknown"

type globalOptions struct {
	DebugLog bool `long:"debuglog" description:"Enable debug logs"`
	JSONLog  bool `long:"jsonlog"  description:"Whether to log in JSON format"`
}

var global globalOptions

// logger returns a console logger for the client commands.
func (o *globalOptions) logger() *zap.Logger {
	level := zap.InfoLevel
	if o.DebugLog {
		level = zap.DebugLevel
	}
	return logging.New(level, "", o.JSONLog)
}

// nodeCommand runs a ledger node. Its options are parsed a second time after
// the config file is read so that the command line takes precedence.
type nodeCommand struct {
	server.Config
}

func (c *nodeCommand) Execute([]string) error {
	var err error
	// Start with a default Config with sane settings
	cfg := server.DefaultConfig()
	cfg.ConfigFile = c.ConfigFile
	// Load configuration file overwriting defaults with any specified options
	cfg, err = server.ReadConfigFile(cfg)
	if err != nil {
		return err
	}
	// Parse the command line options again to ensure they take precedence.
	cfg, err = server.ParseFlags(cfg, nodeArgs(os.Args[1:]))
	if err != nil {
		return err
	}
	cfg, err = server.SetupConfig(cfg)
	if err != nil {
		return err
	}

	// Initialize logging
	logLevel := zap.InfoLevel
	if cfg.DebugLog || global.DebugLog {
		logLevel = zap.DebugLevel
	}
	logger := logging.New(
		logLevel,
		filepath.Join(cfg.LogDir, "eventreg.log"),
		cfg.JSONLog || global.JSONLog,
		logging.WithRotation(cfg.Rotation()),
	)
	ctx := logging.NewContext(context.Background(), logger)

	defer func() {
		logger.Info("shutdown complete")
	}()

	// Show version at startup.
	logger.Info("starting node", zap.String("version", version), zap.Object("config", cfg))
	// Disable go default unbounded memory profiler.
	runtime.MemProfileRate = 0

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	srv, err := server.New(ctx, *cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer srv.Close()
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("failure in server: %w", err)
	}
	return nil
}

// nodeArgs returns the arguments following the node command.
func nodeArgs(args []string) []string {
	for i, arg := range args {
		if arg == "node" {
			return args[i+1:]
		}
	}
	return nil
}

func newParser() *flags.Parser {
	parser := flags.NewParser(&global, flags.Default)
	parser.AddCommand("node", "Run a ledger node", "Serve the registration ledger over HTTP.",
		&nodeCommand{Config: *server.DefaultConfig()})
	parser.AddCommand("watch", "Follow the participant list",
		"Reconstruct the participant list from the node and print every change.",
		newWatchCommand())
	parser.AddCommand("register", "Register an identity", "Pay the registration fee from the given key.",
		newRegisterCommand())
	parser.AddCommand("withdraw", "Withdraw collected fees", "Move the collected fees to the owner.",
		newWithdrawCommand())
	parser.AddCommand("info", "Show ledger state", "Print fee, owner, balance and participants.",
		newInfoCommand())
	parser.AddCommand("keygen", "Generate a key", "Write a new base64 ed25519 private key to a file.",
		&keygenCommand{})
	return parser
}

func main() {
	if _, err := newParser().Parse(); err != nil {
		// flags already printed its own errors.
		var flagsErr *flags.Error
		if !errors.As(err, &flagsErr) {
			_, _ = fmt.Fprintln(os.Stderr, err)
		}
		if flagsErr != nil && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(1)
	}
}
