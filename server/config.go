// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers

package server

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap/zapcore"

	"github.com/eventreg/eventreg/ledger"
	"github.com/eventreg/eventreg/logging"
)

const (
	defaultDbDirName      = "db"
	defaultDataDirname    = "data"
	defaultLogDirname     = "logs"
	defaultMaxLogFiles    = 3
	defaultMaxLogFileSize = 10
	defaultMaxLogFileAge  = 28
	defaultHTTPPort       = 8545
)

// Config defines the configuration options of a ledger node.
//
//nolint:lll
type Config struct {
	BaseDir         string  `long:"basedir"        description:"The base directory that contains the node's data, logs, configuration file, etc."`
	ConfigFile      string  `long:"configfile"     description:"Path to configuration file"                                                       short:"c"`
	DataDir         string  `long:"datadir"        description:"The directory to store the node's state within."                                  short:"b"`
	DbDir           string  `long:"dbdir"          description:"The directory to store the ledger database within"`
	LogDir          string  `long:"logdir"         description:"Directory to log output."`
	DebugLog        bool    `long:"debuglog"       description:"Enable debug logs"`
	JSONLog         bool    `long:"jsonlog"        description:"Whether to log in JSON format"`
	MaxLogFiles     int     `long:"maxlogfiles"    description:"Maximum logfiles to keep (0 keeps all)"`
	MaxLogFileSize  int     `long:"maxlogfilesize" description:"Maximum logfile size in MB"`
	MaxLogFileAge   int     `long:"maxlogfileage"  description:"Maximum age of a rotated logfile in days"`
	RawHTTPListener string  `long:"httplisten"     description:"The interface/port to listen for API connections"                                  short:"l"`
	MetricsPort     *uint16 `long:"metrics-port"   description:"The port to expose metrics"`

	Ledger ledger.Config `group:"Ledger"`
}

// DefaultConfig returns a config with default hardcoded values.
func DefaultConfig() *Config {
	baseDir := "./eventreg"
	cacheDir, err := os.UserCacheDir()
	if err == nil {
		baseDir = filepath.Join(cacheDir, "eventreg")
	}

	return &Config{
		BaseDir:         baseDir,
		DataDir:         filepath.Join(baseDir, defaultDataDirname),
		DbDir:           filepath.Join(baseDir, defaultDbDirName),
		LogDir:          filepath.Join(baseDir, defaultLogDirname),
		MaxLogFiles:     defaultMaxLogFiles,
		MaxLogFileSize:  defaultMaxLogFileSize,
		MaxLogFileAge:   defaultMaxLogFileAge,
		RawHTTPListener: fmt.Sprintf("localhost:%d", defaultHTTPPort),
		Ledger:          ledger.DefaultConfig(),
	}
}

// Rotation returns the log rotation limits.
func (c *Config) Rotation() logging.Rotation {
	return logging.Rotation{
		MaxSize:    c.MaxLogFileSize,
		MaxBackups: c.MaxLogFiles,
		MaxAge:     c.MaxLogFileAge,
	}
}

// implement zap.ObjectMarshaler interface.
func (c *Config) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("basedir", c.BaseDir)
	enc.AddString("datadir", c.DataDir)
	enc.AddString("dbdir", c.DbDir)
	enc.AddString("logdir", c.LogDir)
	enc.AddString("httplisten", c.RawHTTPListener)
	if c.MetricsPort != nil {
		enc.AddUint16("metrics-port", *c.MetricsPort)
	}
	return enc.AddObject("ledger", c.Ledger)
}

// ParseFlags reads values from command line arguments.
func ParseFlags(preCfg *Config, args []string) (*Config, error) {
	if _, err := flags.ParseArgs(preCfg, args); err != nil {
		return nil, err
	}
	return preCfg, nil
}

// ReadConfigFile reads config from an ini file.
// It uses the provided `cfg` as a base config and overrides it with the values
// from the config file.
func ReadConfigFile(cfg *Config) (*Config, error) {
	if cfg.ConfigFile == "" {
		return cfg, nil
	}
	logging.FromContext(context.Background()).Sugar().Debugf("reading config from %s", cfg.ConfigFile)
	if err := flags.IniParse(cfg.ConfigFile, cfg); err != nil {
		return nil, fmt.Errorf("failed to read config from %v: %w", cfg.ConfigFile, err)
	}

	return cfg, nil
}

// SetupConfig expands paths and initializes filesystem.
func SetupConfig(cfg *Config) (*Config, error) {
	// Directories left at their defaults follow a non-default base directory.
	defaultCfg := DefaultConfig()
	if cfg.BaseDir != defaultCfg.BaseDir {
		if cfg.DataDir == defaultCfg.DataDir {
			cfg.DataDir = filepath.Join(cfg.BaseDir, defaultDataDirname)
		}
		if cfg.LogDir == defaultCfg.LogDir {
			cfg.LogDir = filepath.Join(cfg.BaseDir, defaultLogDirname)
		}
		if cfg.DbDir == defaultCfg.DbDir {
			cfg.DbDir = filepath.Join(cfg.BaseDir, defaultDbDirName)
		}
	}

	if err := os.MkdirAll(cfg.BaseDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create %v: %w", cfg.BaseDir, err)
	}

	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.DbDir = cleanAndExpandPath(cfg.DbDir)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)

	return cfg, nil
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
// This function is taken from https://github.com/btcsuite/btcd
func cleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		user, err := user.Current()
		if err == nil {
			homeDir = user.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}

		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}
