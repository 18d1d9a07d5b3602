// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/btcsuite/btcutil"
	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"github.com/umbranet/umbrad/logger"
	"github.com/umbranet/umbrad/version"
	"github.com/umbranet/umbrad/wire"
)

const (
	defaultConfigFilename    = "umbrad.conf"
	defaultDataDirname       = "data"
	defaultLogLevel          = "info"
	defaultLogDirname        = "logs"
	defaultLogFilename       = "umbrad.log"
	defaultErrLogFilename    = "umbrad_err.log"
	defaultParamsDirname     = "params"
	defaultBlockMaxSize      = wire.MaxBlockPayload
	blockMaxSizeMin          = 1000
	defaultMaxPoolTxs        = 10000
	defaultProofCacheMaxSize = 100000
)

var (
	// DefaultHomeDir is the default home directory for umbrad.
	DefaultHomeDir = btcutil.AppDataDir("umbrad", false)

	defaultConfigFile = filepath.Join(DefaultHomeDir, defaultConfigFilename)
	defaultDataDir    = filepath.Join(DefaultHomeDir, defaultDataDirname)
	defaultLogDir     = filepath.Join(DefaultHomeDir, defaultLogDirname)
	defaultParamsDir  = filepath.Join(DefaultHomeDir, defaultParamsDirname)
)

var activeConfig *Config

// Flags defines the configuration options for umbrad.
//
// See loadConfig for details on the configuration load process.
type Flags struct {
	ShowVersion       bool   `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile        string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir           string `short:"b" long:"datadir" description:"Directory to store data"`
	LogDir            string `long:"logdir" description:"Directory to log output."`
	ParamsDir         string `long:"paramsdir" description:"Directory to store the proof system parameters"`
	DebugLevel        string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	Profile           string `long:"profile" description:"Enable HTTP profiling on given port -- NOTE port must be between 1024 and 65536"`
	BlockMaxSize      uint64 `long:"blockmaxsize" description:"Maximum serialized block size in bytes to be used when creating a block"`
	MaxPoolTxs        int    `long:"maxpooltx" description:"Max number of transactions to keep in the memory pool"`
	ProofCacheMaxSize uint   `long:"proofcachemaxsize" description:"The maximum number of entries in the proof verification cache"`
	NetworkFlags
}

// Config defines the configuration options for umbrad.
//
// See loadConfig for details on the configuration load process.
type Config struct {
	*Flags
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(DefaultHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but they variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// newConfigParser returns a new command line flags parser.
func newConfigParser(cfgFlags *Flags, options flags.Options) *flags.Parser {
	return flags.NewParser(cfgFlags, options)
}

//LoadAndSetActiveConfig loads the config that can be afterward be accesible through ActiveConfig()
func LoadAndSetActiveConfig() error {
	tcfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	activeConfig = tcfg
	return nil
}

// ActiveConfig is a getter to the main config
func ActiveConfig() *Config {
	return activeConfig
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
// 	1) Start with a default config with sane settings
// 	2) Pre-parse the command line to check for an alternative config file
// 	3) Load configuration file overwriting defaults with any specified options
// 	4) Parse CLI options and overwrite/add any specified options
//
// The above results in umbrad functioning properly without any config settings
// while still allowing the user to override settings with config files and
// command line options. Command line options always take precedence.
func loadConfig() (*Config, []string, error) {
	// Default config.
	cfgFlags := Flags{
		ConfigFile:        defaultConfigFile,
		DebugLevel:        defaultLogLevel,
		DataDir:           defaultDataDir,
		LogDir:            defaultLogDir,
		ParamsDir:         defaultParamsDir,
		BlockMaxSize:      defaultBlockMaxSize,
		MaxPoolTxs:        defaultMaxPoolTxs,
		ProofCacheMaxSize: defaultProofCacheMaxSize,
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified. Any errors aside from the
	// help message error can be ignored here since they will be caught by
	// the final parse below.
	preCfg := cfgFlags
	preParser := newConfigParser(&preCfg, flags.HelpFlag)
	_, err := preParser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
			return nil, nil, err
		}
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version.Version())
		os.Exit(0)
	}

	// Load additional config from file.
	var configFileError error
	parser := newConfigParser(&cfgFlags, flags.Default)
	activeConfig = &Config{
		Flags: &cfgFlags,
	}
	if !(preCfg.RegressionTest || preCfg.SimNet) || preCfg.ConfigFile !=
		defaultConfigFile {

		err := flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile)
		if err != nil {
			if _, ok := err.(*os.PathError); !ok {
				fmt.Fprintf(os.Stderr, "Error parsing config "+
					"file: %s\n", err)
				fmt.Fprintln(os.Stderr, usageMessage)
				return nil, nil, err
			}
			configFileError = err
		}
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return nil, nil, err
	}

	// Create the home directory if it doesn't already exist.
	funcName := "loadConfig"
	err = os.MkdirAll(DefaultHomeDir, 0700)
	if err != nil {
		// Show a nicer error message if it's because a symlink is
		// linked to a directory that does not exist (probably because
		// it's not mounted).
		if e, ok := err.(*os.PathError); ok && os.IsExist(err) {
			if link, lerr := os.Readlink(e.Path); lerr == nil {
				str := "is symlink %s -> %s mounted?"
				err = errors.Errorf(str, e.Path, link)
			}
		}

		str := "%s: Failed to create home directory: %s"
		err := errors.Errorf(str, funcName, err)
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	err = activeConfig.ResolveNetwork(parser)
	if err != nil {
		return nil, nil, err
	}

	// Append the network type to the data directory so it is "namespaced"
	// per network. All data is specific to a network, so namespacing the
	// data directory means each individual piece of serialized data does
	// not have to worry about changing names per network and such.
	activeConfig.DataDir = cleanAndExpandPath(activeConfig.DataDir)
	activeConfig.DataDir = filepath.Join(activeConfig.DataDir, activeConfig.NetParams().Name)

	// Append the network type to the log directory so it is "namespaced"
	// per network in the same fashion as the data directory.
	activeConfig.LogDir = cleanAndExpandPath(activeConfig.LogDir)
	activeConfig.LogDir = filepath.Join(activeConfig.LogDir, activeConfig.NetParams().Name)

	// The proof system parameters are tied to the circuits rather than to
	// a particular network, so the params directory is not namespaced.
	activeConfig.ParamsDir = cleanAndExpandPath(activeConfig.ParamsDir)

	// Special show command to list supported subsystems and exit.
	if activeConfig.DebugLevel == "show" {
		fmt.Println("Supported subsystems", logger.SupportedSubsystems())
		os.Exit(0)
	}

	// Initialize log rotation. After log rotation has been initialized, the
	// logger variables may be used.
	logger.InitLog(filepath.Join(activeConfig.LogDir, defaultLogFilename), filepath.Join(activeConfig.LogDir, defaultErrLogFilename))

	// Parse, validate, and set debug log level(s).
	if err := logger.ParseAndSetDebugLevels(activeConfig.DebugLevel); err != nil {
		err := errors.Errorf("%s: %s", funcName, err.Error())
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	// Validate profile port number
	if activeConfig.Profile != "" {
		profilePort, err := strconv.Atoi(activeConfig.Profile)
		if err != nil || profilePort < 1024 || profilePort > 65535 {
			str := "%s: The profile port must be between 1024 and 65535"
			err := errors.Errorf(str, funcName)
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, nil, err
		}
	}

	// Limit the block template size to a sane value.
	if activeConfig.BlockMaxSize < blockMaxSizeMin ||
		activeConfig.BlockMaxSize > wire.MaxBlockPayload {

		str := "%s: The blockmaxsize option must be in between %d and %d " +
			"-- parsed [%d]"
		err := errors.Errorf(str, funcName, blockMaxSizeMin,
			wire.MaxBlockPayload, activeConfig.BlockMaxSize)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	// Don't allow a memory pool with no room for transactions.
	if activeConfig.MaxPoolTxs < 1 {
		str := "%s: The maxpooltx option may not be less than 1 -- parsed [%d]"
		err := errors.Errorf(str, funcName, activeConfig.MaxPoolTxs)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	// Warn about missing config file only after all other configuration is
	// done. This prevents the warning on help messages and invalid
	// options. Note this should go directly before the return.
	if configFileError != nil {
		log.Warnf("%s", configFileError)
	}

	return activeConfig, remainingArgs, nil
}
