// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/btcsuite/btccustody/contractdb"
	"github.com/btcsuite/btccustody/internal/cfgutil"
	"github.com/btcsuite/btccustody/ledger"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "btccustody.conf"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "btccustody.log"
	defaultDbType         = "bdb"

	// defaultGuardedAsset is the asset id accepted by the deposit
	// contract unless configured otherwise.
	defaultGuardedAsset = "c56f33fc6ecfcd0c225c4ab356fee59390af8560be0e930faebe74a6daff7c9b"

	dbName = "custody.db"
)

var (
	custodyHomeDir    = btcutil.AppDataDir("btccustody", false)
	defaultConfigFile = filepath.Join(custodyHomeDir, defaultConfigFilename)
	defaultDataDir    = custodyHomeDir
	defaultLogDir     = filepath.Join(custodyHomeDir, defaultLogDirname)

	defaultDepositContract  = ledger.ScriptAddress([]byte("btccustody/deposit"))
	defaultRollbackContract = ledger.ScriptAddress([]byte("btccustody/rollback"))
)

type config struct {
	// General application behavior
	ConfigFile  *cfgutil.ExplicitString `short:"C" long:"configfile" description:"Path to configuration file"`
	ShowVersion bool                    `short:"V" long:"version" description:"Display version information and exit"`
	DataDir     *cfgutil.ExplicitString `short:"b" long:"datadir" description:"Directory to store the ledger database"`
	DbType      string                  `long:"dbtype" description:"Database backend {bdb, sqlite}"`
	DebugLevel  string                  `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}"`
	LogDir      string                  `long:"logdir" description:"Directory to log output."`

	// Contract options
	GuardedAsset     *cfgutil.HashFlag    `long:"guardedasset" description:"Asset id accepted by the deposit contract"`
	DepositContract  *cfgutil.AddressFlag `long:"depositcontract" description:"Script address of the deposit/withdraw contract (20-byte hex)"`
	RollbackContract *cfgutil.AddressFlag `long:"rollbackcontract" description:"Script address of the rollback contract (20-byte hex)"`
}

// cleanAndExpandPath expands environement variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(custodyHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows cmd.exe-style
	// %VARIABLE%, but they variables can still be expanded via POSIX-style
	// $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// validDbType returns whether a database driver is registered for dbType.
func validDbType(dbType string) bool {
	for _, supported := range contractdb.SupportedDrivers() {
		if dbType == supported {
			return true
		}
	}
	return false
}

// validLogLevel returns whether or not logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace":
		fallthrough
	case "debug":
		fallthrough
	case "info":
		fallthrough
	case "warn":
		fallthrough
	case "error":
		fallthrough
	case "critical":
		return true
	}
	return false
}

// supportedSubsystems returns a sorted slice of the supported subsystems for
// logging purposes.
func supportedSubsystems() []string {
	// Convert the subsystemLoggers map keys to a slice.
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}

	// Sort the subsytems for stable display.
	sort.Strings(subsystems)
	return subsystems
}

// parseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly.  An appropriate error is returned if anything is
// invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		// Validate debug log level.
		if !validLogLevel(debugLevel) {
			str := "The specified debug level [%v] is invalid"
			return fmt.Errorf(str, debugLevel)
		}

		// Change the logging level for all subsystems.
		setLogLevels(debugLevel)

		return nil
	}

	// Split the specified string into subsystem/level pairs while detecting
	// issues and update the log levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			str := "The specified debug level contains an invalid " +
				"subsystem/level pair [%v]"
			return fmt.Errorf(str, logLevelPair)
		}

		// Extract the specified subsystem and log level.
		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		// Validate subsystem.
		if _, exists := subsystemLoggers[subsysID]; !exists {
			str := "The specified subsystem [%v] is invalid -- " +
				"supported subsytems %v"
			return fmt.Errorf(str, subsysID, supportedSubsystems())
		}

		// Validate log level.
		if !validLogLevel(logLevel) {
			str := "The specified debug level [%v] is invalid"
			return fmt.Errorf(str, logLevel)
		}

		setLogLevel(subsysID, logLevel)
	}

	return nil
}

// defaultConfig returns the configuration used before any file or command
// line option is applied.
func defaultConfig() config {
	guarded, err := chainhash.NewHashFromStr(defaultGuardedAsset)
	if err != nil {
		panic(err)
	}

	return config{
		ConfigFile:       cfgutil.NewExplicitString(defaultConfigFile),
		DataDir:          cfgutil.NewExplicitString(defaultDataDir),
		DbType:           defaultDbType,
		DebugLevel:       defaultLogLevel,
		LogDir:           defaultLogDir,
		GuardedAsset:     cfgutil.NewHashFlag(*guarded),
		DepositContract:  cfgutil.NewAddressFlag(defaultDepositContract),
		RollbackContract: cfgutil.NewAddressFlag(defaultRollbackContract),
	}
}

// loadConfig initializes and parses the config using a config file and command
// line options.  It returns the configuration and the subcommand selected on
// the command line.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in btccustody functioning properly without any config
// settings while still allowing the user to override settings with config files
// and command line options.  Command line options always take precedence.
func loadConfig() (*config, commandRunner, error) {
	cfg := defaultConfig()

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.  Subcommand options are not
	// known to the pre-parser and are skipped.
	preCfg := defaultConfig()
	preParser := flags.NewParser(&preCfg, flags.IgnoreUnknown)
	_, err := preParser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			return nil, nil, err
		}
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version())
		os.Exit(0)
	}

	// If a custom data directory was specified without a config file,
	// look for the config file inside it.
	configFilePath := preCfg.ConfigFile.Value
	if preCfg.DataDir.ExplicitlySet() && !preCfg.ConfigFile.ExplicitlySet() {
		configFilePath = filepath.Join(
			preCfg.DataDir.Value, defaultConfigFilename,
		)
	}

	// Load additional config from file.
	var configFileError error
	parser := flags.NewParser(&cfg, flags.Default)
	runners := addCommands(parser)
	err = flags.NewIniParser(parser).ParseFile(
		cleanAndExpandPath(configFilePath),
	)
	if err != nil {
		if _, ok := err.(*os.PathError); !ok {
			fmt.Fprintln(os.Stderr, err)
			parser.WriteHelp(os.Stderr)
			return nil, nil, err
		}
		configFileError = err
	}

	// Parse command line options again to ensure they take precedence.
	_, err = parser.Parse()
	if err != nil {
		return nil, nil, err
	}

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	cfg.DataDir.Value = cleanAndExpandPath(cfg.DataDir.Value)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)

	// Initialize log rotation.  After log rotation has been initialized,
	// the logger variables may be used.
	initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename))
	setLogLevels(defaultLogLevel)

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		err := fmt.Errorf("%s: %v", "loadConfig", err.Error())
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return nil, nil, err
	}

	if !validDbType(cfg.DbType) {
		supported := contractdb.SupportedDrivers()
		sort.Strings(supported)
		err := fmt.Errorf("loadConfig: unsupported database type %q, "+
			"must be one of %v", cfg.DbType, supported)
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return nil, nil, err
	}

	if cfg.DepositContract.Address == cfg.RollbackContract.Address {
		err := fmt.Errorf("loadConfig: deposit and rollback contracts " +
			"must have distinct addresses")
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	// Warn about missing config file after the final command line parse
	// succeeds.  This prevents the warning on help messages and invalid
	// options.
	if configFileError != nil {
		log.Debugf("%v", configFileError)
	}

	return &cfg, runners[parser.Active.Name], nil
}
