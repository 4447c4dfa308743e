// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/psbtanalyze/internal/log"
	"github.com/btcsuite/btcd/psbtanalyze/resolver"
	"github.com/btcsuite/btcd/wire"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultLogLevel    = "info"
	defaultLogDirname  = "logs"
	defaultLogFilename = "psbtanalyze.log"
)

var (
	psbtAnalyzeHomeDir = btcutil.AppDataDir("psbtanalyze", false)
	defaultLogDir      = filepath.Join(psbtAnalyzeHomeDir, defaultLogDirname)
	activeNetParams    = &chaincfg.MainNetParams
)

// config defines the configuration options for psbtanalyze.
//
// See loadConfig for details on the configuration load process.
type config struct {
	ShowVersion    bool   `short:"V" long:"version" description:"Display version information and exit"`
	File           string `short:"f" long:"file" description:"Read packets from this file instead of the command line or standard input"`
	JSON           bool   `short:"j" long:"json" description:"Print the analyzepsbt JSON result of each packet instead of a text report"`
	Dump           bool   `long:"dump" description:"Dump every decoded packet before its analysis"`
	Workers        int    `long:"workers" description:"Number of goroutines inputs are classified on -- 0 and 1 classify inputs in order"`
	CacheSize      uint32 `long:"cachesize" description:"Number of resolved scripts to keep in memory -- 0 disables the cache"`
	LogDir         string `long:"logdir" description:"Directory to log output"`
	NoFileLogging  bool   `long:"nofilelogging" description:"Disable file logging"`
	DebugLevel     string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	TestNet3       bool   `long:"testnet" description:"Render addresses for the test network"`
	RegressionTest bool   `long:"regtest" description:"Render addresses for the regression test network"`
	SigNet         bool   `long:"signet" description:"Render addresses for the signet network"`
	SimNet         bool   `long:"simnet" description:"Render addresses for the simulation test network"`
}

// netName returns the name used when referring to a bitcoin network.  Logs
// for testnet version 3 live in a "testnet" directory, which does not match
// the Name field of the chaincfg parameters.
func netName(chainParams *chaincfg.Params) string {
	switch chainParams.Net {
	case wire.TestNet3:
		return "testnet"
	default:
		return chainParams.Name
	}
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(psbtAnalyzeHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but they variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// parseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly.  An appropriate error is returned if anything is
// invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimiters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		// Validate debug log level.
		if !log.ValidLogLevel(debugLevel) {
			str := "the specified debug level [%v] is invalid"
			return fmt.Errorf(str, debugLevel)
		}

		// Change the logging level for all subsystems.
		log.SetLogLevels(debugLevel)

		return nil
	}

	// Split the specified string into subsystem/level pairs while detecting
	// issues and update the log levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			str := "the specified debug level contains an invalid " +
				"subsystem/level pair [%v]"
			return fmt.Errorf(str, logLevelPair)
		}

		// Extract the specified subsystem and log level.
		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		// Validate subsystem.
		if _, exists := log.SubsystemLoggers[subsysID]; !exists {
			str := "the specified subsystem [%v] is invalid -- " +
				"supported subsystems %v"
			return fmt.Errorf(str, subsysID, log.SupportedSubsystems())
		}

		// Validate log level.
		if !log.ValidLogLevel(logLevel) {
			str := "the specified debug level [%v] is invalid"
			return fmt.Errorf(str, logLevel)
		}

		log.SetLogLevel(subsysID, logLevel)
	}

	return nil
}

// errShowVersion is returned by loadConfig when the version was requested.
var errShowVersion = errors.New("version requested")

// errShowSubsystems is returned by loadConfig when the list of logging
// subsystems was requested.
var errShowSubsystems = errors.New("subsystems requested")

// loadConfig initializes and parses the config using the passed command line
// options.  The remaining arguments are the packets to analyze.
func loadConfig(args []string) (*config, []string, error) {
	// Default config.
	cfg := config{
		DebugLevel: defaultLogLevel,
		LogDir:     defaultLogDir,
		CacheSize:  resolver.DefaultCacheSize,
	}

	// Parse command line options.
	parser := flags.NewParser(&cfg, flags.Default)
	parser.Usage = "[OPTIONS] [PSBT...]"
	remainingArgs, err := parser.ParseArgs(args)
	if err != nil {
		var e *flags.Error
		if !errors.As(err, &e) || e.Type != flags.ErrHelp {
			parser.WriteHelp(os.Stderr)
		}
		return nil, nil, err
	}

	if cfg.ShowVersion {
		return &cfg, nil, errShowVersion
	}

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		return &cfg, nil, errShowSubsystems
	}

	// Multiple networks can't be selected simultaneously.
	funcName := "loadConfig"
	numNets := 0
	if cfg.TestNet3 {
		numNets++
		activeNetParams = &chaincfg.TestNet3Params
	}
	if cfg.RegressionTest {
		numNets++
		activeNetParams = &chaincfg.RegressionNetParams
	}
	if cfg.SigNet {
		numNets++
		activeNetParams = &chaincfg.SigNetParams
	}
	if cfg.SimNet {
		numNets++
		activeNetParams = &chaincfg.SimNetParams
	}
	if numNets > 1 {
		str := "%s: The testnet, regtest, signet, and simnet params " +
			"can't be used together -- choose one of the four"
		err := fmt.Errorf(str, funcName)
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return nil, nil, err
	}

	if cfg.Workers < 0 {
		str := "%s: The number of workers may not be negative -- " +
			"parsed [%d]"
		err := fmt.Errorf(str, funcName, cfg.Workers)
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return nil, nil, err
	}

	if cfg.File != "" && len(remainingArgs) > 0 {
		str := "%s: Packets may be passed as arguments or with --file " +
			"but not both"
		err := fmt.Errorf(str, funcName)
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return nil, nil, err
	}
	if cfg.File != "" {
		cfg.File = cleanAndExpandPath(cfg.File)
	}

	// Append the network type to the log directory so it is "namespaced"
	// per network.
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	cfg.LogDir = filepath.Join(cfg.LogDir, netName(activeNetParams))

	// Initialize log rotation.  After log rotation has been initialized,
	// the logger variables may be used.
	if !cfg.NoFileLogging {
		logFile := filepath.Join(cfg.LogDir, defaultLogFilename)
		if err := log.InitLogRotator(logFile); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", funcName, err)
			return nil, nil, err
		}
	}

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		err := fmt.Errorf("%s: %v", funcName, err.Error())
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return nil, nil, err
	}

	return &cfg, remainingArgs, nil
}
