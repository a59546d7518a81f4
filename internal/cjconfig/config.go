// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package cjconfig loads the configuration shared by the cjtaker and
// cjmaker binaries (cjbond takes plain arguments): CLI flags via go-flags, an
// ini-backed config file, and environment-variable overrides, with
// "CLI > environment > file > defaults" precedence.
package cjconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	flags "github.com/jessevdk/go-flags"

	"github.com/btcsuite/cjcore/internal/cfgutil"
	"github.com/btcsuite/cjcore/netparams"
	"github.com/btcsuite/cjcore/takerengine"
)

const (
	defaultConfigFilename = "cjcore.conf"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "cjcore.log"
	defaultLogLevel       = "info"

	defaultMaxOfferAge                 = 3600
	defaultCounterpartyCount           = 9
	defaultMaxMakerReplacementAttempts = 3
	defaultSessionTimeoutSec           = 300
	defaultTakerUTXOAge                = 5
	defaultTakerUTXORetries            = 3
	defaultMessageRateLimit            = 100
	defaultMessageBurstLimit           = 200
	defaultBroadcastPolicy             = "multiple_peers"
)

var (
	cjcoreHomeDir     = btcAppDataDir()
	defaultConfigFile = filepath.Join(cjcoreHomeDir, defaultConfigFilename)
	defaultDataDir    = cjcoreHomeDir
	defaultLogDir     = filepath.Join(cjcoreHomeDir, defaultLogDirname)
)

// Config is the option set cjtaker and cjmaker parse, matching
// spec.md §6 plus the ambient options every teacher binary carries.
type Config struct {
	ConfigFile  string `short:"C" long:"configfile" description:"Path to configuration file"`
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`
	DataDir     string `short:"b" long:"datadir" description:"Directory to store runtime state"`
	TestNet3    bool   `long:"testnet" description:"Use the test Bitcoin network (version 3)"`
	TestNet4    bool   `long:"testnet4" description:"Use the test Bitcoin network (version 4)"`
	SigNet      bool   `long:"signet" description:"Use the default signet"`
	SimNet      bool   `long:"simnet" description:"Use the simulation test network"`
	DebugLevel  string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}"`
	LogDir      string `long:"logdir" description:"Directory to log output"`
	Profile     string `long:"profile" description:"Enable HTTP profiling on the given port"`

	Nick string `long:"nick" description:"This node's nickname on the message channel network"`

	MaxOfferAge                 int                     `long:"max_offer_age" description:"Seconds an orderbook entry stays valid after being seen"`
	CounterpartyCount           int                     `long:"counterparty_count" description:"Number of makers a taker run tries to fill"`
	MaxMakerReplacementAttempts int                     `long:"max_maker_replacement_attempts" description:"Times a taker redraws non-responding makers before giving up"`
	SessionTimeoutSec           int                     `long:"session_timeout_sec" description:"Seconds a single protocol phase is allowed to take"`
	TakerUTXOAge                int32                   `long:"taker_utxo_age" description:"Minimum confirmations a taker's own declared utxo must have"`
	TakerUTXOAmtPercent         *cfgutil.PercentFlag    `long:"taker_utxo_amtpercent" description:"Minimum declared-utxo value, as a percent of cj_amount"`
	TakerUTXORetries            int                     `long:"taker_utxo_retries" description:"Times a taker retries utxo selection before aborting"`
	DustThreshold               *cfgutil.AmountFlag     `long:"dust_threshold" description:"Amount in BTC (e.g. 0.000273) at or below which an output is never created; a bare number is read as BTC, not satoshis"`
	MessageRateLimit            int                     `long:"message_rate_limit" description:"Sustained commands per second a peer may send"`
	MessageBurstLimit           int                     `long:"message_burst_limit" description:"Commands a peer may send in a single burst"`
	BroadcastPolicy             *cfgutil.ExplicitString `long:"broadcast_policy" description:"self, random_peer, multiple_peers, or not_self"`
	PreferDirectConnections     bool                    `long:"prefer_direct_connections" description:"Prefer a direct transport over relayed message channels when both are available"`
}

// btcAppDataDir mirrors the teacher's btcutil.AppDataDir convention
// without introducing a dependency cycle on btcutil for a pure
// path-join helper.
func btcAppDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	switch {
	case os.Getenv("APPDATA") != "":
		return filepath.Join(os.Getenv("APPDATA"), "Cjcore")
	default:
		return filepath.Join(home, ".cjcore")
	}
}

func defaultConfig() Config {
	return Config{
		DataDir:                     defaultDataDir,
		DebugLevel:                  defaultLogLevel,
		LogDir:                      defaultLogDir,
		MaxOfferAge:                 defaultMaxOfferAge,
		CounterpartyCount:           defaultCounterpartyCount,
		MaxMakerReplacementAttempts: defaultMaxMakerReplacementAttempts,
		SessionTimeoutSec:           defaultSessionTimeoutSec,
		TakerUTXOAge:                defaultTakerUTXOAge,
		TakerUTXOAmtPercent:         cfgutil.NewPercentFlag(20),
		TakerUTXORetries:            defaultTakerUTXORetries,
		DustThreshold:               cfgutil.NewAmountFlag(27_300),
		MessageRateLimit:            defaultMessageRateLimit,
		MessageBurstLimit:           defaultMessageBurstLimit,
		BroadcastPolicy:             cfgutil.NewExplicitString(defaultBroadcastPolicy),
		PreferDirectConnections:     true,
	}
}

// ResolveBroadcastPolicy parses cfg.BroadcastPolicy into the engine's
// BroadcastPolicy enum. When prefer_direct_connections is set and the
// operator never explicitly chose a broadcast_policy (on the CLI, in
// the config file, or via environment override), it resolves to
// BroadcastSelf instead of the multiple_peers default: a direct
// transport makes relaying through counterparties pointless overhead.
func (cfg *Config) ResolveBroadcastPolicy() (takerengine.BroadcastPolicy, error) {
	if cfg.PreferDirectConnections && !cfg.BroadcastPolicy.ExplicitlySet() {
		return takerengine.BroadcastSelf, nil
	}
	return takerengine.ParseBroadcastPolicy(cfg.BroadcastPolicy.Value)
}

// Load parses a CoinJoin binary's configuration: CLI flags locate the
// config file, the ini file is parsed in, environment variables
// override it, and CLI flags are re-applied so they win over both.
func Load(appName string) (*Config, *netparams.Params, []string, error) {
	cfg := defaultConfig()

	exists, err := cfgutil.FileExists(defaultConfigFile)
	if err != nil {
		return nil, nil, nil, err
	}
	if exists {
		cfg.ConfigFile = defaultConfigFile
	}

	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.Default)
	if _, err := preParser.Parse(); err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			preParser.WriteHelp(os.Stderr)
		}
		return nil, nil, nil, err
	}
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", Version())
		os.Exit(0)
	}

	var configFileError error
	parser := flags.NewParser(&cfg, flags.Default)
	if err := flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			parser.WriteHelp(os.Stderr)
			return nil, nil, nil, err
		}
		configFileError = err
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, nil, nil, err
	}

	remainingArgs, err := parser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			parser.WriteHelp(os.Stderr)
		}
		return nil, nil, nil, err
	}
	if configFileError != nil && cfg.ConfigFile != "" {
		fmt.Fprintf(os.Stderr, "warning: %v\n", configFileError)
	}

	active, err := activeNetwork(&cfg)
	if err != nil {
		parser.WriteHelp(os.Stderr)
		return nil, nil, nil, err
	}

	cfg.LogDir = filepath.Join(cleanAndExpandPath(cfg.LogDir), active.Params.Name)

	return &cfg, active, remainingArgs, nil
}

// activeNetwork chooses the single selected network's parameters,
// rejecting any request that names more than one.
func activeNetwork(cfg *Config) (*netparams.Params, error) {
	selected := 0
	var active *netparams.Params
	pick := func(p *netparams.Params) {
		active = p
		selected++
	}
	if cfg.TestNet3 {
		pick(&netparams.TestNet3Params)
	}
	if cfg.TestNet4 {
		pick(&netparams.TestNet4Params)
	}
	if cfg.SigNet {
		pick(&netparams.SigNetParams)
	}
	if cfg.SimNet {
		pick(&netparams.SimNetParams)
	}
	if selected > 1 {
		return nil, fmt.Errorf("the testnet, testnet4, signet, and simnet params can't be used together -- choose one")
	}
	if selected == 0 {
		active = &netparams.MainNetParams
	}
	return active, nil
}

// applyEnvOverrides layers CJ_<UPPER_SNAKE_FIELD> environment
// variables onto cfg, run between the ini load and the final CLI
// parse so the final parse's explicit flags still win.
func applyEnvOverrides(cfg *Config) error {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		envName := "CJ_" + toUpperSnake(field.Name)
		raw, ok := os.LookupEnv(envName)
		if !ok {
			continue
		}

		fv := v.Field(i)
		switch fv.Kind() {
		case reflect.String:
			fv.SetString(raw)
		case reflect.Bool:
			fv.SetBool(raw == "1" || strings.EqualFold(raw, "true"))
		case reflect.Int, reflect.Int32, reflect.Int64:
			var n int64
			if _, err := fmt.Sscanf(raw, "%d", &n); err != nil {
				return fmt.Errorf("invalid value for %s: %v", envName, err)
			}
			fv.SetInt(n)
		default:
			if m, ok := fv.Interface().(flags.Unmarshaler); ok {
				if err := m.UnmarshalFlag(raw); err != nil {
					return fmt.Errorf("invalid value for %s: %v", envName, err)
				}
			}
		}
	}
	return nil
}

func toUpperSnake(fieldName string) string {
	var b strings.Builder
	for i, r := range fieldName {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}

// cleanAndExpandPath expands environment variables and leading ~ in a
// path, the same helper shape the teacher's loadConfig uses.
func cleanAndExpandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	return filepath.Clean(os.ExpandEnv(path))
}

// Version is overridden at build time via -ldflags.
var version = "0.1.0-dev"

// Version returns the running binary's version string.
func Version() string {
	return version
}
