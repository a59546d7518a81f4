// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package cjlog wires the package-level btclog loggers of every
// CoinJoin subsystem to a single seelog backend, the same
// backendLog-plus-subsystem-router shape the teacher's root log.go
// uses for its own subsystems.
package cjlog

import (
	"fmt"
	"os"

	"github.com/btcsuite/btclog"
	"github.com/btcsuite/seelog"

	"github.com/btcsuite/cjcore/makerengine"
	"github.com/btcsuite/cjcore/peerbook"
	"github.com/btcsuite/cjcore/podle"
	"github.com/btcsuite/cjcore/takerengine"
	"github.com/btcsuite/cjcore/wireproto"
)

var backendLog = seelog.Disabled

var subsystemLoggers = map[string]btclog.Logger{
	"PODL": btclog.Disabled, // podle
	"WIRE": btclog.Disabled, // wireproto
	"PBOK": btclog.Disabled, // peerbook
	"TKR":  btclog.Disabled, // takerengine
	"MKR":  btclog.Disabled, // makerengine
}

// Init configures the backend and brings every subsystem logger up to
// logLevel, writing to logFile in addition to the console.
func Init(logFile string, logLevel string) {
	config := fmt.Sprintf(`
        <seelog type="adaptive" mininterval="2000000" maxinterval="100000000"
                critmsgcount="500" minlevel="trace">
                <outputs formatid="all">
                        <console />
                        <rollingfile type="size" filename="%s" maxsize="10485760" maxrolls="3" />
                </outputs>
                <formats>
                        <format id="all" format="%%Time %%Date [%%LEV] %%Msg%%n" />
                </formats>
        </seelog>`, logFile)

	logger, err := seelog.LoggerFromConfigAsString(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to configure logging: %v\n", err)
		os.Exit(1)
	}
	backendLog = logger
	setLevels(logLevel)
}

func setLevels(logLevel string) {
	level, ok := btclog.LogLevelFromString(logLevel)
	if !ok {
		level = btclog.InfoLvl
	}
	for subsystemID := range subsystemLoggers {
		logger := btclog.NewSubsystemLogger(backendLog, subsystemID+": ")
		logger.SetLevel(level)
		subsystemLoggers[subsystemID] = logger
		use(subsystemID, logger)
	}
}

func use(subsystemID string, logger btclog.Logger) {
	switch subsystemID {
	case "PODL":
		podle.UseLogger(logger)
	case "WIRE":
		wireproto.UseLogger(logger)
	case "PBOK":
		peerbook.UseLogger(logger)
	case "TKR":
		takerengine.UseLogger(logger)
	case "MKR":
		makerengine.UseLogger(logger)
	}
}
