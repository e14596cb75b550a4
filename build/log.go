// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package build

import (
	"os"

	"github.com/btcsuite/btclog"
)

// LogType selects where library loggers write.  It is fixed at build time by
// the log tags (nolog, stdlog, or neither).
type LogType byte

const (
	// LogTypeNone disables library logging entirely.
	LogTypeNone LogType = iota

	// LogTypeStdOut writes straight to stdout at LogLevel.  Test builds
	// use it.
	LogTypeStdOut

	// LogTypeDefault writes through the backend installed by the binary.
	LogTypeDefault
)

// NewSubLogger returns the logger for a package subsystem.  The custody
// packages call it from init with a nil genSubLogger, and the binary later
// replaces the result through each package's UseLogger.
//
// Production builds return genSubLogger(subsystem), or a disabled logger when
// it is nil.  Development builds consult LoggingType as well, so that
// packages built with the stdlog tag print during tests.
func NewSubLogger(subsystem string,
	genSubLogger func(string) btclog.Logger) btclog.Logger {

	if Deployment == Development && LoggingType == LogTypeStdOut {
		return stdoutLogger(subsystem)
	}

	if LoggingType == LogTypeNone || genSubLogger == nil {
		return btclog.Disabled
	}
	return genSubLogger(subsystem)
}

// stdoutLogger returns a logger for subsystem writing to stdout at the level
// chosen by the loglevel build tags.
func stdoutLogger(subsystem string) btclog.Logger {
	logger := btclog.NewBackend(os.Stdout).Logger(subsystem)

	level, ok := btclog.LevelFromString(LogLevel)
	if !ok {
		level = btclog.LevelInfo
	}
	logger.SetLevel(level)
	return logger
}
