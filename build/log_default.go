//go:build !stdlog && !nolog

package build

// LoggingType is a log type that writes to the backend supplied by the
// binary.
const LoggingType = LogTypeDefault
