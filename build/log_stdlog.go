//go:build stdlog && !nolog

package build

// LoggingType is a log type that only writes to stdout.
const LoggingType = LogTypeStdOut
