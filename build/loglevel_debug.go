//go:build debug && !trace

package build

// LogLevel specifies a debug log level.
var LogLevel = "debug"
