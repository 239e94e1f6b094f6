package config

import (
	"fmt"
	"os"
)

// Exit codes shared by all CLI subcommands.
const (
	ExitOK         = 0
	ExitConfig     = 1
	ExitStorage    = 2
	ExitGovernance = 3
)

// Exitf writes a formatted error message to stderr and exits with the given
// code. It provides a consistent fatal-exit pattern for CLI entry points.
func Exitf(code int, format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(code)
}
