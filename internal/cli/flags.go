// Package cli carries the flag conventions shared by the aideck
// binaries: every command answers --help/-h and --version/-v, and
// string settings resolve with flag > environment > default
// precedence.
package cli

import (
	"flag"
	"os"
	"strings"
)

// Common holds the flags every aideck command accepts.
type Common struct {
	Help    bool
	Version bool
}

// BindCommon registers the help and version flags on fs, long and
// short forms. A nil fs yields a zero Common so callers need no nil
// check.
func BindCommon(fs *flag.FlagSet) *Common {
	common := &Common{}
	if fs == nil {
		return common
	}
	fs.BoolVar(&common.Help, "help", false, "Show this help message")
	fs.BoolVar(&common.Help, "h", false, "Show this help message")
	fs.BoolVar(&common.Version, "version", false, "Print version and exit")
	fs.BoolVar(&common.Version, "v", false, "Print version and exit")
	return common
}

// EnvDefault resolves a string setting: the flag value wins, then the
// named environment variable, then fallback. Values are trimmed, so a
// whitespace-only value counts as unset.
func EnvDefault(flagValue, envName, fallback string) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v
	}
	if v := strings.TrimSpace(os.Getenv(envName)); v != "" {
		return v
	}
	return fallback
}
