package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"aideck/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, in io.Reader, out, errOut io.Writer) int {
	cfg, err := parseArgs(args, errOut)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if cfg.ShowVersion {
		printVersion(out)
		return 0
	}
	return send(cfg, in, errOut)
}

func printVersion(out io.Writer) {
	info := version.Get()
	if info.Version == "" || info.Version == "dev" {
		fmt.Fprintln(out, "aideck-send dev")
		return
	}
	fmt.Fprintf(out, "aideck-send version %s\n", info.Version)
}
