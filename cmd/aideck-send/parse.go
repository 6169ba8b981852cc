package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"aideck/internal/cli"
)

const defaultServerURL = "http://127.0.0.1:7433"

type Config struct {
	URL         string
	Token       string
	Tool        string
	Msg         string
	Prompt      string
	Pick        bool
	PickPrompt  bool
	Start       bool
	All         bool
	Submit      bool
	Focus       bool
	Verbose     bool
	ShowVersion bool
}

func parseArgs(args []string, errOut io.Writer) (Config, error) {
	fs := flag.NewFlagSet("aideck-send", flag.ContinueOnError)
	fs.SetOutput(errOut)
	urlFlag := fs.String("url", "", "Hub URL (env: AIDECK_URL, default: "+defaultServerURL+")")
	tokenFlag := fs.String("token", "", "Auth token (env: AIDECK_TOKEN, default: none)")
	msgFlag := fs.String("msg", "", "Message text (default: read stdin)")
	promptFlag := fs.String("prompt", "", "Send the named prompt instead of a message")
	pickFlag := fs.Bool("pick", false, "Choose the tool interactively")
	pickPromptFlag := fs.Bool("pick-prompt", false, "Choose a prompt interactively")
	startFlag := fs.Bool("start", false, "Target your attached session, starting one if needed")
	allFlag := fs.Bool("all", false, "Deliver to every matching session")
	submitFlag := fs.Bool("submit", false, "Press the tool's confirm action after the text")
	focusFlag := fs.Bool("focus", false, "Focus the terminal after delivery")
	verboseFlag := fs.Bool("verbose", false, "Verbose output")
	common := cli.BindCommon(fs)
	fs.Usage = func() {
		printSendHelp(fs.Output())
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if common.Help {
		fs.Usage()
		return Config{}, flag.ErrHelp
	}

	if common.Version {
		return Config{ShowVersion: true}, nil
	}

	if fs.NArg() > 1 {
		fs.Usage()
		return Config{}, fmt.Errorf("at most one tool name expected, got %d", fs.NArg())
	}
	tool := strings.TrimSpace(fs.Arg(0))
	if tool != "" && *pickFlag {
		fs.Usage()
		return Config{}, fmt.Errorf("--pick and a tool name are mutually exclusive")
	}

	msg := *msgFlag
	prompt := strings.TrimSpace(*promptFlag)
	if msg != "" && prompt != "" {
		fs.Usage()
		return Config{}, fmt.Errorf("--msg and --prompt are mutually exclusive")
	}
	if prompt != "" && *pickPromptFlag {
		fs.Usage()
		return Config{}, fmt.Errorf("--prompt and --pick-prompt are mutually exclusive")
	}

	return Config{
		URL:        cli.EnvDefault(*urlFlag, "AIDECK_URL", defaultServerURL),
		Token:      cli.EnvDefault(*tokenFlag, "AIDECK_TOKEN", ""),
		Tool:       tool,
		Msg:        msg,
		Prompt:     prompt,
		Pick:       *pickFlag,
		PickPrompt: *pickPromptFlag,
		Start:      *startFlag,
		All:        *allFlag,
		Submit:     *submitFlag,
		Focus:      *focusFlag,
		Verbose:    *verboseFlag,
	}, nil
}

func printSendHelp(out io.Writer) {
	fmt.Fprintln(out, "Usage: aideck-send [options] [tool]")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Send a message or prompt to an AI tool session on a running hub")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Options:")
	writeSendOption(out, "--msg TEXT", "Message text (default: read stdin)")
	writeSendOption(out, "--prompt NAME", "Send the named prompt instead of a message")
	writeSendOption(out, "--pick", "Choose the tool interactively")
	writeSendOption(out, "--pick-prompt", "Choose a prompt interactively")
	writeSendOption(out, "--start", "Target your attached session, starting one if needed")
	writeSendOption(out, "--all", "Deliver to every matching session")
	writeSendOption(out, "--submit", "Press the tool's confirm action after the text")
	writeSendOption(out, "--focus", "Focus the terminal after delivery")
	writeSendOption(out, "--url URL", "Hub URL (env: AIDECK_URL, default: "+defaultServerURL+")")
	writeSendOption(out, "--token TOKEN", "Auth token (env: AIDECK_TOKEN, default: none)")
	writeSendOption(out, "--verbose", "Show request details")
	writeSendOption(out, "--help", "Show this help message")
	writeSendOption(out, "--version", "Print version and exit")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Arguments:")
	fmt.Fprintln(out, "  tool  Tool name to target (omit to use the hub default)")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Examples:")
	fmt.Fprintln(out, "  cat notes.md | aideck-send claude")
	fmt.Fprintln(out, "  aideck-send --msg \"run the tests\" --submit claude")
	fmt.Fprintln(out, "  aideck-send --prompt review --start codex")
	fmt.Fprintln(out, "  aideck-send --pick --pick-prompt")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Exit codes:")
	fmt.Fprintln(out, "  0  Success (including an empty message, which only warns)")
	fmt.Fprintln(out, "  1  Usage error or canceled picker")
	fmt.Fprintln(out, "  2  No such tool or session")
	fmt.Fprintln(out, "  3  Network or server error")
}

func writeSendOption(out io.Writer, name, desc string) {
	fmt.Fprintf(out, "  %-14s %s\n", name, desc)
}
