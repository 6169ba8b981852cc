package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"aideck/internal/client"
	"aideck/internal/picker"
	"aideck/internal/render"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// pickFunc runs an interactive chooser. Swapped out in tests.
type pickFunc func(title string, items []picker.Item) (string, bool, error)

func send(cfg Config, in io.Reader, errOut io.Writer) int {
	return sendWith(cfg, in, errOut, picker.Run)
}

func sendWith(cfg Config, in io.Reader, errOut io.Writer, pick pickFunc) int {
	hub, err := client.New(cfg.URL, cfg.Token, httpClient)
	if err != nil {
		fmt.Fprintln(errOut, err.Error())
		return 1
	}

	if cfg.Pick {
		tool, code := pickTool(hub, pick, errOut)
		if code != 0 {
			return code
		}
		cfg.Tool = tool
	}
	if cfg.PickPrompt {
		name, code := pickPrompt(hub, pick, errOut)
		if code != 0 {
			return code
		}
		cfg.Prompt = name
	}

	req := client.SendRequest{
		Msg:    cfg.Msg,
		Prompt: cfg.Prompt,
		Name:   cfg.Tool,
		All:    cfg.All,
		Submit: cfg.Submit,
		Focus:  cfg.Focus,
		My:     cfg.Start,
	}
	if cfg.Msg == "" && cfg.Prompt == "" {
		payload, err := io.ReadAll(in)
		if err != nil {
			fmt.Fprintf(errOut, "read stdin: %v\n", err)
			return 3
		}
		if len(payload) > 0 {
			req.Text = []render.Segment{render.Selection(string(payload), "", 0, 0)}
		}
	}

	if cfg.Verbose {
		logSendRequest(cfg, req, errOut)
	}
	if err := hub.Send(req); err != nil {
		return reportSendError(err, errOut)
	}
	if cfg.Verbose {
		fmt.Fprintln(errOut, "queued")
	}
	return 0
}

func pickTool(hub *client.Client, pick pickFunc, errOut io.Writer) (string, int) {
	tools, err := hub.Tools()
	if err != nil {
		fmt.Fprintf(errOut, "failed to fetch tools: %v\n", err)
		return "", 3
	}
	if len(tools) == 0 {
		fmt.Fprintln(errOut, "no tools available")
		return "", 2
	}
	items := make([]picker.Item, 0, len(tools))
	for _, t := range tools {
		items = append(items, picker.Item{Label: t.Name, Desc: t.URL})
	}
	choice, ok, err := pick("Pick a tool", items)
	if err != nil {
		fmt.Fprintf(errOut, "picker failed: %v\n", err)
		return "", 1
	}
	if !ok {
		fmt.Fprintln(errOut, "canceled")
		return "", 1
	}
	return choice, 0
}

func pickPrompt(hub *client.Client, pick pickFunc, errOut io.Writer) (string, int) {
	names, err := hub.Prompts()
	if err != nil {
		fmt.Fprintf(errOut, "failed to fetch prompts: %v\n", err)
		return "", 3
	}
	if len(names) == 0 {
		fmt.Fprintln(errOut, "no prompts available")
		return "", 2
	}
	items := make([]picker.Item, 0, len(names))
	for _, name := range names {
		items = append(items, picker.Item{Label: name})
	}
	choice, ok, err := pick("Pick a prompt", items)
	if err != nil {
		fmt.Fprintf(errOut, "picker failed: %v\n", err)
		return "", 1
	}
	if !ok {
		fmt.Fprintln(errOut, "canceled")
		return "", 1
	}
	return choice, 0
}

// reportSendError turns a send failure into the exit code contract: an
// empty message only warns, a missing tool or session is 2, everything
// else is a network or server problem.
func reportSendError(err error, errOut io.Writer) int {
	var httpErr *client.HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.Code {
		case "nothing_to_send":
			fmt.Fprintln(errOut, "nothing to send")
			return 0
		case "tool_not_found", "no_state":
			fmt.Fprintln(errOut, httpErr.Message)
			return 2
		case "tool_not_installed":
			fmt.Fprintln(errOut, httpErr.Message)
			if httpErr.URL != "" {
				fmt.Fprintf(errOut, "install it from %s\n", httpErr.URL)
			}
			return 2
		}
		fmt.Fprintln(errOut, httpErr.Message)
		return 3
	}
	fmt.Fprintf(errOut, "cannot reach the hub: %v\n", err)
	return 3
}

func logSendRequest(cfg Config, req client.SendRequest, errOut io.Writer) {
	target := req.Name
	if target == "" {
		target = "(hub default)"
	}
	switch {
	case req.Prompt != "":
		fmt.Fprintf(errOut, "sending prompt %q to %s\n", req.Prompt, target)
	case req.Msg != "":
		fmt.Fprintf(errOut, "sending %d bytes to %s\n", len(req.Msg), target)
	default:
		size := 0
		for _, seg := range req.Text {
			size += len(seg.Text)
		}
		fmt.Fprintf(errOut, "sending %d bytes of stdin to %s\n", size, target)
	}
	if cfg.Start {
		fmt.Fprintln(errOut, "targeting your attached session")
	}
}
