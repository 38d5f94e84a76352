package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"github.com/mattjoyce/scenebridge/internal/client"
	"github.com/mattjoyce/scenebridge/internal/config"
	"github.com/mattjoyce/scenebridge/internal/protocol"
	"github.com/mattjoyce/scenebridge/internal/tui/watch"
)

// remoteOpts are the flags shared by commands that talk to a running host.
type remoteOpts struct {
	addr    string
	token   string
	timeout time.Duration
	format  string
}

func addRemoteFlags(fs *flag.FlagSet) *remoteOpts {
	o := &remoteOpts{}
	fs.StringVar(&o.addr, "addr", "", "Listener address (default: listener.listen from config)")
	fs.StringVar(&o.token, "token", os.Getenv(envToken), "Bearer token (or "+envToken+")")
	fs.DurationVar(&o.timeout, "timeout", 35*time.Second, "Request timeout")
	fs.StringVar(&o.format, "format", "auto", "Output format (auto, table, json)")
	return o
}

// client builds a client for the configured or discovered listener address.
func (o *remoteOpts) client() *client.Client {
	addr := o.addr
	if addr == "" {
		addr = config.Defaults().Listener.Listen
		if cfg, _, err := loadConfig(""); err == nil {
			addr = cfg.Listener.Listen
		}
	}
	return client.New(addr, o.token)
}

func (o *remoteOpts) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), o.timeout)
}

func reportRemoteError(err error) int {
	var se *client.StatusError
	if errors.As(err, &se) {
		fmt.Fprintf(os.Stderr, "Listener refused request: %v\n", se)
		return 1
	}
	fmt.Fprintf(os.Stderr, "Listener unreachable: %v\n", err)
	return 1
}

// parseParams accepts a JSON object or key=value pairs. Values that parse as
// JSON keep their type; anything else is a string.
func parseParams(args []string) (json.RawMessage, error) {
	if len(args) == 0 {
		return nil, nil
	}
	if len(args) == 1 && strings.HasPrefix(strings.TrimSpace(args[0]), "{") {
		raw := json.RawMessage(args[0])
		if !json.Valid(raw) {
			return nil, fmt.Errorf("params are not valid JSON")
		}
		return raw, nil
	}

	params := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		var v any
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			v = value
		}
		params[key] = v
	}
	return json.Marshal(params)
}

func runCall(args []string) int {
	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	opts := addRemoteFlags(fs)
	paramsFile := fs.String("file", "", "Read params JSON from a file ('-' for stdin)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: scenebridge call <command> [JSON | key=value ...] [--file PATH]")
		return 1
	}
	name := fs.Arg(0)

	var params json.RawMessage
	var err error
	if *paramsFile != "" {
		params, err = readParamsFile(*paramsFile)
	} else {
		params, err = parseParams(fs.Args()[1:])
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid params: %v\n", err)
		return 1
	}

	ctx, cancel := opts.context()
	defer cancel()
	resp, err := opts.client().Call(ctx, name, params)
	if err != nil {
		return reportRemoteError(err)
	}
	if err := printJSON(os.Stdout, resp); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render response: %v\n", err)
		return 1
	}
	if !resp.Success {
		return 1
	}
	return 0
}

func readParamsFile(path string) (json.RawMessage, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%s is not valid JSON", path)
	}
	return data, nil
}

type helpListing struct {
	Categories []string                       `json:"categories"`
	Commands   map[string][]map[string]string `json:"commands"`
	Total      int                            `json:"total"`
}

func runCommandList(args []string) int {
	fs := flag.NewFlagSet("command list", flag.ContinueOnError)
	opts := addRemoteFlags(fs)
	category := fs.String("category", "", "Only list one category")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	format, err := resolveFormat(opts.format, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	var params json.RawMessage
	if *category != "" {
		params, _ = json.Marshal(map[string]string{"category": *category})
	}
	ctx, cancel := opts.context()
	defer cancel()
	resp, err := opts.client().Call(ctx, "help", params)
	if err != nil {
		return reportRemoteError(err)
	}
	if !resp.Success {
		fmt.Fprintf(os.Stderr, "help failed: %s\n", resp.Error)
		return 1
	}

	var listing helpListing
	if err := json.Unmarshal(resp.Result, &listing); err != nil {
		fmt.Fprintf(os.Stderr, "Unexpected help result: %v\n", err)
		return 1
	}
	if format == "json" {
		_ = printJSON(os.Stdout, listing)
		return 0
	}

	var rows [][]string
	for _, cat := range listing.Categories {
		cmds := listing.Commands[cat]
		sort.Slice(cmds, func(i, j int) bool { return cmds[i]["name"] < cmds[j]["name"] })
		for _, c := range cmds {
			rows = append(rows, []string{cat, c["name"], c["description"]})
		}
	}
	fmt.Println(renderTable([]string{"CATEGORY", "COMMAND", "DESCRIPTION"}, rows, nil))
	fmt.Printf("%d commands\n", listing.Total)
	return 0
}

func runHistory(args []string) int {
	fs := flag.NewFlagSet("command history", flag.ContinueOnError)
	opts := addRemoteFlags(fs)
	name := fs.String("name", "", "Only show one command")
	limit := fs.Int("limit", 20, "Maximum entries")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	format, err := resolveFormat(opts.format, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	ctx, cancel := opts.context()
	defer cancel()
	entries, err := opts.client().History(ctx, *name, *limit)
	if err != nil {
		return reportRemoteError(err)
	}
	if format == "json" {
		_ = printJSON(os.Stdout, entries)
		return 0
	}
	if len(entries) == 0 {
		fmt.Println("No commands recorded.")
		return 0
	}
	fmt.Println(renderTable(
		[]string{"WHEN", "COMMAND", "STATUS", "DURATION", "GEN", "ID"},
		historyRows(entries),
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))
	return 0
}

func historyRows(entries []protocol.HistoryEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		status := e.Status
		if e.ErrorKind != "" {
			status += " (" + e.ErrorKind + ")"
		}
		id := e.CommandID
		if len(id) > 8 {
			id = id[:8]
		}
		rows = append(rows, []string{
			humanize.Time(e.CompletedAt),
			e.Name,
			status,
			fmt.Sprintf("%dms", e.DurationMs),
			fmt.Sprint(e.Generation),
			id,
		})
	}
	return rows
}

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	opts := addRemoteFlags(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	format, err := resolveFormat(opts.format, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	c := opts.client()
	ctx, cancel := opts.context()
	defer cancel()
	st, err := c.Status(ctx)
	if err != nil {
		if format == "json" {
			_ = printJSON(os.Stdout, map[string]any{"reachable": false, "addr": c.BaseURL(), "error": err.Error()})
			return 1
		}
		fmt.Println(renderStatusLine("listener", statusError, fmt.Sprintf("%s unreachable: %v", c.BaseURL(), err), isTerminal(os.Stdout)))
		return 1
	}
	if format == "json" {
		_ = printJSON(os.Stdout, st)
		return 0
	}

	color := isTerminal(os.Stdout)
	kind := statusOK
	if !st.Ready {
		kind = statusWarn
	}
	uptime := time.Duration(st.UptimeSeconds) * time.Second
	fmt.Println(renderStatusLine("listener", kind, fmt.Sprintf("%s (%s)", c.BaseURL(), st.Status), color))
	fmt.Println(renderStatusLine("service", statusInfo, fmt.Sprintf("%s %s", st.Service, st.Version), color))
	fmt.Println(renderStatusLine("generation", statusInfo, fmt.Sprint(st.Generation), color))
	fmt.Println(renderStatusLine("started", statusInfo, humanize.Time(time.Now().Add(-uptime)), color))
	fmt.Println(renderStatusLine("queue", statusInfo, humanize.Comma(int64(st.QueueDepth)), color))
	fmt.Println(renderStatusLine("commands", statusInfo, fmt.Sprintf("%d in %d categories", len(st.AvailableCommands), len(st.CommandsByCategory)), color))
	return 0
}

// runRestart asks the host to restart its listener, then waits for the new
// generation to answer.
func runRestart(args []string) int {
	fs := flag.NewFlagSet("restart", flag.ContinueOnError)
	opts := addRemoteFlags(fs)
	wait := fs.Duration("wait", 10*time.Second, "How long to wait for the new session")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	c := opts.client()
	ctx, cancel := opts.context()
	defer cancel()

	before, err := c.Health(ctx)
	if err != nil {
		return reportRemoteError(err)
	}
	resp, err := c.Call(ctx, "restart_listener", nil)
	if err != nil {
		return reportRemoteError(err)
	}
	if !resp.Success {
		fmt.Fprintf(os.Stderr, "Restart refused: %s\n", resp.Error)
		return 1
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), *wait)
	defer waitCancel()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if h, err := c.Health(waitCtx); err == nil && h.Generation > before.Generation {
			fmt.Printf("Listener restarted: generation %d -> %d\n", before.Generation, h.Generation)
			return 0
		}
		select {
		case <-waitCtx.Done():
			fmt.Fprintf(os.Stderr, "Listener did not come back within %s\n", *wait)
			return 1
		case <-ticker.C:
		}
	}
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	opts := addRemoteFlags(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if !isTerminal(os.Stdout) {
		fmt.Fprintln(os.Stderr, "watch needs an interactive terminal")
		return 1
	}

	p := tea.NewProgram(watch.New(opts.client()))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}
