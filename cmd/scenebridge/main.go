package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// envToken is read by every command that talks to a running listener.
const envToken = "SCENEBRIDGE_TOKEN"

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	// --- NOUNS ---
	case "system":
		return runSystemNoun(args)
	case "config":
		return runConfigNoun(args)
	case "command":
		return runCommandNoun(args)

	// --- ROOT ALIASES ---
	case "start":
		return runStart(args)
	case "call":
		return runCall(args)
	case "watch":
		return runWatch(args)
	case "doctor":
		return runConfigCheck(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: scenebridge version [--json]")
		return 1
	}

	info := currentVersionInfo()
	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("scenebridge %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if commit != "" {
		info.Commit = shortenCommit(commit)
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if normalized, ok := normalizeBuildTimeUTC(built); ok {
		info.BuildTime = normalized
	}
	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}
	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`scenebridge - command bridge between automation clients and a 3D editor host

Usage:
  scenebridge <noun> <action> [flags]

Core Resources (Nouns):
  system    Host lifecycle and listener sessions
  config    Configuration and integrity
  command   Registered commands and their history

System Commands:
  system start      Run the host and its command listener in the foreground
  system status     Show listener status of a running host
  system restart    Restart the listener of a running host
  system watch      Live terminal view of commands and sessions

Config Commands:
  config check      Validate syntax, policy, and integrity
  config lock       Authorize current state (update integrity hashes)
  config show       Print the resolved configuration

Command Commands:
  command list      List commands registered on a running host
  command call      Send one command and print its response
  command history   Show recently completed commands

Shortcuts:
  start, call, watch, doctor (config check), version

Use 'scenebridge <noun> help' for resource-specific flags.
`)
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			printSystemStartHelp()
			return 0
		}
		return runStart(actionArgs)
	case "status":
		return runStatus(actionArgs)
	case "restart":
		return runRestart(actionArgs)
	case "watch":
		if hasHelpFlag(actionArgs) {
			printSystemWatchHelp()
			return 0
		}
		return runWatch(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "check":
		return runConfigCheck(actionArgs)
	case "lock":
		return runConfigLock(actionArgs)
	case "show":
		return runConfigShow(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runCommandNoun(args []string) int {
	if len(args) < 1 {
		printCommandNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printCommandNounHelp(os.Stdout)
		return 0
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "list":
		return runCommandList(actionArgs)
	case "call":
		return runCall(actionArgs)
	case "history":
		return runHistory(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command action: %s\n", action)
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: scenebridge system <action>")
	fmt.Fprintln(w, "Actions: start, status, restart, watch")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: scenebridge config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, lock, show")
}

func printCommandNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: scenebridge command <action> [flags]")
	fmt.Fprintln(w, "Actions: list, call, history")
}

func printSystemStartHelp() {
	fmt.Println("Usage: scenebridge system start [--config PATH]")
	fmt.Println("Run the simulated editor host in the foreground. The command listener")
	fmt.Println("starts with the host unless session.autostart is false.")
}

func printSystemWatchHelp() {
	fmt.Println("Usage: scenebridge system watch [--addr HOST:PORT] [--token TOKEN]")
	fmt.Println()
	fmt.Println("Live view of listener sessions, per-command counters and the event stream.")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C        Quit")
	fmt.Println("  up/down, k/j     Select command")
}
