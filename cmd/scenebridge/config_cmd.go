package main

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/scenebridge/internal/auth"
	"github.com/mattjoyce/scenebridge/internal/config"
	"github.com/mattjoyce/scenebridge/internal/doctor"
)

const redacted = "<redacted>"

// resolveConfigPath returns path, or the discovered config when empty.
func resolveConfigPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	discovered, err := config.DiscoverConfigPath()
	if err != nil {
		return "", fmt.Errorf("failed to discover config: %w", err)
	}
	return discovered, nil
}

func runConfigCheck(args []string) int {
	var configPath, format string
	var strict, jsonOut bool

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&strict, "strict", false, "Treat warnings as errors")
	fs.StringVar(&format, "format", "human", "Output format (human, json)")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if jsonOut {
		format = "json"
	}

	path, err := resolveConfigPath(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	result := doctor.New(cfg).Validate()

	// Load already refuses tampered credentials; this reports unlocked files.
	integrity, err := config.VerifyIntegrity(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Integrity check error: %v\n", err)
		return 1
	}
	for _, msg := range integrity.Errors {
		result.Errors = append(result.Errors, doctor.Issue{Category: "integrity", Message: msg})
	}
	for _, msg := range integrity.Warnings {
		result.Warnings = append(result.Warnings, doctor.Issue{Category: "integrity", Message: msg})
	}
	result.Valid = len(result.Errors) == 0

	switch format {
	case "json":
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	default:
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	if strict && len(result.Warnings) > 0 {
		return 2
	}
	return 0
}

func runConfigLock(args []string) int {
	var configPath string
	var verbose, verboseShort, dryRun bool

	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&verboseShort, "v", false, "Verbose output")
	fs.BoolVar(&dryRun, "dry-run", false, "Dry run")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	isVerbose := verbose || verboseShort

	path, err := resolveConfigPath(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	reports, err := config.LockConfig(path, dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config: %v\n", err)
		return 1
	}

	for _, report := range reports {
		if !isVerbose {
			continue
		}
		fmt.Printf("Processing directory: %s\n", report.ConfigDir)
		for _, file := range report.Files {
			if file.Exists {
				fmt.Printf("  HASH %s: %s\n", file.Filename, file.Hash)
				continue
			}
			fmt.Printf("  SKIP %s: not found\n", file.Filename)
		}
		if dryRun {
			fmt.Printf("  DRY-RUN %s: %s (not written)\n", config.ChecksumFile, report.ChecksumPath)
		} else {
			fmt.Printf("  WROTE %s: %s\n", config.ChecksumFile, report.ChecksumPath)
		}
	}

	if dryRun {
		fmt.Printf("Dry run completed for %d directory/ies (no files written):\n", len(reports))
	} else {
		fmt.Printf("Successfully locked configuration in %d directory/ies:\n", len(reports))
	}
	for _, report := range reports {
		fmt.Printf("  - %s\n", report.ConfigDir)
	}
	return 0
}

func runConfigShow(args []string) int {
	var configPath string
	var reveal bool

	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&reveal, "reveal", false, "Print credentials instead of redacting them")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}
	if !reveal {
		cfg = redactCredentials(cfg)
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render config: %v\n", err)
		return 1
	}
	fmt.Print(string(out))
	return 0
}

// redactCredentials returns a copy of cfg with token values masked.
func redactCredentials(cfg *config.Config) *config.Config {
	out := *cfg
	if out.Listener.Auth.APIKey != "" {
		out.Listener.Auth.APIKey = redacted
	}
	tokens := make([]auth.TokenConfig, len(cfg.Listener.Auth.Tokens))
	for i, t := range cfg.Listener.Auth.Tokens {
		tokens[i] = auth.TokenConfig{Token: redacted, Scopes: t.Scopes}
	}
	out.Listener.Auth.Tokens = tokens
	return &out
}
