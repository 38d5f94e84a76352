// Package doctor checks a scenebridge configuration for mistakes that load
// cleanly but misbehave at runtime.
package doctor

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattjoyce/scenebridge/internal/config"
	"github.com/mattjoyce/scenebridge/internal/scene"
)

// Result holds the outcome of a check run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
	Assets   int     `json:"assets"`
}

// Issue describes a single error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor inspects a loaded config.
type Doctor struct {
	cfg *config.Config
}

func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.checkListenerExposure(r)
	d.checkTokens(r)
	d.checkTimeouts(r)
	d.checkCatalog(r)
	d.checkPaths(r)
	d.warnDeprecatedAuth(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) authEnabled() bool {
	a := d.cfg.Listener.Auth
	return a.APIKey != "" || len(a.Tokens) > 0
}

// checkListenerExposure refuses an unauthenticated listener that is reachable
// from other machines. Anything that can reach it can drive the editor.
func (d *Doctor) checkListenerExposure(r *Result) {
	host, _, err := net.SplitHostPort(d.cfg.Listener.Listen)
	if err != nil {
		d.addError(r, "listener", "listener.listen", fmt.Sprintf("invalid listen address %q: %v", d.cfg.Listener.Listen, err))
		return
	}
	if isLoopback(host) {
		return
	}
	if !d.authEnabled() {
		d.addError(r, "listener", "listener.auth",
			fmt.Sprintf("listener binds %q without authentication", d.cfg.Listener.Listen))
		return
	}
	d.addWarning(r, "listener", "listener.listen",
		fmt.Sprintf("listener binds %q; traffic is unencrypted HTTP", d.cfg.Listener.Listen))
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (d *Doctor) checkTokens(r *Result) {
	seen := make(map[string]int)
	for i, tok := range d.cfg.Listener.Auth.Tokens {
		field := fmt.Sprintf("listener.auth.tokens[%d]", i)
		if prev, dup := seen[tok.Token]; dup && tok.Token != "" {
			d.addError(r, "tokens", field+".token",
				fmt.Sprintf("token value duplicates listener.auth.tokens[%d]", prev))
		}
		seen[tok.Token] = i
		if tok.Token == d.cfg.Listener.Auth.APIKey && tok.Token != "" {
			d.addError(r, "tokens", field+".token", "token value duplicates api_key")
		}
		if len(tok.Token) < 16 {
			d.addWarning(r, "tokens", field+".token", "token is shorter than 16 characters")
		}
	}
}

func (d *Doctor) checkTimeouts(r *Result) {
	l := d.cfg.Listener
	if l.RequestTimeout > 0 && l.RequestTimeout < 4*d.cfg.Service.TickInterval {
		d.addWarning(r, "timeouts", "listener.request_timeout",
			fmt.Sprintf("request_timeout %s is under four host ticks (%s); most commands will time out",
				l.RequestTimeout, d.cfg.Service.TickInterval))
	}
	if l.ShutdownGrace > l.RequestTimeout {
		d.addWarning(r, "timeouts", "listener.shutdown_grace",
			"shutdown_grace exceeds request_timeout; in-flight requests time out before shutdown completes")
	}
	if d.cfg.Journal.IsEnabled() && d.cfg.Journal.Retention == 0 {
		d.addWarning(r, "journal", "journal.retention", "retention is 0; the journal is never pruned")
	}
}

// checkCatalog loads the configured asset catalog the way the host will.
func (d *Doctor) checkCatalog(r *Result) {
	if d.cfg.Scene.Assets == "" {
		r.Assets = len(scene.DefaultCatalog())
		return
	}
	assets, err := scene.LoadCatalog(d.cfg.Scene.Assets)
	if err != nil {
		d.addError(r, "scene", "scene.assets", err.Error())
		return
	}
	r.Assets = len(assets)
	if len(assets) == 0 {
		d.addWarning(r, "scene", "scene.assets", "asset catalog is empty; actor_spawn will reject every asset")
	}
}

// checkPaths warns about directories that will be created on first use.
func (d *Doctor) checkPaths(r *Result) {
	if dir := d.cfg.Scene.SnapshotDir; dir != "" {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			d.addWarning(r, "paths", "scene.snapshot_dir",
				fmt.Sprintf("snapshot directory %s does not exist; level_save will create it", dir))
		}
	}
	if d.cfg.Journal.IsEnabled() {
		if dir := filepath.Dir(d.cfg.Journal.Path); dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				d.addWarning(r, "paths", "journal.path",
					fmt.Sprintf("journal directory %s does not exist; it will be created at start", dir))
			}
		}
	}
}

func (d *Doctor) warnDeprecatedAuth(r *Result) {
	a := d.cfg.Listener.Auth
	if a.APIKey != "" && len(a.Tokens) > 0 {
		d.addWarning(r, "deprecated", "listener.auth",
			"both api_key and tokens configured; prefer tokens array only")
	}
	if a.APIKey != "" && len(a.Tokens) == 0 {
		d.addWarning(r, "deprecated", "listener.auth.api_key",
			"api_key grants full access; migrate to tokens array with scopes")
	}
}

// FormatHuman returns a human-readable report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	switch {
	case r.Valid && len(r.Warnings) == 0:
		fmt.Fprintf(&b, "Configuration valid (%d assets).\n", r.Assets)
		return b.String()
	case r.Valid:
		fmt.Fprintf(&b, "Configuration valid (%d assets, %d warning(s))\n", r.Assets, len(r.Warnings))
	default:
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		writeIssue(&b, "ERROR", e)
	}
	for _, w := range r.Warnings {
		writeIssue(&b, "WARN ", w)
	}
	return b.String()
}

func writeIssue(b *strings.Builder, level string, i Issue) {
	if i.Field != "" {
		fmt.Fprintf(b, "  %s [%s] %s: %s\n", level, i.Category, i.Field, i.Message)
		return
	}
	fmt.Fprintf(b, "  %s [%s] %s\n", level, i.Category, i.Message)
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
