package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/mattjoyce/scenebridge/internal/auth"
)

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

var validScopes = map[string]bool{
	auth.ScopeAll:        true,
	auth.ScopeCommandsRW: true,
	auth.ScopeCommandsRO: true,
	auth.ScopeEventsRO:   true,
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	if cfg.Service.TickInterval <= 0 {
		return fmt.Errorf("service.tick_interval must be positive")
	}
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	switch strings.ToLower(cfg.Service.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if _, _, err := net.SplitHostPort(cfg.Listener.Listen); err != nil {
		return fmt.Errorf("listener.listen: %w", err)
	}
	if cfg.Listener.RequestTimeout <= 0 {
		return fmt.Errorf("listener.request_timeout must be positive")
	}
	if cfg.Listener.MaxBodyBytes <= 0 {
		return fmt.Errorf("listener.max_body_bytes must be positive")
	}
	if err := validateAuth(cfg.Listener.Auth); err != nil {
		return err
	}

	if cfg.Session.RestartMaxAttempts <= 0 {
		return fmt.Errorf("session.restart_max_attempts must be positive")
	}

	if cfg.Journal.IsEnabled() && cfg.Journal.Path == "" {
		return fmt.Errorf("journal.path is required when the journal is enabled")
	}
	if cfg.Journal.Retention < 0 {
		return fmt.Errorf("journal.retention must not be negative")
	}

	if cfg.Scene.GridUnit <= 0 {
		return fmt.Errorf("scene.grid_unit must be positive")
	}
	if cfg.Events.Buffer <= 0 {
		return fmt.Errorf("events.buffer must be positive")
	}
	return nil
}

func validateAuth(a ListenerAuthConfig) error {
	if name, ok := unresolvedVar(a.APIKey); ok {
		return fmt.Errorf("listener.auth.api_key: environment variable ${%s} is not set", name)
	}
	for i, tok := range a.Tokens {
		if tok.Token == "" {
			return fmt.Errorf("listener.auth.tokens[%d].token is required", i)
		}
		if name, ok := unresolvedVar(tok.Token); ok {
			return fmt.Errorf("listener.auth.tokens[%d].token: environment variable ${%s} is not set", i, name)
		}
		if len(tok.Scopes) == 0 {
			return fmt.Errorf("listener.auth.tokens[%d].scopes must be non-empty", i)
		}
		for _, s := range tok.Scopes {
			if !validScopes[s] {
				return fmt.Errorf("listener.auth.tokens[%d]: unknown scope %q", i, s)
			}
		}
	}
	return nil
}

func unresolvedVar(s string) (string, bool) {
	m := envVarPattern.FindStringSubmatch(s)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}
