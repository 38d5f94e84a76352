package config

import (
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/scenebridge/internal/auth"
)

// Config represents the complete scenebridge configuration.
type Config struct {
	Include  []string       `yaml:"include,omitempty"`
	Service  ServiceConfig  `yaml:"service"`
	Listener ListenerConfig `yaml:"listener"`
	Session  SessionConfig  `yaml:"session"`
	Journal  JournalConfig  `yaml:"journal"`
	Scene    SceneConfig    `yaml:"scene"`
	Events   EventsConfig   `yaml:"events"`

	// SourceFiles holds the parsed YAML of every file that contributed to
	// this config, keyed by absolute path.
	SourceFiles map[string]*yaml.Node `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name         string        `yaml:"name"`
	TickInterval time.Duration `yaml:"tick_interval"`
	LogLevel     string        `yaml:"log_level"`
	LogFormat    string        `yaml:"log_format"`
	LogFile      string        `yaml:"log_file,omitempty"`
	LogMaxSizeMB int           `yaml:"log_max_size_mb,omitempty"`
	LogBackups   int           `yaml:"log_max_backups,omitempty"`
	LogMaxAge    int           `yaml:"log_max_age_days,omitempty"`
	LockPath     string        `yaml:"lock_path"`
}

// ListenerConfig defines the command listener.
type ListenerConfig struct {
	Listen         string             `yaml:"listen"`
	RequestTimeout time.Duration      `yaml:"request_timeout"`
	MaxBodyBytes   int64              `yaml:"max_body_bytes"`
	ShutdownGrace  time.Duration      `yaml:"shutdown_grace"`
	Auth           ListenerAuthConfig `yaml:"auth"`
}

// ListenerAuthConfig defines bearer authentication for the listener. With
// neither field set the listener accepts anonymous requests.
type ListenerAuthConfig struct {
	APIKey string             `yaml:"api_key"`
	Tokens []auth.TokenConfig `yaml:"tokens,omitempty"`
}

// SessionConfig controls listener lifecycle.
type SessionConfig struct {
	Autostart          *bool `yaml:"autostart"`
	RestartMaxAttempts int   `yaml:"restart_max_attempts"`
}

// AutostartEnabled reports whether the listener starts with the host.
func (s SessionConfig) AutostartEnabled() bool {
	return s.Autostart == nil || *s.Autostart
}

// JournalConfig defines the SQLite command journal.
type JournalConfig struct {
	Enabled   *bool         `yaml:"enabled"`
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
	Buffer    int           `yaml:"buffer"`
}

func (j JournalConfig) IsEnabled() bool {
	return j.Enabled == nil || *j.Enabled
}

// SceneConfig defines the simulated host scene.
type SceneConfig struct {
	Assets      string  `yaml:"assets,omitempty"`
	GridUnit    float64 `yaml:"grid_unit"`
	SnapshotDir string  `yaml:"snapshot_dir"`
	Project     string  `yaml:"project"`
}

// EventsConfig sizes the event hub ring buffer.
type EventsConfig struct {
	Buffer int `yaml:"buffer"`
}

// Defaults returns a Config with the defaults applied by Load.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:         "scenebridge",
			TickInterval: 16 * time.Millisecond,
			LogLevel:     "info",
			LogFormat:    "json",
			LogMaxSizeMB: 50,
			LogBackups:   3,
			LogMaxAge:    28,
			LockPath:     "./data/scenebridge.lock",
		},
		Listener: ListenerConfig{
			Listen:         "127.0.0.1:8765",
			RequestTimeout: 30 * time.Second,
			MaxBodyBytes:   1 << 20,
			ShutdownGrace:  2 * time.Second,
		},
		Session: SessionConfig{
			RestartMaxAttempts: 10,
		},
		Journal: JournalConfig{
			Path:      "./data/journal.db",
			Retention: 7 * 24 * time.Hour,
			Buffer:    256,
		},
		Scene: SceneConfig{
			GridUnit:    300,
			SnapshotDir: "./data/snapshots",
			Project:     "SceneBridge",
		},
		Events: EventsConfig{
			Buffer: 256,
		},
	}
}
