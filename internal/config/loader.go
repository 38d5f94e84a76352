package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// EnvConfigPath names the variable DiscoverConfigPath checks first.
const EnvConfigPath = "SCENEBRIDGE_CONFIG"

// Load reads configuration from a file or a directory holding config.yaml.
// Files named in include are merged in order, later files overriding
// earlier ones.
func Load(configPath string) (*Config, error) {
	absPath, err := resolveRoot(configPath)
	if err != nil {
		return nil, err
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	cfg.SourceFiles = make(map[string]*yaml.Node)
	if node, err := parseNode(absPath); err == nil {
		cfg.SourceFiles[absPath] = node
	}

	visited := map[string]bool{absPath: true}
	if len(cfg.Include) > 0 {
		if err := loadIncludes(cfg, cfg.Include, filepath.Dir(absPath), visited); err != nil {
			return nil, err
		}
	}

	cfg = applyConfigDefaults(cfg)

	paths := make([]string, 0, len(visited))
	for p := range visited {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	if err := verifyAllConfigHashes(paths); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DiscoverConfigPath finds the config by checking, in order:
// $SCENEBRIDGE_CONFIG, ~/.config/scenebridge, /etc/scenebridge, ./config.yaml.
func DiscoverConfigPath() (string, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		dir := filepath.Join(home, ".config", "scenebridge")
		if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err == nil {
			return dir, nil
		}
	}
	if _, err := os.Stat("/etc/scenebridge/config.yaml"); err == nil {
		return "/etc/scenebridge", nil
	}
	if _, err := os.Stat("./config.yaml"); err == nil {
		return "./config.yaml", nil
	}
	return "", fmt.Errorf("no config found (checked: $%s, ~/.config/scenebridge, /etc/scenebridge, ./config.yaml)", EnvConfigPath)
}

// DiscoverAllConfigFiles returns absolute paths of the root config and every
// file reachable through include, sorted.
func DiscoverAllConfigFiles(configPath string) ([]string, error) {
	absPath, err := resolveRoot(configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}

	visited := map[string]bool{absPath: true}
	if err := collectIncludes(cfg.Include, filepath.Dir(absPath), visited); err != nil {
		return nil, err
	}
	files := make([]string, 0, len(visited))
	for f := range visited {
		files = append(files, f)
	}
	sort.Strings(files)
	return files, nil
}

func resolveRoot(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}
	return absPath, nil
}

func resolveInclude(i int, includePath, baseDir string) (string, error) {
	includePath = interpolateEnv(includePath)
	if !filepath.IsAbs(includePath) {
		includePath = filepath.Join(baseDir, includePath)
	}
	absPath, err := filepath.Abs(includePath)
	if err != nil {
		return "", fmt.Errorf("include[%d]: failed to resolve path %q: %w", i, includePath, err)
	}
	if _, err := os.Stat(absPath); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("include[%d]: file not found: %s\n"+
				"Referenced from: %s\n"+
				"Hint: Check the path is correct and the file exists", i, absPath, baseDir)
		}
		return "", fmt.Errorf("include[%d]: failed to access file %s: %w", i, absPath, err)
	}
	return absPath, nil
}

func collectIncludes(includes []string, baseDir string, visited map[string]bool) error {
	for i, includePath := range includes {
		absPath, err := resolveInclude(i, includePath, baseDir)
		if err != nil {
			return err
		}
		if visited[absPath] {
			continue
		}
		visited[absPath] = true

		cfg, err := loadConfigFile(absPath)
		if err != nil {
			return fmt.Errorf("include[%d] (%s): %w", i, includePath, err)
		}
		if err := collectIncludes(cfg.Include, filepath.Dir(absPath), visited); err != nil {
			return err
		}
	}
	return nil
}

// loadIncludes loads and merges included files depth first. A file seen
// twice is a cycle.
func loadIncludes(cfg *Config, includes []string, baseDir string, visited map[string]bool) error {
	for i, includePath := range includes {
		absPath, err := resolveInclude(i, includePath, baseDir)
		if err != nil {
			return err
		}
		if visited[absPath] {
			return fmt.Errorf("include[%d]: circular dependency detected: %s", i, absPath)
		}
		visited[absPath] = true

		if node, err := parseNode(absPath); err == nil {
			cfg.SourceFiles[absPath] = node
		}
		included, err := loadConfigFile(absPath)
		if err != nil {
			return fmt.Errorf("include[%d] (%s): %w", i, includePath, err)
		}
		deepMergeConfig(cfg, included)

		if len(included.Include) > 0 {
			if err := loadIncludes(cfg, included.Include, filepath.Dir(absPath), visited); err != nil {
				return err
			}
		}
	}
	return nil
}

func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &cfg, nil
}

func parseNode(path string) (*yaml.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// deepMergeConfig merges src into dst; non-zero src values win.
func deepMergeConfig(dst, src *Config) {
	s, d := src.Service, &dst.Service
	if s.Name != "" {
		d.Name = s.Name
	}
	if s.TickInterval != 0 {
		d.TickInterval = s.TickInterval
	}
	if s.LogLevel != "" {
		d.LogLevel = s.LogLevel
	}
	if s.LogFormat != "" {
		d.LogFormat = s.LogFormat
	}
	if s.LogFile != "" {
		d.LogFile = s.LogFile
	}
	if s.LogMaxSizeMB != 0 {
		d.LogMaxSizeMB = s.LogMaxSizeMB
	}
	if s.LogBackups != 0 {
		d.LogBackups = s.LogBackups
	}
	if s.LogMaxAge != 0 {
		d.LogMaxAge = s.LogMaxAge
	}
	if s.LockPath != "" {
		d.LockPath = s.LockPath
	}

	l, dl := src.Listener, &dst.Listener
	if l.Listen != "" {
		dl.Listen = l.Listen
	}
	if l.RequestTimeout != 0 {
		dl.RequestTimeout = l.RequestTimeout
	}
	if l.MaxBodyBytes != 0 {
		dl.MaxBodyBytes = l.MaxBodyBytes
	}
	if l.ShutdownGrace != 0 {
		dl.ShutdownGrace = l.ShutdownGrace
	}
	if l.Auth.APIKey != "" {
		dl.Auth.APIKey = l.Auth.APIKey
	}
	// Tokens are additive across files.
	dl.Auth.Tokens = append(dl.Auth.Tokens, l.Auth.Tokens...)

	if src.Session.Autostart != nil {
		dst.Session.Autostart = src.Session.Autostart
	}
	if src.Session.RestartMaxAttempts != 0 {
		dst.Session.RestartMaxAttempts = src.Session.RestartMaxAttempts
	}

	j, dj := src.Journal, &dst.Journal
	if j.Enabled != nil {
		dj.Enabled = j.Enabled
	}
	if j.Path != "" {
		dj.Path = j.Path
	}
	if j.Retention != 0 {
		dj.Retention = j.Retention
	}
	if j.Buffer != 0 {
		dj.Buffer = j.Buffer
	}

	sc, ds := src.Scene, &dst.Scene
	if sc.Assets != "" {
		ds.Assets = sc.Assets
	}
	if sc.GridUnit != 0 {
		ds.GridUnit = sc.GridUnit
	}
	if sc.SnapshotDir != "" {
		ds.SnapshotDir = sc.SnapshotDir
	}
	if sc.Project != "" {
		ds.Project = sc.Project
	}

	if src.Events.Buffer != 0 {
		dst.Events.Buffer = src.Events.Buffer
	}
}

func verifyAllConfigHashes(paths []string) error {
	dirToFiles := make(map[string][]string)
	for _, path := range paths {
		dir := filepath.Dir(path)
		dirToFiles[dir] = append(dirToFiles[dir], path)
	}

	for dir, files := range dirToFiles {
		checksums, err := LoadChecksums(dir)
		if err != nil {
			// No manifest in this directory: nothing to verify.
			continue
		}
		for _, path := range files {
			basename := filepath.Base(path)
			expected, ok := checksums.Hashes[basename]
			if !ok {
				return fmt.Errorf("config file %s has no hash in checksums at %s\n"+
					"Run: scenebridge config lock --config %s", basename, dir, dir)
			}
			if err := VerifyFileHash(path, expected); err != nil {
				return fmt.Errorf("config verification failed for %s: %w\n"+
					"If you edited this file intentionally, run: scenebridge config lock --config %s", path, err, dir)
			}
		}
	}
	return nil
}

// applyConfigDefaults fills zero values from Defaults.
func applyConfigDefaults(cfg *Config) *Config {
	base := Defaults()
	deepMergeConfig(base, cfg)
	base.Include = cfg.Include
	base.SourceFiles = cfg.SourceFiles
	return base
}

// interpolateEnv replaces ${VAR} with environment variable values. Undefined
// variables are left in place so validation can name them.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return match
	})
}
