package config

import (
	"fmt"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// IntegrityResult collects the findings of VerifyIntegrity.
type IntegrityResult struct {
	Passed   bool
	Warnings []string
	Errors   []string
}

// VerifyIntegrity checks every file of the config's include tree against the
// manifests. Files that carry listener credentials are high security: any
// problem with them is an error. Problems with other files are warnings.
func VerifyIntegrity(configPath string) (*IntegrityResult, error) {
	paths, err := DiscoverAllConfigFiles(configPath)
	if err != nil {
		return nil, err
	}
	result := &IntegrityResult{Passed: true}
	report := func(path, msg string) {
		if holdsCredentials(path) {
			result.Passed = false
			result.Errors = append(result.Errors, msg)
			return
		}
		result.Warnings = append(result.Warnings, msg)
	}

	manifests := make(map[string]*ChecksumManifest)
	for _, path := range paths {
		dir := filepath.Dir(path)
		manifest, seen := manifests[dir]
		if !seen {
			manifest, _ = LoadChecksums(dir)
			manifests[dir] = manifest
		}
		if manifest == nil {
			report(path, fmt.Sprintf("no %s manifest in %s for %s; run 'scenebridge config lock'", ChecksumFile, dir, path))
			continue
		}

		expected, ok := manifest.Hashes[filepath.Base(path)]
		if !ok {
			report(path, fmt.Sprintf("file %s not in %s manifest", path, ChecksumFile))
			continue
		}
		if err := VerifyFileHash(path, expected); err != nil {
			report(path, err.Error())
		}
	}
	return result, nil
}

// holdsCredentials reports whether the file sets listener.auth.
func holdsCredentials(path string) bool {
	node, err := parseNode(path)
	if err != nil || len(node.Content) == 0 {
		return false
	}
	listener := mappingValue(node.Content[0], "listener")
	if listener == nil {
		return false
	}
	return mappingValue(listener, "auth") != nil
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}
