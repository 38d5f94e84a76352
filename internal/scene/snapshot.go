package scene

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// Snapshot is the persisted form of a level.
type Snapshot struct {
	Version    int       `yaml:"version"`
	SavedAt    time.Time `yaml:"saved_at"`
	Camera     Camera    `yaml:"camera"`
	RenderMode string    `yaml:"render_mode"`
	Objects    []Object  `yaml:"objects"`
}

// SaveResult describes a written snapshot.
type SaveResult struct {
	Path     string `json:"path"`
	Objects  int    `json:"objects"`
	Bytes    int    `json:"bytes"`
	Checksum string `json:"checksum"`
}

// TakeSnapshot captures every object and the viewport state.
func TakeSnapshot(h Host) Snapshot {
	return Snapshot{
		Version:    1,
		SavedAt:    time.Now().UTC(),
		Camera:     h.Camera(),
		RenderMode: h.RenderMode(),
		Objects:    h.List(Filter{}),
	}
}

// SaveSnapshot writes snap to dir/name.yaml and returns the BLAKE3 checksum
// of the written bytes.
func SaveSnapshot(dir, name string, snap Snapshot) (*SaveResult, error) {
	if name == "" {
		name = "level"
	}
	if filepath.Base(name) != name {
		return nil, fmt.Errorf("invalid snapshot name %q", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	data, err := yaml.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	path := filepath.Join(dir, name+".yaml")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return nil, fmt.Errorf("failed to move snapshot into place: %w", err)
	}

	sum := blake3.Sum256(data)
	return &SaveResult{
		Path:     path,
		Objects:  len(snap.Objects),
		Bytes:    len(data),
		Checksum: hex.EncodeToString(sum[:]),
	}, nil
}

// LoadSnapshot reads a snapshot file written by SaveSnapshot.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	if snap.Version != 1 {
		return nil, fmt.Errorf("unsupported snapshot version: %d", snap.Version)
	}
	return &snap, nil
}
