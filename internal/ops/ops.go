// Package ops holds the command handlers. Every handler runs on the host main
// context and talks to the scene only through scene.Host.
package ops

import (
	"errors"
	"log/slog"
	"time"

	"github.com/mattjoyce/scenebridge/internal/geom"
	"github.com/mattjoyce/scenebridge/internal/log"
	"github.com/mattjoyce/scenebridge/internal/registry"
	"github.com/mattjoyce/scenebridge/internal/scene"
	"github.com/mattjoyce/scenebridge/internal/session"
)

// DefaultGridUnit is the modular grid size used by placement checks when
// neither the request nor the config sets one.
const DefaultGridUnit = 300.0

// Restarter schedules a listener restart without blocking.
type Restarter interface {
	Restart() <-chan error
}

// Project describes the running host for project_info and test_connection.
type Project struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Engine  string `json:"engine"`
	Dir     string `json:"directory,omitempty"`
}

// Env carries what handlers need. Restarter falls back to the installed
// session manager when nil.
type Env struct {
	Host        scene.Host
	Registry    *registry.Registry
	Restarter   Restarter
	Project     Project
	GridUnit    float64
	SnapshotDir string
	Logger      *slog.Logger
}

type handlers struct {
	env    Env
	logger *slog.Logger
}

// Register adds every command to reg.
func Register(reg *registry.Registry, env Env) error {
	if env.Host == nil {
		return errors.New("ops: scene host is required")
	}
	if env.Registry == nil {
		env.Registry = reg
	}
	if env.GridUnit <= 0 {
		env.GridUnit = DefaultGridUnit
	}
	logger := env.Logger
	if logger == nil {
		logger = log.Get()
	}
	h := &handlers{env: env, logger: logger.With("component", "ops")}

	return errors.Join(
		h.registerSystem(reg),
		h.registerLevel(reg),
		h.registerAsset(reg),
		h.registerActor(reg),
		h.registerViewport(reg),
		h.registerBatch(reg),
	)
}

func (h *handlers) restarter() Restarter {
	if h.env.Restarter != nil {
		return h.env.Restarter
	}
	if m := session.Current(); m != nil {
		return m
	}
	return nil
}

// ObjectState is the wire view of a scene object.
type ObjectState struct {
	Name     string       `json:"name"`
	Asset    string       `json:"assetPath"`
	Location geom.Vec3    `json:"location"`
	Rotation geom.Rotator `json:"rotation"`
	Scale    geom.Vec3    `json:"scale"`
	Folder   string       `json:"folder,omitempty"`
	Tags     []string     `json:"tags,omitempty"`
}

func stateOf(o scene.Object) ObjectState {
	return ObjectState{
		Name:     o.Name,
		Asset:    o.Asset,
		Location: o.Transform.Location,
		Rotation: o.Transform.Rotation,
		Scale:    o.Transform.Scale,
		Folder:   o.Folder,
		Tags:     o.Tags,
	}
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
