// Package scene is the in-process stand-in for the editor's scripting API:
// a scene graph of named objects placed from an asset catalog, plus the
// viewport state the viewport commands drive.
//
// A Scene is mutated from the host main context only. It still guards its
// maps with a mutex so read-only views (status, snapshots in tests) are safe.
package scene

import (
	"errors"
	"time"

	"github.com/mattjoyce/scenebridge/internal/geom"
)

var (
	ErrNotFound       = errors.New("object not found")
	ErrNameConflict   = errors.New("object name already in use")
	ErrAssetNotFound  = errors.New("asset not found")
	ErrSocketNotFound = errors.New("socket not found")
	ErrInvalidMode    = errors.New("unknown render mode")
)

// Socket is a named attachment point on an asset, relative to its pivot.
type Socket struct {
	Name  string         `json:"name" yaml:"name"`
	Local geom.Transform `json:"transform" yaml:"transform"`
}

// Asset describes a placeable mesh. Extent is the half-size at unit scale
// around the pivot.
type Asset struct {
	Path    string    `json:"path" yaml:"path"`
	Type    string    `json:"type" yaml:"type"`
	Extent  geom.Vec3 `json:"extent" yaml:"extent"`
	Sockets []Socket  `json:"sockets,omitempty" yaml:"sockets,omitempty"`
}

// Socket looks up a socket by name.
func (a Asset) Socket(name string) (Socket, bool) {
	for _, s := range a.Sockets {
		if s.Name == name {
			return s, true
		}
	}
	return Socket{}, false
}

// SocketNames lists the asset's socket names in declaration order.
func (a Asset) SocketNames() []string {
	names := make([]string, 0, len(a.Sockets))
	for _, s := range a.Sockets {
		names = append(names, s.Name)
	}
	return names
}

// Object is a placed instance. Values returned by Host are copies.
type Object struct {
	Name      string         `json:"name" yaml:"name"`
	Asset     string         `json:"asset" yaml:"asset"`
	Transform geom.Transform `json:"transform" yaml:"transform"`
	Folder    string         `json:"folder,omitempty" yaml:"folder,omitempty"`
	Tags      []string       `json:"tags,omitempty" yaml:"tags,omitempty"`
	Created   time.Time      `json:"created" yaml:"created"`
}

// CreateSpec describes a new object. An empty Name gets a generated one
// derived from the asset.
type CreateSpec struct {
	Name      string
	Asset     string
	Transform geom.Transform
	Folder    string
	Tags      []string
}

// Camera is the editor viewport camera.
type Camera struct {
	Location geom.Vec3    `json:"location" yaml:"location"`
	Rotation geom.Rotator `json:"rotation" yaml:"rotation"`
	FOV      float64      `json:"fov" yaml:"fov"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	NameContains string
	Folder       string
	AssetPrefix  string
	Limit        int
}

// Host is the scripting surface command handlers consume.
type Host interface {
	Find(name string) (Object, error)
	Create(spec CreateSpec) (Object, error)
	SetTransform(name string, t geom.Transform) error
	SetFolder(name, folder string) error
	Delete(name string) error
	List(f Filter) []Object
	Bounds(name string) (geom.BoundingVolume, error)
	Socket(name, socket string) (Socket, error)

	Asset(path string) (Asset, error)
	Assets(prefix string) []Asset

	// SuspendRefresh defers view invalidation until the returned resume is
	// called; nested suspensions collapse into one refresh.
	SuspendRefresh() (resume func())
	Refreshes() int

	Camera() Camera
	SetCamera(c Camera)
	RenderMode() string
	SetRenderMode(mode string) error
}
