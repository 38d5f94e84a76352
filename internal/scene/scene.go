package scene

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mattjoyce/scenebridge/internal/geom"
)

// RenderModes are the viewport modes SetRenderMode accepts.
var RenderModes = []string{"lit", "unlit", "wireframe", "detail_lighting", "lighting_only", "collision"}

// Scene is an in-memory Host.
type Scene struct {
	mu      sync.RWMutex
	objects map[string]*Object
	assets  map[string]Asset
	seq     map[string]int

	suspended int
	dirty     bool
	refreshes int

	camera     Camera
	renderMode string

	now func() time.Time
}

var _ Host = (*Scene)(nil)

// New creates an empty scene backed by catalog.
func New(catalog []Asset) *Scene {
	s := &Scene{
		objects:    make(map[string]*Object),
		assets:     make(map[string]Asset, len(catalog)),
		seq:        make(map[string]int),
		camera:     Camera{Location: geom.Vec3{X: -500, Z: 300}, Rotation: geom.Rotator{Pitch: 20}, FOV: 90},
		renderMode: "lit",
		now:        time.Now,
	}
	for _, a := range catalog {
		s.assets[a.Path] = a
	}
	return s
}

func (s *Scene) Find(name string) (Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[name]
	if !ok {
		return Object{}, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	return o.clone(), nil
}

func (s *Scene) Create(spec CreateSpec) (Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	asset, ok := s.assets[spec.Asset]
	if !ok {
		return Object{}, fmt.Errorf("%q: %w", spec.Asset, ErrAssetNotFound)
	}

	name := spec.Name
	if name == "" {
		name = s.nextNameLocked(asset.Path)
	} else if _, taken := s.objects[name]; taken {
		return Object{}, fmt.Errorf("%q: %w", name, ErrNameConflict)
	}

	t := spec.Transform
	if t.Scale == (geom.Vec3{}) {
		t.Scale = geom.One
	}
	o := &Object{
		Name:      name,
		Asset:     asset.Path,
		Transform: t,
		Folder:    spec.Folder,
		Tags:      append([]string(nil), spec.Tags...),
		Created:   s.now(),
	}
	s.objects[name] = o
	s.invalidateLocked()
	return o.clone(), nil
}

func (s *Scene) nextNameLocked(assetPath string) string {
	base := path.Base(assetPath)
	for {
		s.seq[base]++
		name := fmt.Sprintf("%s_%d", base, s.seq[base])
		if _, taken := s.objects[name]; !taken {
			return name
		}
	}
}

func (s *Scene) SetTransform(name string, t geom.Transform) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[name]
	if !ok {
		return fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	o.Transform = t
	s.invalidateLocked()
	return nil
}

func (s *Scene) SetFolder(name, folder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[name]
	if !ok {
		return fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	o.Folder = strings.Trim(folder, "/")
	return nil
}

func (s *Scene) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[name]; !ok {
		return fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	delete(s.objects, name)
	s.invalidateLocked()
	return nil
}

// List returns matching objects sorted by name.
func (s *Scene) List(f Filter) []Object {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Object, 0, len(s.objects))
	for _, o := range s.objects {
		if f.NameContains != "" && !strings.Contains(strings.ToLower(o.Name), strings.ToLower(f.NameContains)) {
			continue
		}
		if f.Folder != "" && o.Folder != f.Folder && !strings.HasPrefix(o.Folder, f.Folder+"/") {
			continue
		}
		if f.AssetPrefix != "" && !strings.HasPrefix(o.Asset, f.AssetPrefix) {
			continue
		}
		out = append(out, o.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func (s *Scene) Bounds(name string) (geom.BoundingVolume, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[name]
	if !ok {
		return geom.BoundingVolume{}, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	asset := s.assets[o.Asset]
	return geom.WorldBounds(o.Transform, asset.Extent), nil
}

func (s *Scene) Socket(name, socket string) (Socket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[name]
	if !ok {
		return Socket{}, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	asset := s.assets[o.Asset]
	sock, ok := asset.Socket(socket)
	if !ok {
		return Socket{}, &SocketError{Object: name, Socket: socket, Available: asset.SocketNames()}
	}
	return sock, nil
}

func (s *Scene) Asset(p string) (Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assets[p]
	if !ok {
		return Asset{}, fmt.Errorf("%q: %w", p, ErrAssetNotFound)
	}
	return a, nil
}

// Assets returns catalog entries under prefix, sorted by path.
func (s *Scene) Assets(prefix string) []Asset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Asset, 0, len(s.assets))
	for p, a := range s.assets {
		if strings.HasPrefix(p, prefix) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func (s *Scene) SuspendRefresh() func() {
	s.mu.Lock()
	s.suspended++
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.suspended--
			if s.suspended == 0 && s.dirty {
				s.dirty = false
				s.refreshes++
			}
		})
	}
}

// Refreshes counts view refreshes issued so far.
func (s *Scene) Refreshes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshes
}

func (s *Scene) invalidateLocked() {
	if s.suspended > 0 {
		s.dirty = true
		return
	}
	s.refreshes++
}

func (s *Scene) Camera() Camera {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.camera
}

func (s *Scene) SetCamera(c Camera) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.FOV <= 0 {
		c.FOV = s.camera.FOV
	}
	s.camera = c
}

func (s *Scene) RenderMode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.renderMode
}

func (s *Scene) SetRenderMode(mode string) error {
	mode = strings.ToLower(mode)
	for _, m := range RenderModes {
		if m == mode {
			s.mu.Lock()
			s.renderMode = mode
			s.mu.Unlock()
			return nil
		}
	}
	return fmt.Errorf("%q (valid: %s): %w", mode, strings.Join(RenderModes, ", "), ErrInvalidMode)
}

func (o *Object) clone() Object {
	c := *o
	c.Tags = append([]string(nil), o.Tags...)
	return c
}

// SocketError reports a missing socket together with the ones that exist.
type SocketError struct {
	Object    string
	Socket    string
	Available []string
}

func (e *SocketError) Error() string {
	avail := "none"
	if len(e.Available) > 0 {
		avail = strings.Join(e.Available, ", ")
	}
	return fmt.Sprintf("socket %q not found on %q (available: %s)", e.Socket, e.Object, avail)
}

func (e *SocketError) Unwrap() error { return ErrSocketNotFound }
