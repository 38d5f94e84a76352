package scene

import (
	"fmt"
	"os"

	"github.com/mattjoyce/scenebridge/internal/geom"
	"gopkg.in/yaml.v3"
)

type catalogFile struct {
	Assets []Asset `yaml:"assets"`
}

// LoadCatalog reads an asset catalog YAML file:
//
//	assets:
//	  - path: /Game/Walls/SM_Wall_3m
//	    type: StaticMesh
//	    extent: [150, 10, 150]
//	    sockets:
//	      - name: right
//	        transform: {location: [150, 0, 0], rotation: [0, 0, 0], scale: [1, 1, 1]}
func LoadCatalog(path string) ([]Asset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read asset catalog: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse asset catalog %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(f.Assets))
	for i := range f.Assets {
		a := &f.Assets[i]
		if a.Path == "" {
			return nil, fmt.Errorf("asset catalog %s: entry %d has no path", path, i)
		}
		if _, dup := seen[a.Path]; dup {
			return nil, fmt.Errorf("asset catalog %s: duplicate asset %q", path, a.Path)
		}
		seen[a.Path] = struct{}{}
		if a.Type == "" {
			a.Type = "StaticMesh"
		}
		for j := range a.Sockets {
			if a.Sockets[j].Local.Scale == (geom.Vec3{}) {
				a.Sockets[j].Local.Scale = geom.One
			}
		}
	}
	return f.Assets, nil
}

// DefaultCatalog is the built-in set of engine shapes and modular pieces used
// when no catalog file is configured.
func DefaultCatalog() []Asset {
	socket := func(name string, loc geom.Vec3, yaw float64) Socket {
		return Socket{Name: name, Local: geom.Transform{Location: loc, Rotation: geom.Rotator{Yaw: yaw}, Scale: geom.One}}
	}
	return []Asset{
		{Path: "/Engine/BasicShapes/Cube", Type: "StaticMesh", Extent: geom.Vec3{X: 50, Y: 50, Z: 50},
			Sockets: []Socket{socket("top", geom.Vec3{Z: 50}, 0)}},
		{Path: "/Engine/BasicShapes/Sphere", Type: "StaticMesh", Extent: geom.Vec3{X: 50, Y: 50, Z: 50}},
		{Path: "/Engine/BasicShapes/Cylinder", Type: "StaticMesh", Extent: geom.Vec3{X: 50, Y: 50, Z: 50}},
		{Path: "/Engine/BasicShapes/Cone", Type: "StaticMesh", Extent: geom.Vec3{X: 50, Y: 50, Z: 50}},
		{Path: "/Engine/BasicShapes/Plane", Type: "StaticMesh", Extent: geom.Vec3{X: 50, Y: 50, Z: 0}},
		{Path: "/Game/ModularOldTown/Meshes/Walls/SM_FlatWall_3m", Type: "StaticMesh", Extent: geom.Vec3{X: 150, Y: 10, Z: 150},
			Sockets: []Socket{
				socket("left", geom.Vec3{X: -150}, 0),
				socket("right", geom.Vec3{X: 150}, 0),
				socket("top", geom.Vec3{Z: 150}, 0),
			}},
		{Path: "/Game/ModularOldTown/Meshes/Walls/SM_Corner_Wall", Type: "StaticMesh", Extent: geom.Vec3{X: 10, Y: 10, Z: 150},
			Sockets: []Socket{
				socket("wall_x", geom.Vec3{X: 10}, 0),
				socket("wall_y", geom.Vec3{Y: 10}, 90),
			}},
		{Path: "/Game/ModularOldTown/Meshes/Floors/SM_Floor_3m", Type: "StaticMesh", Extent: geom.Vec3{X: 150, Y: 150, Z: 5}},
		{Path: "/Game/ModularOldTown/Meshes/Doors/SM_Door_Frame", Type: "StaticMesh", Extent: geom.Vec3{X: 75, Y: 10, Z: 110}},
	}
}
