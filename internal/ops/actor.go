package ops

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mattjoyce/scenebridge/internal/geom"
	"github.com/mattjoyce/scenebridge/internal/registry"
	"github.com/mattjoyce/scenebridge/internal/scene"
)

type actorSpawnParams struct {
	AssetPath string       `json:"assetPath" cmd:"required"`
	Location  geom.Vec3    `json:"location"`
	Rotation  geom.Rotator `json:"rotation" desc:"[roll, pitch, yaw] in degrees"`
	Scale     *geom.Vec3   `json:"scale"`
	Name      string       `json:"name"`
	Folder    string       `json:"folder"`
	Validate  bool         `json:"validate"`
}

type actorNameParams struct {
	ActorName string `json:"actorName" cmd:"required"`
	Validate  bool   `json:"validate"`
}

type actorModifyParams struct {
	ActorName string        `json:"actorName" cmd:"required"`
	Location  *geom.Vec3    `json:"location"`
	Rotation  *geom.Rotator `json:"rotation"`
	Scale     *geom.Vec3    `json:"scale"`
	Folder    *string       `json:"folder"`
	Validate  bool          `json:"validate"`
}

type actorDuplicateParams struct {
	SourceName string    `json:"sourceName" cmd:"required"`
	Name       string    `json:"name"`
	Offset     geom.Vec3 `json:"offset"`
	Validate   bool      `json:"validate"`
}

type actorOrganizeParams struct {
	Actors  []string `json:"actors"`
	Pattern string   `json:"pattern"`
	Folder  string   `json:"folder" cmd:"required"`
}

type actorStateParams struct {
	ActorName string `json:"actorName" cmd:"required"`
}

func (h *handlers) registerActor(reg *registry.Registry) error {
	return errors.Join(
		registry.Register(reg, registry.Spec{
			Name: "actor_spawn", Category: "actor", Aliases: []string{"actor.spawn"},
			Description: "Place one object from the asset catalog",
		}, h.actorSpawn),
		registry.Register(reg, registry.Spec{
			Name: "actor_delete", Category: "actor", Aliases: []string{"actor.delete"},
			Description: "Remove an object",
		}, h.actorDelete),
		registry.Register(reg, registry.Spec{
			Name: "actor_modify", Category: "actor", Aliases: []string{"actor.modify"},
			Description: "Change an object's transform or folder",
		}, h.actorModify),
		registry.Register(reg, registry.Spec{
			Name: "actor_duplicate", Category: "actor", Aliases: []string{"actor.duplicate"},
			Description: "Copy an object with an offset",
		}, h.actorDuplicate),
		registry.Register(reg, registry.Spec{
			Name: "actor_organize", Category: "actor", Aliases: []string{"actor.organize"},
			Description: "Move objects into an outliner folder",
		}, h.actorOrganize),
		registry.Register(reg, registry.Spec{
			Name: "actor_get_state", Category: "actor", Aliases: []string{"actor.get_state"},
			Description: "Read an object's transform, asset and folder",
		}, h.actorGetState),
		registry.Register(reg, registry.Spec{
			Name: "actor_batch_spawn", Category: "actor", Aliases: []string{"actor.batch_spawn"},
			Description: "Place many objects in one pass with a single view refresh",
		}, h.batchSpawn),
		registry.Register(reg, registry.Spec{
			Name: "placement_validate", Category: "actor", Aliases: []string{"placement.validate"},
			Description: "Report gaps, overlaps and grid misalignment between objects",
		}, h.placementValidate),
		registry.Register(reg, registry.Spec{
			Name: "actor_snap_to_socket", Category: "actor", Aliases: []string{"actor.snap_to_socket"},
			Description: "Move an object onto another object's socket",
		}, h.snapToSocket),
	)
}

// verify re-reads name and compares its transform with want.
func (h *handlers) verify(name string, want geom.Transform) map[string]any {
	o, err := h.env.Host.Find(name)
	if err != nil {
		return map[string]any{"validated": false, "validationErrors": []string{err.Error()}}
	}
	var problems []string
	if !o.Transform.Location.ApproxEqual(want.Location, 0.01) {
		problems = append(problems, fmt.Sprintf("location is %v, expected %v", o.Transform.Location, want.Location))
	}
	if !o.Transform.Rotation.ApproxEqual(want.Rotation, 0.01) {
		problems = append(problems, fmt.Sprintf("rotation is %v, expected %v", o.Transform.Rotation, want.Rotation))
	}
	if !o.Transform.Scale.ApproxEqual(want.Scale, 0.001) {
		problems = append(problems, fmt.Sprintf("scale is %v, expected %v", o.Transform.Scale, want.Scale))
	}
	out := map[string]any{"validated": len(problems) == 0}
	if len(problems) > 0 {
		out["validationErrors"] = problems
	}
	return out
}

func withValidation(result map[string]any, validation map[string]any) map[string]any {
	for k, v := range validation {
		result[k] = v
	}
	return result
}

func (h *handlers) actorSpawn(_ context.Context, p actorSpawnParams) (any, error) {
	t := geom.Transform{Location: p.Location, Rotation: p.Rotation, Scale: geom.One}
	if p.Scale != nil {
		t.Scale = *p.Scale
	}
	o, err := h.env.Host.Create(scene.CreateSpec{Name: p.Name, Asset: p.AssetPath, Transform: t, Folder: p.Folder})
	if err != nil {
		return nil, fmt.Errorf("failed to spawn %s: %w", p.AssetPath, err)
	}
	result := map[string]any{
		"actorName": o.Name,
		"actor":     stateOf(o),
		"message":   fmt.Sprintf("Spawned %s", o.Name),
	}
	if p.Validate {
		result = withValidation(result, h.verify(o.Name, o.Transform))
	}
	return result, nil
}

func (h *handlers) actorDelete(_ context.Context, p actorNameParams) (any, error) {
	if err := h.env.Host.Delete(p.ActorName); err != nil {
		return nil, fmt.Errorf("failed to delete: %w", err)
	}
	result := map[string]any{"deleted": p.ActorName, "message": fmt.Sprintf("Deleted %s", p.ActorName)}
	if p.Validate {
		_, err := h.env.Host.Find(p.ActorName)
		result["validated"] = errors.Is(err, scene.ErrNotFound)
	}
	return result, nil
}

func (h *handlers) actorModify(_ context.Context, p actorModifyParams) (any, error) {
	if p.Location == nil && p.Rotation == nil && p.Scale == nil && p.Folder == nil {
		return nil, fmt.Errorf("nothing to modify: set location, rotation, scale or folder")
	}
	o, err := h.env.Host.Find(p.ActorName)
	if err != nil {
		return nil, fmt.Errorf("failed to modify: %w", err)
	}

	t := o.Transform
	if p.Location != nil {
		t.Location = *p.Location
	}
	if p.Rotation != nil {
		t.Rotation = *p.Rotation
	}
	if p.Scale != nil {
		t.Scale = *p.Scale
	}
	if t != o.Transform {
		if err := h.env.Host.SetTransform(o.Name, t); err != nil {
			return nil, fmt.Errorf("failed to modify: %w", err)
		}
	}
	if p.Folder != nil {
		if err := h.env.Host.SetFolder(o.Name, *p.Folder); err != nil {
			return nil, fmt.Errorf("failed to modify: %w", err)
		}
	}

	o, err = h.env.Host.Find(o.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to modify: %w", err)
	}
	result := map[string]any{"actorName": o.Name, "actor": stateOf(o)}
	if p.Validate {
		result = withValidation(result, h.verify(o.Name, t))
	}
	return result, nil
}

func (h *handlers) actorDuplicate(_ context.Context, p actorDuplicateParams) (any, error) {
	src, err := h.env.Host.Find(p.SourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to duplicate: %w", err)
	}
	name := p.Name
	if name == "" {
		name = src.Name + "_Copy"
	}
	t := src.Transform
	t.Location = t.Location.Add(p.Offset)

	o, err := h.env.Host.Create(scene.CreateSpec{Name: name, Asset: src.Asset, Transform: t, Folder: src.Folder, Tags: src.Tags})
	if err != nil {
		return nil, fmt.Errorf("failed to duplicate: %w", err)
	}
	result := map[string]any{"actorName": o.Name, "source": src.Name, "actor": stateOf(o)}
	if p.Validate {
		result = withValidation(result, h.verify(o.Name, t))
	}
	return result, nil
}

func (h *handlers) actorOrganize(_ context.Context, p actorOrganizeParams) (any, error) {
	if len(p.Actors) == 0 && p.Pattern == "" {
		return nil, fmt.Errorf("provide actors or pattern")
	}
	wanted := make(map[string]bool, len(p.Actors))
	for _, n := range p.Actors {
		wanted[n] = true
	}

	organized := []string{}
	for _, o := range h.env.Host.List(scene.Filter{}) {
		match := wanted[o.Name]
		if len(p.Actors) == 0 {
			match = strings.Contains(o.Name, p.Pattern)
		}
		if !match {
			continue
		}
		if err := h.env.Host.SetFolder(o.Name, p.Folder); err != nil {
			return nil, fmt.Errorf("failed to organize %s: %w", o.Name, err)
		}
		organized = append(organized, o.Name)
	}
	sort.Strings(organized)
	return map[string]any{
		"count":           len(organized),
		"organizedActors": organized,
		"folder":          p.Folder,
		"message":         fmt.Sprintf("Organized %d actors into %s", len(organized), p.Folder),
	}, nil
}

func (h *handlers) actorGetState(_ context.Context, p actorStateParams) (any, error) {
	o, err := h.env.Host.Find(p.ActorName)
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}
	b, err := h.env.Host.Bounds(o.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}
	return map[string]any{
		"actor":  stateOf(o),
		"bounds": b,
	}, nil
}
