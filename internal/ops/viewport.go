package ops

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/mattjoyce/scenebridge/internal/geom"
	"github.com/mattjoyce/scenebridge/internal/registry"
	"github.com/mattjoyce/scenebridge/internal/scene"
)

type viewportCameraParams struct {
	Location   *geom.Vec3    `json:"location"`
	Rotation   *geom.Rotator `json:"rotation"`
	FocusActor string        `json:"focusActor"`
	Distance   float64       `json:"distance" desc:"distance from focusActor (default 500)"`
}

type viewportFocusParams struct {
	ActorName        string `json:"actorName" cmd:"required"`
	PreserveRotation bool   `json:"preserveRotation"`
}

type viewportRenderModeParams struct {
	Mode string `json:"mode" desc:"lit, unlit, wireframe, detail_lighting, lighting_only, light_complexity, shader_complexity"`
}

type viewportFitParams struct {
	Actors  []string `json:"actors"`
	Filter  string   `json:"filter"`
	Padding *float64 `json:"padding" desc:"percent added around the objects (default 20)"`
}

// viewDistance is how far ahead of the camera viewport_bounds measures.
const viewDistance = 5000.0

func (h *handlers) registerViewport(reg *registry.Registry) error {
	return errors.Join(
		registry.Register(reg, registry.Spec{
			Name: "viewport_camera", Category: "viewport", Aliases: []string{"viewport.camera"},
			Description: "Place the camera, or aim it at an object",
		}, h.viewportCamera),
		registry.Register(reg, registry.Spec{
			Name: "viewport_focus", Category: "viewport", Aliases: []string{"viewport.focus"},
			Description: "Frame one object",
		}, h.viewportFocus),
		registry.Register(reg, registry.Spec{
			Name: "viewport_render_mode", Category: "viewport", Aliases: []string{"viewport.render_mode"},
			Description: "Change the viewport render mode",
		}, h.viewportRenderMode),
		registry.Register(reg, registry.Spec{
			Name: "viewport_bounds", Category: "viewport", Aliases: []string{"viewport.bounds"},
			Description: "Estimate the region the camera sees",
		}, h.viewportBounds),
		registry.Register(reg, registry.Spec{
			Name: "viewport_fit", Category: "viewport", Aliases: []string{"viewport.fit"},
			Description: "Move the camera so the given objects fill the view",
		}, h.viewportFit),
	)
}

func cameraResult(c scene.Camera, msg string) map[string]any {
	return map[string]any{
		"location": c.Location,
		"rotation": c.Rotation,
		"fov":      c.FOV,
		"message":  msg,
	}
}

func (h *handlers) viewportCamera(_ context.Context, p viewportCameraParams) (any, error) {
	cam := h.env.Host.Camera()

	if p.FocusActor != "" {
		o, err := h.env.Host.Find(p.FocusActor)
		if err != nil {
			return nil, fmt.Errorf("focus actor: %w", err)
		}
		dist := p.Distance
		if dist <= 0 {
			dist = 500
		}
		target := o.Transform.Location
		cam.Location = target.Add(geom.Vec3{X: -dist * 0.7, Z: dist * 0.7})
		cam.Rotation = geom.LookAt(cam.Location, target)
		h.env.Host.SetCamera(cam)
		return cameraResult(cam, fmt.Sprintf("Camera aimed at %s", o.Name)), nil
	}

	if p.Location == nil {
		return nil, fmt.Errorf("location is required when focusActor is not set")
	}
	cam.Location = *p.Location
	if p.Rotation != nil {
		cam.Rotation = *p.Rotation
	} else {
		cam.Rotation = geom.Rotator{Pitch: 30}
	}
	h.env.Host.SetCamera(cam)
	return cameraResult(cam, "Viewport camera updated"), nil
}

func (h *handlers) viewportFocus(_ context.Context, p viewportFocusParams) (any, error) {
	o, err := h.env.Host.Find(p.ActorName)
	if err != nil {
		return nil, fmt.Errorf("focus: %w", err)
	}
	b, err := h.env.Host.Bounds(o.Name)
	if err != nil {
		return nil, fmt.Errorf("focus: %w", err)
	}
	dist := math.Max(b.Extent.X, math.Max(b.Extent.Y, b.Extent.Z)) * 3

	cam := h.env.Host.Camera()
	if p.PreserveRotation {
		cam.Location = b.Origin.Sub(cam.Rotation.Forward().Scale(dist))
	} else {
		cam.Location = b.Origin.Add(geom.Vec3{X: -dist, Y: -dist * 0.5, Z: dist * 0.5})
		cam.Rotation = geom.LookAt(cam.Location, b.Origin)
	}
	h.env.Host.SetCamera(cam)

	res := cameraResult(cam, fmt.Sprintf("Focused viewport on %s", o.Name))
	res["target"] = b.Origin
	return res, nil
}

func (h *handlers) viewportRenderMode(_ context.Context, p viewportRenderModeParams) (any, error) {
	mode := p.Mode
	if mode == "" {
		mode = "lit"
	}
	if err := h.env.Host.SetRenderMode(mode); err != nil {
		return nil, err
	}
	mode = h.env.Host.RenderMode()
	return map[string]any{"mode": mode, "message": "Viewport render mode set to " + mode}, nil
}

// viewportBounds estimates the visible region as a cube centred viewDistance
// ahead of the camera, sized by the field of view.
func (h *handlers) viewportBounds(_ context.Context, _ struct{}) (any, error) {
	cam := h.env.Host.Camera()
	half := viewDistance * math.Tan(cam.FOV/2*math.Pi/180)
	center := cam.Location.Add(cam.Rotation.Forward().Scale(viewDistance))
	b := geom.BoundingVolume{Origin: center, Extent: geom.Vec3{X: half, Y: half, Z: half}}
	return map[string]any{
		"camera":       map[string]any{"location": cam.Location, "rotation": cam.Rotation},
		"bounds":       map[string]geom.Vec3{"min": b.Min(), "max": b.Max()},
		"viewDistance": viewDistance,
		"fov":          cam.FOV,
		"message":      "Viewport bounds calculated (estimated)",
	}, nil
}

func (h *handlers) viewportFit(_ context.Context, p viewportFitParams) (any, error) {
	var objects []scene.Object
	switch {
	case len(p.Actors) > 0:
		for _, name := range p.Actors {
			o, err := h.env.Host.Find(name)
			if err != nil {
				continue
			}
			objects = append(objects, o)
		}
	case p.Filter != "":
		objects = h.env.Host.List(scene.Filter{NameContains: strings.TrimSpace(p.Filter)})
	default:
		return nil, fmt.Errorf("provide actors or filter")
	}
	if len(objects) == 0 {
		return nil, fmt.Errorf("no actors found matching criteria: %w", scene.ErrNotFound)
	}

	var combined geom.BoundingVolume
	for i, o := range objects {
		b, err := h.env.Host.Bounds(o.Name)
		if err != nil {
			return nil, fmt.Errorf("fit: %w", err)
		}
		if i == 0 {
			combined = b
			continue
		}
		combined = geom.Union(combined, b)
	}

	padding := 20.0
	if p.Padding != nil {
		padding = *p.Padding
	}
	size := combined.Size()
	dist := math.Max(size.X, math.Max(size.Y, size.Z)) * (1 + padding/100)

	cam := h.env.Host.Camera()
	cam.Location = combined.Origin.Sub(cam.Rotation.Forward().Scale(dist))
	h.env.Host.SetCamera(cam)

	return map[string]any{
		"fittedActors":   len(objects),
		"boundsCenter":   combined.Origin,
		"boundsSize":     size,
		"cameraLocation": cam.Location,
		"message":        fmt.Sprintf("Fitted %d actors in viewport", len(objects)),
	}, nil
}
