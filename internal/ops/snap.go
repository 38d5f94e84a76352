package ops

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/mattjoyce/scenebridge/internal/geom"
	"github.com/mattjoyce/scenebridge/internal/scene"
)

// SnapOffset is applied in socket space after the socket transform. On the
// wire it is {"location": [...], "rotation": [...]}, or a bare [x, y, z]
// location.
type SnapOffset struct {
	Location geom.Vec3    `json:"location"`
	Rotation geom.Rotator `json:"rotation"`
}

func (o *SnapOffset) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		*o = SnapOffset{}
		return json.Unmarshal(trimmed, &o.Location)
	}
	type plain SnapOffset
	var p plain
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return fmt.Errorf("offset: %w", err)
	}
	*o = SnapOffset(p)
	return nil
}

func (o SnapOffset) transform() geom.Transform {
	return geom.Transform{Location: o.Location, Rotation: o.Rotation, Scale: geom.One}
}

type SnapParams struct {
	SourceActor  string     `json:"sourceActor" cmd:"required"`
	TargetActor  string     `json:"targetActor" cmd:"required"`
	TargetSocket string     `json:"targetSocket" cmd:"required"`
	SourceSocket string     `json:"sourceSocket" desc:"socket on the source to align instead of its pivot"`
	Offset       SnapOffset `json:"offset"`
	Validate     bool       `json:"validate"`
}

type SnapResult struct {
	SourceActor  string       `json:"sourceActor"`
	TargetActor  string       `json:"targetActor"`
	TargetSocket string       `json:"targetSocket"`
	SourceSocket string       `json:"sourceSocket,omitempty"`
	NewLocation  geom.Vec3    `json:"newLocation"`
	NewRotation  geom.Rotator `json:"newRotation"`
	Validated    *bool        `json:"validated,omitempty"`
	Message      string       `json:"message"`
}

// SnapToSocket moves the source so that
//
//	world(source) = world(target) ∘ socket.Local ∘ offset
//
// keeping the source's own scale. With SourceSocket set, the source is
// shifted so that socket, not its pivot, lands on the target socket. Errors
// leave the scene untouched.
func SnapToSocket(host scene.Host, p SnapParams) (*SnapResult, error) {
	source, err := host.Find(p.SourceActor)
	if err != nil {
		return nil, fmt.Errorf("source actor: %w", err)
	}
	target, err := host.Find(p.TargetActor)
	if err != nil {
		return nil, fmt.Errorf("target actor: %w", err)
	}
	socket, err := host.Socket(target.Name, p.TargetSocket)
	if err != nil {
		return nil, err
	}

	world := geom.Compose(geom.Compose(target.Transform, socket.Local), p.Offset.transform())
	newT := geom.Transform{Location: world.Location, Rotation: world.Rotation, Scale: source.Transform.Scale}

	if p.SourceSocket != "" {
		own, err := host.Socket(source.Name, p.SourceSocket)
		if err != nil {
			return nil, err
		}
		// Place the source so its socket sits where its pivot would have.
		shift := newT.Rotation.Quat().Rotate(own.Local.Location.Mul(newT.Scale))
		newT.Location = newT.Location.Sub(shift)
	}

	if err := host.SetTransform(source.Name, newT); err != nil {
		return nil, fmt.Errorf("apply snap: %w", err)
	}

	res := &SnapResult{
		SourceActor:  source.Name,
		TargetActor:  target.Name,
		TargetSocket: p.TargetSocket,
		SourceSocket: p.SourceSocket,
		NewLocation:  newT.Location,
		NewRotation:  newT.Rotation,
		Message:      fmt.Sprintf("Snapped %s to %s socket %q", source.Name, target.Name, p.TargetSocket),
	}
	if p.Validate {
		after, err := host.Find(source.Name)
		ok := err == nil && after.Transform.Location.ApproxEqual(newT.Location, 0.01)
		res.Validated = &ok
	}
	return res, nil
}

func (h *handlers) snapToSocket(_ context.Context, p SnapParams) (any, error) {
	return SnapToSocket(h.env.Host, p)
}
