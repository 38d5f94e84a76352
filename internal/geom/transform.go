package geom

// Transform places an object: scale first, then rotation, then translation.
type Transform struct {
	Location Vec3    `json:"location" yaml:"location"`
	Rotation Rotator `json:"rotation" yaml:"rotation"`
	Scale    Vec3    `json:"scale" yaml:"scale"`
}

// Identity is the transform that leaves points unchanged.
func Identity() Transform {
	return Transform{Scale: One}
}

// Apply maps a point from the transform's local space into its parent space.
func (t Transform) Apply(p Vec3) Vec3 {
	return t.Location.Add(t.Rotation.Quat().Rotate(p.Mul(t.Scale)))
}

// Compose returns parent ∘ local: the world transform of something placed at
// local relative to parent. Compose(a, Compose(b, c)) equals
// Compose(Compose(a, b), c) for uniform scales.
func Compose(parent, local Transform) Transform {
	rot := parent.Rotation.Quat().Mul(local.Rotation.Quat()).Normalize()
	return Transform{
		Location: parent.Apply(local.Location),
		Rotation: rot.Rotator(),
		Scale:    parent.Scale.Mul(local.Scale),
	}
}

// ApproxEqual compares location and scale component-wise and rotation by
// orientation.
func (t Transform) ApproxEqual(o Transform, tol float64) bool {
	return t.Location.ApproxEqual(o.Location, tol) &&
		t.Scale.ApproxEqual(o.Scale, tol) &&
		t.Rotation.ApproxEqual(o.Rotation, tol)
}
