package geom

import "math"

// BoundingVolume is an axis-aligned box. Extent is the half-size per axis.
type BoundingVolume struct {
	Origin Vec3 `json:"origin" yaml:"origin"`
	Extent Vec3 `json:"extent" yaml:"extent"`
}

func (b BoundingVolume) Min() Vec3 { return b.Origin.Sub(b.Extent) }
func (b BoundingVolume) Max() Vec3 { return b.Origin.Add(b.Extent) }

// Size is the full edge length per axis.
func (b BoundingVolume) Size() Vec3 { return b.Extent.Scale(2) }

// WorldBounds returns the axis-aligned box enclosing a local box of half-size
// extent, centred on the local origin, after applying t.
func WorldBounds(t Transform, extent Vec3) BoundingVolume {
	scaled := extent.Mul(t.Scale).Abs()
	m := t.Rotation.Quat().Matrix()
	var out [3]float64
	for i := 0; i < 3; i++ {
		out[i] = math.Abs(m[i][0])*scaled.X + math.Abs(m[i][1])*scaled.Y + math.Abs(m[i][2])*scaled.Z
	}
	return BoundingVolume{Origin: t.Location, Extent: Vec3{out[0], out[1], out[2]}}
}

// Union returns the smallest box enclosing both.
func Union(a, b BoundingVolume) BoundingVolume {
	amin, amax := a.Min(), a.Max()
	bmin, bmax := b.Min(), b.Max()
	lo := Vec3{math.Min(amin.X, bmin.X), math.Min(amin.Y, bmin.Y), math.Min(amin.Z, bmin.Z)}
	hi := Vec3{math.Max(amax.X, bmax.X), math.Max(amax.Y, bmax.Y), math.Max(amax.Z, bmax.Z)}
	return BoundingVolume{Origin: lo.Add(hi).Scale(0.5), Extent: hi.Sub(lo).Scale(0.5)}
}

// Separation describes how two boxes relate along each axis.
//
// PerAxis[i] is the signed gap on axis i: positive when the projections are
// apart, zero when they touch, negative (the penetration depth) when they
// overlap.
type Separation struct {
	PerAxis [3]float64
}

// Separate measures a against b.
func Separate(a, b BoundingVolume) Separation {
	var s Separation
	for i := 0; i < 3; i++ {
		dist := math.Abs(a.Origin.Axis(i) - b.Origin.Axis(i))
		s.PerAxis[i] = dist - a.Extent.Axis(i) - b.Extent.Axis(i)
	}
	return s
}

// Intersecting reports whether the projections overlap or touch on all axes.
func (s Separation) Intersecting() bool {
	return s.PerAxis[0] <= 0 && s.PerAxis[1] <= 0 && s.PerAxis[2] <= 0
}

// Penetration is the smallest overlap depth across the axes. Only meaningful
// when Intersecting.
func (s Separation) Penetration() float64 {
	p := math.Inf(1)
	for _, v := range s.PerAxis {
		p = math.Min(p, -v)
	}
	return math.Max(p, 0)
}

// Distance is the Euclidean distance between the two boxes, zero when they
// intersect. When separated on one axis only it equals that axis gap.
func (s Separation) Distance() float64 {
	var sum float64
	for _, v := range s.PerAxis {
		if v > 0 {
			sum += v * v
		}
	}
	return math.Sqrt(sum)
}

// NearestGap is the smallest positive per-axis gap and its axis. ok is false
// when no axis is apart.
func (s Separation) NearestGap() (gap float64, axis int, ok bool) {
	gap = math.Inf(1)
	for i, v := range s.PerAxis {
		if v > 0 && v < gap {
			gap, axis, ok = v, i, true
		}
	}
	if !ok {
		return 0, 0, false
	}
	return gap, axis, true
}

// Degenerate reports whether a box has no extent on any axis.
func (b BoundingVolume) Degenerate() bool {
	return b.Extent.X == 0 && b.Extent.Y == 0 && b.Extent.Z == 0
}

// DominantAxis is the axis with the largest gap, or the smallest penetration
// when intersecting.
func (s Separation) DominantAxis() int {
	best := 0
	for i := 1; i < 3; i++ {
		if s.PerAxis[i] > s.PerAxis[best] {
			best = i
		}
	}
	return best
}

// AxisName maps 0..2 to "x", "y", "z".
func AxisName(i int) string {
	return [3]string{"x", "y", "z"}[i]
}
