package geom

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const tol = 1e-9

func TestRotatorYawTurnsXIntoY(t *testing.T) {
	got := Rotator{Yaw: 90}.Quat().Rotate(Vec3{1, 0, 0})
	assert.True(t, got.ApproxEqual(Vec3{0, 1, 0}, tol), "got %v", got)
}

func TestRotatorRollAppliedBeforeYaw(t *testing.T) {
	// Roll 90 maps +Y to +Z; yaw then leaves +Z alone.
	got := Rotator{Roll: 90, Yaw: 90}.Quat().Rotate(Vec3{0, 1, 0})
	assert.True(t, got.ApproxEqual(Vec3{0, 0, 1}, tol), "got %v", got)

	// The opposite order would move +Y to -X first and keep it in the plane.
	wrongOrder := axisAngle(Vec3{1, 0, 0}, 90).Mul(axisAngle(Vec3{0, 0, 1}, 90)).Rotate(Vec3{0, 1, 0})
	assert.False(t, got.ApproxEqual(wrongOrder, tol))
}

func TestRotatorPitchAboutY(t *testing.T) {
	got := Rotator{Pitch: 90}.Quat().Rotate(Vec3{1, 0, 0})
	assert.True(t, got.ApproxEqual(Vec3{0, 0, -1}, tol), "got %v", got)
}

func TestQuatRotatorRoundTrip(t *testing.T) {
	cases := []Rotator{
		{},
		{Roll: 10, Pitch: 20, Yaw: 30},
		{Roll: -170, Pitch: 45, Yaw: 179},
		{Roll: 0, Pitch: 90, Yaw: 45},
		{Roll: 30, Pitch: -90, Yaw: 0},
	}
	for _, r := range cases {
		back := r.Quat().Rotator()
		assert.True(t, back.ApproxEqual(r, 1e-9), "rotator %v came back as %v", r, back)
	}
}

func TestRotatorNormalize(t *testing.T) {
	got := Rotator{Roll: 360, Pitch: -190, Yaw: 540}.Normalize()
	assert.InDelta(t, 0, got.Roll, tol)
	assert.InDelta(t, 170, got.Pitch, tol)
	assert.InDelta(t, 180, got.Yaw, tol)
}

func TestComposeIdentity(t *testing.T) {
	target := Transform{Location: Vec3{100, 200, 0}, Rotation: Rotator{Yaw: 37}, Scale: One}
	got := Compose(Compose(target, Identity()), Identity())
	assert.True(t, got.ApproxEqual(target, 1e-9), "got %+v", got)
}

func TestComposeRotatesLocalOffset(t *testing.T) {
	parent := Transform{Location: Vec3{10, 0, 0}, Rotation: Rotator{Yaw: 90}, Scale: Vec3{2, 2, 2}}
	local := Transform{Location: Vec3{5, 0, 0}, Rotation: Rotator{Yaw: 90}, Scale: One}

	got := Compose(parent, local)
	assert.True(t, got.Location.ApproxEqual(Vec3{10, 10, 0}, 1e-9), "location %v", got.Location)
	assert.InDelta(t, 180, math.Abs(got.Rotation.Yaw), 1e-9)
	assert.Equal(t, Vec3{2, 2, 2}, got.Scale)
}

func TestComposeAssociativeForUniformScale(t *testing.T) {
	a := Transform{Location: Vec3{1, 2, 3}, Rotation: Rotator{10, 20, 30}, Scale: Vec3{2, 2, 2}}
	b := Transform{Location: Vec3{-4, 0, 9}, Rotation: Rotator{-45, 5, 90}, Scale: One}
	c := Transform{Location: Vec3{0, 7, 1}, Rotation: Rotator{0, 0, 15}, Scale: Vec3{0.5, 0.5, 0.5}}

	left := Compose(Compose(a, b), c)
	right := Compose(a, Compose(b, c))
	assert.True(t, left.ApproxEqual(right, 1e-9), "left %+v right %+v", left, right)
}

func TestWorldBoundsRotated(t *testing.T) {
	tr := Transform{Location: Vec3{0, 0, 0}, Rotation: Rotator{Yaw: 90}, Scale: Vec3{2, 1, 1}}
	b := WorldBounds(tr, Vec3{10, 5, 1})
	// Scaled extent (20, 5, 1) rotated 90 about Z swaps X and Y.
	assert.True(t, b.Extent.ApproxEqual(Vec3{5, 20, 1}, 1e-9), "extent %v", b.Extent)
}

func TestSeparateTouchingBoxes(t *testing.T) {
	a := BoundingVolume{Origin: Vec3{0, 0, 0}, Extent: Vec3{0.5, 0.5, 0.5}}
	b := BoundingVolume{Origin: Vec3{1, 0, 0}, Extent: Vec3{0.5, 0.5, 0.5}}
	s := Separate(a, b)
	assert.True(t, s.Intersecting())
	assert.InDelta(t, 0, s.Penetration(), tol)
	assert.InDelta(t, 0, s.Distance(), tol)
}

func TestSeparateApartOnOneAxis(t *testing.T) {
	a := BoundingVolume{Origin: Vec3{0, 0, 0}, Extent: Vec3{0.5, 0.5, 0.5}}
	b := BoundingVolume{Origin: Vec3{10, 0, 0}, Extent: Vec3{0.5, 0.5, 0.5}}
	s := Separate(a, b)
	assert.False(t, s.Intersecting())
	assert.InDelta(t, 9, s.Distance(), tol)
	assert.Equal(t, 0, s.DominantAxis())
}

func TestSeparateDiagonal(t *testing.T) {
	a := BoundingVolume{Extent: Vec3{1, 1, 1}}
	b := BoundingVolume{Origin: Vec3{5, 6, 0}, Extent: Vec3{1, 1, 1}}
	assert.InDelta(t, 5, Separate(a, b).Distance(), tol)
}

func TestNearestGap(t *testing.T) {
	a := BoundingVolume{Extent: Vec3{0.5, 0.5, 0.5}}
	b := BoundingVolume{Origin: Vec3{1.5, 3, 0}, Extent: Vec3{0.5, 0.5, 0.5}}
	gap, axis, ok := Separate(a, b).NearestGap()
	require.True(t, ok)
	assert.InDelta(t, 0.5, gap, tol)
	assert.Equal(t, 0, axis)

	touching := BoundingVolume{Origin: Vec3{1, 0, 0}, Extent: Vec3{0.5, 0.5, 0.5}}
	_, _, ok = Separate(a, touching).NearestGap()
	assert.False(t, ok)
}

func TestDegenerate(t *testing.T) {
	assert.True(t, BoundingVolume{Origin: Vec3{3, 0, 0}}.Degenerate())
	assert.False(t, BoundingVolume{Extent: Vec3{0, 0, 1}}.Degenerate())
}

func TestUnion(t *testing.T) {
	a := BoundingVolume{Origin: Vec3{0, 0, 0}, Extent: Vec3{1, 1, 1}}
	b := BoundingVolume{Origin: Vec3{10, 0, 0}, Extent: Vec3{1, 1, 1}}
	u := Union(a, b)
	assert.Equal(t, Vec3{5, 0, 0}, u.Origin)
	assert.Equal(t, Vec3{6, 1, 1}, u.Extent)
}

func TestNearestMultiple(t *testing.T) {
	snapped, residual := NearestMultiple(310, 300)
	assert.Equal(t, 300.0, snapped)
	assert.Equal(t, 10.0, residual)

	snapped, residual = NearestMultiple(-149, 100)
	assert.Equal(t, -100.0, snapped)
	assert.Equal(t, -49.0, residual)

	snapped, residual = NearestMultiple(12.5, 0)
	assert.Equal(t, 12.5, snapped)
	assert.Equal(t, 0.0, residual)
}

func TestVecJSONForms(t *testing.T) {
	var v Vec3
	require.NoError(t, json.Unmarshal([]byte(`[1, 2, 3]`), &v))
	assert.Equal(t, Vec3{1, 2, 3}, v)

	require.NoError(t, json.Unmarshal([]byte(`{"x": 4, "y": 5, "z": 6}`), &v))
	assert.Equal(t, Vec3{4, 5, 6}, v)

	assert.Error(t, json.Unmarshal([]byte(`[1, 2]`), &v))
	assert.Error(t, json.Unmarshal([]byte(`{"x": 1}`), &v))
	assert.Error(t, json.Unmarshal([]byte(`"nope"`), &v))

	out, err := json.Marshal(Vec3{1, 2.5, -3})
	require.NoError(t, err)
	assert.JSONEq(t, `[1, 2.5, -3]`, string(out))
}

func TestRotatorJSONForms(t *testing.T) {
	var r Rotator
	require.NoError(t, json.Unmarshal([]byte(`[0, 0, 90]`), &r))
	assert.Equal(t, Rotator{Yaw: 90}, r)

	require.NoError(t, json.Unmarshal([]byte(`{"pitch": 15}`), &r))
	assert.Equal(t, Rotator{Pitch: 15}, r)
}

func TestTransformYAML(t *testing.T) {
	in := Transform{Location: Vec3{1, 2, 3}, Rotation: Rotator{Yaw: 90}, Scale: One}
	out, err := yaml.Marshal(in)
	require.NoError(t, err)

	var back Transform
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, in, back)
}

func TestLookAtPointsForward(t *testing.T) {
	from := Vec3{-500, 200, 300}
	to := Vec3{100, -50, 0}
	dir := to.Sub(from).Scale(1 / to.Sub(from).Len())

	r := LookAt(from, to)
	assert.True(t, r.Forward().ApproxEqual(dir, 1e-9), "forward %v, want %v", r.Forward(), dir)
	assert.Zero(t, r.Roll)

	assert.Equal(t, Rotator{}, LookAt(to, to))
}
