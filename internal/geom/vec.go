// Package geom holds the transform math shared by command handlers:
// vectors, rotators, quaternions, transforms and axis-aligned bounds.
package geom

import (
	"encoding/json"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"
)

// Epsilon is the tolerance used for approximate float comparisons.
const Epsilon = 1e-6

// Vec3 is a point or direction in world units.
// On the wire it is a three element array [x, y, z].
type Vec3 struct {
	X, Y, Z float64
}

// One is the unit scale.
var One = Vec3{1, 1, 1}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Mul multiplies component-wise.
func (v Vec3) Mul(o Vec3) Vec3 { return Vec3{v.X * o.X, v.Y * o.Y, v.Z * o.Z} }

func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }
func (v Vec3) Dot(o Vec3) float64   { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

func (v Vec3) Len() float64 { return math.Sqrt(v.Dot(v)) }

func (v Vec3) Abs() Vec3 { return Vec3{math.Abs(v.X), math.Abs(v.Y), math.Abs(v.Z)} }

// Axis returns component i (0=X, 1=Y, 2=Z).
func (v Vec3) Axis(i int) float64 {
	switch i {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// ApproxEqual reports whether every component differs by at most tol.
func (v Vec3) ApproxEqual(o Vec3, tol float64) bool {
	return math.Abs(v.X-o.X) <= tol && math.Abs(v.Y-o.Y) <= tol && math.Abs(v.Z-o.Z) <= tol
}

// Distance is the Euclidean distance between two points.
func Distance(a, b Vec3) float64 { return a.Sub(b).Len() }

func (v Vec3) String() string { return fmt.Sprintf("[%g, %g, %g]", v.X, v.Y, v.Z) }

func (v Vec3) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]float64{v.X, v.Y, v.Z})
}

// UnmarshalJSON accepts [x, y, z] or {"x":..,"y":..,"z":..}.
func (v *Vec3) UnmarshalJSON(data []byte) error {
	var arr []float64
	if err := json.Unmarshal(data, &arr); err == nil {
		if len(arr) != 3 {
			return fmt.Errorf("vector needs 3 components, got %d", len(arr))
		}
		*v = Vec3{arr[0], arr[1], arr[2]}
		return nil
	}
	var obj struct {
		X, Y, Z *float64
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("vector must be [x, y, z] or {x, y, z}: %w", err)
	}
	if obj.X == nil || obj.Y == nil || obj.Z == nil {
		return fmt.Errorf("vector object needs x, y and z")
	}
	*v = Vec3{*obj.X, *obj.Y, *obj.Z}
	return nil
}

// MarshalYAML writes the compact [x, y, z] form used in level snapshots.
func (v Vec3) MarshalYAML() (any, error) { return []float64{v.X, v.Y, v.Z}, nil }

func (v *Vec3) UnmarshalYAML(node *yaml.Node) error {
	var arr []float64
	if err := node.Decode(&arr); err != nil {
		return err
	}
	if len(arr) != 3 {
		return fmt.Errorf("vector needs 3 components, got %d", len(arr))
	}
	*v = Vec3{arr[0], arr[1], arr[2]}
	return nil
}

// NearestMultiple snaps value to the closest multiple of unit and returns the
// snapped value and the signed residual (value - snapped).
func NearestMultiple(value, unit float64) (snapped, residual float64) {
	if unit <= 0 {
		return value, 0
	}
	snapped = math.Round(value/unit) * unit
	return snapped, value - snapped
}
