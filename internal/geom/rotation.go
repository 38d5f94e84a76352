package geom

import (
	"encoding/json"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"
)

// Rotator is an orientation in degrees.
//
// The rotation matrix is R = Rz(Yaw) * Ry(Pitch) * Rx(Roll): roll is applied
// first about the local X axis, then pitch about Y, then yaw about Z. Each
// angle is a right-handed rotation about its axis. On the wire a Rotator is
// the array [roll, pitch, yaw].
type Rotator struct {
	Roll, Pitch, Yaw float64
}

func (r Rotator) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]float64{r.Roll, r.Pitch, r.Yaw})
}

// UnmarshalJSON accepts [roll, pitch, yaw] or {"roll":..,"pitch":..,"yaw":..}.
func (r *Rotator) UnmarshalJSON(data []byte) error {
	var arr []float64
	if err := json.Unmarshal(data, &arr); err == nil {
		if len(arr) != 3 {
			return fmt.Errorf("rotation needs 3 components, got %d", len(arr))
		}
		*r = Rotator{arr[0], arr[1], arr[2]}
		return nil
	}
	var obj struct {
		Roll, Pitch, Yaw float64
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("rotation must be [roll, pitch, yaw] or {roll, pitch, yaw}: %w", err)
	}
	*r = Rotator(obj)
	return nil
}

func (r Rotator) MarshalYAML() (any, error) { return []float64{r.Roll, r.Pitch, r.Yaw}, nil }

func (r *Rotator) UnmarshalYAML(node *yaml.Node) error {
	var arr []float64
	if err := node.Decode(&arr); err != nil {
		return err
	}
	if len(arr) != 3 {
		return fmt.Errorf("rotation needs 3 components, got %d", len(arr))
	}
	*r = Rotator{arr[0], arr[1], arr[2]}
	return nil
}

// Normalize wraps every angle into (-180, 180].
func (r Rotator) Normalize() Rotator {
	return Rotator{wrapDegrees(r.Roll), wrapDegrees(r.Pitch), wrapDegrees(r.Yaw)}
}

func wrapDegrees(a float64) float64 {
	a = math.Mod(a, 360)
	if a <= -180 {
		a += 360
	} else if a > 180 {
		a -= 360
	}
	return a
}

// ApproxEqual compares two rotators by the orientation they describe, so
// equivalent Euler triples (gimbal aliases, 360 wraps) compare equal.
func (r Rotator) ApproxEqual(o Rotator, tol float64) bool {
	return r.Quat().ApproxEqual(o.Quat(), tol)
}

// Quat converts to a unit quaternion.
func (r Rotator) Quat() Quat {
	return axisAngle(Vec3{0, 0, 1}, r.Yaw).
		Mul(axisAngle(Vec3{0, 1, 0}, r.Pitch)).
		Mul(axisAngle(Vec3{1, 0, 0}, r.Roll))
}

// Quat is a rotation quaternion. The identity is {0, 0, 0, 1}.
type Quat struct {
	X, Y, Z, W float64
}

// IdentityQuat is the no-op rotation.
var IdentityQuat = Quat{W: 1}

func axisAngle(axis Vec3, degrees float64) Quat {
	half := degrees * math.Pi / 360
	s := math.Sin(half)
	return Quat{axis.X * s, axis.Y * s, axis.Z * s, math.Cos(half)}
}

// Mul returns q*o, the rotation that applies o first and then q.
func (q Quat) Mul(o Quat) Quat {
	return Quat{
		X: q.W*o.X + q.X*o.W + q.Y*o.Z - q.Z*o.Y,
		Y: q.W*o.Y - q.X*o.Z + q.Y*o.W + q.Z*o.X,
		Z: q.W*o.Z + q.X*o.Y - q.Y*o.X + q.Z*o.W,
		W: q.W*o.W - q.X*o.X - q.Y*o.Y - q.Z*o.Z,
	}
}

func (q Quat) Normalize() Quat {
	n := math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
	if n == 0 {
		return IdentityQuat
	}
	return Quat{q.X / n, q.Y / n, q.Z / n, q.W / n}
}

// Rotate applies the rotation to v.
func (q Quat) Rotate(v Vec3) Vec3 {
	u := Vec3{q.X, q.Y, q.Z}
	t := u.Cross(v).Scale(2)
	return v.Add(t.Scale(q.W)).Add(u.Cross(t))
}

// ApproxEqual treats q and -q as the same rotation.
func (q Quat) ApproxEqual(o Quat, tol float64) bool {
	dot := q.X*o.X + q.Y*o.Y + q.Z*o.Z + q.W*o.W
	return math.Abs(math.Abs(dot)-1) <= tol
}

// Rotator converts back to Euler angles in degrees. At pitch of +/-90 the
// decomposition is not unique; roll is folded into yaw.
func (q Quat) Rotator() Rotator {
	q = q.Normalize()
	sinPitch := 2 * (q.W*q.Y - q.Z*q.X)
	sinPitch = math.Max(-1, math.Min(1, sinPitch))

	var r Rotator
	r.Pitch = math.Asin(sinPitch) * 180 / math.Pi
	if math.Abs(sinPitch) > 1-1e-9 {
		r.Roll = 0
		r.Yaw = -2 * math.Atan2(q.X, q.W) * 180 / math.Pi * sign(sinPitch)
		return r.Normalize()
	}
	r.Roll = math.Atan2(2*(q.W*q.X+q.Y*q.Z), 1-2*(q.X*q.X+q.Y*q.Y)) * 180 / math.Pi
	r.Yaw = math.Atan2(2*(q.W*q.Z+q.X*q.Y), 1-2*(q.Y*q.Y+q.Z*q.Z)) * 180 / math.Pi
	return r.Normalize()
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

// Matrix returns the 3x3 rotation matrix, row major.
func (q Quat) Matrix() [3][3]float64 {
	x, y, z, w := q.X, q.Y, q.Z, q.W
	return [3][3]float64{
		{1 - 2*(y*y+z*z), 2 * (x*y - z*w), 2 * (x*z + y*w)},
		{2 * (x*y + z*w), 1 - 2*(x*x+z*z), 2 * (y*z - x*w)},
		{2 * (x*z - y*w), 2 * (y*z + x*w), 1 - 2*(x*x+y*y)},
	}
}

// Forward is the unit X axis rotated by r, the direction a camera with this
// rotation looks along.
func (r Rotator) Forward() Vec3 {
	return r.Quat().Rotate(Vec3{1, 0, 0})
}

// LookAt returns the roll-free rotator whose Forward points from "from" to
// "to". Coincident points give the zero rotator.
func LookAt(from, to Vec3) Rotator {
	d := to.Sub(from)
	if d.Len() < Epsilon {
		return Rotator{}
	}
	yaw := math.Atan2(d.Y, d.X) * 180 / math.Pi
	pitch := math.Atan2(-d.Z, math.Hypot(d.X, d.Y)) * 180 / math.Pi
	return Rotator{Pitch: pitch, Yaw: yaw}
}
