package spatial

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// gimbalThreshold guards the asin branch when the X rotation approaches ±90°.
const gimbalThreshold = 0.9999999

var (
	axisX = mgl64.Vec3{1, 0, 0}
	axisY = mgl64.Vec3{0, 1, 0}
	axisZ = mgl64.Vec3{0, 0, 1}
)

// Quat is a rotation quaternion. The zero value is not a valid rotation; use
// Identity.
type Quat struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
	W float64 `json:"w" yaml:"w"`
}

func (q Quat) mgl() mgl64.Quat {
	return mgl64.Quat{W: q.W, V: mgl64.Vec3{q.X, q.Y, q.Z}}
}

func fromQuat(m mgl64.Quat) Quat {
	return Quat{X: m.V[0], Y: m.V[1], Z: m.V[2], W: m.W}
}

// Identity returns the no-rotation quaternion.
func Identity() Quat {
	return fromQuat(mgl64.QuatIdent())
}

// Euler builds a rotation from Euler angles in degrees (Z, then X, then Y).
func Euler(angles Vec3) Quat {
	qx := mgl64.QuatRotate(mgl64.DegToRad(angles.X), axisX)
	qy := mgl64.QuatRotate(mgl64.DegToRad(angles.Y), axisY)
	qz := mgl64.QuatRotate(mgl64.DegToRad(angles.Z), axisZ)
	return fromQuat(qy.Mul(qx).Mul(qz).Normalize())
}

// AngleAxis builds a rotation of degrees around axis.
func AngleAxis(degrees float64, axis Vec3) Quat {
	if axis.Len() == 0 {
		return Identity()
	}
	return fromQuat(mgl64.QuatRotate(mgl64.DegToRad(degrees), axis.mgl().Normalize()))
}

// Mul returns the Hamilton product q·o (o is applied first).
func (q Quat) Mul(o Quat) Quat {
	return fromQuat(q.mgl().Mul(o.mgl()))
}

// Normalize scales q to unit length. A zero quaternion normalises to Identity.
func (q Quat) Normalize() Quat {
	return fromQuat(q.mgl().Normalize())
}

// Inverse returns the inverse rotation.
func (q Quat) Inverse() Quat {
	return fromQuat(q.mgl().Normalize().Inverse())
}

// Rotate applies q to v.
func (q Quat) Rotate(v Vec3) Vec3 {
	return fromVec(q.mgl().Normalize().Rotate(v.mgl()))
}

// EulerAngles decomposes q into degrees (Z, then X, then Y), each in [0, 360).
func (q Quat) EulerAngles() Vec3 {
	m := q.mgl().Normalize().Mat4()

	var x, y, z float64
	if m12 := m.At(1, 2); math.Abs(m12) < gimbalThreshold {
		x = math.Asin(-m12)
		y = math.Atan2(m.At(0, 2), m.At(2, 2))
		z = math.Atan2(m.At(1, 0), m.At(1, 1))
	} else {
		// Y and Z share an axis; fold everything into Y.
		x = math.Copysign(math.Pi/2, -m12)
		y = math.Atan2(-m.At(2, 0), m.At(0, 0))
		z = 0
	}
	return Vec3{
		X: normalizeDegrees(mgl64.RadToDeg(x)),
		Y: normalizeDegrees(mgl64.RadToDeg(y)),
		Z: normalizeDegrees(mgl64.RadToDeg(z)),
	}
}

// Angle returns the angle in degrees between two rotations.
func (q Quat) Angle(o Quat) float64 {
	d := q.mgl().Normalize().Inverse().Mul(o.mgl().Normalize())
	return mgl64.RadToDeg(2 * math.Atan2(d.V.Len(), math.Abs(d.W)))
}

func normalizeDegrees(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	if d >= 360-1e-9 {
		return 0
	}
	// Avoid reporting -0.
	if d == 0 {
		return 0
	}
	return d
}
