// Package spatial holds the pose math used to keep a dependent object at a
// fixed placement relative to an anchor.
//
// Rotations follow the host engine conventions: Euler angles are expressed in
// degrees and applied Z first, then X, then Y. EulerAngles always returns
// values normalised to [0, 360). The algebra runs on mgl64; Vec3 and Quat are
// the serialisable forms the rest of the module passes around.
package spatial

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Vec3 is a three component vector.
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// V constructs a Vec3.
func V(x, y, z float64) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

func (v Vec3) mgl() mgl64.Vec3 {
	return mgl64.Vec3{v.X, v.Y, v.Z}
}

func fromVec(m mgl64.Vec3) Vec3 {
	return Vec3{X: m[0], Y: m[1], Z: m[2]}
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return fromVec(v.mgl().Add(o.mgl()))
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return fromVec(v.mgl().Sub(o.mgl()))
}

// Scale multiplies every component by s.
func (v Vec3) Scale(s float64) Vec3 {
	return fromVec(v.mgl().Mul(s))
}

func (v Vec3) Cross(o Vec3) Vec3 {
	return fromVec(v.mgl().Cross(o.mgl()))
}

func (v Vec3) Dot(o Vec3) float64 {
	return v.mgl().Dot(o.mgl())
}

// Len returns the euclidean length.
func (v Vec3) Len() float64 {
	return v.mgl().Len()
}

// ApproxEqual compares component-wise within an absolute eps.
func (v Vec3) ApproxEqual(o Vec3, eps float64) bool {
	return math.Abs(v.X-o.X) <= eps && math.Abs(v.Y-o.Y) <= eps && math.Abs(v.Z-o.Z) <= eps
}
