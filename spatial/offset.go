package spatial

// Pose is a world-space position and rotation.
type Pose struct {
	Position Vec3 `json:"position" yaml:"position"`
	Rotation Quat `json:"rotation" yaml:"rotation"`
}

// NewPose builds a pose from a position and Euler angles in degrees.
func NewPose(position, eulerDegrees Vec3) Pose {
	return Pose{Position: position, Rotation: Euler(eulerDegrees)}
}

// ApproxEqual reports whether both poses match within eps (units for the
// position, degrees for the rotation).
func (p Pose) ApproxEqual(o Pose, eps float64) bool {
	return p.Position.ApproxEqual(o.Position, eps) && p.Rotation.Angle(o.Rotation) <= eps
}

// Offset stores a target placement relative to an anchor.
//
// Position is expressed in the anchor's local frame at capture time. Rotation
// holds the target's world-space Euler angles; it is not relative to the
// anchor rotation.
type Offset struct {
	Position Vec3 `json:"position_offset"`
	Rotation Vec3 `json:"rotation_offset"`
}

// ComputeOffset captures target relative to anchor.
func ComputeOffset(anchor, target Pose) Offset {
	return Offset{
		Position: anchor.Rotation.Inverse().Rotate(target.Position.Sub(anchor.Position)),
		Rotation: target.Rotation.EulerAngles(),
	}
}

// Reapply derives the target pose from the anchor's current pose.
func Reapply(anchor Pose, offset Offset) Pose {
	return Pose{
		Position: anchor.Position.Add(anchor.Rotation.Rotate(offset.Position)),
		Rotation: Euler(anchor.Rotation.EulerAngles().Add(offset.Rotation)),
	}
}
