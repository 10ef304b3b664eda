package duplicator

import (
	"encoding/json"

	"github.com/goliatone/go-duplicator/spatial"
)

// Report describes what a reconcile did to the target.
type Report struct {
	TargetID string
	// Created is set when the target was absent and had to be instantiated.
	Created  bool
	Replayed []string
	// Skipped lists replay rules whose sub-component was missing on the
	// live object.
	Skipped  []string
	Failures []error
	Pose     spatial.Pose
	// Shared is set when the result came from a concurrent reconcile of the
	// same target (in-flight guard only).
	Shared bool
}

// ToJSON serialises the report for logging or CLI output. Rotation is
// reported as Euler angles in degrees.
func (r Report) ToJSON() ([]byte, error) {
	failures := make([]string, 0, len(r.Failures))
	for _, err := range r.Failures {
		if err != nil {
			failures = append(failures, err.Error())
		}
	}
	return json.Marshal(struct {
		TargetID string       `json:"target_id"`
		Created  bool         `json:"created"`
		Replayed []string     `json:"replayed,omitempty"`
		Skipped  []string     `json:"skipped,omitempty"`
		Failures []string     `json:"failures,omitempty"`
		Position spatial.Vec3 `json:"position"`
		Rotation spatial.Vec3 `json:"rotation"`
		Shared   bool         `json:"shared,omitempty"`
	}{
		TargetID: r.TargetID,
		Created:  r.Created,
		Replayed: r.Replayed,
		Skipped:  r.Skipped,
		Failures: failures,
		Position: r.Pose.Position,
		Rotation: r.Pose.Rotation.EulerAngles(),
		Shared:   r.Shared,
	})
}
