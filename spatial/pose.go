// Package spatial implements the rigid-transform math used to place objects
// and cameras in a generated scene: poses as unit quaternion plus translation,
// rotation matrices, and oriented bounding boxes.
package spatial

import (
	"encoding/json"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"
)

// Pose is a rigid transform: a rotation about the origin followed by a
// translation. The rotation component is always a unit quaternion; Euler
// angles are never stored.
type Pose struct {
	Rotation    quat.Number
	Translation r3.Vector
}

// NewZeroPose returns the identity transform.
func NewZeroPose() Pose {
	return Pose{Rotation: quat.Number{Real: 1}}
}

// NewPose returns a pose with the given translation and rotation. The
// rotation is normalized to a unit quaternion.
func NewPose(translation r3.Vector, rotation quat.Number) Pose {
	return Pose{Rotation: Normalize(rotation), Translation: translation}
}

// NewPoseFromPoint returns a pose with the given translation and no rotation.
func NewPoseFromPoint(translation r3.Vector) Pose {
	return Pose{Rotation: quat.Number{Real: 1}, Translation: translation}
}

// NewPoseFromAxisAngle returns a pose rotated by theta radians about the
// given axis. A zero axis yields the identity rotation.
func NewPoseFromAxisAngle(translation, axis r3.Vector, theta float64) Pose {
	return Pose{Rotation: QuatFromAxisAngle(axis, theta), Translation: translation}
}

// QuatFromAxisAngle converts an axis-angle rotation to a unit quaternion.
func QuatFromAxisAngle(axis r3.Vector, theta float64) quat.Number {
	n := axis.Norm()
	if n == 0 {
		return quat.Number{Real: 1}
	}
	axis = axis.Mul(1 / n)
	s := math.Sin(theta / 2)
	return quat.Number{
		Real: math.Cos(theta / 2),
		Imag: axis.X * s,
		Jmag: axis.Y * s,
		Kmag: axis.Z * s,
	}
}

// Normalize scales a quaternion to unit length. The zero quaternion maps to
// the identity rotation.
func Normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}

// RotateVector rotates a vector by a unit quaternion.
func RotateVector(q quat.Number, v r3.Vector) r3.Vector {
	qv := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, qv), quat.Conj(q))
	return r3.Vector{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// Compose returns the pose equivalent to applying b, then a.
func Compose(a, b Pose) Pose {
	return Pose{
		Rotation:    Normalize(quat.Mul(a.Rotation, b.Rotation)),
		Translation: a.Translation.Add(RotateVector(a.Rotation, b.Translation)),
	}
}

// Invert returns the inverse transform, such that Compose(p, p.Invert())
// is the identity.
func (p Pose) Invert() Pose {
	inv := quat.Conj(p.Rotation)
	return Pose{
		Rotation:    inv,
		Translation: RotateVector(inv, p.Translation.Mul(-1)),
	}
}

// TransformPoint applies the pose to a point.
func (p Pose) TransformPoint(pt r3.Vector) r3.Vector {
	return RotateVector(p.Rotation, pt).Add(p.Translation)
}

// RotationMatrix returns the pose's rotation as a 3x3 matrix.
func (p Pose) RotationMatrix() RotationMatrix {
	return NewRotationMatrixFromQuat(p.Rotation)
}

// QuaternionAlmostEqual compares unit quaternions for approximate equality,
// treating q and -q as the same rotation.
func QuaternionAlmostEqual(a, b quat.Number, epsilon float64) bool {
	d := quat.Abs(quat.Sub(a, b))
	dFlipped := quat.Abs(quat.Add(a, b))
	return d < epsilon || dFlipped < epsilon
}

// PoseAlmostEqual compares two poses for approximate equality in both
// translation and rotation.
func PoseAlmostEqual(a, b Pose, epsilon float64) bool {
	return a.Translation.Sub(b.Translation).Norm() < epsilon &&
		QuaternionAlmostEqual(a.Rotation, b.Rotation, epsilon)
}

// NewLookAtPose returns the pose of a camera placed at eye and oriented so
// that its -Z axis points at target with +Y roughly along up. This matches
// the renderer's camera convention: forward is -Z, up is +Y.
func NewLookAtPose(eye, target, up r3.Vector) Pose {
	forward := target.Sub(eye)
	if forward.Norm() == 0 {
		return NewPoseFromPoint(eye)
	}
	forward = forward.Normalize()
	right := forward.Cross(up)
	if right.Norm() < 1e-9 {
		// forward is parallel to up; fall back to a fixed reference so a
		// straight-down camera keeps its image axes aligned with world X/Y.
		alt := r3.Vector{Y: 1}
		if math.Abs(forward.Y) > 0.9 {
			alt = r3.Vector{X: 1}
		}
		right = forward.Cross(alt)
	}
	right = right.Normalize()
	camUp := right.Cross(forward)
	back := forward.Mul(-1)

	m := NewRotationMatrixFromCols(right, camUp, back)
	return Pose{Rotation: m.Quaternion(), Translation: eye}
}

type poseJSON struct {
	Translation [3]float64 `json:"translation"`
	Quaternion  [4]float64 `json:"quaternion"` // w, x, y, z
}

// MarshalJSON encodes the pose as a translation triple and a wxyz quaternion.
func (p Pose) MarshalJSON() ([]byte, error) {
	return json.Marshal(poseJSON{
		Translation: [3]float64{p.Translation.X, p.Translation.Y, p.Translation.Z},
		Quaternion:  [4]float64{p.Rotation.Real, p.Rotation.Imag, p.Rotation.Jmag, p.Rotation.Kmag},
	})
}

// UnmarshalJSON decodes a pose and normalizes its rotation.
func (p *Pose) UnmarshalJSON(data []byte) error {
	var pj poseJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return errors.Wrap(err, "cannot parse pose")
	}
	p.Translation = r3.Vector{X: pj.Translation[0], Y: pj.Translation[1], Z: pj.Translation[2]}
	p.Rotation = Normalize(quat.Number{
		Real: pj.Quaternion[0],
		Imag: pj.Quaternion[1],
		Jmag: pj.Quaternion[2],
		Kmag: pj.Quaternion[3],
	})
	return nil
}
