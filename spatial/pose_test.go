package spatial

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"
)

func TestComposeInvertRoundTrip(t *testing.T) {
	poses := []Pose{
		NewZeroPose(),
		NewPoseFromPoint(r3.Vector{X: 1, Y: -2, Z: 3}),
		NewPoseFromAxisAngle(r3.Vector{X: 0.5}, r3.Vector{Z: 1}, math.Pi/3),
		NewPoseFromAxisAngle(r3.Vector{X: 4, Y: 5, Z: -6}, r3.Vector{X: 1, Y: 1, Z: 1}, 2.2),
	}
	for _, p := range poses {
		identity := Compose(p, p.Invert())
		test.That(t, PoseAlmostEqual(identity, NewZeroPose(), 1e-9), test.ShouldBeTrue)
	}
}

func TestComposeAppliesRightSideFirst(t *testing.T) {
	rotate := NewPoseFromAxisAngle(r3.Vector{}, r3.Vector{Z: 1}, math.Pi/2)
	translate := NewPoseFromPoint(r3.Vector{X: 1})

	// Rotate then translate: the rotated point slides along world X.
	p := Compose(translate, rotate).TransformPoint(r3.Vector{X: 1})
	test.That(t, p.X, test.ShouldAlmostEqual, 1, 1e-9)
	test.That(t, p.Y, test.ShouldAlmostEqual, 1, 1e-9)

	// Translate then rotate: the translation itself gets rotated.
	p = Compose(rotate, translate).TransformPoint(r3.Vector{X: 1})
	test.That(t, p.X, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, p.Y, test.ShouldAlmostEqual, 2, 1e-9)
}

func TestRotateVector(t *testing.T) {
	q := QuatFromAxisAngle(r3.Vector{Z: 1}, math.Pi/2)
	v := RotateVector(q, r3.Vector{X: 1})
	test.That(t, v.X, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, v.Y, test.ShouldAlmostEqual, 1, 1e-9)
	test.That(t, v.Z, test.ShouldAlmostEqual, 0, 1e-9)
}

func TestNormalize(t *testing.T) {
	q := Normalize(quat.Number{Real: 2, Imag: 0, Jmag: 0, Kmag: 0})
	test.That(t, q.Real, test.ShouldAlmostEqual, 1)
	q = Normalize(quat.Number{})
	test.That(t, q.Real, test.ShouldAlmostEqual, 1)
}

func TestQuaternionAlmostEqualHandlesDoubleCover(t *testing.T) {
	q := QuatFromAxisAngle(r3.Vector{X: 1}, 1.1)
	flipped := quat.Scale(-1, q)
	test.That(t, QuaternionAlmostEqual(q, flipped, 1e-9), test.ShouldBeTrue)
}

func TestRotationMatrixRoundTrip(t *testing.T) {
	cases := []quat.Number{
		{Real: 1},
		QuatFromAxisAngle(r3.Vector{Z: 1}, math.Pi/2),
		QuatFromAxisAngle(r3.Vector{X: 1}, math.Pi),
		QuatFromAxisAngle(r3.Vector{X: 1, Y: 1, Z: 1}, 2.5),
		QuatFromAxisAngle(r3.Vector{Y: 1}, -0.3),
	}
	for _, q := range cases {
		back := NewRotationMatrixFromQuat(q).Quaternion()
		test.That(t, QuaternionAlmostEqual(q, back, 1e-9), test.ShouldBeTrue)
	}
}

func TestNewLookAtPose(t *testing.T) {
	// Straight-down camera keeps its image axes on world X/Y.
	p := NewLookAtPose(r3.Vector{Z: 5}, r3.Vector{}, r3.Vector{Z: 1})
	test.That(t, QuaternionAlmostEqual(p.Rotation, quat.Number{Real: 1}, 1e-9), test.ShouldBeTrue)
	test.That(t, p.Translation.Z, test.ShouldAlmostEqual, 5)

	// The -Z axis of any look-at pose points from eye to target.
	eye := r3.Vector{X: 3, Y: -2, Z: 4}
	target := r3.Vector{X: -1, Y: 1, Z: 0.5}
	p = NewLookAtPose(eye, target, r3.Vector{Z: 1})
	forward := RotateVector(p.Rotation, r3.Vector{Z: -1})
	want := target.Sub(eye).Normalize()
	test.That(t, forward.Sub(want).Norm(), test.ShouldAlmostEqual, 0, 1e-9)

	// The up hint keeps camera +Y pointing away from the floor.
	camUp := RotateVector(p.Rotation, r3.Vector{Y: 1})
	test.That(t, camUp.Z, test.ShouldBeGreaterThan, 0)
}

func TestPoseJSONRoundTrip(t *testing.T) {
	p := NewPoseFromAxisAngle(r3.Vector{X: 1.5, Y: -0.25, Z: 9}, r3.Vector{X: 1, Z: 1}, 0.7)
	data, err := json.Marshal(p)
	test.That(t, err, test.ShouldBeNil)

	var back Pose
	test.That(t, json.Unmarshal(data, &back), test.ShouldBeNil)
	test.That(t, PoseAlmostEqual(p, back, 1e-12), test.ShouldBeTrue)
}
