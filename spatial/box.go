package spatial

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

const parallelAxisEpsilon = 1e-9

// Ordered list of box vertices in the box's local frame, as signs applied to
// the half-size along each axis.
var boxVertexSigns = [8]r3.Vector{
	{X: 1, Y: 1, Z: 1},
	{X: 1, Y: 1, Z: -1},
	{X: 1, Y: -1, Z: 1},
	{X: 1, Y: -1, Z: -1},
	{X: -1, Y: 1, Z: 1},
	{X: -1, Y: 1, Z: -1},
	{X: -1, Y: -1, Z: 1},
	{X: -1, Y: -1, Z: -1},
}

// Box is an oriented rectangular prism, defined by the pose of its center
// and its full dimensions along each local axis.
type Box struct {
	pose            Pose
	halfSize        [3]float64
	boundingSphereR float64
}

// NewBox returns a box with the given center pose and full dimensions.
// Dimensions must be non-negative; zero is allowed for degenerate bounds.
func NewBox(pose Pose, dims r3.Vector) (*Box, error) {
	if dims.X < 0 || dims.Y < 0 || dims.Z < 0 {
		return nil, errors.Errorf("box dimensions must be non-negative, got %v", dims)
	}
	half := dims.Mul(0.5)
	return &Box{
		pose:            pose,
		halfSize:        [3]float64{half.X, half.Y, half.Z},
		boundingSphereR: half.Norm(),
	}, nil
}

// Pose returns the pose of the box center.
func (b *Box) Pose() Pose {
	return b.pose
}

// Dims returns the full dimensions of the box.
func (b *Box) Dims() r3.Vector {
	return r3.Vector{X: 2 * b.halfSize[0], Y: 2 * b.halfSize[1], Z: 2 * b.halfSize[2]}
}

// Vertices returns the eight corners of the box in the parent frame.
func (b *Box) Vertices() []r3.Vector {
	verts := make([]r3.Vector, 0, 8)
	for _, sign := range boxVertexSigns {
		local := r3.Vector{
			X: sign.X * b.halfSize[0],
			Y: sign.Y * b.halfSize[1],
			Z: sign.Z * b.halfSize[2],
		}
		verts = append(verts, b.pose.TransformPoint(local))
	}
	return verts
}

// axes returns the box's local axes in the parent frame.
func (b *Box) axes() [3]r3.Vector {
	m := b.pose.RotationMatrix()
	return [3]r3.Vector{m.Col(0), m.Col(1), m.Col(2)}
}

// Overlaps reports whether two boxes are within buffer of each other, using
// the separating axis theorem over the 15 candidate planes. A positive
// buffer acts as a safety margin; a negative buffer permits that much
// interpenetration before the boxes count as overlapping.
func (b *Box) Overlaps(other *Box, buffer float64) bool {
	centerDist := other.pose.Translation.Sub(b.pose.Translation)

	// Bounding-sphere check to exit early for distant boxes.
	if centerDist.Norm()-(b.boundingSphereR+other.boundingSphereR) > buffer {
		return false
	}

	axesA := b.axes()
	axesB := other.axes()
	for i := 0; i < 3; i++ {
		if separatingAxisGap(centerDist, axesA[i], b.halfSize, other.halfSize, axesA, axesB) > buffer {
			return false
		}
		if separatingAxisGap(centerDist, axesB[i], b.halfSize, other.halfSize, axesA, axesB) > buffer {
			return false
		}
		for j := 0; j < 3; j++ {
			cross := axesA[i].Cross(axesB[j])
			// Parallel edges are covered by the face-normal projections.
			if cross.Norm() < parallelAxisEpsilon {
				continue
			}
			if separatingAxisGap(centerDist, cross.Normalize(), b.halfSize, other.halfSize, axesA, axesB) > buffer {
				return false
			}
		}
	}
	return true
}

// separatingAxisGap projects both boxes onto the given plane normal and
// returns the gap between them along it. A positive gap proves the boxes do
// not intersect.
func separatingAxisGap(positionDelta, plane r3.Vector, halfSizeA, halfSizeB [3]float64, axesA, axesB [3]r3.Vector) float64 {
	sum := math.Abs(positionDelta.Dot(plane))
	for i := 0; i < 3; i++ {
		sum -= math.Abs(axesA[i].Mul(halfSizeA[i]).Dot(plane))
		sum -= math.Abs(axesB[i].Mul(halfSizeB[i]).Dot(plane))
	}
	return sum
}
