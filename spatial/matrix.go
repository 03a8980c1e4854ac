package spatial

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// RotationMatrix is a 3x3 rotation matrix in row-major order. Multiplying a
// column vector by the matrix rotates it; the columns are the rotated basis
// vectors.
type RotationMatrix [9]float64

// NewRotationMatrixFromQuat converts a unit quaternion to a rotation matrix.
func NewRotationMatrixFromQuat(q quat.Number) RotationMatrix {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return RotationMatrix{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	}
}

// NewRotationMatrixFromCols builds a rotation matrix from three orthonormal
// column vectors.
func NewRotationMatrixFromCols(c0, c1, c2 r3.Vector) RotationMatrix {
	return RotationMatrix{
		c0.X, c1.X, c2.X,
		c0.Y, c1.Y, c2.Y,
		c0.Z, c1.Z, c2.Z,
	}
}

// At returns the matrix entry at the given row and column.
func (m RotationMatrix) At(row, col int) float64 {
	return m[row*3+col]
}

// Row returns the given row as a vector.
func (m RotationMatrix) Row(i int) r3.Vector {
	return r3.Vector{X: m[i*3], Y: m[i*3+1], Z: m[i*3+2]}
}

// Col returns the given column as a vector. For a pose's rotation matrix,
// Col(i) is the pose's local i-th axis expressed in the parent frame.
func (m RotationMatrix) Col(i int) r3.Vector {
	return r3.Vector{X: m[i], Y: m[3+i], Z: m[6+i]}
}

// MulVec rotates a vector by the matrix.
func (m RotationMatrix) MulVec(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m[0]*v.X + m[1]*v.Y + m[2]*v.Z,
		Y: m[3]*v.X + m[4]*v.Y + m[5]*v.Z,
		Z: m[6]*v.X + m[7]*v.Y + m[8]*v.Z,
	}
}

// Quaternion converts the rotation matrix back to a unit quaternion using
// Shepperd's method, branching on the largest diagonal term for stability.
func (m RotationMatrix) Quaternion() quat.Number {
	var q quat.Number
	tr := m.At(0, 0) + m.At(1, 1) + m.At(2, 2)
	switch {
	case tr > 0:
		s := 2 * math.Sqrt(tr+1)
		q.Real = 0.25 * s
		q.Imag = (m.At(2, 1) - m.At(1, 2)) / s
		q.Jmag = (m.At(0, 2) - m.At(2, 0)) / s
		q.Kmag = (m.At(1, 0) - m.At(0, 1)) / s
	case m.At(0, 0) > m.At(1, 1) && m.At(0, 0) > m.At(2, 2):
		s := 2 * math.Sqrt(1+m.At(0, 0)-m.At(1, 1)-m.At(2, 2))
		q.Real = (m.At(2, 1) - m.At(1, 2)) / s
		q.Imag = 0.25 * s
		q.Jmag = (m.At(0, 1) + m.At(1, 0)) / s
		q.Kmag = (m.At(0, 2) + m.At(2, 0)) / s
	case m.At(1, 1) > m.At(2, 2):
		s := 2 * math.Sqrt(1+m.At(1, 1)-m.At(0, 0)-m.At(2, 2))
		q.Real = (m.At(0, 2) - m.At(2, 0)) / s
		q.Imag = (m.At(0, 1) + m.At(1, 0)) / s
		q.Jmag = 0.25 * s
		q.Kmag = (m.At(1, 2) + m.At(2, 1)) / s
	default:
		s := 2 * math.Sqrt(1+m.At(2, 2)-m.At(0, 0)-m.At(1, 1))
		q.Real = (m.At(1, 0) - m.At(0, 1)) / s
		q.Imag = (m.At(0, 2) + m.At(2, 0)) / s
		q.Jmag = (m.At(1, 2) + m.At(2, 1)) / s
		q.Kmag = 0.25 * s
	}
	return Normalize(q)
}
