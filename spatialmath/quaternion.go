package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// Normalize scales q to unit length. The zero quaternion normalizes to the
// identity rotation.
func Normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}

// RotateVec rotates v by the unit quaternion q.
func RotateVec(q quat.Number, v r3.Vector) r3.Vector {
	r := quat.Mul(quat.Mul(q, quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}), quat.Conj(q))
	return r3.Vector{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// QuaternionAlmostEqual reports whether q1 and q2 represent approximately the
// same rotation, accounting for the double cover.
func QuaternionAlmostEqual(q1, q2 quat.Number, tol float64) bool {
	d := quat.Mul(q1, quat.Conj(q2))
	return 1-math.Abs(d.Real) < tol
}

// RotationMatrix returns the 3x3 rotation matrix of the unit quaternion q.
func RotationMatrix(q quat.Number) *mat.Dense {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	})
}

// QuatFromRotationMatrix converts an orthonormal rotation matrix into a unit
// quaternion, branching on the largest squared component for numerical
// stability. The sign is chosen so the scalar part is non-negative.
func QuatFromRotationMatrix(m *mat.Dense) quat.Number {
	sq := [4]float64{
		(1 + m.At(0, 0) + m.At(1, 1) + m.At(2, 2)) / 4,
		(1 + m.At(0, 0) - m.At(1, 1) - m.At(2, 2)) / 4,
		(1 - m.At(0, 0) + m.At(1, 1) - m.At(2, 2)) / 4,
		(1 - m.At(0, 0) - m.At(1, 1) + m.At(2, 2)) / 4,
	}
	largest := 0
	for i := 1; i < 4; i++ {
		if sq[i] > sq[largest] {
			largest = i
		}
	}

	var w, x, y, z float64
	switch largest {
	case 0:
		w = math.Sqrt(sq[0])
		x = (m.At(2, 1) - m.At(1, 2)) / (4 * w)
		y = (m.At(0, 2) - m.At(2, 0)) / (4 * w)
		z = (m.At(1, 0) - m.At(0, 1)) / (4 * w)
	case 1:
		x = math.Sqrt(sq[1])
		w = (m.At(2, 1) - m.At(1, 2)) / (4 * x)
		y = (m.At(1, 0) + m.At(0, 1)) / (4 * x)
		z = (m.At(0, 2) + m.At(2, 0)) / (4 * x)
	case 2:
		y = math.Sqrt(sq[2])
		w = (m.At(0, 2) - m.At(2, 0)) / (4 * y)
		x = (m.At(1, 0) + m.At(0, 1)) / (4 * y)
		z = (m.At(2, 1) + m.At(1, 2)) / (4 * y)
	default:
		z = math.Sqrt(sq[3])
		w = (m.At(1, 0) - m.At(0, 1)) / (4 * z)
		x = (m.At(0, 2) + m.At(2, 0)) / (4 * z)
		y = (m.At(2, 1) + m.At(1, 2)) / (4 * z)
	}

	q := quat.Number{Real: w, Imag: x, Jmag: y, Kmag: z}
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	return Normalize(q)
}

// Log returns the Lie-algebra logarithm of a unit quaternion as a 3-vector,
// half the rotation angle times the rotation axis. The input is
// sign-normalized first so the representation stays within a half turn;
// rotations of exactly 180 degrees sit at the edge of this parameterization.
func Log(q quat.Number) r3.Vector {
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	l := quat.Log(q)
	return r3.Vector{X: l.Imag, Y: l.Jmag, Z: l.Kmag}
}

// Exp maps a 3-vector rotation logarithm back to a unit quaternion.
func Exp(v r3.Vector) quat.Number {
	return quat.Exp(quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z})
}

// Skew returns the skew-symmetric cross-product matrix of v.
func Skew(v r3.Vector) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		0, -v.Z, v.Y,
		v.Z, 0, -v.X,
		-v.Y, v.X, 0,
	})
}
