// Package spatialmath defines spatial mathematical operations on rigid
// transforms expressed as unit quaternions with translations.
package spatialmath

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Pose is a rigid transform represented as a unit quaternion rotation
// followed by a translation. Poses are plain values; use NewZeroPose for the
// identity rather than the zero value, whose quaternion is all zeroes.
type Pose struct {
	Rotation    quat.Number
	Translation r3.Vector
}

// NewPose returns a Pose with the given rotation and translation. The
// quaternion is normalized to unit length.
func NewPose(q quat.Number, t r3.Vector) Pose {
	return Pose{Normalize(q), t}
}

// NewZeroPose returns the identity pose.
func NewZeroPose() Pose {
	return Pose{Rotation: quat.Number{Real: 1}}
}

// NewPoseFromMat4 converts a 4x4 homogeneous transform into a Pose. The
// rotation block must be orthonormal with determinant +1.
func NewPoseFromMat4(m mgl64.Mat4) Pose {
	q := mgl64.Mat4ToQuat(m)
	return NewPose(
		quat.Number{Real: q.W, Imag: q.X(), Jmag: q.Y(), Kmag: q.Z()},
		r3.Vector{X: m.At(0, 3), Y: m.At(1, 3), Z: m.At(2, 3)},
	)
}

// Mat4 returns the pose as a 4x4 homogeneous transform.
func (p Pose) Mat4() mgl64.Mat4 {
	q := mgl64.Quat{
		W: p.Rotation.Real,
		V: mgl64.Vec3{p.Rotation.Imag, p.Rotation.Jmag, p.Rotation.Kmag},
	}
	m := q.Mat4()
	m.SetCol(3, mgl64.Vec4{p.Translation.X, p.Translation.Y, p.Translation.Z, 1})
	return m
}

// Compose returns the pose equivalent to applying o first and then p.
func (p Pose) Compose(o Pose) Pose {
	return Pose{
		Rotation:    quat.Mul(p.Rotation, o.Rotation),
		Translation: p.TransformPoint(o.Translation),
	}
}

// Invert returns the inverse transform.
func (p Pose) Invert() Pose {
	qc := quat.Conj(p.Rotation)
	return Pose{Rotation: qc, Translation: RotateVec(qc, p.Translation).Mul(-1)}
}

// TransformPoint applies the pose to a 3D point.
func (p Pose) TransformPoint(pt r3.Vector) r3.Vector {
	return RotateVec(p.Rotation, pt).Add(p.Translation)
}

// AlmostEqual reports whether two poses describe approximately the same
// transform, accounting for the quaternion double cover.
func (p Pose) AlmostEqual(o Pose, tol float64) bool {
	return QuaternionAlmostEqual(p.Rotation, o.Rotation, tol) &&
		p.Translation.Sub(o.Translation).Norm() <= tol
}
