package spatialmath

import (
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"
)

func randomPose(r *rand.Rand) Pose {
	q := quat.Number{
		Real: r.NormFloat64(),
		Imag: r.NormFloat64(),
		Jmag: r.NormFloat64(),
		Kmag: r.NormFloat64(),
	}
	t := r3.Vector{
		X: 10*r.Float64() - 5,
		Y: 10*r.Float64() - 5,
		Z: 10*r.Float64() - 5,
	}
	return NewPose(q, t)
}

func TestZeroPose(t *testing.T) {
	pt := r3.Vector{X: 1, Y: -2, Z: 3}
	test.That(t, NewZeroPose().TransformPoint(pt), test.ShouldResemble, pt)
}

func TestComposeInvert(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		p := randomPose(r)
		o := randomPose(r)
		pt := r3.Vector{X: r.NormFloat64(), Y: r.NormFloat64(), Z: r.NormFloat64()}

		composed := p.Compose(o).TransformPoint(pt)
		chained := p.TransformPoint(o.TransformPoint(pt))
		test.That(t, composed.Sub(chained).Norm(), test.ShouldBeLessThan, 1e-10)

		identity := p.Compose(p.Invert())
		test.That(t, identity.AlmostEqual(NewZeroPose(), 1e-10), test.ShouldBeTrue)

		roundTrip := p.Invert().TransformPoint(p.TransformPoint(pt))
		test.That(t, roundTrip.Sub(pt).Norm(), test.ShouldBeLessThan, 1e-10)
	}
}

func TestMat4RoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 20; i++ {
		p := randomPose(r)
		back := NewPoseFromMat4(p.Mat4())
		test.That(t, back.AlmostEqual(p, 1e-10), test.ShouldBeTrue)

		// the matrix and quaternion paths must transform points identically
		pt := r3.Vector{X: r.NormFloat64(), Y: r.NormFloat64(), Z: r.NormFloat64()}
		m := p.Mat4()
		v := m.Mul4x1(mgl64.Vec4{pt.X, pt.Y, pt.Z, 1})
		got := p.TransformPoint(pt)
		test.That(t, v[0], test.ShouldAlmostEqual, got.X, 1e-10)
		test.That(t, v[1], test.ShouldAlmostEqual, got.Y, 1e-10)
		test.That(t, v[2], test.ShouldAlmostEqual, got.Z, 1e-10)
	}
}

func TestErrorPoseFromResidual(t *testing.T) {
	ep := NewErrorPoseFromResidual(NewZeroPose(), 0.25)
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			want := 0.0
			if i == j {
				want = 0.25
			}
			test.That(t, ep.Covariance.At(i, j), test.ShouldEqual, want)
		}
	}
}
