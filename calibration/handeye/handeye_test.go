package handeye

import (
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"

	"github.com/SternenKinder/utcore/optimize"
	"github.com/SternenKinder/utcore/spatialmath"
)

func randomPose(r *rand.Rand) spatialmath.Pose {
	q := quat.Number{
		Real: r.NormFloat64(),
		Imag: r.NormFloat64(),
		Jmag: r.NormFloat64(),
		Kmag: r.NormFloat64(),
	}
	t := r3.Vector{
		X: 4*r.Float64() - 2,
		Y: 4*r.Float64() - 2,
		Z: 4*r.Float64() - 2,
	}
	return spatialmath.NewPose(q, t)
}

// consistentSequences builds hand and eye pose sequences whose relative
// motions are linked by the fixed transform x, optionally composed with a
// fixed world offset that must cancel out of the relative motions.
func consistentSequences(r *rand.Rand, x, offset spatialmath.Pose, n int) ([]spatialmath.Pose, []spatialmath.Pose) {
	hand := make([]spatialmath.Pose, n)
	eye := make([]spatialmath.Pose, n)
	for k := 0; k < n; k++ {
		eye[k] = randomPose(r)
		hand[k] = offset.Compose(x.Compose(eye[k]).Invert())
	}
	return hand, eye
}

func TestSolveRecoversTransform(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	for _, useAllPairs := range []bool{false, true} {
		for i := 0; i < 10; i++ {
			x := randomPose(r)
			n := 4 + r.Intn(8)
			hand, eye := consistentSequences(r, x, spatialmath.NewZeroPose(), n)

			got, err := Solve(hand, eye, useAllPairs)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, got.AlmostEqual(x, 1e-8), test.ShouldBeTrue)
		}
	}
}

func TestSolveWorldOffsetCancels(t *testing.T) {
	r := rand.New(rand.NewSource(12))
	x := randomPose(r)
	offset := randomPose(r)
	hand, eye := consistentSequences(r, x, offset, 8)

	got, err := Solve(hand, eye, true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got.AlmostEqual(x, 1e-8), test.ShouldBeTrue)
}

func TestSolveMatrices(t *testing.T) {
	r := rand.New(rand.NewSource(13))
	x := randomPose(r)
	hand, eye := consistentSequences(r, x, spatialmath.NewZeroPose(), 6)

	handM := make([]mgl64.Mat4, len(hand))
	eyeM := make([]mgl64.Mat4, len(eye))
	for i := range hand {
		handM[i] = hand[i].Mat4()
		eyeM[i] = eye[i].Mat4()
	}
	got, err := SolveMatrices(handM, eyeM, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got.AlmostEqual(x, 1e-8), test.ShouldBeTrue)
}

func TestSolveTooFewSamples(t *testing.T) {
	r := rand.New(rand.NewSource(14))
	for n := 0; n <= 2; n++ {
		hand := make([]spatialmath.Pose, n)
		eye := make([]spatialmath.Pose, n)
		for k := 0; k < n; k++ {
			hand[k] = randomPose(r)
			eye[k] = randomPose(r)
		}
		got, err := Solve(hand, eye, false)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, got.AlmostEqual(spatialmath.NewZeroPose(), 1e-12), test.ShouldBeTrue)
	}
}

func TestSolveSizeMismatch(t *testing.T) {
	r := rand.New(rand.NewSource(15))
	hand := []spatialmath.Pose{randomPose(r), randomPose(r), randomPose(r)}
	eye := []spatialmath.Pose{randomPose(r), randomPose(r)}

	_, err := Solve(hand, eye, false)
	test.That(t, errors.Is(err, ErrSizeMismatch), test.ShouldBeTrue)

	_, err = SolveMatrices([]mgl64.Mat4{mgl64.Ident4()}, nil, false)
	test.That(t, errors.Is(err, ErrSizeMismatch), test.ShouldBeTrue)
}

func TestSolveDegenerateMotion(t *testing.T) {
	// a stationary rig yields identity relative motions and no constraint
	p := spatialmath.NewZeroPose()
	hand := []spatialmath.Pose{p, p, p, p}
	eye := []spatialmath.Pose{p, p, p, p}

	_, err := Solve(hand, eye, false)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, errors.Is(err, optimize.ErrSingularSystem), test.ShouldBeTrue)
}

func TestBuildPairsCounts(t *testing.T) {
	r := rand.New(rand.NewSource(16))
	hand := make([]spatialmath.Pose, 5)
	eye := make([]spatialmath.Pose, 5)
	for k := range hand {
		hand[k] = randomPose(r)
		eye[k] = randomPose(r)
	}
	test.That(t, buildPairs(hand, eye, false), test.ShouldHaveLength, 4)
	test.That(t, buildPairs(hand, eye, true), test.ShouldHaveLength, 10)
}
