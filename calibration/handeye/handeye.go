// Package handeye computes the fixed rigid transform between two rigidly
// linked reference frames from paired pose sequences, batch via a
// closed-form solver and incrementally via a rotation-only online estimator.
package handeye

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/SternenKinder/utcore/optimize"
	"github.com/SternenKinder/utcore/spatialmath"
)

// ErrSizeMismatch is returned when the hand and eye sequences disagree in
// length.
var ErrSizeMismatch = errors.New("hand and eye sequences must have the same length")

// measurementPair holds the relative motions of the two frames between one
// pair of sample indices.
type measurementPair struct {
	g spatialmath.Pose // relative hand motion
	c spatialmath.Pose // relative eye motion
}

// buildPairs derives relative-motion pairs for indices i<j. Adjacent mode
// pairs consecutive samples only; all-pairs mode uses every combination,
// trading O(n^2) work for statistical strength.
func buildPairs(hand, eye []spatialmath.Pose, useAllPairs bool) []measurementPair {
	n := len(hand)
	reserve := n - 1
	if useAllPairs {
		reserve = n * (n - 1) / 2
	}
	pairs := make([]measurementPair, 0, reserve)
	for i := 0; i < n-1; i++ {
		to := i + 2
		if useAllPairs {
			to = n
		}
		for j := i + 1; j < to; j++ {
			pairs = append(pairs, measurementPair{
				g: hand[j].Invert().Compose(hand[i]),
				c: eye[j].Compose(eye[i].Invert()),
			})
		}
	}
	return pairs
}

// quatVector returns the vector part of a unit quaternion with the sign
// chosen so the scalar part is non-negative.
func quatVector(q quat.Number) r3.Vector {
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	return r3.Vector{X: q.Imag, Y: q.Jmag, Z: q.Kmag}
}

// Solve recovers the fixed transform X relating the two frames, the X
// satisfying Hg*X = X*Hc over the relative-motion pairs Hg, Hc derived from
// the sequences. With two or fewer samples it deterministically returns the
// identity pose. Rank-deficient pair sets fail with ErrSingularSystem from
// the linear solver.
func Solve(hand, eye []spatialmath.Pose, useAllPairs bool) (spatialmath.Pose, error) {
	if len(hand) != len(eye) {
		return spatialmath.Pose{}, errors.Wrapf(ErrSizeMismatch,
			"%d hand poses, %d eye poses", len(hand), len(eye))
	}
	if len(eye) <= 2 {
		return spatialmath.NewZeroPose(), nil
	}

	pairs := buildPairs(hand, eye, useAllPairs)
	rcg, err := solveRotation(pairs)
	if err != nil {
		return spatialmath.Pose{}, errors.Wrap(err, "rotation stage")
	}
	tcg, err := solveTranslation(pairs, rcg)
	if err != nil {
		return spatialmath.Pose{}, errors.Wrap(err, "translation stage")
	}
	return spatialmath.NewPose(rcg, tcg), nil
}

// SolveMatrices is Solve for sequences given as 4x4 homogeneous transforms.
// The matrices are converted once and run through the same algorithm path.
func SolveMatrices(hand, eye []mgl64.Mat4, useAllPairs bool) (spatialmath.Pose, error) {
	if len(hand) != len(eye) {
		return spatialmath.Pose{}, errors.Wrapf(ErrSizeMismatch,
			"%d hand transforms, %d eye transforms", len(hand), len(eye))
	}
	handPoses := make([]spatialmath.Pose, len(hand))
	eyePoses := make([]spatialmath.Pose, len(eye))
	for i := range hand {
		handPoses[i] = spatialmath.NewPoseFromMat4(hand[i])
		eyePoses[i] = spatialmath.NewPoseFromMat4(eye[i])
	}
	return Solve(handPoses, eyePoses, useAllPairs)
}

// solveRotation stacks skew(qg+qc)*x = qc-qg over all pairs, solves by least
// squares, and reconstructs the rotation from the solution with the
// half-angle formula.
func solveRotation(pairs []measurementPair) (quat.Number, error) {
	a := mat.NewDense(3*len(pairs), 3, nil)
	b := mat.NewVecDense(3*len(pairs), nil)
	for i, pair := range pairs {
		qg := quatVector(pair.g.Rotation)
		qc := quatVector(pair.c.Rotation)
		skew := spatialmath.Skew(qg.Add(qc))
		rhs := qc.Sub(qg)
		for row := 0; row < 3; row++ {
			for col := 0; col < 3; col++ {
				a.Set(3*i+row, col, skew.At(row, col))
			}
		}
		b.SetVec(3*i, rhs.X)
		b.SetVec(3*i+1, rhs.Y)
		b.SetVec(3*i+2, rhs.Z)
	}

	x, err := optimize.SolveLeastSquares(a, b)
	if err != nil {
		return quat.Number{}, err
	}
	// The solution is the modified Rodrigues vector of the unknown
	// rotation; normalizing by the implied scalar part recovers the unit
	// quaternion.
	p := r3.Vector{X: x.AtVec(0), Y: x.AtVec(1), Z: x.AtVec(2)}
	w := 1 / math.Sqrt(1+p.Norm2())
	return quat.Number{Real: w, Imag: w * p.X, Jmag: w * p.Y, Kmag: w * p.Z}, nil
}

// solveTranslation stacks (Rg-I)*t = Rcg*tc-tg over all pairs and solves by
// least squares.
func solveTranslation(pairs []measurementPair, rcg quat.Number) (r3.Vector, error) {
	a := mat.NewDense(3*len(pairs), 3, nil)
	b := mat.NewVecDense(3*len(pairs), nil)
	for i, pair := range pairs {
		rg := spatialmath.RotationMatrix(pair.g.Rotation)
		for row := 0; row < 3; row++ {
			for col := 0; col < 3; col++ {
				v := rg.At(row, col)
				if row == col {
					v--
				}
				a.Set(3*i+row, col, v)
			}
		}
		rhs := spatialmath.RotateVec(rcg, pair.c.Translation).Sub(pair.g.Translation)
		b.SetVec(3*i, rhs.X)
		b.SetVec(3*i+1, rhs.Y)
		b.SetVec(3*i+2, rhs.Z)
	}

	x, err := optimize.SolveLeastSquares(a, b)
	if err != nil {
		return r3.Vector{}, err
	}
	return r3.Vector{X: x.AtVec(0), Y: x.AtVec(1), Z: x.AtVec(2)}, nil
}
