package optimize

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func TestNumericJacobian(t *testing.T) {
	f := func(p []float64) ([]float64, error) {
		return []float64{p[0] * p[0], p[0] * p[1]}, nil
	}
	jac, err := NumericJacobian(f, []float64{2, 3})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, jac.At(0, 0), test.ShouldAlmostEqual, 4, 1e-5)
	test.That(t, jac.At(0, 1), test.ShouldAlmostEqual, 0, 1e-5)
	test.That(t, jac.At(1, 0), test.ShouldAlmostEqual, 3, 1e-5)
	test.That(t, jac.At(1, 1), test.ShouldAlmostEqual, 2, 1e-5)
}

func TestLevenbergMarquardtLinearFit(t *testing.T) {
	// residuals linear in the parameters, one damped step suffices
	xs := []float64{-2, -1, 0, 1, 2, 3}
	truth := []float64{0.5, -1.5, 2.0}
	model := func(p []float64, x float64) float64 {
		return p[0] + p[1]*x + p[2]*x*x
	}
	residual := func(p []float64) ([]float64, error) {
		r := make([]float64, len(xs))
		for i, x := range xs {
			r[i] = model(truth, x) - model(p, x)
		}
		return r, nil
	}
	params, ssq, err := LevenbergMarquardt(residual, nil, []float64{0, 0, 0},
		TerminationCriteria{MaxIterations: 20, MinResidualImprovement: 1e-14})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ssq, test.ShouldBeLessThan, 1e-10)
	for i := range truth {
		test.That(t, params[i], test.ShouldAlmostEqual, truth[i], 1e-4)
	}
}

func TestLevenbergMarquardtRosenbrock(t *testing.T) {
	residual := func(p []float64) ([]float64, error) {
		return []float64{10 * (p[1] - p[0]*p[0]), 1 - p[0]}, nil
	}
	jacobian := func(p []float64) (*mat.Dense, error) {
		return mat.NewDense(2, 2, []float64{
			-20 * p[0], 10,
			-1, 0,
		}), nil
	}
	params, ssq, err := LevenbergMarquardt(residual, jacobian, []float64{-1.2, 1},
		TerminationCriteria{MaxIterations: 200, MinResidualImprovement: 1e-16})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ssq, test.ShouldBeLessThan, 1e-12)
	test.That(t, params[0], test.ShouldAlmostEqual, 1, 1e-5)
	test.That(t, params[1], test.ShouldAlmostEqual, 1, 1e-5)
}

func TestLevenbergMarquardtNumericMatchesAnalytic(t *testing.T) {
	residual := func(p []float64) ([]float64, error) {
		return []float64{
			math.Exp(p[0]) - 2,
			p[0]*p[1] - 1,
			p[1] - 0.5,
		}, nil
	}
	analytic, _, err := LevenbergMarquardt(residual, func(p []float64) (*mat.Dense, error) {
		return mat.NewDense(3, 2, []float64{
			math.Exp(p[0]), 0,
			p[1], p[0],
			0, 1,
		}), nil
	}, []float64{0.5, 0.5}, TerminationCriteria{MaxIterations: 100, MinResidualImprovement: 1e-15})
	test.That(t, err, test.ShouldBeNil)

	numeric, _, err := LevenbergMarquardt(residual, nil, []float64{0.5, 0.5},
		TerminationCriteria{MaxIterations: 100, MinResidualImprovement: 1e-15})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, numeric[0], test.ShouldAlmostEqual, analytic[0], 1e-6)
	test.That(t, numeric[1], test.ShouldAlmostEqual, analytic[1], 1e-6)
}

func TestLevenbergMarquardtSingular(t *testing.T) {
	// constant residual, zero Jacobian: damping never yields a solvable system
	residual := func(p []float64) ([]float64, error) {
		return []float64{1, 1}, nil
	}
	_, _, err := LevenbergMarquardt(residual, nil, []float64{0, 0}, DefaultTermination)
	test.That(t, errors.Is(err, ErrSingularSystem), test.ShouldBeTrue)
}

func TestLevenbergMarquardtAlreadyConverged(t *testing.T) {
	calls := 0
	residual := func(p []float64) ([]float64, error) {
		calls++
		return []float64{0}, nil
	}
	params, ssq, err := LevenbergMarquardt(residual, nil, []float64{3}, DefaultTermination)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ssq, test.ShouldEqual, 0)
	test.That(t, params[0], test.ShouldEqual, 3)
	// the initial evaluation is below threshold, no iterations run
	test.That(t, calls, test.ShouldEqual, 1)
}
