package optimize

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ResidualFunc computes the stacked residual vector at the given parameters.
type ResidualFunc func(params []float64) ([]float64, error)

// JacobianFunc computes the Jacobian of the residual vector with respect to
// the parameters, one row per residual entry.
type JacobianFunc func(params []float64) (*mat.Dense, error)

// TerminationCriteria is the stopping policy for LevenbergMarquardt: a hard
// iteration cap and the squared-residual improvement below which an
// iteration counts as converged.
type TerminationCriteria struct {
	MaxIterations          int
	MinResidualImprovement float64
}

// DefaultTermination is the stopping policy used by the calibration solvers.
var DefaultTermination = TerminationCriteria{MaxIterations: 10, MinResidualImprovement: 1e-6}

const (
	initialLambda = 1e-3
	lambdaFactor  = 10.0
	maxLambda     = 1e12
	jacobianStep  = 1e-6
)

// NumericJacobian approximates the Jacobian of f at params with central
// differences.
func NumericJacobian(f ResidualFunc, params []float64) (*mat.Dense, error) {
	p := append([]float64(nil), params...)
	r0, err := f(p)
	if err != nil {
		return nil, err
	}
	jac := mat.NewDense(len(r0), len(p), nil)
	for j := range p {
		step := jacobianStep * math.Max(1, math.Abs(p[j]))
		orig := p[j]
		p[j] = orig + step
		rPlus, err := f(p)
		if err != nil {
			return nil, err
		}
		p[j] = orig - step
		rMinus, err := f(p)
		if err != nil {
			return nil, err
		}
		p[j] = orig
		for i := range rPlus {
			jac.Set(i, j, (rPlus[i]-rMinus[i])/(2*step))
		}
	}
	return jac, nil
}

// LevenbergMarquardt minimizes the squared norm of the residual starting from
// initial, solving the damped normal equations through the dense linear
// algebra layer. When jacobian is nil a central-difference approximation is
// used. It returns the refined parameters and the final sum of squared
// residuals.
func LevenbergMarquardt(
	residual ResidualFunc,
	jacobian JacobianFunc,
	initial []float64,
	term TerminationCriteria,
) ([]float64, float64, error) {
	if jacobian == nil {
		jacobian = func(p []float64) (*mat.Dense, error) {
			return NumericJacobian(residual, p)
		}
	}

	params := append([]float64(nil), initial...)
	r, err := residual(params)
	if err != nil {
		return nil, 0, err
	}
	ssq := sumSquares(r)
	lambda := initialLambda

	for iter := 0; iter < term.MaxIterations; iter++ {
		if ssq <= term.MinResidualImprovement {
			break
		}
		jac, err := jacobian(params)
		if err != nil {
			return nil, 0, err
		}
		_, cols := jac.Dims()

		// normal equations (J^T J + lambda diag(J^T J)) delta = -J^T r
		jtj := mat.NewDense(cols, cols, nil)
		jtj.Mul(jac.T(), jac)
		jtr := mat.NewVecDense(cols, nil)
		jtr.MulVec(jac.T(), mat.NewVecDense(len(r), r))
		jtr.ScaleVec(-1, jtr)

		improved := false
		solved := false
		for lambda <= maxLambda {
			damped := mat.DenseCopyOf(jtj)
			for i := 0; i < cols; i++ {
				damped.Set(i, i, jtj.At(i, i)*(1+lambda))
			}
			var delta mat.VecDense
			if err := delta.SolveVec(damped, jtr); err != nil {
				lambda *= lambdaFactor
				continue
			}
			solved = true

			trial := make([]float64, len(params))
			for i := range params {
				trial[i] = params[i] + delta.AtVec(i)
			}
			rTrial, err := residual(trial)
			if err != nil {
				return nil, 0, err
			}
			ssqTrial := sumSquares(rTrial)
			if ssqTrial < ssq {
				improvement := ssq - ssqTrial
				params, r, ssq = trial, rTrial, ssqTrial
				lambda /= lambdaFactor
				improved = true
				if improvement < term.MinResidualImprovement {
					return params, ssq, nil
				}
				break
			}
			lambda *= lambdaFactor
		}
		if !solved {
			return nil, 0, errors.Wrap(ErrSingularSystem, "normal equations")
		}
		if !improved {
			break
		}
	}
	return params, ssq, nil
}

func sumSquares(r []float64) float64 {
	var ssq float64
	for _, v := range r {
		ssq += v * v
	}
	return ssq
}
