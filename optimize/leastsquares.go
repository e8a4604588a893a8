// Package optimize provides the dense least-squares seam and the
// Levenberg-Marquardt routine shared by the calibration solvers.
package optimize

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrSingularSystem is returned when a linear system is rank deficient or
// otherwise too ill conditioned to solve.
var ErrSingularSystem = errors.New("least-squares system is singular")

// SolveLeastSquares solves the possibly overdetermined system a*x = b in the
// least-squares sense. Rank-deficient systems fail with ErrSingularSystem
// rather than returning a valid-looking solution.
func SolveLeastSquares(a *mat.Dense, b *mat.VecDense) (*mat.VecDense, error) {
	rows, cols := a.Dims()
	if rows < cols {
		return nil, errors.Wrapf(ErrSingularSystem,
			"%d equations cannot determine %d unknowns", rows, cols)
	}
	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return nil, errors.Wrap(ErrSingularSystem, err.Error())
	}
	return &x, nil
}
