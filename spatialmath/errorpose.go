package spatialmath

import (
	"gonum.org/v1/gonum/mat"
)

// ErrorPose is a Pose together with a 6x6 covariance-like matrix over its
// translation and rotation parameters.
type ErrorPose struct {
	Pose
	Covariance *mat.SymDense
}

// NewErrorPose returns an ErrorPose with the given 6x6 covariance.
func NewErrorPose(p Pose, cov *mat.SymDense) ErrorPose {
	return ErrorPose{p, cov}
}

// NewErrorPoseFromResidual returns an ErrorPose whose covariance is a 6x6
// diagonal with every entry set to the given residual. The value is a coarse
// quality proxy carried along with the pose, not a calibrated covariance.
func NewErrorPoseFromResidual(p Pose, residual float64) ErrorPose {
	cov := mat.NewSymDense(6, nil)
	for i := 0; i < 6; i++ {
		cov.SetSym(i, i, residual)
	}
	return ErrorPose{p, cov}
}
